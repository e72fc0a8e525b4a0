package trading

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/coinops/tradebot-api/internal/pnl"
	"github.com/coinops/tradebot-api/internal/risk"
	"github.com/coinops/tradebot-api/internal/types"
	"github.com/coinops/tradebot-api/pkg/middleware"
	"github.com/coinops/tradebot-api/pkg/response"
)

// GinHandlers provides HTTP handlers for trading, portfolio and market data
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

func (h *GinHandlers) PlaceOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.OrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request: "+err.Error())
			return
		}

		trade, err := h.service.PlaceOrder(c.Request.Context(), middleware.UserID(c), &req)
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidSide),
				errors.Is(err, ErrInvalidOrderType),
				errors.Is(err, risk.ErrInvalidOrder),
				errors.Is(err, pnl.ErrOversold):
				response.BadRequest(c, err.Error())
			case errors.Is(err, risk.ErrOrderTooLarge),
				errors.Is(err, risk.ErrDailyVolumeLimit),
				errors.Is(err, risk.ErrTooManyOpenTrades):
				response.Forbidden(c, err.Error())
			default:
				log.Error().Err(err).Msg("order placement failed")
				response.InternalError(c, "Failed to place order")
			}
			return
		}

		response.Success(c, trade)
	}
}

func (h *GinHandlers) CancelTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trade, err := h.service.CancelTrade(c.Param("id"), middleware.UserID(c))
		if err != nil {
			switch {
			case errors.Is(err, ErrTradeNotFound):
				response.NotFound(c, "Trade not found")
			case errors.Is(err, ErrTradeNotCancelable):
				response.Conflict(c, err.Error())
			default:
				log.Error().Err(err).Msg("trade cancellation failed")
				response.InternalError(c, "Failed to cancel trade")
			}
			return
		}

		response.Success(c, trade)
	}
}

func (h *GinHandlers) GetTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trade, err := h.service.GetTrade(c.Param("id"), middleware.UserID(c))
		if err != nil {
			if errors.Is(err, ErrTradeNotFound) {
				response.NotFound(c, "Trade not found")
				return
			}
			log.Error().Err(err).Msg("failed to fetch trade")
			response.InternalError(c, "Failed to fetch trade")
			return
		}

		response.Success(c, trade)
	}
}

func (h *GinHandlers) GetTradeHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filters := TradeFilters{
			Symbol: c.Query("symbol"),
			Status: c.Query("status"),
		}
		if v := c.Query("limit"); v != "" {
			filters.Limit, _ = strconv.Atoi(v)
		}
		if v := c.Query("offset"); v != "" {
			filters.Offset, _ = strconv.Atoi(v)
		}
		if v := c.Query("since"); v != "" {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				filters.Since = ts
			}
		}

		trades, total, err := h.service.GetTradeHistory(middleware.UserID(c), filters)
		if err != nil {
			log.Error().Err(err).Msg("failed to fetch trade history")
			response.InternalError(c, "Failed to fetch trade history")
			return
		}

		response.Success(c, gin.H{
			"trades": trades,
			"total":  total,
			"limit":  filters.Limit,
			"offset": filters.Offset,
		})
	}
}

func (h *GinHandlers) GetPositionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		positions, unrealized, err := h.service.GetPositions(c.Request.Context(), middleware.UserID(c))
		if err != nil {
			log.Error().Err(err).Msg("failed to fetch positions")
			response.InternalError(c, "Failed to fetch positions")
			return
		}

		response.Success(c, gin.H{
			"positions":      positions,
			"unrealized_pnl": unrealized,
		})
	}
}

func (h *GinHandlers) GetPortfolioHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		portfolio, err := h.service.GetPortfolio(c.Request.Context(), middleware.UserID(c))
		if err != nil {
			log.Error().Err(err).Msg("failed to build portfolio summary")
			response.InternalError(c, "Failed to fetch portfolio")
			return
		}

		response.Success(c, portfolio)
	}
}

func (h *GinHandlers) GetPerformanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		days := 30
		if v := c.Query("days"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
				days = parsed
			}
		}

		perf, err := h.service.GetPerformance(middleware.UserID(c), days)
		if err != nil {
			log.Error().Err(err).Msg("failed to compute performance")
			response.InternalError(c, "Failed to fetch performance")
			return
		}

		response.Success(c, perf)
	}
}

func (h *GinHandlers) GetTickerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		symbol := c.Query("symbol")
		if symbol == "" {
			response.BadRequest(c, "symbol is required")
			return
		}

		ticker, err := h.service.gateway.Ticker(c.Request.Context(), symbol)
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("ticker fetch failed")
			response.InternalError(c, "Failed to fetch ticker")
			return
		}

		response.Success(c, ticker)
	}
}

func (h *GinHandlers) GetBalancesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		balances, err := h.service.gateway.Balances(c.Request.Context())
		if err != nil {
			log.Error().Err(err).Msg("balance fetch failed")
			response.InternalError(c, "Failed to fetch balances")
			return
		}

		response.Success(c, gin.H{"balances": balances})
	}
}

func (h *GinHandlers) GetCandlesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		symbol := c.Query("symbol")
		if symbol == "" {
			response.BadRequest(c, "symbol is required")
			return
		}

		interval := c.DefaultQuery("interval", "1h")

		end := time.Now().UTC()
		if v := c.Query("end"); v != "" {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				end = ts
			}
		}
		start := end.Add(-24 * time.Hour)
		if v := c.Query("start"); v != "" {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				start = ts
			}
		}

		candles, err := h.service.gateway.Candles(c.Request.Context(), symbol, interval, start, end)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		response.Success(c, gin.H{
			"symbol":   symbol,
			"interval": interval,
			"candles":  candles,
		})
	}
}
