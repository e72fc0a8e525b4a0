// Package backtest queues and runs strategy simulations over historical
// candles and stores their performance metrics.
package backtest

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/coinops/tradebot-api/internal/exchange"
	"github.com/coinops/tradebot-api/internal/strategy"
	"github.com/coinops/tradebot-api/pkg/middleware"
	"github.com/coinops/tradebot-api/pkg/response"
)

var (
	ErrBacktestNotFound = errors.New("backtest not found")
	ErrInvalidRange     = errors.New("start time must be before end time")
	ErrNotCancelable    = errors.New("backtest already finished")
)

type Service struct {
	db         *Database
	strategies *strategy.Service
	engine     *Engine
}

func NewService(db *gorm.DB, strategies *strategy.Service, gateway exchange.Gateway) *Service {
	return &Service{
		db:         NewDatabase(db),
		strategies: strategies,
		engine:     NewEngine(gateway),
	}
}

// CreateBacktest validates the request and queues a pending run for the
// background processor.
func (s *Service) CreateBacktest(userID string, req *CreateBacktestRequest) (*Backtest, error) {
	if !req.StartTime.Before(req.EndTime) {
		return nil, ErrInvalidRange
	}

	cfg, err := s.strategies.GetStrategy(req.StrategyID, userID)
	if err != nil {
		return nil, err
	}

	commission := req.Commission
	if commission == 0 {
		commission = DefaultCommission
	}
	slippage := req.Slippage
	if slippage == 0 {
		slippage = DefaultSlippage
	}

	bt := &Backtest{
		BacktestID:     uuid.New().String(),
		UserID:         userID,
		StrategyID:     cfg.StrategyID,
		Symbol:         cfg.Symbol,
		Timeframe:      cfg.Timeframe,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		InitialBalance: req.InitialBalance,
		Commission:     commission,
		Slippage:       slippage,
		Status:         StatusPending,
	}

	if err := s.db.CreateBacktest(bt); err != nil {
		return nil, fmt.Errorf("failed to queue backtest: %w", err)
	}

	log.Info().
		Str("user_id", userID).
		Str("backtest_id", bt.BacktestID).
		Str("strategy_id", bt.StrategyID).
		Str("symbol", bt.Symbol).
		Msg("backtest queued")

	return bt, nil
}

func (s *Service) GetBacktest(backtestID, userID string) (*Backtest, []BacktestTrade, error) {
	bt, err := s.db.GetBacktest(backtestID, userID)
	if err != nil {
		return nil, nil, err
	}
	if bt == nil {
		return nil, nil, ErrBacktestNotFound
	}

	trades, err := s.db.GetBacktestTrades(backtestID)
	if err != nil {
		return nil, nil, err
	}
	return bt, trades, nil
}

func (s *Service) GetUserBacktests(userID string, limit int) ([]Backtest, error) {
	return s.db.GetUserBacktests(userID, limit)
}

// CancelBacktest stops a queued or running backtest. A running engine
// observes the cancellation at its next progress checkpoint.
func (s *Service) CancelBacktest(backtestID, userID string) (*Backtest, error) {
	bt, err := s.db.GetBacktest(backtestID, userID)
	if err != nil {
		return nil, err
	}
	if bt == nil {
		return nil, ErrBacktestNotFound
	}
	if bt.Status != StatusPending && bt.Status != StatusRunning {
		return nil, ErrNotCancelable
	}

	bt.Status = StatusCancelled
	now := time.Now()
	bt.CompletedAt = &now
	if err := s.db.UpdateBacktest(bt); err != nil {
		return nil, fmt.Errorf("failed to cancel backtest: %w", err)
	}

	log.Info().Str("backtest_id", backtestID).Msg("backtest cancelled")
	return bt, nil
}

// GinHandlers provides HTTP handlers for backtest management
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

func (h *GinHandlers) CreateBacktestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateBacktestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request: "+err.Error())
			return
		}

		bt, err := h.service.CreateBacktest(middleware.UserID(c), &req)
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidRange):
				response.BadRequest(c, err.Error())
			case errors.Is(err, strategy.ErrStrategyNotFound):
				response.NotFound(c, "Strategy not found")
			default:
				log.Error().Err(err).Msg("failed to queue backtest")
				response.InternalError(c, "Failed to create backtest")
			}
			return
		}

		response.Success(c, bt)
	}
}

func (h *GinHandlers) ListBacktestsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 50
		if v := c.Query("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}

		backtests, err := h.service.GetUserBacktests(middleware.UserID(c), limit)
		if err != nil {
			log.Error().Err(err).Msg("failed to list backtests")
			response.InternalError(c, "Failed to fetch backtests")
			return
		}

		response.Success(c, gin.H{
			"backtests": backtests,
			"count":     len(backtests),
		})
	}
}

func (h *GinHandlers) GetBacktestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		bt, trades, err := h.service.GetBacktest(c.Param("id"), middleware.UserID(c))
		if err != nil {
			if errors.Is(err, ErrBacktestNotFound) {
				response.NotFound(c, "Backtest not found")
				return
			}
			log.Error().Err(err).Msg("failed to fetch backtest")
			response.InternalError(c, "Failed to fetch backtest")
			return
		}

		response.Success(c, gin.H{
			"backtest": bt,
			"trades":   trades,
		})
	}
}

func (h *GinHandlers) CancelBacktestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		bt, err := h.service.CancelBacktest(c.Param("id"), middleware.UserID(c))
		if err != nil {
			switch {
			case errors.Is(err, ErrBacktestNotFound):
				response.NotFound(c, "Backtest not found")
			case errors.Is(err, ErrNotCancelable):
				response.Conflict(c, err.Error())
			default:
				log.Error().Err(err).Msg("failed to cancel backtest")
				response.InternalError(c, "Failed to cancel backtest")
			}
			return
		}

		response.Success(c, bt)
	}
}
