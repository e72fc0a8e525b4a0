// Package trading owns the trade ledger: order placement, paper execution,
// trade history, open positions and the portfolio dashboard views.
package trading

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/coinops/tradebot-api/internal/exchange"
	"github.com/coinops/tradebot-api/internal/pnl"
	"github.com/coinops/tradebot-api/internal/risk"
	"github.com/coinops/tradebot-api/internal/types"
)

var (
	ErrTradeNotFound      = errors.New("trade not found")
	ErrTradeNotCancelable = errors.New("trade can no longer be cancelled")
	ErrInvalidSide        = errors.New("side must be buy or sell")
	ErrInvalidOrderType   = errors.New("order type must be market or limit")
)

type Service struct {
	db        *Database
	resolver  *pnl.Resolver
	gateway   exchange.Gateway
	validator *risk.Validator
	feeRate   float64

	// sellLocks serialises sells per (user, symbol) so concurrent sells
	// cannot both resolve against the same buy history snapshot.
	sellLocks sync.Map
}

// Options tunes service behaviour
type Options struct {
	FeeRate        float64
	RejectOversold bool
}

func NewService(db *gorm.DB, gateway exchange.Gateway, opts Options) *Service {
	store := NewDatabase(db)

	resolver := pnl.NewResolver(store)
	resolver.RejectOversold = opts.RejectOversold

	feeRate := opts.FeeRate
	if feeRate <= 0 {
		feeRate = 0.001
	}

	return &Service{
		db:        store,
		resolver:  resolver,
		gateway:   gateway,
		validator: risk.NewValidator(store, risk.DefaultLimits),
		feeRate:   feeRate,
	}
}

func (s *Service) sellLock(userID, symbol string) *sync.Mutex {
	key := userID + "|" + symbol
	lock, _ := s.sellLocks.LoadOrStore(key, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// PlaceOrder validates, executes and records a paper order. Sells resolve
// their realized PnL against the buy ledger before the fill is persisted, so
// a sell never matches against itself.
func (s *Service) PlaceOrder(ctx context.Context, userID string, req *types.OrderRequest) (*types.Trade, error) {
	if req.Side != types.SideBuy && req.Side != types.SideSell {
		return nil, ErrInvalidSide
	}
	if req.OrderType == "" {
		req.OrderType = types.OrderTypeMarket
	}
	if req.OrderType != types.OrderTypeMarket && req.OrderType != types.OrderTypeLimit {
		return nil, ErrInvalidOrderType
	}

	ticker, err := s.gateway.Ticker(ctx, req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market price for %s: %w", req.Symbol, err)
	}

	assessment, err := s.validator.ValidateOrder(ctx, userID, req, ticker.Last)
	if err != nil {
		return nil, err
	}

	fill := exchange.SimulateFill(req, ticker.Last, s.feeRate)

	trade := &types.Trade{
		TradeID:        uuid.New().String(),
		UserID:         userID,
		StrategyID:     req.StrategyID,
		Exchange:       req.Exchange,
		Symbol:         req.Symbol,
		Side:           req.Side,
		OrderType:      req.OrderType,
		Quantity:       req.Quantity,
		Price:          fill.Price,
		FilledQuantity: fill.Quantity,
		AveragePrice:   fill.Price,
		Fee:            fill.Fee,
		FeeCurrency:    "USDT",
		Status:         types.StatusFilled,
		Mode:           types.ModePaper,
		ExecutedAt:     fill.Timestamp,
	}

	if req.Side == types.SideSell {
		lock := s.sellLock(userID, req.Symbol)
		lock.Lock()
		defer lock.Unlock()

		realized, err := s.resolver.ResolveSellPNL(ctx, userID, req.Symbol, fill.Quantity, fill.Price)
		if err != nil {
			return nil, err
		}
		trade.PNL = realized
	}

	if err := s.db.CreateTrade(trade); err != nil {
		return nil, fmt.Errorf("failed to record trade: %w", err)
	}

	log.Info().
		Str("user_id", userID).
		Str("trade_id", trade.TradeID).
		Str("symbol", trade.Symbol).
		Str("side", trade.Side).
		Float64("quantity", trade.FilledQuantity).
		Float64("price", trade.AveragePrice).
		Float64("pnl", trade.PNL).
		Str("risk_level", assessment.Level).
		Msg("order executed")

	return trade, nil
}

// CancelTrade cancels a trade that has not filled yet
func (s *Service) CancelTrade(tradeID, userID string) (*types.Trade, error) {
	trade, err := s.db.GetTrade(tradeID, userID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, ErrTradeNotFound
	}
	if trade.Status != types.StatusPending && trade.Status != types.StatusPartiallyFilled {
		return nil, ErrTradeNotCancelable
	}

	trade.Status = types.StatusCancelled
	if err := s.db.UpdateTrade(trade); err != nil {
		return nil, fmt.Errorf("failed to cancel trade: %w", err)
	}
	return trade, nil
}

func (s *Service) GetTrade(tradeID, userID string) (*types.Trade, error) {
	trade, err := s.db.GetTrade(tradeID, userID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, ErrTradeNotFound
	}
	return trade, nil
}

func (s *Service) GetTradeHistory(userID string, filters TradeFilters) ([]types.Trade, int64, error) {
	return s.db.GetUserTrades(userID, filters)
}

// GetPositions returns open positions with a mark-to-market view per symbol.
// A failed quote degrades that symbol to a zero mark rather than failing the
// whole response.
func (s *Service) GetPositions(ctx context.Context, userID string) ([]types.Position, map[string]types.UnrealizedPNL, error) {
	positions, err := s.db.GetOpenPositions(userID)
	if err != nil {
		return nil, nil, err
	}

	unrealized := make(map[string]types.UnrealizedPNL, len(positions))
	for _, pos := range positions {
		mark := 0.0
		if ticker, err := s.gateway.Ticker(ctx, pos.Symbol); err != nil {
			log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("quote unavailable, marking position at zero")
		} else {
			mark = ticker.Last
		}

		costBasis := pos.PositionSize * pos.AvgBuyPrice
		currentValue := pos.PositionSize * mark
		upnl := currentValue - costBasis
		pct := 0.0
		if costBasis > 0 {
			pct = upnl / costBasis * 100
		}

		unrealized[pos.Symbol] = types.UnrealizedPNL{
			Symbol:       pos.Symbol,
			PNL:          upnl,
			PNLPct:       pct,
			CurrentPrice: mark,
			AvgBuyPrice:  pos.AvgBuyPrice,
			PositionSize: pos.PositionSize,
			CurrentValue: currentValue,
			CostBasis:    costBasis,
		}
	}

	return positions, unrealized, nil
}

// GetPortfolio assembles the dashboard portfolio summary
func (s *Service) GetPortfolio(ctx context.Context, userID string) (*types.PortfolioResponse, error) {
	positions, unrealized, err := s.GetPositions(ctx, userID)
	if err != nil {
		return nil, err
	}

	totalUnrealized := 0.0
	positionValues := 0.0
	for _, u := range unrealized {
		totalUnrealized += u.PNL
		positionValues += u.CurrentValue
	}

	totalRealized, err := s.db.TotalRealizedPNL(userID)
	if err != nil {
		return nil, err
	}

	sells, err := s.db.GetClosedSells(userID, time.Time{})
	if err != nil {
		return nil, err
	}

	winning := 0
	grossProfit := 0.0
	grossLoss := 0.0
	for _, t := range sells {
		if t.PNL > 0 {
			winning++
			grossProfit += t.PNL
		} else if t.PNL < 0 {
			grossLoss += -t.PNL
		}
	}

	winRate := 0.0
	if len(sells) > 0 {
		winRate = float64(winning) / float64(len(sells)) * 100
	}

	profitFactor := "inf"
	if grossLoss > 0 {
		profitFactor = strconv.FormatFloat(grossProfit/grossLoss, 'f', 2, 64)
	}

	today, err := s.db.TodayStats(userID)
	if err != nil {
		return nil, err
	}

	return &types.PortfolioResponse{
		Positions:          positions,
		UnrealizedPNL:      unrealized,
		TotalUnrealizedPNL: totalUnrealized,
		TotalRealizedPNL:   totalRealized,
		TotalPNL:           totalRealized + totalUnrealized,
		PositionValues:     positionValues,
		WinRate:            winRate,
		TotalTrades:        len(sells),
		ProfitFactor:       profitFactor,
		Today:              *today,
	}, nil
}

// GetPerformance returns the rolling-window dashboard metrics. Losing trades
// are derived as total minus winning on this path.
func (s *Service) GetPerformance(userID string, days int) (*types.PerformanceResponse, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	stats, err := s.db.GetWindowStats(userID, since)
	if err != nil {
		return nil, err
	}

	winRate := 0.0
	avgSize := 0.0
	if stats.TotalTrades > 0 {
		winRate = float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100
		avgSize = stats.TotalVolume / float64(stats.TotalTrades)
	}

	return &types.PerformanceResponse{
		TotalTrades:   stats.TotalTrades,
		WinningTrades: stats.WinningTrades,
		LosingTrades:  stats.TotalTrades - stats.WinningTrades,
		WinRate:       winRate,
		TotalVolume:   stats.TotalVolume,
		TotalFees:     stats.TotalFees,
		AvgTradeSize:  avgSize,
		BestTrade:     stats.BestTrade,
		WorstTrade:    stats.WorstTrade,
		TotalPNL:      stats.TotalPNL,
		PeriodDays:    days,
	}, nil
}
