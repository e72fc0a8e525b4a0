package trading

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/coinops/tradebot-api/internal/types"
)

type fixedGateway struct {
	price float64
}

func (g *fixedGateway) Ticker(ctx context.Context, symbol string) (*types.Ticker, error) {
	return &types.Ticker{
		Symbol:    symbol,
		Last:      g.price,
		Bid:       g.price,
		Ask:       g.price,
		Timestamp: time.Now(),
	}, nil
}

func (g *fixedGateway) Candles(ctx context.Context, symbol, interval string, start, end time.Time) ([]types.Candle, error) {
	return nil, nil
}

func (g *fixedGateway) Balances(ctx context.Context) (map[string]float64, error) {
	return map[string]float64{"USDT": 100000}, nil
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.New().String()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.Trade{}))
	return db
}

func insertFill(t *testing.T, db *gorm.DB, userID, symbol, side string, qty, price float64, executedAt time.Time) *types.Trade {
	t.Helper()

	trade := &types.Trade{
		TradeID:        uuid.New().String(),
		UserID:         userID,
		Symbol:         symbol,
		Side:           side,
		OrderType:      types.OrderTypeMarket,
		Quantity:       qty,
		Price:          price,
		FilledQuantity: qty,
		AveragePrice:   price,
		Status:         types.StatusFilled,
		Mode:           types.ModePaper,
		ExecutedAt:     executedAt,
	}
	require.NoError(t, db.Create(trade).Error)
	return trade
}

func TestGetBuyFillsOrdering(t *testing.T) {
	db := setupDB(t)
	store := NewDatabase(db)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	// Inserted newest first; the read path must return oldest first
	insertFill(t, db, "user-1", "BTC/USDT", types.SideBuy, 1, 300, base.Add(2*time.Hour))
	insertFill(t, db, "user-1", "BTC/USDT", types.SideBuy, 1, 100, base)
	insertFill(t, db, "user-1", "BTC/USDT", types.SideBuy, 1, 200, base.Add(time.Hour))
	insertFill(t, db, "user-1", "BTC/USDT", types.SideSell, 1, 400, base.Add(3*time.Hour))
	insertFill(t, db, "user-2", "BTC/USDT", types.SideBuy, 1, 999, base)

	fills, err := store.GetBuyFills(context.Background(), "user-1", "BTC/USDT")
	require.NoError(t, err)

	require.Len(t, fills, 3)
	assert.Equal(t, 100.0, fills[0].Price)
	assert.Equal(t, 200.0, fills[1].Price)
	assert.Equal(t, 300.0, fills[2].Price)
}

func TestGetBuyFillsTimestampTieBreak(t *testing.T) {
	db := setupDB(t)
	store := NewDatabase(db)
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	first := insertFill(t, db, "user-1", "ETH/USDT", types.SideBuy, 1, 100, ts)
	second := insertFill(t, db, "user-1", "ETH/USDT", types.SideBuy, 1, 200, ts)

	fills, err := store.GetBuyFills(context.Background(), "user-1", "ETH/USDT")
	require.NoError(t, err)

	require.Len(t, fills, 2)
	assert.Equal(t, first.ID, fills[0].ID)
	assert.Equal(t, second.ID, fills[1].ID)
}

func TestPlaceOrderSellResolvesFIFO(t *testing.T) {
	db := setupDB(t)
	svc := NewService(db, &fixedGateway{price: 250}, Options{})
	base := time.Now().UTC().Add(-time.Hour)

	insertFill(t, db, "user-1", "BTC/USDT", types.SideBuy, 1, 100, base)
	insertFill(t, db, "user-1", "BTC/USDT", types.SideBuy, 1, 200, base.Add(time.Minute))

	// Limit orders fill exactly at the limit price
	trade, err := svc.PlaceOrder(context.Background(), "user-1", &types.OrderRequest{
		Symbol:    "BTC/USDT",
		Side:      types.SideSell,
		OrderType: types.OrderTypeLimit,
		Quantity:  1.5,
		Price:     300,
	})
	require.NoError(t, err)

	// 1.5 * 300 - (1*100 + 0.5*200) = 250
	assert.Equal(t, types.StatusFilled, trade.Status)
	assert.InDelta(t, 250.0, trade.PNL, 1e-9)
}

func TestPlaceOrderOversellIsPureProfit(t *testing.T) {
	db := setupDB(t)
	svc := NewService(db, &fixedGateway{price: 300}, Options{})

	insertFill(t, db, "user-1", "BTC/USDT", types.SideBuy, 1, 100, time.Now().UTC().Add(-time.Hour))

	trade, err := svc.PlaceOrder(context.Background(), "user-1", &types.OrderRequest{
		Symbol:    "BTC/USDT",
		Side:      types.SideSell,
		OrderType: types.OrderTypeLimit,
		Quantity:  3,
		Price:     300,
	})
	require.NoError(t, err)

	// 3 * 300 - 100: the unmatched 2 units carry no cost basis
	assert.InDelta(t, 800.0, trade.PNL, 1e-9)
}

func TestPlaceOrderRejectOversold(t *testing.T) {
	db := setupDB(t)
	svc := NewService(db, &fixedGateway{price: 300}, Options{RejectOversold: true})

	insertFill(t, db, "user-1", "BTC/USDT", types.SideBuy, 1, 100, time.Now().UTC().Add(-time.Hour))

	_, err := svc.PlaceOrder(context.Background(), "user-1", &types.OrderRequest{
		Symbol:    "BTC/USDT",
		Side:      types.SideSell,
		OrderType: types.OrderTypeLimit,
		Quantity:  3,
		Price:     300,
	})
	require.Error(t, err)
}

func TestPlaceOrderInvalidSide(t *testing.T) {
	db := setupDB(t)
	svc := NewService(db, &fixedGateway{price: 100}, Options{})

	_, err := svc.PlaceOrder(context.Background(), "user-1", &types.OrderRequest{
		Symbol:   "BTC/USDT",
		Side:     "short",
		Quantity: 1,
	})
	assert.ErrorIs(t, err, ErrInvalidSide)
}

func TestGetOpenPositions(t *testing.T) {
	db := setupDB(t)
	store := NewDatabase(db)
	base := time.Now().UTC().Add(-time.Hour)

	insertFill(t, db, "user-1", "BTC/USDT", types.SideBuy, 2, 100, base)
	insertFill(t, db, "user-1", "BTC/USDT", types.SideBuy, 2, 200, base.Add(time.Minute))
	insertFill(t, db, "user-1", "BTC/USDT", types.SideSell, 1, 250, base.Add(2*time.Minute))
	// Fully closed symbol should not appear
	insertFill(t, db, "user-1", "ETH/USDT", types.SideBuy, 1, 50, base)
	insertFill(t, db, "user-1", "ETH/USDT", types.SideSell, 1, 60, base.Add(time.Minute))

	positions, err := store.GetOpenPositions("user-1")
	require.NoError(t, err)

	require.Len(t, positions, 1)
	pos := positions[0]
	assert.Equal(t, "BTC/USDT", pos.Symbol)
	assert.InDelta(t, 3.0, pos.PositionSize, 1e-9)
	assert.InDelta(t, 150.0, pos.AvgBuyPrice, 1e-9) // (2*100 + 2*200) / 4
}

func TestCancelTrade(t *testing.T) {
	db := setupDB(t)
	svc := NewService(db, &fixedGateway{price: 100}, Options{})

	pending := &types.Trade{
		TradeID:    uuid.New().String(),
		UserID:     "user-1",
		Symbol:     "BTC/USDT",
		Side:       types.SideBuy,
		OrderType:  types.OrderTypeLimit,
		Quantity:   1,
		Price:      90,
		Status:     types.StatusPending,
		Mode:       types.ModePaper,
		ExecutedAt: time.Now().UTC(),
	}
	require.NoError(t, db.Create(pending).Error)

	cancelled, err := svc.CancelTrade(pending.TradeID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, cancelled.Status)

	// A filled trade cannot be cancelled
	filled := insertFill(t, db, "user-1", "BTC/USDT", types.SideBuy, 1, 100, time.Now().UTC())
	_, err = svc.CancelTrade(filled.TradeID, "user-1")
	assert.ErrorIs(t, err, ErrTradeNotCancelable)

	_, err = svc.CancelTrade("missing", "user-1")
	assert.ErrorIs(t, err, ErrTradeNotFound)
}

func TestGetPerformanceLosingDerivedFromTotal(t *testing.T) {
	db := setupDB(t)
	svc := NewService(db, &fixedGateway{price: 100}, Options{})
	base := time.Now().UTC().Add(-time.Hour)

	withPNL := func(pnl float64, at time.Time) {
		trade := insertFill(t, db, "user-1", "BTC/USDT", types.SideSell, 1, 100, at)
		trade.PNL = pnl
		require.NoError(t, db.Save(trade).Error)
	}

	withPNL(50, base)
	withPNL(-20, base.Add(time.Minute))
	withPNL(0, base.Add(2*time.Minute))

	perf, err := svc.GetPerformance("user-1", 30)
	require.NoError(t, err)

	assert.Equal(t, 3, perf.TotalTrades)
	assert.Equal(t, 1, perf.WinningTrades)
	// Break-even trades count as losers on this path
	assert.Equal(t, 2, perf.LosingTrades)
	assert.InDelta(t, 100.0/3.0, perf.WinRate, 1e-9)
	assert.InDelta(t, 30.0, perf.TotalPNL, 1e-9)
}

func TestGetPortfolioProfitFactorInf(t *testing.T) {
	db := setupDB(t)
	svc := NewService(db, &fixedGateway{price: 100}, Options{})
	base := time.Now().UTC().Add(-time.Hour)

	winner := insertFill(t, db, "user-1", "BTC/USDT", types.SideSell, 1, 100, base)
	winner.PNL = 40
	require.NoError(t, db.Save(winner).Error)

	portfolio, err := svc.GetPortfolio(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, "inf", portfolio.ProfitFactor)
	assert.Equal(t, 100.0, portfolio.WinRate)
	assert.InDelta(t, 40.0, portfolio.TotalRealizedPNL, 1e-9)

	loser := insertFill(t, db, "user-1", "BTC/USDT", types.SideSell, 1, 100, base.Add(time.Minute))
	loser.PNL = -20
	require.NoError(t, db.Save(loser).Error)

	portfolio, err = svc.GetPortfolio(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "2.00", portfolio.ProfitFactor)
}

func TestTradeHistoryFilters(t *testing.T) {
	db := setupDB(t)
	store := NewDatabase(db)
	base := time.Now().UTC().Add(-2 * time.Hour)

	insertFill(t, db, "user-1", "BTC/USDT", types.SideBuy, 1, 100, base)
	insertFill(t, db, "user-1", "ETH/USDT", types.SideBuy, 1, 50, base.Add(time.Minute))
	insertFill(t, db, "user-1", "BTC/USDT", types.SideSell, 1, 110, base.Add(2*time.Minute))

	trades, total, err := store.GetUserTrades("user-1", TradeFilters{Symbol: "BTC/USDT"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, trades, 2)
	// Newest first
	assert.Equal(t, types.SideSell, trades[0].Side)

	trades, total, err = store.GetUserTrades("user-1", TradeFilters{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, trades, 1)
}
