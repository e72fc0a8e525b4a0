package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinops/tradebot-api/internal/strategy"
	"github.com/coinops/tradebot-api/internal/types"
)

type stubGateway struct {
	candles []types.Candle
}

func (g *stubGateway) Ticker(ctx context.Context, symbol string) (*types.Ticker, error) {
	return &types.Ticker{Symbol: symbol, Last: 100}, nil
}

func (g *stubGateway) Candles(ctx context.Context, symbol, interval string, start, end time.Time) ([]types.Candle, error) {
	return g.candles, nil
}

func (g *stubGateway) Balances(ctx context.Context) (map[string]float64, error) {
	return map[string]float64{"USDT": 100000}, nil
}

func candlesFromCloses(closes []float64) []types.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]types.Candle, len(closes))
	for i, c := range closes {
		candles[i] = types.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     c,
			High:     c,
			Low:      c,
			Close:    c,
			Volume:   1,
		}
	}
	return candles
}

func gridConfig() *strategy.StrategyConfig {
	return &strategy.StrategyConfig{
		StrategyID: "strat-1",
		Type:       strategy.TypeGrid,
		Symbol:     "BTC/USDT",
		Timeframe:  "1h",
		Params:     strategy.Params{GridStep: 0.05},
	}
}

func TestEngineRoundTripNoCosts(t *testing.T) {
	// Price drops one grid band then recovers: one buy, one full exit
	gateway := &stubGateway{candles: candlesFromCloses([]float64{100, 100, 94, 100})}
	engine := NewEngine(gateway)

	bt := &Backtest{
		BacktestID:     "bt-1",
		Symbol:         "BTC/USDT",
		Timeframe:      "1h",
		StartTime:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndTime:        time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC),
		InitialBalance: 10000,
		Commission:     0,
		Slippage:       0,
	}

	result, err := engine.Run(context.Background(), bt, gridConfig(), nil)
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)
	buy, sell := result.Trades[0], result.Trades[1]
	assert.Equal(t, types.SideBuy, buy.Side)
	assert.Equal(t, types.SideSell, sell.Side)

	// 10% of cash at 94, exited at 100
	expectedQty := 1000.0 / 94
	assert.InDelta(t, expectedQty, buy.Quantity, 1e-9)
	assert.InDelta(t, expectedQty*(100-94), sell.PNL, 1e-9)
	assert.InDelta(t, 10000+expectedQty*6, result.FinalBalance, 1e-9)

	assert.Equal(t, 1, result.Metrics.TotalTrades)
	assert.Equal(t, 1, result.Metrics.WinningTrades)
	assert.Equal(t, 100.0, result.Metrics.WinRate)
}

func TestEngineAppliesCommissionAndSlippage(t *testing.T) {
	gateway := &stubGateway{candles: candlesFromCloses([]float64{100, 100, 94, 100})}
	engine := NewEngine(gateway)

	bt := &Backtest{
		BacktestID:     "bt-2",
		Symbol:         "BTC/USDT",
		Timeframe:      "1h",
		StartTime:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndTime:        time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC),
		InitialBalance: 10000,
		Commission:     DefaultCommission,
		Slippage:       DefaultSlippage,
	}

	result, err := engine.Run(context.Background(), bt, gridConfig(), nil)
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)
	buy, sell := result.Trades[0], result.Trades[1]

	assert.InDelta(t, 94*(1+DefaultSlippage), buy.Price, 1e-9)
	assert.InDelta(t, 100*(1-DefaultSlippage), sell.Price, 1e-9)
	assert.Greater(t, buy.Fee, 0.0)
	assert.Greater(t, sell.Fee, 0.0)

	// Realized PnL excludes fees; the cash balance pays them
	assert.InDelta(t, sell.Quantity*(sell.Price-buy.Price), sell.PNL, 1e-9)
	assert.InDelta(t, 10000+sell.PNL-buy.Fee-sell.Fee, result.FinalBalance, 1e-9)
}

func TestEngineMarksOpenPositionAtLastClose(t *testing.T) {
	// Drops a band and never recovers: the position stays open
	gateway := &stubGateway{candles: candlesFromCloses([]float64{100, 100, 94, 94})}
	engine := NewEngine(gateway)

	bt := &Backtest{
		BacktestID:     "bt-3",
		Symbol:         "BTC/USDT",
		Timeframe:      "1h",
		StartTime:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndTime:        time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC),
		InitialBalance: 10000,
	}

	result, err := engine.Run(context.Background(), bt, gridConfig(), nil)
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, types.SideBuy, result.Trades[0].Side)
	// Residual position marked at 94; only fees and slippage are lost
	assert.InDelta(t, 10000, result.FinalBalance, 15)
	assert.Equal(t, 0, result.Metrics.TotalTrades)
}

func TestEngineNotEnoughData(t *testing.T) {
	gateway := &stubGateway{candles: candlesFromCloses([]float64{100})}
	engine := NewEngine(gateway)

	bt := &Backtest{
		BacktestID:     "bt-4",
		Symbol:         "BTC/USDT",
		Timeframe:      "1h",
		StartTime:      time.Now().Add(-time.Hour),
		EndTime:        time.Now(),
		InitialBalance: 10000,
	}

	_, err := engine.Run(context.Background(), bt, gridConfig(), nil)
	assert.ErrorIs(t, err, ErrNotEnoughData)
}

func TestEngineContextCancellation(t *testing.T) {
	gateway := &stubGateway{candles: candlesFromCloses(make([]float64, 1000))}
	engine := NewEngine(gateway)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bt := &Backtest{
		BacktestID:     "bt-5",
		Symbol:         "BTC/USDT",
		Timeframe:      "1h",
		StartTime:      time.Now().Add(-time.Hour),
		EndTime:        time.Now(),
		InitialBalance: 10000,
	}

	_, err := engine.Run(ctx, bt, gridConfig(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngineReportsProgress(t *testing.T) {
	gateway := &stubGateway{candles: candlesFromCloses([]float64{100, 100, 94, 100})}
	engine := NewEngine(gateway)

	bt := &Backtest{
		BacktestID:     "bt-6",
		Symbol:         "BTC/USDT",
		Timeframe:      "1h",
		StartTime:      time.Now().Add(-4 * time.Hour),
		EndTime:        time.Now(),
		InitialBalance: 10000,
	}

	var fractions []float64
	_, err := engine.Run(context.Background(), bt, gridConfig(), func(f float64) {
		fractions = append(fractions, f)
	})
	require.NoError(t, err)

	require.NotEmpty(t, fractions)
	assert.Equal(t, 1.0, fractions[len(fractions)-1])
}
