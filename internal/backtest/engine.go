package backtest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/coinops/tradebot-api/internal/analytics"
	"github.com/coinops/tradebot-api/internal/exchange"
	"github.com/coinops/tradebot-api/internal/pnl"
	"github.com/coinops/tradebot-api/internal/strategy"
	"github.com/coinops/tradebot-api/internal/types"
)

var ErrNotEnoughData = errors.New("not enough candles for the requested range")

// Fraction of available cash committed per buy signal
const buyFraction = 0.1

// Result is the outcome of a completed engine run
type Result struct {
	FinalBalance float64
	Metrics      analytics.PerformanceMetrics
	Trades       []BacktestTrade
}

// Engine replays historical candles through a strategy and simulates fills
// with commission and slippage. Cash is tracked in decimals so repeated
// fee arithmetic cannot drift.
type Engine struct {
	gateway exchange.Gateway
}

func NewEngine(gateway exchange.Gateway) *Engine {
	return &Engine{gateway: gateway}
}

// Run executes a backtest. progress is called with a 0..1 fraction as bars
// are consumed; pass nil to skip reporting.
func (e *Engine) Run(ctx context.Context, bt *Backtest, cfg *strategy.StrategyConfig, progress func(float64)) (*Result, error) {
	signaler, err := strategy.NewSignaler(cfg.Type, cfg.Params)
	if err != nil {
		return nil, err
	}

	candles, err := e.gateway.Candles(ctx, bt.Symbol, bt.Timeframe, bt.StartTime, bt.EndTime)
	if err != nil {
		return nil, fmt.Errorf("failed to load candles: %w", err)
	}
	if len(candles) < 2 {
		return nil, ErrNotEnoughData
	}

	cash := decimal.NewFromFloat(bt.InitialBalance)
	position := 0.0

	// In-memory buy ledger for FIFO cost-basis resolution. Consumed lots are
	// dropped after each full exit so later sells do not rematch them.
	var ledger []types.Trade
	var nextLedgerID uint = 1

	var trades []BacktestTrade
	var closed []analytics.ClosedTrade

	for i, candle := range candles {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		signal := signaler(candles, i)

		switch signal {
		case strategy.SignalBuy:
			spend := cash.Mul(decimal.NewFromFloat(buyFraction))
			if spend.LessThanOrEqual(decimal.Zero) {
				break
			}
			price := candle.Close * (1 + bt.Slippage)
			priceDec := decimal.NewFromFloat(price)
			qty, _ := spend.Div(priceDec.Mul(decimal.NewFromFloat(1 + bt.Commission))).Float64()
			if qty <= 0 {
				break
			}
			fee := price * qty * bt.Commission

			cash = cash.Sub(decimal.NewFromFloat(price * qty)).Sub(decimal.NewFromFloat(fee))
			position += qty

			entry := types.Trade{
				Symbol:         bt.Symbol,
				Side:           types.SideBuy,
				Price:          price,
				FilledQuantity: qty,
				Status:         types.StatusFilled,
				ExecutedAt:     candle.OpenTime,
			}
			entry.ID = nextLedgerID
			nextLedgerID++
			ledger = append(ledger, entry)

			trades = append(trades, BacktestTrade{
				BacktestID: bt.BacktestID,
				Symbol:     bt.Symbol,
				Side:       types.SideBuy,
				Quantity:   qty,
				Price:      price,
				Fee:        fee,
				SignalType: signal,
				ExecutedAt: candle.OpenTime,
			})

		case strategy.SignalSell:
			if position <= 0 {
				break
			}
			price := candle.Close * (1 - bt.Slippage)
			qty := position
			fee := price * qty * bt.Commission

			realized, _ := pnl.ResolveFromFills(ledger, qty, price)

			cash = cash.Add(decimal.NewFromFloat(price * qty)).Sub(decimal.NewFromFloat(fee))
			position = 0
			ledger = ledger[:0]

			trades = append(trades, BacktestTrade{
				BacktestID: bt.BacktestID,
				Symbol:     bt.Symbol,
				Side:       types.SideSell,
				Quantity:   qty,
				Price:      price,
				Fee:        fee,
				PNL:        realized,
				SignalType: signal,
				ExecutedAt: candle.OpenTime,
			})
			closed = append(closed, analytics.ClosedTrade{
				PNL:      realized,
				ClosedAt: candle.OpenTime,
			})
		}

		if progress != nil && (i%50 == 0 || i == len(candles)-1) {
			progress(float64(i+1) / float64(len(candles)))
		}
	}

	// Mark any residual position at the last close
	finalBalance, _ := cash.Float64()
	if position > 0 {
		finalBalance += position * candles[len(candles)-1].Close
	}

	dailyReturns := analytics.DailyReturns(closed, bt.InitialBalance)
	metrics := analytics.ComputeMetrics(closed, bt.InitialBalance, finalBalance, dailyReturns, nil)
	metrics.MaxDrawdownPct, metrics.MaxDrawdownDuration = analytics.MaxDrawdown(
		analytics.EquityCurve(closed, bt.InitialBalance))

	log.Info().
		Str("backtest_id", bt.BacktestID).
		Str("symbol", bt.Symbol).
		Int("candles", len(candles)).
		Int("trades", len(trades)).
		Float64("final_balance", finalBalance).
		Msg("backtest run finished")

	return &Result{
		FinalBalance: finalBalance,
		Metrics:      metrics,
		Trades:       trades,
	}, nil
}
