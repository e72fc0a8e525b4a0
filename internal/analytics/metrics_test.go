package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func closedTrades(pnls ...float64) []ClosedTrade {
	base := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	trades := make([]ClosedTrade, len(pnls))
	for i, p := range pnls {
		trades[i] = ClosedTrade{PNL: p, ClosedAt: base.AddDate(0, 0, i)}
	}
	return trades
}

func TestComputeMetricsBasic(t *testing.T) {
	trades := closedTrades(100, -50, 200, -25, 0)
	m := ComputeMetrics(trades, 10000, 10225, nil, nil)

	assert.Equal(t, 5, m.TotalTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 2, m.LosingTrades) // the break-even trade counts toward neither
	assert.InDelta(t, 40.0, m.WinRate, 1e-9)
	assert.InDelta(t, 225.0, m.TotalReturn, 1e-9)
	assert.InDelta(t, 2.25, m.TotalReturnPct, 1e-9)
	assert.InDelta(t, 45.0, m.AvgTradeReturn, 1e-9)
	assert.InDelta(t, 150.0, m.AvgWinningTrade, 1e-9)
	assert.InDelta(t, -37.5, m.AvgLosingTrade, 1e-9)
	assert.InDelta(t, 200.0, m.LargestWinningTrade, 1e-9)
	assert.InDelta(t, -50.0, m.LargestLosingTrade, 1e-9)
	assert.InDelta(t, 300.0/75.0, m.ProfitFactor, 1e-9)
}

func TestComputeMetricsEmptyTrades(t *testing.T) {
	m := ComputeMetrics(nil, 10000, 10000, nil, nil)

	assert.Equal(t, 0, m.TotalTrades)
	assert.Zero(t, m.WinRate)
	assert.Zero(t, m.ProfitFactor)
}

func TestComputeMetricsProfitFactorZeroLoss(t *testing.T) {
	// All winners: gross loss is zero and the primary path reports 0,
	// never infinity.
	m := ComputeMetrics(closedTrades(10, 20, 30), 1000, 1060, nil, nil)

	assert.Equal(t, 0, m.LosingTrades)
	assert.Zero(t, m.ProfitFactor)
}

func TestComputeMetricsSharpeSingleDataPoint(t *testing.T) {
	m := ComputeMetrics(closedTrades(10), 1000, 1010, []float64{0.5}, nil)

	assert.Zero(t, m.Volatility)
	assert.Zero(t, m.SharpeRatio)
	assert.Zero(t, m.SortinoRatio)
}

func TestComputeMetricsSortinoNoNegativeReturns(t *testing.T) {
	m := ComputeMetrics(closedTrades(10, 20), 1000, 1030, []float64{0.5, 0.7, 0.6}, nil)

	assert.Greater(t, m.Volatility, 0.0)
	assert.NotZero(t, m.SharpeRatio)
	assert.Zero(t, m.SortinoRatio)
}

func TestComputeMetricsVaR95(t *testing.T) {
	returns := make([]float64, 20)
	for i := range returns {
		returns[i] = float64(i) - 10 // -10 .. 9
	}
	m := ComputeMetrics(closedTrades(1), 1000, 1001, returns, nil)

	// index floor(0.05*20) = 1 of the sorted series
	assert.InDelta(t, -9.0, m.VaR95, 1e-9)

	// Below the 20-point minimum the metric stays at zero
	m = ComputeMetrics(closedTrades(1), 1000, 1001, returns[:19], nil)
	assert.Zero(t, m.VaR95)
}

func TestComputeMetricsBenchmark(t *testing.T) {
	returns := []float64{0.01, -0.02, 0.03, 0.01, -0.01}

	// Benchmark identical to the strategy: correlation 1, beta 1
	m := ComputeMetrics(closedTrades(1), 1000, 1001, returns, returns)
	assert.InDelta(t, 1.0, m.Correlation, 1e-9)
	assert.InDelta(t, 1.0, m.Beta, 1e-9)
	// alpha = annual - (rf + 1*(annual - rf)) = 0
	assert.InDelta(t, 0.0, m.Alpha, 1e-9)

	// Zero-variance benchmark: fields absorb the failure and stay zero
	flat := []float64{0.01, 0.01, 0.01, 0.01, 0.01}
	m = ComputeMetrics(closedTrades(1), 1000, 1001, returns, flat)
	assert.Zero(t, m.Beta)
	assert.Zero(t, m.Correlation)

	// Length mismatch is ignored entirely
	m = ComputeMetrics(closedTrades(1), 1000, 1001, returns, returns[:3])
	assert.Zero(t, m.Beta)
}

func TestComputeMetricsIdempotent(t *testing.T) {
	trades := closedTrades(100, -50, 75, -20)
	returns := []float64{0.5, -0.2, 0.4, -0.1}

	first := ComputeMetrics(trades, 10000, 10105, returns, nil)
	second := ComputeMetrics(trades, 10000, 10105, returns, nil)
	assert.Equal(t, first, second)
}

func TestMaxDrawdown(t *testing.T) {
	pct, duration := MaxDrawdown([]float64{100, 120, 90, 110, 80, 130})

	// Deepest decline is the 120 -> 80 descent
	assert.InDelta(t, 100.0/3.0, pct, 1e-6)
	assert.Equal(t, 3, duration)
}

func TestMaxDrawdownMonotonicCurve(t *testing.T) {
	pct, duration := MaxDrawdown([]float64{100, 110, 120, 130})
	assert.Zero(t, pct)
	assert.Zero(t, duration)
}

func TestMaxDrawdownDegenerateInput(t *testing.T) {
	pct, duration := MaxDrawdown(nil)
	assert.Zero(t, pct)
	assert.Zero(t, duration)

	pct, duration = MaxDrawdown([]float64{100})
	assert.Zero(t, pct)
	assert.Zero(t, duration)
}

func TestEquityCurve(t *testing.T) {
	curve := EquityCurve(closedTrades(100, -50, 25), 1000)
	assert.Equal(t, []float64{1000, 1100, 1050, 1075}, curve)
}

func TestDailyReturns(t *testing.T) {
	day1 := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	trades := []ClosedTrade{
		{PNL: 100, ClosedAt: day1},
		{PNL: -50, ClosedAt: day1.Add(2 * time.Hour)}, // same day, nets to +50
		{PNL: 210, ClosedAt: day1.AddDate(0, 0, 1)},
	}

	returns := DailyReturns(trades, 1000)
	assert.Len(t, returns, 2)
	assert.InDelta(t, 5.0, returns[0], 1e-9)  // 50/1000
	assert.InDelta(t, 20.0, returns[1], 1e-9) // 210/1050
}
