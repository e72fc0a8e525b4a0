// Package analytics computes trading performance statistics from closed
// trade sets and equity curves. Every function here is a pure function of
// its inputs: statistical edge cases (empty trade sets, single data points,
// zero variance) yield the documented neutral value instead of an error, so
// a dashboard render never fails on degenerate history.
package analytics

import (
	"math"
	"sort"
	"time"
)

// Annualisation assumes 252 trading days and a fixed 2% risk-free rate.
const (
	tradingDaysPerYear = 252
	riskFreeRate       = 0.02
)

// ClosedTrade is the minimal view of a completed trade the aggregator needs
type ClosedTrade struct {
	PNL      float64
	ClosedAt time.Time
}

// PerformanceMetrics is a computed snapshot of strategy performance. It is
// immutable once computed; a fresh request recomputes rather than updates.
type PerformanceMetrics struct {
	TotalReturn    float64 `json:"total_return"`
	TotalReturnPct float64 `json:"total_return_pct"`
	TotalTrades    int     `json:"total_trades"`
	WinningTrades  int     `json:"winning_trades"`
	LosingTrades   int     `json:"losing_trades"`

	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	SortinoRatio float64 `json:"sortino_ratio"`

	MaxDrawdownPct      float64 `json:"max_drawdown_pct"`
	MaxDrawdownDuration int     `json:"max_drawdown_duration"`
	Volatility          float64 `json:"volatility"`
	VaR95               float64 `json:"var_95"`

	AvgTradeReturn      float64 `json:"avg_trade_return"`
	AvgWinningTrade     float64 `json:"avg_winning_trade"`
	AvgLosingTrade      float64 `json:"avg_losing_trade"`
	LargestWinningTrade float64 `json:"largest_winning_trade"`
	LargestLosingTrade  float64 `json:"largest_losing_trade"`

	Beta        float64 `json:"beta"`
	Alpha       float64 `json:"alpha"`
	Correlation float64 `json:"correlation"`
}

// ComputeMetrics builds a PerformanceMetrics snapshot from a closed trade
// set. dailyReturns is the per-day return series derived from the equity
// curve (see DailyReturns); benchmarkReturns may be nil, in which case
// beta/alpha/correlation stay at their zero values.
func ComputeMetrics(trades []ClosedTrade, initialBalance, finalBalance float64, dailyReturns, benchmarkReturns []float64) PerformanceMetrics {
	var m PerformanceMetrics
	m.computeBasic(trades, initialBalance, finalBalance)
	m.computeAdvanced(dailyReturns, benchmarkReturns)
	return m
}

func (m *PerformanceMetrics) computeBasic(trades []ClosedTrade, initialBalance, finalBalance float64) {
	if len(trades) == 0 {
		return
	}

	m.TotalTrades = len(trades)
	m.TotalReturn = finalBalance - initialBalance
	if initialBalance > 0 {
		m.TotalReturnPct = m.TotalReturn / initialBalance * 100
	}

	var grossProfit, grossLoss, totalPNL float64
	for _, t := range trades {
		totalPNL += t.PNL
		switch {
		case t.PNL > 0:
			m.WinningTrades++
			grossProfit += t.PNL
			if t.PNL > m.LargestWinningTrade {
				m.LargestWinningTrade = t.PNL
			}
		case t.PNL < 0:
			m.LosingTrades++
			grossLoss += -t.PNL
			if t.PNL < m.LargestLosingTrade {
				m.LargestLosingTrade = t.PNL
			}
		}
	}

	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	m.AvgTradeReturn = totalPNL / float64(m.TotalTrades)
	if m.WinningTrades > 0 {
		m.AvgWinningTrade = grossProfit / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLosingTrade = -grossLoss / float64(m.LosingTrades)
	}

	// Zero gross loss yields 0, not infinity. The display-formatting path in
	// the portfolio summary is the only place that reports "inf".
	if grossLoss > 0 {
		m.ProfitFactor = grossProfit / grossLoss
	}
}

func (m *PerformanceMetrics) computeAdvanced(dailyReturns, benchmarkReturns []float64) {
	if len(dailyReturns) < 2 {
		return
	}

	m.Volatility = stdev(dailyReturns) * math.Sqrt(tradingDaysPerYear)

	annualReturn := mean(dailyReturns) * tradingDaysPerYear
	if m.Volatility > 0 {
		m.SharpeRatio = (annualReturn - riskFreeRate) / m.Volatility
	}

	var downside []float64
	for _, r := range dailyReturns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if dd := stdev(downside) * math.Sqrt(tradingDaysPerYear); dd > 0 {
		m.SortinoRatio = (annualReturn - riskFreeRate) / dd
	}

	// Historical VaR needs a minimum sample before the percentile means much
	if n := len(dailyReturns); n >= 20 {
		sorted := append([]float64(nil), dailyReturns...)
		sort.Float64s(sorted)
		m.VaR95 = sorted[int(float64(n)*0.05)]
	}

	m.computeBenchmark(dailyReturns, benchmarkReturns, annualReturn)
}

// computeBenchmark fills beta, alpha and correlation against a benchmark
// series of the same length. Any degenerate denominator leaves the affected
// field at zero.
func (m *PerformanceMetrics) computeBenchmark(dailyReturns, benchmarkReturns []float64, annualReturn float64) {
	n := len(dailyReturns)
	if len(benchmarkReturns) != n || n < 2 {
		return
	}

	meanStrategy := mean(dailyReturns)
	meanBenchmark := mean(benchmarkReturns)

	var sumProducts, sumSqStrategy, sumSqBenchmark float64
	for i := 0; i < n; i++ {
		ds := dailyReturns[i] - meanStrategy
		db := benchmarkReturns[i] - meanBenchmark
		sumProducts += ds * db
		sumSqStrategy += ds * ds
		sumSqBenchmark += db * db
	}

	denominator := math.Sqrt(sumSqStrategy * sumSqBenchmark)
	if denominator <= 0 {
		return
	}
	m.Correlation = sumProducts / denominator

	benchmarkVariance := sumSqBenchmark / float64(n-1)
	if benchmarkVariance <= 0 {
		return
	}
	covariance := sumProducts / float64(n-1)
	m.Beta = covariance / benchmarkVariance

	benchmarkAnnual := meanBenchmark * tradingDaysPerYear
	m.Alpha = annualReturn - (riskFreeRate + m.Beta*(benchmarkAnnual-riskFreeRate))
}

// MaxDrawdown walks an equity curve tracking the running peak and returns
// the deepest peak-to-trough decline as a percentage together with its
// duration in curve points. Fewer than two points yields (0, 0).
func MaxDrawdown(equityCurve []float64) (pct float64, duration int) {
	if len(equityCurve) < 2 {
		return 0, 0
	}

	peak := equityCurve[0]
	maxDrawdown := 0.0
	maxDuration := 0
	currentDuration := 0

	for _, value := range equityCurve {
		if value > peak {
			peak = value
			currentDuration = 0
			continue
		}
		currentDuration++
		drawdown := (peak - value) / peak
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
			maxDuration = currentDuration
		}
	}

	return maxDrawdown * 100, maxDuration
}

// EquityCurve replays trade PnLs against an initial balance and returns the
// cumulative balance series, starting at the initial balance itself.
func EquityCurve(trades []ClosedTrade, initialBalance float64) []float64 {
	curve := make([]float64, 0, len(trades)+1)
	balance := initialBalance
	curve = append(curve, balance)
	for _, t := range trades {
		balance += t.PNL
		curve = append(curve, balance)
	}
	return curve
}

// DailyReturns groups trade PnL by close day and expresses each day's PnL as
// a percentage of the balance carried into that day.
func DailyReturns(trades []ClosedTrade, initialBalance float64) []float64 {
	if len(trades) == 0 {
		return nil
	}

	dailyPNL := make(map[time.Time]float64)
	for _, t := range trades {
		day := t.ClosedAt.UTC().Truncate(24 * time.Hour)
		dailyPNL[day] += t.PNL
	}

	days := make([]time.Time, 0, len(dailyPNL))
	for day := range dailyPNL {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	balance := initialBalance
	returns := make([]float64, 0, len(days))
	for _, day := range days {
		var r float64
		if balance != 0 {
			r = dailyPNL[day] / balance * 100
		}
		returns = append(returns, r)
		balance += dailyPNL[day]
	}
	return returns
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdev is the sample standard deviation; fewer than two values yields 0
func stdev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	m := mean(values)
	var sumSq float64
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n-1))
}
