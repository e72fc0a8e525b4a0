package strategy

import (
	"fmt"

	"github.com/coinops/tradebot-api/internal/types"
)

// RSI computes the relative strength index over closing prices using Wilder
// smoothing. Returns one value per input bar; the first period bars are 0
// while the indicator warms up.
func RSI(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}

	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gainSum += change
		} else {
			lossSum -= change
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)

	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// SMA computes the simple moving average ending at each bar. Bars before the
// window fills are 0.
func SMA(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	if period <= 0 || len(closes) < period {
		return out
	}

	var sum float64
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// Signaler evaluates one bar of a candle series and emits a trade signal.
// Index i is the bar under evaluation; earlier bars are history.
type Signaler func(candles []types.Candle, i int) string

// NewSignaler builds the evaluation function for a strategy type. Parameters
// left at zero get the conventional defaults.
func NewSignaler(strategyType string, params Params) (Signaler, error) {
	switch strategyType {
	case TypeRSI:
		return newRSISignaler(params), nil
	case TypeMACrossover:
		return newCrossoverSignaler(params), nil
	case TypeGrid:
		return newGridSignaler(params), nil
	default:
		return nil, fmt.Errorf("unknown strategy type %q", strategyType)
	}
}

func newRSISignaler(params Params) Signaler {
	period := params.Period
	if period <= 0 {
		period = 14
	}
	oversold := params.Oversold
	if oversold <= 0 {
		oversold = 30
	}
	overbought := params.Overbought
	if overbought <= 0 {
		overbought = 70
	}

	return func(candles []types.Candle, i int) string {
		if i <= period {
			return SignalHold
		}
		closes := closesUpTo(candles, i)
		rsi := RSI(closes, period)
		switch {
		case rsi[i] < oversold:
			return SignalBuy
		case rsi[i] > overbought:
			return SignalSell
		default:
			return SignalHold
		}
	}
}

func newCrossoverSignaler(params Params) Signaler {
	fast := params.FastPeriod
	if fast <= 0 {
		fast = 10
	}
	slow := params.SlowPeriod
	if slow <= fast {
		slow = fast * 3
	}

	return func(candles []types.Candle, i int) string {
		if i < slow {
			return SignalHold
		}
		closes := closesUpTo(candles, i)
		fastMA := SMA(closes, fast)
		slowMA := SMA(closes, slow)

		// Signal only on the bar where the fast average crosses the slow one
		prevAbove := fastMA[i-1] > slowMA[i-1]
		nowAbove := fastMA[i] > slowMA[i]
		switch {
		case nowAbove && !prevAbove:
			return SignalBuy
		case !nowAbove && prevAbove:
			return SignalSell
		default:
			return SignalHold
		}
	}
}

// newGridSignaler anchors a price grid at the first close and trades the
// band the price moves into: buy when it drops a full step below the
// previous bar's band, sell when it rises one.
func newGridSignaler(params Params) Signaler {
	step := params.GridStep
	if step <= 0 {
		step = 0.01
	}

	return func(candles []types.Candle, i int) string {
		if i == 0 {
			return SignalHold
		}
		anchor := candles[0].Close
		if anchor <= 0 {
			return SignalHold
		}
		prevBand := gridBand(candles[i-1].Close, anchor, step)
		band := gridBand(candles[i].Close, anchor, step)
		switch {
		case band < prevBand:
			return SignalBuy
		case band > prevBand:
			return SignalSell
		default:
			return SignalHold
		}
	}
}

func gridBand(price, anchor, step float64) int {
	return int((price - anchor) / (anchor * step))
}

func closesUpTo(candles []types.Candle, i int) []float64 {
	closes := make([]float64, i+1)
	for j := 0; j <= i; j++ {
		closes[j] = candles[j].Close
	}
	return closes
}
