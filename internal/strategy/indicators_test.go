package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinops/tradebot-api/internal/types"
)

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

func TestRSIAllGains(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	rsi := RSI(closes, 3)

	// Warmup bars are zero, then pure gains pin RSI at 100
	assert.Equal(t, 0.0, rsi[2])
	assert.Equal(t, 100.0, rsi[3])
	assert.Equal(t, 100.0, rsi[7])
}

func TestRSIMixedSeries(t *testing.T) {
	closes := []float64{10, 11, 10, 11, 10, 11, 10}
	rsi := RSI(closes, 2)

	for i := 2; i < len(rsi); i++ {
		assert.Greater(t, rsi[i], 0.0)
		assert.Less(t, rsi[i], 100.0)
	}
}

func TestRSIShortSeries(t *testing.T) {
	rsi := RSI([]float64{1, 2}, 14)
	assert.Equal(t, []float64{0, 0}, rsi)
}

func TestSMA(t *testing.T) {
	sma := SMA([]float64{1, 2, 3, 4, 5}, 3)

	assert.Equal(t, 0.0, sma[1])
	assert.InDelta(t, 2.0, sma[2], 1e-9)
	assert.InDelta(t, 3.0, sma[3], 1e-9)
	assert.InDelta(t, 4.0, sma[4], 1e-9)
}

func TestCrossoverSignaler(t *testing.T) {
	signaler, err := NewSignaler(TypeMACrossover, Params{FastPeriod: 2, SlowPeriod: 4})
	require.NoError(t, err)

	// Downtrend then sharp reversal: fast MA crosses above slow MA
	closes := []float64{10, 9, 8, 7, 6, 5, 9, 14}
	candles := candlesFromCloses(closes)

	sawBuy := false
	for i := range candles {
		if signaler(candles, i) == SignalBuy {
			sawBuy = true
		}
	}
	assert.True(t, sawBuy, "expected a buy signal on the upward crossover")
}

func TestGridSignaler(t *testing.T) {
	signaler, err := NewSignaler(TypeGrid, Params{GridStep: 0.05})
	require.NoError(t, err)

	candles := candlesFromCloses([]float64{100, 100, 94, 94, 100, 106})

	assert.Equal(t, SignalHold, signaler(candles, 1))
	assert.Equal(t, SignalBuy, signaler(candles, 2))  // dropped one band
	assert.Equal(t, SignalHold, signaler(candles, 3)) // stayed in band
	assert.Equal(t, SignalSell, signaler(candles, 4)) // recovered a band
	assert.Equal(t, SignalSell, signaler(candles, 5))
}

func TestRSISignalerBounds(t *testing.T) {
	signaler, err := NewSignaler(TypeRSI, Params{Period: 3, Oversold: 30, Overbought: 70})
	require.NoError(t, err)

	rising := candlesFromCloses([]float64{1, 2, 3, 4, 5, 6, 7, 8})
	assert.Equal(t, SignalSell, signaler(rising, 7))

	falling := candlesFromCloses([]float64{8, 7, 6, 5, 4, 3, 2, 1})
	assert.Equal(t, SignalBuy, signaler(falling, 7))

	assert.Equal(t, SignalHold, signaler(rising, 1))
}

func TestNewSignalerUnknownType(t *testing.T) {
	_, err := NewSignaler("martingale", Params{})
	assert.Error(t, err)
}
