package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinops/tradebot-api/internal/types"
)

func TestCipherBoxRoundTrip(t *testing.T) {
	box := newCipherBox("test-app-secret")

	ciphertext, err := box.encrypt("my-api-key-12345")
	require.NoError(t, err)
	assert.NotEqual(t, "my-api-key-12345", ciphertext)

	plaintext, err := box.decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "my-api-key-12345", plaintext)
}

func TestCipherBoxWrongKey(t *testing.T) {
	box := newCipherBox("secret-a")
	ciphertext, err := box.encrypt("credentials")
	require.NoError(t, err)

	other := newCipherBox("secret-b")
	_, err = other.decrypt(ciphertext)
	assert.Error(t, err)
}

func TestCipherBoxTruncatedCiphertext(t *testing.T) {
	box := newCipherBox("secret")
	_, err := box.decrypt("dG9vc2hvcnQ=")
	assert.Error(t, err)
}

func TestSimulateFillMarketOrder(t *testing.T) {
	order := &types.OrderRequest{
		Symbol:    "BTC/USDT",
		Side:      types.SideBuy,
		OrderType: types.OrderTypeMarket,
		Quantity:  0.5,
	}

	fill := SimulateFill(order, 50000, 0.001)

	assert.Equal(t, 0.5, fill.Quantity)
	// Variance is bounded to ±0.2% plus slippage
	assert.InDelta(t, 50000, fill.Price, 50000*0.003)
	assert.InDelta(t, fill.Price*0.5*0.001, fill.Fee, 1e-9)
}

func TestSimulateFillLimitOrder(t *testing.T) {
	order := &types.OrderRequest{
		Symbol:    "ETH/USDT",
		Side:      types.SideSell,
		OrderType: types.OrderTypeLimit,
		Quantity:  2,
		Price:     3000,
	}

	fill := SimulateFill(order, 3100, 0.001)

	assert.Equal(t, 3000.0, fill.Price)
	assert.Equal(t, 3000.0*2*0.001, fill.Fee)
}

func TestSimulatedGatewayCandlesDeterministic(t *testing.T) {
	g := NewSimulatedGateway()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	first, err := g.Candles(context.Background(), "BTC/USDT", "1h", start, end)
	require.NoError(t, err)
	second, err := g.Candles(context.Background(), "BTC/USDT", "1h", start, end)
	require.NoError(t, err)

	require.Len(t, first, 24)
	assert.Equal(t, first, second)

	for _, c := range first {
		assert.GreaterOrEqual(t, c.High, c.Open)
		assert.GreaterOrEqual(t, c.High, c.Close)
		assert.LessOrEqual(t, c.Low, c.Open)
		assert.LessOrEqual(t, c.Low, c.Close)
	}
}

func TestSimulatedGatewayCandlesBadInput(t *testing.T) {
	g := NewSimulatedGateway()
	now := time.Now()

	_, err := g.Candles(context.Background(), "BTC/USDT", "7m", now.Add(-time.Hour), now)
	assert.Error(t, err)

	_, err = g.Candles(context.Background(), "BTC/USDT", "1h", now, now)
	assert.Error(t, err)
}

func TestSimulatedGatewayTicker(t *testing.T) {
	g := NewSimulatedGateway()

	ticker, err := g.Ticker(context.Background(), "BTC/USDT")
	require.NoError(t, err)

	assert.Greater(t, ticker.Last, 0.0)
	assert.Less(t, ticker.Bid, ticker.Ask)
}

func TestExchangeSuccessRate(t *testing.T) {
	cfg := &ExchangeConfig{RequestCount: 10, ErrorCount: 2}
	assert.Equal(t, 80.0, cfg.SuccessRate())

	empty := &ExchangeConfig{}
	assert.Equal(t, 0.0, empty.SuccessRate())
}
