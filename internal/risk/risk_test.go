package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinops/tradebot-api/internal/types"
)

type stubActivity struct {
	open   int64
	volume float64
}

func (s *stubActivity) CountOpenTrades(ctx context.Context, userID string) (int64, error) {
	return s.open, nil
}

func (s *stubActivity) DailyVolume(ctx context.Context, userID string, since time.Time) (float64, error) {
	return s.volume, nil
}

func marketBuy(qty float64) *types.OrderRequest {
	return &types.OrderRequest{
		Symbol:    "BTC/USDT",
		Side:      types.SideBuy,
		OrderType: types.OrderTypeMarket,
		Quantity:  qty,
	}
}

func TestValidateOrderAccepted(t *testing.T) {
	v := NewValidator(&stubActivity{open: 2, volume: 1000}, DefaultLimits)

	assessment, err := v.ValidateOrder(context.Background(), "user-1", marketBuy(0.1), 50000)
	require.NoError(t, err)

	assert.Equal(t, LevelLow, assessment.Level)
	assert.Equal(t, 5000.0, assessment.OrderNotional)
	assert.Equal(t, int64(2), assessment.OpenTrades)
}

func TestValidateOrderNotionalLimit(t *testing.T) {
	v := NewValidator(&stubActivity{}, Limits{
		MaxOrderNotional: 10000,
		MaxDailyVolume:   100000,
		MaxOpenTrades:    10,
	})

	_, err := v.ValidateOrder(context.Background(), "user-1", marketBuy(1), 50000)
	assert.ErrorIs(t, err, ErrOrderTooLarge)
}

func TestValidateOrderDailyVolumeLimit(t *testing.T) {
	v := NewValidator(&stubActivity{volume: 495000}, DefaultLimits)

	_, err := v.ValidateOrder(context.Background(), "user-1", marketBuy(0.2), 50000)
	assert.ErrorIs(t, err, ErrDailyVolumeLimit)
}

func TestValidateOrderOpenTradesLimit(t *testing.T) {
	v := NewValidator(&stubActivity{open: 50}, DefaultLimits)

	_, err := v.ValidateOrder(context.Background(), "user-1", marketBuy(0.1), 50000)
	assert.ErrorIs(t, err, ErrTooManyOpenTrades)
}

func TestValidateOrderNoPrice(t *testing.T) {
	v := NewValidator(&stubActivity{}, DefaultLimits)

	_, err := v.ValidateOrder(context.Background(), "user-1", marketBuy(1), 0)
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestValidateOrderUsesLimitPrice(t *testing.T) {
	v := NewValidator(&stubActivity{}, DefaultLimits)

	order := &types.OrderRequest{
		Symbol:    "ETH/USDT",
		Side:      types.SideBuy,
		OrderType: types.OrderTypeLimit,
		Quantity:  2,
		Price:     3000,
	}

	// Reference price would blow the notional limit; the limit price governs
	assessment, err := v.ValidateOrder(context.Background(), "user-1", order, 1e9)
	require.NoError(t, err)
	assert.Equal(t, 6000.0, assessment.OrderNotional)
}

func TestRiskLevelScoring(t *testing.T) {
	v := NewValidator(&stubActivity{}, Limits{
		MaxOrderNotional: 100000,
		MaxDailyVolume:   500000,
		MaxOpenTrades:    50,
	})

	assessment, err := v.ValidateOrder(context.Background(), "user-1", marketBuy(1.2), 50000)
	require.NoError(t, err)
	assert.Equal(t, LevelHigh, assessment.Level)

	assessment, err = v.ValidateOrder(context.Background(), "user-1", marketBuy(0.6), 50000)
	require.NoError(t, err)
	assert.Equal(t, LevelMedium, assessment.Level)
}
