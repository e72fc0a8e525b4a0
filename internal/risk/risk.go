// Package risk validates orders against per-user trading limits before they
// reach execution.
package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coinops/tradebot-api/internal/types"
)

var (
	ErrOrderTooLarge      = errors.New("order exceeds maximum notional value")
	ErrDailyVolumeLimit   = errors.New("daily volume limit exceeded")
	ErrTooManyOpenTrades = errors.New("too many open trades")
	ErrInvalidOrder      = errors.New("invalid order parameters")
)

// Risk levels attached to accepted orders
const (
	LevelLow    = "LOW"
	LevelMedium = "MEDIUM"
	LevelHigh   = "HIGH"
)

// ActivityReader reports a user's current trading activity
type ActivityReader interface {
	CountOpenTrades(ctx context.Context, userID string) (int64, error)
	DailyVolume(ctx context.Context, userID string, since time.Time) (float64, error)
}

// Limits are the per-user thresholds enforced on every order
type Limits struct {
	MaxOrderNotional float64
	MaxDailyVolume   float64
	MaxOpenTrades    int64
}

// DefaultLimits are applied when a user has no custom limits configured
var DefaultLimits = Limits{
	MaxOrderNotional: 100000,
	MaxDailyVolume:   500000,
	MaxOpenTrades:    50,
}

// Assessment is the outcome of a risk check on an accepted order
type Assessment struct {
	Level         string  `json:"level"`
	OrderNotional float64 `json:"order_notional"`
	DailyVolume   float64 `json:"daily_volume"`
	OpenTrades    int64   `json:"open_trades"`
}

type Validator struct {
	activity ActivityReader
	limits   Limits
}

func NewValidator(activity ActivityReader, limits Limits) *Validator {
	if limits.MaxOrderNotional <= 0 {
		limits = DefaultLimits
	}
	return &Validator{activity: activity, limits: limits}
}

// ValidateOrder checks an order against the configured limits. referencePrice
// is the current market quote, used to value market orders that carry no
// price of their own.
func (v *Validator) ValidateOrder(ctx context.Context, userID string, order *types.OrderRequest, referencePrice float64) (*Assessment, error) {
	if order.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}

	price := order.Price
	if price <= 0 {
		price = referencePrice
	}
	if price <= 0 {
		return nil, fmt.Errorf("%w: no price available for %s", ErrInvalidOrder, order.Symbol)
	}

	notional := order.Quantity * price
	if notional > v.limits.MaxOrderNotional {
		return nil, fmt.Errorf("%w: %.2f > %.2f", ErrOrderTooLarge, notional, v.limits.MaxOrderNotional)
	}

	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	volume, err := v.activity.DailyVolume(ctx, userID, midnight)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch daily volume: %w", err)
	}
	if volume+notional > v.limits.MaxDailyVolume {
		return nil, fmt.Errorf("%w: %.2f + %.2f > %.2f", ErrDailyVolumeLimit, volume, notional, v.limits.MaxDailyVolume)
	}

	open, err := v.activity.CountOpenTrades(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count open trades: %w", err)
	}
	if open >= v.limits.MaxOpenTrades {
		return nil, fmt.Errorf("%w: %d open", ErrTooManyOpenTrades, open)
	}

	assessment := &Assessment{
		Level:         v.level(notional, volume+notional),
		OrderNotional: notional,
		DailyVolume:   volume + notional,
		OpenTrades:    open,
	}

	log.Debug().
		Str("user_id", userID).
		Str("symbol", order.Symbol).
		Float64("notional", notional).
		Str("risk_level", assessment.Level).
		Msg("order passed risk checks")

	return assessment, nil
}

// level scores an accepted order by how close it runs to the limits
func (v *Validator) level(notional, dailyVolume float64) string {
	notionalPct := notional / v.limits.MaxOrderNotional
	volumePct := dailyVolume / v.limits.MaxDailyVolume

	switch {
	case notionalPct > 0.5 || volumePct > 0.8:
		return LevelHigh
	case notionalPct > 0.2 || volumePct > 0.5:
		return LevelMedium
	default:
		return LevelLow
	}
}
