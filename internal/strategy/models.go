package strategy

import (
	"time"

	"gorm.io/gorm"
)

// Strategy types
const (
	TypeRSI         = "rsi"
	TypeMACrossover = "ma_crossover"
	TypeGrid        = "grid"
)

// Signals emitted by strategy evaluation
const (
	SignalBuy  = "buy"
	SignalSell = "sell"
	SignalHold = "hold"
)

// Params are the tunable knobs shared across strategy types. Unused fields
// are ignored by types that do not read them.
type Params struct {
	Period     int     `json:"period,omitempty"`
	Oversold   float64 `json:"oversold,omitempty"`
	Overbought float64 `json:"overbought,omitempty"`
	FastPeriod int     `json:"fast_period,omitempty"`
	SlowPeriod int     `json:"slow_period,omitempty"`
	GridLevels int     `json:"grid_levels,omitempty"`
	GridStep   float64 `json:"grid_step,omitempty"` // fractional spacing between levels
}

// StrategyConfig is a user's configured trading strategy
type StrategyConfig struct {
	gorm.Model   `json:"-"`
	StrategyID   string    `gorm:"uniqueIndex" json:"strategy_id"`
	UserID       string    `gorm:"index" json:"user_id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Symbol       string    `json:"symbol"`
	Timeframe    string    `json:"timeframe"`
	ParamsJSON   string    `json:"-"`
	Params       Params    `gorm:"-" json:"params"`
	Active       bool      `json:"active"`
	Running      bool      `json:"running"`
	TotalSignals int64     `json:"total_signals"`
	LastSignal   string    `json:"last_signal,omitempty"`
	LastSignalAt time.Time `json:"last_signal_at,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateStrategyRequest is the payload for configuring a new strategy
type CreateStrategyRequest struct {
	Name      string `json:"name" binding:"required"`
	Type      string `json:"type" binding:"required"`
	Symbol    string `json:"symbol" binding:"required"`
	Timeframe string `json:"timeframe"`
	Params    Params `json:"params"`
}

// UpdateStrategyRequest carries partial strategy updates
type UpdateStrategyRequest struct {
	Name      string  `json:"name"`
	Timeframe string  `json:"timeframe"`
	Params    *Params `json:"params"`
}
