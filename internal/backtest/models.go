package backtest

import (
	"time"

	"gorm.io/gorm"

	"github.com/coinops/tradebot-api/internal/analytics"
)

// Backtest lifecycle statuses
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Execution cost defaults applied when a request leaves them unset
const (
	DefaultCommission = 0.001
	DefaultSlippage   = 0.0001
)

// Backtest is a strategy simulation run over historical candles
type Backtest struct {
	gorm.Model     `json:"-"`
	BacktestID     string    `gorm:"uniqueIndex" json:"backtest_id"`
	UserID         string    `gorm:"index" json:"user_id"`
	StrategyID     string    `json:"strategy_id"`
	Symbol         string    `json:"symbol"`
	Timeframe      string    `json:"timeframe"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	InitialBalance float64   `json:"initial_balance"`
	FinalBalance   float64   `json:"final_balance"`
	Commission     float64   `json:"commission"`
	Slippage       float64   `json:"slippage"`

	Status   string  `gorm:"index" json:"status"`
	Progress float64 `json:"progress"`
	Error    string  `json:"error,omitempty"`

	Metrics analytics.PerformanceMetrics `gorm:"embedded;embeddedPrefix:metric_" json:"metrics"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// BacktestTrade is one simulated fill recorded during a run
type BacktestTrade struct {
	gorm.Model `json:"-"`
	BacktestID string    `gorm:"index" json:"backtest_id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Fee        float64   `json:"fee"`
	PNL        float64   `json:"pnl"`
	SignalType string    `json:"signal_type"`
	ExecutedAt time.Time `json:"executed_at"`
}

// CreateBacktestRequest is the payload for queueing a backtest
type CreateBacktestRequest struct {
	StrategyID     string    `json:"strategy_id" binding:"required"`
	StartTime      time.Time `json:"start_time" binding:"required"`
	EndTime        time.Time `json:"end_time" binding:"required"`
	InitialBalance float64   `json:"initial_balance" binding:"required,gt=0"`
	Commission     float64   `json:"commission"`
	Slippage       float64   `json:"slippage"`
}
