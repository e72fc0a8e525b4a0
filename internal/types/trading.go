package types

import (
	"time"

	"gorm.io/gorm"
)

// Trade sides
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Trade statuses. A trade only moves forward from PENDING; once it is
// FILLED the row is immutable.
const (
	StatusPending         = "pending"
	StatusPartiallyFilled = "partially_filled"
	StatusFilled          = "filled"
	StatusCancelled       = "cancelled"
	StatusRejected        = "rejected"
)

// Trading modes
const (
	ModeLive     = "live"
	ModePaper    = "paper"
	ModeBacktest = "backtest"
)

// Order types
const (
	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
)

// Trade is a single entry in the per-user trade ledger. Filled trades form
// the append-only fill history the PnL resolver replays.
type Trade struct {
	gorm.Model     `json:"-"`
	TradeID        string    `gorm:"uniqueIndex" json:"trade_id"`
	UserID         string    `gorm:"index" json:"user_id"`
	StrategyID     string    `json:"strategy_id,omitempty"`
	Exchange       string    `json:"exchange"`
	Symbol         string    `gorm:"index" json:"symbol"`
	Side           string    `json:"side"`       // buy or sell
	OrderType      string    `json:"order_type"` // market or limit
	Quantity       float64   `json:"quantity"`
	Price          float64   `json:"price"`
	FilledQuantity float64   `json:"filled_quantity"`
	AveragePrice   float64   `json:"average_price"`
	Fee            float64   `json:"fee"`
	FeeCurrency    string    `json:"fee_currency,omitempty"`
	Status         string    `gorm:"index" json:"status"`
	Mode           string    `json:"mode"` // live, paper or backtest
	SignalType     string    `json:"signal_type,omitempty"`
	PNL            float64   `json:"pnl"`
	ExecutedAt     time.Time `json:"executed_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// OrderRequest is the payload for placing a new order
type OrderRequest struct {
	Exchange   string  `json:"exchange"`
	Symbol     string  `json:"symbol" binding:"required"`
	Side       string  `json:"side" binding:"required"`
	OrderType  string  `json:"order_type"`
	Quantity   float64 `json:"quantity" binding:"required,gt=0"`
	Price      float64 `json:"price"`
	StrategyID string  `json:"strategy_id"`
}

// Position is an aggregated open position derived from the fill history
type Position struct {
	Symbol       string  `json:"symbol"`
	PositionSize float64 `json:"position_size"`
	TotalBought  float64 `json:"total_bought"`
	TotalSold    float64 `json:"total_sold"`
	AvgBuyPrice  float64 `json:"avg_buy_price"`
	TotalFees    float64 `json:"total_fees"`
}

// UnrealizedPNL is the mark-to-market view of one open position
type UnrealizedPNL struct {
	Symbol       string  `json:"symbol"`
	PNL          float64 `json:"pnl"`
	PNLPct       float64 `json:"pnl_pct"`
	CurrentPrice float64 `json:"current_price"`
	AvgBuyPrice  float64 `json:"avg_buy_price"`
	PositionSize float64 `json:"position_size"`
	CurrentValue float64 `json:"current_value"`
	CostBasis    float64 `json:"cost_basis"`
}
