package types

import "time"

// Ticker is a point-in-time market quote returned by the exchange gateway
type Ticker struct {
	Symbol    string    `json:"symbol"`
	Last      float64   `json:"last"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	High24h   float64   `json:"high_24h"`
	Low24h    float64   `json:"low_24h"`
	Volume24h float64   `json:"volume_24h"`
	Timestamp time.Time `json:"timestamp"`
}

// Candle is a single OHLCV bar
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// PortfolioResponse is the dashboard portfolio summary
type PortfolioResponse struct {
	Positions          []Position               `json:"positions"`
	UnrealizedPNL      map[string]UnrealizedPNL `json:"unrealized_pnl"`
	TotalUnrealizedPNL float64                  `json:"total_unrealized_pnl"`
	TotalRealizedPNL   float64                  `json:"total_realized_pnl"`
	TotalPNL           float64                  `json:"total_pnl"`
	PositionValues     float64                  `json:"position_values"`
	WinRate            float64                  `json:"win_rate"`
	TotalTrades        int                      `json:"total_trades"`
	ProfitFactor       string                   `json:"profit_factor"`
	Today              TodayStats               `json:"today"`
}

// TodayStats summarises trading activity since midnight UTC
type TodayStats struct {
	Trades int     `json:"trades_today"`
	Volume float64 `json:"volume_today"`
	PNL    float64 `json:"pnl_today"`
}

// PerformanceResponse is the rolling-window dashboard metrics payload.
// LosingTrades is total minus winning here, matching the ledger aggregation
// path rather than the stricter pnl < 0 definition used by backtest metrics.
type PerformanceResponse struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalVolume   float64 `json:"total_volume"`
	TotalFees     float64 `json:"total_fees"`
	AvgTradeSize  float64 `json:"avg_trade_size"`
	BestTrade     float64 `json:"best_trade"`
	WorstTrade    float64 `json:"worst_trade"`
	TotalPNL      float64 `json:"total_pnl"`
	PeriodDays    int     `json:"period_days"`
}
