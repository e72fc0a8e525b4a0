package trading

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/coinops/tradebot-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateTrade(trade *types.Trade) error {
	return d.db.Create(trade).Error
}

func (d *Database) GetTrade(tradeID, userID string) (*types.Trade, error) {
	var trade types.Trade
	if err := d.db.Where("trade_id = ? AND user_id = ?", tradeID, userID).First(&trade).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trade, nil
}

func (d *Database) UpdateTrade(trade *types.Trade) error {
	return d.db.Save(trade).Error
}

// TradeFilters narrows trade history queries
type TradeFilters struct {
	Symbol string
	Status string
	Since  time.Time
	Until  time.Time
	Limit  int
	Offset int
}

// GetUserTrades returns a page of the user's trades, newest first, plus the
// total count matching the filters.
func (d *Database) GetUserTrades(userID string, filters TradeFilters) ([]types.Trade, int64, error) {
	query := d.db.Model(&types.Trade{}).Where("user_id = ?", userID)

	if filters.Symbol != "" {
		query = query.Where("symbol = ?", filters.Symbol)
	}
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	if !filters.Since.IsZero() {
		query = query.Where("executed_at >= ?", filters.Since)
	}
	if !filters.Until.IsZero() {
		query = query.Where("executed_at <= ?", filters.Until)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var trades []types.Trade
	err := query.Order("executed_at DESC").
		Limit(limit).
		Offset(filters.Offset).
		Find(&trades).Error
	if err != nil {
		return nil, 0, err
	}
	return trades, total, nil
}

// GetBuyFills returns the user's filled buy trades for a symbol in execution
// order. This is the read path the cost-basis resolver replays, so the
// ordering must be stable: executed_at ascending with the row id breaking
// ties.
func (d *Database) GetBuyFills(ctx context.Context, userID, symbol string) ([]types.Trade, error) {
	var fills []types.Trade
	err := d.db.WithContext(ctx).
		Where("user_id = ? AND symbol = ? AND side = ? AND status = ?",
			userID, symbol, types.SideBuy, types.StatusFilled).
		Order("executed_at ASC, id ASC").
		Find(&fills).Error
	if err != nil {
		return nil, err
	}
	return fills, nil
}

// GetOpenPositions aggregates filled trades into net positions per symbol.
// Symbols whose net quantity rounds to zero are dropped.
func (d *Database) GetOpenPositions(userID string) ([]types.Position, error) {
	type row struct {
		Symbol      string
		TotalBought float64
		TotalSold   float64
		BuyCost     float64
		TotalFees   float64
	}

	var rows []row
	err := d.db.Model(&types.Trade{}).
		Select(`symbol,
			SUM(CASE WHEN side = 'buy' THEN filled_quantity ELSE 0 END) AS total_bought,
			SUM(CASE WHEN side = 'sell' THEN filled_quantity ELSE 0 END) AS total_sold,
			SUM(CASE WHEN side = 'buy' THEN filled_quantity * average_price ELSE 0 END) AS buy_cost,
			SUM(fee) AS total_fees`).
		Where("user_id = ? AND status = ?", userID, types.StatusFilled).
		Group("symbol").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	positions := make([]types.Position, 0, len(rows))
	for _, r := range rows {
		size := r.TotalBought - r.TotalSold
		if size < 1e-9 {
			continue
		}
		avgBuy := 0.0
		if r.TotalBought > 0 {
			avgBuy = r.BuyCost / r.TotalBought
		}
		positions = append(positions, types.Position{
			Symbol:       r.Symbol,
			PositionSize: size,
			TotalBought:  r.TotalBought,
			TotalSold:    r.TotalSold,
			AvgBuyPrice:  avgBuy,
			TotalFees:    r.TotalFees,
		})
	}
	return positions, nil
}

// TotalRealizedPNL sums the realized PnL recorded on filled sells
func (d *Database) TotalRealizedPNL(userID string) (float64, error) {
	var total float64
	err := d.db.Model(&types.Trade{}).
		Select("COALESCE(SUM(pnl), 0)").
		Where("user_id = ? AND side = ? AND status = ?", userID, types.SideSell, types.StatusFilled).
		Scan(&total).Error
	return total, err
}

// TodayStats summarises trading since midnight UTC
func (d *Database) TodayStats(userID string) (*types.TodayStats, error) {
	midnight := time.Now().UTC().Truncate(24 * time.Hour)

	type row struct {
		Trades int
		Volume float64
		PNL    float64
	}
	var r row
	err := d.db.Model(&types.Trade{}).
		Select(`COUNT(*) AS trades,
			COALESCE(SUM(filled_quantity * average_price), 0) AS volume,
			COALESCE(SUM(CASE WHEN side = 'sell' THEN pnl ELSE 0 END), 0) AS pnl`).
		Where("user_id = ? AND status = ? AND executed_at >= ?", userID, types.StatusFilled, midnight).
		Scan(&r).Error
	if err != nil {
		return nil, err
	}

	return &types.TodayStats{
		Trades: r.Trades,
		Volume: r.Volume,
		PNL:    r.PNL,
	}, nil
}

// WindowStats holds the raw aggregates behind the rolling performance view
type WindowStats struct {
	TotalTrades   int
	WinningTrades int
	TotalVolume   float64
	TotalFees     float64
	BestTrade     float64
	WorstTrade    float64
	TotalPNL      float64
}

// GetWindowStats aggregates filled sells executed since the cutoff. Winning
// means pnl strictly positive; the caller derives losers as the remainder.
func (d *Database) GetWindowStats(userID string, since time.Time) (*WindowStats, error) {
	var stats WindowStats
	err := d.db.Model(&types.Trade{}).
		Select(`COUNT(*) AS total_trades,
			COALESCE(SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), 0) AS winning_trades,
			COALESCE(SUM(filled_quantity * average_price), 0) AS total_volume,
			COALESCE(SUM(fee), 0) AS total_fees,
			COALESCE(MAX(pnl), 0) AS best_trade,
			COALESCE(MIN(pnl), 0) AS worst_trade,
			COALESCE(SUM(pnl), 0) AS total_pnl`).
		Where("user_id = ? AND side = ? AND status = ? AND executed_at >= ?",
			userID, types.SideSell, types.StatusFilled, since).
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetClosedSells returns filled sells in execution order for metric
// computation over a window.
func (d *Database) GetClosedSells(userID string, since time.Time) ([]types.Trade, error) {
	var trades []types.Trade
	err := d.db.
		Where("user_id = ? AND side = ? AND status = ? AND executed_at >= ?",
			userID, types.SideSell, types.StatusFilled, since).
		Order("executed_at ASC, id ASC").
		Find(&trades).Error
	if err != nil {
		return nil, err
	}
	return trades, nil
}

// CountOpenTrades reports trades still awaiting a fill
func (d *Database) CountOpenTrades(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&types.Trade{}).
		Where("user_id = ? AND status IN ?", userID,
			[]string{types.StatusPending, types.StatusPartiallyFilled}).
		Count(&count).Error
	return count, err
}

// DailyVolume sums the notional of filled trades since the cutoff
func (d *Database) DailyVolume(ctx context.Context, userID string, since time.Time) (float64, error) {
	var volume float64
	err := d.db.WithContext(ctx).Model(&types.Trade{}).
		Select("COALESCE(SUM(filled_quantity * average_price), 0)").
		Where("user_id = ? AND status = ? AND executed_at >= ?", userID, types.StatusFilled, since).
		Scan(&volume).Error
	return volume, err
}
