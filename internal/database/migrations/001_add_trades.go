package migrations

import (
	"github.com/coinops/tradebot-api/internal/types"
	"gorm.io/gorm"
)

func AddTrades(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.Trade{}); err != nil {
		return err
	}

	// Composite index covering the resolver's fill replay query:
	// filled buys per (user, symbol) ordered by execution time.
	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_trades_fill_replay
		ON trades (user_id, symbol, executed_at)`).Error
}
