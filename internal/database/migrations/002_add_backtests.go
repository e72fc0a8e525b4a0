package migrations

import (
	"github.com/coinops/tradebot-api/internal/backtest"
	"gorm.io/gorm"
)

func AddBacktests(db *gorm.DB) error {
	if err := db.AutoMigrate(&backtest.Backtest{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&backtest.BacktestTrade{}); err != nil {
		return err
	}

	// The processor claims work by status and age
	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_backtests_queue
		ON backtests (status, created_at)`).Error
}
