package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/coinops/tradebot-api/internal/auth"
	"github.com/coinops/tradebot-api/internal/database/migrations"
	"github.com/coinops/tradebot-api/internal/exchange"
	"github.com/coinops/tradebot-api/internal/strategy"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(dbPath string) (*gorm.DB, error) {
	if dbPath == "" {
		dbPath = "tradebot.db"
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.AddTrades(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.AddBacktests(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Auto-migrate other schemas
	err = db.AutoMigrate(
		&auth.User{},
		&exchange.ExchangeConfig{},
		&strategy.StrategyConfig{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
