package backtest

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateBacktest(bt *Backtest) error {
	return d.db.Create(bt).Error
}

func (d *Database) GetBacktest(backtestID, userID string) (*Backtest, error) {
	var bt Backtest
	if err := d.db.Where("backtest_id = ? AND user_id = ?", backtestID, userID).First(&bt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bt, nil
}

func (d *Database) GetUserBacktests(userID string, limit int) ([]Backtest, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var backtests []Backtest
	err := d.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&backtests).Error
	if err != nil {
		return nil, err
	}
	return backtests, nil
}

func (d *Database) UpdateBacktest(bt *Backtest) error {
	return d.db.Save(bt).Error
}

// ClaimNextPending atomically picks the oldest pending backtest and marks it
// running. Returns nil when the queue is empty.
func (d *Database) ClaimNextPending() (*Backtest, error) {
	var bt Backtest
	err := d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("status = ?", StatusPending).
			Order("created_at ASC").
			First(&bt).Error; err != nil {
			return err
		}

		now := time.Now()
		bt.Status = StatusRunning
		bt.StartedAt = &now
		return tx.Save(&bt).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bt, nil
}

// UpdateProgress writes the progress fraction without touching other fields
func (d *Database) UpdateProgress(backtestID string, progress float64) error {
	return d.db.Model(&Backtest{}).
		Where("backtest_id = ?", backtestID).
		Update("progress", progress).Error
}

// IsCancelled reports whether the run was cancelled out from under the engine
func (d *Database) IsCancelled(backtestID string) (bool, error) {
	var status string
	err := d.db.Model(&Backtest{}).
		Select("status").
		Where("backtest_id = ?", backtestID).
		Scan(&status).Error
	if err != nil {
		return false, err
	}
	return status == StatusCancelled, nil
}

func (d *Database) SaveTrades(trades []BacktestTrade) error {
	if len(trades) == 0 {
		return nil
	}
	return d.db.CreateInBatches(trades, 200).Error
}

func (d *Database) GetBacktestTrades(backtestID string) ([]BacktestTrade, error) {
	var trades []BacktestTrade
	err := d.db.Where("backtest_id = ?", backtestID).
		Order("executed_at ASC, id ASC").
		Find(&trades).Error
	if err != nil {
		return nil, err
	}
	return trades, nil
}
