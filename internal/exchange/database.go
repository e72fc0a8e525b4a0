package exchange

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

func (d *Database) CreateExchange(cfg *ExchangeConfig) error {
	return d.db.Create(cfg).Error
}

func (d *Database) GetExchange(exchangeID, userID string) (*ExchangeConfig, error) {
	var cfg ExchangeConfig
	if err := d.db.Where("exchange_id = ? AND user_id = ?", exchangeID, userID).First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

func (d *Database) GetUserExchanges(userID string, activeOnly bool) ([]ExchangeConfig, error) {
	query := d.db.Where("user_id = ?", userID)
	if activeOnly {
		query = query.Where("active = ?", true)
	}

	var configs []ExchangeConfig
	if err := query.Order("created_at DESC").Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

func (d *Database) UpdateExchange(cfg *ExchangeConfig) error {
	return d.db.Save(cfg).Error
}

func (d *Database) DeactivateExchange(exchangeID, userID string) error {
	result := d.db.Model(&ExchangeConfig{}).
		Where("exchange_id = ? AND user_id = ?", exchangeID, userID).
		Updates(map[string]interface{}{
			"active":     false,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// RecordRequest bumps the request counters used for the success-rate stat
func (d *Database) RecordRequest(exchangeID string, success bool) error {
	updates := map[string]interface{}{
		"request_count": gorm.Expr("request_count + 1"),
		"last_used_at":  time.Now(),
	}
	if !success {
		updates["error_count"] = gorm.Expr("error_count + 1")
	}
	return d.db.Model(&ExchangeConfig{}).
		Where("exchange_id = ?", exchangeID).
		Updates(updates).Error
}
