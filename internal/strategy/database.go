package strategy

import (
	"encoding/json"
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

func (d *Database) CreateStrategy(cfg *StrategyConfig) error {
	raw, err := json.Marshal(cfg.Params)
	if err != nil {
		return err
	}
	cfg.ParamsJSON = string(raw)
	return d.db.Create(cfg).Error
}

func (d *Database) GetStrategy(strategyID, userID string) (*StrategyConfig, error) {
	var cfg StrategyConfig
	if err := d.db.Where("strategy_id = ? AND user_id = ?", strategyID, userID).First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := decodeParams(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (d *Database) GetUserStrategies(userID string) ([]StrategyConfig, error) {
	var configs []StrategyConfig
	err := d.db.Where("user_id = ? AND active = ?", userID, true).
		Order("created_at DESC").
		Find(&configs).Error
	if err != nil {
		return nil, err
	}
	for i := range configs {
		if err := decodeParams(&configs[i]); err != nil {
			return nil, err
		}
	}
	return configs, nil
}

func (d *Database) UpdateStrategy(cfg *StrategyConfig) error {
	raw, err := json.Marshal(cfg.Params)
	if err != nil {
		return err
	}
	cfg.ParamsJSON = string(raw)
	return d.db.Save(cfg).Error
}

func (d *Database) DeactivateStrategy(strategyID, userID string) error {
	result := d.db.Model(&StrategyConfig{}).
		Where("strategy_id = ? AND user_id = ?", strategyID, userID).
		Updates(map[string]interface{}{
			"active":     false,
			"running":    false,
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

// RecordSignal bumps the signal counters on a strategy row
func (d *Database) RecordSignal(strategyID, signal string) error {
	return d.db.Model(&StrategyConfig{}).
		Where("strategy_id = ?", strategyID).
		Updates(map[string]interface{}{
			"total_signals":  gorm.Expr("total_signals + 1"),
			"last_signal":    signal,
			"last_signal_at": time.Now(),
		}).Error
}

func decodeParams(cfg *StrategyConfig) error {
	if cfg.ParamsJSON == "" {
		return nil
	}
	return json.Unmarshal([]byte(cfg.ParamsJSON), &cfg.Params)
}
