package exchange

import (
	"time"

	"gorm.io/gorm"
)

// Connection statuses
const (
	ConnectionUnknown = "unknown"
	ConnectionOK      = "connected"
	ConnectionError   = "error"
)

// ExchangeConfig stores a user's exchange connection. API credentials are
// encrypted at rest; they never appear in API responses.
type ExchangeConfig struct {
	gorm.Model         `json:"-"`
	ExchangeID         string    `gorm:"uniqueIndex" json:"exchange_id"`
	UserID             string    `gorm:"index" json:"user_id"`
	ExchangeName       string    `json:"exchange_name"` // binance, kucoin, ...
	DisplayName        string    `json:"display_name"`
	APIKeyEncrypted    string    `json:"-"`
	APISecretEncrypted string    `json:"-"`
	Sandbox            bool      `json:"sandbox"`
	FeeRate            float64   `json:"fee_rate"`
	Active             bool      `json:"active"`
	ConnectionStatus   string    `json:"connection_status"`
	ConnectionError    string    `json:"connection_error,omitempty"`
	RequestCount       int64     `json:"request_count"`
	ErrorCount         int64     `json:"error_count"`
	LastUsedAt         time.Time `json:"last_used_at"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// SuccessRate reports the share of successful requests against this exchange
func (e *ExchangeConfig) SuccessRate() float64 {
	if e.RequestCount == 0 {
		return 0
	}
	return float64(e.RequestCount-e.ErrorCount) / float64(e.RequestCount) * 100
}

// CreateExchangeRequest is the payload for registering an exchange connection
type CreateExchangeRequest struct {
	ExchangeName string  `json:"exchange_name" binding:"required"`
	DisplayName  string  `json:"display_name" binding:"required"`
	APIKey       string  `json:"api_key" binding:"required"`
	APISecret    string  `json:"api_secret" binding:"required"`
	Sandbox      bool    `json:"sandbox"`
	FeeRate      float64 `json:"fee_rate"`
}

// UpdateCredentialsRequest carries replacement API credentials
type UpdateCredentialsRequest struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}
