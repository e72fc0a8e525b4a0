package auth

import (
	"time"

	"gorm.io/gorm"
)

// User is an account that owns trades, strategies, exchanges and backtests.
// The API secret is stored as a bcrypt hash; the plaintext is only returned
// once, at registration time.
type User struct {
	gorm.Model    `json:"-"`
	UserID        string    `gorm:"uniqueIndex" json:"user_id"`
	Email         string    `gorm:"uniqueIndex" json:"email"`
	APIKey        string    `gorm:"uniqueIndex" json:"api_key"`
	APISecretHash string    `json:"-"`
	Active        bool      `json:"active"`
	LastLoginAt   time.Time `json:"last_login_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RegisterRequest is the payload for creating a new account
type RegisterRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// RegisterResponse carries the freshly generated credentials
type RegisterResponse struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

// Credentials represents the API authentication credentials
type Credentials struct {
	APIKey    string `json:"api_key" binding:"required"`
	APISecret string `json:"api_secret" binding:"required"`
}

// TokenResponse represents the JWT token response
type TokenResponse struct {
	Token      string    `json:"jwt_token"`
	Expiration time.Time `json:"expiration"`
}
