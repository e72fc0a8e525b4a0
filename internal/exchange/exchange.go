// Package exchange manages user exchange connections and market data access.
// Credentials are stored encrypted; the gateway types serve quotes and
// candles to the trading and backtest services.
package exchange

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/coinops/tradebot-api/pkg/middleware"
	"github.com/coinops/tradebot-api/pkg/response"
)

var (
	ErrExchangeNotFound    = errors.New("exchange not found")
	ErrUnsupportedExchange = errors.New("unsupported exchange")
)

var supportedExchanges = map[string]bool{
	"binance":  true,
	"kucoin":   true,
	"kraken":   true,
	"coinbase": true,
}

const defaultFeeRate = 0.001

type Service struct {
	db  *Database
	box *cipherBox
}

// NewService creates an exchange service. appSecret is the key material for
// credential encryption at rest.
func NewService(db *gorm.DB, appSecret string) *Service {
	return &Service{
		db:  NewDatabase(db),
		box: newCipherBox(appSecret),
	}
}

func (s *Service) CreateExchange(userID string, req *CreateExchangeRequest) (*ExchangeConfig, error) {
	if !supportedExchanges[req.ExchangeName] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExchange, req.ExchangeName)
	}

	keyEnc, err := s.box.encrypt(req.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt api key: %w", err)
	}
	secretEnc, err := s.box.encrypt(req.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt api secret: %w", err)
	}

	feeRate := req.FeeRate
	if feeRate == 0 {
		feeRate = defaultFeeRate
	}

	cfg := &ExchangeConfig{
		ExchangeID:         uuid.New().String(),
		UserID:             userID,
		ExchangeName:       req.ExchangeName,
		DisplayName:        req.DisplayName,
		APIKeyEncrypted:    keyEnc,
		APISecretEncrypted: secretEnc,
		Sandbox:            req.Sandbox,
		FeeRate:            feeRate,
		Active:             true,
		ConnectionStatus:   ConnectionUnknown,
	}

	if err := s.db.CreateExchange(cfg); err != nil {
		return nil, fmt.Errorf("failed to store exchange config: %w", err)
	}

	log.Info().
		Str("user_id", userID).
		Str("exchange_id", cfg.ExchangeID).
		Str("exchange", cfg.ExchangeName).
		Bool("sandbox", cfg.Sandbox).
		Msg("exchange connection created")

	return cfg, nil
}

func (s *Service) GetUserExchanges(userID string, activeOnly bool) ([]ExchangeConfig, error) {
	return s.db.GetUserExchanges(userID, activeOnly)
}

func (s *Service) GetExchange(exchangeID, userID string) (*ExchangeConfig, error) {
	cfg, err := s.db.GetExchange(exchangeID, userID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrExchangeNotFound
	}
	return cfg, nil
}

// UpdateCredentials replaces one or both API credentials and resets the
// connection status so the next health check revalidates them.
func (s *Service) UpdateCredentials(exchangeID, userID string, req *UpdateCredentialsRequest) (*ExchangeConfig, error) {
	cfg, err := s.GetExchange(exchangeID, userID)
	if err != nil {
		return nil, err
	}

	if req.APIKey != "" {
		enc, err := s.box.encrypt(req.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt api key: %w", err)
		}
		cfg.APIKeyEncrypted = enc
	}
	if req.APISecret != "" {
		enc, err := s.box.encrypt(req.APISecret)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt api secret: %w", err)
		}
		cfg.APISecretEncrypted = enc
	}

	cfg.ConnectionStatus = ConnectionUnknown
	cfg.ConnectionError = ""

	if err := s.db.UpdateExchange(cfg); err != nil {
		return nil, fmt.Errorf("failed to update exchange config: %w", err)
	}

	log.Info().
		Str("user_id", userID).
		Str("exchange_id", exchangeID).
		Msg("exchange credentials rotated")

	return cfg, nil
}

func (s *Service) DeleteExchange(exchangeID, userID string) error {
	err := s.db.DeactivateExchange(exchangeID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrExchangeNotFound
	}
	return err
}

// Credentials returns the decrypted API key and secret for a user's exchange.
// Only the live order gateway calls this; credentials never leave the process.
func (s *Service) Credentials(exchangeID, userID string) (apiKey, apiSecret string, err error) {
	cfg, err := s.GetExchange(exchangeID, userID)
	if err != nil {
		return "", "", err
	}

	apiKey, err = s.box.decrypt(cfg.APIKeyEncrypted)
	if err != nil {
		return "", "", fmt.Errorf("failed to decrypt api key: %w", err)
	}
	apiSecret, err = s.box.decrypt(cfg.APISecretEncrypted)
	if err != nil {
		return "", "", fmt.Errorf("failed to decrypt api secret: %w", err)
	}
	return apiKey, apiSecret, nil
}

// TestConnection verifies the stored credentials decrypt cleanly and records
// the outcome on the config row.
func (s *Service) TestConnection(exchangeID, userID string) (*ExchangeConfig, error) {
	cfg, err := s.GetExchange(exchangeID, userID)
	if err != nil {
		return nil, err
	}

	_, _, credErr := s.Credentials(exchangeID, userID)
	if credErr != nil {
		cfg.ConnectionStatus = ConnectionError
		cfg.ConnectionError = credErr.Error()
	} else {
		cfg.ConnectionStatus = ConnectionOK
		cfg.ConnectionError = ""
		cfg.LastUsedAt = time.Now()
	}

	if err := s.db.UpdateExchange(cfg); err != nil {
		return nil, fmt.Errorf("failed to record connection status: %w", err)
	}

	if recErr := s.db.RecordRequest(exchangeID, credErr == nil); recErr != nil {
		log.Warn().Err(recErr).Str("exchange_id", exchangeID).Msg("failed to record exchange request")
	}

	return cfg, nil
}

// GinHandlers provides HTTP handlers for exchange management
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

func (h *GinHandlers) CreateExchangeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateExchangeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request: "+err.Error())
			return
		}

		cfg, err := h.service.CreateExchange(middleware.UserID(c), &req)
		if err != nil {
			if errors.Is(err, ErrUnsupportedExchange) {
				response.BadRequest(c, err.Error())
				return
			}
			log.Error().Err(err).Msg("failed to create exchange")
			response.InternalError(c, "Failed to create exchange connection")
			return
		}

		response.Success(c, cfg)
	}
}

func (h *GinHandlers) ListExchangesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		activeOnly := c.Query("active") == "true"

		configs, err := h.service.GetUserExchanges(middleware.UserID(c), activeOnly)
		if err != nil {
			log.Error().Err(err).Msg("failed to list exchanges")
			response.InternalError(c, "Failed to fetch exchange connections")
			return
		}

		response.Success(c, gin.H{
			"exchanges": configs,
			"count":     len(configs),
		})
	}
}

func (h *GinHandlers) GetExchangeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg, err := h.service.GetExchange(c.Param("id"), middleware.UserID(c))
		if err != nil {
			if errors.Is(err, ErrExchangeNotFound) {
				response.NotFound(c, "Exchange not found")
				return
			}
			log.Error().Err(err).Msg("failed to fetch exchange")
			response.InternalError(c, "Failed to fetch exchange connection")
			return
		}

		response.Success(c, cfg)
	}
}

func (h *GinHandlers) UpdateCredentialsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateCredentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request: "+err.Error())
			return
		}
		if req.APIKey == "" && req.APISecret == "" {
			response.BadRequest(c, "Nothing to update")
			return
		}

		cfg, err := h.service.UpdateCredentials(c.Param("id"), middleware.UserID(c), &req)
		if err != nil {
			if errors.Is(err, ErrExchangeNotFound) {
				response.NotFound(c, "Exchange not found")
				return
			}
			log.Error().Err(err).Msg("failed to update credentials")
			response.InternalError(c, "Failed to update credentials")
			return
		}

		response.Success(c, cfg)
	}
}

func (h *GinHandlers) DeleteExchangeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.service.DeleteExchange(c.Param("id"), middleware.UserID(c))
		if err != nil {
			if errors.Is(err, ErrExchangeNotFound) {
				response.NotFound(c, "Exchange not found")
				return
			}
			log.Error().Err(err).Msg("failed to delete exchange")
			response.InternalError(c, "Failed to delete exchange connection")
			return
		}

		response.Success(c, gin.H{"deleted": true})
	}
}

func (h *GinHandlers) TestConnectionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg, err := h.service.TestConnection(c.Param("id"), middleware.UserID(c))
		if err != nil {
			if errors.Is(err, ErrExchangeNotFound) {
				response.NotFound(c, "Exchange not found")
				return
			}
			log.Error().Err(err).Msg("connection test failed")
			response.InternalError(c, "Failed to test connection")
			return
		}

		response.Success(c, gin.H{
			"exchange_id":       cfg.ExchangeID,
			"connection_status": cfg.ConnectionStatus,
			"connection_error":  cfg.ConnectionError,
			"success_rate":      cfg.SuccessRate(),
		})
	}
}
