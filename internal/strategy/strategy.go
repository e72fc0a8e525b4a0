// Package strategy manages trading strategy configurations and the signal
// evaluation used by live paper trading and backtests.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/coinops/tradebot-api/internal/exchange"
	"github.com/coinops/tradebot-api/pkg/middleware"
	"github.com/coinops/tradebot-api/pkg/response"
)

var (
	ErrStrategyNotFound = errors.New("strategy not found")
	ErrUnknownType      = errors.New("unknown strategy type")
	ErrAlreadyRunning   = errors.New("strategy already running")
	ErrNotRunning       = errors.New("strategy not running")
)

// Bars of history loaded for a live signal evaluation
const evaluationWindow = 200

type Service struct {
	db      *Database
	gateway exchange.Gateway
}

func NewService(db *gorm.DB, gateway exchange.Gateway) *Service {
	return &Service{db: NewDatabase(db), gateway: gateway}
}

func (s *Service) CreateStrategy(userID string, req *CreateStrategyRequest) (*StrategyConfig, error) {
	// Building the signaler up front validates both type and params
	if _, err := NewSignaler(req.Type, req.Params); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, req.Type)
	}

	timeframe := req.Timeframe
	if timeframe == "" {
		timeframe = "1h"
	}

	cfg := &StrategyConfig{
		StrategyID: uuid.New().String(),
		UserID:     userID,
		Name:       req.Name,
		Type:       req.Type,
		Symbol:     req.Symbol,
		Timeframe:  timeframe,
		Params:     req.Params,
		Active:     true,
	}

	if err := s.db.CreateStrategy(cfg); err != nil {
		return nil, fmt.Errorf("failed to store strategy: %w", err)
	}

	log.Info().
		Str("user_id", userID).
		Str("strategy_id", cfg.StrategyID).
		Str("type", cfg.Type).
		Str("symbol", cfg.Symbol).
		Msg("strategy created")

	return cfg, nil
}

func (s *Service) GetStrategy(strategyID, userID string) (*StrategyConfig, error) {
	cfg, err := s.db.GetStrategy(strategyID, userID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrStrategyNotFound
	}
	return cfg, nil
}

func (s *Service) GetUserStrategies(userID string) ([]StrategyConfig, error) {
	return s.db.GetUserStrategies(userID)
}

func (s *Service) UpdateStrategy(strategyID, userID string, req *UpdateStrategyRequest) (*StrategyConfig, error) {
	cfg, err := s.GetStrategy(strategyID, userID)
	if err != nil {
		return nil, err
	}

	if req.Name != "" {
		cfg.Name = req.Name
	}
	if req.Timeframe != "" {
		cfg.Timeframe = req.Timeframe
	}
	if req.Params != nil {
		if _, err := NewSignaler(cfg.Type, *req.Params); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownType, cfg.Type)
		}
		cfg.Params = *req.Params
	}

	if err := s.db.UpdateStrategy(cfg); err != nil {
		return nil, fmt.Errorf("failed to update strategy: %w", err)
	}
	return cfg, nil
}

func (s *Service) DeleteStrategy(strategyID, userID string) error {
	err := s.db.DeactivateStrategy(strategyID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrStrategyNotFound
	}
	return err
}

// StartStrategy marks a strategy as running. Signal generation itself is
// pull-based: backtests and the paper loop evaluate running strategies.
func (s *Service) StartStrategy(strategyID, userID string) (*StrategyConfig, error) {
	cfg, err := s.GetStrategy(strategyID, userID)
	if err != nil {
		return nil, err
	}
	if cfg.Running {
		return nil, ErrAlreadyRunning
	}

	cfg.Running = true
	if err := s.db.UpdateStrategy(cfg); err != nil {
		return nil, fmt.Errorf("failed to start strategy: %w", err)
	}

	log.Info().Str("strategy_id", strategyID).Msg("strategy started")
	return cfg, nil
}

func (s *Service) StopStrategy(strategyID, userID string) (*StrategyConfig, error) {
	cfg, err := s.GetStrategy(strategyID, userID)
	if err != nil {
		return nil, err
	}
	if !cfg.Running {
		return nil, ErrNotRunning
	}

	cfg.Running = false
	if err := s.db.UpdateStrategy(cfg); err != nil {
		return nil, fmt.Errorf("failed to stop strategy: %w", err)
	}

	log.Info().Str("strategy_id", strategyID).Msg("strategy stopped")
	return cfg, nil
}

// SignalResult is the outcome of a live strategy evaluation
type SignalResult struct {
	StrategyID  string    `json:"strategy_id"`
	Symbol      string    `json:"symbol"`
	Signal      string    `json:"signal"`
	Price       float64   `json:"price"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// EvaluateStrategy runs the strategy against recent candles and returns the
// signal for the latest bar, recording it on the strategy row.
func (s *Service) EvaluateStrategy(ctx context.Context, strategyID, userID string) (*SignalResult, error) {
	cfg, err := s.GetStrategy(strategyID, userID)
	if err != nil {
		return nil, err
	}

	signaler, err := NewSignaler(cfg.Type, cfg.Params)
	if err != nil {
		return nil, err
	}

	step, err := exchange.IntervalDuration(cfg.Timeframe)
	if err != nil {
		return nil, err
	}

	end := time.Now().UTC()
	start := end.Add(-time.Duration(evaluationWindow) * step)
	candles, err := s.gateway.Candles(ctx, cfg.Symbol, cfg.Timeframe, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load candles: %w", err)
	}
	if len(candles) == 0 {
		return nil, errors.New("no candle data for evaluation")
	}

	last := len(candles) - 1
	signal := signaler(candles, last)

	if err := s.db.RecordSignal(strategyID, signal); err != nil {
		log.Warn().Err(err).Str("strategy_id", strategyID).Msg("failed to record signal")
	}

	log.Debug().
		Str("strategy_id", strategyID).
		Str("symbol", cfg.Symbol).
		Str("signal", signal).
		Msg("strategy evaluated")

	return &SignalResult{
		StrategyID:  strategyID,
		Symbol:      cfg.Symbol,
		Signal:      signal,
		Price:       candles[last].Close,
		EvaluatedAt: candles[last].OpenTime,
	}, nil
}

// GinHandlers provides HTTP handlers for strategy management
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

func (h *GinHandlers) CreateStrategyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateStrategyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request: "+err.Error())
			return
		}

		cfg, err := h.service.CreateStrategy(middleware.UserID(c), &req)
		if err != nil {
			if errors.Is(err, ErrUnknownType) {
				response.BadRequest(c, err.Error())
				return
			}
			log.Error().Err(err).Msg("failed to create strategy")
			response.InternalError(c, "Failed to create strategy")
			return
		}

		response.Success(c, cfg)
	}
}

func (h *GinHandlers) ListStrategiesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		configs, err := h.service.GetUserStrategies(middleware.UserID(c))
		if err != nil {
			log.Error().Err(err).Msg("failed to list strategies")
			response.InternalError(c, "Failed to fetch strategies")
			return
		}

		response.Success(c, gin.H{
			"strategies": configs,
			"count":      len(configs),
		})
	}
}

func (h *GinHandlers) GetStrategyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg, err := h.service.GetStrategy(c.Param("id"), middleware.UserID(c))
		if err != nil {
			if errors.Is(err, ErrStrategyNotFound) {
				response.NotFound(c, "Strategy not found")
				return
			}
			log.Error().Err(err).Msg("failed to fetch strategy")
			response.InternalError(c, "Failed to fetch strategy")
			return
		}

		response.Success(c, cfg)
	}
}

func (h *GinHandlers) UpdateStrategyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateStrategyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request: "+err.Error())
			return
		}

		cfg, err := h.service.UpdateStrategy(c.Param("id"), middleware.UserID(c), &req)
		if err != nil {
			switch {
			case errors.Is(err, ErrStrategyNotFound):
				response.NotFound(c, "Strategy not found")
			case errors.Is(err, ErrUnknownType):
				response.BadRequest(c, err.Error())
			default:
				log.Error().Err(err).Msg("failed to update strategy")
				response.InternalError(c, "Failed to update strategy")
			}
			return
		}

		response.Success(c, cfg)
	}
}

func (h *GinHandlers) DeleteStrategyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.service.DeleteStrategy(c.Param("id"), middleware.UserID(c)); err != nil {
			if errors.Is(err, ErrStrategyNotFound) {
				response.NotFound(c, "Strategy not found")
				return
			}
			log.Error().Err(err).Msg("failed to delete strategy")
			response.InternalError(c, "Failed to delete strategy")
			return
		}

		response.Success(c, gin.H{"deleted": true})
	}
}

func (h *GinHandlers) StartStrategyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg, err := h.service.StartStrategy(c.Param("id"), middleware.UserID(c))
		if err != nil {
			switch {
			case errors.Is(err, ErrStrategyNotFound):
				response.NotFound(c, "Strategy not found")
			case errors.Is(err, ErrAlreadyRunning):
				response.Conflict(c, err.Error())
			default:
				log.Error().Err(err).Msg("failed to start strategy")
				response.InternalError(c, "Failed to start strategy")
			}
			return
		}

		response.Success(c, cfg)
	}
}

func (h *GinHandlers) EvaluateStrategyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.service.EvaluateStrategy(c.Request.Context(), c.Param("id"), middleware.UserID(c))
		if err != nil {
			if errors.Is(err, ErrStrategyNotFound) {
				response.NotFound(c, "Strategy not found")
				return
			}
			log.Error().Err(err).Msg("strategy evaluation failed")
			response.InternalError(c, "Failed to evaluate strategy")
			return
		}

		response.Success(c, result)
	}
}

func (h *GinHandlers) StopStrategyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg, err := h.service.StopStrategy(c.Param("id"), middleware.UserID(c))
		if err != nil {
			switch {
			case errors.Is(err, ErrStrategyNotFound):
				response.NotFound(c, "Strategy not found")
			case errors.Is(err, ErrNotRunning):
				response.Conflict(c, err.Error())
			default:
				log.Error().Err(err).Msg("failed to stop strategy")
				response.InternalError(c, "Failed to stop strategy")
			}
			return
		}

		response.Success(c, cfg)
	}
}
