package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/coinops/tradebot-api/internal/auth"
	"github.com/coinops/tradebot-api/internal/backtest"
	"github.com/coinops/tradebot-api/internal/config"
	"github.com/coinops/tradebot-api/internal/database"
	"github.com/coinops/tradebot-api/internal/exchange"
	"github.com/coinops/tradebot-api/internal/strategy"
	"github.com/coinops/tradebot-api/internal/trading"
	"github.com/coinops/tradebot-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the trading API server with graceful shutdown
// support. It wires the database, market data gateway, all services and API
// routes, and runs the backtest processor in the background.
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.DBPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Market data: Binance when live data is enabled, simulator otherwise
	var gateway exchange.Gateway
	if cfg.LiveMarketData {
		gateway = exchange.NewBinanceGateway(cfg.BinanceAPIKey, cfg.BinanceAPISecret, cfg.Env != "production")
		zlog.Info().Msg("Using Binance market data")
	} else {
		gateway = exchange.NewSimulatedGateway()
		zlog.Info().Msg("Using simulated market data")
	}

	// Initialize router
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(db, cfg.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)

	exchangeService := exchange.NewService(db, cfg.JWTSecret)
	exchangeHandlers := exchange.NewGinHandlers(exchangeService)

	tradingService := trading.NewService(db, gateway, trading.Options{
		FeeRate:        cfg.PaperFeeRate,
		RejectOversold: cfg.RejectOversold,
	})
	tradingHandlers := trading.NewGinHandlers(tradingService)

	strategyService := strategy.NewService(db, gateway)
	strategyHandlers := strategy.NewGinHandlers(strategyService)

	backtestService := backtest.NewService(db, strategyService, gateway)
	backtestHandlers := backtest.NewGinHandlers(backtestService)

	// Create and start backtest processor
	backtestProcessor := backtest.NewProcessor(backtestService, cfg.BacktestPollInterval)
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go backtestProcessor.Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg.JWTSecret,
		authHandlers, exchangeHandlers, tradingHandlers, strategyHandlers, backtestHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	zlog.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("Server started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Stop the processor before the HTTP server so in-flight runs requeue
	processorCancel()

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers.
// Routes are grouped by functionality:
// - Auth routes: public registration and token issuance
// - Everything else: protected by JWT authentication
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	exchangeHandlers *exchange.GinHandlers,
	tradingHandlers *trading.GinHandlers,
	strategyHandlers *strategy.GinHandlers,
	backtestHandlers *backtest.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandlers.RegisterHandler())
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Exchange connection routes
		exchanges := v1.Group("/exchanges")
		exchanges.Use(middleware.JWTAuth(jwtSecret))
		{
			exchanges.POST("", exchangeHandlers.CreateExchangeHandler())
			exchanges.GET("", exchangeHandlers.ListExchangesHandler())
			exchanges.GET("/:id", exchangeHandlers.GetExchangeHandler())
			exchanges.PUT("/:id/credentials", exchangeHandlers.UpdateCredentialsHandler())
			exchanges.DELETE("/:id", exchangeHandlers.DeleteExchangeHandler())
			exchanges.POST("/:id/test", exchangeHandlers.TestConnectionHandler())
		}

		// Trading routes
		tradingGroup := v1.Group("/trading")
		tradingGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			tradingGroup.POST("/orders", tradingHandlers.PlaceOrderHandler())
			tradingGroup.GET("/orders/:id", tradingHandlers.GetTradeHandler())
			tradingGroup.DELETE("/orders/:id", tradingHandlers.CancelTradeHandler())
			tradingGroup.GET("/history", tradingHandlers.GetTradeHistoryHandler())
		}

		// Portfolio routes
		portfolio := v1.Group("/portfolio")
		portfolio.Use(middleware.JWTAuth(jwtSecret))
		{
			portfolio.GET("", tradingHandlers.GetPortfolioHandler())
			portfolio.GET("/positions", tradingHandlers.GetPositionsHandler())
			portfolio.GET("/performance", tradingHandlers.GetPerformanceHandler())
		}

		// Market data routes
		market := v1.Group("/market")
		market.Use(middleware.JWTAuth(jwtSecret))
		{
			market.GET("/ticker", tradingHandlers.GetTickerHandler())
			market.GET("/candles", tradingHandlers.GetCandlesHandler())
			market.GET("/balances", tradingHandlers.GetBalancesHandler())
		}

		// Strategy routes
		strategies := v1.Group("/strategies")
		strategies.Use(middleware.JWTAuth(jwtSecret))
		{
			strategies.POST("", strategyHandlers.CreateStrategyHandler())
			strategies.GET("", strategyHandlers.ListStrategiesHandler())
			strategies.GET("/:id", strategyHandlers.GetStrategyHandler())
			strategies.PUT("/:id", strategyHandlers.UpdateStrategyHandler())
			strategies.DELETE("/:id", strategyHandlers.DeleteStrategyHandler())
			strategies.POST("/:id/start", strategyHandlers.StartStrategyHandler())
			strategies.POST("/:id/stop", strategyHandlers.StopStrategyHandler())
			strategies.GET("/:id/signal", strategyHandlers.EvaluateStrategyHandler())
		}

		// Backtest routes
		backtests := v1.Group("/backtests")
		backtests.Use(middleware.JWTAuth(jwtSecret))
		{
			backtests.POST("", backtestHandlers.CreateBacktestHandler())
			backtests.GET("", backtestHandlers.ListBacktestsHandler())
			backtests.GET("/:id", backtestHandlers.GetBacktestHandler())
			backtests.POST("/:id/cancel", backtestHandlers.CancelBacktestHandler())
		}
	}
}
