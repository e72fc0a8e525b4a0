package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DBPath string

	// Auth
	JWTSecret string

	// Market data
	BinanceAPIKey    string
	BinanceAPISecret string
	LiveMarketData   bool // use Binance for tickers/candles instead of the simulator

	// Trading
	DefaultExchange string
	PaperFeeRate    float64 // fee rate applied by the paper-fill simulator
	RejectOversold  bool    // make the PnL resolver refuse sells beyond buy history

	// Backtesting
	BacktestPollInterval time.Duration
}

// Load reads configuration from the environment, loading a .env file first
// if one is present. Missing required values are collected and reported
// together.
func Load() (*Config, error) {
	// A missing .env file is fine; plain environment variables still apply
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string

	cfg.Port = getEnv("PORT", "8080")
	cfg.Env = getEnv("ENV", "development")
	cfg.DBPath = getEnv("DB_PATH", "tradebot.db")

	cfg.JWTSecret = getEnv("JWT_SECRET", "")
	if cfg.JWTSecret == "" {
		errs = append(errs, "JWT_SECRET must be set")
	}

	cfg.BinanceAPIKey = getEnv("BINANCE_API_KEY", "")
	cfg.BinanceAPISecret = getEnv("BINANCE_API_SECRET", "")
	cfg.LiveMarketData = getEnvAsBool("LIVE_MARKET_DATA", false)
	if cfg.LiveMarketData && cfg.BinanceAPIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set when LIVE_MARKET_DATA is enabled")
	}

	cfg.DefaultExchange = getEnv("DEFAULT_EXCHANGE", "binance")

	var err error
	cfg.PaperFeeRate, err = getEnvAsFloat("PAPER_FEE_RATE", 0.001)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PAPER_FEE_RATE: %v", err))
	} else if cfg.PaperFeeRate < 0 {
		errs = append(errs, "PAPER_FEE_RATE must not be negative")
	}

	cfg.RejectOversold = getEnvAsBool("REJECT_OVERSOLD_SELLS", false)

	pollSeconds, err := getEnvAsInt("BACKTEST_POLL_SECONDS", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BACKTEST_POLL_SECONDS: %v", err))
	} else if pollSeconds <= 0 {
		errs = append(errs, "BACKTEST_POLL_SECONDS must be positive")
	}
	cfg.BacktestPollInterval = time.Duration(pollSeconds) * time.Second

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	return strconv.Atoi(value)
}

func getEnvAsFloat(key string, fallback float64) (float64, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(value, 64)
}
