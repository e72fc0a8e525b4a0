package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coinops/tradebot-api/internal/auth"
	"github.com/coinops/tradebot-api/internal/backtest"
	"github.com/coinops/tradebot-api/internal/database"
	"github.com/coinops/tradebot-api/internal/exchange"
	"github.com/coinops/tradebot-api/internal/strategy"
	"github.com/coinops/tradebot-api/internal/trading"
	"github.com/coinops/tradebot-api/internal/types"
	"github.com/coinops/tradebot-api/pkg/middleware"
)

const (
	minOrders     = 15
	maxOrders     = 150
	numWorkers    = 5
	serverAddress = "http://localhost:8080"
	jwtSecret     = "simulation-secret-key"
)

var symbols = []string{"BTC/USDT", "ETH/USDT", "SOL/USDT", "ADA/USDT", "DOT/USDT"}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	// Configure pretty logging
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	// Sort durations for percentile calculations
	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	// Calculate mean
	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	// Calculate median
	median = rs.durations[len(rs.durations)/2]

	// Calculate percentiles
	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the trading API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
	mu        sync.Mutex
}

// newSimulationClient creates and initializes a new simulation client.
// It registers an account, authenticates, and prepares performance tracking.
func newSimulationClient() (*simulationClient, error) {
	// Create HTTP client with timeout
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	sc := &simulationClient{
		baseURL: serverAddress,
		client:  client,
		stats: map[string]*routeStats{
			"auth":        {name: "Authentication"},
			"order":       {name: "Place Order"},
			"portfolio":   {name: "Portfolio"},
			"performance": {name: "Performance"},
			"backtest":    {name: "Queue Backtest"},
		},
	}

	// Register an account and get auth token
	token, err := sc.authenticate()
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token

	return sc, nil
}

func (sc *simulationClient) record(route string, start time.Time, failed bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.stats[route].addDuration(time.Since(start))
	if failed {
		sc.stats[route].failures++
	}
}

// authenticate registers a fresh account and exchanges its credentials for a
// JWT token
func (sc *simulationClient) authenticate() (string, error) {
	start := time.Now()
	failed := true
	defer func() {
		sc.record("auth", start, failed)
	}()

	register := map[string]string{
		"email": fmt.Sprintf("sim-%d@example.com", time.Now().UnixNano()),
	}
	body, err := json.Marshal(register)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/register", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("registration failed with status: %d", resp.StatusCode)
	}

	var registered struct {
		Data auth.RegisterResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&registered); err != nil {
		return "", err
	}

	credentials := auth.Credentials{
		APIKey:    registered.Data.APIKey,
		APISecret: registered.Data.APISecret,
	}
	body, err = json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	resp, err = sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Data auth.TokenResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	failed = false
	return result.Data.Token, nil
}

// placeOrder submits a new order and returns the recorded trade
func (sc *simulationClient) placeOrder(order *types.OrderRequest) (*types.Trade, error) {
	start := time.Now()
	failed := true
	defer func() {
		sc.record("order", start, failed)
	}()

	body, err := json.Marshal(order)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(
		"POST",
		fmt.Sprintf("%s/api/v1/trading/orders", sc.baseURL),
		bytes.NewBuffer(body),
	)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("response", string(respBody)).Msg("Place order response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("place order failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool        `json:"success"`
		Data    types.Trade `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	if result.Data.TradeID == "" {
		return nil, fmt.Errorf("no trade ID in response: %s", string(respBody))
	}

	failed = false
	return &result.Data, nil
}

func (sc *simulationClient) get(route, path string, out interface{}) error {
	start := time.Now()
	failed := true
	defer func() {
		sc.record(route, start, failed)
	}()

	req, err := http.NewRequest("GET", sc.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s failed with status %d: %s", path, resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	failed = false
	return nil
}

// queueBacktest creates a strategy and queues a backtest over the last month
func (sc *simulationClient) queueBacktest() error {
	start := time.Now()
	failed := true
	defer func() {
		sc.record("backtest", start, failed)
	}()

	strategyReq := strategy.CreateStrategyRequest{
		Name:      "Simulation RSI",
		Type:      strategy.TypeRSI,
		Symbol:    symbols[0],
		Timeframe: "1h",
		Params:    strategy.Params{Period: 14, Oversold: 30, Overbought: 70},
	}
	var created struct {
		Data strategy.StrategyConfig `json:"data"`
	}
	if err := sc.post("/api/v1/strategies", strategyReq, &created); err != nil {
		return err
	}

	backtestReq := backtest.CreateBacktestRequest{
		StrategyID:     created.Data.StrategyID,
		StartTime:      time.Now().AddDate(0, -1, 0),
		EndTime:        time.Now(),
		InitialBalance: 10000,
	}
	var queued struct {
		Data backtest.Backtest `json:"data"`
	}
	if err := sc.post("/api/v1/backtests", backtestReq, &queued); err != nil {
		return err
	}

	log.Info().
		Str("backtest_id", queued.Data.BacktestID).
		Str("strategy_id", created.Data.StrategyID).
		Msg("Backtest queued")

	failed = false
	return nil
}

func (sc *simulationClient) post(path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", sc.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("POST %s failed with status %d: %s", path, resp.StatusCode, string(respBody))
	}

	return json.Unmarshal(respBody, out)
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the trading simulation.
// It starts a local API server, simulates multiple concurrent trading
// clients placing paper orders, then reads back the portfolio and
// performance views.
func main() {
	// Start the server in a goroutine
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	// Initialize simulation client
	simClient, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	// Generate random number of orders to process
	targetOrders := rand.Intn(maxOrders-minOrders) + minOrders
	log.Info().Int("target_orders", targetOrders).Msg("Starting simulation")

	tradesChan := make(chan *types.Trade, targetOrders)
	var wg sync.WaitGroup

	// Start worker goroutines
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			placeOrdersHTTP(workerID, targetOrders/numWorkers, simClient, tradesChan)
		}(i)
	}

	// Wait for all orders to be placed
	wg.Wait()
	close(tradesChan)

	stats := struct {
		TotalOrders  int
		Buys         int
		Sells        int
		TotalValue   float64
		RealizedPNL  float64
		FailedOrders int
		StartTime    time.Time
		Symbols      map[string]int
	}{
		StartTime: time.Now(),
		Symbols:   make(map[string]int),
	}

	for trade := range tradesChan {
		stats.TotalOrders++
		stats.TotalValue += trade.FilledQuantity * trade.AveragePrice
		stats.Symbols[trade.Symbol]++
		if trade.Side == types.SideBuy {
			stats.Buys++
		} else {
			stats.Sells++
			stats.RealizedPNL += trade.PNL
		}
	}

	log.Info().Int("orders_placed", stats.TotalOrders).Msg("All orders placed")

	// Read back the dashboard views
	var portfolio struct {
		Data types.PortfolioResponse `json:"data"`
	}
	if err := simClient.get("portfolio", "/api/v1/portfolio", &portfolio); err != nil {
		log.Error().Err(err).Msg("Failed to fetch portfolio")
	}

	var performance struct {
		Data types.PerformanceResponse `json:"data"`
	}
	if err := simClient.get("performance", "/api/v1/portfolio/performance?days=30", &performance); err != nil {
		log.Error().Err(err).Msg("Failed to fetch performance")
	}

	// Queue a backtest so the processor has work
	if err := simClient.queueBacktest(); err != nil {
		log.Error().Err(err).Msg("Failed to queue backtest")
	}

	// Print summary
	duration := time.Since(stats.StartTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("TRADING SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
Order Statistics
----------------
Total Orders:   %d
Buys:           %d
Sells:          %d
Total Value:    $%.2f
Realized PnL:   $%.2f
Duration:       %v

Portfolio
---------
Positions:      %d
Total PnL:      $%.2f
Win Rate:       %.1f%%
Profit Factor:  %s

Performance (30d)
-----------------
Trades:         %d (%d won / %d lost)
Volume:         $%.2f
Fees:           $%.2f

Symbol Distribution
-------------------
`, stats.TotalOrders, stats.Buys, stats.Sells, stats.TotalValue, stats.RealizedPNL,
		duration.Round(time.Millisecond),
		len(portfolio.Data.Positions), portfolio.Data.TotalPNL,
		portfolio.Data.WinRate, portfolio.Data.ProfitFactor,
		performance.Data.TotalTrades, performance.Data.WinningTrades,
		performance.Data.LosingTrades, performance.Data.TotalVolume,
		performance.Data.TotalFees)

	// Print symbol distribution with a simple ASCII bar chart
	maxSymbolCount := 0
	for _, count := range stats.Symbols {
		if count > maxSymbolCount {
			maxSymbolCount = count
		}
	}
	for symbol, count := range stats.Symbols {
		barLength := 0
		if maxSymbolCount > 0 {
			barLength = int(float64(count) / float64(maxSymbolCount) * 20)
		}
		bar := strings.Repeat("#", barLength)
		fmt.Printf("%-10s: %s (%d)\n", symbol, bar, count)
	}

	fmt.Println("\n" + strings.Repeat("=", 80))

	log.Info().
		Int("total_orders", stats.TotalOrders).
		Float64("total_value", stats.TotalValue).
		Float64("realized_pnl", stats.RealizedPNL).
		Dur("duration", duration).
		Msg("Simulation completed")

	simClient.printPerformanceStats()
}

// placeOrdersHTTP generates and submits random orders to the API.
// Buys outnumber sells two to one so the sells usually have buy history to
// match against.
func placeOrdersHTTP(workerID, numOrders int, simClient *simulationClient, tradesChan chan<- *types.Trade) {
	for i := 0; i < numOrders; i++ {
		side := types.SideBuy
		if rand.Intn(3) == 0 {
			side = types.SideSell
		}

		order := &types.OrderRequest{
			Symbol:    symbols[rand.Intn(len(symbols))],
			Side:      side,
			OrderType: types.OrderTypeMarket,
			Quantity:  float64(rand.Intn(5)+1) / 10,
		}

		trade, err := simClient.placeOrder(order)
		if err != nil {
			log.Error().Err(err).
				Int("worker_id", workerID).
				Str("symbol", order.Symbol).
				Msg("Failed to place order")
			continue
		}

		tradesChan <- trade
		log.Info().
			Int("worker_id", workerID).
			Str("trade_id", trade.TradeID).
			Str("symbol", trade.Symbol).
			Str("side", trade.Side).
			Float64("quantity", trade.FilledQuantity).
			Float64("price", trade.AveragePrice).
			Msg("Order placed")

		// Random sleep between orders
		time.Sleep(time.Duration(rand.Intn(500)) * time.Millisecond)
	}
}

// startServer initializes and starts the trading API server with an
// in-memory friendly setup for the simulation
func startServer() error {
	// Initialize database
	db, err := database.NewDatabase("simulation.db")
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	gateway := exchange.NewSimulatedGateway()

	// Initialize services
	authService := auth.NewService(db, jwtSecret)
	exchangeService := exchange.NewService(db, jwtSecret)
	tradingService := trading.NewService(db, gateway, trading.Options{FeeRate: 0.001})
	strategyService := strategy.NewService(db, gateway)
	backtestService := backtest.NewService(db, strategyService, gateway)

	// Run the backtest processor alongside the server
	processor := backtest.NewProcessor(backtestService, 2*time.Second)
	go processor.Start(context.Background())

	// Initialize router
	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	exchangeHandlers := exchange.NewGinHandlers(exchangeService)
	tradingHandlers := trading.NewGinHandlers(tradingService)
	strategyHandlers := strategy.NewGinHandlers(strategyService)
	backtestHandlers := backtest.NewGinHandlers(backtestService)

	// Setup routes
	setupRoutes(router, jwtSecret,
		authHandlers, exchangeHandlers, tradingHandlers, strategyHandlers, backtestHandlers)

	// Start the server
	return router.Run(":8080")
}

// setupRoutes configures all API endpoints and their handlers
// Groups routes by functionality and applies appropriate middleware
func setupRoutes(
	router *gin.Engine,
	secret string,
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

		// Exchange routes
		exchanges := v1.Group("/exchanges")
		exchanges.Use(middleware.JWTAuth(secret))
		{
			exchanges.POST("", exchangeHandlers.CreateExchangeHandler())
			exchanges.GET("", exchangeHandlers.ListExchangesHandler())
		}

		// Trading routes
		tradingGroup := v1.Group("/trading")
		tradingGroup.Use(middleware.JWTAuth(secret))
		{
			tradingGroup.POST("/orders", tradingHandlers.PlaceOrderHandler())
			tradingGroup.GET("/history", tradingHandlers.GetTradeHistoryHandler())
		}

		// Portfolio routes
		portfolio := v1.Group("/portfolio")
		portfolio.Use(middleware.JWTAuth(secret))
		{
			portfolio.GET("", tradingHandlers.GetPortfolioHandler())
			portfolio.GET("/performance", tradingHandlers.GetPerformanceHandler())
		}

		// Strategy and backtest routes
		strategies := v1.Group("/strategies")
		strategies.Use(middleware.JWTAuth(secret))
		{
			strategies.POST("", strategyHandlers.CreateStrategyHandler())
		}

		backtests := v1.Group("/backtests")
		backtests.Use(middleware.JWTAuth(secret))
		{
			backtests.POST("", backtestHandlers.CreateBacktestHandler())
			backtests.GET("/:id", backtestHandlers.GetBacktestHandler())
		}
	}
}
