package exchange

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coinops/tradebot-api/internal/types"
)

// Gateway provides market data. The trading service uses it for unrealized
// PnL marks and the backtest engine for historical candles.
type Gateway interface {
	Ticker(ctx context.Context, symbol string) (*types.Ticker, error)
	Candles(ctx context.Context, symbol, interval string, start, end time.Time) ([]types.Candle, error)
	Balances(ctx context.Context) (map[string]float64, error)
}

// IntervalDuration maps a candle interval string to its bar duration
func IntervalDuration(interval string) (time.Duration, error) {
	switch interval {
	case "1m":
		return time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported interval %q", interval)
	}
}

// SimulatedGateway generates synthetic market data from a per-symbol seeded
// random walk. The same symbol and time range always produce the same
// series, which keeps paper trading and backtests reproducible.
type SimulatedGateway struct {
	mu    sync.Mutex
	last  map[string]float64
	drift float64
}

func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{
		last:  make(map[string]float64),
		drift: 0.0001,
	}
}

// basePrice derives a stable starting price from the symbol name so that
// BTC pairs do not trade at the same level as micro-caps
func basePrice(symbol string) float64 {
	h := fnv.New32a()
	h.Write([]byte(strings.ToUpper(symbol)))
	// Spread symbols across roughly 10..50000 quote units
	return 10 + float64(h.Sum32()%50000)
}

func (g *SimulatedGateway) Ticker(ctx context.Context, symbol string) (*types.Ticker, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	price, ok := g.last[symbol]
	if !ok {
		price = basePrice(symbol)
	}

	// Random walk step bounded to ±1% per observation
	step := price * (rand.Float64()*0.02 - 0.01 + g.drift)
	price += step
	if price <= 0 {
		price = basePrice(symbol)
	}
	g.last[symbol] = price

	spread := price * 0.0005
	return &types.Ticker{
		Symbol:    symbol,
		Last:      price,
		Bid:       price - spread,
		Ask:       price + spread,
		High24h:   price * 1.02,
		Low24h:    price * 0.98,
		Volume24h: float64(1000 + rand.Intn(100000)),
		Timestamp: time.Now(),
	}, nil
}

func (g *SimulatedGateway) Candles(ctx context.Context, symbol, interval string, start, end time.Time) ([]types.Candle, error) {
	step, err := IntervalDuration(interval)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, fmt.Errorf("invalid candle range: start %s is not before end %s", start, end)
	}

	// Deterministic per symbol+range so repeated backtests see the same data
	seed := int64(fnv32(symbol)) ^ start.Unix()
	rng := rand.New(rand.NewSource(seed))

	price := basePrice(symbol)
	candles := make([]types.Candle, 0, int(end.Sub(start)/step))
	for t := start; t.Before(end); t = t.Add(step) {
		change := price * (rng.Float64()*0.04 - 0.02)
		open := price
		close := price + change
		high := math.Max(open, close) * (1 + rng.Float64()*0.005)
		low := math.Min(open, close) * (1 - rng.Float64()*0.005)
		candles = append(candles, types.Candle{
			OpenTime: t,
			Open:     open,
			High:     high,
			Low:      low,
			Close:    close,
			Volume:   float64(100 + rng.Intn(10000)),
		})
		price = close
	}

	log.Debug().
		Str("symbol", symbol).
		Str("interval", interval).
		Int("candles", len(candles)).
		Msg("generated simulated candles")

	return candles, nil
}

// Balances reports a fixed paper account so portfolio views have something
// to draw against
func (g *SimulatedGateway) Balances(ctx context.Context) (map[string]float64, error) {
	return map[string]float64{
		"USDT": 100000,
		"BTC":  1.5,
		"ETH":  20,
	}, nil
}

func fnv32(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// Fill is the result of a simulated order execution
type Fill struct {
	Price     float64
	Quantity  float64
	Fee       float64
	FeeRate   float64
	Timestamp time.Time
}

// Fixed slippage applied on top of the reference price for market orders
const slippageRate = 0.0001

// SimulateFill executes a paper order against the given reference price.
// Market orders pay a small price variance plus slippage in the direction of
// the trade; limit orders fill at their limit price.
func SimulateFill(order *types.OrderRequest, referencePrice, feeRate float64) *Fill {
	price := referencePrice
	if order.OrderType == types.OrderTypeLimit && order.Price > 0 {
		price = order.Price
	} else {
		// ±0.2% variance around the reference quote
		price = referencePrice * (1 + (rand.Float64()*0.004 - 0.002))
		if order.Side == types.SideBuy {
			price *= 1 + slippageRate
		} else {
			price *= 1 - slippageRate
		}
	}

	fee := price * order.Quantity * feeRate

	log.Debug().
		Str("symbol", order.Symbol).
		Str("side", order.Side).
		Float64("reference_price", referencePrice).
		Float64("fill_price", price).
		Float64("quantity", order.Quantity).
		Float64("fee", fee).
		Msg("simulated order fill")

	return &Fill{
		Price:     price,
		Quantity:  order.Quantity,
		Fee:       fee,
		FeeRate:   feeRate,
		Timestamp: time.Now(),
	}
}
