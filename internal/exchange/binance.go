package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog/log"

	"github.com/coinops/tradebot-api/internal/types"
)

// BinanceGateway serves live market data from Binance spot. Symbols use the
// internal "BTC/USDT" form and are flattened to Binance's "BTCUSDT".
type BinanceGateway struct {
	client *binance.Client
}

func NewBinanceGateway(apiKey, apiSecret string, sandbox bool) *BinanceGateway {
	binance.UseTestnet = sandbox
	return &BinanceGateway{
		client: binance.NewClient(apiKey, apiSecret),
	}
}

func binanceSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

func (g *BinanceGateway) Ticker(ctx context.Context, symbol string) (*types.Ticker, error) {
	stats, err := g.client.NewListPriceChangeStatsService().
		Symbol(binanceSymbol(symbol)).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance ticker request failed for %s: %w", symbol, err)
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("no ticker data for %s", symbol)
	}

	s := stats[0]
	last, err := strconv.ParseFloat(s.LastPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid last price %q for %s: %w", s.LastPrice, symbol, err)
	}
	bid, _ := strconv.ParseFloat(s.BidPrice, 64)
	ask, _ := strconv.ParseFloat(s.AskPrice, 64)
	high, _ := strconv.ParseFloat(s.HighPrice, 64)
	low, _ := strconv.ParseFloat(s.LowPrice, 64)
	volume, _ := strconv.ParseFloat(s.Volume, 64)

	return &types.Ticker{
		Symbol:    symbol,
		Last:      last,
		Bid:       bid,
		Ask:       ask,
		High24h:   high,
		Low24h:    low,
		Volume24h: volume,
		Timestamp: time.Now(),
	}, nil
}

func (g *BinanceGateway) Candles(ctx context.Context, symbol, interval string, start, end time.Time) ([]types.Candle, error) {
	if _, err := IntervalDuration(interval); err != nil {
		return nil, err
	}

	klines, err := g.client.NewKlinesService().
		Symbol(binanceSymbol(symbol)).
		Interval(interval).
		StartTime(start.UnixMilli()).
		EndTime(end.UnixMilli()).
		Limit(1000).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines request failed for %s: %w", symbol, err)
	}

	candles := make([]types.Candle, 0, len(klines))
	for _, k := range klines {
		open, err := strconv.ParseFloat(k.Open, 64)
		if err != nil {
			log.Warn().Str("symbol", symbol).Str("open", k.Open).Msg("skipping kline with bad open price")
			continue
		}
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		close, _ := strconv.ParseFloat(k.Close, 64)
		volume, _ := strconv.ParseFloat(k.Volume, 64)

		candles = append(candles, types.Candle{
			OpenTime: time.UnixMilli(k.OpenTime),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    close,
			Volume:   volume,
		})
	}

	return candles, nil
}

// Balances returns the non-zero spot balances on the account
func (g *BinanceGateway) Balances(ctx context.Context) (map[string]float64, error) {
	account, err := g.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance account request failed: %w", err)
	}

	balances := make(map[string]float64)
	for _, b := range account.Balances {
		free, _ := strconv.ParseFloat(b.Free, 64)
		locked, _ := strconv.ParseFloat(b.Locked, 64)
		if total := free + locked; total > 0 {
			balances[b.Asset] = total
		}
	}
	return balances, nil
}
