package pnl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/coinops/tradebot-api/internal/types"
)

type stubLedger struct {
	fills []types.Trade
	err   error
}

func (s *stubLedger) GetBuyFills(ctx context.Context, userID, symbol string) ([]types.Trade, error) {
	return s.fills, s.err
}

func buyFill(id uint, executedAt time.Time, qty, price float64) types.Trade {
	return types.Trade{
		Model:          gorm.Model{ID: id},
		Side:           types.SideBuy,
		Quantity:       qty,
		FilledQuantity: qty,
		Price:          price,
		Status:         types.StatusFilled,
		ExecutedAt:     executedAt,
	}
}

func TestResolveSellPNLFIFO(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	ledger := &stubLedger{fills: []types.Trade{
		buyFill(1, base, 1, 100),
		buyFill(2, base.Add(time.Minute), 1, 200),
	}}
	r := NewResolver(ledger)

	// cost basis = 1*100 + 0.5*200 = 200
	realized, err := r.ResolveSellPNL(context.Background(), "u1", "BTC/USDT", 1.5, 300)
	require.NoError(t, err)
	assert.InDelta(t, 250.0, realized, 1e-9)
}

func TestResolveSellPNLOversell(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	ledger := &stubLedger{fills: []types.Trade{
		buyFill(1, base, 1, 100),
		buyFill(2, base.Add(time.Minute), 1, 200),
	}}
	r := NewResolver(ledger)

	// Both lots are consumed (cost basis 300); the unmatched third unit
	// contributes its full sale price with zero matched cost.
	realized, err := r.ResolveSellPNL(context.Background(), "u1", "BTC/USDT", 3, 300)
	require.NoError(t, err)
	assert.InDelta(t, 600.0, realized, 1e-9)
}

func TestResolveSellPNLRejectOversold(t *testing.T) {
	ledger := &stubLedger{fills: []types.Trade{
		buyFill(1, time.Now(), 1, 100),
	}}
	r := NewResolver(ledger)
	r.RejectOversold = true

	_, err := r.ResolveSellPNL(context.Background(), "u1", "BTC/USDT", 2, 300)
	assert.ErrorIs(t, err, ErrOversold)
}

func TestResolveSellPNLEmptyLedger(t *testing.T) {
	r := NewResolver(&stubLedger{})

	realized, err := r.ResolveSellPNL(context.Background(), "u1", "ETH/USDT", 2, 150)
	require.NoError(t, err)
	assert.InDelta(t, 300.0, realized, 1e-9)
}

func TestResolveSellPNLTimestampTieBreak(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	// Same executed_at: insertion order (id) decides which lot is older.
	// Fills arrive out of id order to exercise the sort.
	ledger := &stubLedger{fills: []types.Trade{
		buyFill(2, ts, 1, 500),
		buyFill(1, ts, 1, 100),
	}}
	r := NewResolver(ledger)

	realized, err := r.ResolveSellPNL(context.Background(), "u1", "BTC/USDT", 1, 300)
	require.NoError(t, err)
	// Lot with id 1 (price 100) must be consumed first.
	assert.InDelta(t, 200.0, realized, 1e-9)
}

func TestResolveSellPNLIgnoresSellFills(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	sell := buyFill(2, base.Add(time.Second), 5, 50)
	sell.Side = types.SideSell
	ledger := &stubLedger{fills: []types.Trade{
		buyFill(1, base, 1, 100),
		sell,
	}}
	r := NewResolver(ledger)

	realized, err := r.ResolveSellPNL(context.Background(), "u1", "BTC/USDT", 1, 300)
	require.NoError(t, err)
	assert.InDelta(t, 200.0, realized, 1e-9)
}

func TestResolveSellPNLInputValidation(t *testing.T) {
	r := NewResolver(&stubLedger{})

	_, err := r.ResolveSellPNL(context.Background(), "u1", "BTC/USDT", 0, 300)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = r.ResolveSellPNL(context.Background(), "u1", "BTC/USDT", 1, -5)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestResolveSellPNLLedgerErrorPropagates(t *testing.T) {
	ledgerErr := errors.New("connection reset")
	r := NewResolver(&stubLedger{err: ledgerErr})

	_, err := r.ResolveSellPNL(context.Background(), "u1", "BTC/USDT", 1, 100)
	assert.ErrorIs(t, err, ledgerErr)
}

func TestResolveFromFillsPartialLot(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	fills := []types.Trade{
		buyFill(1, base, 2, 100),
	}

	// Two sells against the same history double count the first lot: the
	// resolver is stateless and replays the full ledger each call.
	first, matched := ResolveFromFills(fills, 1.5, 120)
	assert.InDelta(t, 1.5*120-150, first, 1e-9)
	assert.InDelta(t, 1.5, matched, 1e-9)

	second, matched := ResolveFromFills(fills, 1.5, 120)
	assert.InDelta(t, first, second, 1e-9)
	assert.InDelta(t, 1.5, matched, 1e-9)
}
