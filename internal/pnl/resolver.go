package pnl

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/coinops/tradebot-api/internal/types"
)

var (
	ErrInvalidQuantity = errors.New("sell quantity must be positive")
	ErrInvalidPrice    = errors.New("sell price must be positive")
	ErrOversold        = errors.New("sell quantity exceeds recorded buy history")
)

// LedgerReader provides read access to the filled trade ledger. The resolver
// never writes to the ledger.
type LedgerReader interface {
	GetBuyFills(ctx context.Context, userID, symbol string) ([]types.Trade, error)
}

// Resolver computes realized PnL for sell fills by replaying the buy side of
// the ledger and matching sold quantity against the oldest unconsumed lots
// (FIFO). It is stateless across calls: lot consumption is recomputed from the
// full buy history on every resolution, so no remaining-quantity bookkeeping
// is persisted.
type Resolver struct {
	ledger LedgerReader

	// RejectOversold makes the resolver fail when the sell quantity exceeds
	// total recorded buy quantity. When false (the default), the unmatched
	// remainder contributes its full sale price with zero cost basis.
	RejectOversold bool
}

// NewResolver creates a resolver backed by the given ledger reader
func NewResolver(ledger LedgerReader) *Resolver {
	return &Resolver{ledger: ledger}
}

// ResolveSellPNL computes the realized PnL for a sell of sellQuantity units
// at sellPrice against the (userID, symbol) buy history. Only ledger read
// errors propagate; a sell with no matching buy history yields the full
// proceeds as profit.
func (r *Resolver) ResolveSellPNL(ctx context.Context, userID, symbol string, sellQuantity, sellPrice float64) (float64, error) {
	if sellQuantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	if sellPrice <= 0 {
		return 0, ErrInvalidPrice
	}

	fills, err := r.ledger.GetBuyFills(ctx, userID, symbol)
	if err != nil {
		return 0, err
	}

	realized, matched := ResolveFromFills(fills, sellQuantity, sellPrice)
	if r.RejectOversold && matched < sellQuantity {
		return 0, ErrOversold
	}

	log.Debug().
		Str("user_id", userID).
		Str("symbol", symbol).
		Float64("sell_quantity", sellQuantity).
		Float64("sell_price", sellPrice).
		Float64("matched_quantity", matched).
		Float64("realized_pnl", realized).
		Msg("resolved sell PnL")

	return realized, nil
}

// ResolveFromFills performs the FIFO cost-basis allocation over an in-memory
// fill slice and returns the realized PnL along with the buy quantity that
// was actually matched. The slice is not modified; ordering is normalised to
// executed_at ascending with insertion id as tiebreak, since FIFO requires a
// stable total order.
func ResolveFromFills(fills []types.Trade, sellQuantity, sellPrice float64) (realized, matched float64) {
	buys := make([]types.Trade, 0, len(fills))
	for _, f := range fills {
		if f.Side == types.SideBuy {
			buys = append(buys, f)
		}
	}
	sort.SliceStable(buys, func(i, j int) bool {
		if buys[i].ExecutedAt.Equal(buys[j].ExecutedAt) {
			return buys[i].ID < buys[j].ID
		}
		return buys[i].ExecutedAt.Before(buys[j].ExecutedAt)
	})

	remaining := sellQuantity
	costBasis := 0.0
	for _, buy := range buys {
		if remaining <= 0 {
			break
		}
		use := remaining
		if buy.FilledQuantity < use {
			use = buy.FilledQuantity
		}
		costBasis += use * buy.Price
		remaining -= use
	}

	revenue := sellQuantity * sellPrice
	return revenue - costBasis, sellQuantity - remaining
}
