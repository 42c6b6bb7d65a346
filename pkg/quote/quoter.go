// Package quote prices trade intents against the supported venues and keeps
// a background estimate fresh.
package quote

import (
	"context"
	"time"

	"moonx-swap/pkg/types"
)

// Refresh intervals per venue
const (
	OnChainInterval    = 10 * time.Second
	AggregatorInterval = 30 * time.Second
)

// Quoter prices a trade intent
type Quoter interface {
	Quote(ctx context.Context, intent types.TradeIntent) (*types.QuoteResult, error)
}

// IntervalFor returns the refresh interval used for venue
func IntervalFor(venue types.Venue) time.Duration {
	if venue == types.VenueAggregator {
		return AggregatorInterval
	}
	return OnChainInterval
}

// Mux dispatches to one quoter per venue
type Mux map[types.Venue]Quoter

// Quote routes intent to the quoter registered for its venue
func (m Mux) Quote(ctx context.Context, intent types.TradeIntent) (*types.QuoteResult, error) {
	q, ok := m[intent.Venue]
	if !ok {
		return nil, types.Errorf(types.KindVenueUnavailable, "venue %q is not configured", intent.Venue)
	}
	return q.Quote(ctx, intent)
}

func requireAmount(intent types.TradeIntent) error {
	if intent.Amount == nil || intent.Amount.Sign() <= 0 {
		return types.Errorf(types.KindInvalidIntent, "amount must be greater than zero")
	}
	return nil
}
