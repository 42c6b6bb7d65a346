package quote

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"moonx-swap/pkg/metrics"
	"moonx-swap/pkg/types"
)

// DefaultQuoteTimeout bounds a single background quote
const DefaultQuoteTimeout = 20 * time.Second

// Update is a published quote outcome
type Update struct {
	Generation uint64
	Intent     types.TradeIntent
	Result     *types.QuoteResult
	Err        error
	At         time.Time
}

// Refresher keeps a quote for the current intent fresh. Each request is
// stamped with a generation; results for anything but the latest generation
// are dropped, so the newest request wins regardless of resolution order.
type Refresher struct {
	quoter   Quoter
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
	onUpdate func(Update)

	mu      sync.Mutex
	gen     uint64
	intent  *types.TradeIntent
	latest  *Update
	trigger chan struct{}
	wg      sync.WaitGroup
}

// NewRefresher creates a refresher polling quoter every interval.
// onUpdate may be nil.
func NewRefresher(quoter Quoter, interval time.Duration, logger zerolog.Logger, onUpdate func(Update)) *Refresher {
	if interval <= 0 {
		interval = OnChainInterval
	}
	return &Refresher{
		quoter:   quoter,
		interval: interval,
		timeout:  DefaultQuoteTimeout,
		logger:   logger.With().Str("component", "refresher").Logger(),
		onUpdate: onUpdate,
		trigger:  make(chan struct{}, 1),
	}
}

// SetIntent replaces the quoted intent and requests an immediate quote
func (r *Refresher) SetIntent(intent types.TradeIntent) uint64 {
	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.intent = &intent
	r.mu.Unlock()

	r.poke()
	return gen
}

// Clear drops the intent and current estimate, discarding in-flight quotes.
// Ticks do nothing until the next SetIntent.
func (r *Refresher) Clear() {
	r.mu.Lock()
	r.gen++
	r.intent = nil
	r.latest = nil
	r.mu.Unlock()
}

// Latest returns the most recent accepted update
func (r *Refresher) Latest() (Update, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest == nil {
		return Update{}, false
	}
	return *r.latest, true
}

func (r *Refresher) poke() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run quotes on every tick and intent change until ctx is cancelled. It
// waits for in-flight quotes before returning.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer r.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.trigger:
			r.dispatch(ctx)
		case <-ticker.C:
			r.dispatch(ctx)
		}
	}
}

// dispatch starts a quote for the current generation without blocking newer ones
func (r *Refresher) dispatch(ctx context.Context) {
	r.mu.Lock()
	if r.intent == nil {
		r.mu.Unlock()
		return
	}
	gen, intent := r.gen, *r.intent
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()

		qctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		result, err := r.quoter.Quote(qctx, intent)
		if err != nil && ctx.Err() == nil {
			err = types.Classify(types.KindVenueUnavailable, err)
		}
		r.publish(Update{Generation: gen, Intent: intent, Result: result, Err: err, At: time.Now()})
	}()
}

func (r *Refresher) publish(u Update) {
	outcome := "ok"
	if u.Err != nil {
		outcome = "error"
	}
	metrics.QuotesTotal.WithLabelValues(string(u.Intent.Venue), outcome).Inc()

	r.mu.Lock()
	if u.Generation != r.gen {
		r.mu.Unlock()
		metrics.StaleQuotesTotal.Inc()
		r.logger.Debug().Uint64("generation", u.Generation).Msg("discarding stale quote")
		return
	}
	r.latest = &u
	onUpdate := r.onUpdate
	r.mu.Unlock()

	if u.Err != nil {
		r.logger.Warn().Err(u.Err).Str("venue", string(u.Intent.Venue)).Msg("quote failed")
	}
	if onUpdate != nil {
		onUpdate(u)
	}
}
