package quote

import (
	"context"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moonx-swap/pkg/client"
	"moonx-swap/pkg/evmtest"
	"moonx-swap/pkg/types"
)

// gatedQuoter blocks quotes for gated amounts until released
type gatedQuoter struct {
	mu      sync.Mutex
	gates   map[int64]chan struct{}
	started chan int64
}

func newGatedQuoter() *gatedQuoter {
	return &gatedQuoter{gates: make(map[int64]chan struct{}), started: make(chan int64, 16)}
}

func (q *gatedQuoter) gate(amount int64) chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch := make(chan struct{})
	q.gates[amount] = ch
	return ch
}

func (q *gatedQuoter) Quote(ctx context.Context, intent types.TradeIntent) (*types.QuoteResult, error) {
	amount := intent.Amount.Int64()
	q.started <- amount

	q.mu.Lock()
	gate := q.gates[amount]
	q.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return &types.QuoteResult{RawAmount: big.NewInt(amount * 10), ExpectedOutput: big.NewInt(amount * 10)}, nil
}

func waitStarted(t *testing.T, q *gatedQuoter, amount int64) {
	t.Helper()
	select {
	case got := <-q.started:
		require.Equal(t, amount, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("quote for %d never started", amount)
	}
}

func TestRefresherDiscardsStaleResults(t *testing.T) {
	q := newGatedQuoter()
	releaseFirst := q.gate(1)

	var (
		mu      sync.Mutex
		updates []Update
	)
	r := NewRefresher(q, time.Hour, zerolog.Nop(), func(u Update) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	intent := buyIntent(types.VenueConstantProduct, 1)
	r.SetIntent(intent)
	waitStarted(t, q, 1)

	latestGen := r.SetIntent(intent.WithAmount(big.NewInt(2)))
	waitStarted(t, q, 2)

	require.Eventually(t, func() bool {
		_, ok := r.Latest()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	// The older quote resolves last and must not win
	close(releaseFirst)
	cancel()
	<-done

	latest, ok := r.Latest()
	require.True(t, ok)
	assert.Equal(t, latestGen, latest.Generation)
	assert.Equal(t, "20", latest.Result.ExpectedOutput.String())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, updates, 1)
	assert.Equal(t, int64(2), updates[0].Intent.Amount.Int64())
}

func TestRefresherClearDropsEstimate(t *testing.T) {
	q := newGatedQuoter()
	release := q.gate(5)
	r := NewRefresher(q, time.Hour, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	r.SetIntent(buyIntent(types.VenueConstantProduct, 5))
	waitStarted(t, q, 5)

	r.Clear()
	close(release)
	cancel()
	<-done

	_, ok := r.Latest()
	assert.False(t, ok)
}

func TestRefresherTicks(t *testing.T) {
	q := newGatedQuoter()
	r := NewRefresher(q, 10*time.Millisecond, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	r.SetIntent(buyIntent(types.VenueConstantProduct, 3))
	waitStarted(t, q, 3)
	waitStarted(t, q, 3)
}

func TestRefresherClearPausesTicks(t *testing.T) {
	q := newGatedQuoter()
	r := NewRefresher(q, 10*time.Millisecond, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	r.SetIntent(buyIntent(types.VenueConstantProduct, 4))
	waitStarted(t, q, 4)
	r.Clear()

	// Drain a tick that may have raced with Clear
	select {
	case <-q.started:
	case <-time.After(15 * time.Millisecond):
	}
	select {
	case got := <-q.started:
		t.Fatalf("quote for %d started after Clear", got)
	case <-time.After(60 * time.Millisecond):
	}

	r.SetIntent(buyIntent(types.VenueConstantProduct, 6))
	waitStarted(t, q, 6)
}

func TestRefresherPublishesAggregatorFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "rate limited")
	}))
	defer srv.Close()

	v := NewAggregatorVenue(client.NewAggregatorClient(srv.URL, "", srv.Client()), evmtest.NewBackend(8453), testChain(), common.Address{}, types.PolicyDirectional)
	updates := make(chan Update, 4)
	r := NewRefresher(v, time.Hour, zerolog.Nop(), func(u Update) { updates <- u })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	r.SetIntent(buyIntent(types.VenueAggregator, 1000))

	var u Update
	select {
	case u = <-updates:
	case <-time.After(2 * time.Second):
		t.Fatal("no update published")
	}
	cancel()
	<-done

	require.Error(t, u.Err)
	assert.Nil(t, u.Result)
	assert.ErrorIs(t, u.Err, types.ErrVenueUnavailable)
	assert.Contains(t, types.Reason(u.Err), "rate limited")

	latest, ok := r.Latest()
	require.True(t, ok)
	assert.Equal(t, u.Generation, latest.Generation)
}

func TestIntervalFor(t *testing.T) {
	assert.Equal(t, AggregatorInterval, IntervalFor(types.VenueAggregator))
	assert.Equal(t, OnChainInterval, IntervalFor(types.VenueOrderBook))
}
