package trade

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moonx-swap/pkg/chain"
	"moonx-swap/pkg/client"
	"moonx-swap/pkg/contracts"
	"moonx-swap/pkg/evmtest"
	"moonx-swap/pkg/gas"
	"moonx-swap/pkg/ledger"
	"moonx-swap/pkg/quote"
	"moonx-swap/pkg/store"
	mtypes "moonx-swap/pkg/types"
	"moonx-swap/pkg/wallet"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var (
	owner       = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	meme        = common.HexToAddress("0x0000000000000000000000000000000000000e02")
	moonXRouter = common.HexToAddress("0x0000000000000000000000000000000000000e03")
	wowRouter   = common.HexToAddress("0x0000000000000000000000000000000000000e04")
	platform    = common.HexToAddress("0x0000000000000000000000000000000000000e05")
	baseWETH    = common.HexToAddress("0x4200000000000000000000000000000000000006")
)

type fixture struct {
	backend *evmtest.Backend
	wallet  *evmtest.Wallet
	token   *evmtest.Token
	store   *store.Store
	exec    *Executor

	mu     sync.Mutex
	states []State
}

func (f *fixture) observe(tr Transition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, tr.To)
}

func (f *fixture) seen() []State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]State(nil), f.states...)
}

func (f *fixture) ledger(venue mtypes.Venue) *ledger.Ledger {
	return ledger.New(f.store, venue)
}

func newFixture(t *testing.T, quoter quote.Quoter, settings Settings) *fixture {
	t.Helper()
	backend := evmtest.NewBackend(chain.Base)
	w := evmtest.NewWallet(backend, owner, chain.Base)
	session, err := wallet.NewBrowserSession(context.Background(), w, backend, zerolog.Nop())
	require.NoError(t, err)
	session.PollInterval = time.Millisecond

	return newFixtureWithSession(t, backend, session, quoter, settings, w)
}

func newFixtureWithSession(t *testing.T, backend *evmtest.Backend, session wallet.Session, quoter quote.Quoter, settings Settings, w *evmtest.Wallet) *fixture {
	t.Helper()
	registry, err := chain.NewRegistry(chain.DefaultConfigs()...)
	require.NoError(t, err)
	st, err := store.NewStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	if settings.PlatformWallet == (common.Address{}) {
		settings.PlatformWallet = platform
	}
	if settings.MoonXRouter == (common.Address{}) {
		settings.MoonXRouter = moonXRouter
	}
	if settings.WowRouter == (common.Address{}) {
		settings.WowRouter = wowRouter
	}

	f := &fixture{
		backend: backend,
		wallet:  w,
		token:   backend.AddToken(meme, "MEME", 18),
		store:   st,
	}
	f.exec = NewExecutor(session, registry, quoter, gas.Policy{}, settings, zerolog.Nop(),
		WithLedgers(f.ledger),
		WithHistory(ledger.NewHistory(st)),
		WithObserver(f.observe),
	)
	return f
}

func sellIntent(venue mtypes.Venue, amount int64) mtypes.TradeIntent {
	return mtypes.TradeIntent{
		Mode:             mtypes.ModeSell,
		ChainID:          chain.Base,
		SourceToken:      meme,
		DestinationToken: mtypes.NativeToken,
		Amount:           big.NewInt(amount),
		Slippage:         3,
		Venue:            venue,
	}
}

func buyIntent(venue mtypes.Venue, amount int64) mtypes.TradeIntent {
	return mtypes.TradeIntent{
		Mode:             mtypes.ModeBuy,
		ChainID:          chain.Base,
		SourceToken:      mtypes.NativeToken,
		DestinationToken: meme,
		Amount:           big.NewInt(amount),
		Slippage:         3,
		Venue:            venue,
	}
}

func kindOf(t *testing.T, err error) mtypes.ErrorKind {
	t.Helper()
	kind, ok := mtypes.KindOf(err)
	require.True(t, ok, "unclassified error: %v", err)
	return kind
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StateIdle, StateValidating))
	assert.True(t, CanTransition(StateValidating, StateQuoting))
	assert.True(t, CanTransition(StateValidating, StateSubmitting))
	assert.True(t, CanTransition(StateApproving, StateSubmitting))
	assert.True(t, CanTransition(StateConfirming, StateSettled))
	assert.True(t, CanTransition(StateSubmitting, StateFailed))
	assert.True(t, CanTransition(StateSettled, StateIdle))

	assert.False(t, CanTransition(StateIdle, StateSubmitting))
	assert.False(t, CanTransition(StateSubmitting, StateApproving))
	assert.False(t, CanTransition(StateSettled, StateFailed))
	assert.False(t, CanTransition(StateFailed, StateFailed))
}

func TestExecuteRejectsZeroAmountWithoutNetworkCalls(t *testing.T) {
	f := newFixture(t, nil, Settings{})
	calls := f.backend.Calls()
	requests := len(f.wallet.Requests)

	for _, amount := range []*big.Int{nil, big.NewInt(0), big.NewInt(-5)} {
		intent := sellIntent(mtypes.VenueConstantProduct, 0)
		intent.Amount = amount

		res, err := f.exec.Execute(context.Background(), intent)
		require.Error(t, err)
		assert.ErrorIs(t, err, mtypes.ErrInvalidIntent)
		assert.Equal(t, StateFailed, res.State)
		assert.Equal(t, StateFailed, f.exec.State())
	}

	assert.Equal(t, calls, f.backend.Calls())
	assert.Len(t, f.wallet.Requests, requests)
	assert.Empty(t, f.backend.Sent())
}

func TestExecuteValidatesIntent(t *testing.T) {
	f := newFixture(t, nil, Settings{})

	tests := []struct {
		name   string
		mutate func(*mtypes.TradeIntent)
		kind   mtypes.ErrorKind
	}{
		{"unknown chain", func(i *mtypes.TradeIntent) { i.ChainID = 999 }, mtypes.KindUnknownChain},
		{"slippage above range", func(i *mtypes.TradeIntent) { i.Slippage = 201 }, mtypes.KindInvalidIntent},
		{"negative slippage", func(i *mtypes.TradeIntent) { i.Slippage = -1 }, mtypes.KindInvalidIntent},
		{"missing token", func(i *mtypes.TradeIntent) { i.SourceToken = common.Address{} }, mtypes.KindInvalidIntent},
		{"same token", func(i *mtypes.TradeIntent) { i.DestinationToken = meme }, mtypes.KindInvalidIntent},
		{"unknown venue", func(i *mtypes.TradeIntent) { i.Venue = "dex" }, mtypes.KindInvalidIntent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := sellIntent(mtypes.VenueConstantProduct, 10)
			tt.mutate(&intent)
			_, err := f.exec.Execute(context.Background(), intent)
			require.Error(t, err)
			assert.Equal(t, tt.kind, kindOf(t, err))
		})
	}
	assert.Empty(t, f.backend.Sent())
}

func TestFullBalanceSellRemovesTokenFromLedger(t *testing.T) {
	f := newFixture(t, nil, Settings{})
	f.token.SetBalance(owner, big.NewInt(1_000_000))
	book := f.ledger(mtypes.VenueConstantProduct)
	require.NoError(t, book.Add(mtypes.PurchasedToken{Address: meme, Symbol: "MEME"}))

	res, err := f.exec.Execute(context.Background(), sellIntent(mtypes.VenueConstantProduct, 1_000_000))
	require.NoError(t, err)
	assert.Equal(t, StateSettled, res.State)
	assert.NotEqual(t, common.Hash{}, res.ApprovalTx)

	sent := f.backend.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, meme, sent[0].To)
	assert.Equal(t, contracts.ERC20.Methods["approve"].ID, sent[0].Method())
	assert.Equal(t, moonXRouter, sent[1].To)
	assert.Equal(t, contracts.MoonX.Methods["moonXSell"].ID, sent[1].Method())
	assert.Zero(t, sent[1].Value.Sign())
	assert.Equal(t, "1000000", f.token.Allowance(owner, moonXRouter).String())

	held, err := book.Contains(meme)
	require.NoError(t, err)
	assert.False(t, held)

	assert.Equal(t, []State{StateValidating, StateApproving, StateSubmitting, StateConfirming, StateSettled}, f.seen())
}

func TestPartialSellKeepsToken(t *testing.T) {
	f := newFixture(t, nil, Settings{})
	f.token.SetBalance(owner, big.NewInt(1_000_000))
	f.token.SetAllowance(owner, moonXRouter, big.NewInt(1_000_000))
	book := f.ledger(mtypes.VenueConstantProduct)
	require.NoError(t, book.Add(mtypes.PurchasedToken{Address: meme, Symbol: "MEME"}))

	res, err := f.exec.Execute(context.Background(), sellIntent(mtypes.VenueConstantProduct, 400_000))
	require.NoError(t, err)
	assert.Equal(t, common.Hash{}, res.ApprovalTx)
	require.Len(t, f.backend.Sent(), 1)

	held, err := book.Contains(meme)
	require.NoError(t, err)
	assert.True(t, held)
}

func TestMoonXBuyRecordsPurchasedToken(t *testing.T) {
	f := newFixture(t, nil, Settings{Referrer: common.HexToAddress("0x0000000000000000000000000000000000000e99")})
	f.token.SetBalance(owner, big.NewInt(42))

	res, err := f.exec.Execute(context.Background(), buyIntent(mtypes.VenueConstantProduct, 1_000_000_000_000_000))
	require.NoError(t, err)
	assert.Equal(t, StateSettled, res.State)
	assert.Equal(t, "42", res.Balance.String())

	sent := f.backend.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, moonXRouter, sent[0].To)
	assert.Equal(t, "1000000000000000", sent[0].Value.String())

	args, err := contracts.MoonX.Methods["moonXBuy"].Inputs.Unpack(sent[0].Data[4:])
	require.NoError(t, err)
	assert.Equal(t, meme, args[0])
	assert.Equal(t, uint8(3), args[1])
	assert.Equal(t, common.HexToAddress("0x0000000000000000000000000000000000000e99"), args[2])

	tokens, err := f.ledger(mtypes.VenueConstantProduct).List()
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, meme, tokens[0].Address)
	assert.Equal(t, "MEME", tokens[0].Symbol)

	// Other venues keep their own ledgers
	other, err := f.ledger(mtypes.VenueOrderBook).List()
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMoonXBuyRequiresNativeSource(t *testing.T) {
	f := newFixture(t, nil, Settings{})
	intent := buyIntent(mtypes.VenueConstantProduct, 100)
	intent.SourceToken = common.HexToAddress("0x0000000000000000000000000000000000000e77")

	_, err := f.exec.Execute(context.Background(), intent)
	require.Error(t, err)
	assert.Equal(t, mtypes.KindInvalidIntent, kindOf(t, err))
	assert.Empty(t, f.backend.Sent())
}

func TestWowSellApprovesRouter(t *testing.T) {
	f := newFixture(t, nil, Settings{})
	f.token.SetBalance(owner, big.NewInt(500))

	_, err := f.exec.Execute(context.Background(), sellIntent(mtypes.VenueOrderBook, 200))
	require.NoError(t, err)

	sent := f.backend.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "200", f.token.Allowance(owner, wowRouter).String())
	assert.Equal(t, wowRouter, sent[1].To)

	args, err := contracts.Wow.Methods["placeOrder"].Inputs.Unpack(sent[1].Data[4:])
	require.NoError(t, err)
	assert.Equal(t, meme, args[0])
	assert.Equal(t, "200", args[1].(*big.Int).String())
	assert.Equal(t, false, args[2])
}

func TestWowBuySendsValue(t *testing.T) {
	f := newFixture(t, nil, Settings{})

	_, err := f.exec.Execute(context.Background(), buyIntent(mtypes.VenueOrderBook, 777))
	require.NoError(t, err)

	sent := f.backend.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "777", sent[0].Value.String())

	held, err := f.ledger(mtypes.VenueOrderBook).Contains(meme)
	require.NoError(t, err)
	assert.True(t, held)
}

func baseConfig(t *testing.T) chain.Config {
	t.Helper()
	registry, err := chain.NewRegistry(chain.DefaultConfigs()...)
	require.NoError(t, err)
	cfg, err := registry.Lookup(chain.Base)
	require.NoError(t, err)
	return cfg
}

func aggregatorServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAggregatorUnavailableFailsExecution(t *testing.T) {
	srv := aggregatorServer(t, http.StatusInternalServerError, "rate limited")
	backend := evmtest.NewBackend(chain.Base)
	venue := quote.NewAggregatorVenue(client.NewAggregatorClient(srv.URL, "", srv.Client()), backend, baseConfig(t), platform, mtypes.PolicyDirectional)

	w := evmtest.NewWallet(backend, owner, chain.Base)
	session, err := wallet.NewBrowserSession(context.Background(), w, backend, zerolog.Nop())
	require.NoError(t, err)
	f := newFixtureWithSession(t, backend, session, quote.Mux{mtypes.VenueAggregator: venue}, Settings{}, w)

	res, err := f.exec.Execute(context.Background(), buyIntent(mtypes.VenueAggregator, 5000))
	require.Error(t, err)
	assert.Equal(t, mtypes.KindVenueUnavailable, kindOf(t, err))
	assert.Equal(t, StateFailed, res.State)
	assert.Contains(t, res.Reason, "rate limited")
	assert.Empty(t, backend.Sent())

	records, err := ledger.NewHistory(f.store).List(0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, string(mtypes.KindVenueUnavailable), records[0].ErrorKind)
	assert.Equal(t, string(StateFailed), records[0].State)
}

func TestPassiveQuoteFailureLeavesExecutorIdle(t *testing.T) {
	srv := aggregatorServer(t, http.StatusInternalServerError, "rate limited")
	backend := evmtest.NewBackend(chain.Base)
	venue := quote.NewAggregatorVenue(client.NewAggregatorClient(srv.URL, "", srv.Client()), backend, baseConfig(t), platform, mtypes.PolicyDirectional)

	w := evmtest.NewWallet(backend, owner, chain.Base)
	session, err := wallet.NewBrowserSession(context.Background(), w, backend, zerolog.Nop())
	require.NoError(t, err)
	f := newFixtureWithSession(t, backend, session, quote.Mux{mtypes.VenueAggregator: venue}, Settings{}, w)

	updates := make(chan quote.Update, 4)
	r := quote.NewRefresher(venue, time.Hour, zerolog.Nop(), func(u quote.Update) { updates <- u })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	r.SetIntent(buyIntent(mtypes.VenueAggregator, 5000))
	var u quote.Update
	select {
	case u = <-updates:
	case <-time.After(2 * time.Second):
		t.Fatal("no update published")
	}
	cancel()
	<-done

	assert.Equal(t, mtypes.KindVenueUnavailable, kindOf(t, u.Err))
	assert.Contains(t, mtypes.Reason(u.Err), "rate limited")

	assert.Equal(t, StateIdle, f.exec.State())
	assert.NoError(t, f.exec.LastError())
	assert.Empty(t, f.seen())
	assert.Empty(t, backend.Sent())
}

func TestAggregatorBuyPaysInflatedQuote(t *testing.T) {
	srv := aggregatorServer(t, http.StatusOK, `{"rates":[{"amount":"1000","txObject":{"data":"0xdeadbeef"}}]}`)
	backend := evmtest.NewBackend(chain.Base)
	venue := quote.NewAggregatorVenue(client.NewAggregatorClient(srv.URL, "", srv.Client()), backend, baseConfig(t), platform, mtypes.PolicyDirectional)

	w := evmtest.NewWallet(backend, owner, chain.Base)
	session, err := wallet.NewBrowserSession(context.Background(), w, backend, zerolog.Nop())
	require.NoError(t, err)
	session.PollInterval = time.Millisecond
	f := newFixtureWithSession(t, backend, session, quote.Mux{mtypes.VenueAggregator: venue}, Settings{}, w)

	res, err := f.exec.Execute(context.Background(), buyIntent(mtypes.VenueAggregator, 5000))
	require.NoError(t, err)
	require.NotNil(t, res.Quote)
	assert.Equal(t, "1030", res.Quote.ExpectedOutput.String())

	sent := backend.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, platform, sent[0].To)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, sent[0].Data)
	assert.Equal(t, "1030", sent[0].Value.String())

	assert.Equal(t, []State{StateValidating, StateQuoting, StateSubmitting, StateConfirming, StateSettled}, f.seen())

	tokens, err := f.ledger(mtypes.VenueAggregator).List()
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "MEME", tokens[0].Symbol)
}

func TestSecondExecutionIsRejectedWhileRunning(t *testing.T) {
	f := newFixture(t, nil, Settings{})
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.backend.OnSend = func(evmtest.SentTx) {
		once.Do(func() { close(entered) })
		<-release
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.exec.Execute(context.Background(), buyIntent(mtypes.VenueOrderBook, 10))
		done <- err
	}()

	<-entered
	res, err := f.exec.Execute(context.Background(), buyIntent(mtypes.VenueOrderBook, 20))
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, mtypes.ErrExecutionInProgress))
	assert.Equal(t, StateSubmitting, f.exec.State())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateSettled, f.exec.State())
	require.Len(t, f.backend.Sent(), 1)
	assert.Equal(t, "10", f.backend.Sent()[0].Value.String())
}

func TestApprovalRejectedStopsExecution(t *testing.T) {
	f := newFixture(t, nil, Settings{})
	f.token.SetBalance(owner, big.NewInt(100))
	f.wallet.RejectSends = true

	res, err := f.exec.Execute(context.Background(), sellIntent(mtypes.VenueOrderBook, 100))
	require.Error(t, err)
	assert.Equal(t, mtypes.KindApprovalRejected, kindOf(t, err))
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, err, f.exec.LastError())
	assert.Empty(t, f.backend.Sent())
}

func TestRevertedTradeReportsFailure(t *testing.T) {
	f := newFixture(t, nil, Settings{})
	f.backend.Revert = func(s evmtest.SentTx) bool { return s.To == moonXRouter }
	book := f.ledger(mtypes.VenueConstantProduct)

	res, err := f.exec.Execute(context.Background(), buyIntent(mtypes.VenueConstantProduct, 10))
	require.Error(t, err)
	assert.Equal(t, mtypes.KindTransactionReverted, kindOf(t, err))
	assert.NotEqual(t, common.Hash{}, res.TxHash)

	held, err := book.Contains(meme)
	require.NoError(t, err)
	assert.False(t, held)

	// A failed execution does not block the next one
	f.backend.Revert = nil
	res, err = f.exec.Execute(context.Background(), buyIntent(mtypes.VenueConstantProduct, 10))
	require.NoError(t, err)
	assert.Equal(t, StateSettled, res.State)
	assert.Nil(t, f.exec.LastError())
}

func TestRawKeySessionSignsWithResolvedGas(t *testing.T) {
	backend := evmtest.NewBackend(chain.Base)
	session, err := wallet.NewRawKeySession(context.Background(), backend, testKey, zerolog.Nop())
	require.NoError(t, err)
	session.PollInterval = time.Millisecond
	f := newFixtureWithSession(t, backend, session, nil, Settings{MaxRawKeyValue: big.NewInt(1000)}, nil)

	res, err := f.exec.Execute(context.Background(), buyIntent(mtypes.VenueOrderBook, 1000))
	require.NoError(t, err)
	assert.Equal(t, StateSettled, res.State)

	sent := backend.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, session.Address(), sent[0].From)
	assert.Equal(t, uint64(300_000), sent[0].Tx.Gas())
	assert.Equal(t, "2000000000", sent[0].Tx.GasPrice().String())

	_, err = f.exec.Execute(context.Background(), buyIntent(mtypes.VenueOrderBook, 1001))
	require.Error(t, err)
	assert.Equal(t, mtypes.KindInvalidIntent, kindOf(t, err))
	assert.Len(t, backend.Sent(), 1)
}

func TestRawKeyEstimationFailureSurfacesReason(t *testing.T) {
	backend := evmtest.NewBackend(chain.Base)
	backend.EstimateErr = evmtest.NewRevertError("Slippage exceeded")
	session, err := wallet.NewRawKeySession(context.Background(), backend, testKey, zerolog.Nop())
	require.NoError(t, err)
	f := newFixtureWithSession(t, backend, session, nil, Settings{}, nil)

	res, err := f.exec.Execute(context.Background(), buyIntent(mtypes.VenueConstantProduct, 10))
	require.Error(t, err)
	assert.Equal(t, mtypes.KindFeeEstimationFailed, kindOf(t, err))
	assert.Equal(t, "Slippage exceeded", res.Reason)
	assert.Empty(t, backend.Sent())
}

func TestUnwrapWithdrawsWETH(t *testing.T) {
	backend := evmtest.NewBackend(chain.Base)
	key, err := crypto.HexToECDSA(testKey[2:])
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	session, err := wallet.NewRawKeySession(context.Background(), backend, testKey, zerolog.Nop())
	require.NoError(t, err)
	session.PollInterval = time.Millisecond
	f := newFixtureWithSession(t, backend, session, nil, Settings{}, nil)

	weth := backend.AddToken(baseWETH, "WETH", 18)
	weth.SetBalance(addr, big.NewInt(900))

	res, err := f.exec.Unwrap(context.Background(), chain.Base, big.NewInt(600))
	require.NoError(t, err)
	assert.Equal(t, StateSettled, res.State)
	assert.Equal(t, "300", res.Balance.String())

	native, err := backend.BalanceAt(context.Background(), addr, nil)
	require.NoError(t, err)
	assert.Equal(t, "600", native.String())

	_, err = f.exec.Unwrap(context.Background(), 999, big.NewInt(1))
	require.Error(t, err)
	assert.Equal(t, mtypes.KindUnknownChain, kindOf(t, err))
}
