package trade

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"moonx-swap/pkg/approval"
	"moonx-swap/pkg/chain"
	"moonx-swap/pkg/contracts"
	"moonx-swap/pkg/gas"
	"moonx-swap/pkg/ledger"
	"moonx-swap/pkg/metrics"
	"moonx-swap/pkg/quote"
	mtypes "moonx-swap/pkg/types"
	"moonx-swap/pkg/wallet"
)

// Default step timeouts
const (
	DefaultCallTimeout    = 20 * time.Second
	DefaultConfirmTimeout = 3 * time.Minute
)

// Settings holds the contract addresses and limits used to build transactions
type Settings struct {
	// PlatformWallet receives aggregator settlement transactions
	PlatformWallet common.Address
	MoonXRouter    common.Address
	WowRouter      common.Address
	Referrer       common.Address
	// MaxRawKeyValue caps the native value a raw-key session may send. Nil disables the cap.
	MaxRawKeyValue *big.Int
	CallTimeout    time.Duration
	ConfirmTimeout time.Duration
}

// Executor drives one trade at a time through the execution state machine
type Executor struct {
	session   wallet.Session
	registry  *chain.Registry
	quoter    quote.Quoter
	approvals *approval.Manager
	gas       gas.Policy
	settings  Settings
	ledgers   func(mtypes.Venue) *ledger.Ledger
	history   *ledger.History
	observer  func(Transition)
	logger    zerolog.Logger

	mu      sync.Mutex
	running bool
	state   State
	lastErr error
}

// Option configures an Executor
type Option func(*Executor)

// WithLedgers sets the purchased-token ledger lookup used after settlement
func WithLedgers(fn func(mtypes.Venue) *ledger.Ledger) Option {
	return func(e *Executor) { e.ledgers = fn }
}

// WithHistory records every finished execution in h
func WithHistory(h *ledger.History) Option {
	return func(e *Executor) { e.history = h }
}

// WithObserver is called on every state change
func WithObserver(fn func(Transition)) Option {
	return func(e *Executor) { e.observer = fn }
}

// NewExecutor creates an executor for session. quoter is used for the
// aggregator re-quote at execution time.
func NewExecutor(session wallet.Session, registry *chain.Registry, quoter quote.Quoter, policy gas.Policy, settings Settings, logger zerolog.Logger, opts ...Option) *Executor {
	if settings.CallTimeout <= 0 {
		settings.CallTimeout = DefaultCallTimeout
	}
	if settings.ConfirmTimeout <= 0 {
		settings.ConfirmTimeout = DefaultConfirmTimeout
	}
	logger = logger.With().Str("component", "executor").Logger()

	e := &Executor{
		session:   session,
		registry:  registry,
		quoter:    quoter,
		approvals: approval.NewManager(policy, logger),
		gas:       policy,
		settings:  settings,
		logger:    logger,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current execution state
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastError returns the error of the most recent failed execution
func (e *Executor) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// plan is a transaction ready to be sent, plus the allowance it needs
type plan struct {
	tx      wallet.TxRequest
	approve *allowanceNeed
	quote   *mtypes.QuoteResult
	// tracked is the token whose balance is reported after settlement
	tracked  common.Address
	bookkeep bool
}

type allowanceNeed struct {
	token   common.Address
	spender common.Address
	amount  *big.Int
}

// run holds the per-execution context
type run struct {
	id     string
	intent mtypes.TradeIntent
	cfg    chain.Config
	result *Result
	record *ledger.Execution
	start  time.Time
	log    zerolog.Logger
}

// Execute validates intent and carries it through approval, submission and
// confirmation. A second call while one is in flight fails with
// ExecutionInProgress without touching the running execution.
func (e *Executor) Execute(ctx context.Context, intent mtypes.TradeIntent) (*Result, error) {
	return e.execute(ctx, intent, validateTrade, e.route)
}

// Unwrap converts amount of wrapped native token back to native on chainID
func (e *Executor) Unwrap(ctx context.Context, chainID int64, amount *big.Int) (*Result, error) {
	intent := mtypes.TradeIntent{
		Mode:             mtypes.ModeSell,
		ChainID:          chainID,
		DestinationToken: mtypes.NativeToken,
		Amount:           amount,
	}
	if cfg, err := e.registry.Lookup(chainID); err == nil {
		intent.SourceToken = cfg.WETH()
	}
	return e.execute(ctx, intent, validate, func(_ context.Context, r *run) (*plan, error) {
		data, err := contracts.PackWithdraw(r.intent.Amount)
		if err != nil {
			return nil, fmt.Errorf("failed to pack withdraw data: %w", err)
		}
		return &plan{
			tx:      wallet.TxRequest{To: r.cfg.WETH(), Data: data, Value: big.NewInt(0)},
			tracked: r.cfg.WETH(),
		}, nil
	})
}

func (e *Executor) acquire() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return mtypes.Errorf(mtypes.KindExecutionInProgress, "an execution is already in progress")
	}
	e.running = true
	if e.state.Terminal() {
		e.state = StateIdle
	}
	e.lastErr = nil
	return nil
}

func (e *Executor) release() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}

func (e *Executor) transition(r *run, to State, err error) {
	e.mu.Lock()
	from := e.state
	if !CanTransition(from, to) {
		e.mu.Unlock()
		r.log.Error().Str("from", string(from)).Str("to", string(to)).Msg("invalid state transition")
		return
	}
	e.state = to
	if to == StateFailed {
		e.lastErr = err
	}
	e.mu.Unlock()

	r.result.State = to
	ev := r.log.Info()
	if err != nil {
		ev = r.log.Warn().Err(err)
	}
	ev.Str("from", string(from)).Str("to", string(to)).Msg("state changed")

	if e.observer != nil {
		e.observer(Transition{ExecutionID: r.id, From: from, To: to, Err: err})
	}
}

// router builds the transaction for a validated run
type router func(context.Context, *run) (*plan, error)

func (e *Executor) execute(ctx context.Context, intent mtypes.TradeIntent, check func(mtypes.TradeIntent) error, route router) (*Result, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	defer e.release()

	record := ledger.NewExecution(intent)
	record.Wallet = e.session.Address().Hex()
	r := &run{
		id:     record.ID,
		intent: intent,
		result: &Result{ExecutionID: record.ID, Intent: intent, State: StateIdle},
		record: record,
		start:  time.Now(),
		log: e.logger.With().
			Str("execution", record.ID).
			Str("venue", string(intent.Venue)).
			Str("mode", string(intent.Mode)).
			Int64("chain", intent.ChainID).
			Logger(),
	}

	e.transition(r, StateValidating, nil)
	if err := e.steps(ctx, r, check, route); err != nil {
		return e.fail(r, err)
	}
	return e.settle(r), nil
}

func (e *Executor) steps(ctx context.Context, r *run, check func(mtypes.TradeIntent) error, route router) error {
	// Local checks come first so an invalid intent never reaches the network
	cfg, err := e.registry.Lookup(r.intent.ChainID)
	if err != nil {
		return err
	}
	r.cfg = cfg
	if err := check(r.intent); err != nil {
		return err
	}

	if err := e.call(ctx, func(ctx context.Context) error {
		return e.session.EnsureNetwork(ctx, cfg.ChainID)
	}); err != nil {
		return err
	}

	p, err := route(ctx, r)
	if err != nil {
		return err
	}
	r.result.Quote = p.quote

	if err := e.checkValueCap(p.tx.Value); err != nil {
		return err
	}

	// Remember the pre-trade balance so a full sell can clear the ledger
	var before *big.Int
	if p.bookkeep && r.intent.Mode == mtypes.ModeSell {
		if err := e.call(ctx, func(ctx context.Context) error {
			var err error
			before, err = e.balanceOf(ctx, r.intent.SourceToken)
			return err
		}); err != nil {
			return fmt.Errorf("failed to read balance: %w", err)
		}
	}

	if p.approve != nil {
		e.transition(r, StateApproving, nil)
		hash, err := e.ensureAllowance(ctx, p.approve)
		if hash != (common.Hash{}) {
			r.result.ApprovalTx = hash
			r.record.ApprovalTx = hash.Hex()
		}
		if err != nil {
			return err
		}
	}

	e.transition(r, StateSubmitting, nil)
	hash, err := e.submit(ctx, p.tx)
	if err != nil {
		return err
	}
	r.result.TxHash = hash
	r.record.TxHash = hash.Hex()

	e.transition(r, StateConfirming, nil)
	confirmCtx, cancel := context.WithTimeout(ctx, e.settings.ConfirmTimeout)
	defer cancel()
	receipt, err := e.session.AwaitConfirmation(confirmCtx, hash)
	if err != nil {
		return err
	}
	r.result.Receipt = receipt

	e.bookkeep(ctx, r, p, before)
	return nil
}

func validate(intent mtypes.TradeIntent) error {
	if intent.Mode != mtypes.ModeBuy && intent.Mode != mtypes.ModeSell {
		return mtypes.Errorf(mtypes.KindInvalidIntent, "unknown trade mode %q", intent.Mode)
	}
	if intent.Amount == nil || intent.Amount.Sign() <= 0 {
		return mtypes.Errorf(mtypes.KindInvalidIntent, "amount must be greater than zero")
	}
	if intent.SourceToken == (common.Address{}) || intent.DestinationToken == (common.Address{}) {
		return mtypes.Errorf(mtypes.KindInvalidIntent, "source and destination tokens are required")
	}
	if intent.SourceToken == intent.DestinationToken {
		return mtypes.Errorf(mtypes.KindInvalidIntent, "source and destination tokens must differ")
	}
	if intent.Slippage < quote.MinSlippage || intent.Slippage > quote.MaxSlippage {
		return mtypes.Errorf(mtypes.KindInvalidIntent, "slippage must be between %d and %d", quote.MinSlippage, quote.MaxSlippage)
	}
	return nil
}

func validateTrade(intent mtypes.TradeIntent) error {
	switch intent.Venue {
	case mtypes.VenueAggregator, mtypes.VenueConstantProduct, mtypes.VenueOrderBook:
	default:
		return mtypes.Errorf(mtypes.KindInvalidIntent, "unknown venue %q", intent.Venue)
	}
	return validate(intent)
}

// call runs fn under the per-call timeout
func (e *Executor) call(ctx context.Context, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, e.settings.CallTimeout)
	defer cancel()
	return asTimeout(fn(callCtx))
}

// asTimeout reports an expired deadline as Timeout
func asTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return mtypes.Classify(mtypes.KindTimeout, err)
	}
	return err
}

func (e *Executor) checkValueCap(value *big.Int) error {
	if e.session.Mode() != wallet.ModeRawKey || e.settings.MaxRawKeyValue == nil || value == nil {
		return nil
	}
	if value.Cmp(e.settings.MaxRawKeyValue) > 0 {
		return mtypes.Errorf(mtypes.KindInvalidIntent, "transaction value %s exceeds the raw-key limit of %s wei", value, e.settings.MaxRawKeyValue)
	}
	return nil
}

func (e *Executor) ensureAllowance(ctx context.Context, need *allowanceNeed) (common.Hash, error) {
	confirmCtx, cancel := context.WithTimeout(ctx, e.settings.ConfirmTimeout)
	defer cancel()

	hash, err := e.approvals.EnsureAllowance(confirmCtx, need.token, e.session.Address(), need.spender, need.amount, e.session)
	err = asTimeout(err)
	outcome := "sufficient"
	switch {
	case err != nil:
		outcome = "failed"
	case hash != (common.Hash{}):
		outcome = "approved"
	}
	metrics.ApprovalsTotal.WithLabelValues(outcome).Inc()
	return hash, err
}

func (e *Executor) submit(ctx context.Context, tx wallet.TxRequest) (common.Hash, error) {
	var hash common.Hash
	err := e.call(ctx, func(ctx context.Context) error {
		params, err := e.gas.Resolve(ctx, e.session, tx)
		if err != nil {
			return err
		}
		tx.Gas = params
		hash, err = e.session.SendTransaction(ctx, tx)
		return err
	})
	return hash, err
}

func (e *Executor) balanceOf(ctx context.Context, token common.Address) (*big.Int, error) {
	owner := e.session.Address()
	if mtypes.IsNative(token) {
		return e.session.Backend().BalanceAt(ctx, owner, nil)
	}
	return contracts.NewTokenReader(e.session.Backend()).BalanceOf(ctx, token, owner)
}

// bookkeep updates the ledger and reads the post-trade balance. Failures here
// are logged; the trade itself has already settled.
func (e *Executor) bookkeep(ctx context.Context, r *run, p *plan, before *big.Int) {
	if p.tracked != (common.Address{}) {
		_ = e.call(ctx, func(ctx context.Context) error {
			balance, err := e.balanceOf(ctx, p.tracked)
			if err != nil {
				r.log.Warn().Err(err).Msg("failed to refresh balance")
				return nil
			}
			r.result.Balance = balance
			return nil
		})
	}

	if !p.bookkeep || e.ledgers == nil {
		return
	}
	book := e.ledgers(r.intent.Venue)
	if book == nil {
		return
	}

	switch r.intent.Mode {
	case mtypes.ModeBuy:
		token := mtypes.PurchasedToken{Address: r.intent.DestinationToken}
		if p.quote != nil && r.intent.Venue != mtypes.VenueAggregator {
			token.Symbol = p.quote.Symbol
		}
		if token.Symbol == "" {
			_ = e.call(ctx, func(ctx context.Context) error {
				meta, err := contracts.NewTokenReader(e.session.Backend()).Metadata(ctx, token.Address)
				if err == nil {
					token.Symbol = meta.Symbol
				}
				return nil
			})
		}
		if err := book.Add(token); err != nil {
			r.log.Warn().Err(err).Msg("failed to record purchased token")
		}
	case mtypes.ModeSell:
		if before != nil && r.intent.Amount.Cmp(before) == 0 {
			if err := book.Remove(r.intent.SourceToken); err != nil {
				r.log.Warn().Err(err).Msg("failed to remove sold token")
			}
		}
	}
}

func (e *Executor) settle(r *run) *Result {
	e.transition(r, StateSettled, nil)
	e.finish(r)
	return r.result
}

func (e *Executor) fail(r *run, err error) (*Result, error) {
	err = asTimeout(err)
	r.result.Err = err
	r.result.Reason = mtypes.Reason(err)
	if kind, ok := mtypes.KindOf(err); ok {
		r.record.ErrorKind = string(kind)
	}
	r.record.Error = r.result.Reason
	e.transition(r, StateFailed, err)
	e.finish(r)
	return r.result, err
}

func (e *Executor) finish(r *run) {
	elapsed := time.Since(r.start)
	r.record.State = string(r.result.State)
	r.record.DurationMs = elapsed.Milliseconds()

	venue := string(r.intent.Venue)
	if venue == "" {
		venue = "unwrap"
	}
	metrics.ExecutionsTotal.WithLabelValues(venue, string(r.intent.Mode), string(r.result.State)).Inc()
	metrics.ExecutionSeconds.WithLabelValues(venue).Observe(elapsed.Seconds())

	if e.history != nil {
		if err := e.history.Record(r.record); err != nil {
			r.log.Warn().Err(err).Msg("failed to record execution history")
		}
	}
}
