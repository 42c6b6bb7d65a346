package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"moonx-swap/config"
	"moonx-swap/pkg/chain"
	"moonx-swap/pkg/client"
	"moonx-swap/pkg/contracts"
	"moonx-swap/pkg/gas"
	"moonx-swap/pkg/ledger"
	"moonx-swap/pkg/logging"
	"moonx-swap/pkg/metrics"
	"moonx-swap/pkg/quote"
	"moonx-swap/pkg/store"
	"moonx-swap/pkg/trade"
	"moonx-swap/pkg/types"
	"moonx-swap/pkg/wallet"
)

// app carries what every command needs after configuration is loaded
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	registry *chain.Registry
	network  chain.Config
	store    *store.Store
	venue    types.Venue

	verbose    bool
	jsonOutput bool
}

func newApp(cmd *cobra.Command) (*app, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	chainFlag, _ := cmd.Flags().GetString("chain")
	venueFlag, _ := cmd.Flags().GetString("venue")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	logger := logging.NewConsoleLogger(level)
	if jsonOutput && !verbose {
		logger = logger.Level(zerolog.WarnLevel)
	}

	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}

	chainID := cfg.ChainID
	if chainFlag != "" {
		if chainID, err = chain.ParseChain(chainFlag); err != nil {
			return nil, err
		}
	}
	network, err := registry.Lookup(chainID)
	if err != nil {
		return nil, err
	}

	venue, ok := types.ParseVenue(venueFlag)
	if !ok {
		return nil, types.Errorf(types.KindInvalidIntent, "unknown venue %q", venueFlag)
	}

	st, err := store.NewStore(cfg.StatePath)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		logger:     logger,
		registry:   registry,
		network:    network,
		store:      st,
		venue:      venue,
		verbose:    verbose,
		jsonOutput: jsonOutput,
	}
	a.serveMetrics()
	return a, nil
}

// mustApp is newApp for commands that cannot continue without configuration
func mustApp(cmd *cobra.Command) *app {
	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	return a
}

func (a *app) serveMetrics() {
	if a.cfg.MetricsAddr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(a.cfg.MetricsAddr); err != nil {
			a.logger.Warn().Err(err).Str("addr", a.cfg.MetricsAddr).Msg("metrics server stopped")
		}
	}()
}

func (a *app) dial(ctx context.Context) (*ethclient.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
	defer cancel()
	return a.network.Dial(ctx)
}

// openSession connects the configured wallet. Browser wallets are reached
// over JSON-RPC at wallet_rpc; otherwise the raw key signs locally.
func (a *app) openSession(ctx context.Context) (wallet.Session, error) {
	backend, err := a.dial(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
	defer cancel()

	if a.cfg.UseBrowserWallet {
		endpoint, err := rpc.DialContext(ctx, a.cfg.WalletRPC)
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("failed to connect to wallet: %w", err)
		}
		session, err := wallet.NewBrowserSession(ctx, endpoint, backend, a.logger)
		if err != nil {
			endpoint.Close()
			backend.Close()
			return nil, err
		}
		return session, nil
	}

	if a.cfg.PrivateKey == "" {
		backend.Close()
		return nil, fmt.Errorf("no wallet configured. Set MOONX_PRIVATE_KEY, or MOONX_USE_BROWSER_WALLET with MOONX_WALLET_RPC")
	}
	session, err := wallet.NewRawKeySession(ctx, backend, a.cfg.PrivateKey, a.logger)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return session, nil
}

func (a *app) gasPolicy() gas.Policy {
	return gas.Policy{
		ExtraGasForMiner:  a.cfg.ExtraGasForMiner,
		AdditionalGasGwei: a.cfg.AdditionalGasGwei,
		Logger:            a.logger,
	}
}

// quoters builds one quoter per venue on the selected network
func (a *app) quoters(backend chain.Backend) quote.Mux {
	amm := quote.NewAmmBestPoolVenue(backend, a.network, a.cfg.PolicyFor(types.VenueConstantProduct), a.logger)
	orderBookAMM := quote.NewAmmBestPoolVenue(backend, a.network, a.cfg.PolicyFor(types.VenueOrderBook), a.logger)
	rates := client.NewAggregatorClient(a.cfg.AggregatorURL, a.cfg.AccessToken, nil)

	return quote.Mux{
		types.VenueAggregator:      quote.NewAggregatorVenue(rates, backend, a.network, a.cfg.PlatformWallet, a.cfg.PolicyFor(types.VenueAggregator)),
		types.VenueConstantProduct: amm,
		types.VenueOrderBook:       quote.NewConstantQuoterVenue(backend, a.network, orderBookAMM, a.cfg.PolicyFor(types.VenueOrderBook), a.logger),
	}
}

func (a *app) referralClient() *client.ReferralClient {
	if a.cfg.ReferralURL == "" {
		return nil
	}
	return client.NewReferralClient(a.cfg.ReferralURL, nil)
}

// referrer prefers the configured address and falls back to the referral store
func (a *app) referrer(ctx context.Context, user common.Address) common.Address {
	if a.cfg.Referrer != (common.Address{}) {
		return a.cfg.Referrer
	}
	rc := a.referralClient()
	if rc == nil {
		return common.Address{}
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
	defer cancel()
	ref, err := rc.GetReferrer(ctx, user)
	if err != nil {
		a.logger.Debug().Err(err).Msg("referrer lookup failed")
		return common.Address{}
	}
	return ref
}

func (a *app) ledger(venue types.Venue) *ledger.Ledger {
	return ledger.New(a.store, venue)
}

func (a *app) executor(ctx context.Context, session wallet.Session, observer func(trade.Transition)) *trade.Executor {
	settings := trade.Settings{
		PlatformWallet: a.cfg.PlatformWallet,
		MoonXRouter:    a.cfg.MoonXAddress,
		WowRouter:      a.cfg.WowAddress,
		Referrer:       a.referrer(ctx, session.Address()),
		MaxRawKeyValue: a.cfg.MaxRawKeyValueWei(),
		CallTimeout:    a.cfg.CallTimeout,
		ConfirmTimeout: a.cfg.ConfirmTimeout,
	}

	mux := a.quoters(session.Backend())
	if agg, ok := mux[types.VenueAggregator].(*quote.AggregatorVenue); ok {
		agg.User = session.Address()
	}

	opts := []trade.Option{
		trade.WithLedgers(a.ledger),
		trade.WithHistory(ledger.NewHistory(a.store)),
	}
	if observer != nil {
		opts = append(opts, trade.WithObserver(observer))
	}
	return trade.NewExecutor(session, a.registry, mux, a.gasPolicy(), settings, a.logger, opts...)
}

// resolveToken accepts a symbol known for the network or a hex address
func (a *app) resolveToken(s string) (common.Address, error) {
	if addr, ok := a.network.TokenBySymbol(s); ok {
		return addr, nil
	}
	if common.IsHexAddress(s) {
		return common.HexToAddress(s), nil
	}
	return common.Address{}, types.Errorf(types.KindInvalidToken, "unknown token %q on %s", s, a.network.Name)
}

func (a *app) metadata(ctx context.Context, backend chain.Backend, token common.Address) (contracts.TokenMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
	defer cancel()
	return contracts.NewTokenReader(backend).Metadata(ctx, token)
}

func (a *app) spinner(suffix string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + suffix
	if !a.jsonOutput {
		s.Start()
	}
	return s
}

func confirmPrompt(prompt string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("\n%s (y/N): ", prompt)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func shortAddr(addr common.Address) string {
	h := addr.Hex()
	return h[:6] + "..." + h[len(h)-4:]
}

func stateColor(state trade.State) string {
	switch state {
	case trade.StateSettled:
		return color.GreenString(string(state))
	case trade.StateFailed:
		return color.RedString(string(state))
	}
	return color.YellowString(string(state))
}
