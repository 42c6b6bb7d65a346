package cmd

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"moonx-swap/pkg/chain"
	"moonx-swap/pkg/contracts"
	"moonx-swap/pkg/parser"
	"moonx-swap/pkg/trade"
	"moonx-swap/pkg/types"
	"moonx-swap/pkg/wallet"
)

var (
	tradeSlippage string
	tradeCounter  string
	tradePercent  string
	tradeYes      bool
)

var buyCmd = &cobra.Command{
	Use:   "buy <amount> <token>",
	Short: "Buy a token",
	Long: `Buy a token on the selected venue.

The amount is what you spend, in the paying token (ETH by default), except on
the aggregator where it is the amount of <token> you want to receive.

Examples:
  moonx-swap buy 0.01 0x1234... --venue constant-product
  moonx-swap buy 0.005 0x1234... --venue order-book --slippage 5
  moonx-swap buy 1000 0x1234... --venue aggregator --pay USDC`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runTrade(cmd, types.ModeBuy, args[0], args[1])
	},
}

var sellCmd = &cobra.Command{
	Use:   "sell [amount] <token>",
	Short: "Sell a token",
	Long: `Sell a token on the selected venue for ETH (or --receive on the aggregator).

Give either an amount of <token> or --percent of your balance. Selling the
whole balance removes the token from the purchased-token list.

Examples:
  moonx-swap sell 1500 0x1234...
  moonx-swap sell --percent 100 0x1234... --venue order-book`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		amount, token := "", args[len(args)-1]
		if len(args) == 2 {
			amount = args[0]
		}
		runTrade(cmd, types.ModeSell, amount, token)
	},
}

func init() {
	rootCmd.AddCommand(buyCmd, sellCmd)

	for _, c := range []*cobra.Command{buyCmd, sellCmd} {
		c.Flags().StringVarP(&tradeSlippage, "slippage", "s", "", "Slippage percent, 0-200 (default from config)")
		c.Flags().BoolVarP(&tradeYes, "yes", "y", false, "Skip confirmation prompt")
	}
	buyCmd.Flags().StringVar(&tradeCounter, "pay", "ETH", "Token to pay with")
	sellCmd.Flags().StringVar(&tradeCounter, "receive", "ETH", "Token to receive")
	sellCmd.Flags().StringVar(&tradePercent, "percent", "", "Sell this percent of the wallet balance instead of an amount")
}

// intentArgs are the user inputs an intent is built from
type intentArgs struct {
	mode     types.TradeMode
	amount   string
	percent  string
	token    string
	counter  string
	slippage string
	owner    common.Address
}

// buildIntent resolves tokens and converts the human amount to base units
func buildIntent(ctx context.Context, a *app, backend chain.Backend, in intentArgs) (types.TradeIntent, contracts.TokenMetadata, error) {
	var none contracts.TokenMetadata

	token, err := a.resolveToken(in.token)
	if err != nil {
		return types.TradeIntent{}, none, err
	}
	counter := types.NativeToken
	if in.counter != "" {
		if counter, err = a.resolveToken(in.counter); err != nil {
			return types.TradeIntent{}, none, err
		}
	}

	slippage := a.cfg.Slippage
	if in.slippage != "" {
		if slippage, err = parser.ParseSlippage(in.slippage); err != nil {
			return types.TradeIntent{}, none, types.NewError(types.KindInvalidIntent, err.Error(), err)
		}
	}

	intent := types.TradeIntent{
		Mode:     in.mode,
		ChainID:  a.network.ChainID,
		Slippage: slippage,
		Venue:    a.venue,
	}
	if in.mode == types.ModeBuy {
		intent.SourceToken, intent.DestinationToken = counter, token
	} else {
		intent.SourceToken, intent.DestinationToken = token, counter
	}

	// The amount is denominated in the source token, except aggregator buys
	denom := intent.SourceToken
	if in.mode == types.ModeBuy && a.venue == types.VenueAggregator {
		denom = intent.DestinationToken
	}
	meta, err := a.metadata(ctx, backend, denom)
	if err != nil {
		return types.TradeIntent{}, none, err
	}

	switch {
	case in.percent != "":
		if in.mode != types.ModeSell {
			return types.TradeIntent{}, none, types.Errorf(types.KindInvalidIntent, "--percent is only supported for sells")
		}
		pct, err := parser.ParsePercent(in.percent)
		if err != nil {
			return types.TradeIntent{}, none, types.NewError(types.KindInvalidIntent, err.Error(), err)
		}
		balance, err := balanceOf(ctx, a, backend, intent.SourceToken, in.owner)
		if err != nil {
			return types.TradeIntent{}, none, err
		}
		intent.Amount = parser.PercentOf(balance, pct)
	case in.amount != "":
		if intent.Amount, err = parser.ParseUnits(in.amount, meta.Decimals); err != nil {
			return types.TradeIntent{}, none, types.NewError(types.KindInvalidIntent, err.Error(), err)
		}
	default:
		return types.TradeIntent{}, none, types.Errorf(types.KindInvalidIntent, "an amount or --percent is required")
	}

	return intent, meta, nil
}

func balanceOf(ctx context.Context, a *app, backend chain.Backend, token, owner common.Address) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
	defer cancel()
	if types.IsNative(token) {
		return backend.BalanceAt(ctx, owner, nil)
	}
	return contracts.NewTokenReader(backend).BalanceOf(ctx, token, owner)
}

func runTrade(cmd *cobra.Command, mode types.TradeMode, amount, token string) {
	a := mustApp(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	session, err := a.openSession(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer session.Close()

	intent, meta, err := buildIntent(ctx, a, session.Backend(), intentArgs{
		mode:     mode,
		amount:   amount,
		percent:  tradePercent,
		token:    token,
		counter:  tradeCounter,
		slippage: tradeSlippage,
		owner:    session.Address(),
	})
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	// Show a preview quote before asking for confirmation
	mux := a.quoters(session.Backend())
	s := a.spinner("Fetching quote...")
	qctx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
	preview, err := mux.Quote(qctx, intent)
	cancel()
	s.Stop()
	if err != nil {
		if a.verbose {
			fmt.Printf("\nDebug: preview quote failed: %v\n", err)
		}
		color.Yellow("\nNo preview quote available: %s", types.Reason(err))
	} else if !a.jsonOutput {
		displayQuote(a, intent, meta, preview)
	}

	if !tradeYes && !a.jsonOutput {
		if !confirmPrompt(fmt.Sprintf("Proceed with %s from %s?", intent.Mode, shortAddr(session.Address()))) {
			fmt.Println("\nTrade cancelled.")
			os.Exit(0)
		}
	}

	observer := func(t trade.Transition) {
		if a.jsonOutput {
			return
		}
		fmt.Printf("  %s %s\n", color.CyanString("→"), stateColor(t.To))
	}
	exec := a.executor(ctx, session, observer)
	res, err := exec.Execute(ctx, intent)
	if a.jsonOutput {
		printJSON(resultJSON(a.network, res, err))
		if err != nil {
			os.Exit(1)
		}
		return
	}
	if err != nil {
		if res != nil && res.TxHash != (common.Hash{}) {
			fmt.Printf("  Transaction: %s\n", color.CyanString(a.network.TxURL(res.TxHash)))
		}
		printError(err)
		os.Exit(1)
	}

	displayResult(ctx, a, session, res)
}

func displayQuote(a *app, intent types.TradeIntent, meta contracts.TokenMetadata, q *types.QuoteResult) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     TRADE QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	label := "Expected Output:"
	if q.Venue == types.VenueAggregator && intent.Mode == types.ModeBuy {
		label = "Expected Cost:  "
	}

	fmt.Printf("\n  Venue:            %s\n", q.Venue)
	fmt.Printf("  Network:          %s\n", a.network.Name)
	fmt.Printf("  Amount:           %s %s\n", parser.FormatUnits(intent.Amount, meta.Decimals), color.YellowString(meta.Symbol))
	fmt.Printf("  %s  %s %s\n", label, parser.FormatUnitsFixed(q.ExpectedOutput, q.Decimals, 6), color.YellowString(q.Symbol))
	fmt.Printf("  Raw Quote:        %s %s\n", parser.FormatUnitsFixed(q.RawAmount, q.Decimals, 6), q.Symbol)
	fmt.Printf("  Slippage:         %d%% (%s)\n", intent.Slippage, q.Policy)
	if q.Pool != (common.Address{}) {
		fmt.Printf("  Pool:             %s (fee %d)\n", q.Pool.Hex(), q.FeeTier)
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
}

func displayResult(ctx context.Context, a *app, session wallet.Session, res *trade.Result) {
	printSuccess("✓ Trade settled")
	if res.ApprovalTx != (common.Hash{}) {
		fmt.Printf("  Approval:     %s\n", color.CyanString(a.network.TxURL(res.ApprovalTx)))
	}
	fmt.Printf("  Transaction:  %s\n", color.CyanString(a.network.TxURL(res.TxHash)))

	tracked := res.Intent.DestinationToken
	if res.Intent.Mode == types.ModeSell {
		tracked = res.Intent.SourceToken
	}
	if res.Balance != nil {
		meta, err := a.metadata(ctx, session.Backend(), tracked)
		if err == nil {
			fmt.Printf("  Balance:      %s %s\n", parser.FormatUnitsFixed(res.Balance, meta.Decimals, 6), meta.Symbol)
		}
	}
	fmt.Printf("  Execution ID: %s\n\n", res.ExecutionID)
}

func resultJSON(network chain.Config, res *trade.Result, err error) map[string]interface{} {
	out := map[string]interface{}{}
	if res != nil {
		out["execution_id"] = res.ExecutionID
		out["state"] = res.State
		out["venue"] = res.Intent.Venue
		out["mode"] = res.Intent.Mode
		if res.TxHash != (common.Hash{}) {
			out["tx_hash"] = res.TxHash.Hex()
			out["explorer_url"] = network.TxURL(res.TxHash)
		}
		if res.ApprovalTx != (common.Hash{}) {
			out["approval_tx"] = res.ApprovalTx.Hex()
		}
		if res.Balance != nil {
			out["balance"] = res.Balance.String()
		}
	}
	if err != nil {
		out["error"] = types.Reason(err)
		if kind, ok := types.KindOf(err); ok {
			out["error_kind"] = kind
		}
	}
	return out
}
