package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"moonx-swap/pkg/contracts"
	"moonx-swap/pkg/parser"
	"moonx-swap/pkg/quote"
	"moonx-swap/pkg/types"
)

var (
	quoteCounter  string
	quoteSlippage string
	quoteWatch    bool
)

var quoteCmd = &cobra.Command{
	Use:   "quote <buy|sell> <amount> <token>",
	Short: "Price a trade without executing it",
	Long: `Price a buy or sell on the selected venue. No wallet is needed.

With --watch the quote refreshes every 10 seconds on-chain (30 seconds on the
aggregator). Type a new amount and press enter to re-quote immediately (0 pauses); only
the newest request is ever displayed.

Examples:
  moonx-swap quote buy 0.01 0x1234...
  moonx-swap quote sell 25000 0x1234... --venue order-book
  moonx-swap quote buy 500 0x1234... --venue aggregator --watch`,
	Args: cobra.ExactArgs(3),
	Run:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().StringVar(&quoteCounter, "with", "ETH", "Token paid for buys or received for sells")
	quoteCmd.Flags().StringVarP(&quoteSlippage, "slippage", "s", "", "Slippage percent, 0-200 (default from config)")
	quoteCmd.Flags().BoolVarP(&quoteWatch, "watch", "w", false, "Keep the quote fresh until interrupted")
}

func runQuote(cmd *cobra.Command, args []string) {
	var mode types.TradeMode
	switch strings.ToLower(args[0]) {
	case "buy":
		mode = types.ModeBuy
	case "sell":
		mode = types.ModeSell
	default:
		printError(fmt.Errorf("mode must be 'buy' or 'sell', got '%s'", args[0]))
		os.Exit(1)
	}

	a := mustApp(cmd)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := a.dial(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer backend.Close()

	intent, meta, err := buildIntent(ctx, a, backend, intentArgs{
		mode:     mode,
		amount:   args[1],
		token:    args[2],
		counter:  quoteCounter,
		slippage: quoteSlippage,
	})
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	mux := a.quoters(backend)

	if quoteWatch {
		watchQuote(ctx, a, mux, intent, meta)
		return
	}

	s := a.spinner("Fetching quote...")
	qctx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
	result, err := mux.Quote(qctx, intent)
	cancel()
	s.Stop()

	if err != nil {
		if a.jsonOutput {
			printJSON(map[string]interface{}{"error": types.Reason(err)})
		} else {
			printError(err)
		}
		os.Exit(1)
	}

	if a.jsonOutput {
		printJSON(quoteJSON(intent, result))
		return
	}
	displayQuote(a, intent, meta, result)
}

func quoteJSON(intent types.TradeIntent, q *types.QuoteResult) map[string]interface{} {
	return map[string]interface{}{
		"venue":           q.Venue,
		"mode":            intent.Mode,
		"chain_id":        intent.ChainID,
		"source_token":    intent.SourceToken.Hex(),
		"dest_token":      intent.DestinationToken.Hex(),
		"amount":          intent.Amount.String(),
		"slippage":        intent.Slippage,
		"policy":          q.Policy,
		"raw_amount":      q.RawAmount.String(),
		"expected_output": q.ExpectedOutput.String(),
		"symbol":          q.Symbol,
		"decimals":        q.Decimals,
	}
}

// watchQuote runs a refresher until ctx ends. Each stdin line replaces the
// amount; stale answers for older amounts are never printed.
func watchQuote(ctx context.Context, a *app, quoter quote.Quoter, intent types.TradeIntent, meta contracts.TokenMetadata) {
	refresher := quote.NewRefresher(quoter, quote.IntervalFor(intent.Venue), a.logger, func(u quote.Update) {
		if a.jsonOutput {
			if u.Err != nil {
				printJSON(map[string]interface{}{"generation": u.Generation, "error": types.Reason(u.Err)})
				return
			}
			out := quoteJSON(u.Intent, u.Result)
			out["generation"] = u.Generation
			printJSON(out)
			return
		}

		amount := parser.FormatUnits(u.Intent.Amount, meta.Decimals)
		stamp := u.At.Format("15:04:05")
		if u.Err != nil {
			fmt.Printf("[%s] %s %s: %s\n", stamp, amount, meta.Symbol, color.RedString(types.Reason(u.Err)))
			return
		}
		fmt.Printf("[%s] %s %s -> %s %s\n", stamp, amount, meta.Symbol,
			color.GreenString(parser.FormatUnitsFixed(u.Result.ExpectedOutput, u.Result.Decimals, 6)), u.Result.Symbol)
	})
	refresher.SetIntent(intent)

	if !a.jsonOutput {
		fmt.Printf("\nRefreshing every %s. Type a new amount to re-quote, Ctrl+C to stop.\n\n", quote.IntervalFor(intent.Venue))
	}

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			amount, err := parser.ParseUnits(line, meta.Decimals)
			if err != nil || amount.Sign() < 0 {
				color.Yellow("ignoring '%s': not an amount", line)
				continue
			}
			// Zero pauses quoting until a new amount is entered
			if amount.Sign() == 0 {
				refresher.Clear()
				if !a.jsonOutput {
					fmt.Println("Paused. Type an amount to resume.")
				}
				continue
			}
			refresher.SetIntent(intent.WithAmount(amount))
		}
	}()

	_ = refresher.Run(ctx)
	refresher.Clear()
}
