package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"moonx-swap/pkg/ledger"
	"moonx-swap/pkg/parser"
	"moonx-swap/pkg/types"
)

var (
	filterSymbol string
	showBalances bool
)

var allVenues = []types.Venue{types.VenueAggregator, types.VenueConstantProduct, types.VenueOrderBook}

var tokensCmd = &cobra.Command{
	Use:     "tokens",
	Aliases: []string{"list-tokens", "ls"},
	Short:   "List purchased tokens",
	Long: `List the tokens bought through each venue. Tokens are added after a
settled buy and removed after selling the full balance.

Examples:
  moonx-swap tokens
  moonx-swap tokens --venue order-book --balances
  moonx-swap tokens --symbol PEPE`,
	Run: runListTokens,
}

var tokensRemoveCmd = &cobra.Command{
	Use:   "remove <token-address>",
	Short: "Forget a purchased token on the selected venue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		if !common.IsHexAddress(args[0]) {
			printError(fmt.Errorf("'%s' is not a token address", args[0]))
			os.Exit(1)
		}
		if err := a.ledger(a.venue).Remove(common.HexToAddress(args[0])); err != nil {
			printError(err)
			os.Exit(1)
		}
		printSuccess(fmt.Sprintf("✓ Removed %s from %s tokens", args[0], a.venue))
	},
}

var tokensClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget all purchased tokens on the selected venue",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		if err := a.ledger(a.venue).Clear(); err != nil {
			printError(err)
			os.Exit(1)
		}
		printSuccess(fmt.Sprintf("✓ Cleared %s tokens", a.venue))
	},
}

func init() {
	rootCmd.AddCommand(tokensCmd)
	tokensCmd.AddCommand(tokensRemoveCmd, tokensClearCmd)

	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
	tokensCmd.Flags().BoolVar(&showBalances, "balances", false, "Show balances of the connected wallet")
}

// venueTokens is one venue's purchased tokens with optional balances
type venueTokens struct {
	Venue    types.Venue            `json:"venue"`
	Tokens   []types.PurchasedToken `json:"tokens"`
	Balances map[string]string      `json:"balances,omitempty"`
}

func runListTokens(cmd *cobra.Command, args []string) {
	a := mustApp(cmd)

	venues := allVenues
	if cmd.Flags().Changed("venue") {
		venues = []types.Venue{a.venue}
	}

	var lists []venueTokens
	for _, venue := range venues {
		tokens, err := a.ledger(venue).List()
		if err != nil {
			printError(err)
			os.Exit(1)
		}

		// Apply filters
		if filterSymbol != "" {
			var temp []types.PurchasedToken
			for _, t := range tokens {
				if strings.Contains(strings.ToUpper(t.Symbol), strings.ToUpper(filterSymbol)) {
					temp = append(temp, t)
				}
			}
			tokens = temp
		}
		lists = append(lists, venueTokens{Venue: venue, Tokens: tokens})
	}

	if showBalances {
		if err := fillBalances(a, lists); err != nil {
			printError(err)
			os.Exit(1)
		}
	}

	// Output
	if a.jsonOutput {
		printJSON(lists)
	} else {
		displayTokens(lists)
	}
}

func fillBalances(a *app, lists []venueTokens) error {
	handle, ok, err := ledger.ConnectedWallet(a.store)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no wallet connected. Run 'moonx-swap connect' first")
	}

	ctx := context.Background()
	backend, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	s := a.spinner("Reading balances...")
	defer s.Stop()

	for i := range lists {
		lists[i].Balances = make(map[string]string)
		for _, t := range lists[i].Tokens {
			meta, err := a.metadata(ctx, backend, t.Address)
			if err != nil {
				a.logger.Debug().Err(err).Str("token", t.Address.Hex()).Msg("metadata read failed")
				continue
			}
			balance, err := balanceOf(ctx, a, backend, t.Address, handle.Address)
			if err != nil {
				a.logger.Debug().Err(err).Str("token", t.Address.Hex()).Msg("balance read failed")
				continue
			}
			lists[i].Balances[t.Address.Hex()] = parser.FormatUnitsFixed(balance, meta.Decimals, 4)
		}
	}
	return nil
}

func displayTokens(lists []venueTokens) {
	total := 0
	for _, l := range lists {
		total += len(l.Tokens)
	}
	if total == 0 {
		fmt.Println("\nNo purchased tokens found.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                            PURCHASED TOKENS")
	fmt.Println(strings.Repeat("=", 90))

	for _, l := range lists {
		if len(l.Tokens) == 0 {
			continue
		}
		color.Cyan("\n%s", strings.ToUpper(string(l.Venue)))
		fmt.Println(strings.Repeat("-", 90))

		for _, t := range l.Tokens {
			symbol := t.Symbol
			if symbol == "" {
				symbol = "?"
			}
			line := fmt.Sprintf("  %-10s  %s", color.YellowString(symbol), color.HiBlackString(t.Address.Hex()))
			if bal, ok := l.Balances[t.Address.Hex()]; ok {
				line += "  " + bal
			}
			fmt.Println(line)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d tokens\n\n", total)
}
