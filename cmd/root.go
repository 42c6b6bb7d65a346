package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"moonx-swap/pkg/types"
)

var rootCmd = &cobra.Command{
	Use:   "moonx-swap",
	Short: "Trade meme tokens on EVM chains through MoonX, Wow and the liquid.fun aggregator",
	Long: `moonx-swap quotes and executes buys and sells of ERC-20 tokens on Base,
Optimism, Arbitrum and Ethereum. Three venues are supported:

  aggregator        liquid.fun rate API, settled through the platform wallet
  constant-product  MoonX router, priced against the best Uniswap v3 pool
  order-book        Wow bonding curve (graduated tokens price on Uniswap v3)

Trades are signed with a raw private key (MOONX_PRIVATE_KEY) or sent to an
external wallet endpoint (MOONX_USE_BROWSER_WALLET + MOONX_WALLET_RPC).

Examples:
  moonx-swap quote buy 0.01 0x1234... --venue constant-product
  moonx-swap buy 0.01 0x1234... --venue order-book
  moonx-swap sell --percent 50 0x1234...
  moonx-swap tokens
  moonx-swap history`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().String("chain", "", "Chain name or ID (default from config, Base)")
	rootCmd.PersistentFlags().String("venue", string(types.VenueConstantProduct), "Venue: aggregator, constant-product or order-book")
}

func printError(err error) {
	msg := err.Error()
	if kind, ok := types.KindOf(err); ok {
		msg = fmt.Sprintf("%s: %s", kind, types.Reason(err))
	}
	fmt.Printf("\n%s %s\n\n", color.RedString("Error:"), msg)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", color.GreenString(message))
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
