package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"moonx-swap/pkg/parser"
	"moonx-swap/pkg/trade"
)

var unwrapYes bool

var unwrapCmd = &cobra.Command{
	Use:   "unwrap <amount|all>",
	Short: "Convert WETH back to ETH",
	Long: `Withdraw wrapped ETH into native ETH on the selected network.

Examples:
  moonx-swap unwrap 0.05
  moonx-swap unwrap all --chain base`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		ctx := context.Background()

		session, err := a.openSession(ctx)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		defer session.Close()

		weth := a.network.WETH()
		if weth == (common.Address{}) {
			printError(fmt.Errorf("%s has no wrapped native token", a.network.Name))
			os.Exit(1)
		}

		balance, err := balanceOf(ctx, a, session.Backend(), weth, session.Address())
		if err != nil {
			printError(err)
			os.Exit(1)
		}

		amount := balance
		if args[0] != "all" {
			if amount, err = parser.ParseUnits(args[0], 18); err != nil {
				printError(err)
				os.Exit(1)
			}
		}
		if amount.Cmp(balance) > 0 {
			printError(fmt.Errorf("insufficient WETH: have %s", parser.FormatUnits(balance, 18)))
			os.Exit(1)
		}

		if !unwrapYes && !a.jsonOutput {
			if !confirmPrompt(fmt.Sprintf("Unwrap %s WETH on %s?", parser.FormatUnits(amount, 18), a.network.Name)) {
				fmt.Println("\nCancelled.")
				os.Exit(0)
			}
		}

		exec := a.executor(ctx, session, func(t trade.Transition) {
			if !a.jsonOutput {
				fmt.Printf("  %s %s\n", color.CyanString("→"), stateColor(t.To))
			}
		})
		res, err := exec.Unwrap(ctx, a.network.ChainID, amount)
		if a.jsonOutput {
			printJSON(resultJSON(a.network, res, err))
			if err != nil {
				os.Exit(1)
			}
			return
		}
		if err != nil {
			printError(err)
			os.Exit(1)
		}

		printSuccess(fmt.Sprintf("✓ Unwrapped %s WETH", parser.FormatUnits(amount, 18)))
		fmt.Printf("  Transaction:  %s\n", color.CyanString(a.network.TxURL(res.TxHash)))
		if res.Balance != nil {
			fmt.Printf("  WETH left:    %s\n", parser.FormatUnitsFixed(res.Balance, 18, 6))
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(unwrapCmd)
	unwrapCmd.Flags().BoolVarP(&unwrapYes, "yes", "y", false, "Skip confirmation prompt")
}
