package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"moonx-swap/pkg/ledger"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent trade executions",
	Long: `List the most recent trade executions recorded locally, newest first.
Use an execution ID with 'moonx-swap status' to check its transaction.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		records, err := ledger.NewHistory(a.store).List(historyLimit)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		if a.jsonOutput {
			printJSON(records)
			return
		}
		displayHistory(records)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of executions to show (0 for all)")
}

func displayHistory(records []*ledger.Execution) {
	if len(records) == 0 {
		fmt.Println("\nNo executions recorded.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                              TRADE HISTORY")
	fmt.Println(strings.Repeat("=", 90))

	for _, r := range records {
		fmt.Printf("\n  %s  %s\n", color.HiBlackString(r.Timestamp.Local().Format("2006-01-02 15:04:05")), r.ID)
		fmt.Printf("    %-4s on %-16s  chain %-6d  %s\n", r.Mode, r.Venue, r.ChainID, getColoredStatus(r.State))
		if r.TxHash != "" {
			fmt.Printf("    tx %s\n", color.CyanString(r.TxHash))
		}
		if r.Error != "" {
			fmt.Printf("    %s\n", color.RedString(r.Error))
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nShowing %d executions\n\n", len(records))
}
