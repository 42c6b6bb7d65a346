package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"moonx-swap/pkg/chain"
	"moonx-swap/pkg/ledger"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <execution-id|tx-hash>",
	Short: "Check the on-chain status of a trade",
	Long: `Check the receipt of a trade transaction, looked up by execution ID from
the local history or given directly as a transaction hash.

Examples:
  moonx-swap status 6f1c0a4e-...
  moonx-swap status 0xabc... --watch
  moonx-swap status 0xabc... --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Poll until the transaction is mined")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

// statusTarget is the transaction being inspected
type statusTarget struct {
	hash    common.Hash
	network chain.Config
	record  *ledger.Execution
}

func runStatus(cmd *cobra.Command, args []string) {
	a := mustApp(cmd)
	ctx := context.Background()

	target, err := resolveStatusTarget(a, args[0])
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	backend, err := target.network.Dial(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer backend.Close()

	if watchStatus {
		watchTxStatus(ctx, a, backend, target)
	} else {
		checkTxStatus(ctx, a, backend, target)
	}
}

func resolveStatusTarget(a *app, arg string) (*statusTarget, error) {
	target := &statusTarget{network: a.network}

	if record, err := ledger.NewHistory(a.store).Get(arg); err == nil {
		if record.TxHash == "" {
			return nil, fmt.Errorf("execution %s never submitted a transaction (state %s)", record.ID, record.State)
		}
		target.record = record
		target.hash = common.HexToHash(record.TxHash)
		if network, err := a.registry.Lookup(record.ChainID); err == nil {
			target.network = network
		}
		return target, nil
	}

	if len(strings.TrimPrefix(arg, "0x")) != 64 {
		return nil, fmt.Errorf("'%s' is neither a known execution ID nor a transaction hash", arg)
	}
	target.hash = common.HexToHash(arg)
	return target, nil
}

func fetchReceipt(ctx context.Context, a *app, backend chain.Backend, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
	defer cancel()
	receipt, err := backend.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	return receipt, err
}

func checkTxStatus(ctx context.Context, a *app, backend chain.Backend, target *statusTarget) {
	s := a.spinner("Checking transaction status...")
	receipt, err := fetchReceipt(ctx, a, backend, target.hash)
	s.Stop()

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if a.jsonOutput {
		printJSON(statusJSON(target, receipt))
	} else {
		displayStatus(target, receipt)
	}
}

func watchTxStatus(ctx context.Context, a *app, backend chain.Backend, target *statusTarget) {
	if a.jsonOutput {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		os.Exit(1)
	}

	fmt.Printf("\nWatching transaction %s\n", color.CyanString(target.hash.Hex()))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	// Check immediately first, then until mined
	for {
		receipt, err := fetchReceipt(ctx, a, backend, target.hash)
		if err != nil {
			color.Red("Error: %v", err)
		} else {
			displayStatus(target, receipt)
			if receipt != nil {
				return
			}
		}
		<-ticker.C
	}
}

func receiptStatus(receipt *types.Receipt) string {
	switch {
	case receipt == nil:
		return "PENDING"
	case receipt.Status == types.ReceiptStatusSuccessful:
		return "SUCCESS"
	}
	return "REVERTED"
}

func statusJSON(target *statusTarget, receipt *types.Receipt) map[string]interface{} {
	out := map[string]interface{}{
		"tx_hash":      target.hash.Hex(),
		"status":       receiptStatus(receipt),
		"explorer_url": target.network.TxURL(target.hash),
	}
	if receipt != nil {
		out["block_number"] = receipt.BlockNumber.String()
		out["gas_used"] = receipt.GasUsed
	}
	if target.record != nil {
		out["execution"] = target.record
	}
	return out
}

func displayStatus(target *statusTarget, receipt *types.Receipt) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                      TRANSACTION STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Transaction:     %s\n", color.CyanString(target.hash.Hex()))
	fmt.Printf("  Network:         %s\n", target.network.Name)
	fmt.Printf("  Status:          %s\n", getColoredStatus(receiptStatus(receipt)))

	if receipt != nil {
		fmt.Printf("  Block:           %s\n", receipt.BlockNumber)
		fmt.Printf("  Gas Used:        %d\n", receipt.GasUsed)
	}

	if r := target.record; r != nil {
		fmt.Printf("  Execution:       %s\n", r.ID)
		fmt.Printf("  Trade:           %s on %s\n", r.Mode, r.Venue)
		fmt.Printf("  Recorded State:  %s\n", r.State)
		if r.ApprovalTx != "" {
			fmt.Printf("  Approval Tx:     %s\n", color.HiBlackString(r.ApprovalTx))
		}
		if r.Error != "" {
			fmt.Printf("  Error:           %s\n", color.RedString(r.Error))
		}
	}

	fmt.Printf("  Explorer:        %s\n", target.network.TxURL(target.hash))
	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func getColoredStatus(status string) string {
	switch status {
	case "SUCCESS", "Settled":
		return color.GreenString(status)
	case "PENDING":
		return color.YellowString(status)
	case "REVERTED", "Failed":
		return color.RedString(status)
	default:
		return status
	}
}
