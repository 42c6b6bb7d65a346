package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"moonx-swap/pkg/ledger"
)

var referralCmd = &cobra.Command{
	Use:   "referral",
	Short: "Show or set the referrer recorded for the connected wallet",
}

var referralGetCmd = &cobra.Command{
	Use:   "get [wallet]",
	Short: "Look up the referrer of a wallet",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		rc := a.referralClient()
		if rc == nil {
			printError(fmt.Errorf("referral_url is not configured"))
			os.Exit(1)
		}
		user := referralWallet(a, args)

		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.CallTimeout)
		defer cancel()
		ref, err := rc.GetReferrer(ctx, user)
		if err != nil {
			printError(err)
			os.Exit(1)
		}

		if a.jsonOutput {
			printJSON(map[string]string{"wallet": user.Hex(), "referrer": ref.Hex()})
			return
		}
		if ref == (common.Address{}) {
			fmt.Printf("\n%s has no referrer.\n\n", user.Hex())
			return
		}
		fmt.Printf("\n  Wallet:    %s\n  Referrer:  %s\n\n", user.Hex(), ref.Hex())
	},
}

var referralSetCmd = &cobra.Command{
	Use:   "set <referrer>",
	Short: "Record a referrer for the connected wallet",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		rc := a.referralClient()
		if rc == nil {
			printError(fmt.Errorf("referral_url is not configured"))
			os.Exit(1)
		}
		if !common.IsHexAddress(args[0]) {
			printError(fmt.Errorf("'%s' is not an address", args[0]))
			os.Exit(1)
		}
		user := referralWallet(a, nil)
		ref := common.HexToAddress(args[0])

		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.CallTimeout)
		defer cancel()
		if err := rc.SaveReferrer(ctx, user, ref); err != nil {
			printError(err)
			os.Exit(1)
		}
		printSuccess(fmt.Sprintf("✓ Referrer of %s set to %s", shortAddr(user), ref.Hex()))
	},
}

func init() {
	rootCmd.AddCommand(referralCmd)
	referralCmd.AddCommand(referralGetCmd, referralSetCmd)
}

// referralWallet is the explicit argument or the connected wallet
func referralWallet(a *app, args []string) common.Address {
	if len(args) > 0 {
		if !common.IsHexAddress(args[0]) {
			printError(fmt.Errorf("'%s' is not an address", args[0]))
			os.Exit(1)
		}
		return common.HexToAddress(args[0])
	}
	handle, ok, err := ledger.ConnectedWallet(a.store)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if !ok {
		printError(fmt.Errorf("no wallet connected. Run 'moonx-swap connect' first"))
		os.Exit(1)
	}
	return handle.Address
}
