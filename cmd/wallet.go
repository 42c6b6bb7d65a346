package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"moonx-swap/pkg/ledger"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect the configured wallet",
	Long: `Open a wallet session on the selected network and remember its address.

A browser wallet is used when use_browser_wallet is set, otherwise the raw
private key. Connecting a browser wallet may prompt for a network switch.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		ctx := context.Background()

		s := a.spinner("Connecting wallet...")
		session, err := a.openSession(ctx)
		if err == nil {
			ctx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
			err = session.EnsureNetwork(ctx, a.network.ChainID)
			cancel()
		}
		s.Stop()
		if err != nil {
			if session != nil {
				session.Close()
			}
			printError(err)
			os.Exit(1)
		}
		defer session.Close()

		handle := session.Handle()
		if err := ledger.SaveConnectedWallet(a.store, handle); err != nil {
			printError(err)
			os.Exit(1)
		}

		if a.jsonOutput {
			printJSON(handle)
			return
		}
		printSuccess(fmt.Sprintf("✓ Connected %s", handle.Address.Hex()))
		fmt.Printf("  Mode:     %s\n", handle.Mode)
		fmt.Printf("  Network:  %s (%d)\n\n", a.network.Name, handle.ChainID)
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Forget the connected wallet",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		handle, ok, err := ledger.ConnectedWallet(a.store)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		if !ok {
			color.Yellow("No wallet connected.")
			return
		}
		if err := ledger.ForgetConnectedWallet(a.store); err != nil {
			printError(err)
			os.Exit(1)
		}
		printSuccess(fmt.Sprintf("✓ Disconnected %s", handle.Address.Hex()))
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the connected wallet",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		handle, ok, err := ledger.ConnectedWallet(a.store)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		if a.jsonOutput {
			printJSON(map[string]interface{}{"connected": ok, "wallet": handle})
			return
		}
		if !ok {
			color.Yellow("No wallet connected. Run 'moonx-swap connect' first.")
			return
		}
		fmt.Printf("\n  Address:  %s\n", color.CyanString(handle.Address.Hex()))
		fmt.Printf("  Mode:     %s\n", handle.Mode)
		fmt.Printf("  Chain:    %d\n\n", handle.ChainID)
	},
}

func init() {
	rootCmd.AddCommand(connectCmd, disconnectCmd, whoamiCmd)
}
