package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var chainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "List supported networks",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(cmd)
		if err != nil {
			printError(err)
			os.Exit(1)
		}

		configs := a.registry.List()
		if a.jsonOutput {
			out := make([]map[string]interface{}, 0, len(configs))
			for _, c := range configs {
				tokens := make(map[string]string, len(c.Tokens))
				for sym, addr := range c.Tokens {
					tokens[sym] = addr.Hex()
				}
				out = append(out, map[string]interface{}{
					"chain_id": c.ChainID,
					"name":     c.Name,
					"rpc":      c.RPCURL,
					"explorer": c.ExplorerURL,
					"amm":      c.HasAMM(),
					"tokens":   tokens,
				})
			}
			printJSON(out)
			return
		}

		fmt.Println("\n" + strings.Repeat("=", 90))
		color.Green("                            SUPPORTED NETWORKS")
		fmt.Println(strings.Repeat("=", 90))

		for _, c := range configs {
			marker := " "
			if c.ChainID == a.network.ChainID {
				marker = color.GreenString("*")
			}
			color.Cyan("\n%s %s (%d)", marker, c.Name, c.ChainID)
			fmt.Println(strings.Repeat("-", 90))
			fmt.Printf("  Explorer:  %s\n", c.ExplorerURL)
			if c.HasAMM() {
				fmt.Printf("  AMM:       factory %s\n", color.HiBlackString(c.AMMFactory.Hex()))
			} else {
				fmt.Printf("  AMM:       %s\n", color.HiBlackString("not available"))
			}

			symbols := make([]string, 0, len(c.Tokens))
			for sym := range c.Tokens {
				symbols = append(symbols, sym)
			}
			sort.Strings(symbols)
			for _, sym := range symbols {
				fmt.Printf("  %-10s %s\n", color.YellowString(sym), color.HiBlackString(c.Tokens[sym].Hex()))
			}
		}

		fmt.Println("\n" + strings.Repeat("=", 90))
		fmt.Printf("\nTotal: %d networks\n\n", len(configs))
	},
}

func init() {
	rootCmd.AddCommand(chainsCmd)
}
