package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	listPayer string
	listLimit int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent purchase attempts for a payer",
	Long: `List the most recent purchase attempts made by a payer wallet,
newest first.

Examples:
  buyctl list --payer 0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B
  buyctl list --payer 0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B --limit 50`,
	Run: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listPayer, "payer", "", "Payer wallet address (required)")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum number of attempts to return")
	_ = listCmd.MarkFlagRequired("payer")
}

func runList(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	client := newAPIClient(serverURL, apiKey)

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching attempts..."
		s.Start()
	}

	attempts, err := client.ListAttempts(listPayer, listLimit)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(attempts, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	if len(attempts) == 0 {
		fmt.Println("\nNo attempts found.")
		return
	}

	fmt.Printf("\n%s\n\n", color.GreenString("Purchase attempts for %s:", listPayer))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tCHAIN\tASSET\tKIND\tSTATUS\tTOTAL\tCREATED")
	for _, a := range attempts {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID,
			a.Chain,
			shortAddress(a.AssetAddress),
			a.AssetKind,
			coloredStatus(a.Status),
			formatNative(a.TotalNative),
			a.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	w.Flush()
	fmt.Println()
}

// shortAddress truncates a hex address for table display.
func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:8] + "..." + addr[len(addr)-4:]
}
