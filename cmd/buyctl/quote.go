package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/guildxyz/tokenbuyer/internal/domain"
)

var (
	quoteChain   string
	quoteKind    string
	quoteAsset   string
	quoteAmount  string
	quoteTokenID string
	quoteSell    string
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Price a gating requirement",
	Long: `Price a gating requirement without executing anything on-chain. The
quote includes the base price, the fee breakdown, and the total the payer
would spend.

Examples:
  buyctl quote --chain ethereum --asset 0x6B175474E89094C44Da98b954EedeAC495271d0F --amount 100
  buyctl quote --chain ethereum --kind erc721 --asset 0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D --amount 1`,
	Run: runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().StringVar(&quoteChain, "chain", "ethereum", "Chain name")
	quoteCmd.Flags().StringVar(&quoteKind, "kind", "fungible", "Asset kind (fungible, erc721, erc1155)")
	quoteCmd.Flags().StringVar(&quoteAsset, "asset", "", "Asset contract address (required)")
	quoteCmd.Flags().StringVar(&quoteAmount, "amount", "", "Target amount in whole units (required)")
	quoteCmd.Flags().StringVar(&quoteTokenID, "token-id", "", "ERC1155 token id")
	quoteCmd.Flags().StringVar(&quoteSell, "sell", "", "Sell currency address (defaults to native)")
	_ = quoteCmd.MarkFlagRequired("asset")
	_ = quoteCmd.MarkFlagRequired("amount")
}

func runQuote(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	client := newAPIClient(serverURL, apiKey)

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}

	result, err := client.Quote(buyRequest{
		Chain:        quoteChain,
		AssetKind:    quoteKind,
		AssetAddress: quoteAsset,
		Amount:       quoteAmount,
		TokenID:      quoteTokenID,
		SellCurrency: quoteSell,
	})
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	displayQuote(result)
}

func displayQuote(result *quoteResult) {
	q := result.Quote
	b := result.Breakdown

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                           QUOTE")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Chain:           %s\n", color.CyanString(q.Requirement.Chain))
	fmt.Printf("  Asset:           %s\n", color.CyanString(q.BuyToken.Hex()))
	fmt.Printf("  Source:          %s\n", q.Source)
	fmt.Printf("  Price (USD):     $%s\n", q.PriceInUSD.StringFixed(2))
	fmt.Printf("  Native/USD:      $%s\n", q.NativeUSDRate.StringFixed(2))

	fmt.Println("\n  " + strings.Repeat("-", 66))
	fmt.Printf("  Base price:      %s\n", formatNative(b.BasePrice))
	fmt.Printf("  Percentage fee:  %s\n", formatNative(b.PercentageFee))
	fmt.Printf("  Fixed fee:       %s\n", formatNative(b.FixedFeeNative))
	fmt.Printf("  Est. gas:        %s\n", formatNative(b.GasFee))
	fmt.Printf("  Total:           %s  (%s)\n",
		color.YellowString(formatNative(b.TotalNative)),
		color.HiBlackString("$"+b.TotalUSD.StringFixed(2)),
	)

	expiresIn := time.Until(q.ExpiresAt).Round(time.Second)
	fmt.Printf("\n  Expires:         %s (%s)\n\n",
		q.ExpiresAt.Format("2006-01-02 15:04:05"),
		color.HiBlackString("in %s", expiresIn),
	)
}

// formatNative renders a smallest-unit amount as whole native currency with
// up to six fractional digits.
func formatNative(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -18).StringFixed(6)
}

// statusColors maps attempt statuses to their display colors.
func coloredStatus(status domain.AttemptStatus) string {
	switch status {
	case domain.AttemptConfirmed:
		return color.GreenString(string(status))
	case domain.AttemptFailed:
		return color.RedString(string(status))
	case domain.AttemptSubmitted, domain.AttemptAwaitingApproval:
		return color.YellowString(string(status))
	default:
		return color.CyanString(string(status))
	}
}
