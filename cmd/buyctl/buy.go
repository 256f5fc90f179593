package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/guildxyz/tokenbuyer/internal/domain"
)

var (
	buyChain     string
	buyKind      string
	buyAsset     string
	buyAmount    string
	buyTokenID   string
	buySell      string
	buyRecipient string
)

var buyCmd = &cobra.Command{
	Use:   "buy",
	Short: "Execute a purchase",
	Long: `Quote a requirement and execute the purchase on-chain. The command
blocks until the swap confirms or fails; approvals are submitted and awaited
automatically when the sell currency is an ERC20.

Examples:
  buyctl buy --chain ethereum --asset 0x6B175474E89094C44Da98b954EedeAC495271d0F --amount 100 --recipient 0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B`,
	Run: runBuy,
}

func init() {
	rootCmd.AddCommand(buyCmd)

	buyCmd.Flags().StringVar(&buyChain, "chain", "ethereum", "Chain name")
	buyCmd.Flags().StringVar(&buyKind, "kind", "fungible", "Asset kind (fungible, erc721, erc1155)")
	buyCmd.Flags().StringVar(&buyAsset, "asset", "", "Asset contract address (required)")
	buyCmd.Flags().StringVar(&buyAmount, "amount", "", "Target amount in whole units (required)")
	buyCmd.Flags().StringVar(&buyTokenID, "token-id", "", "ERC1155 token id")
	buyCmd.Flags().StringVar(&buySell, "sell", "", "Sell currency address (defaults to native)")
	buyCmd.Flags().StringVar(&buyRecipient, "recipient", "", "Address receiving the bought asset (required)")
	_ = buyCmd.MarkFlagRequired("asset")
	_ = buyCmd.MarkFlagRequired("amount")
	_ = buyCmd.MarkFlagRequired("recipient")
}

func runBuy(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	client := newAPIClient(serverURL, apiKey)

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Executing purchase (this can take a few minutes)..."
		s.Start()
	}

	attempt, err := client.Purchase(buyRequest{
		Chain:        buyChain,
		AssetKind:    buyKind,
		AssetAddress: buyAsset,
		Amount:       buyAmount,
		TokenID:      buyTokenID,
		SellCurrency: buySell,
		Recipient:    buyRecipient,
	})
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		if attempt != nil && !jsonOutput {
			displayAttempt(attempt)
		}
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(attempt, "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	color.Green("\nPurchase confirmed.")
	displayAttempt(attempt)
}

func displayAttempt(attempt *domain.PurchaseAttempt) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                      PURCHASE ATTEMPT")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  ID:              %s\n", color.CyanString(attempt.ID))
	fmt.Printf("  Chain:           %s\n", attempt.Chain)
	fmt.Printf("  Asset:           %s (%s)\n", attempt.AssetAddress, attempt.AssetKind)
	fmt.Printf("  Payer:           %s\n", attempt.Payer)
	fmt.Printf("  Status:          %s\n", coloredStatus(attempt.Status))
	if attempt.FailureReason != "" {
		fmt.Printf("  Failure:         %s\n", color.RedString("%s: %s", attempt.FailureKind, attempt.FailureReason))
	}

	fmt.Printf("\n  Buy amount:      %s\n", attempt.BuyAmount)
	fmt.Printf("  Max amount in:   %s\n", formatNative(attempt.MaxAmountIn))
	fmt.Printf("  Total (native):  %s\n", formatNative(attempt.TotalNative))

	if attempt.ApprovalTxHash != "" {
		fmt.Printf("\n  Approval Tx:     %s\n", color.HiBlackString(attempt.ApprovalTxHash))
	}
	if attempt.SwapTxHash != "" {
		fmt.Printf("  Swap Tx:         %s\n", color.HiBlackString(attempt.SwapTxHash))
	}

	fmt.Printf("\n  Created:         %s\n", attempt.CreatedAt.Format("2006-01-02 15:04:05"))
	if attempt.ConfirmedAt != nil {
		fmt.Printf("  Confirmed:       %s\n", attempt.ConfirmedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Println()
}
