package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/guildxyz/tokenbuyer/internal/domain"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <attempt-id>",
	Short: "Check the status of a purchase attempt",
	Long: `Check the lifecycle state of a purchase attempt by its id.

Examples:
  buyctl status 3f8e1c2a-9d74-4b1f-a3c5-0e8f6d2b7a91
  buyctl status 3f8e1c2a-9d74-4b1f-a3c5-0e8f6d2b7a91 --watch
  buyctl status 3f8e1c2a-9d74-4b1f-a3c5-0e8f6d2b7a91 --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates continuously")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	attemptID := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")
	client := newAPIClient(serverURL, apiKey)

	if watchStatus {
		watchAttempt(client, attemptID, jsonOutput)
		return
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking attempt status..."
		s.Start()
	}

	attempt, err := client.GetAttempt(attemptID)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(attempt, "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	displayAttempt(attempt)
}

func watchAttempt(client *apiClient, attemptID string, jsonOutput bool) {
	if jsonOutput {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		os.Exit(1)
	}

	fmt.Printf("\nWatching attempt %s\n", color.CyanString(attemptID))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	// Check immediately, then poll until the attempt reaches a terminal
	// state.
	if checkAndDisplay(client, attemptID) {
		return
	}
	for range ticker.C {
		if checkAndDisplay(client, attemptID) {
			return
		}
	}
}

func checkAndDisplay(client *apiClient, attemptID string) (done bool) {
	attempt, err := client.GetAttempt(attemptID)
	if err != nil {
		color.Red("Error: %v", err)
		return false
	}
	displayAttempt(attempt)
	return attempt.Status == domain.AttemptConfirmed || attempt.Status == domain.AttemptFailed
}
