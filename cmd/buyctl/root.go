package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	apiKey    string
)

var rootCmd = &cobra.Command{
	Use:   "buyctl",
	Short: "A CLI for the token buyer purchase API",
	Long: `buyctl is a command-line tool for operating a running token buyer
instance. It prices gating requirements, executes purchases, and inspects
purchase attempts over the HTTP API.

Examples:
  buyctl quote --chain ethereum --asset 0x6B17...1d0F --amount 100
  buyctl buy --chain ethereum --asset 0x6B17...1d0F --amount 100 --recipient 0xAb58...eC9B
  buyctl status 3f8e1c2a-...
  buyctl list --payer 0xAb58...eC9B`,
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("TOKENBUYER_SERVER", "http://localhost:8080"), "token buyer API base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("TOKENBUYER_API_KEY"), "API key for authenticated endpoints")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}
