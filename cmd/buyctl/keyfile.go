package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/guildxyz/tokenbuyer/internal/crypto"
)

var (
	encryptKeyIn  string
	encryptKeyOut string
)

var encryptKeyCmd = &cobra.Command{
	Use:   "encrypt-key",
	Short: "Seal a payer private key into an encrypted key file",
	Long: `Seal a hex-encoded payer private key into the encrypted key file
format the token buyer service loads at startup (wallet.encrypted_key_path).
The key is read from a file to keep it out of shell history, and the password
comes from TOKENBUYER_WALLET_KEY_PASSWORD.

Examples:
  TOKENBUYER_WALLET_KEY_PASSWORD=... buyctl encrypt-key --in payer.key --out payer.key.enc`,
	Run: runEncryptKey,
}

func init() {
	rootCmd.AddCommand(encryptKeyCmd)

	encryptKeyCmd.Flags().StringVar(&encryptKeyIn, "in", "", "File holding the hex private key (required)")
	encryptKeyCmd.Flags().StringVar(&encryptKeyOut, "out", "", "Destination for the encrypted key file (required)")
	_ = encryptKeyCmd.MarkFlagRequired("in")
	_ = encryptKeyCmd.MarkFlagRequired("out")
}

func runEncryptKey(cmd *cobra.Command, args []string) {
	password := os.Getenv("TOKENBUYER_WALLET_KEY_PASSWORD")
	if password == "" {
		printError(fmt.Errorf("TOKENBUYER_WALLET_KEY_PASSWORD must be set"))
		os.Exit(1)
	}

	raw, err := os.ReadFile(encryptKeyIn)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	sealed, err := crypto.EncryptKey(strings.TrimSpace(string(raw)), password)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if err := os.WriteFile(encryptKeyOut, sealed, 0o600); err != nil {
		printError(err)
		os.Exit(1)
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s wrote %s\n", green("✓"), encryptKeyOut)
}
