// Command tokenbuyer is the backend entry point for the token buyer service.
// It loads configuration, validates it, wires dependencies, sets up signal
// handling, and starts the application in the configured mode.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/guildxyz/tokenbuyer/internal/app"
	"github.com/guildxyz/tokenbuyer/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	quoteChain := flag.String("chain", "", "quote mode: chain name from the config")
	quoteKind := flag.String("kind", "fungible", "quote mode: asset kind (fungible, erc721, erc1155)")
	quoteAsset := flag.String("asset", "", "quote mode: asset contract address")
	quoteAmount := flag.String("amount", "", "quote mode: target amount in whole units")
	quoteTokenID := flag.String("token-id", "", "quote mode: ERC1155 token id")
	quoteSell := flag.String("sell", "", "quote mode: sell currency address (defaults to native)")
	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("token buyer starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	// Create the application.
	application := app.New(cfg, logger)
	defer application.Close()

	if cfg.Mode == "quote" {
		application.Quote = &app.QuoteRequest{
			Chain:        *quoteChain,
			AssetKind:    *quoteKind,
			AssetAddress: *quoteAsset,
			Amount:       *quoteAmount,
			TokenID:      *quoteTokenID,
			SellCurrency: *quoteSell,
		}
	}

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run the application.
	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if err == context.Canceled {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("token buyer stopped")
}
