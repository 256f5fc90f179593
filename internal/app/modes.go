package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/guildxyz/tokenbuyer/internal/domain"
	"github.com/guildxyz/tokenbuyer/internal/notify"
	"github.com/guildxyz/tokenbuyer/internal/server"
	"github.com/guildxyz/tokenbuyer/internal/server/handler"
	"github.com/guildxyz/tokenbuyer/internal/server/ws"
	"github.com/guildxyz/tokenbuyer/internal/service"
)

// archiveInterval is how often confirmed attempts are swept to blob storage.
const archiveInterval = 24 * time.Hour

// archiveRetention is how long attempts stay in postgres before they are
// eligible for archival.
const archiveRetention = 30 * 24 * time.Hour

// ServeMode runs the long-lived API: the HTTP server, the WebSocket hub, the
// notification bridge, and the periodic attempt archiver. It blocks until the
// context is cancelled or a component fails.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode",
		slog.Int("port", a.cfg.Server.Port),
		slog.String("payer", deps.Signer.Address().Hex()),
	)

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now(),
	})

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(deps.Pingers, a.logger),
		Quotes:    handler.NewQuoteHandler(deps.Purchases, a.logger),
		Purchases: handler.NewPurchaseHandler(deps.Purchases, a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(gctx)
	})

	g.Go(func() error {
		if err := srv.Start(); err != nil {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return a.notifyLoop(gctx, deps)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.archiveLoop(gctx, deps)
		})
	}

	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

// notifyLoop relays terminal purchase events from the signal bus to the
// configured notification channels. Intermediate states stay on the bus for
// WebSocket clients only.
func (a *App) notifyLoop(ctx context.Context, deps *Dependencies) error {
	events, err := deps.SignalBus.Subscribe(ctx, service.StatusChannel)
	if err != nil {
		return fmt.Errorf("app: subscribe status channel: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-events:
			if !ok {
				return nil
			}
			var event domain.StatusEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				a.logger.Warn("malformed status event", slog.String("error", err.Error()))
				continue
			}

			switch event.Status {
			case domain.AttemptConfirmed:
				a.notifyEvent(ctx, deps, notify.EventPurchaseConfirmed,
					"Purchase confirmed",
					fmt.Sprintf("attempt %s confirmed, tx %s", event.AttemptID, event.TxHash),
				)
			case domain.AttemptFailed:
				a.notifyEvent(ctx, deps, notify.EventPurchaseFailed,
					"Purchase failed",
					fmt.Sprintf("attempt %s failed: %s", event.AttemptID, event.Reason),
				)
			}
		}
	}
}

func (a *App) notifyEvent(ctx context.Context, deps *Dependencies, event, title, message string) {
	if err := deps.Notifier.Notify(ctx, event, title, message); err != nil {
		a.logger.Warn("notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// archiveLoop periodically moves old attempts out of postgres into blob
// storage. The first sweep runs one interval after startup so a crash-looping
// process does not hammer the store.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(archiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().Add(-archiveRetention)
			n, err := deps.Archiver.ArchiveBefore(ctx, cutoff)
			if err != nil {
				a.logger.Error("attempt archival failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				a.logger.Info("attempts archived",
					slog.Int("count", n),
					slog.Time("cutoff", cutoff),
				)
			}
		}
	}
}

// QuoteRequest carries the command-line parameters for a one-shot quote.
type QuoteRequest struct {
	Chain        string
	AssetKind    string
	AssetAddress string
	Amount       string
	TokenID      string
	SellCurrency string
}

// requirement converts the raw CLI parameters into a domain requirement plus
// the sell currency address.
func (q QuoteRequest) requirement() (domain.Requirement, common.Address, error) {
	kind := domain.AssetKind(strings.ToLower(q.AssetKind))
	switch kind {
	case domain.AssetFungible, domain.AssetERC721, domain.AssetERC1155:
	case "":
		kind = domain.AssetFungible
	default:
		return domain.Requirement{}, common.Address{}, fmt.Errorf("app: unknown asset kind %q", q.AssetKind)
	}

	if !common.IsHexAddress(q.AssetAddress) {
		return domain.Requirement{}, common.Address{}, fmt.Errorf("app: asset address %q is not a valid address", q.AssetAddress)
	}
	amount, err := decimal.NewFromString(q.Amount)
	if err != nil {
		return domain.Requirement{}, common.Address{}, fmt.Errorf("app: amount %q: %w", q.Amount, err)
	}

	req := domain.Requirement{
		AssetKind:    kind,
		Chain:        q.Chain,
		AssetAddress: common.HexToAddress(q.AssetAddress),
		TargetAmount: amount,
	}
	if q.TokenID != "" {
		id, ok := new(big.Int).SetString(q.TokenID, 10)
		if !ok {
			return domain.Requirement{}, common.Address{}, fmt.Errorf("app: token id %q is not a number", q.TokenID)
		}
		req.TokenID = id
	}

	sellCurrency := domain.NativeCurrency
	if q.SellCurrency != "" {
		if !common.IsHexAddress(q.SellCurrency) {
			return domain.Requirement{}, common.Address{}, fmt.Errorf("app: sell currency %q is not a valid address", q.SellCurrency)
		}
		sellCurrency = common.HexToAddress(q.SellCurrency)
	}
	return req, sellCurrency, nil
}

// QuoteMode prices a single requirement and writes the quote, the fee
// breakdown, and the swap ceiling to stdout as JSON. It needs only chain RPC
// and the external pricing sources; no persistence is touched.
func (a *App) QuoteMode(ctx context.Context, deps *Dependencies) error {
	if a.Quote == nil {
		return fmt.Errorf("app: quote mode requires a quote request")
	}
	req, sellCurrency, err := a.Quote.requirement()
	if err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "quoting requirement",
		slog.String("chain", req.Chain),
		slog.String("asset", req.AssetAddress.Hex()),
		slog.String("amount", req.TargetAmount.String()),
	)

	quote, breakdown, err := deps.Purchases.QuoteWithFees(ctx, req, sellCurrency)
	if err != nil {
		return fmt.Errorf("app: quote: %w", err)
	}

	out := struct {
		Quote       domain.Quote        `json:"quote"`
		Breakdown   domain.FeeBreakdown `json:"breakdown"`
		MaxAmountIn *big.Int            `json:"max_amount_in"`
	}{quote, breakdown, deps.Fees.MaxAmountIn(breakdown)}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("app: encode quote: %w", err)
	}
	return nil
}
