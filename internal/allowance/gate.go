// Package allowance decides whether an ERC20 approval must confirm before a
// purchase can proceed. The gate reads live on-chain state on every call;
// allowances move out-of-band and stale reads would let swaps revert.
package allowance

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/guildxyz/tokenbuyer/internal/chain"
	"github.com/guildxyz/tokenbuyer/internal/domain"
)

// Reader reads ERC20 allowances from a chain.
type Reader interface {
	Allowance(ctx context.Context, chainName string, token, owner, spender common.Address) (*big.Int, error)
}

// Gate checks sell-currency allowances against the amount a purchase needs.
type Gate struct {
	reader Reader
	logger *slog.Logger
}

func NewGate(reader Reader, logger *slog.Logger) *Gate {
	return &Gate{
		reader: reader,
		logger: logger.With(slog.String("component", "allowance")),
	}
}

// Check reads the current allowance the owner has granted the spender for
// the token. Native currency needs no allowance and short-circuits without
// an RPC call.
func (g *Gate) Check(ctx context.Context, chainName string, token, owner, spender common.Address, required *big.Int) (domain.AllowanceState, error) {
	state := domain.AllowanceState{
		Owner:    owner,
		Spender:  spender,
		Token:    token,
		Current:  big.NewInt(0),
		Required: new(big.Int).Set(required),
	}

	if domain.IsNative(token) {
		return state, nil
	}

	current, err := g.reader.Allowance(ctx, chainName, token, owner, spender)
	if err != nil {
		return domain.AllowanceState{}, domain.Wrap(domain.ErrAllowanceReadFailed, err)
	}
	state.Current = current

	g.logger.Debug("allowance read",
		slog.String("token", token.Hex()),
		slog.String("owner", owner.Hex()),
		slog.String("current", current.String()),
		slog.String("required", required.String()),
	)
	return state, nil
}

// ApprovalIfNeeded checks the allowance and, when it falls short, returns
// the approve transaction that raises it to the required amount. A nil
// request means the purchase can go straight to the swap; calling again
// after the approval confirms yields nil, so the gate is idempotent.
func (g *Gate) ApprovalIfNeeded(ctx context.Context, chainName string, token, owner, spender common.Address, required *big.Int) (*domain.TxRequest, domain.AllowanceState, error) {
	state, err := g.Check(ctx, chainName, token, owner, spender, required)
	if err != nil {
		return nil, domain.AllowanceState{}, err
	}
	if !state.NeedsApproval() {
		return nil, state, nil
	}

	data, err := chain.ApproveCalldata(spender, required)
	if err != nil {
		return nil, domain.AllowanceState{}, err
	}

	return &domain.TxRequest{
		To:    token,
		Value: big.NewInt(0),
		Data:  data,
	}, state, nil
}
