package allowance

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/guildxyz/tokenbuyer/internal/domain"
)

var (
	testToken   = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	testOwner   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testSpender = common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")
)

// fakeReader returns a canned allowance per (chain, token) call.
type fakeReader struct {
	allowance *big.Int
	err       error
	calls     int
}

func (f *fakeReader) Allowance(ctx context.Context, chainName string, token, owner, spender common.Address) (*big.Int, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return new(big.Int).Set(f.allowance), nil
}

func newTestGate(reader Reader) *Gate {
	return NewGate(reader, slog.New(slog.DiscardHandler))
}

func TestCheckNativeSkipsChain(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{allowance: big.NewInt(0)}
	gate := newTestGate(reader)

	state, err := gate.Check(context.Background(), "ethereum", domain.NativeCurrency, testOwner, testSpender, big.NewInt(100))
	require.NoError(t, err)
	require.False(t, state.NeedsApproval())
	require.Zero(t, reader.calls, "native sell currency must not trigger an RPC read")
}

func TestCheckWrapsReadFailure(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{err: errors.New("rpc timeout")}
	gate := newTestGate(reader)

	_, err := gate.Check(context.Background(), "ethereum", testToken, testOwner, testSpender, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrAllowanceReadFailed)
}

func TestApprovalIfNeeded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		current     int64
		required    int64
		wantRequest bool
	}{
		{name: "short allowance needs approval", current: 50, required: 100, wantRequest: true},
		{name: "zero allowance needs approval", current: 0, required: 1, wantRequest: true},
		{name: "exact allowance passes", current: 100, required: 100, wantRequest: false},
		{name: "excess allowance passes", current: 500, required: 100, wantRequest: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gate := newTestGate(&fakeReader{allowance: big.NewInt(tt.current)})
			tx, state, err := gate.ApprovalIfNeeded(context.Background(), "ethereum", testToken, testOwner, testSpender, big.NewInt(tt.required))
			require.NoError(t, err)
			require.Equal(t, tt.wantRequest, tx != nil)
			require.Equal(t, tt.wantRequest, state.NeedsApproval())

			if tx != nil {
				require.Equal(t, testToken, tx.To, "approve calls go to the token contract")
				require.Zero(t, tx.Value.Sign())
				require.NotEmpty(t, tx.Data)
			}
		})
	}
}

func TestApprovalIfNeededIdempotent(t *testing.T) {
	t.Parallel()

	// Simulate an approval confirming between two calls.
	reader := &fakeReader{allowance: big.NewInt(0)}
	gate := newTestGate(reader)

	tx, _, err := gate.ApprovalIfNeeded(context.Background(), "ethereum", testToken, testOwner, testSpender, big.NewInt(100))
	require.NoError(t, err)
	require.NotNil(t, tx)

	reader.allowance = big.NewInt(100)
	tx, _, err = gate.ApprovalIfNeeded(context.Background(), "ethereum", testToken, testOwner, testSpender, big.NewInt(100))
	require.NoError(t, err)
	require.Nil(t, tx)
}
