package approval

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moonx-swap/pkg/contracts"
	"moonx-swap/pkg/evmtest"
	"moonx-swap/pkg/gas"
	mtypes "moonx-swap/pkg/types"
	"moonx-swap/pkg/wallet"
)

var (
	tokenAddr = common.HexToAddress("0x0000000000000000000000000000000000000d01")
	spender   = common.HexToAddress("0x0000000000000000000000000000000000000d02")
	owner     = common.HexToAddress("0x0000000000000000000000000000000000000d03")
)

func setup(t *testing.T) (*evmtest.Backend, *evmtest.Token, *evmtest.Wallet, wallet.Session) {
	t.Helper()
	backend := evmtest.NewBackend(8453)
	tok := backend.AddToken(tokenAddr, "MOON", 18)
	w := evmtest.NewWallet(backend, owner, 8453)
	s, err := wallet.NewBrowserSession(context.Background(), w, backend, zerolog.Nop())
	require.NoError(t, err)
	s.PollInterval = time.Millisecond
	return backend, tok, w, s
}

func TestEnsureAllowanceIsIdempotent(t *testing.T) {
	backend, tok, _, session := setup(t)
	m := NewManager(gas.Policy{}, zerolog.Nop())
	ctx := context.Background()
	required := big.NewInt(1_000_000)

	sent, err := m.EnsureAllowance(ctx, tokenAddr, owner, spender, required, session)
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, sent)
	assert.Equal(t, 0, tok.Allowance(owner, spender).Cmp(required))

	sent, err = m.EnsureAllowance(ctx, tokenAddr, owner, spender, required, session)
	require.NoError(t, err)
	assert.Equal(t, common.Hash{}, sent)

	txs := backend.Sent()
	require.Len(t, txs, 1)
	assert.Equal(t, contracts.ERC20.Methods["approve"].ID, txs[0].Method())
}

func TestEnsureAllowanceApprovesExactAmount(t *testing.T) {
	backend, tok, _, session := setup(t)
	tok.SetAllowance(owner, spender, big.NewInt(10))
	m := NewManager(gas.Policy{}, zerolog.Nop())

	_, err := m.EnsureAllowance(context.Background(), tokenAddr, owner, spender, big.NewInt(500), session)
	require.NoError(t, err)

	txs := backend.Sent()
	require.Len(t, txs, 1)
	args, err := contracts.ERC20.Methods["approve"].Inputs.Unpack(txs[0].Data[4:])
	require.NoError(t, err)
	assert.Equal(t, spender, args[0])
	assert.Equal(t, 0, big.NewInt(500).Cmp(args[1].(*big.Int)))
}

func TestEnsureAllowanceRereadsEachCall(t *testing.T) {
	backend, tok, _, session := setup(t)
	m := NewManager(gas.Policy{}, zerolog.Nop())
	ctx := context.Background()

	_, err := m.EnsureAllowance(ctx, tokenAddr, owner, spender, big.NewInt(100), session)
	require.NoError(t, err)

	// Allowance spent elsewhere
	tok.SetAllowance(owner, spender, big.NewInt(0))

	sent, err := m.EnsureAllowance(ctx, tokenAddr, owner, spender, big.NewInt(100), session)
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, sent)
	assert.Len(t, backend.Sent(), 2)
}

func TestEnsureAllowanceRejected(t *testing.T) {
	backend, _, w, session := setup(t)
	w.RejectSends = true
	m := NewManager(gas.Policy{}, zerolog.Nop())

	_, err := m.EnsureAllowance(context.Background(), tokenAddr, owner, spender, big.NewInt(1), session)
	require.Error(t, err)
	assert.ErrorIs(t, err, mtypes.ErrApprovalRejected)
	assert.Empty(t, backend.Sent())
}

func TestEnsureAllowanceReverted(t *testing.T) {
	backend, _, _, session := setup(t)
	backend.Revert = func(evmtest.SentTx) bool { return true }
	m := NewManager(gas.Policy{}, zerolog.Nop())

	_, err := m.EnsureAllowance(context.Background(), tokenAddr, owner, spender, big.NewInt(1), session)
	require.Error(t, err)
	assert.ErrorIs(t, err, mtypes.ErrApprovalTransactionReverted)
}
