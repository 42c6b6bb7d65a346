package gas

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moonx-swap/pkg/evmtest"
	mtypes "moonx-swap/pkg/types"
	"moonx-swap/pkg/wallet"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

type staticOracle FeeData

func (o staticOracle) FeeData(ctx context.Context) (FeeData, error) {
	return FeeData(o), nil
}

func rawSession(t *testing.T, backend *evmtest.Backend) wallet.Session {
	t.Helper()
	s, err := wallet.NewRawKeySession(context.Background(), backend, testKey, zerolog.Nop())
	require.NoError(t, err)
	return s
}

var tx = wallet.TxRequest{To: common.HexToAddress("0x0000000000000000000000000000000000000c01"), Data: []byte{0xde, 0xad}}

func TestResolveDoublesGasPrice(t *testing.T) {
	backend := evmtest.NewBackend(8453)
	backend.GasEstimate = 100_000
	backend.GasPrice = gwei(10)

	params, err := Policy{}.Resolve(context.Background(), rawSession(t, backend), tx)
	require.NoError(t, err)

	assert.Equal(t, uint64(300_000), params.GasLimit)
	assert.Equal(t, gwei(20), params.GasPrice)
	assert.Nil(t, params.MaxFeePerGas)
}

func TestResolveMinerSurcharge(t *testing.T) {
	backend := evmtest.NewBackend(8453)
	policy := Policy{
		ExtraGasForMiner:  true,
		AdditionalGasGwei: decimal.NewFromInt(1),
		Oracle: staticOracle{
			GasPrice:             gwei(3),
			MaxFeePerGas:         gwei(5),
			MaxPriorityFeePerGas: gwei(1),
		},
	}

	params, err := policy.Resolve(context.Background(), rawSession(t, backend), tx)
	require.NoError(t, err)

	assert.Equal(t, gwei(6), params.MaxFeePerGas)
	assert.Equal(t, gwei(2), params.MaxPriorityFeePerGas)
	assert.Nil(t, params.GasPrice)
}

func TestBackendFeeOracle(t *testing.T) {
	backend := evmtest.NewBackend(8453)
	backend.BaseFee = gwei(2)
	backend.TipCap = gwei(1)

	fees, err := BackendFeeOracle{Backend: backend}.FeeData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, gwei(5), fees.MaxFeePerGas)
	assert.Equal(t, gwei(1), fees.MaxPriorityFeePerGas)

	policy := Policy{ExtraGasForMiner: true, AdditionalGasGwei: decimal.RequireFromString("0.1")}
	params, err := policy.Resolve(context.Background(), rawSession(t, backend), tx)
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Add(gwei(5), big.NewInt(100_000_000)), params.MaxFeePerGas)
}

func TestResolveFallsBackToLegacyWithoutBaseFee(t *testing.T) {
	backend := evmtest.NewBackend(1)
	backend.BaseFee = nil
	backend.GasPrice = gwei(4)

	policy := Policy{ExtraGasForMiner: true, AdditionalGasGwei: decimal.NewFromInt(1)}
	params, err := policy.Resolve(context.Background(), rawSession(t, backend), tx)
	require.NoError(t, err)
	assert.Equal(t, gwei(8), params.GasPrice)
}

func TestResolveEstimationFailure(t *testing.T) {
	backend := evmtest.NewBackend(8453)
	backend.EstimateErr = evmtest.NewRevertError("Insufficient output amount")

	_, err := Policy{}.Resolve(context.Background(), rawSession(t, backend), tx)
	require.Error(t, err)
	assert.ErrorIs(t, err, mtypes.ErrFeeEstimationFailed)
	assert.NotErrorIs(t, err, mtypes.ErrTransactionReverted)
	assert.Equal(t, "Insufficient output amount", mtypes.Reason(err))
}

func TestResolveBrowserDefersToWallet(t *testing.T) {
	backend := evmtest.NewBackend(8453)
	w := evmtest.NewWallet(backend, common.HexToAddress("0x01"), 8453)
	s, err := wallet.NewBrowserSession(context.Background(), w, backend, zerolog.Nop())
	require.NoError(t, err)

	before := backend.Calls()
	params, err := Policy{}.Resolve(context.Background(), s, tx)
	require.NoError(t, err)
	assert.True(t, params.IsZero())
	assert.Equal(t, before, backend.Calls())
}

func TestResolveEstimatesFromSessionAddress(t *testing.T) {
	backend := evmtest.NewBackend(8453)
	s := rawSession(t, backend)

	_, err := Policy{}.Resolve(context.Background(), s, tx)
	require.NoError(t, err)

	estimates := backend.Estimates()
	require.Len(t, estimates, 1)
	assert.Equal(t, s.Address(), estimates[0].From)
	assert.Equal(t, tx.Data, estimates[0].Data)
}

func TestSurchargeWei(t *testing.T) {
	assert.Equal(t, big.NewInt(100_000_000), Policy{AdditionalGasGwei: decimal.RequireFromString("0.1")}.SurchargeWei())
	assert.Zero(t, Policy{}.SurchargeWei().Sign())
}
