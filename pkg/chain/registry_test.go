package chain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moonx-swap/pkg/types"
)

func TestRegistryLookup(t *testing.T) {
	reg, err := NewRegistry(DefaultConfigs()...)
	require.NoError(t, err)

	cfg, err := reg.Lookup(Base)
	require.NoError(t, err)
	assert.Equal(t, "Base", cfg.Name)
	assert.Equal(t, common.HexToAddress("0x4200000000000000000000000000000000000006"), cfg.WETH())
	assert.True(t, cfg.HasAMM())

	_, err = reg.Lookup(56)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUnknownChain)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(Config{ChainID: 1}, Config{ChainID: 1})
	require.Error(t, err)
}

func TestRegistryIsImmutable(t *testing.T) {
	tokens := map[string]common.Address{"weth": common.HexToAddress("0x01")}
	reg, err := NewRegistry(Config{ChainID: 7, Tokens: tokens})
	require.NoError(t, err)

	tokens["WETH"] = common.HexToAddress("0x02")

	cfg, err := reg.Lookup(7)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x01"), cfg.WETH())
}

func TestConfigHelpers(t *testing.T) {
	reg, err := NewRegistry(DefaultConfigs()...)
	require.NoError(t, err)
	cfg, err := reg.Lookup(Arbitrum)
	require.NoError(t, err)

	usdc, ok := cfg.TokenBySymbol("usdc")
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"), usdc)

	eth, ok := cfg.TokenBySymbol("ETH")
	require.True(t, ok)
	assert.True(t, cfg.IsWrappedNative(eth))
	assert.True(t, cfg.IsWrappedNative(cfg.WETH()))
	assert.False(t, cfg.IsWrappedNative(usdc))

	hash := common.HexToHash("0xabc")
	assert.Equal(t, "https://arbiscan.io/tx/"+hash.Hex(), cfg.TxURL(hash))
}

func TestParseChain(t *testing.T) {
	id, err := ParseChain("base")
	require.NoError(t, err)
	assert.Equal(t, Base, id)

	id, err = ParseChain("42161")
	require.NoError(t, err)
	assert.Equal(t, Arbitrum, id)

	_, err = ParseChain("solana")
	assert.ErrorIs(t, err, types.ErrUnknownChain)
}
