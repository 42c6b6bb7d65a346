package config

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moonx-swap/pkg/chain"
	"moonx-swap/pkg/types"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestDefaults(t *testing.T) {
	cfg, err := FromViper(newViper())
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, chain.Base, cfg.ChainID)
	assert.Equal(t, 3, cfg.Slippage)
	assert.True(t, cfg.ExtraGasForMiner)
	assert.Equal(t, "0.1", cfg.AdditionalGasGwei.String())
	assert.Equal(t, common.HexToAddress(DefaultPlatformWallet), cfg.PlatformWallet)
	assert.Nil(t, cfg.MaxRawKeyValueWei())
	assert.False(t, cfg.HasWallet())

	assert.Equal(t, types.PolicyDirectional, cfg.PolicyFor(types.VenueAggregator))
	assert.Equal(t, types.PolicyRaw, cfg.PolicyFor(types.VenueConstantProduct))
	assert.Equal(t, types.PolicyRaw, cfg.PolicyFor(types.VenueOrderBook))
}

func TestOverrides(t *testing.T) {
	v := newViper()
	v.Set("slippage", 10)
	v.Set("max_raw_key_value", "0.003")
	v.Set("rpc_base", "http://localhost:8545")
	v.Set("amm_quoter_base", "0x00000000000000000000000000000000000000aa")
	v.Set("slippage_policy_constant_product", "min-out")
	v.Set("moonx_address", "0x00000000000000000000000000000000000000bb")

	cfg, err := FromViper(v)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10, cfg.Slippage)
	assert.Equal(t, "3000000000000000", cfg.MaxRawKeyValueWei().String())
	assert.Equal(t, types.PolicyMinOut, cfg.PolicyFor(types.VenueConstantProduct))
	assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000bb"), cfg.MoonXAddress)

	registry, err := cfg.Registry()
	require.NoError(t, err)
	base, err := registry.Lookup(chain.Base)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8545", base.RPCURL)
	assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000aa"), base.AMMQuoter)
	assert.NotEqual(t, common.Address{}, base.AMMFactory)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
	}{
		{"slippage too high", "slippage", 201},
		{"negative slippage", "slippage", -1},
		{"short private key", "private_key", "0xabc"},
		{"browser without endpoint", "use_browser_wallet", true},
		{"negative surcharge", "additional_gas_gwei", "-1"},
		{"zero timeout", "call_timeout", "0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper()
			v.Set(tt.key, tt.value)
			cfg, err := FromViper(v)
			require.NoError(t, err)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateDoesNotEchoPrivateKey(t *testing.T) {
	v := newViper()
	secret := "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f36231" // one digit short
	v.Set("private_key", secret)
	cfg, err := FromViper(v)
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.NotContains(t, err.Error(), secret[2:])
}

func TestFromViperRejectsMalformedValues(t *testing.T) {
	for key, value := range map[string]string{
		"platform_wallet":            "not-an-address",
		"amm_factory_optimism":       "0x123",
		"slippage_policy_aggregator": "sideways",
		"additional_gas_gwei":        "lots",
	} {
		v := newViper()
		v.Set(key, value)
		_, err := FromViper(v)
		assert.Error(t, err, key)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MOONX_SLIPPAGE", "7")
	t.Setenv("MOONX_WOW_ADDRESS", "0x00000000000000000000000000000000000000cc")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Slippage)
	assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000cc"), cfg.WowAddress)
	assert.Same(t, cfg, Get())
}
