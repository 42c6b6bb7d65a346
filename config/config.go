package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"moonx-swap/pkg/chain"
	"moonx-swap/pkg/client"
	"moonx-swap/pkg/quote"
	"moonx-swap/pkg/store"
	"moonx-swap/pkg/types"
	"moonx-swap/pkg/wallet"
)

// DefaultPlatformWallet receives aggregator settlement transactions
const DefaultPlatformWallet = "0x45C06f7aca34d031d799c446013aaa7A3E5F5D98"

// Config holds the application configuration
type Config struct {
	ChainID int64

	// Venues
	AggregatorURL  string
	AccessToken    string
	PlatformWallet common.Address
	MoonXAddress   common.Address
	WowAddress     common.Address
	Referrer       common.Address
	ReferralURL    string

	// Networks, keyed by chain ID
	RPC        map[int64]string
	AMMFactory map[int64]common.Address
	AMMQuoter  map[int64]common.Address

	// Trading
	Slippage          int
	SlippagePolicies  map[types.Venue]types.SlippagePolicy
	ExtraGasForMiner  bool
	AdditionalGasGwei decimal.Decimal
	// MaxRawKeyValue caps native value per raw-key transaction, in ETH. Zero disables it.
	MaxRawKeyValue decimal.Decimal

	// Wallet
	PrivateKey       string
	WalletRPC        string
	UseBrowserWallet bool

	StatePath      string
	LogLevel       string
	CallTimeout    time.Duration
	ConfirmTimeout time.Duration
	MetricsAddr    string
}

var globalConfig *Config

// defaultPolicies is the slippage policy each venue uses unless configured
var defaultPolicies = map[types.Venue]types.SlippagePolicy{
	types.VenueAggregator:      types.PolicyDirectional,
	types.VenueConstantProduct: types.PolicyRaw,
	types.VenueOrderBook:       types.PolicyRaw,
}

var defaultRPC = map[int64]string{
	chain.Base:     "https://mainnet.base.org",
	chain.Optimism: "https://mainnet.optimism.io",
	chain.Arbitrum: "https://arb1.arbitrum.io/rpc",
	chain.Ethereum: "https://ethereum-rpc.publicnode.com",
}

// chainKey is the config key suffix for a network, e.g. "base"
func chainKey(c chain.Config) string {
	return strings.ToLower(strings.ReplaceAll(c.Name, " ", "_"))
}

func policyKey(v types.Venue) string {
	return "slippage_policy_" + strings.ReplaceAll(string(v), "-", "_")
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()

	v.SetDefault("chain_id", chain.Base)
	v.SetDefault("aggregator_url", client.DefaultAggregatorURL)
	v.SetDefault("platform_wallet", DefaultPlatformWallet)
	v.SetDefault("slippage", 3)
	v.SetDefault("extra_gas_for_miner", true)
	v.SetDefault("additional_gas_gwei", "0.1")
	v.SetDefault("max_raw_key_value", "0")
	v.SetDefault("state_path", home+string(os.PathSeparator)+store.DefaultFileName)
	v.SetDefault("log_level", "info")
	v.SetDefault("call_timeout", 20*time.Second)
	v.SetDefault("confirm_timeout", 3*time.Minute)

	for _, c := range chain.DefaultConfigs() {
		v.SetDefault("rpc_"+chainKey(c), defaultRPC[c.ChainID])
	}
	for venue, policy := range defaultPolicies {
		v.SetDefault(policyKey(venue), string(policy))
	}
}

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetConfigName(".moonx-swap")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	// Set default values
	SetDefaults(viper.GetViper())

	// Read from environment variables
	viper.SetEnvPrefix("MOONX")
	viper.AutomaticEnv()

	// Read config file (optional)
	_ = viper.ReadInConfig()

	cfg, err := FromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

// FromViper builds a Config from the values held by v
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		ChainID:          v.GetInt64("chain_id"),
		AggregatorURL:    strings.TrimRight(v.GetString("aggregator_url"), "/"),
		AccessToken:      v.GetString("access_token"),
		ReferralURL:      strings.TrimRight(v.GetString("referral_url"), "/"),
		RPC:              make(map[int64]string),
		AMMFactory:       make(map[int64]common.Address),
		AMMQuoter:        make(map[int64]common.Address),
		Slippage:         v.GetInt("slippage"),
		SlippagePolicies: make(map[types.Venue]types.SlippagePolicy),
		ExtraGasForMiner: v.GetBool("extra_gas_for_miner"),
		PrivateKey:       strings.TrimSpace(v.GetString("private_key")),
		WalletRPC:        v.GetString("wallet_rpc"),
		UseBrowserWallet: v.GetBool("use_browser_wallet"),
		StatePath:        v.GetString("state_path"),
		LogLevel:         v.GetString("log_level"),
		CallTimeout:      v.GetDuration("call_timeout"),
		ConfirmTimeout:   v.GetDuration("confirm_timeout"),
		MetricsAddr:      v.GetString("metrics_addr"),
	}

	var err error
	addresses := []struct {
		key string
		dst *common.Address
	}{
		{"platform_wallet", &cfg.PlatformWallet},
		{"moonx_address", &cfg.MoonXAddress},
		{"wow_address", &cfg.WowAddress},
		{"referrer", &cfg.Referrer},
	}
	for _, a := range addresses {
		if *a.dst, err = parseAddress(a.key, v.GetString(a.key)); err != nil {
			return nil, err
		}
	}

	for _, c := range chain.DefaultConfigs() {
		name := chainKey(c)
		cfg.RPC[c.ChainID] = v.GetString("rpc_" + name)

		factory, err := parseAddress("amm_factory_"+name, v.GetString("amm_factory_"+name))
		if err != nil {
			return nil, err
		}
		if factory != (common.Address{}) {
			cfg.AMMFactory[c.ChainID] = factory
		}
		quoter, err := parseAddress("amm_quoter_"+name, v.GetString("amm_quoter_"+name))
		if err != nil {
			return nil, err
		}
		if quoter != (common.Address{}) {
			cfg.AMMQuoter[c.ChainID] = quoter
		}
	}

	for venue := range defaultPolicies {
		policy, err := quote.ParsePolicy(v.GetString(policyKey(venue)))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", policyKey(venue), err)
		}
		cfg.SlippagePolicies[venue] = policy
	}

	if cfg.AdditionalGasGwei, err = decimal.NewFromString(v.GetString("additional_gas_gwei")); err != nil {
		return nil, fmt.Errorf("invalid additional_gas_gwei: %w", err)
	}
	if cfg.MaxRawKeyValue, err = decimal.NewFromString(v.GetString("max_raw_key_value")); err != nil {
		return nil, fmt.Errorf("invalid max_raw_key_value: %w", err)
	}

	return cfg, nil
}

func parseAddress(key, s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid %s: %q is not an address", key, s)
	}
	return common.HexToAddress(s), nil
}

// Validate checks ranges and formats. It never echoes the private key.
func (c *Config) Validate() error {
	if c.Slippage < quote.MinSlippage || c.Slippage > quote.MaxSlippage {
		return fmt.Errorf("slippage must be between %d and %d", quote.MinSlippage, quote.MaxSlippage)
	}
	if c.PrivateKey != "" && !wallet.ValidPrivateKey(c.PrivateKey) {
		return fmt.Errorf("private key must be 64 hex characters, optionally prefixed with 0x")
	}
	if c.AdditionalGasGwei.IsNegative() {
		return fmt.Errorf("additional_gas_gwei must not be negative")
	}
	if c.MaxRawKeyValue.IsNegative() {
		return fmt.Errorf("max_raw_key_value must not be negative")
	}
	if c.CallTimeout <= 0 || c.ConfirmTimeout <= 0 {
		return fmt.Errorf("call_timeout and confirm_timeout must be positive")
	}
	if c.UseBrowserWallet && c.WalletRPC == "" {
		return fmt.Errorf("use_browser_wallet requires wallet_rpc")
	}
	if _, err := c.Registry(); err != nil {
		return err
	}
	return nil
}

// Registry builds the chain registry with configured RPC and AMM overrides
func (c *Config) Registry() (*chain.Registry, error) {
	configs := chain.DefaultConfigs()
	for i := range configs {
		id := configs[i].ChainID
		if url, ok := c.RPC[id]; ok {
			configs[i].RPCURL = url
		}
		if addr, ok := c.AMMFactory[id]; ok {
			configs[i].AMMFactory = addr
		}
		if addr, ok := c.AMMQuoter[id]; ok {
			configs[i].AMMQuoter = addr
		}
	}
	return chain.NewRegistry(configs...)
}

// PolicyFor returns the slippage policy configured for venue
func (c *Config) PolicyFor(venue types.Venue) types.SlippagePolicy {
	if p, ok := c.SlippagePolicies[venue]; ok {
		return p
	}
	return defaultPolicies[venue]
}

// MaxRawKeyValueWei returns the raw-key value cap in wei, or nil when disabled
func (c *Config) MaxRawKeyValueWei() *big.Int {
	if !c.MaxRawKeyValue.IsPositive() {
		return nil
	}
	return c.MaxRawKeyValue.Shift(18).Truncate(0).BigInt()
}

// HasWallet reports whether a signing wallet is configured
func (c *Config) HasWallet() bool {
	return c.PrivateKey != "" || c.UseBrowserWallet
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
