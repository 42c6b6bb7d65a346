package chain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"moonx-swap/pkg/types"
)

// Well known chain IDs
const (
	Ethereum int64 = 1
	Optimism int64 = 10
	Base     int64 = 8453
	Arbitrum int64 = 42161
)

// Config holds the static parameters of a supported network
type Config struct {
	ChainID     int64
	Name        string
	RPCURL      string
	Tokens      map[string]common.Address
	ExplorerURL string
	AMMFactory  common.Address
	AMMQuoter   common.Address
}

// WETH returns the chain's wrapped native token
func (c Config) WETH() common.Address {
	return c.Tokens["WETH"]
}

// IsWrappedNative reports whether token is the native coin or its wrapped form
func (c Config) IsWrappedNative(token common.Address) bool {
	return token == types.NativeToken || token == c.WETH()
}

// HasAMM reports whether both AMM contracts are configured
func (c Config) HasAMM() bool {
	return c.AMMFactory != (common.Address{}) && c.AMMQuoter != (common.Address{})
}

// TxURL returns the explorer link for a transaction hash
func (c Config) TxURL(hash common.Hash) string {
	if c.ExplorerURL == "" {
		return hash.Hex()
	}
	return strings.TrimRight(c.ExplorerURL, "/") + "/tx/" + hash.Hex()
}

// TokenBySymbol resolves a well known token symbol (case-insensitive)
func (c Config) TokenBySymbol(symbol string) (common.Address, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "ETH" {
		return types.NativeToken, true
	}
	addr, ok := c.Tokens[symbol]
	return addr, ok
}

// Uniswap v3 deployments used by the best-pool venue
var (
	uniswapFactoryDefault = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
	uniswapQuoterDefault  = common.HexToAddress("0x61fFE014bA17989E743c5F6cB21bF9697530B21e")
	uniswapFactoryBase    = common.HexToAddress("0x33128a8fC17869897dcE68Ed026d694621f6FDfD")
	uniswapQuoterBase     = common.HexToAddress("0x3d4e44Eb1374240CE5F1B871ab261CD16335B76a")
)

// DefaultConfigs returns the built-in network table. RPC URLs are empty and
// expected to come from configuration.
func DefaultConfigs() []Config {
	return []Config{
		{
			ChainID:     Base,
			Name:        "Base",
			ExplorerURL: "https://basescan.org",
			Tokens: map[string]common.Address{
				"WETH": common.HexToAddress("0x4200000000000000000000000000000000000006"),
				"USDC": common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
				"USDT": common.HexToAddress("0xfde4C96c8593536E31F229EA8f37b2ADa2699bb2"),
			},
			AMMFactory: uniswapFactoryBase,
			AMMQuoter:  uniswapQuoterBase,
		},
		{
			ChainID:     Optimism,
			Name:        "Optimism",
			ExplorerURL: "https://optimistic.etherscan.io",
			Tokens: map[string]common.Address{
				"WETH": common.HexToAddress("0x4200000000000000000000000000000000000006"),
				"USDC": common.HexToAddress("0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85"),
				"USDT": common.HexToAddress("0x94b008aA00579c1307B0EF2c499aD98a8ce58e58"),
			},
			AMMFactory: uniswapFactoryDefault,
			AMMQuoter:  uniswapQuoterDefault,
		},
		{
			ChainID:     Arbitrum,
			Name:        "Arbitrum",
			ExplorerURL: "https://arbiscan.io",
			Tokens: map[string]common.Address{
				"WETH": common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"),
				"USDC": common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"),
				"USDT": common.HexToAddress("0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9"),
			},
			AMMFactory: uniswapFactoryDefault,
			AMMQuoter:  uniswapQuoterDefault,
		},
		{
			ChainID:     Ethereum,
			Name:        "Ethereum",
			ExplorerURL: "https://etherscan.io",
			Tokens: map[string]common.Address{
				"WETH": common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
				"USDC": common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
				"USDT": common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"),
			},
			AMMFactory: uniswapFactoryDefault,
			AMMQuoter:  uniswapQuoterDefault,
		},
	}
}

// Registry is an immutable lookup table of supported networks
type Registry struct {
	chains map[int64]Config
}

// NewRegistry builds a registry from configs. Duplicate chain IDs are rejected.
func NewRegistry(configs ...Config) (*Registry, error) {
	chains := make(map[int64]Config, len(configs))
	for _, cfg := range configs {
		if _, exists := chains[cfg.ChainID]; exists {
			return nil, fmt.Errorf("duplicate chain id %d", cfg.ChainID)
		}
		// Copy the token table so callers cannot mutate the registry
		tokens := make(map[string]common.Address, len(cfg.Tokens))
		for symbol, addr := range cfg.Tokens {
			tokens[strings.ToUpper(symbol)] = addr
		}
		cfg.Tokens = tokens
		chains[cfg.ChainID] = cfg
	}
	return &Registry{chains: chains}, nil
}

// Lookup returns the config for chainID or an UnknownChain error
func (r *Registry) Lookup(chainID int64) (Config, error) {
	cfg, ok := r.chains[chainID]
	if !ok {
		return Config{}, types.Errorf(types.KindUnknownChain, "chain %d is not supported", chainID)
	}
	return cfg, nil
}

// List returns all configs ordered by chain ID
func (r *Registry) List() []Config {
	out := make([]Config, 0, len(r.chains))
	for _, cfg := range r.chains {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// ParseChain resolves a chain name or numeric ID
func ParseChain(s string) (int64, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "base":
		return Base, nil
	case "optimism", "op":
		return Optimism, nil
	case "arbitrum", "arb":
		return Arbitrum, nil
	case "ethereum", "eth", "mainnet":
		return Ethereum, nil
	}
	var id int64
	if _, err := fmt.Sscanf(s, "%d", &id); err != nil {
		return 0, types.Errorf(types.KindUnknownChain, "unknown chain %q", s)
	}
	return id, nil
}
