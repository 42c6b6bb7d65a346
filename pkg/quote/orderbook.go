package quote

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"moonx-swap/pkg/chain"
	"moonx-swap/pkg/contracts"
	"moonx-swap/pkg/types"
)

// MarketGraduated is the marketType value of a token trading on the AMM
const MarketGraduated uint8 = 1

// ConstantQuoterVenue prices bonding-curve tokens through their own quote
// views, or through the best AMM pool once the market has graduated.
type ConstantQuoterVenue struct {
	caller ethereum.ContractCaller
	chain  chain.Config
	tokens *contracts.TokenReader
	amm    *AmmBestPoolVenue
	logger zerolog.Logger
	Policy types.SlippagePolicy
}

// NewConstantQuoterVenue creates an order-book venue that delegates graduated
// markets to amm
func NewConstantQuoterVenue(caller ethereum.ContractCaller, cfg chain.Config, amm *AmmBestPoolVenue, policy types.SlippagePolicy, logger zerolog.Logger) *ConstantQuoterVenue {
	return &ConstantQuoterVenue{
		caller: caller,
		chain:  cfg,
		tokens: contracts.NewTokenReader(caller),
		amm:    amm,
		logger: logger.With().Str("venue", string(types.VenueOrderBook)).Logger(),
		Policy: policy,
	}
}

// MarketToken returns the bonding-curve token an intent trades
func MarketToken(intent types.TradeIntent) common.Address {
	if intent.Mode == types.ModeSell {
		return intent.SourceToken
	}
	return intent.DestinationToken
}

// Graduated reports whether token has moved to pooled liquidity
func (v *ConstantQuoterVenue) Graduated(ctx context.Context, token common.Address) (bool, error) {
	values, err := contracts.Call(ctx, v.caller, contracts.Wow, token, "marketType")
	if err != nil {
		return false, types.Classify(types.KindInvalidToken, fmt.Errorf("failed to read market type: %w", err))
	}
	marketType, _ := values[0].(uint8)
	return marketType == MarketGraduated, nil
}

// Quote prices a buy in ETH or a sell in tokens
func (v *ConstantQuoterVenue) Quote(ctx context.Context, intent types.TradeIntent) (*types.QuoteResult, error) {
	if err := requireAmount(intent); err != nil {
		return nil, err
	}

	token := MarketToken(intent)
	graduated, err := v.Graduated(ctx, token)
	if err != nil {
		return nil, err
	}

	var (
		raw  *big.Int
		pool common.Address
		fee  uint32
	)
	if graduated {
		tokenIn, tokenOut := v.chain.WETH(), token
		if intent.Mode == types.ModeSell {
			tokenIn, tokenOut = token, v.chain.WETH()
		}
		if v.amm == nil {
			return nil, types.Errorf(types.KindVenueUnavailable, "token %s has graduated but no AMM is configured", token.Hex())
		}
		best, err := v.amm.BestPool(ctx, tokenIn, tokenOut, intent.Amount)
		if err != nil {
			return nil, err
		}
		raw, pool, fee = best.AmountOut, best.Pool, best.FeeTier
	} else {
		method := "getEthBuyQuote"
		if intent.Mode == types.ModeSell {
			method = "getTokenSellQuote"
		}
		raw, err = contracts.CallBig(ctx, v.caller, contracts.Wow, token, method, intent.Amount)
		if err != nil {
			return nil, types.Classify(types.KindVenueUnavailable, err)
		}
		if raw.Sign() == 0 {
			return nil, types.Errorf(types.KindNoLiquidity, "bonding curve returned no output for %s", token.Hex())
		}
	}

	// Buys receive the token, sells receive ETH
	out := types.NativeToken
	if intent.Mode == types.ModeBuy {
		out = token
	}
	meta, err := v.tokens.Metadata(ctx, out)
	if err != nil {
		return nil, err
	}

	v.logger.Debug().Bool("graduated", graduated).Str("token", token.Hex()).Str("amount_out", raw.String()).Msg("quoted")

	return &types.QuoteResult{
		Venue:          types.VenueOrderBook,
		Policy:         v.Policy,
		RawAmount:      raw,
		ExpectedOutput: Adjust(v.Policy, intent.Mode, raw, intent.Slippage),
		Pool:           pool,
		FeeTier:        fee,
		Symbol:         meta.Symbol,
		Decimals:       meta.Decimals,
	}, nil
}
