package quote

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"moonx-swap/pkg/chain"
	"moonx-swap/pkg/contracts"
	"moonx-swap/pkg/types"
)

// DefaultFeeTiers are the v3 fee tiers probed, in hundredths of a bip
var DefaultFeeTiers = []uint32{500, 3000, 10000}

// PoolQuote is the best pool found for a pair
type PoolQuote struct {
	Pool      common.Address
	FeeTier   uint32
	AmountOut *big.Int
}

// AmmBestPoolVenue probes every fee tier and keeps the best output
type AmmBestPoolVenue struct {
	caller ethereum.ContractCaller
	chain  chain.Config
	tokens *contracts.TokenReader
	logger zerolog.Logger
	Policy types.SlippagePolicy
	Tiers  []uint32
}

// NewAmmBestPoolVenue creates a best-pool venue for cfg
func NewAmmBestPoolVenue(caller ethereum.ContractCaller, cfg chain.Config, policy types.SlippagePolicy, logger zerolog.Logger) *AmmBestPoolVenue {
	return &AmmBestPoolVenue{
		caller: caller,
		chain:  cfg,
		tokens: contracts.NewTokenReader(caller),
		logger: logger.With().Str("venue", string(types.VenueConstantProduct)).Logger(),
		Policy: policy,
		Tiers:  DefaultFeeTiers,
	}
}

// Quote prices intent through the best pool. The native coin trades as WETH.
func (v *AmmBestPoolVenue) Quote(ctx context.Context, intent types.TradeIntent) (*types.QuoteResult, error) {
	if err := requireAmount(intent); err != nil {
		return nil, err
	}

	tokenIn := v.wrap(intent.SourceToken)
	tokenOut := v.wrap(intent.DestinationToken)

	var (
		best PoolQuote
		meta contracts.TokenMetadata
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		best, err = v.BestPool(gctx, tokenIn, tokenOut, intent.Amount)
		return err
	})
	g.Go(func() error {
		var err error
		meta, err = v.tokens.Metadata(gctx, intent.DestinationToken)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &types.QuoteResult{
		Venue:          types.VenueConstantProduct,
		Policy:         v.Policy,
		RawAmount:      best.AmountOut,
		ExpectedOutput: Adjust(v.Policy, intent.Mode, best.AmountOut, intent.Slippage),
		Pool:           best.Pool,
		FeeTier:        best.FeeTier,
		Symbol:         meta.Symbol,
		Decimals:       meta.Decimals,
	}, nil
}

func (v *AmmBestPoolVenue) wrap(token common.Address) common.Address {
	if types.IsNative(token) {
		return v.chain.WETH()
	}
	return token
}

// BestPool returns the fee tier with the highest output for amountIn.
// Tiers without a pool or whose quote reverts are skipped.
func (v *AmmBestPoolVenue) BestPool(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (PoolQuote, error) {
	if !v.chain.HasAMM() {
		return PoolQuote{}, types.Errorf(types.KindVenueUnavailable, "no AMM factory/quoter configured for chain %d", v.chain.ChainID)
	}

	results := make([]PoolQuote, len(v.Tiers))
	var g errgroup.Group
	for i, fee := range v.Tiers {
		i, fee := i, fee
		g.Go(func() error {
			q, err := v.probe(ctx, tokenIn, tokenOut, amountIn, fee)
			if err != nil {
				v.logger.Debug().Err(err).Uint32("fee", fee).Msg("fee tier unavailable")
				return nil
			}
			results[i] = q
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return PoolQuote{}, types.Classify(types.KindVenueUnavailable, err)
	}

	var best PoolQuote
	for _, q := range results {
		if q.Pool == (common.Address{}) || q.AmountOut == nil || q.AmountOut.Sign() <= 0 {
			continue
		}
		if best.AmountOut == nil || q.AmountOut.Cmp(best.AmountOut) > 0 {
			best = q
		}
	}
	if best.AmountOut == nil {
		return PoolQuote{}, types.Errorf(types.KindNoLiquidity, "no pool with liquidity for %s -> %s", tokenIn.Hex(), tokenOut.Hex())
	}

	v.logger.Debug().Str("pool", best.Pool.Hex()).Uint32("fee", best.FeeTier).Str("amount_out", best.AmountOut.String()).Msg("best pool selected")
	return best, nil
}

func (v *AmmBestPoolVenue) probe(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, fee uint32) (PoolQuote, error) {
	feeArg := new(big.Int).SetUint64(uint64(fee))

	values, err := contracts.Call(ctx, v.caller, contracts.Factory, v.chain.AMMFactory, "getPool", tokenIn, tokenOut, feeArg)
	if err != nil {
		return PoolQuote{}, err
	}
	pool, _ := values[0].(common.Address)
	if pool == (common.Address{}) {
		return PoolQuote{}, nil
	}

	params := contracts.QuoteExactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               feeArg,
		SqrtPriceLimitX96: big.NewInt(0),
	}
	amountOut, err := contracts.CallBig(ctx, v.caller, contracts.Quoter, v.chain.AMMQuoter, "quoteExactInputSingle", params)
	if err != nil {
		return PoolQuote{}, err
	}

	return PoolQuote{Pool: pool, FeeTier: fee, AmountOut: amountOut}, nil
}
