package quote

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"moonx-swap/pkg/chain"
	"moonx-swap/pkg/client"
	"moonx-swap/pkg/contracts"
	"moonx-swap/pkg/types"
)

// RateSource is the rate API used by AggregatorVenue
type RateSource interface {
	GetRate(ctx context.Context, req client.RateRequest) (*client.Rate, error)
}

// AggregatorVenue prices trades through the off-chain rate API. Buys ask for
// the source amount needed to receive intent.Amount; sells ask for the
// destination amount received for intent.Amount. The rate API stands for ETH
// with the chain's WETH address.
type AggregatorVenue struct {
	Rates          RateSource
	Tokens         *contracts.TokenReader
	WETH           common.Address
	PlatformWallet common.Address
	Policy         types.SlippagePolicy
	// User is sent as userAddress when set
	User common.Address
}

// NewAggregatorVenue creates an aggregator venue reading token metadata through caller
func NewAggregatorVenue(rates RateSource, caller ethereum.ContractCaller, network chain.Config, platformWallet common.Address, policy types.SlippagePolicy) *AggregatorVenue {
	return &AggregatorVenue{
		Rates:          rates,
		Tokens:         contracts.NewTokenReader(caller),
		WETH:           network.WETH(),
		PlatformWallet: platformWallet,
		Policy:         policy,
	}
}

// Quote fetches a rate and applies the configured slippage policy. The
// expected output is the amount to pay for buys and to receive for sells.
func (v *AggregatorVenue) Quote(ctx context.Context, intent types.TradeIntent) (*types.QuoteResult, error) {
	if err := requireAmount(intent); err != nil {
		return nil, err
	}

	rate, err := v.Rates.GetRate(ctx, client.RateRequest{
		ChainID:        intent.ChainID,
		Src:            v.rateToken(intent.SourceToken),
		Dest:           v.rateToken(intent.DestinationToken),
		Amount:         intent.Amount,
		ExactOut:       intent.Mode == types.ModeBuy,
		PlatformWallet: v.PlatformWallet,
		UserAddress:    v.User,
	})
	if err != nil {
		return nil, err
	}

	// Buys are denominated in what we pay, sells in what we receive
	denom := intent.DestinationToken
	if intent.Mode == types.ModeBuy {
		denom = intent.SourceToken
	}
	meta, err := v.Tokens.Metadata(ctx, denom)
	if err != nil {
		return nil, err
	}

	return &types.QuoteResult{
		Venue:          types.VenueAggregator,
		Policy:         v.Policy,
		RawAmount:      rate.Amount,
		ExpectedOutput: Adjust(v.Policy, intent.Mode, rate.Amount, intent.Slippage),
		Calldata:       rate.Data,
		Symbol:         meta.Symbol,
		Decimals:       meta.Decimals,
	}, nil
}

func (v *AggregatorVenue) rateToken(token common.Address) common.Address {
	if types.IsNative(token) && v.WETH != (common.Address{}) {
		return v.WETH
	}
	return token
}
