package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TradeMode is the direction of a trade relative to the selected token
type TradeMode string

const (
	ModeBuy  TradeMode = "buy"  // Spend the source token to receive the selected token
	ModeSell TradeMode = "sell" // Spend the selected token to receive the source token
)

// Venue identifies the pricing and settlement strategy of a trade
type Venue string

const (
	VenueAggregator      Venue = "aggregator"       // Off-chain rate API, settled through the platform contract
	VenueConstantProduct Venue = "constant-product" // Best v3 pool across fee tiers, settled through MoonX
	VenueOrderBook       Venue = "order-book"       // Bonding-curve contract with built-in quote functions
)

// ParseVenue converts a user supplied venue name into a Venue
func ParseVenue(s string) (Venue, bool) {
	switch s {
	case string(VenueAggregator), "liquidfun":
		return VenueAggregator, true
	case string(VenueConstantProduct), "moonx":
		return VenueConstantProduct, true
	case string(VenueOrderBook), "wow":
		return VenueOrderBook, true
	}
	return "", false
}

// NativeToken is the placeholder address used for the chain's native coin
var NativeToken = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// TradeIntent is an immutable description of a trade the user wants to make.
// SourceToken is always the token the wallet spends and DestinationToken the
// token it receives. Amount is in smallest units of the source token, except
// for aggregator buys where it is the desired amount of the destination token.
type TradeIntent struct {
	Mode             TradeMode      `json:"mode"`
	ChainID          int64          `json:"chain_id"`
	SourceToken      common.Address `json:"source_token"`
	DestinationToken common.Address `json:"destination_token"`
	Amount           *big.Int       `json:"amount"`
	Slippage         int            `json:"slippage"`
	Venue            Venue          `json:"venue"`
}

// WithAmount returns a copy of the intent with a new amount
func (t TradeIntent) WithAmount(amount *big.Int) TradeIntent {
	if amount != nil {
		amount = new(big.Int).Set(amount)
	}
	t.Amount = amount
	return t
}

// WithSlippage returns a copy of the intent with a new slippage percentage
func (t TradeIntent) WithSlippage(slippage int) TradeIntent {
	t.Slippage = slippage
	return t
}

// WithMode returns a copy of the intent with a new trade direction
func (t TradeIntent) WithMode(mode TradeMode) TradeIntent {
	t.Mode = mode
	return t
}

// IsNative reports whether addr is the native coin placeholder
func IsNative(addr common.Address) bool {
	return addr == NativeToken
}

// SlippagePolicy names how a raw quote is turned into the bound sent on-chain
type SlippagePolicy string

const (
	// PolicyDirectional inflates buy quotes and deflates sell quotes
	PolicyDirectional SlippagePolicy = "directional"
	// PolicyRaw passes the raw quote through unchanged
	PolicyRaw SlippagePolicy = "raw"
	// PolicyMinOut always deflates the quote into a minimum output
	PolicyMinOut SlippagePolicy = "min-out"
)

// QuoteResult is a venue's answer to a TradeIntent
type QuoteResult struct {
	Venue          Venue          `json:"venue"`
	Policy         SlippagePolicy `json:"policy"`
	RawAmount      *big.Int       `json:"raw_amount"`
	ExpectedOutput *big.Int       `json:"expected_output"`
	Calldata       []byte         `json:"calldata,omitempty"`
	Pool           common.Address `json:"pool,omitempty"`
	FeeTier        uint32         `json:"fee_tier,omitempty"`
	Symbol         string         `json:"symbol"`
	Decimals       uint8          `json:"decimals"`
}

// PurchasedToken is an entry of the locally remembered token list
type PurchasedToken struct {
	Address common.Address `json:"address"`
	Symbol  string         `json:"symbol"`
}
