// Package gas resolves explicit fee parameters for raw-key transactions.
package gas

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"moonx-swap/pkg/chain"
	mtypes "moonx-swap/pkg/types"
	"moonx-swap/pkg/wallet"
)

const (
	// LimitMultiplierPercent is applied to the simulated gas usage
	LimitMultiplierPercent = 300
	// PriceMultiplier is applied to the suggested legacy gas price
	PriceMultiplier = 2
)

var gweiInWei = decimal.New(1, 9)

// FeeData mirrors the network fee suggestions
type FeeData struct {
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// FeeOracle supplies network fee suggestions
type FeeOracle interface {
	FeeData(ctx context.Context) (FeeData, error)
}

// BackendFeeOracle derives fee data from an RPC backend. MaxFeePerGas is
// twice the latest base fee plus the suggested tip.
type BackendFeeOracle struct {
	Backend chain.Backend
}

// FeeData queries gas price, tip cap and the latest base fee
func (o BackendFeeOracle) FeeData(ctx context.Context) (FeeData, error) {
	gasPrice, err := o.Backend.SuggestGasPrice(ctx)
	if err != nil {
		return FeeData{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	data := FeeData{GasPrice: gasPrice}

	header, err := o.Backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return FeeData{}, fmt.Errorf("failed to get latest header: %w", err)
	}
	if header.BaseFee == nil {
		// Pre-London chain, legacy pricing only
		return data, nil
	}

	tip, err := o.Backend.SuggestGasTipCap(ctx)
	if err != nil {
		return FeeData{}, fmt.Errorf("failed to get tip cap: %w", err)
	}

	data.MaxPriorityFeePerGas = tip
	data.MaxFeePerGas = new(big.Int).Add(new(big.Int).Mul(header.BaseFee, big.NewInt(2)), tip)
	return data, nil
}

// Policy decides gas parameters per session mode
type Policy struct {
	// ExtraGasForMiner adds AdditionalGasGwei to both EIP-1559 caps instead
	// of doubling the legacy gas price
	ExtraGasForMiner  bool
	AdditionalGasGwei decimal.Decimal

	// Oracle overrides the backend derived fee data
	Oracle FeeOracle
	Logger zerolog.Logger
}

// SurchargeWei converts the configured gwei surcharge to wei, truncating
// anything below one wei
func (p Policy) SurchargeWei() *big.Int {
	return p.AdditionalGasGwei.Mul(gweiInWei).Truncate(0).BigInt()
}

// Resolve returns the gas parameters for sending tx through session.
// Browser sessions get the zero value so the wallet estimates.
func (p Policy) Resolve(ctx context.Context, session wallet.Session, tx wallet.TxRequest) (wallet.GasParams, error) {
	if session.Mode() == wallet.ModeBrowser {
		return wallet.GasParams{}, nil
	}

	backend := session.Backend()
	to := tx.To
	msg := ethereum.CallMsg{
		From:  session.Address(),
		To:    &to,
		Value: tx.Value,
		Data:  tx.Data,
	}

	// Simulate the call; a failure here means the trade itself would revert
	estimate, err := backend.EstimateGas(ctx, msg)
	if err != nil {
		err = wallet.WithRevertReason(err)
		return wallet.GasParams{}, mtypes.Classify(mtypes.KindFeeEstimationFailed, fmt.Errorf("gas estimation failed: %w", err))
	}

	params := wallet.GasParams{
		GasLimit: estimate * LimitMultiplierPercent / 100,
	}

	oracle := p.Oracle
	if oracle == nil {
		oracle = BackendFeeOracle{Backend: backend}
	}
	fees, err := oracle.FeeData(ctx)
	if err != nil {
		return wallet.GasParams{}, mtypes.Classify(mtypes.KindFeeEstimationFailed, err)
	}

	if p.ExtraGasForMiner && fees.MaxFeePerGas != nil && fees.MaxPriorityFeePerGas != nil {
		surcharge := p.SurchargeWei()
		params.MaxPriorityFeePerGas = new(big.Int).Add(fees.MaxPriorityFeePerGas, surcharge)
		params.MaxFeePerGas = new(big.Int).Add(fees.MaxFeePerGas, surcharge)
	} else {
		if fees.GasPrice == nil {
			return wallet.GasParams{}, mtypes.Errorf(mtypes.KindFeeEstimationFailed, "network returned no gas price")
		}
		params.GasPrice = new(big.Int).Mul(fees.GasPrice, big.NewInt(PriceMultiplier))
	}

	p.Logger.Debug().
		Uint64("estimate", estimate).
		Uint64("gas_limit", params.GasLimit).
		Stringer("gas_price", bigStringer{params.GasPrice}).
		Stringer("max_fee", bigStringer{params.MaxFeePerGas}).
		Stringer("max_priority_fee", bigStringer{params.MaxPriorityFeePerGas}).
		Msg("gas resolved")

	return params, nil
}

type bigStringer struct{ v *big.Int }

func (b bigStringer) String() string {
	if b.v == nil {
		return "-"
	}
	return b.v.String()
}
