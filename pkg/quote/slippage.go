package quote

import (
	"fmt"
	"math/big"

	"moonx-swap/pkg/types"
)

const (
	MinSlippage = 0
	MaxSlippage = 200
)

var hundred = big.NewInt(100)

// ParsePolicy resolves a slippage policy name
func ParsePolicy(s string) (types.SlippagePolicy, error) {
	switch types.SlippagePolicy(s) {
	case types.PolicyDirectional, types.PolicyRaw, types.PolicyMinOut:
		return types.SlippagePolicy(s), nil
	}
	return "", fmt.Errorf("unknown slippage policy %q (want directional, raw or min-out)", s)
}

// Inflate returns amount * (100 + slippage) / 100
func Inflate(amount *big.Int, slippage int) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(int64(100+slippage)))
	return out.Quo(out, hundred)
}

// Deflate returns amount * (100 - slippage) / 100, floored at zero
func Deflate(amount *big.Int, slippage int) *big.Int {
	if slippage >= 100 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(100-slippage)))
	return out.Quo(out, hundred)
}

// Adjust applies policy to a raw quote for the given trade direction
func Adjust(policy types.SlippagePolicy, mode types.TradeMode, amount *big.Int, slippage int) *big.Int {
	if amount == nil {
		return nil
	}
	switch policy {
	case types.PolicyDirectional:
		if mode == types.ModeBuy {
			return Inflate(amount, slippage)
		}
		return Deflate(amount, slippage)
	case types.PolicyMinOut:
		return Deflate(amount, slippage)
	}
	return new(big.Int).Set(amount)
}
