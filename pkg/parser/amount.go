package parser

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseUnits converts a human amount like "1.5" into smallest units.
// More fractional digits than decimals is an error rather than a silent
// truncation.
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("amount is required")
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %s", amount)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount must not be negative")
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}

	return scaled.BigInt(), nil
}

// FormatUnits renders smallest units as a decimal string trimmed of
// trailing zeros
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// FormatUnitsFixed renders at most places fractional digits, rounding down
func FormatUnitsFixed(amount *big.Int, decimals uint8, places int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).Truncate(places).String()
}

// ParsePercent parses "50", "50%" or "12.5%" into a fraction of 100
func ParsePercent(s string) (decimal.Decimal, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid percentage: %s", s)
	}
	if d.LessThanOrEqual(decimal.Zero) || d.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("percentage must be in (0, 100]")
	}
	return d, nil
}

// PercentOf returns pct percent of balance, rounding down. 100 returns the
// balance itself so a full sell matches it exactly.
func PercentOf(balance *big.Int, pct decimal.Decimal) *big.Int {
	if pct.Equal(decimal.NewFromInt(100)) {
		return new(big.Int).Set(balance)
	}
	return decimal.NewFromBigInt(balance, 0).Mul(pct).Div(decimal.NewFromInt(100)).Truncate(0).BigInt()
}

// ParseSlippage parses a whole percentage in [0, 200]
func ParseSlippage(s string) (int, error) {
	d, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if err != nil || !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("slippage must be a whole percentage: %s", s)
	}
	v := int(d.IntPart())
	if v < 0 || v > 200 {
		return 0, fmt.Errorf("slippage must be between 0 and 200")
	}
	return v, nil
}
