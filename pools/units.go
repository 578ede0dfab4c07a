package pools

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// ToFloat converts a raw ledger amount to human units.
func ToFloat(raw *big.Int, decimals uint8) float64 {
	if raw == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(raw, -int32(decimals)).Float64()
	return f
}

// FromFloat converts a human amount to raw ledger units, truncating toward zero.
func FromFloat(v float64, decimals uint8) (*big.Int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("cannot convert %g to token units", v)
	}
	return decimal.NewFromFloat(v).Shift(int32(decimals)).BigInt(), nil
}

// ParseUnits parses a human decimal string such as "1250.5" into raw units.
// Digits beyond the token precision are rejected.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatUnits renders raw units as a human decimal string.
func FormatUnits(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).String()
}
