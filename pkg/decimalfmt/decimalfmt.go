// Package decimalfmt converts between a token's smallest on-chain unit
// (lamports, nanotons, wei) and the decimal money.Money values the trading
// core operates on. All arithmetic still happens on money.Money /
// shopspring/decimal; this package only exists at the edges where a venue
// or display surface needs a fixed-precision integer instead.
package decimalfmt

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/klingon-exchange/tradecore/internal/money"
)

// ToSmallestUnit converts a decimal amount to its integer smallest-unit
// representation at the given precision, truncating any finer fraction.
func ToSmallestUnit(m money.Money, decimals int32) int64 {
	scaled := m.Decimal().Shift(decimals)
	return scaled.Truncate(0).IntPart()
}

// FromSmallestUnit converts an integer smallest-unit amount back to a
// money.Money at the given precision.
func FromSmallestUnit(units int64, decimals int32) (money.Money, error) {
	return money.FromInt(units, decimals)
}

// Format renders m with exactly decimals fractional digits, for display
// surfaces that need fixed-width amounts (e.g. "1.50000000" for an 8-decimal
// token rather than money.Money's minimal "1.5").
func Format(m money.Money, decimals int32) string {
	return m.Decimal().StringFixed(decimals)
}

// ParseFixed parses a fixed-precision decimal string and validates it does
// not carry more fractional digits than the token supports.
func ParseFixed(s string, decimals int32) (money.Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return money.Money{}, fmt.Errorf("decimalfmt: invalid amount %q: %w", s, err)
	}
	if d.Exponent() < -decimals {
		return money.Money{}, fmt.Errorf("decimalfmt: %q has more than %d fractional digits", s, decimals)
	}
	return money.New(d)
}
