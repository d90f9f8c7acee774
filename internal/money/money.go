// Package money provides the arbitrary-precision decimal type used for every
// price, amount, and balance in the core. No floating-point arithmetic is
// permitted on these paths; values serialize as strings at every boundary.
package money

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money wraps decimal.Decimal and rejects NaN and negative values at the
// edge, per the zero-tolerance-for-float rule engines are built against.
type Money struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Money{d: decimal.Zero}

// New constructs a Money from a decimal.Decimal, rejecting negatives.
func New(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return Money{}, fmt.Errorf("money: negative amount %s", d.String())
	}
	return Money{d: d}, nil
}

// MustNew panics on a negative amount; use only for compile-time-known
// literals in tests and fixtures.
func MustNew(d decimal.Decimal) Money {
	m, err := New(d)
	if err != nil {
		panic(err)
	}
	return m
}

// Parse parses a decimal string. Empty, malformed, or negative strings are
// rejected.
func Parse(s string) (Money, error) {
	if s == "" {
		return Money{}, fmt.Errorf("money: empty amount string")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("money: invalid amount %q: %w", s, err)
	}
	return New(d)
}

// FromInt builds a Money from a non-negative integer count of smallest units
// at the given decimal precision, e.g. FromInt(100000000, 8) == 1 BTC.
func FromInt(units int64, decimals int32) (Money, error) {
	if units < 0 {
		return Money{}, fmt.Errorf("money: negative units %d", units)
	}
	return New(decimal.New(units, -decimals))
}

func (m Money) Decimal() decimal.Decimal { return m.d }

func (m Money) String() string { return m.d.String() }

func (m Money) IsZero() bool { return m.d.IsZero() }

func (m Money) IsPositive() bool { return m.d.IsPositive() }

func (m Money) GreaterThan(o Money) bool { return m.d.GreaterThan(o.d) }

func (m Money) GreaterThanOrEqual(o Money) bool { return m.d.GreaterThanOrEqual(o.d) }

func (m Money) LessThan(o Money) bool { return m.d.LessThan(o.d) }

func (m Money) LessThanOrEqual(o Money) bool { return m.d.LessThanOrEqual(o.d) }

func (m Money) Equal(o Money) bool { return m.d.Equal(o.d) }

// Add returns m + o.
func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }

// Sub returns m - o, clamped to an error if the result would be negative.
func (m Money) Sub(o Money) (Money, error) {
	return New(m.d.Sub(o.d))
}

// Mul returns m * factor (factor may be any decimal, e.g. a slippage ratio).
func (m Money) Mul(factor decimal.Decimal) Money {
	return Money{d: m.d.Mul(factor)}
}

// BpsOff returns m reduced by bps basis points (10000 bps == 100%).
func (m Money) BpsOff(bps int64) Money {
	factor := decimal.New(10000-bps, -4)
	return Money{d: m.d.Mul(factor)}
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.d.String())
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Value implements driver.Valuer so Money can be stored as a SQLite TEXT column.
func (m Money) Value() (driver.Value, error) {
	return m.d.String(), nil
}

// Scan implements sql.Scanner.
func (m *Money) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		parsed, err := Parse(v)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	case []byte:
		return m.Scan(string(v))
	case nil:
		*m = Zero
		return nil
	default:
		return fmt.Errorf("money: cannot scan %T", src)
	}
}
