package money

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a signed fixed-point amount with two fractional digits.
// The smallest representable increment is one cent (0.01).
type Money struct {
	d decimal.Decimal
}

var (
	ErrInvalidAmount = errors.New("invalid money amount")
	ErrTooPrecise    = errors.New("money amount has more than 2 decimal places")
)

// MinExpenseAmount is the smallest amount an expense may carry.
var MinExpenseAmount = FromCents(50)

var hundred = decimal.NewFromInt(100)

// Zero returns a zero amount.
func Zero() Money {
	return Money{}
}

// FromCents builds an amount from a whole number of cents.
func FromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -2)}
}

// FromDecimal builds an amount from a decimal, rejecting values with more
// than two fractional digits.
func FromDecimal(d decimal.Decimal) (Money, error) {
	if d.Exponent() < -2 && !d.Equal(d.Truncate(2)) {
		return Money{}, ErrTooPrecise
	}
	return Money{d: d}, nil
}

// FromString parses a decimal string such as "12.50".
func FromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromDecimal(d)
}

// MustParse is FromString that panics on error, for constants in tests.
func MustParse(s string) Money {
	m, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Cents returns the amount as a whole number of cents.
func (m Money) Cents() int64 {
	return m.d.Shift(2).IntPart()
}

// Decimal returns the underlying decimal value.
func (m Money) Decimal() decimal.Decimal {
	return m.d
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return Money{d: m.d.Add(other.d)}
}

// Sub returns m - other.
func (m Money) Sub(other Money) Money {
	return Money{d: m.d.Sub(other.d)}
}

// MulPercent returns m × pct / 100 rounded half-up to two decimal places.
func (m Money) MulPercent(pct decimal.Decimal) Money {
	return Money{d: m.d.Mul(pct).Div(hundred).Round(2)}
}

// SplitEven divides the amount into n shares of whole cents. It returns the
// truncated base share and the leftover cents (0..n-1) that the caller must
// assign so the shares sum back to the original amount.
func (m Money) SplitEven(n int) (base Money, leftoverCents int64) {
	if n <= 0 {
		return Zero(), 0
	}
	cents := m.Cents()
	return FromCents(cents / int64(n)), cents % int64(n)
}

// Cmp compares two amounts: -1 if m < other, 0 if equal, +1 if m > other.
func (m Money) Cmp(other Money) int {
	return m.d.Cmp(other.d)
}

// Equal reports whether two amounts are numerically equal.
func (m Money) Equal(other Money) bool {
	return m.d.Equal(other.d)
}

// LessThan reports whether m < other.
func (m Money) LessThan(other Money) bool {
	return m.d.Cmp(other.d) < 0
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.d.IsZero()
}

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool {
	return m.d.IsNegative()
}

// IsPositive reports whether the amount is above zero.
func (m Money) IsPositive() bool {
	return m.d.IsPositive()
}

// String renders the amount with exactly two decimal places.
func (m Money) String() string {
	return m.d.StringFixed(2)
}

// MarshalJSON renders the amount as a JSON string, e.g. "12.50".
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts both quoted and bare decimal representations.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := FromString(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value implements driver.Valuer, storing the amount as a numeric string.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan implements sql.Scanner for numeric, text and integer columns.
func (m *Money) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = Zero()
		return nil
	case []byte:
		parsed, err := FromString(string(v))
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	case string:
		parsed, err := FromString(v)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	case int64:
		*m = Money{d: decimal.NewFromInt(v)}
		return nil
	case float64:
		*m = Money{d: decimal.NewFromFloat(v).Round(2)}
		return nil
	default:
		return fmt.Errorf("%w: cannot scan %T", ErrInvalidAmount, src)
	}
}
