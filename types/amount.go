// Package types provides common types used across bpay.
package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// NativeDecimals is the number of decimal places of the native currency
// that funds executor rewards (wei per ether).
const NativeDecimals = 18

// Amount is an unsigned integer quantity in the smallest unit of a token or
// of the native currency. It is arbitrary precision: ERC20-style balances
// routinely exceed 64 bits.
//
// The zero value is a valid zero amount. Amount values are immutable; every
// arithmetic method returns a new value. Compare with Equal or Cmp, never ==.
//
// Examples:
//   - Units(100)               = 100 smallest units
//   - MustParseUnits("19.99", 18) = 19990000000000000000 (19.99 ether in wei)
type Amount struct {
	v *big.Int
}

// Zero returns a zero Amount.
func Zero() Amount { return Amount{} }

// Units creates an Amount from a count of smallest units.
func Units(n uint64) Amount {
	return Amount{v: new(big.Int).SetUint64(n)}
}

// FromBig creates an Amount from a big.Int. It returns an error for negative values.
func FromBig(b *big.Int) (Amount, error) {
	if b == nil {
		return Amount{}, nil
	}
	if b.Sign() < 0 {
		return Amount{}, fmt.Errorf("amount: negative value %s", b.String())
	}
	return Amount{v: new(big.Int).Set(b)}, nil
}

// ParseAmount parses a base-10 integer string of smallest units.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("amount: parse %q: empty string", s)
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("amount: parse %q: not a base-10 integer", s)
	}
	return FromBig(b)
}

// MustParseAmount is like ParseAmount but panics on error. Use for constants.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseUnits parses a decimal string expressed in whole units ("19.99") into
// smallest units using the given number of decimals.
func ParseUnits(s string, decimals int) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("amount: parse units %q: empty string", s)
	}
	if decimals < 0 {
		return Amount{}, fmt.Errorf("amount: parse units %q: negative decimals", s)
	}

	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > decimals {
		return Amount{}, fmt.Errorf("amount: parse units %q: more than %d decimals", s, decimals)
	}
	if whole == "" {
		whole = "0"
	}
	frac += strings.Repeat("0", decimals-len(frac))

	return ParseAmount(whole + frac)
}

// MustParseUnits is like ParseUnits but panics on error.
func MustParseUnits(s string, decimals int) Amount {
	a, err := ParseUnits(s, decimals)
	if err != nil {
		panic(err)
	}
	return a
}

// Native parses a whole-unit native currency string ("1", "0.5") into wei.
func Native(s string) Amount { return MustParseUnits(s, NativeDecimals) }

// Arithmetic operations

// Add returns a + other.
func (a Amount) Add(other Amount) Amount {
	return Amount{v: new(big.Int).Add(a.big(), other.big())}
}

// Sub returns a - other. Panics if the result would be negative.
func (a Amount) Sub(other Amount) Amount {
	r := new(big.Int).Sub(a.big(), other.big())
	if r.Sign() < 0 {
		panic(fmt.Sprintf("amount: underflow: %s - %s", a, other))
	}
	return Amount{v: r}
}

// Mul multiplies the Amount by a quantity.
func (a Amount) Mul(qty uint64) Amount {
	return Amount{v: new(big.Int).Mul(a.big(), new(big.Int).SetUint64(qty))}
}

// MulDiv returns a * num / den using integer division. Panics if den is zero.
func (a Amount) MulDiv(num, den uint64) Amount {
	if den == 0 {
		panic("amount: division by zero")
	}
	r := new(big.Int).Mul(a.big(), new(big.Int).SetUint64(num))
	return Amount{v: r.Quo(r, new(big.Int).SetUint64(den))}
}

// Comparison methods

// Cmp compares a and other and returns -1, 0 or +1.
func (a Amount) Cmp(other Amount) int { return a.big().Cmp(other.big()) }

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool { return a.v == nil || a.v.Sign() == 0 }

// IsPositive returns true if the amount is greater than zero.
func (a Amount) IsPositive() bool { return a.v != nil && a.v.Sign() > 0 }

// Equal returns true if both amounts are equal.
func (a Amount) Equal(other Amount) bool { return a.Cmp(other) == 0 }

// LessThan returns true if a < other.
func (a Amount) LessThan(other Amount) bool { return a.Cmp(other) < 0 }

// GreaterThan returns true if a > other.
func (a Amount) GreaterThan(other Amount) bool { return a.Cmp(other) > 0 }

// Min returns the smaller of two amounts.
func (a Amount) Min(other Amount) Amount {
	if a.Cmp(other) <= 0 {
		return a
	}
	return other
}

// Max returns the larger of two amounts.
func (a Amount) Max(other Amount) Amount {
	if a.Cmp(other) >= 0 {
		return a
	}
	return other
}

// Big returns a copy of the underlying integer.
func (a Amount) Big() *big.Int { return new(big.Int).Set(a.big()) }

// Formatting methods

// String returns the base-10 integer representation in smallest units.
func (a Amount) String() string { return a.big().String() }

// FormatUnits renders the amount in whole units with the given decimals,
// trimming trailing zeros: FormatUnits(18) of 1.5 ether is "1.5".
func (a Amount) FormatUnits(decimals int) string {
	s := a.big().String()
	if decimals <= 0 {
		return s
	}
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	whole, frac := s[:len(s)-decimals], strings.TrimRight(s[len(s)-decimals:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(data []byte) error {
	parsed, err := ParseAmount(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalJSON encodes the amount as a JSON string so that values above
// 2^53 survive JavaScript consumers.
func (a Amount) MarshalJSON() ([]byte, error) { return json.Marshal(a.String()) }

// UnmarshalJSON accepts both JSON strings and JSON numbers.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("amount: unmarshal %s: %w", data, err)
		}
		s = n.String()
	}
	return a.UnmarshalText([]byte(s))
}

// Value implements driver.Valuer. Amounts are stored as decimal strings.
func (a Amount) Value() (driver.Value, error) { return a.String(), nil }

// Scan implements sql.Scanner.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Amount{}
		return nil
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	case int64:
		if v < 0 {
			return fmt.Errorf("amount: cannot scan negative %d", v)
		}
		*a = Units(uint64(v))
		return nil
	default:
		return fmt.Errorf("amount: cannot scan %T into Amount", src)
	}
}

// Helper functions

var bigZero = new(big.Int)

func (a Amount) big() *big.Int {
	if a.v == nil {
		return bigZero
	}
	return a.v
}

// Sum calculates the sum of multiple amounts.
func Sum(values ...Amount) Amount {
	result := Zero()
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}
