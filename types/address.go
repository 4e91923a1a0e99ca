package types

import "strings"

// Address identifies an account: a merchant, customer, executor, the engine
// itself, or a token contract. Addresses are compared case-insensitively for
// hex-encoded values, so they are normalized on construction.
type Address string

// NewAddress returns a normalized Address.
func NewAddress(s string) Address {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return Address("0x" + strings.ToLower(s[2:]))
	}
	return Address(s)
}

// IsZero reports whether the address is empty.
func (a Address) IsZero() bool { return a == "" }

// String implements fmt.Stringer.
func (a Address) String() string { return string(a) }
