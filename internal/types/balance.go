// Package types defines the monetary and identifier primitives shared by the
// veilmix ticket database.
package types

import (
	"errors"

	"github.com/holiman/uint256"
)

// ErrBalanceOverflow is returned when a checked balance operation would
// exceed the 256-bit range.
var ErrBalanceOverflow = errors.New("balance arithmetic overflow")

// BalanceLength is the width of the big-endian wire encoding in bytes.
const BalanceLength = 32

// Balance is a fixed-width 256-bit unsigned monetary amount.
//
// The big-endian encoding produced by Bytes is padded to BalanceLength so
// that lexicographic byte comparison agrees with numeric comparison.
type Balance struct {
	n uint256.Int
}

// ZeroBalance returns the zero amount.
func ZeroBalance() Balance {
	return Balance{}
}

// NewBalance returns a Balance holding the given value.
func NewBalance(v uint64) Balance {
	var b Balance
	b.n.SetUint64(v)
	return b
}

// BalanceFromBytes decodes a big-endian amount. Inputs longer than
// BalanceLength are rejected.
func BalanceFromBytes(data []byte) (Balance, error) {
	if len(data) > BalanceLength {
		return Balance{}, errors.New("balance encoding exceeds 32 bytes")
	}
	var b Balance
	b.n.SetBytes(data)
	return b, nil
}

// Add returns b + other, failing with ErrBalanceOverflow if the sum does not
// fit in 256 bits.
func (b Balance) Add(other Balance) (Balance, error) {
	var sum Balance
	if _, overflow := sum.n.AddOverflow(&b.n, &other.n); overflow {
		return Balance{}, ErrBalanceOverflow
	}
	return sum, nil
}

// Cmp compares two balances numerically: -1 if b < other, 0 if equal, 1 if greater.
func (b Balance) Cmp(other Balance) int {
	return b.n.Cmp(&other.n)
}

// Equal reports whether two balances hold the same amount.
func (b Balance) Equal(other Balance) bool {
	return b.n.Eq(&other.n)
}

// IsZero reports whether the balance is zero.
func (b Balance) IsZero() bool {
	return b.n.IsZero()
}

// Bytes returns the fixed-width big-endian encoding.
func (b Balance) Bytes() []byte {
	out := b.n.Bytes32()
	return out[:]
}

// Uint64 returns the amount truncated to 64 bits. Callers use it only for
// amounts known to fit.
func (b Balance) Uint64() uint64 {
	return b.n.Uint64()
}

// String renders the amount in decimal.
func (b Balance) String() string {
	return b.n.Dec()
}
