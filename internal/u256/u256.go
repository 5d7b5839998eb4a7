// Package u256 wraps github.com/holiman/uint256 with the handful of
// floor-integer, multiply-before-divide helpers the reducer, resolver and
// points engine formulas all share. Every stored quantity is a non-negative
// integer up to 256 bits; this package never promotes to floating point.
package u256

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Int is the shared 256-bit unsigned integer type.
type Int = uint256.Int

// ErrNegative is returned when a subtraction would underflow below zero,
// which the reducer treats as a fatal data-integrity violation.
var ErrNegative = errors.New("u256: negative result")

// Zero returns a fresh zero-valued Int. uint256.Int is a value type; callers
// must not share pointers to a package-level zero.
func Zero() *Int { return new(Int) }

// FromUint64 builds an Int from a uint64.
func FromUint64(v uint64) *Int { return new(Int).SetUint64(v) }

// MustFromDecimal parses a base-10 string, panicking on malformed input.
// Intended for compile-time constants (e.g. 10^24 scale factors), not for
// parsing untrusted input.
func MustFromDecimal(s string) *Int {
	v, err := FromDecimal(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FromDecimal parses a base-10 string into an Int.
func FromDecimal(s string) (*Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("u256: decimal %q: %w", s, err)
	}
	return v, nil
}

// Add returns a+b as a new Int.
func Add(a, b *Int) *Int { return new(Int).Add(a, b) }

// Sub returns a-b, failing with ErrNegative if b > a.
func Sub(a, b *Int) (*Int, error) {
	if a.Lt(b) {
		return nil, fmt.Errorf("%w: %s - %s", ErrNegative, a, b)
	}
	return new(Int).Sub(a, b), nil
}

// Mul returns a*b, failing if the product exceeds 256 bits.
func Mul(a, b *Int) (*Int, error) {
	z, overflow := new(Int).MulOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("u256: %s*%s overflows 256 bits", a, b)
	}
	return z, nil
}

// Min returns the smaller of a and b.
func Min(a, b *Int) *Int {
	if a.Lt(b) {
		return new(Int).Set(a)
	}
	return new(Int).Set(b)
}

// Min3 returns the smallest of a, b and c.
func Min3(a, b, c *Int) *Int { return Min(Min(a, b), c) }

// MulDivFloor computes floor(a*b/c) without 256-bit overflow of the
// intermediate product. Multiplying before dividing keeps the floor
// division from discarding precision the caller still needs.
func MulDivFloor(a, b, c *Int) (*Int, error) {
	if c.IsZero() {
		return nil, fmt.Errorf("u256: division by zero")
	}
	z, overflow := new(Int).MulDivOverflow(a, b, c)
	if overflow {
		return nil, fmt.Errorf("u256: %s*%s/%s overflows 256 bits", a, b, c)
	}
	return z, nil
}

// IsZero reports whether v is nil or the zero value.
func IsZero(v *Int) bool { return v == nil || v.IsZero() }
