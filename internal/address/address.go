// Package address provides the 20-byte account identifier used throughout
// the indexer, along with the EIP-55 checksum formatting the HTTP API uses
// to canonicalize addresses.
package address

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Address is a 20-byte opaque identifier, compared bytewise.
type Address [20]byte

// Zero is the all-zero address used to tag mint/burn endpoints in Transfer
// logs.
var Zero Address

// Parse decodes a hex string (with or without a leading "0x") into an
// Address. It accepts any case and does not itself verify a checksum.
func Parse(s string) (Address, error) {
	var a Address
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("address: invalid hex %q: %w", s, err)
	}
	if len(b) != len(a) {
		return a, fmt.Errorf("address: want %d bytes, got %d", len(a), len(b))
	}
	copy(a[:], b)
	return a, nil
}

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool { return a == Zero }

// Bytes returns the address's raw bytes.
func (a Address) Bytes() []byte { return a[:] }

// Hex returns the address formatted with an EIP-55 mixed-case checksum.
func (a Address) Hex() string {
	unchecksummed := hex.EncodeToString(a[:])
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte(unchecksummed))
	hash := hasher.Sum(nil)

	out := make([]byte, len(unchecksummed))
	for i, c := range []byte(unchecksummed) {
		if c >= '0' && c <= '9' {
			out[i] = c
			continue
		}
		// c is a lowercase hex letter; nibble i of hash selects the case.
		nibble := hash[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if nibble >= 8 {
			out[i] = c - 32 // upper-case
		} else {
			out[i] = c
		}
	}
	return "0x" + string(out)
}

// String implements fmt.Stringer with the EIP-55 checksummed form.
func (a Address) String() string { return a.Hex() }

// Less gives Address a total order (bytewise).
func (a Address) Less(b Address) bool { return bytes.Compare(a[:], b[:]) < 0 }

// Compare returns -1, 0 or 1 comparing a to b bytewise.
func (a Address) Compare(b Address) int { return bytes.Compare(a[:], b[:]) }
