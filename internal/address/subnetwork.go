package address

import (
	"encoding/binary"
	"fmt"
)

// Identifier is the 96-bit subnetwork identifier half of a Subnetwork,
// stored big-endian in the low 12 bytes of the 32-byte wire value.
type Identifier [12]byte

// Uint64 returns the identifier's low 64 bits. Symbiotic-style protocols
// only ever populate small identifiers in practice; the top 32 bits are
// dropped, and callers that need the full 96 bits read the array itself.
func (id Identifier) Uint64() uint64 {
	return binary.BigEndian.Uint64(id[4:])
}

// IdentifierFromUint64 builds an Identifier from a small integer value.
func IdentifierFromUint64(v uint64) Identifier {
	var id Identifier
	binary.BigEndian.PutUint64(id[4:], v)
	return id
}

// Subnetwork addresses one network slot: a network address paired with a
// 96-bit identifier.
type Subnetwork struct {
	Network    Address
	Identifier Identifier
}

// DecodeSubnetwork splits the 32-byte wire encoding of a subnetwork
// argument into its network (first 20 bytes) and identifier (last 12
// bytes).
func DecodeSubnetwork(raw [32]byte) (Subnetwork, error) {
	var sn Subnetwork
	copy(sn.Network[:], raw[:20])
	copy(sn.Identifier[:], raw[20:])
	return sn, nil
}

// Encode reassembles the 32-byte wire form.
func (s Subnetwork) Encode() [32]byte {
	var raw [32]byte
	copy(raw[:20], s.Network[:])
	copy(raw[20:], s.Identifier[:])
	return raw
}

// Key returns a stable string usable as a map key or store column encoding.
func (s Subnetwork) Key() string {
	return fmt.Sprintf("%x:%x", s.Network[:], s.Identifier[:])
}

func (s Subnetwork) String() string {
	return fmt.Sprintf("%s/%d", s.Network.Hex(), s.Identifier.Uint64())
}
