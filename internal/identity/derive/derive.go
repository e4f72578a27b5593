// Package derive computes identity identifiers and anchors.
//
// Both functions are pure and total: the same inputs always produce the same
// output, and there are no error paths. Uniqueness rests on SHA3-256 collision
// resistance, not on runtime validation. Distinct domain-separation prefixes
// keep the two derivations from ever colliding with each other.
package derive

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"

	"veris/pkg/domain"
)

const (
	identifierPrefix = "veris/identifier/v1"
	anchorPrefix     = "veris/anchor/v1"
)

// Identifier derives the primary key for an identity from a creation nonce and
// the creating account.
func Identifier(nonce uint64, creator domain.Address) domain.Identifier {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)

	h := sha3.New256()
	h.Write([]byte(identifierPrefix))
	h.Write(buf[:])
	h.Write(creator[:])

	var id domain.Identifier
	copy(id[:], h.Sum(nil))
	return id
}

// Anchor derives the secondary, name-based lookup key for an identity. The
// digest is truncated to the account address width so anchors live in the same
// value space as accounts and can double as lookup keys.
func Anchor(id domain.Identifier, name string) domain.Address {
	h := sha3.New256()
	h.Write([]byte(anchorPrefix))
	h.Write(id[:])
	h.Write([]byte(name))

	var a domain.Address
	copy(a[:], h.Sum(nil)[:domain.AddressLen])
	return a
}
