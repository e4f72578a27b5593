// Package domain defines the typed identifier kinds used across the registry.
//
// Using distinct fixed-width types for account addresses and identity
// identifiers prevents cross-kind assignment at compile time and keeps parsing
// rules in one place. All values render as 0x-prefixed lowercase hex.
package domain

import (
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"strings"

	dErrors "veris/pkg/domain-errors"
)

const (
	// AddressLen is the width of an account address in bytes. Anchors share
	// this width so they can double as lookup keys in the account value space.
	AddressLen = 20

	// IdentifierLen is the width of an identity identifier in bytes.
	IdentifierLen = 32
)

// Address is an account identifier. Anchors are Address-shaped values derived
// from an identifier and a name.
type Address [AddressLen]byte

// Identifier is the primary key of an identity, derived at creation time from
// a nonce and the creating account.
type Identifier [IdentifierLen]byte

// ParseAddress parses a 0x-prefixed hex account address.
// The zero address is rejected: it is the "none" sentinel, never a caller.
func ParseAddress(s string) (Address, error) {
	var a Address
	if err := parseHex(s, a[:], "address"); err != nil {
		return Address{}, err
	}
	if a.IsZero() {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "address must not be the zero value")
	}
	return a, nil
}

// ParseIdentifier parses a 0x-prefixed hex identity identifier.
func ParseIdentifier(s string) (Identifier, error) {
	var id Identifier
	if err := parseHex(s, id[:], "identifier"); err != nil {
		return Identifier{}, err
	}
	if id.IsZero() {
		return Identifier{}, dErrors.New(dErrors.CodeInvalidInput, "identifier must not be the zero value")
	}
	return id, nil
}

func parseHex(s string, dst []byte, kind string) error {
	if s == "" {
		return dErrors.Newf(dErrors.CodeInvalidInput, "%s is required", kind)
	}
	raw, ok := strings.CutPrefix(s, "0x")
	if !ok {
		return dErrors.Newf(dErrors.CodeInvalidInput, "%s must start with 0x", kind)
	}
	if len(raw) != hex.EncodedLen(len(dst)) {
		return dErrors.Newf(dErrors.CodeInvalidInput, "%s must be %d hex characters", kind, hex.EncodedLen(len(dst)))
	}
	if _, err := hex.Decode(dst, []byte(raw)); err != nil {
		return dErrors.Newf(dErrors.CodeInvalidInput, "%s is not valid hex", kind)
	}
	return nil
}

func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }

func (id Identifier) String() string { return "0x" + hex.EncodeToString(id[:]) }

// IsZero reports whether a is the none sentinel.
func (a Address) IsZero() bool { return a == Address{} }

// IsZero reports whether id is the zero value.
func (id Identifier) IsZero() bool { return id == Identifier{} }

// -----------------------------------------------------------------------------
// Text marshalling (JSON uses the text form)
// -----------------------------------------------------------------------------

func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(b []byte) error {
	// The zero address is accepted on the wire: request payloads use it as the
	// explicit "none" value (e.g. cancelling an owner proposal).
	if len(b) == 0 {
		*a = Address{}
		return nil
	}
	var v Address
	if err := parseHex(string(b), v[:], "address"); err != nil {
		return err
	}
	*a = v
	return nil
}

func (id Identifier) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *Identifier) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*id = Identifier{}
		return nil
	}
	var v Identifier
	if err := parseHex(string(b), v[:], "identifier"); err != nil {
		return err
	}
	*id = v
	return nil
}

// -----------------------------------------------------------------------------
// database/sql support (stored as raw bytes)
// -----------------------------------------------------------------------------

func (a Address) Value() (driver.Value, error) { return a[:], nil }

func (a *Address) Scan(src any) error {
	return scanFixed(src, a[:], "address")
}

func (id Identifier) Value() (driver.Value, error) { return id[:], nil }

func (id *Identifier) Scan(src any) error {
	return scanFixed(src, id[:], "identifier")
}

func scanFixed(src any, dst []byte, kind string) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into %s", src, kind)
	}
	if len(b) != len(dst) {
		return fmt.Errorf("scanned %s has %d bytes, want %d", kind, len(b), len(dst))
	}
	copy(dst, b)
	return nil
}
