// Package ident derives the logical identity of a release artifact from its
// name.
//
// Identity is the SHA-256 of the name's raw bytes. No normalisation is
// applied at any point: case, path separators, trailing slashes and
// whitespace are all significant, so "a/b" and "A/b" are two different
// artifacts while two uploads named "a/b" collide regardless of content.
package ident

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"fmt"
)

// Ident is the identity of an artifact within a release.
type Ident [sha256.Size]byte

var _ interface {
	driver.Valuer
	fmt.Stringer
} = (*Ident)(nil)

// FromName returns the identity of an artifact named name.
//
// It is pure and total: any string, including the empty string, has a
// well-defined identity, and equal names always produce equal identities.
func FromName(name string) Ident {
	return Ident(sha256.Sum256([]byte(name)))
}

// Parse a hex-encoded identity.
func Parse(s string) (Ident, error) {
	var i Ident
	b, err := hex.DecodeString(s)
	if err != nil {
		return Ident{}, fmt.Errorf("invalid ident %q: %w", s, err)
	}
	if len(b) != sha256.Size {
		return Ident{}, fmt.Errorf("invalid ident %q: expected %d bytes, got %d", s, sha256.Size, len(b))
	}
	copy(i[:], b)
	return i, nil
}

// MustParse is like Parse but panics on error. For tests.
func MustParse(s string) Ident {
	i, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return i
}

func (i Ident) String() string { return hex.EncodeToString(i[:]) }

func (i Ident) GoString() string { return fmt.Sprintf("ident.MustParse(%q)", i.String()) }

func (i Ident) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

func (i *Ident) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

func (i Ident) Value() (driver.Value, error) { return i.String(), nil }

func (i *Ident) Scan(src any) error {
	switch src := src.(type) {
	case string:
		parsed, err := Parse(src)
		if err != nil {
			return err
		}
		*i = parsed
		return nil
	case []byte:
		return i.Scan(string(src))
	default:
		return fmt.Errorf("cannot scan %T into Ident", src)
	}
}
