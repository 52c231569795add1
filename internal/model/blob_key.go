package model

import (
	"crypto/rand"
	"database/sql"
	"database/sql/driver"
	"encoding"
	"fmt"
	"strings"

	base36 "github.com/multiformats/go-base36"
)

// Overridable random source for testing.
var randRead = rand.Read

const (
	blobKeyKind        = "blob"
	blobKeyRandomBytes = 10
)

// BlobKey uniquely names a stored content blob, in the form
// blob-<base36 suffix>.
//
// Every stored blob gets a fresh key, so identical bytes stored twice occupy
// two blobs. A blob is owned by exactly one artifact.
type BlobKey struct {
	Suffix []byte
}

var _ interface {
	sql.Scanner
	driver.Valuer
	encoding.TextUnmarshaler
	encoding.TextMarshaler
} = (*BlobKey)(nil)

// NewBlobKey returns a new key with a random suffix.
func NewBlobKey() BlobKey {
	suffix := make([]byte, blobKeyRandomBytes)
	if _, err := randRead(suffix); err != nil {
		panic(fmt.Errorf("failed to generate blob key suffix: %w", err))
	}
	return BlobKey{Suffix: suffix}
}

// ParseBlobKey parses a key in the form blob-<suffix>.
func ParseBlobKey(input string) (BlobKey, error) {
	kind, encoded, ok := strings.Cut(input, "-")
	if !ok || kind != blobKeyKind {
		return BlobKey{}, fmt.Errorf("invalid blob key %q", input)
	}
	suffix, err := base36.DecodeString(encoded)
	if err != nil {
		return BlobKey{}, fmt.Errorf("invalid blob key suffix %q: %w", input, err)
	}
	if len(suffix) == 0 {
		return BlobKey{}, fmt.Errorf("invalid blob key %q: empty suffix", input)
	}
	return BlobKey{Suffix: suffix}, nil
}

func (k BlobKey) IsZero() bool { return len(k.Suffix) == 0 }

func (k BlobKey) String() string {
	return blobKeyKind + "-" + base36.EncodeToStringLc(k.Suffix)
}

func (k BlobKey) Value() (driver.Value, error) { return k.String(), nil }

func (k *BlobKey) Scan(src any) error {
	input, ok := src.(string)
	if !ok {
		return fmt.Errorf("expected blob key to be a string but it's a %T", src)
	}
	key, err := ParseBlobKey(input)
	if err != nil {
		return err
	}
	*k = key
	return nil
}

func (k BlobKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *BlobKey) UnmarshalText(bytes []byte) error {
	key, err := ParseBlobKey(string(bytes))
	if err != nil {
		return err
	}
	*k = key
	return nil
}
