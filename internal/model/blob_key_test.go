package model

import (
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestBlobKeyRoundTrip(t *testing.T) {
	key := NewBlobKey()
	assert.True(t, strings.HasPrefix(key.String(), "blob-"))
	parsed, err := ParseBlobKey(key.String())
	assert.NoError(t, err)
	assert.Equal(t, key, parsed)
}

func TestBlobKeysAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		key := NewBlobKey().String()
		assert.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
	}
}

func TestParseBlobKeyRejectsJunk(t *testing.T) {
	for _, input := range []string{"", "blob", "blob-", "dpl-abc123", "Blob-abc123"} {
		_, err := ParseBlobKey(input)
		assert.Error(t, err, "expected %q to be rejected", input)
	}
}

func TestBlobKeyScan(t *testing.T) {
	key := NewBlobKey()
	var out BlobKey
	assert.NoError(t, out.Scan(key.String()))
	assert.Equal(t, key, out)
	assert.Error(t, out.Scan(1234))
}

func TestBlobKeyDeterministicSuffix(t *testing.T) {
	oldRandRead := randRead
	t.Cleanup(func() { randRead = oldRandRead })
	randRead = func(b []byte) (int, error) {
		for i := range b {
			b[i] = byte(i)
		}
		return len(b), nil
	}
	a := NewBlobKey()
	b := NewBlobKey()
	assert.Equal(t, a, b)
	assert.False(t, a.IsZero())
}
