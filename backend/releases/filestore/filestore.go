// Package filestore stores the raw bytes of release artifacts.
//
// A store holds immutable blobs addressed by opaque keys. Keys are minted
// fresh on every Put, so the same bytes stored twice occupy two independent
// blobs; nothing in the store deduplicates content. Each blob is owned by
// exactly one artifact registration and is only removed when that
// registration is rolled back or deleted.
package filestore

import (
	"context"
	"errors"
	"io"

	"github.com/stockpile-io/stockpile/internal/model"
)

// ErrNotFound is returned when a blob does not exist in the store.
var ErrNotFound = errors.New("blob not found")

// Metadata recorded alongside a blob.
type Metadata struct {
	// Filename is the base name of the artifact, used for download
	// disposition. May be empty.
	Filename string `json:"filename,omitempty"`
	// ContentType is the declared MIME type of the upload. It is recorded
	// verbatim and never validated against the content.
	ContentType string `json:"content_type,omitempty"`
}

// Ref describes a stored blob.
type Ref struct {
	Key model.BlobKey `json:"key"`
	// Size of the blob in bytes.
	Size int64 `json:"size"`
	// SHA256 is the lowercase hex digest of the content, recorded for
	// integrity checks. It plays no part in blob identity.
	SHA256 string `json:"sha256"`
}

// Store is a content store for artifact blobs.
type Store interface {
	// Put stores the bytes read from r verbatim and returns a reference
	// with a newly minted key.
	Put(ctx context.Context, r io.Reader, md Metadata) (Ref, error)
	// Open streams a blob back. The caller must close the returned reader.
	Open(ctx context.Context, key model.BlobKey) (io.ReadCloser, Metadata, error)
	// Stat returns the reference and metadata of a blob without its bytes.
	Stat(ctx context.Context, key model.BlobKey) (Ref, Metadata, error)
	// Delete removes a blob. Deleting an absent blob is not an error.
	Delete(ctx context.Context, key model.BlobKey) error
	// List enumerates the keys of every stored blob.
	List(ctx context.Context) ([]model.BlobKey, error)
}
