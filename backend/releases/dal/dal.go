// Package dal provides the registry of releases and the artifacts uploaded
// against them.
//
// The registry is the sole authority on artifact identity: at most one
// artifact with a given ident may exist per release, enforced atomically
// under concurrent registration. Content is stored elsewhere; the registry
// only records the blob reference.
package dal

import (
	"context"
	"errors"
	"time"

	"github.com/alecthomas/types/optional"

	"github.com/stockpile-io/stockpile/internal/ident"
	"github.com/stockpile-io/stockpile/internal/model"
)

var (
	// ErrNotFound is returned when a release or artifact does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when registering an artifact whose ident is
	// already taken within the release.
	ErrConflict = errors.New("conflict")
)

// Release is a named release within an organization. Releases are created
// before artifacts are uploaded against them.
type Release struct {
	Org     string
	Version string
	// ArtifactCount is incremented exactly once for each successful
	// artifact registration, in the same transaction.
	ArtifactCount int64
	CreatedAt     time.Time
}

// Artifact is a file registered against a release.
type Artifact struct {
	ID      int64
	Org     string
	Version string
	// Name is the caller-supplied artifact name, stored verbatim.
	Name string
	// Ident is derived from Name and is unique within the release.
	Ident ident.Ident
	// Blob references the stored content.
	Blob        model.BlobKey
	Size        int64
	SHA256      string
	ContentType string
	Headers     map[string]string
	CreatedAt   time.Time
}

// DAL is the data access layer for the artifact registry.
type DAL interface {
	// CreateRelease creates the release if it does not exist. The second
	// return value reports whether it was created by this call.
	CreateRelease(ctx context.Context, org, version string) (Release, bool, error)
	GetRelease(ctx context.Context, org, version string) (Release, error)

	// CreateArtifact atomically checks that no artifact with the same ident
	// exists in the release and inserts one, incrementing the release's
	// artifact count in the same transaction. Returns ErrConflict if the
	// ident is taken and ErrNotFound if the release does not exist. The
	// input's ID and CreatedAt are assigned by the registry.
	CreateArtifact(ctx context.Context, artifact Artifact) (Artifact, error)
	GetArtifact(ctx context.Context, org, version string, id int64) (Artifact, error)
	// ListArtifacts returns the release's artifacts ordered by name then
	// ID. If query is set, only artifacts whose name contains it
	// (case-insensitively) are returned.
	ListArtifacts(ctx context.Context, org, version string, query optional.Option[string]) ([]Artifact, error)
	// DeleteArtifact removes an artifact, decrementing the release's
	// artifact count, and returns the removed artifact so the caller can
	// release its blob.
	DeleteArtifact(ctx context.Context, org, version string, id int64) (Artifact, error)

	// AllBlobKeys returns the blob key of every registered artifact.
	AllBlobKeys(ctx context.Context) ([]model.BlobKey, error)
}
