package dal

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alecthomas/types/optional"
	"github.com/benbjohnson/clock"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/stockpile-io/stockpile/internal/ident"
	"github.com/stockpile-io/stockpile/internal/model"
)

var _ DAL = (*Local)(nil)

// Local is an in-memory DAL for development and testing.
type Local struct {
	clock    clock.Clock
	releases *xsync.MapOf[releaseKey, *localRelease]
	nextID   atomic.Int64
}

type releaseKey struct {
	org     string
	version string
}

type localRelease struct {
	// mu is held across the check-then-insert in CreateArtifact, so at
	// most one registration per ident can succeed.
	mu        sync.Mutex
	createdAt time.Time
	count     int64
	artifacts map[ident.Ident]Artifact
}

func NewLocal() *Local {
	return &Local{
		clock:    clock.New(),
		releases: xsync.NewMapOf[releaseKey, *localRelease](),
	}
}

func (l *Local) CreateRelease(ctx context.Context, org, version string) (Release, bool, error) {
	created := false
	release, _ := l.releases.LoadOrCompute(releaseKey{org, version}, func() *localRelease {
		created = true
		return &localRelease{
			createdAt: l.clock.Now().UTC(),
			artifacts: map[ident.Ident]Artifact{},
		}
	})
	release.mu.Lock()
	defer release.mu.Unlock()
	return Release{Org: org, Version: version, ArtifactCount: release.count, CreatedAt: release.createdAt}, created, nil
}

func (l *Local) GetRelease(ctx context.Context, org, version string) (Release, error) {
	release, ok := l.releases.Load(releaseKey{org, version})
	if !ok {
		return Release{}, fmt.Errorf("release %s/%s: %w", org, version, ErrNotFound)
	}
	release.mu.Lock()
	defer release.mu.Unlock()
	return Release{Org: org, Version: version, ArtifactCount: release.count, CreatedAt: release.createdAt}, nil
}

func (l *Local) CreateArtifact(ctx context.Context, artifact Artifact) (Artifact, error) {
	release, ok := l.releases.Load(releaseKey{artifact.Org, artifact.Version})
	if !ok {
		return Artifact{}, fmt.Errorf("release %s/%s: %w", artifact.Org, artifact.Version, ErrNotFound)
	}
	release.mu.Lock()
	defer release.mu.Unlock()
	if _, exists := release.artifacts[artifact.Ident]; exists {
		return Artifact{}, fmt.Errorf("artifact %q: %w", artifact.Name, ErrConflict)
	}
	artifact.ID = l.nextID.Add(1)
	artifact.CreatedAt = l.clock.Now().UTC()
	artifact.Headers = maps.Clone(artifact.Headers)
	release.artifacts[artifact.Ident] = artifact
	release.count++
	return artifact, nil
}

func (l *Local) GetArtifact(ctx context.Context, org, version string, id int64) (Artifact, error) {
	release, ok := l.releases.Load(releaseKey{org, version})
	if !ok {
		return Artifact{}, fmt.Errorf("release %s/%s: %w", org, version, ErrNotFound)
	}
	release.mu.Lock()
	defer release.mu.Unlock()
	for _, artifact := range release.artifacts {
		if artifact.ID == id {
			return artifact, nil
		}
	}
	return Artifact{}, fmt.Errorf("artifact %d: %w", id, ErrNotFound)
}

func (l *Local) ListArtifacts(ctx context.Context, org, version string, query optional.Option[string]) ([]Artifact, error) {
	release, ok := l.releases.Load(releaseKey{org, version})
	if !ok {
		return nil, fmt.Errorf("release %s/%s: %w", org, version, ErrNotFound)
	}
	release.mu.Lock()
	defer release.mu.Unlock()
	artifacts := make([]Artifact, 0, len(release.artifacts))
	for _, artifact := range release.artifacts {
		if q, ok := query.Get(); ok && !strings.Contains(strings.ToLower(artifact.Name), strings.ToLower(q)) {
			continue
		}
		artifacts = append(artifacts, artifact)
	}
	sort.Slice(artifacts, func(i, j int) bool {
		if artifacts[i].Name != artifacts[j].Name {
			return artifacts[i].Name < artifacts[j].Name
		}
		return artifacts[i].ID < artifacts[j].ID
	})
	return artifacts, nil
}

func (l *Local) DeleteArtifact(ctx context.Context, org, version string, id int64) (Artifact, error) {
	release, ok := l.releases.Load(releaseKey{org, version})
	if !ok {
		return Artifact{}, fmt.Errorf("release %s/%s: %w", org, version, ErrNotFound)
	}
	release.mu.Lock()
	defer release.mu.Unlock()
	for key, artifact := range release.artifacts {
		if artifact.ID == id {
			delete(release.artifacts, key)
			release.count--
			return artifact, nil
		}
	}
	return Artifact{}, fmt.Errorf("artifact %d: %w", id, ErrNotFound)
}

func (l *Local) AllBlobKeys(ctx context.Context) ([]model.BlobKey, error) {
	keys := []model.BlobKey{}
	l.releases.Range(func(_ releaseKey, release *localRelease) bool {
		release.mu.Lock()
		defer release.mu.Unlock()
		for _, artifact := range release.artifacts {
			keys = append(keys, artifact.Blob)
		}
		return true
	})
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}
