package dal

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/alecthomas/types/optional"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockpile-io/stockpile/backend/releases/dal/internal/sql"
	"github.com/stockpile-io/stockpile/internal/model"
)

var _ DAL = (*Postgres)(nil)

// Postgres is the production DAL. Artifact uniqueness is enforced by a
// UNIQUE (release_id, ident) constraint, so concurrent registrations of the
// same name resolve to exactly one winner.
type Postgres struct {
	db sql.DBI
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{db: sql.NewDB(pool)}
}

func (p *Postgres) CreateRelease(ctx context.Context, org, version string) (Release, bool, error) {
	row, err := p.db.UpsertRelease(ctx, org, version)
	if err == nil {
		return releaseFromRow(row), true, nil
	}
	if !isNotFound(err) {
		return Release{}, false, fmt.Errorf("failed to create release %s/%s: %w", org, version, translatePGError(err))
	}
	// ON CONFLICT DO NOTHING returns no row when the release already
	// exists, so fetch it.
	existing, err := p.db.GetRelease(ctx, org, version)
	if err != nil {
		return Release{}, false, fmt.Errorf("failed to fetch existing release %s/%s: %w", org, version, translatePGError(err))
	}
	return releaseFromRow(existing), false, nil
}

func (p *Postgres) GetRelease(ctx context.Context, org, version string) (Release, error) {
	row, err := p.db.GetRelease(ctx, org, version)
	if err != nil {
		return Release{}, fmt.Errorf("release %s/%s: %w", org, version, translatePGError(err))
	}
	return releaseFromRow(row), nil
}

func (p *Postgres) CreateArtifact(ctx context.Context, artifact Artifact) (out Artifact, err error) {
	headers := artifact.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to encode artifact headers: %w", err)
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.CommitOrRollback(ctx, &err)

	release, err := tx.GetRelease(ctx, artifact.Org, artifact.Version)
	if err != nil {
		return Artifact{}, fmt.Errorf("release %s/%s: %w", artifact.Org, artifact.Version, translatePGError(err))
	}
	row, err := tx.CreateArtifact(ctx, sql.CreateArtifactParams{
		ReleaseID:   release.ID,
		Name:        artifact.Name,
		Ident:       artifact.Ident,
		BlobKey:     artifact.Blob,
		Size:        artifact.Size,
		Sha256:      artifact.SHA256,
		ContentType: artifact.ContentType,
		Headers:     headersJSON,
	})
	if err != nil {
		err = translatePGError(err)
		if errors.Is(err, ErrConflict) {
			return Artifact{}, fmt.Errorf("artifact %q: %w", artifact.Name, err)
		}
		return Artifact{}, fmt.Errorf("failed to register artifact %q: %w", artifact.Name, err)
	}
	if err := tx.IncrementReleaseArtifactCount(ctx, release.ID); err != nil {
		return Artifact{}, fmt.Errorf("failed to increment artifact count: %w", translatePGError(err))
	}
	return artifactFromRow(artifact.Org, artifact.Version, row)
}

func (p *Postgres) GetArtifact(ctx context.Context, org, version string, id int64) (Artifact, error) {
	release, err := p.db.GetRelease(ctx, org, version)
	if err != nil {
		return Artifact{}, fmt.Errorf("release %s/%s: %w", org, version, translatePGError(err))
	}
	row, err := p.db.GetArtifact(ctx, release.ID, id)
	if err != nil {
		return Artifact{}, fmt.Errorf("artifact %d: %w", id, translatePGError(err))
	}
	return artifactFromRow(org, version, row)
}

func (p *Postgres) ListArtifacts(ctx context.Context, org, version string, query optional.Option[string]) ([]Artifact, error) {
	release, err := p.db.GetRelease(ctx, org, version)
	if err != nil {
		return nil, fmt.Errorf("release %s/%s: %w", org, version, translatePGError(err))
	}
	var rows []sql.Artifact
	if q, ok := query.Get(); ok {
		rows, err = p.db.ListArtifactsFiltered(ctx, release.ID, q)
	} else {
		rows, err = p.db.ListArtifacts(ctx, release.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", translatePGError(err))
	}
	artifacts := make([]Artifact, 0, len(rows))
	for _, row := range rows {
		artifact, err := artifactFromRow(org, version, row)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

func (p *Postgres) DeleteArtifact(ctx context.Context, org, version string, id int64) (out Artifact, err error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.CommitOrRollback(ctx, &err)

	release, err := tx.GetRelease(ctx, org, version)
	if err != nil {
		return Artifact{}, fmt.Errorf("release %s/%s: %w", org, version, translatePGError(err))
	}
	row, err := tx.DeleteArtifact(ctx, release.ID, id)
	if err != nil {
		return Artifact{}, fmt.Errorf("artifact %d: %w", id, translatePGError(err))
	}
	if err := tx.DecrementReleaseArtifactCount(ctx, release.ID); err != nil {
		return Artifact{}, fmt.Errorf("failed to decrement artifact count: %w", translatePGError(err))
	}
	return artifactFromRow(org, version, row)
}

func (p *Postgres) AllBlobKeys(ctx context.Context) ([]model.BlobKey, error) {
	keys, err := p.db.ListAllBlobKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list blob keys: %w", translatePGError(err))
	}
	return keys, nil
}

func releaseFromRow(row sql.Release) Release {
	return Release{
		Org:           row.OrgSlug,
		Version:       row.Version,
		ArtifactCount: row.ArtifactCount,
		CreatedAt:     row.CreatedAt,
	}
}

func artifactFromRow(org, version string, row sql.Artifact) (Artifact, error) {
	headers := map[string]string{}
	if len(row.Headers) > 0 {
		if err := json.Unmarshal(row.Headers, &headers); err != nil {
			return Artifact{}, fmt.Errorf("corrupt headers for artifact %d: %w", row.ID, err)
		}
	}
	return Artifact{
		ID:          row.ID,
		Org:         org,
		Version:     version,
		Name:        row.Name,
		Ident:       row.Ident,
		Blob:        row.BlobKey,
		Size:        row.Size,
		SHA256:      row.Sha256,
		ContentType: row.ContentType,
		Headers:     headers,
		CreatedAt:   row.CreatedAt,
	}, nil
}

func translatePGError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.ForeignKeyViolation:
			return fmt.Errorf("%s: %w", strings.TrimSuffix(strings.TrimPrefix(pgErr.ConstraintName, pgErr.TableName+"_"), "_id_fkey"), ErrNotFound)
		case pgerrcode.UniqueViolation:
			return ErrConflict
		}
	} else if isNotFound(err) {
		return ErrNotFound
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, stdsql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}
