package releases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/alecthomas/types/optional"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jellydator/ttlcache/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/stockpile-io/stockpile/backend/releases/dal"
	"github.com/stockpile-io/stockpile/backend/releases/filestore"
	"github.com/stockpile-io/stockpile/internal/cors"
	"github.com/stockpile-io/stockpile/internal/httpserver"
	"github.com/stockpile-io/stockpile/internal/ident"
	"github.com/stockpile-io/stockpile/internal/log"
	"github.com/stockpile-io/stockpile/internal/model"
	"github.com/stockpile-io/stockpile/internal/slices"
)

type Config struct {
	Bind          *url.URL                 `help:"Socket to bind to." default:"http://127.0.0.1:8895" env:"STOCKPILE_BIND"`
	DSN           string                   `help:"Registry DSN, or \"memory\" to keep all state in process." default:"postgres://localhost:5432/stockpile?sslmode=disable&user=postgres&password=secret" env:"STOCKPILE_DSN"`
	ContentDir    string                   `help:"Directory to store artifact content in when no OCI registry is configured." default:"stockpile-content" env:"STOCKPILE_CONTENT_DIR"`
	Registry      filestore.RegistryConfig `embed:"" prefix:"registry-"`
	MaxUploadSize int64                    `help:"Maximum accepted upload size in bytes." default:"67108864" env:"STOCKPILE_MAX_UPLOAD_SIZE"`
	AllowOrigins  []*url.URL               `help:"Allow CORS requests from these origins." env:"STOCKPILE_ALLOW_ORIGIN"`
	AllowHeaders  []string                 `help:"Allow these headers in CORS requests. (Requires AllowOrigins)" env:"STOCKPILE_ALLOW_HEADERS"`
}

func (c *Config) SetDefaults() {
	if err := kong.ApplyDefaults(c); err != nil {
		panic(err)
	}
}

func (c *Config) Validate() error {
	if len(c.AllowHeaders) > 0 && len(c.AllowOrigins) == 0 {
		return fmt.Errorf("AllowOrigins must be set when AllowHeaders is used")
	}
	return nil
}

const (
	// Form parts are buffered in memory up to this size before spilling to
	// disk during multipart parsing.
	maxInMemoryMultipart = 8 * 1024 * 1024

	// Releases are never deleted, so positive lookups cannot go stale; the
	// TTL only bounds the cache size.
	releaseCacheTTL = 30 * time.Second

	errDetailFileExists  = "A file matching this name already exists for the given release"
	errDetailMissingFile = "Missing uploaded file"
)

// Start the artifact server. Blocks until the context is cancelled.
func Start(ctx context.Context, config Config) error {
	config.SetDefaults()
	logger := log.FromContext(ctx).Scope("releases")
	ctx = log.ContextWithLogger(ctx, logger)

	var registry dal.DAL
	if config.DSN == "memory" {
		logger.Warnf("Using the in-memory registry; state will not survive a restart")
		registry = dal.NewLocal()
	} else {
		pool, err := pgxpool.New(ctx, config.DSN)
		if err != nil {
			return fmt.Errorf("could not connect to database: %w", err)
		}
		defer pool.Close()
		registry = dal.NewPostgres(pool)
	}

	var store filestore.Store
	if config.Registry.Registry != "" {
		store = filestore.NewRegistryStore(config.Registry)
	} else {
		local, err := filestore.NewLocalStore(config.ContentDir)
		if err != nil {
			return fmt.Errorf("could not open content store: %w", err)
		}
		store = local
	}

	svc := New(registry, store, config)

	handler := otelhttp.NewHandler(svc.routes(), "stockpile.releases")
	if len(config.AllowOrigins) > 0 {
		handler = cors.Middleware(
			slices.Map(config.AllowOrigins, func(u *url.URL) string { return u.String() }),
			config.AllowHeaders,
			handler,
		)
	}

	logger.Infof("Artifact server listening on: %s", config.Bind)
	err := httpserver.Serve(ctx, config.Bind, handler)
	if err != nil {
		return fmt.Errorf("artifact server stopped: %w", err)
	}
	return nil
}

type Service struct {
	registry dal.DAL
	store    filestore.Store
	config   Config

	// Positive release lookups only. Upload traffic is heavily skewed
	// towards a handful of releases being assembled at any one time.
	releases *ttlcache.Cache[string, dal.Release]
}

func New(registry dal.DAL, store filestore.Store, config Config) *Service {
	config.SetDefaults()
	return &Service{
		registry: registry,
		store:    store,
		config:   config,
		releases: ttlcache.New[string, dal.Release](ttlcache.WithTTL[string, dal.Release](releaseCacheTTL)),
	}
}

func (s *Service) routes() http.Handler {
	router := http.NewServeMux()
	router.HandleFunc("POST /v1/organizations/{org}/releases", s.createRelease)
	router.HandleFunc("GET /v1/organizations/{org}/releases/{version}", s.getRelease)
	router.HandleFunc("POST /v1/organizations/{org}/releases/{version}/files", s.uploadArtifact)
	router.HandleFunc("GET /v1/organizations/{org}/releases/{version}/files", s.listArtifacts)
	router.HandleFunc("GET /v1/organizations/{org}/releases/{version}/files/{id}", s.getArtifact)
	router.HandleFunc("DELETE /v1/organizations/{org}/releases/{version}/files/{id}", s.deleteArtifact)
	router.HandleFunc("GET /v1/integrity", s.integrity)
	router.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return router
}

type createReleaseRequest struct {
	Version string `json:"version"`
}

func (s *Service) createRelease(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())
	var req createReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(logger, w, http.StatusBadRequest, "Request body must be JSON")
		return
	}
	if err := ValidateReleaseVersion(req.Version); err != nil {
		httpError(logger, w, err, "")
		return
	}
	release, created, err := s.registry.CreateRelease(r.Context(), r.PathValue("org"), req.Version)
	if err != nil {
		httpError(logger, w, err, "Release not found")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(logger, w, status, releaseToResponse(release))
}

func (s *Service) getRelease(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())
	release, err := s.registry.GetRelease(r.Context(), r.PathValue("org"), r.PathValue("version"))
	if err != nil {
		httpError(logger, w, err, "Release not found")
		return
	}
	writeJSON(logger, w, http.StatusOK, releaseToResponse(release))
}

func (s *Service) uploadArtifact(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())
	org, version := r.PathValue("org"), r.PathValue("version")

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadSize)
	if err := r.ParseMultipartForm(maxInMemoryMultipart); err != nil {
		metrics.UploadInvalid(r.Context(), org)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(logger, w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Request exceeds the maximum size of %d bytes", tooLarge.Limit))
			return
		}
		writeError(logger, w, http.StatusBadRequest, "Request must be multipart/form-data")
		return
	}

	// Header lines are validated before anything else so that a malformed
	// request is rejected without touching the content store, even when the
	// file part is also missing.
	pairs, err := parseHeaderLines(r.MultipartForm.Value["header"])
	if err != nil {
		metrics.UploadInvalid(r.Context(), org)
		httpError(logger, w, err, "")
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		metrics.UploadInvalid(r.Context(), org)
		writeError(logger, w, http.StatusBadRequest, errDetailMissingFile)
		return
	}
	defer file.Close()

	name := formValue(r.MultipartForm, "name")
	if err := ValidateArtifactName(name); err != nil {
		metrics.UploadInvalid(r.Context(), org)
		httpError(logger, w, err, "")
		return
	}

	if _, err := s.lookupRelease(r.Context(), org, version); err != nil {
		httpError(logger, w, err, "Release not found")
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	ref, err := s.store.Put(r.Context(), file, filestore.Metadata{
		Filename:    baseName(name),
		ContentType: contentType,
	})
	if err != nil {
		httpError(logger, w, err, "")
		return
	}

	artifact, err := s.registry.CreateArtifact(r.Context(), dal.Artifact{
		Org:         org,
		Version:     version,
		Name:        name,
		Ident:       ident.FromName(name),
		Blob:        ref.Key,
		Size:        ref.Size,
		SHA256:      ref.SHA256,
		ContentType: contentType,
		Headers:     mergeHeaders(contentType, pairs),
	})
	if err != nil {
		// The blob was minted for this registration alone, so nothing else
		// can reference it yet. Removal is best effort; a leftover blob
		// shows up in the integrity report.
		if derr := s.store.Delete(r.Context(), ref.Key); derr != nil {
			logger.Errorf(derr, "could not remove orphaned blob %s", ref.Key)
		}
		if errors.Is(err, dal.ErrConflict) {
			metrics.UploadConflicted(r.Context(), org, version)
		}
		httpError(logger, w, err, "Release not found")
		return
	}

	metrics.UploadSucceeded(r.Context(), org, version, ref.Size)
	logger.Debugf("Registered %s (%d bytes) on %s/%s", artifact.Name, artifact.Size, org, version)
	writeJSON(logger, w, http.StatusCreated, artifactToResponse(artifact))
}

func (s *Service) listArtifacts(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())
	query := optional.Zero(r.URL.Query().Get("query"))
	artifacts, err := s.registry.ListArtifacts(r.Context(), r.PathValue("org"), r.PathValue("version"), query)
	if err != nil {
		httpError(logger, w, err, "Release not found")
		return
	}
	writeJSON(logger, w, http.StatusOK, artifactsToResponse(artifacts))
}

func (s *Service) getArtifact(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())
	org, version := r.PathValue("org"), r.PathValue("version")
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(logger, w, http.StatusNotFound, "Artifact not found")
		return
	}
	artifact, err := s.registry.GetArtifact(r.Context(), org, version, id)
	if err != nil {
		httpError(logger, w, err, "Artifact not found")
		return
	}
	if r.URL.Query().Has("download") {
		s.downloadArtifact(w, r, artifact)
		return
	}
	writeJSON(logger, w, http.StatusOK, artifactToResponse(artifact))
}

func (s *Service) downloadArtifact(w http.ResponseWriter, r *http.Request, artifact dal.Artifact) {
	logger := log.FromContext(r.Context())
	reader, meta, err := s.store.Open(r.Context(), artifact.Blob)
	if err != nil {
		logger.Errorf(err, "could not open blob %s for artifact %d", artifact.Blob, artifact.ID)
		writeError(logger, w, http.StatusInternalServerError, "Internal server error")
		return
	}
	defer reader.Close()

	for name, value := range artifact.Headers {
		w.Header().Set(name, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	filename := meta.Filename
	if filename == "" {
		filename = baseName(artifact.Name)
	}
	if filename == "" {
		filename = artifact.Name
	}
	w.Header().Set("Content-Length", strconv.FormatInt(artifact.Size, 10))
	w.Header().Set("ETag", fmt.Sprintf("%q", artifact.SHA256))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		logger.Debugf("download of %s aborted: %v", artifact.Blob, err)
		return
	}
	metrics.DownloadServed(r.Context(), artifact.Org, artifact.Version)
}

func (s *Service) deleteArtifact(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(logger, w, http.StatusNotFound, "Artifact not found")
		return
	}
	artifact, err := s.registry.DeleteArtifact(r.Context(), r.PathValue("org"), r.PathValue("version"), id)
	if err != nil {
		httpError(logger, w, err, "Artifact not found")
		return
	}
	if err := s.store.Delete(r.Context(), artifact.Blob); err != nil {
		logger.Errorf(err, "could not remove blob %s of deleted artifact %d", artifact.Blob, artifact.ID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// integrity reports the difference between the blobs the registry references
// and the blobs the content store actually holds, in both directions.
func (s *Service) integrity(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())
	referenced, err := s.registry.AllBlobKeys(r.Context())
	if err != nil {
		httpError(logger, w, err, "")
		return
	}
	stored, err := s.store.List(r.Context())
	if err != nil {
		httpError(logger, w, err, "")
		return
	}
	want := mapset.NewSet(slices.Map(referenced, model.BlobKey.String)...)
	have := mapset.NewSet(slices.Map(stored, model.BlobKey.String)...)
	missing := mapset.Sorted(want.Difference(have))
	unreferenced := mapset.Sorted(have.Difference(want))
	writeJSON(logger, w, http.StatusOK, integrityResponse{
		MissingBlobs:      missing,
		UnreferencedBlobs: unreferenced,
	})
}

func (s *Service) lookupRelease(ctx context.Context, org, version string) (dal.Release, error) {
	key := org + "/" + version
	if item := s.releases.Get(key); item != nil {
		return item.Value(), nil
	}
	release, err := s.registry.GetRelease(ctx, org, version)
	if err != nil {
		return dal.Release{}, err
	}
	s.releases.Set(key, release, ttlcache.DefaultTTL)
	return release, nil
}

// httpError renders a domain error as a JSON error response. Unrecognised
// errors are logged and masked as a 500.
func httpError(logger *log.Logger, w http.ResponseWriter, err error, notFoundDetail string) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(logger, w, http.StatusBadRequest, verr.Detail)
	case errors.Is(err, dal.ErrConflict):
		writeError(logger, w, http.StatusConflict, errDetailFileExists)
	case errors.Is(err, dal.ErrNotFound):
		writeError(logger, w, http.StatusNotFound, notFoundDetail)
	default:
		logger.Errorf(err, "request failed")
		writeError(logger, w, http.StatusInternalServerError, "Internal server error")
	}
}

// formValue returns the first value for a multipart form field, without
// falling back to URL query parameters the way Request.FormValue does.
func formValue(form *multipart.Form, key string) string {
	values := form.Value[key]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// baseName returns everything after the final slash, mirroring how artifact
// names that look like URLs or paths are reduced to a plain filename.
func baseName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
