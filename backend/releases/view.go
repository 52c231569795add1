package releases

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/stockpile-io/stockpile/backend/releases/dal"
	"github.com/stockpile-io/stockpile/internal/log"
	"github.com/stockpile-io/stockpile/internal/slices"
)

// artifactResponse is the wire shape of an artifact. IDs are rendered as
// decimal strings for client compatibility.
type artifactResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Headers     map[string]string `json:"headers"`
	Size        int64             `json:"size"`
	SHA256      string            `json:"sha256"`
	DateCreated time.Time         `json:"dateCreated"`
}

func artifactToResponse(artifact dal.Artifact) artifactResponse {
	headers := artifact.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	return artifactResponse{
		ID:          strconv.FormatInt(artifact.ID, 10),
		Name:        artifact.Name,
		Headers:     headers,
		Size:        artifact.Size,
		SHA256:      artifact.SHA256,
		DateCreated: artifact.CreatedAt,
	}
}

func artifactsToResponse(artifacts []dal.Artifact) []artifactResponse {
	return slices.Map(artifacts, artifactToResponse)
}

type releaseResponse struct {
	Version       string    `json:"version"`
	ArtifactCount int64     `json:"artifactCount"`
	DateCreated   time.Time `json:"dateCreated"`
}

func releaseToResponse(release dal.Release) releaseResponse {
	return releaseResponse{
		Version:       release.Version,
		ArtifactCount: release.ArtifactCount,
		DateCreated:   release.CreatedAt,
	}
}

type integrityResponse struct {
	// MissingBlobs are referenced by an artifact but absent from the
	// content store. These indicate data loss.
	MissingBlobs []string `json:"missingBlobs"`
	// UnreferencedBlobs are stored but not referenced by any artifact,
	// typically left over from failed conflict cleanup.
	UnreferencedBlobs []string `json:"unreferencedBlobs"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(logger *log.Logger, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf(err, "failed to encode response")
	}
}

func writeError(logger *log.Logger, w http.ResponseWriter, status int, detail string) {
	if status >= http.StatusInternalServerError {
		logger.Warnf("request failed: %d %s", status, detail)
	} else {
		logger.Debugf("bad request: %d %s", status, detail)
	}
	writeJSON(logger, w, status, errorResponse{Detail: detail})
}
