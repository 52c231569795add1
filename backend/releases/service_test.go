package releases

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/stockpile-io/stockpile/backend/releases/dal"
	"github.com/stockpile-io/stockpile/backend/releases/filestore"
	"github.com/stockpile-io/stockpile/internal/log"
)

func newTestService(t *testing.T) (*Service, http.Handler, context.Context) {
	t.Helper()
	store, err := filestore.NewLocalStore(t.TempDir())
	assert.NoError(t, err)
	svc := New(dal.NewLocal(), store, Config{})
	return svc, svc.routes(), log.ContextWithNewDefaultLogger(context.Background())
}

func request(ctx context.Context, handler http.Handler, method, path, contentType string, body io.Reader) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, body).WithContext(ctx)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	handler.ServeHTTP(rec, req)
	return rec
}

type filePart struct {
	filename    string
	contentType string
	content     []byte
}

// multipartBody assembles an upload request body. Field order follows the
// order of the fields slice so that tests exercising validation order are
// deterministic.
func multipartBody(t *testing.T, fields [][2]string, file *filePart) (io.Reader, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for _, field := range fields {
		assert.NoError(t, w.WriteField(field[0], field[1]))
	}
	if file != nil {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.filename))
		if file.contentType != "" {
			header.Set("Content-Type", file.contentType)
		}
		part, err := w.CreatePart(header)
		assert.NoError(t, err)
		_, err = part.Write(file.content)
		assert.NoError(t, err)
	}
	assert.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func createTestRelease(t *testing.T, ctx context.Context, handler http.Handler, org, version string) {
	t.Helper()
	body := strings.NewReader(fmt.Sprintf(`{"version": %q}`, version))
	rec := request(ctx, handler, http.MethodPost, "/v1/organizations/"+org+"/releases", "application/json", body)
	assert.Equal(t, http.StatusCreated, rec.Code, "%s", rec.Body.Bytes())
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	_, handler, ctx := newTestService(t)
	rec := request(ctx, handler, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReleases(t *testing.T) {
	_, handler, ctx := newTestService(t)

	t.Run("Create", func(t *testing.T) {
		rec := request(ctx, handler, http.MethodPost, "/v1/organizations/acme/releases",
			"application/json", strings.NewReader(`{"version": "1.0.0"}`))
		assert.Equal(t, http.StatusCreated, rec.Code, "%s", rec.Body.Bytes())
		release := decodeJSON[releaseResponse](t, rec)
		assert.Equal(t, "1.0.0", release.Version)
		assert.Equal(t, 0, release.ArtifactCount)
	})

	t.Run("CreateAgainIsIdempotent", func(t *testing.T) {
		rec := request(ctx, handler, http.MethodPost, "/v1/organizations/acme/releases",
			"application/json", strings.NewReader(`{"version": "1.0.0"}`))
		assert.Equal(t, http.StatusOK, rec.Code, "%s", rec.Body.Bytes())
	})

	t.Run("InvalidVersion", func(t *testing.T) {
		for _, version := range []string{"", ".", "..", "latest", "a/b", " 1.0"} {
			rec := request(ctx, handler, http.MethodPost, "/v1/organizations/acme/releases",
				"application/json", strings.NewReader(fmt.Sprintf(`{"version": %q}`, version)))
			assert.Equal(t, http.StatusBadRequest, rec.Code, "version %q: %s", version, rec.Body.Bytes())
		}
	})

	t.Run("InvalidBody", func(t *testing.T) {
		rec := request(ctx, handler, http.MethodPost, "/v1/organizations/acme/releases",
			"application/json", strings.NewReader("not json"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Get", func(t *testing.T) {
		rec := request(ctx, handler, http.MethodGet, "/v1/organizations/acme/releases/1.0.0", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		release := decodeJSON[releaseResponse](t, rec)
		assert.Equal(t, "1.0.0", release.Version)
		assert.False(t, release.DateCreated.IsZero())
	})

	t.Run("GetMissing", func(t *testing.T) {
		rec := request(ctx, handler, http.MethodGet, "/v1/organizations/acme/releases/9.9.9", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("GetMissingOrg", func(t *testing.T) {
		rec := request(ctx, handler, http.MethodGet, "/v1/organizations/other/releases/1.0.0", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestUploadArtifact(t *testing.T) {
	_, handler, ctx := newTestService(t)
	createTestRelease(t, ctx, handler, "acme", "1.0.0")
	uploadURL := "/v1/organizations/acme/releases/1.0.0/files"

	content := []byte("function() { }")
	sum := fmt.Sprintf("%x", sha256.Sum256(content))

	upload := func(t *testing.T, fields [][2]string, file *filePart) *httptest.ResponseRecorder {
		t.Helper()
		body, contentType := multipartBody(t, fields, file)
		return request(ctx, handler, http.MethodPost, uploadURL, contentType, body)
	}

	t.Run("Simple", func(t *testing.T) {
		rec := upload(t, [][2]string{
			{"name", "http://example.com/application.js"},
			{"header", "X-SourceMap: http://example.com"},
		}, &filePart{filename: "application.js", contentType: "application/javascript", content: content})
		assert.Equal(t, http.StatusCreated, rec.Code, "%s", rec.Body.Bytes())

		artifact := decodeJSON[artifactResponse](t, rec)
		assert.NotZero(t, artifact.ID)
		assert.Equal(t, "http://example.com/application.js", artifact.Name)
		assert.Equal(t, int64(len(content)), artifact.Size)
		assert.Equal(t, sum, artifact.SHA256)
		assert.Equal(t, map[string]string{
			"Content-Type": "application/javascript",
			"X-SourceMap":  "http://example.com",
		}, artifact.Headers)
		assert.False(t, artifact.DateCreated.IsZero())
	})

	t.Run("CountIncremented", func(t *testing.T) {
		rec := request(ctx, handler, http.MethodGet, "/v1/organizations/acme/releases/1.0.0", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, decodeJSON[releaseResponse](t, rec).ArtifactCount)
	})

	t.Run("Duplicate", func(t *testing.T) {
		rec := upload(t, [][2]string{
			{"name", "http://example.com/application.js"},
			{"header", "X-SourceMap: http://example.com"},
		}, &filePart{filename: "application.js", contentType: "application/javascript", content: content})
		assert.Equal(t, http.StatusConflict, rec.Code, "%s", rec.Body.Bytes())
		assert.Equal(t, errDetailFileExists, decodeJSON[errorResponse](t, rec).Detail)

		rec = request(ctx, handler, http.MethodGet, "/v1/organizations/acme/releases/1.0.0", "", nil)
		assert.Equal(t, 1, decodeJSON[releaseResponse](t, rec).ArtifactCount)
	})

	t.Run("DifferentCaseIsDistinct", func(t *testing.T) {
		rec := upload(t, [][2]string{
			{"name", "http://example.com/Application.js"},
		}, &filePart{filename: "application.js", content: content})
		assert.Equal(t, http.StatusCreated, rec.Code, "%s", rec.Body.Bytes())
	})

	t.Run("MissingName", func(t *testing.T) {
		// The upload filename is not a substitute for the name field.
		rec := upload(t, nil, &filePart{filename: "bundle.js", content: content})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "%s", rec.Body.Bytes())
		assert.Equal(t, "File name must be specified", decodeJSON[errorResponse](t, rec).Detail)
	})

	t.Run("MissingFile", func(t *testing.T) {
		rec := upload(t, [][2]string{
			{"header", "X-SourceMap: http://example.com"},
		}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, errDetailMissingFile, decodeJSON[errorResponse](t, rec).Detail)
	})

	t.Run("EmptyFilename", func(t *testing.T) {
		// A part with an empty filename is not a file upload at all.
		rec := upload(t, nil, &filePart{filename: "", content: content})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("InvalidName", func(t *testing.T) {
		rec := upload(t, [][2]string{
			{"name", "http://exa\tmple.com/applic\nati\ron.js\n"},
		}, &filePart{filename: "application.js", content: content})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "File name must not contain special whitespace characters",
			decodeJSON[errorResponse](t, rec).Detail)
	})

	t.Run("ReservedName", func(t *testing.T) {
		rec := upload(t, [][2]string{{"name", "file"}}, &filePart{filename: "application.js", content: content})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "File name must be specified", decodeJSON[errorResponse](t, rec).Detail)
	})

	t.Run("BadHeader", func(t *testing.T) {
		rec := upload(t, [][2]string{
			{"name", "http://example.com/application.js"},
			{"header", "lol"},
		}, &filePart{filename: "application.js", content: content})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "header value was not formatted correctly", decodeJSON[errorResponse](t, rec).Detail)
	})

	t.Run("HeaderWithEmbeddedNewlines", func(t *testing.T) {
		rec := upload(t, [][2]string{
			{"name", "http://example.com/application.js"},
			{"header", "X-SourceMap: http://example.com/\r\n\ntest.map.js\n"},
		}, &filePart{filename: "application.js", content: content})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("BadHeaderBeatsMissingFile", func(t *testing.T) {
		rec := upload(t, [][2]string{{"header", "lol"}}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "header value was not formatted correctly", decodeJSON[errorResponse](t, rec).Detail)
	})

	t.Run("HeaderOverridesContentType", func(t *testing.T) {
		rec := upload(t, [][2]string{
			{"name", "styles.css"},
			{"header", "Content-Type: text/css"},
		}, &filePart{filename: "styles.css", contentType: "application/octet-stream", content: []byte("body {}")})
		assert.Equal(t, http.StatusCreated, rec.Code, "%s", rec.Body.Bytes())
		artifact := decodeJSON[artifactResponse](t, rec)
		assert.Equal(t, "text/css", artifact.Headers["Content-Type"])
	})

	t.Run("MissingRelease", func(t *testing.T) {
		body, contentType := multipartBody(t, [][2]string{
			{"name", "application.js"},
		}, &filePart{filename: "application.js", content: content})
		rec := request(ctx, handler, http.MethodPost, "/v1/organizations/acme/releases/9.9.9/files", contentType, body)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("NotMultipart", func(t *testing.T) {
		rec := request(ctx, handler, http.MethodPost, uploadURL, "application/json", strings.NewReader("{}"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestUploadTooLarge(t *testing.T) {
	store, err := filestore.NewLocalStore(t.TempDir())
	assert.NoError(t, err)
	svc := New(dal.NewLocal(), store, Config{MaxUploadSize: 512})
	handler := svc.routes()
	ctx := log.ContextWithNewDefaultLogger(context.Background())
	createTestRelease(t, ctx, handler, "acme", "1.0.0")

	body, contentType := multipartBody(t, [][2]string{
		{"name", "big.bin"},
	}, &filePart{filename: "big.bin", content: bytes.Repeat([]byte("x"), 4096)})
	rec := request(ctx, handler, http.MethodPost, "/v1/organizations/acme/releases/1.0.0/files", contentType, body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, "%s", rec.Body.Bytes())
}

func TestArtifacts(t *testing.T) {
	svc, handler, ctx := newTestService(t)
	createTestRelease(t, ctx, handler, "acme", "1.0.0")
	filesURL := "/v1/organizations/acme/releases/1.0.0/files"

	upload := func(t *testing.T, name, contentType, header string, content []byte) artifactResponse {
		t.Helper()
		fields := [][2]string{{"name", name}}
		if header != "" {
			fields = append(fields, [2]string{"header", header})
		}
		body, formContentType := multipartBody(t, fields,
			&filePart{filename: baseName(name), contentType: contentType, content: content})
		rec := request(ctx, handler, http.MethodPost, filesURL, formContentType, body)
		assert.Equal(t, http.StatusCreated, rec.Code, "%s", rec.Body.Bytes())
		return decodeJSON[artifactResponse](t, rec)
	}

	appJS := upload(t, "http://example.com/application.js", "application/javascript",
		"X-SourceMap: http://example.com/application.js.map", []byte("function() { }"))
	sourceMap := upload(t, "http://example.com/application.js.map", "application/json", "", []byte("{}"))

	t.Run("List", func(t *testing.T) {
		rec := request(ctx, handler, http.MethodGet, filesURL, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		artifacts := decodeJSON[[]artifactResponse](t, rec)
		assert.Equal(t, 2, len(artifacts))
		assert.Equal(t, "http://example.com/application.js", artifacts[0].Name)
		assert.Equal(t, "http://example.com/application.js.map", artifacts[1].Name)
	})

	t.Run("ListFiltered", func(t *testing.T) {
		rec := request(ctx, handler, http.MethodGet, filesURL+"?query=JS.MAP", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		artifacts := decodeJSON[[]artifactResponse](t, rec)
		assert.Equal(t, 1, len(artifacts))
		assert.Equal(t, sourceMap.ID, artifacts[0].ID)
	})

	t.Run("ListMissingRelease", func(t *testing.T) {
		rec := request(ctx, handler, http.MethodGet, "/v1/organizations/acme/releases/9.9.9/files", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Get", func(t *testing.T) {
		rec := request(ctx, handler, http.MethodGet, filesURL+"/"+appJS.ID, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		artifact := decodeJSON[artifactResponse](t, rec)
		assert.Equal(t, appJS.Name, artifact.Name)
		assert.Equal(t, appJS.SHA256, artifact.SHA256)
	})

	t.Run("GetMissing", func(t *testing.T) {
		rec := request(ctx, handler, http.MethodGet, filesURL+"/999999", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("GetMalformedID", func(t *testing.T) {
		rec := request(ctx, handler, http.MethodGet, filesURL+"/nope", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Download", func(t *testing.T) {
		rec := request(ctx, handler, http.MethodGet, filesURL+"/"+appJS.ID+"?download=1", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "function() { }", rec.Body.String())
		assert.Equal(t, "application/javascript", rec.Header().Get("Content-Type"))
		assert.Equal(t, "http://example.com/application.js.map", rec.Header().Get("X-SourceMap"))
		assert.Equal(t, fmt.Sprintf("%q", appJS.SHA256), rec.Header().Get("ETag"))
		assert.Equal(t, `attachment; filename="application.js"`, rec.Header().Get("Content-Disposition"))
		assert.Equal(t, "14", rec.Header().Get("Content-Length"))
	})

	t.Run("Delete", func(t *testing.T) {
		rec := request(ctx, handler, http.MethodDelete, filesURL+"/"+sourceMap.ID, "", nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = request(ctx, handler, http.MethodGet, filesURL+"/"+sourceMap.ID, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = request(ctx, handler, http.MethodDelete, filesURL+"/"+sourceMap.ID, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = request(ctx, handler, http.MethodGet, "/v1/organizations/acme/releases/1.0.0", "", nil)
		assert.Equal(t, 1, decodeJSON[releaseResponse](t, rec).ArtifactCount)
	})

	t.Run("DeleteRemovesBlob", func(t *testing.T) {
		keys, err := svc.store.List(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 1, len(keys))
	})
}

func TestIntegrity(t *testing.T) {
	svc, handler, ctx := newTestService(t)
	createTestRelease(t, ctx, handler, "acme", "1.0.0")

	body, contentType := multipartBody(t, [][2]string{
		{"name", "a.js"},
	}, &filePart{filename: "a.js", content: []byte("aaa")})
	rec := request(ctx, handler, http.MethodPost, "/v1/organizations/acme/releases/1.0.0/files", contentType, body)
	assert.Equal(t, http.StatusCreated, rec.Code, "%s", rec.Body.Bytes())

	t.Run("CleanStore", func(t *testing.T) {
		rec := request(ctx, handler, http.MethodGet, "/v1/integrity", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		report := decodeJSON[integrityResponse](t, rec)
		assert.Equal(t, 0, len(report.MissingBlobs))
		assert.Equal(t, 0, len(report.UnreferencedBlobs))
	})

	t.Run("UnreferencedBlob", func(t *testing.T) {
		orphan, err := svc.store.Put(ctx, strings.NewReader("orphan"), filestore.Metadata{})
		assert.NoError(t, err)

		rec := request(ctx, handler, http.MethodGet, "/v1/integrity", "", nil)
		report := decodeJSON[integrityResponse](t, rec)
		assert.Equal(t, []string{orphan.Key.String()}, report.UnreferencedBlobs)
		assert.Equal(t, 0, len(report.MissingBlobs))

		assert.NoError(t, svc.store.Delete(ctx, orphan.Key))
	})

	t.Run("MissingBlob", func(t *testing.T) {
		keys, err := svc.registry.AllBlobKeys(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 1, len(keys))
		assert.NoError(t, svc.store.Delete(ctx, keys[0]))

		rec := request(ctx, handler, http.MethodGet, "/v1/integrity", "", nil)
		report := decodeJSON[integrityResponse](t, rec)
		assert.Equal(t, []string{keys[0].String()}, report.MissingBlobs)
		assert.Equal(t, 0, len(report.UnreferencedBlobs))
	})
}
