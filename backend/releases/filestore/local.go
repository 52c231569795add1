package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/stockpile-io/stockpile/internal/model"
)

const stagingDir = ".staging"

var _ Store = (*LocalStore)(nil)

// LocalStore keeps blobs on the local filesystem, one directory per key
// containing the raw bytes and a metadata sidecar.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, stagingDir), 0750); err != nil {
		return nil, fmt.Errorf("failed to create content store in %s: %w", dir, err)
	}
	return &LocalStore{dir: dir}, nil
}

type localMeta struct {
	Metadata
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

func (s *LocalStore) Put(ctx context.Context, r io.Reader, md Metadata) (ref Ref, err error) {
	// Stage into a temp file so a failed upload never leaves a partial blob
	// behind a valid key.
	w, err := os.CreateTemp(filepath.Join(s.dir, stagingDir), "put-*")
	if err != nil {
		return Ref{}, fmt.Errorf("failed to stage blob: %w", err)
	}
	defer os.Remove(w.Name()) //nolint:errcheck
	defer w.Close()           //nolint:errcheck

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(w, hasher), r)
	if err != nil {
		return Ref{}, fmt.Errorf("failed to write blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return Ref{}, fmt.Errorf("failed to flush blob: %w", err)
	}

	key := model.NewBlobKey()
	ref = Ref{Key: key, Size: size, SHA256: hex.EncodeToString(hasher.Sum(nil))}

	blobDir := filepath.Join(s.dir, key.String())
	if err := os.Mkdir(blobDir, 0750); err != nil {
		return Ref{}, fmt.Errorf("failed to create blob directory: %w", err)
	}
	metaBytes, err := json.Marshal(localMeta{Metadata: md, Size: ref.Size, SHA256: ref.SHA256})
	if err != nil {
		return Ref{}, fmt.Errorf("failed to encode blob metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(blobDir, "meta.json"), metaBytes, 0640); err != nil {
		return Ref{}, fmt.Errorf("failed to write blob metadata: %w", err)
	}
	if err := os.Rename(w.Name(), filepath.Join(blobDir, "blob")); err != nil {
		return Ref{}, fmt.Errorf("failed to commit blob: %w", err)
	}
	return ref, nil
}

func (s *LocalStore) Open(ctx context.Context, key model.BlobKey) (io.ReadCloser, Metadata, error) {
	_, md, err := s.Stat(ctx, key)
	if err != nil {
		return nil, Metadata{}, err
	}
	f, err := os.Open(filepath.Join(s.dir, key.String(), "blob"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Metadata{}, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, Metadata{}, fmt.Errorf("failed to open blob %s: %w", key, err)
	}
	return f, md, nil
}

func (s *LocalStore) Stat(ctx context.Context, key model.BlobKey) (Ref, Metadata, error) {
	metaBytes, err := os.ReadFile(filepath.Join(s.dir, key.String(), "meta.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return Ref{}, Metadata{}, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return Ref{}, Metadata{}, fmt.Errorf("failed to read blob metadata %s: %w", key, err)
	}
	var meta localMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return Ref{}, Metadata{}, fmt.Errorf("corrupt blob metadata %s: %w", key, err)
	}
	return Ref{Key: key, Size: meta.Size, SHA256: meta.SHA256}, meta.Metadata, nil
}

func (s *LocalStore) Delete(ctx context.Context, key model.BlobKey) error {
	if err := os.RemoveAll(filepath.Join(s.dir, key.String())); err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

func (s *LocalStore) List(ctx context.Context) ([]model.BlobKey, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list content store: %w", err)
	}
	keys := make([]model.BlobKey, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == stagingDir {
			continue
		}
		key, err := model.ParseBlobKey(entry.Name())
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}
