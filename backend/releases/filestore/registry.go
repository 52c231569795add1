package filestore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content/memory"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/retry"

	"github.com/stockpile-io/stockpile/internal/model"
)

const (
	// BlobRepositoryPrefix is the repository path under which blobs are
	// stored, relative to the registry root.
	BlobRepositoryPrefix = "stockpile/blobs/"

	blobMediaType    = "application/vnd.stockpile.blob.v1"
	blobArtifactType = "application/vnd.stockpile.artifact.v1"
	blobTag          = "latest"

	annotationContentType = "io.stockpile.content-type"
)

// RegistryConfig connects a RegistryStore to an OCI container registry.
type RegistryConfig struct {
	Registry       string `help:"OCI registry to store artifact content in, in the form host[:port]." env:"STOCKPILE_REGISTRY"`
	Username       string `help:"OCI registry username." env:"STOCKPILE_REGISTRY_USERNAME"`
	Password       string `help:"OCI registry password." env:"STOCKPILE_REGISTRY_PASSWORD"`
	AllowPlainHTTP bool   `help:"Allow OCI registry connections over plain HTTP." env:"STOCKPILE_REGISTRY_ALLOW_PLAIN_HTTP"`
}

var _ Store = (*RegistryStore)(nil)

// RegistryStore keeps blobs in an OCI container registry, one repository per
// key, each holding a single-layer artifact tagged "latest".
type RegistryStore struct {
	host                  string
	allowPlainHTTP        bool
	repoConnectionBuilder func(path string) (*remote.Repository, error)
}

func NewRegistryStore(c RegistryConfig) *RegistryStore {
	repoConnectionBuilder := func(path string) (*remote.Repository, error) {
		ref := fmt.Sprintf("%s/%s", c.Registry, path)
		reg, err := remote.NewRepository(ref)
		if err != nil {
			return nil, fmt.Errorf("unable to connect to container registry %q: %w", ref, err)
		}
		reg.Client = &auth.Client{
			Client: retry.DefaultClient,
			Cache:  auth.NewCache(),
			Credential: auth.StaticCredential(c.Registry, auth.Credential{
				Username: c.Username,
				Password: c.Password,
			}),
		}
		reg.PlainHTTP = c.AllowPlainHTTP
		return reg, nil
	}
	return &RegistryStore{
		host:                  c.Registry,
		allowPlainHTTP:        c.AllowPlainHTTP,
		repoConnectionBuilder: repoConnectionBuilder,
	}
}

func blobRepositoryPath(key model.BlobKey) string {
	return BlobRepositoryPrefix + key.String()
}

func (s *RegistryStore) Put(ctx context.Context, r io.Reader, md Metadata) (Ref, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Ref{}, fmt.Errorf("failed to read blob content: %w", err)
	}
	hash := sha256.Sum256(data)
	key := model.NewBlobKey()
	ref := Ref{Key: key, Size: int64(len(data)), SHA256: fmt.Sprintf("%x", hash)}

	annotations := map[string]string{}
	if md.Filename != "" {
		annotations[v1.AnnotationTitle] = md.Filename
	}
	if md.ContentType != "" {
		annotations[annotationContentType] = md.ContentType
	}
	layerDescriptor := v1.Descriptor{
		MediaType:   blobMediaType,
		Digest:      digest.NewDigestFromBytes(digest.SHA256, hash[:]),
		Size:        ref.Size,
		Annotations: annotations,
	}

	ms := memory.New()
	if err := ms.Push(ctx, layerDescriptor, bytes.NewReader(data)); err != nil {
		return Ref{}, fmt.Errorf("unable to stage blob in memory: %w", err)
	}
	manifestDescriptor, err := oras.PackManifest(ctx, ms, oras.PackManifestVersion1_1, blobArtifactType, oras.PackManifestOptions{
		Layers: []v1.Descriptor{layerDescriptor},
	})
	if err != nil {
		return Ref{}, fmt.Errorf("unable to pack blob manifest: %w", err)
	}
	if err := ms.Tag(ctx, manifestDescriptor, blobTag); err != nil {
		return Ref{}, fmt.Errorf("unable to tag blob: %w", err)
	}
	repo, err := s.repoConnectionBuilder(blobRepositoryPath(key))
	if err != nil {
		return Ref{}, fmt.Errorf("unable to connect to repository %q: %w", blobRepositoryPath(key), err)
	}
	if _, err := oras.Copy(ctx, ms, blobTag, repo, blobTag, oras.DefaultCopyOptions); err != nil {
		return Ref{}, fmt.Errorf("unable to push blob upstream from staging: %w", err)
	}
	return ref, nil
}

func (s *RegistryStore) Open(ctx context.Context, key model.BlobKey) (io.ReadCloser, Metadata, error) {
	repo, layer, err := s.resolveLayer(ctx, key)
	if err != nil {
		return nil, Metadata{}, err
	}
	stream, err := repo.Blobs().Fetch(ctx, layer)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("unable to fetch blob %s: %w", key, translateOCIError(key, err))
	}
	return stream, metadataFromAnnotations(layer.Annotations), nil
}

func (s *RegistryStore) Stat(ctx context.Context, key model.BlobKey) (Ref, Metadata, error) {
	_, layer, err := s.resolveLayer(ctx, key)
	if err != nil {
		return Ref{}, Metadata{}, err
	}
	ref := Ref{Key: key, Size: layer.Size, SHA256: layer.Digest.Encoded()}
	return ref, metadataFromAnnotations(layer.Annotations), nil
}

func (s *RegistryStore) Delete(ctx context.Context, key model.BlobKey) error {
	repo, err := s.repoConnectionBuilder(blobRepositoryPath(key))
	if err != nil {
		return fmt.Errorf("unable to connect to repository %q: %w", blobRepositoryPath(key), err)
	}
	desc, err := repo.Resolve(ctx, blobTag)
	if err != nil {
		if errors.Is(err, errdef.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("unable to resolve blob %s: %w", key, err)
	}
	if err := repo.Delete(ctx, desc); err != nil {
		return fmt.Errorf("unable to delete blob %s: %w", key, err)
	}
	return nil
}

func (s *RegistryStore) List(ctx context.Context) ([]model.BlobKey, error) {
	registry, err := remote.NewRegistry(s.host)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to registry %q: %w", s.host, err)
	}
	registry.PlainHTTP = s.allowPlainHTTP
	keys := make([]model.BlobKey, 0)
	err = registry.Repositories(ctx, "", func(repos []string) error {
		for _, path := range repos {
			if !strings.HasPrefix(path, BlobRepositoryPrefix) {
				continue
			}
			key, err := model.ParseBlobKey(strings.TrimPrefix(path, BlobRepositoryPrefix))
			if err != nil {
				continue
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to list blobs: %w", err)
	}
	return keys, nil
}

// resolveLayer fetches and decodes the manifest for key and returns its
// single content layer.
func (s *RegistryStore) resolveLayer(ctx context.Context, key model.BlobKey) (*remote.Repository, v1.Descriptor, error) {
	path := blobRepositoryPath(key)
	repo, err := s.repoConnectionBuilder(path)
	if err != nil {
		return nil, v1.Descriptor{}, fmt.Errorf("unable to connect to repository %q: %w", path, err)
	}
	desc, err := repo.Resolve(ctx, blobTag)
	if err != nil {
		return nil, v1.Descriptor{}, fmt.Errorf("unable to resolve blob %s: %w", key, translateOCIError(key, err))
	}
	_, data, err := oras.FetchBytes(ctx, repo, desc.Digest.String(), oras.DefaultFetchBytesOptions)
	if err != nil {
		return nil, v1.Descriptor{}, fmt.Errorf("unable to fetch blob manifest %s: %w", key, translateOCIError(key, err))
	}
	var manifest v1.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, v1.Descriptor{}, fmt.Errorf("unable to decode blob manifest %s: %w", key, err)
	}
	if len(manifest.Layers) != 1 {
		return nil, v1.Descriptor{}, fmt.Errorf("blob %s has %d layers, expected 1", key, len(manifest.Layers))
	}
	return repo, manifest.Layers[0], nil
}

func metadataFromAnnotations(annotations map[string]string) Metadata {
	return Metadata{
		Filename:    annotations[v1.AnnotationTitle],
		ContentType: annotations[annotationContentType],
	}
}

func translateOCIError(key model.BlobKey, err error) error {
	if errors.Is(err, errdef.ErrNotFound) {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return err
}
