package storage

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/filingwatch/filingwatch/internal/config"
	"github.com/filingwatch/filingwatch/internal/ingestion"
)

// Compile-time interface assertion.
var _ ingestion.BlobStore = (*LocalBlobStore)(nil)

var (
	// ErrPathOutsideRoot is returned when a storage path escapes the blob root.
	ErrPathOutsideRoot = errors.New("storage path escapes blob root")

	// ErrUnsupportedBackend is returned when an artifact's storage backend is
	// not servable by this store.
	ErrUnsupportedBackend = errors.New("unsupported storage backend")
)

const blobFileMode = 0o644

// LocalBlobStore stores artifact bodies on the local filesystem under a
// configured root, keyed by filer id and filing id.
type LocalBlobStore struct {
	root string
}

// NewLocalBlobStore creates a filesystem blob store rooted at root; an empty
// root falls back to the ARTIFACT_STORAGE_ROOT environment variable.
func NewLocalBlobStore(root string) (*LocalBlobStore, error) {
	if root == "" {
		root = config.GetEnvStr("ARTIFACT_STORAGE_ROOT", "data/artifacts")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve blob root: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}

	return &LocalBlobStore{root: abs}, nil
}

// Write stores a document body under (filer id, filing id, file name) and
// returns the storage path recorded on the artifact. Paths are relative to the
// blob root so the root can move without rewriting artifact rows.
func (s *LocalBlobStore) Write(filerID, filingID, fileName string, body []byte) (string, error) {
	rel := filepath.Join(filerID, strings.ReplaceAll(filingID, "-", ""), filepath.Base(fileName))

	full, err := s.resolve(rel)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create blob directory: %w", err)
	}

	if err := os.WriteFile(full, body, blobFileMode); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}

	return rel, nil
}

// Read returns the body stored at a path previously returned by Write.
func (s *LocalBlobStore) Read(path string) ([]byte, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	body, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", path, err)
	}

	return body, nil
}

// OpenArtifact returns an artifact's stored body and a content type inferred
// from its file name. Only local_fs artifacts are servable.
func (s *LocalBlobStore) OpenArtifact(artifact *ingestion.Artifact) ([]byte, string, error) {
	if artifact.StorageBackend != ingestion.StorageBackendLocalFS {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedBackend, artifact.StorageBackend)
	}

	body, err := s.Read(artifact.StoragePath)
	if err != nil {
		return nil, "", err
	}

	return body, contentTypeFor(artifact.FileName), nil
}

// resolve joins a relative storage path onto the root and rejects traversal.
func (s *LocalBlobStore) resolve(rel string) (string, error) {
	full := filepath.Join(s.root, rel)

	if full != s.root && !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideRoot, rel)
	}

	return full, nil
}

func contentTypeFor(fileName string) string {
	if ct := mime.TypeByExtension(filepath.Ext(fileName)); ct != "" {
		return ct
	}

	return "application/octet-stream"
}
