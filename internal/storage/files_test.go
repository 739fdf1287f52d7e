package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filingwatch/filingwatch/internal/ingestion"
)

func TestLocalBlobStore_WriteReadRoundTrip(t *testing.T) {
	store, err := NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)

	body := []byte("<html>filing body</html>")

	path, err := store.Write("0000320193", "0000320193-24-000123", "aapl-20240928.htm", body)
	require.NoError(t, err)
	assert.Equal(t, "0000320193/000032019324000123/aapl-20240928.htm", path)

	got, err := store.Read(path)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestLocalBlobStore_WriteIsOverwriteSafe(t *testing.T) {
	store, err := NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Write("0000000001", "acc-1", "doc.htm", []byte("v1"))
	require.NoError(t, err)

	path, err := store.Write("0000000001", "acc-1", "doc.htm", []byte("v2"))
	require.NoError(t, err)

	got, err := store.Read(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestLocalBlobStore_ReadRejectsTraversal(t *testing.T) {
	store, err := NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Read("../../etc/passwd")
	assert.ErrorIs(t, err, ErrPathOutsideRoot)
}

func TestLocalBlobStore_WriteStripsDirectoryFromFileName(t *testing.T) {
	store, err := NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)

	path, err := store.Write("0000000001", "acc-1", "../escape.htm", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "0000000001/acc1/escape.htm", path)
}

func TestLocalBlobStore_OpenArtifact(t *testing.T) {
	store, err := NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)

	body := []byte("<html>doc</html>")
	path, err := store.Write("0000000001", "acc-1", "filing.htm", body)
	require.NoError(t, err)

	artifact := &ingestion.Artifact{
		StorageBackend: ingestion.StorageBackendLocalFS,
		StoragePath:    path,
		FileName:       "filing.htm",
	}

	got, contentType, err := store.OpenArtifact(artifact)
	require.NoError(t, err)
	assert.Equal(t, body, got)
	assert.Contains(t, contentType, "text/html")
}

func TestLocalBlobStore_OpenArtifactRejectsUnknownBackend(t *testing.T) {
	store, err := NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)

	artifact := &ingestion.Artifact{StorageBackend: "s3", StoragePath: "x"}

	_, _, err = store.OpenArtifact(artifact)
	assert.ErrorIs(t, err, ErrUnsupportedBackend)
}
