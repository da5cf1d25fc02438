package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewValidatesBaseDir(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	_, err = New(Config{BaseDir: file})
	require.Error(t, err)
}

func TestPutObjectWritesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "jobs/job-1/results.json", "application/json", []byte(`{}`))
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(dir, "jobs", "job-1", "results.json"), uri)

	data, err := os.ReadFile(filepath.Join(dir, "jobs", "job-1", "results.json")) //nolint:gosec // test path
	require.NoError(t, err)
	require.Equal(t, `{}`, string(data))
}

func TestPutObjectRejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../escape.json", "", []byte("x"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "traversal")

	_, err = store.PutObject(context.Background(), "  ", "", []byte("x"))
	require.Error(t, err)
}
