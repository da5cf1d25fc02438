package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := New(Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	return ws
}

func TestNewRequiresDataDir(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}

func TestNewCreatesMissingDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "data")
	ws, err := New(Config{DataDir: dir})
	require.NoError(t, err)
	require.NotNil(t, ws)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestStageInputAndResolve(t *testing.T) {
	t.Parallel()

	ws := newTestWorkspace(t)
	require.NoError(t, ws.EnsureJobDirs("job-1"))

	n, err := ws.StageInput("job-1", "file1.csv", strings.NewReader("a,b\n1,2\n"))
	require.NoError(t, err)
	require.Equal(t, int64(8), n)

	path, err := ws.InputPath("job-1", "file1.csv")
	require.NoError(t, err)
	data, err := os.ReadFile(path) //nolint:gosec // test path
	require.NoError(t, err)
	require.Equal(t, "a,b\n1,2\n", string(data))
}

func TestPathTraversalRejected(t *testing.T) {
	t.Parallel()

	ws := newTestWorkspace(t)
	require.NoError(t, ws.EnsureJobDirs("job-2"))

	_, err := ws.StageInput("job-2", "../../etc/passwd", strings.NewReader("x"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "traversal")

	_, err = ws.OutputPath("job-2", "../output1.xlsx")
	require.Error(t, err)

	err = ws.EnsureJobDirs("../job")
	require.Error(t, err)
}

func TestStatOutputAndRemoveJob(t *testing.T) {
	t.Parallel()

	ws := newTestWorkspace(t)
	require.NoError(t, ws.EnsureJobDirs("job-3"))

	outPath, err := ws.OutputPath("job-3", "results.json")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(outPath, []byte(`{"ok":true}`), 0o600))

	info, err := ws.StatOutput("job-3", "results.json")
	require.NoError(t, err)
	require.Equal(t, int64(11), info.Size())

	_, err = ws.StatOutput("job-3", "missing.xlsx")
	require.Error(t, err)

	require.NoError(t, ws.RemoveJob("job-3"))
	_, err = os.Stat(ws.InputsDir("job-3"))
	require.True(t, os.IsNotExist(err))
}
