package coordinator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/psearch/internal/shared/types"
)

func TestWriteReportReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(out, []byte("stale\n"), 0o600))

	report := types.NewReport(types.NewTasks("red", []string{"a.txt"}))
	require.NoError(t, report.Set(0, types.SearchResult{FilePath: "a.txt", TargetWord: "red", MatchCount: 1, TotalCount: 1}))

	require.NoError(t, WriteReport(out, report))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "a.txt  red  1/1\n", string(data))

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteReportMissingDirectory(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nope", "out.txt")
	err := WriteReport(out, types.NewReport(nil))
	assert.Error(t, err)
	assert.NoFileExists(t, out)
}
