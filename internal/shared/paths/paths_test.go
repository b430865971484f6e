package paths

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/psearch/internal/shared/id"
)

func TestRunLayout(t *testing.T) {
	base := t.TempDir()
	run := ForRun(base, id.NewRunID())

	assert.Equal(t, base, filepath.Dir(run.Dir()))
	assert.True(t, strings.HasPrefix(filepath.Base(run.Dir()), DirPrefix+"run_"))
	assert.Equal(t, "task-0007.frame", filepath.Base(run.ArtifactPath(7)))
	assert.Equal(t, run.Dir(), filepath.Dir(run.GatePath()))
}

func TestRunsNeverShareNames(t *testing.T) {
	base := t.TempDir()
	a := ForRun(base, id.NewRunID())
	b := ForRun(base, id.NewRunID())

	assert.NotEqual(t, a.Dir(), b.Dir())
	assert.NotEqual(t, a.RegionPath(), b.RegionPath())
	assert.NotEqual(t, a.ArtifactPath(0), b.ArtifactPath(0))
}

func TestCreateRefusesExistingDir(t *testing.T) {
	run := ForRun(t.TempDir(), id.NewRunID())

	require.NoError(t, run.Create())
	assert.Error(t, run.Create())

	require.NoError(t, run.Remove())
	_, err := os.Stat(run.Dir())
	assert.True(t, os.IsNotExist(err))
}

func TestSocketPathFallsBackForDeepBase(t *testing.T) {
	deep := "/" + strings.Repeat("d", 60)
	run := ForRun(deep, id.NewRunID())

	p, err := run.SocketPath()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(p), MaxSocketPath)
	assert.Equal(t, deep, filepath.Dir(p))
}

func TestSocketPathTooLong(t *testing.T) {
	run := ForRun("/"+strings.Repeat("x", 120), id.NewRunID())

	_, err := run.SocketPath()
	assert.Error(t, err)
}

func TestDefaultBase(t *testing.T) {
	run := ForRun("", id.NewRunID())
	assert.Equal(t, os.TempDir(), run.Base)
}
