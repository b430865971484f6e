package paths

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/GriffinCanCode/psearch/internal/shared/id"
)

const (
	// DirPrefix prefixes every per-run directory name.
	DirPrefix = "psearch-"

	// SharedMemoryRoot is the tmpfs mount preferred for shared regions.
	SharedMemoryRoot = "/dev/shm"

	// MaxSocketPath is the usable length of sockaddr_un.sun_path, leaving
	// room for the terminating NUL on every supported platform.
	MaxSocketPath = 103

	gateFile   = "gate.lock"
	socketFile = "coord.sock"
	regionFile = "region.shm"
)

// Run names the external state of one round.
type Run struct {
	ID   id.RunID
	Base string
}

// ForRun returns the layout for run under base. An empty base means
// os.TempDir().
func ForRun(base string, run id.RunID) Run {
	if base == "" {
		base = os.TempDir()
	}
	return Run{ID: run, Base: base}
}

// Dir returns the per-run directory.
func (r Run) Dir() string {
	return filepath.Join(r.Base, DirPrefix+r.ID.String())
}

// Create creates the per-run directory. It fails if the directory already
// exists so a run never adopts another run's state.
func (r Run) Create() error {
	if err := os.MkdirAll(r.Base, 0o755); err != nil {
		return fmt.Errorf("failed to create runtime base %s: %w", r.Base, err)
	}
	if err := os.Mkdir(r.Dir(), 0o700); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	return nil
}

// Remove deletes the per-run directory and everything in it.
func (r Run) Remove() error {
	return os.RemoveAll(r.Dir())
}

// ArtifactPath returns the FileChannel artifact for the task at index.
func (r Run) ArtifactPath(index int) string {
	return filepath.Join(r.Dir(), fmt.Sprintf("task-%04d.frame", index))
}

// GatePath returns the named gate of the round.
func (r Run) GatePath() string {
	return filepath.Join(r.Dir(), gateFile)
}

// RegionPath returns the backing file of the shared memory region,
// preferring tmpfs.
func (r Run) RegionPath() string {
	if info, err := os.Stat(SharedMemoryRoot); err == nil && info.IsDir() {
		return filepath.Join(SharedMemoryRoot, DirPrefix+r.ID.String()+".region")
	}
	return filepath.Join(r.Dir(), regionFile)
}

// SocketPath returns the unix-domain endpoint of the round. Deep runtime
// directories fall back to a short name directly under the base.
func (r Run) SocketPath() (string, error) {
	p := filepath.Join(r.Dir(), socketFile)
	if len(p) <= MaxSocketPath {
		return p, nil
	}
	p = filepath.Join(r.Base, DirPrefix+r.ID.Short()+".sock")
	if len(p) <= MaxSocketPath {
		return p, nil
	}
	return "", fmt.Errorf("socket path %q exceeds %d bytes", p, MaxSocketPath)
}
