package worker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/psearch/internal/infrastructure/logging"
	"github.com/GriffinCanCode/psearch/internal/ipc"
	"github.com/GriffinCanCode/psearch/internal/search"
	"github.com/GriffinCanCode/psearch/internal/shared/id"
	"github.com/GriffinCanCode/psearch/internal/shared/paths"
	"github.com/GriffinCanCode/psearch/internal/shared/types"
)

func TestArgsRoundTrip(t *testing.T) {
	inv := Invocation{
		Task: types.SearchTask{Index: 7, FilePath: "dir/with space.txt", TargetWord: "red"},
		Endpoint: ipc.Endpoint{
			Kind:          ipc.KindShm,
			Index:         7,
			Address:       "/dev/shm/psearch-x.region",
			Gate:          "/tmp/psearch-x/gate.lock",
			Token:         "0b9f3a4e-9d1c-4f5e-8a2b-1c3d5e7f9a0b",
			MaxFrameBytes: 4096,
		},
		Search: search.Options{MaxTokenBytes: 512, RejectBinary: false},
	}

	got, err := ParseArgs(Args(inv))
	require.NoError(t, err)
	assert.Equal(t, inv, got)
}

func TestParseArgsRejectsBadInvocations(t *testing.T) {
	base := Args(Invocation{
		Task:     types.SearchTask{Index: 0, FilePath: "a.txt", TargetWord: "red"},
		Endpoint: ipc.Endpoint{Kind: ipc.KindSocket, Address: "/tmp/coord.sock"},
		Search:   search.DefaultOptions(),
	})
	_, err := ParseArgs(base)
	require.NoError(t, err)

	tests := []struct {
		name string
		args []string
	}{
		{"no flags", nil},
		{"unknown flag", append(base, "-bogus")},
		{"stray argument", append(base, "extra")},
		{"bad channel", append(base, "-channel", "carrier-pigeon")},
		{"negative index", append(base, "-index", "-1")},
		{"empty word", append(base, "-word", "")},
		{"shm without token", append(base, "-channel", "shm", "-gate", "/tmp/g")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseArgs(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestIsWorkerProcess(t *testing.T) {
	t.Setenv(RoleEnv, "")
	assert.False(t, IsWorkerProcess())

	t.Setenv(RoleEnv, RoleWorker)
	assert.True(t, IsWorkerProcess())
}

func TestMainUsageError(t *testing.T) {
	assert.Equal(t, ExitUsage, Main([]string{"-index", "nope"}))
}

// fileRound opens a file channel for one task and returns the invocation
// a worker would receive.
func fileRound(t *testing.T, path string) (ipc.Set, Invocation) {
	t.Helper()
	run := paths.ForRun(t.TempDir(), id.NewRunID())
	require.NoError(t, run.Create())

	set, err := ipc.Open(ipc.KindFile, ipc.Options{Run: run, Tasks: 1})
	require.NoError(t, err)
	t.Cleanup(func() { set.Close() })

	ep, err := set.Endpoint(0)
	require.NoError(t, err)
	return set, Invocation{
		Task:     types.SearchTask{Index: 0, FilePath: path, TargetWord: "red"},
		Endpoint: ep,
		Search:   search.DefaultOptions(),
	}
}

func collect(t *testing.T, set ipc.Set) []ipc.Delivery {
	t.Helper()
	exited := make(chan struct{})
	close(exited)
	deliveries, err := set.Collect(context.Background(), exited)
	require.NoError(t, err)
	return deliveries
}

func TestRunDeliversResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.txt")
	require.NoError(t, os.WriteFile(path, []byte("red blue red"), 0o644))

	set, inv := fileRound(t, path)
	code := Run(context.Background(), inv, logging.NewNop())
	assert.Equal(t, ExitDelivered, code)

	deliveries := collect(t, set)
	require.Len(t, deliveries, 1)
	assert.Equal(t, path+"  red  2/3\n", deliveries[0].Envelope.Line)
}

func TestRunDeliversInputError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.txt")

	set, inv := fileRound(t, path)
	code := Run(context.Background(), inv, logging.NewNop())
	assert.Equal(t, ExitInputError, code)

	deliveries := collect(t, set)
	require.Len(t, deliveries, 1)
	env := deliveries[0].Envelope
	assert.Equal(t, ipc.StatusFailed, env.Status)
	assert.Equal(t, string(types.KindInput), env.Kind)
	assert.Contains(t, env.Error, "missing.txt")
	assert.NotContains(t, env.Error, "task 0")
}

func TestRunDeliversInterruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("red ", 10000)), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	set, inv := fileRound(t, path)
	assert.Equal(t, ExitTransport, Run(ctx, inv, logging.NewNop()))

	deliveries := collect(t, set)
	require.Len(t, deliveries, 1)
	env := deliveries[0].Envelope
	assert.Equal(t, ipc.StatusFailed, env.Status)
	assert.Equal(t, string(types.KindTransport), env.Kind)
	assert.Contains(t, env.Error, "interrupted")
}

func TestRunReportsTransportFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("red"), 0o644))

	inv := Invocation{
		Task:     types.SearchTask{Index: 0, FilePath: path, TargetWord: "red"},
		Endpoint: ipc.Endpoint{Kind: ipc.KindSocket, Address: filepath.Join(t.TempDir(), "absent.sock")},
		Search:   search.DefaultOptions(),
	}
	assert.Equal(t, ExitTransport, Run(context.Background(), inv, logging.NewNop()))
}
