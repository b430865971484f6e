package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/psearch/internal/infrastructure/config"
	"github.com/GriffinCanCode/psearch/internal/worker"
)

func TestMain(m *testing.M) {
	if worker.IsWorkerProcess() {
		os.Exit(worker.Main(os.Args[1:]))
	}
	os.Exit(m.Run())
}

func writeInputs(t *testing.T) (dir string, a, b string) {
	t.Helper()
	dir = t.TempDir()
	a = filepath.Join(dir, "a.txt")
	b = filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("red"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("red red blue"), 0o644))
	return dir, a, b
}

func TestRunWritesReport(t *testing.T) {
	for _, channel := range []string{"file", "pipe", "shm", "socket"} {
		t.Run(channel, func(t *testing.T) {
			dir, a, b := writeInputs(t)
			out := filepath.Join(dir, "out.txt")
			metrics := filepath.Join(dir, "metrics.prom")

			var stderr bytes.Buffer
			code := run([]string{
				"-channel", channel,
				"-runtime-dir", t.TempDir(),
				"-metrics", metrics,
				"red", "2", b, a, out,
			}, &stderr)
			require.Equal(t, exitOK, code, stderr.String())

			data, err := os.ReadFile(out)
			require.NoError(t, err)
			assert.Equal(t, a+"  red  1/1\n"+b+"  red  2/3\n", string(data))

			prom, err := os.ReadFile(metrics)
			require.NoError(t, err)
			assert.Contains(t, string(prom), "psearch_rounds_total")
		})
	}
}

func TestRunMissingFileFails(t *testing.T) {
	dir, a, _ := writeInputs(t)
	out := filepath.Join(dir, "out.txt")

	var stderr bytes.Buffer
	code := run([]string{"red", "2", a, filepath.Join(dir, "missing.txt"), out}, &stderr)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr.String(), "missing.txt")
	assert.NoFileExists(t, out)
}

func TestRunUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"too few arguments", []string{"red", "0"}},
		{"count mismatch", []string{"red", "2", "a.txt", "out.txt"}},
		{"bad count", []string{"red", "two", "a.txt", "b.txt", "out.txt"}},
		{"negative count", []string{"red", "-1", "out.txt"}},
		{"unknown flag", []string{"-bogus", "red", "0", "out.txt"}},
		{"bad channel", []string{"-channel", "carrier-pigeon", "red", "0", "out.txt"}},
		{"bad policy", []string{"-policy", "shrug", "red", "0", "out.txt"}},
		{"missing config file", []string{"-config", "/nonexistent/psearch.toml", "red", "0", "out.txt"}},
		{"word with whitespace", []string{"red blue", "0", "out.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			assert.Equal(t, exitUsage, run(tt.args, &stderr))
			assert.NotEmpty(t, stderr.String())
		})
	}
}

func TestRunWordStartingWithDash(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.txt")
	out := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(in, []byte("-x y -x\n"), 0o644))

	var stderr bytes.Buffer
	assert.Equal(t, exitUsage, run([]string{"-x", "1", in, out}, &stderr))
	assert.Contains(t, stderr.String(), "put -- before a target word")

	stderr.Reset()
	require.Equal(t, exitOK, run([]string{"-channel", "file", "--", "-x", "1", in, out}, &stderr), stderr.String())
	report, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, in+"  -x  2/3\n", string(report))
}

func TestParsePrecedence(t *testing.T) {
	t.Setenv("PSEARCH_CHANNEL", "file")
	t.Setenv("PSEARCH_MAX_WORKERS", "2")

	path := filepath.Join(t.TempDir(), "psearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("channel:\n  kind: shm\npool:\n  max_workers: 3\n"), 0o644))

	var stderr bytes.Buffer
	cfg, opts, err := parse([]string{"-config", path, "-workers", "5", "red", "1", "a.txt", "out.txt"}, &stderr)
	require.NoError(t, err)

	assert.Equal(t, config.ChannelShm, cfg.Channel.Kind)
	assert.Equal(t, 5, cfg.Pool.MaxWorkers)
	assert.Equal(t, "red", opts.word)
	assert.Equal(t, []string{"a.txt"}, opts.files)
	assert.Equal(t, "out.txt", opts.output)
}

func TestRunZeroInputs(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.txt")
	var stderr bytes.Buffer
	require.Equal(t, exitOK, run([]string{"red", "0", out}, &stderr), stderr.String())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Empty(t, data)
}
