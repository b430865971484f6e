package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewWritesJSONToConfiguredPath(t *testing.T) {
	out := filepath.Join(t.TempDir(), "log.json")

	logger, err := New(Config{Level: "info", OutputPaths: []string{out}})
	require.NoError(t, err)

	logger.ForWorker(3).Info("delivered", zap.String("channel", "pipe"))
	logger.Debug("dropped below level")
	_ = logger.Sync()

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"delivered"`)
	assert.Contains(t, string(data), `"role":"worker"`)
	assert.Contains(t, string(data), `"task":3`)
	assert.NotContains(t, string(data), "dropped below level")
}

func TestDevelopmentWritesConsole(t *testing.T) {
	out := filepath.Join(t.TempDir(), "log.txt")

	logger, err := New(Config{Level: "debug", Development: true, OutputPaths: []string{out}})
	require.NoError(t, err)

	logger.Named("pool").Debug("worker exited", zap.Int("code", 0))
	_ = logger.Sync()

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "worker exited")
	assert.NotContains(t, string(data), `"message"`)
}

func TestFallbacks(t *testing.T) {
	assert.NotNil(t, NewDefault())
	assert.NotNil(t, NewNop().Named("coordinator"))
}
