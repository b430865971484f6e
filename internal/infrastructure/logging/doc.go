// Package logging provides structured logging using uber/zap.
//
// This package offers two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Logs are written to stderr. The output file of a run is never a log sink,
// and worker processes share the coordinator's stderr.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("round finished", zap.String("run", run.String()), zap.Int("tasks", n))
//	logger.Error("worker failed", zap.Int("task", i), zap.Error(err))
package logging
