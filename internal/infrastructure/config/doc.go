// Package config provides 12-factor configuration management for psearch.
//
// Configuration is loaded from environment variables with defaults. An
// optional TOML or YAML file overrides the environment, and CLI flags
// override both.
//
// Configuration Sections:
//   - Channel: transport variant and its sizing
//   - Pool: worker concurrency cap and spawn pacing
//   - Search: failure policy and input handling
//   - Logging: log level and output format
//   - Metrics: optional Prometheus textfile
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err == nil && path != "" {
//	    err = config.LoadFile(cfg, path)
//	}
//
// Environment Variables:
//   - PSEARCH_CHANNEL, PSEARCH_RUNTIME_DIR, PSEARCH_MAX_FRAME_BYTES
//   - PSEARCH_REGION_BYTES, PSEARCH_ACCEPT_GRACE
//   - PSEARCH_MAX_WORKERS, PSEARCH_SPAWN_RATE, PSEARCH_SPAWN_BURST
//   - PSEARCH_FAILURE_POLICY, PSEARCH_MAX_TOKEN_BYTES, PSEARCH_REJECT_BINARY, PSEARCH_EXPAND
//   - LOG_LEVEL, LOG_DEV
//   - PSEARCH_METRICS_FILE
package config
