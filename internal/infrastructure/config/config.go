package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Channel kinds.
const (
	ChannelFile   = "file"
	ChannelPipe   = "pipe"
	ChannelShm    = "shm"
	ChannelSocket = "socket"
)

// Failure policies.
const (
	// PolicyAbort fails the whole run and writes no report.
	PolicyAbort = "abort"
	// PolicyMark writes a marker line for each task with an input error.
	PolicyMark = "mark"
)

// Config holds all application configuration.
type Config struct {
	Channel ChannelConfig `toml:"channel" yaml:"channel"`
	Pool    PoolConfig    `toml:"pool" yaml:"pool"`
	Search  SearchConfig  `toml:"search" yaml:"search"`
	Logging LogConfig     `toml:"logging" yaml:"logging"`
	Metrics MetricsConfig `toml:"metrics" yaml:"metrics"`
}

// ChannelConfig selects and sizes the transport.
type ChannelConfig struct {
	Kind          string   `envconfig:"PSEARCH_CHANNEL" default:"pipe" toml:"kind" yaml:"kind"`
	RuntimeDir    string   `envconfig:"PSEARCH_RUNTIME_DIR" toml:"runtime_dir" yaml:"runtime_dir"`
	MaxFrameBytes int      `envconfig:"PSEARCH_MAX_FRAME_BYTES" default:"1048576" toml:"max_frame_bytes" yaml:"max_frame_bytes"`
	RegionBytes   int      `envconfig:"PSEARCH_REGION_BYTES" default:"1048576" toml:"region_bytes" yaml:"region_bytes"`
	AcceptGrace   Duration `envconfig:"PSEARCH_ACCEPT_GRACE" default:"250ms" toml:"accept_grace" yaml:"accept_grace"`
}

// PoolConfig bounds worker spawning.
type PoolConfig struct {
	MaxWorkers int     `envconfig:"PSEARCH_MAX_WORKERS" default:"0" toml:"max_workers" yaml:"max_workers"`
	SpawnRate  float64 `envconfig:"PSEARCH_SPAWN_RATE" default:"0" toml:"spawn_rate" yaml:"spawn_rate"`
	SpawnBurst int     `envconfig:"PSEARCH_SPAWN_BURST" default:"1" toml:"spawn_burst" yaml:"spawn_burst"`
	// SpawnCooldown is how long spawning stays suspended after a spawn
	// failure before one more start is attempted. Zero suspends it for the
	// rest of the round.
	SpawnCooldown Duration `envconfig:"PSEARCH_SPAWN_COOLDOWN" default:"0s" toml:"spawn_cooldown" yaml:"spawn_cooldown"`
}

// SearchConfig controls input handling and the failure policy.
type SearchConfig struct {
	FailurePolicy string `envconfig:"PSEARCH_FAILURE_POLICY" default:"abort" toml:"failure_policy" yaml:"failure_policy"`
	MaxTokenBytes int    `envconfig:"PSEARCH_MAX_TOKEN_BYTES" default:"1048576" toml:"max_token_bytes" yaml:"max_token_bytes"`
	RejectBinary  bool   `envconfig:"PSEARCH_REJECT_BINARY" default:"true" toml:"reject_binary" yaml:"reject_binary"`
	Expand        bool   `envconfig:"PSEARCH_EXPAND" default:"false" toml:"expand" yaml:"expand"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"warn" toml:"level" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" toml:"development" yaml:"development"`
}

// MetricsConfig holds the optional Prometheus textfile output.
type MetricsConfig struct {
	TextfilePath string `envconfig:"PSEARCH_METRICS_FILE" toml:"textfile_path" yaml:"textfile_path"`
}

// Duration is a time.Duration that decodes from strings such as "250ms" in
// the environment and in config files.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Channel: ChannelConfig{
			Kind:          ChannelPipe,
			MaxFrameBytes: 1 << 20,
			RegionBytes:   1 << 20,
			AcceptGrace:   Duration(250 * time.Millisecond),
		},
		Pool: PoolConfig{
			SpawnBurst: 1,
		},
		Search: SearchConfig{
			FailurePolicy: PolicyAbort,
			MaxTokenBytes: 1 << 20,
			RejectBinary:  true,
		},
		Logging: LogConfig{
			Level: "warn",
		},
	}
}

// Workers returns the effective concurrency cap.
func (c *Config) Workers() int {
	if c.Pool.MaxWorkers > 0 {
		return c.Pool.MaxWorkers
	}
	return runtime.NumCPU()
}

// Validate normalizes the enumerated settings and rejects values no
// component can run with.
func (c *Config) Validate() error {
	c.Channel.Kind = strings.ToLower(strings.TrimSpace(c.Channel.Kind))
	c.Search.FailurePolicy = strings.ToLower(strings.TrimSpace(c.Search.FailurePolicy))

	switch c.Channel.Kind {
	case ChannelFile, ChannelPipe, ChannelShm, ChannelSocket:
	default:
		return fmt.Errorf("unknown channel kind %q (want file, pipe, shm or socket)", c.Channel.Kind)
	}
	switch c.Search.FailurePolicy {
	case PolicyAbort, PolicyMark:
	default:
		return fmt.Errorf("unknown failure policy %q (want abort or mark)", c.Search.FailurePolicy)
	}
	if c.Channel.MaxFrameBytes <= 0 {
		return fmt.Errorf("max frame bytes must be positive, got %d", c.Channel.MaxFrameBytes)
	}
	if c.Channel.RegionBytes <= 0 {
		return fmt.Errorf("region bytes must be positive, got %d", c.Channel.RegionBytes)
	}
	if c.Channel.AcceptGrace < 0 {
		return fmt.Errorf("accept grace must not be negative")
	}
	if c.Pool.MaxWorkers < 0 {
		return fmt.Errorf("max workers must not be negative, got %d", c.Pool.MaxWorkers)
	}
	if c.Pool.SpawnRate < 0 {
		return fmt.Errorf("spawn rate must not be negative")
	}
	if c.Pool.SpawnCooldown < 0 {
		return fmt.Errorf("spawn cooldown must not be negative")
	}
	if c.Pool.SpawnBurst <= 0 {
		return fmt.Errorf("spawn burst must be positive, got %d", c.Pool.SpawnBurst)
	}
	if c.Search.MaxTokenBytes <= 0 {
		return fmt.Errorf("max token bytes must be positive, got %d", c.Search.MaxTokenBytes)
	}
	return nil
}
