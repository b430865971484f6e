package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/psearch/internal/coordinator"
	"github.com/GriffinCanCode/psearch/internal/infrastructure/config"
	"github.com/GriffinCanCode/psearch/internal/infrastructure/logging"
	"github.com/GriffinCanCode/psearch/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/psearch/internal/worker"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	if worker.IsWorkerProcess() {
		os.Exit(worker.Main(os.Args[1:]))
	}
	os.Exit(run(os.Args[1:], os.Stderr))
}

// options holds the parsed command line.
type options struct {
	configPath string
	dev        bool
	word       string
	files      []string
	output     string
}

func run(args []string, stderr io.Writer) int {
	cfg, opts, err := parse(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "psearch: %v\n", err)
		fmt.Fprintln(stderr, usageLine)
		return exitUsage
	}

	logCfg := logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development}
	if opts.dev {
		logCfg = logging.Config{Level: "debug", Development: true}
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(stderr, "psearch: invalid log configuration: %v\n", err)
		return exitUsage
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := coordinator.PrepareInputs(ctx, opts.files, cfg.Search.Expand)
	if err != nil {
		fmt.Fprintf(stderr, "psearch: %v\n", err)
		return exitUsage
	}

	launcher, err := coordinator.NewExecLauncher()
	if err != nil {
		fmt.Fprintf(stderr, "psearch: %v\n", err)
		return exitFailure
	}

	metrics := monitoring.NewMetrics()
	coord, err := coordinator.New(cfg, launcher, metrics, logger)
	if err != nil {
		fmt.Fprintf(stderr, "psearch: %v\n", err)
		return exitUsage
	}

	_, err = coord.Run(ctx, coordinator.Request{Word: opts.word, Files: files, Output: opts.output})

	if path := cfg.Metrics.TextfilePath; path != "" {
		if mErr := metrics.WriteTextfile(path); mErr != nil {
			logger.Warn("metrics not written", zap.String("path", path), zap.Error(mErr))
		}
	}

	if errors.Is(err, coordinator.ErrInvalidRequest) {
		fmt.Fprintf(stderr, "psearch: %v\n", err)
		return exitUsage
	}
	if err != nil {
		fmt.Fprintf(stderr, "psearch: %v\n", err)
		return exitFailure
	}
	return exitOK
}

const usageLine = "usage: psearch [flags] [--] <target_word> <input_file_count> <files...> <output_file>\n" +
	"  (put -- before a target word that starts with '-')"

// parse builds the configuration (defaults, environment, config file,
// flags, in increasing precedence) and the positional arguments.
func parse(args []string, stderr io.Writer) (*config.Config, options, error) {
	var opts options
	fs := flag.NewFlagSet("psearch", flag.ContinueOnError)
	fs.SetOutput(stderr)

	channel := fs.String("channel", "", "transport: file, pipe, shm or socket")
	workers := fs.Int("workers", 0, "maximum concurrent workers (0 = number of CPUs)")
	policy := fs.String("policy", "", "failure policy: abort or mark")
	expand := fs.Bool("expand", false, "expand directories and ** globs in the input list")
	runtimeDir := fs.String("runtime-dir", "", "directory for per-run channel state")
	metricsPath := fs.String("metrics", "", "write Prometheus metrics to this textfile")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn or error")
	fs.StringVar(&opts.configPath, "config", "", "TOML or YAML config file")
	fs.BoolVar(&opts.dev, "dev", false, "development logging (debug level, console output)")

	if err := fs.Parse(args); err != nil {
		return nil, opts, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, opts, err
	}
	if opts.configPath != "" {
		if err := config.LoadFile(cfg, opts.configPath); err != nil {
			return nil, opts, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "channel":
			cfg.Channel.Kind = *channel
		case "workers":
			cfg.Pool.MaxWorkers = *workers
		case "policy":
			cfg.Search.FailurePolicy = *policy
		case "expand":
			cfg.Search.Expand = *expand
		case "runtime-dir":
			cfg.Channel.RuntimeDir = *runtimeDir
		case "metrics":
			cfg.Metrics.TextfilePath = *metricsPath
		case "log-level":
			cfg.Logging.Level = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, opts, err
	}

	pos := fs.Args()
	if len(pos) < 3 {
		return nil, opts, fmt.Errorf("expected at least 3 arguments, got %d", len(pos))
	}
	count, err := strconv.Atoi(pos[1])
	if err != nil || count < 0 {
		return nil, opts, fmt.Errorf("input file count %q is not a non-negative integer", pos[1])
	}
	if got := len(pos) - 3; got != count {
		return nil, opts, fmt.Errorf("input file count is %d but %d files were given", count, got)
	}

	opts.word = pos[0]
	opts.files = pos[2 : len(pos)-1]
	opts.output = pos[len(pos)-1]
	return cfg, opts, nil
}
