package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/psearch/internal/infrastructure/config"
	"github.com/GriffinCanCode/psearch/internal/infrastructure/logging"
	"github.com/GriffinCanCode/psearch/internal/ipc"
	"github.com/GriffinCanCode/psearch/internal/search"
	"github.com/GriffinCanCode/psearch/internal/shared/types"
)

const (
	// RoleEnv selects the worker role when set to RoleWorker.
	RoleEnv    = "PSEARCH_ROLE"
	RoleWorker = "worker"
)

// Exit codes.
const (
	ExitDelivered  = 0
	ExitInputError = 1
	ExitTransport  = 2
	ExitUsage      = 3
)

// IsWorkerProcess reports whether this process was started as a worker.
func IsWorkerProcess() bool {
	return os.Getenv(RoleEnv) == RoleWorker
}

// Main runs the worker role with the process arguments after the program
// name and returns the exit code.
func Main(args []string) int {
	cfg := config.LoadOrDefault()
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		logger = logging.NewDefault()
	}
	defer logger.Sync()

	inv, err := ParseArgs(args)
	if err != nil {
		logger.Error("invalid worker invocation", zap.Strings("args", args), zap.Error(err))
		return ExitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return Run(ctx, inv, logger)
}

// Run searches the task's file and sends the outcome over the endpoint.
// It owns inv.Endpoint.File and closes it before returning.
func Run(ctx context.Context, inv Invocation, logger *logging.Logger) int {
	log := logger.ForWorker(inv.Task.Index)

	env, code := outcome(ctx, inv, log)

	sender, err := ipc.Dial(inv.Endpoint)
	if err != nil {
		if inv.Endpoint.File != nil {
			inv.Endpoint.File.Close()
		}
		log.Error("failed to open channel", zap.String("channel", string(inv.Endpoint.Kind)), zap.Error(err))
		return ExitTransport
	}

	sendErr := sender.Send(ctx, env)
	closeErr := sender.Close()
	if sendErr != nil {
		log.Error("failed to deliver result", zap.Error(sendErr))
		return ExitTransport
	}
	if closeErr != nil {
		log.Warn("failed to close channel", zap.Error(closeErr))
	}
	return code
}

func outcome(ctx context.Context, inv Invocation, log *logging.Logger) (ipc.Envelope, int) {
	result, err := search.Search(ctx, inv.Task, inv.Search)
	if err == nil {
		log.Debug("search complete",
			zap.String("file", result.FilePath),
			zap.Uint64("matches", result.MatchCount),
			zap.Uint64("tokens", result.TotalCount),
		)
		return ipc.ResultEnvelope(inv.Task.Index, result), ExitDelivered
	}

	kind := types.KindOf(err)
	if kind != types.KindInput {
		log.Warn("search interrupted", zap.String("kind", string(kind)), zap.Error(err))
		return ipc.FailureEnvelope(inv.Task.Index, kind, fmt.Errorf("interrupted: %w", err)), ExitTransport
	}

	cause := err
	var te *types.TaskError
	if errors.As(err, &te) {
		cause = te.Err
	}
	log.Warn("search failed", zap.String("file", inv.Task.FilePath), zap.Error(cause))
	return ipc.FailureEnvelope(inv.Task.Index, types.KindInput, cause), ExitInputError
}
