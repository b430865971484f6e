package coordinator

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/psearch/internal/infrastructure/config"
	"github.com/GriffinCanCode/psearch/internal/infrastructure/logging"
	"github.com/GriffinCanCode/psearch/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/psearch/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/psearch/internal/shared/types"
	"github.com/GriffinCanCode/psearch/internal/worker"
)

// Outcome is how one worker's lifecycle ended.
type Outcome struct {
	Index    int
	Started  bool
	ExitCode int
	// Err is a spawn failure when Started is false, otherwise a failure
	// to wait for the worker.
	Err error
}

// Pool starts workers with a concurrency cap and optional spawn pacing.
// Once a spawn fails the breaker opens and workers are failed without
// being started, until the configured cooldown admits one more attempt.
type Pool struct {
	launcher Launcher
	limit    int
	limiter  *rate.Limiter
	breaker  *resilience.Breaker
	metrics  *monitoring.Metrics
	logger   *logging.Logger
}

// NewPool creates a pool from the pool configuration.
func NewPool(launcher Launcher, cfg *config.Config, metrics *monitoring.Metrics, logger *logging.Logger) *Pool {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.Pool.SpawnRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Pool.SpawnRate), cfg.Pool.SpawnBurst)
	}

	p := &Pool{
		launcher: launcher,
		limit:    cfg.Workers(),
		limiter:  limiter,
		metrics:  metrics,
		logger:   logger.Named("pool"),
	}
	p.breaker = resilience.New("spawn", resilience.Settings{
		MaxFailures: 1,
		Cooldown:    cfg.Pool.SpawnCooldown.Std(),
		OnTrip: func(name string, counts resilience.Counts) {
			p.logger.Warn("spawn breaker tripped, failing remaining workers",
				zap.Uint32("failures", counts.TotalFailures),
				zap.Uint32("started", counts.TotalSuccesses),
			)
		},
	})
	return p
}

// Run starts one worker per invocation and returns only once every
// started worker has terminated. handoff is called exactly once per index,
// after the worker was started or it was decided it never will be.
func (p *Pool) Run(ctx context.Context, invs []worker.Invocation, handoff func(int) error) []Outcome {
	outcomes := make([]Outcome, len(invs))

	var g errgroup.Group
	g.SetLimit(p.limit)
	for i := range invs {
		i := i
		g.Go(func() error {
			outcomes[i] = p.runOne(ctx, invs[i], handoff)
			return nil
		})
	}
	g.Wait()
	return outcomes
}

func (p *Pool) runOne(ctx context.Context, inv worker.Invocation, handoff func(int) error) Outcome {
	index := inv.Task.Index
	out := Outcome{Index: index}

	var proc Process
	err := p.limiter.Wait(ctx)
	if err == nil {
		err = p.breaker.Execute(func() error {
			var startErr error
			proc, startErr = p.launcher.Start(ctx, inv)
			return startErr
		})
	}

	if hErr := handoff(index); hErr != nil {
		p.logger.Warn("failed to release worker endpoint", zap.Int("task", index), zap.Error(hErr))
	}

	if err != nil {
		out.Err = fmt.Errorf("%w: %v", types.ErrSpawn, err)
		p.metrics.RecordSpawnFailure()
		p.logger.Debug("worker not started", zap.Int("task", index), zap.Error(err))
		return out
	}

	out.Started = true
	p.metrics.WorkerStarted()
	defer p.metrics.WorkerExited()

	out.ExitCode, out.Err = proc.Wait()
	p.logger.Debug("worker exited", zap.Int("task", index), zap.Int("code", out.ExitCode))
	return out
}
