package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/psearch/internal/infrastructure/config"
	"github.com/GriffinCanCode/psearch/internal/infrastructure/logging"
	"github.com/GriffinCanCode/psearch/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/psearch/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/psearch/internal/ipc"
	"github.com/GriffinCanCode/psearch/internal/search"
	"github.com/GriffinCanCode/psearch/internal/shared/id"
	"github.com/GriffinCanCode/psearch/internal/shared/paths"
	"github.com/GriffinCanCode/psearch/internal/shared/types"
	"github.com/GriffinCanCode/psearch/internal/worker"
)

// ErrInvalidRequest is returned for requests no round can serve.
var ErrInvalidRequest = errors.New("invalid request")

// Request is one scatter-gather round. Files must already be prepared
// (see PrepareInputs); their order is the report order.
type Request struct {
	Word   string
	Files  []string
	Output string
}

// Validate checks the request before any resource is created.
func (r Request) Validate() error {
	switch {
	case r.Word == "":
		return fmt.Errorf("%w: empty target word", ErrInvalidRequest)
	case strings.IndexFunc(r.Word, unicode.IsSpace) >= 0:
		return fmt.Errorf("%w: target word %q contains whitespace", ErrInvalidRequest, r.Word)
	case r.Output == "":
		return fmt.Errorf("%w: empty output path", ErrInvalidRequest)
	}
	for i, f := range r.Files {
		if f == "" || strings.ContainsRune(f, '\n') {
			return fmt.Errorf("%w: input %d has an unusable path %q", ErrInvalidRequest, i, f)
		}
	}
	return nil
}

// Round describes a completed round.
type Round struct {
	RunID   id.RunID
	Channel ipc.Kind
	Report  *types.Report
	Summary Summary
	// Written reports whether the report was published to the output path.
	Written bool
}

// Coordinator runs scatter-gather rounds.
type Coordinator struct {
	cfg      *config.Config
	launcher Launcher
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
	logger   *logging.Logger
}

// New creates a coordinator. A nil metrics collects into a private registry.
func New(cfg *config.Config, launcher Launcher, metrics *monitoring.Metrics, logger *logging.Logger) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if launcher == nil {
		return nil, errors.New("coordinator needs a launcher")
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		cfg:      cfg,
		launcher: launcher,
		metrics:  metrics,
		tracer:   tracing.New(logger),
		logger:   logger.Named("coordinator"),
	}, nil
}

// Tracer returns the tracer recording round phases.
func (c *Coordinator) Tracer() *tracing.Tracer {
	return c.tracer
}

// Run dispatches one worker per file, waits for every worker to terminate,
// and writes the report in dispatch order. Failed tasks are returned as a
// *types.RoundError; under the mark policy input errors still produce a
// report with marker lines. Every channel resource is released before Run
// returns.
func (c *Coordinator) Run(ctx context.Context, req Request) (round *Round, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	kind, err := ipc.ParseKind(c.cfg.Channel.Kind)
	if err != nil {
		return nil, err
	}

	round = &Round{RunID: id.NewRunID(), Channel: kind}
	runLog := c.logger.With(zap.String("run", round.RunID.String()))
	log := runLog.With(zap.String("channel", string(kind)))
	log.Info("round starting", zap.Int("tasks", len(req.Files)))

	timer := c.metrics.StartRound(string(kind))
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "failed"
		}
		elapsed := timer.Stop(outcome)
		log.Info("round finished", zap.String("outcome", outcome), zap.Duration("elapsed", elapsed))
	}()

	run := paths.ForRun(c.cfg.Channel.RuntimeDir, round.RunID)
	if err := run.Create(); err != nil {
		return round, fmt.Errorf("%w: %v", types.ErrTransport, err)
	}
	defer func() {
		if rmErr := run.Remove(); rmErr != nil {
			log.Warn("failed to remove run directory", zap.String("dir", run.Dir()), zap.Error(rmErr))
		}
	}()

	ctx = tracing.WithTrace(ctx, round.RunID.String())
	tasks := types.NewTasks(req.Word, req.Files)

	span, _ := c.tracer.StartSpan(ctx, "open_channel")
	span.SetTag("channel", string(kind))
	set, err := ipc.Open(kind, ipc.Options{
		Run:           run,
		Tasks:         len(tasks),
		MaxFrameBytes: c.cfg.Channel.MaxFrameBytes,
		RegionBytes:   c.cfg.Channel.RegionBytes,
		AcceptGrace:   c.cfg.Channel.AcceptGrace.Std(),
		Logger:        runLog,
	})
	c.tracer.End(span, err)
	if err != nil {
		return round, fmt.Errorf("failed to open %s channel: %w", kind, withKind(err, types.ErrTransport))
	}
	defer func() {
		if closeErr := set.Close(); closeErr != nil {
			log.Warn("failed to release channel resources", zap.Error(closeErr))
		}
	}()

	invs, err := c.invocations(set, tasks)
	if err != nil {
		return round, err
	}

	span, spanCtx := c.tracer.StartSpan(ctx, "scatter_gather")
	deliveries, outcomes, err := c.scatterGather(spanCtx, set, invs)
	c.tracer.End(span, err)
	if err != nil {
		return round, err
	}

	span, _ = c.tracer.StartSpan(ctx, "reconcile")
	round.Report = c.reconcile(kind, tasks, deliveries, outcomes, log)
	round.Summary = Summarize(round.Report)
	c.tracer.End(span, nil)
	log.Info("round summary", round.Summary.field())

	failures := round.Report.Failures()
	if len(failures) > 0 {
		roundErr := &types.RoundError{Failures: failures}
		if c.cfg.Search.FailurePolicy != config.PolicyMark || anyFatal(failures) {
			return round, roundErr
		}
		if err := c.publish(ctx, req.Output, round); err != nil {
			return round, err
		}
		return round, roundErr
	}

	if err := c.publish(ctx, req.Output, round); err != nil {
		return round, err
	}
	return round, nil
}

func (c *Coordinator) publish(ctx context.Context, path string, round *Round) error {
	span, _ := c.tracer.StartSpan(ctx, "publish")
	err := WriteReport(path, round.Report)
	c.tracer.End(span, err)
	round.Written = err == nil
	return err
}

func (c *Coordinator) invocations(set ipc.Set, tasks []types.SearchTask) ([]worker.Invocation, error) {
	opts := search.Options{
		MaxTokenBytes: c.cfg.Search.MaxTokenBytes,
		RejectBinary:  c.cfg.Search.RejectBinary,
	}

	invs := make([]worker.Invocation, len(tasks))
	for i, task := range tasks {
		ep, err := set.Endpoint(i)
		if err != nil {
			return nil, err
		}
		invs[i] = worker.Invocation{Task: task, Endpoint: ep, Search: opts}
	}
	return invs, nil
}

// scatterGather runs the pool while collecting deliveries, and returns
// only after every worker has terminated.
func (c *Coordinator) scatterGather(ctx context.Context, set ipc.Set, invs []worker.Invocation) ([]ipc.Delivery, []Outcome, error) {
	pool := NewPool(c.launcher, c.cfg, c.metrics, c.logger)

	exited := make(chan struct{})
	var outcomes []Outcome
	go func() {
		defer close(exited)
		outcomes = pool.Run(ctx, invs, set.Handoff)
	}()

	deliveries, err := set.Collect(ctx, exited)
	<-exited
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, fmt.Errorf("failed to collect results: %w", withKind(err, types.ErrTransport))
	}
	return deliveries, outcomes, nil
}

// reconcile attributes every delivery to its task and explains every task
// left without one.
func (c *Coordinator) reconcile(kind ipc.Kind, tasks []types.SearchTask, deliveries []ipc.Delivery, outcomes []Outcome, log *logging.Logger) *types.Report {
	report := types.NewReport(tasks)
	fail := func(i int, k types.ErrorKind, err error) {
		report.Entries[i].Result = nil
		report.Fail(i, &types.TaskError{Kind: k, Index: i, Path: tasks[i].FilePath, Err: err})
	}

	for _, d := range deliveries {
		c.metrics.RecordFrame(string(kind), d.Bytes)

		i := d.Index
		if i < 0 || i >= len(tasks) {
			log.Warn("discarding unattributable delivery", zap.Int("task", i), zap.Error(d.Err))
			continue
		}
		task := tasks[i]
		entry := report.Entries[i]
		if entry.Result != nil || entry.Err != nil {
			fail(i, types.KindTransport, errors.New("more than one delivery"))
			continue
		}

		switch {
		case d.Err != nil:
			fail(i, types.KindTransport, d.Err)
		case d.Envelope.Status == ipc.StatusFailed:
			report.Fail(i, d.Envelope.TaskError(task.FilePath))
		default:
			result, err := d.Envelope.Result()
			if err == nil && (result.FilePath != task.FilePath || result.TargetWord != task.TargetWord) {
				err = fmt.Errorf("result for %q delivered for task %q", result.FilePath, task.FilePath)
			}
			if err == nil {
				err = report.Set(i, result)
			}
			if err != nil {
				fail(i, types.KindTransport, err)
			}
		}
	}

	for i, e := range report.Entries {
		if e.Result != nil || e.Err != nil {
			continue
		}
		o := outcomes[i]
		switch {
		case !o.Started:
			fail(i, types.KindSpawn, o.Err)
		case o.Err != nil:
			fail(i, types.KindTransport, fmt.Errorf("%w: %v", types.ErrNoResult, o.Err))
		default:
			fail(i, types.KindTransport, fmt.Errorf("%w (exit code %d)", types.ErrNoResult, o.ExitCode))
		}
	}

	for _, e := range report.Entries {
		status := "ok"
		if e.Err != nil {
			status = string(e.Err.Kind)
			log.Debug("task failed", zap.Int("task", e.Task.Index), zap.String("file", e.Task.FilePath), zap.Error(e.Err))
		} else {
			log.Debug("task done", zap.Int("task", e.Task.Index), zap.String("file", e.Task.FilePath))
		}
		c.metrics.RecordTask(string(kind), status)
	}
	return report
}

func anyFatal(failures []*types.TaskError) bool {
	for _, f := range failures {
		if f.Kind.Fatal() {
			return true
		}
	}
	return false
}

// withKind tags err with sentinel unless it already carries an error kind.
func withKind(err, sentinel error) error {
	for _, s := range []error{types.ErrInput, types.ErrTransport, types.ErrSpawn, types.ErrSync} {
		if errors.Is(err, s) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
