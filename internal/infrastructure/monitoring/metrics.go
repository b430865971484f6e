package monitoring

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	RoundsTotal   *prometheus.CounterVec
	RoundDuration *prometheus.HistogramVec
	TasksTotal    *prometheus.CounterVec
	FrameBytes    *prometheus.CounterVec
	SpawnFailures prometheus.Counter
	WorkersActive prometheus.Gauge

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for logging
type Snapshot struct {
	Rounds        int64
	Tasks         int64
	FailedTasks   int64
	FrameBytes    int64
	SpawnFailures int64
}

// NewMetrics creates a new metrics collector with its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RoundsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psearch_rounds_total",
				Help: "Total number of scatter-gather rounds",
			},
			[]string{"channel", "outcome"},
		),
		RoundDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "psearch_round_duration_seconds",
				Help:    "Round duration from channel creation to report publish",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"channel"},
		),
		TasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psearch_tasks_total",
				Help: "Total number of tasks by final status",
			},
			[]string{"channel", "status"},
		),
		FrameBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "psearch_frames_received_bytes_total",
				Help: "Frame bytes received by the coordinator",
			},
			[]string{"channel"},
		),
		SpawnFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "psearch_spawn_failures_total",
				Help: "Worker processes that could not be started",
			},
		),
		WorkersActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "psearch_workers_active",
				Help: "Worker processes currently running",
			},
		),
	}
}

// Registry exposes the underlying registry as a gatherer.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordTask records the final status of one task ("ok" or an error kind).
func (m *Metrics) RecordTask(channel, status string) {
	m.TasksTotal.WithLabelValues(channel, status).Inc()

	m.mu.Lock()
	m.snapshot.Tasks++
	if status != "ok" {
		m.snapshot.FailedTasks++
	}
	m.mu.Unlock()
}

// RecordFrame records the size of one received frame.
func (m *Metrics) RecordFrame(channel string, size int) {
	m.FrameBytes.WithLabelValues(channel).Add(float64(size))

	m.mu.Lock()
	m.snapshot.FrameBytes += int64(size)
	m.mu.Unlock()
}

// RecordSpawnFailure counts a worker that never started.
func (m *Metrics) RecordSpawnFailure() {
	m.SpawnFailures.Inc()

	m.mu.Lock()
	m.snapshot.SpawnFailures++
	m.mu.Unlock()
}

// WorkerStarted and WorkerExited track live worker processes.
func (m *Metrics) WorkerStarted() { m.WorkersActive.Inc() }
func (m *Metrics) WorkerExited()  { m.WorkersActive.Dec() }

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// RoundTimer times one round.
type RoundTimer struct {
	metrics *Metrics
	channel string
	start   time.Time
}

// StartRound starts timing a round on the given channel.
func (m *Metrics) StartRound(channel string) *RoundTimer {
	return &RoundTimer{metrics: m, channel: channel, start: time.Now()}
}

// Stop records the round outcome and duration.
func (t *RoundTimer) Stop(outcome string) time.Duration {
	elapsed := time.Since(t.start)
	t.metrics.RoundsTotal.WithLabelValues(t.channel, outcome).Inc()
	t.metrics.RoundDuration.WithLabelValues(t.channel).Observe(elapsed.Seconds())

	t.metrics.mu.Lock()
	t.metrics.snapshot.Rounds++
	t.metrics.mu.Unlock()
	return elapsed
}

// WriteTextfile writes every metric in the textfile exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
