/*
Package monitoring provides metrics collection for scatter-gather rounds.

# Overview

Metrics live in a per-process Prometheus registry. A CLI run has no
scrape endpoint, so the registry is written once to a node-exporter
textfile when the round ends.

# Metrics

- psearch_rounds_total{channel,outcome}
- psearch_round_duration_seconds{channel}
- psearch_tasks_total{channel,status}
- psearch_frames_received_bytes_total{channel}
- psearch_spawn_failures_total
- psearch_workers_active

# Usage

	metrics := monitoring.NewMetrics()
	timer := metrics.StartRound("pipe")
	// ... run the round ...
	timer.Stop("success")
	err := metrics.WriteTextfile("/var/lib/node_exporter/psearch.prom")
*/
package monitoring
