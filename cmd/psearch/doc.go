// Package main is the psearch command: a scatter-gather word counter that
// runs one worker process per input file and collects the results over a
// configurable inter-process channel.
//
// Usage:
//
//	psearch [flags] <target_word> <input_file_count> <file_1> ... <file_n> <output_file>
//
// The report has one line per input, ordered by sorted path:
//
//	<path>  <word>  <matches>/<total>
//
// Channels:
//   - file: one artifact per task, read after all workers exit
//   - pipe: one pipe per task, read as soon as each is ready
//   - shm: one shared region appended under a file lock
//   - socket: one unix-domain listener, one connection per task
//
// Configuration:
//   - Environment variables (PSEARCH_*, LOG_LEVEL, LOG_DEV)
//   - A TOML or YAML file given with -config
//   - CLI flags (override both)
//
// Exit codes: 0 success, 1 run failure, 2 usage error.
//
// The same binary is the worker: with PSEARCH_ROLE=worker in the
// environment it runs a single task and exits.
package main
