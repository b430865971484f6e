// Package types provides the data model shared by the coordinator, the
// workers and every channel variant.
//
// Core Types:
//   - SearchTask: one input file paired with the target word
//   - SearchResult: per-file match and token counts
//   - Report: the aggregated, dispatch-ordered result set
//
// Errors:
//   - ErrorKind: input, transport, spawn, synchronization
//   - TaskError: a failure attributed to a single task
//   - RoundError: every failed task of one scatter-gather round
//
// Wire Form:
//
// A SearchResult travels as one text line with double-space separators:
//
//	a.txt  red  1/1
package types
