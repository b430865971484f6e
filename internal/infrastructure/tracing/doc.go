/*
Package tracing times the phases of a round.

# Overview

A trace is one round and carries the round's run id; each phase (opening
the channel, scatter-gather, reconciliation, publishing the report) is a
span. Finished spans are logged at debug level with their duration and
kept on the tracer so callers can inspect them afterwards.

# Usage

	tracer := tracing.New(logger)
	ctx = tracing.WithTrace(ctx, runID.String())

	span, ctx := tracer.StartSpan(ctx, "scatter_gather")
	span.SetTag("channel", "pipe")
	err := work(ctx)
	tracer.End(span, err)
*/
package tracing
