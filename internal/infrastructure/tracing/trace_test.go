package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpansShareTheTrace(t *testing.T) {
	tracer := New(nil)
	ctx := WithTrace(context.Background(), "run_01ARZ3NDEKTSV4RRFFQ69G5FAV")

	root, ctx := tracer.StartSpan(ctx, "round")
	child, childCtx := tracer.StartSpan(ctx, "scatter_gather")
	child.SetTag("channel", "pipe")

	assert.Equal(t, TraceID("run_01ARZ3NDEKTSV4RRFFQ69G5FAV"), root.TraceID)
	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Equal(t, root.SpanID, child.ParentID)
	assert.Empty(t, root.ParentID)
	assert.Equal(t, child.SpanID, GetSpanID(childCtx))

	tracer.End(child, nil)
	tracer.End(root, errors.New("boom"))

	spans := tracer.Spans()
	require.Len(t, spans, 2)
	assert.Equal(t, "scatter_gather", spans[0].Name)
	assert.Equal(t, "pipe", spans[0].Tags["channel"])
	assert.NoError(t, spans[0].Error)
	assert.EqualError(t, spans[1].Error, "boom")
	assert.GreaterOrEqual(t, spans[1].Duration, spans[0].Duration)
}

func TestStartSpanWithoutTrace(t *testing.T) {
	tracer := New(nil)
	span, ctx := tracer.StartSpan(context.Background(), "open")

	assert.NotEmpty(t, span.TraceID)
	assert.Equal(t, span.TraceID, GetTraceID(ctx))
}
