package types

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportKeepsDispatchOrder(t *testing.T) {
	tasks := NewTasks("red", []string{"a.txt", "b.txt"})
	r := NewReport(tasks)

	// Arrival order is the reverse of dispatch order.
	require.NoError(t, r.Set(1, SearchResult{FilePath: "b.txt", TargetWord: "red", MatchCount: 2, TotalCount: 3}))
	require.NoError(t, r.Set(0, SearchResult{FilePath: "a.txt", TargetWord: "red", MatchCount: 1, TotalCount: 1}))

	var buf bytes.Buffer
	_, err := r.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, "a.txt  red  1/1\nb.txt  red  2/3\n", buf.String())
}

func TestReportRejectsDuplicateAndOutOfRange(t *testing.T) {
	r := NewReport(NewTasks("red", []string{"a.txt"}))
	res := SearchResult{FilePath: "a.txt", TargetWord: "red"}

	require.NoError(t, r.Set(0, res))
	assert.Error(t, r.Set(0, res))
	assert.Error(t, r.Set(1, res))
	assert.Error(t, r.Set(-1, res))
}

func TestReportMarkerLine(t *testing.T) {
	r := NewReport(NewTasks("red", []string{"a.txt", "missing.txt"}))
	require.NoError(t, r.Set(0, SearchResult{FilePath: "a.txt", TargetWord: "red", MatchCount: 1, TotalCount: 1}))
	r.Fail(1, &TaskError{Kind: KindInput, Index: 1, Path: "missing.txt", Err: errors.New("no such file")})

	assert.Equal(t, "a.txt  red  1/1\nmissing.txt  red  error: input\n", r.String())
	assert.Len(t, r.Results(), 1)
	require.Len(t, r.Failures(), 1)
	assert.Equal(t, 1, r.Failures()[0].Index)
}

func TestEmptyReport(t *testing.T) {
	r := NewReport(nil)
	assert.Empty(t, r.String())
	assert.Empty(t, r.Failures())
}
