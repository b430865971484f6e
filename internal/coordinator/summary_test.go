package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/psearch/internal/shared/types"
)

func TestSummarize(t *testing.T) {
	tasks := types.NewTasks("red", []string{"a", "b", "c", "d"})
	report := types.NewReport(tasks)
	require.NoError(t, report.Set(0, types.SearchResult{FilePath: "a", TargetWord: "red", MatchCount: 1, TotalCount: 4}))
	require.NoError(t, report.Set(1, types.SearchResult{FilePath: "b", TargetWord: "red", MatchCount: 3, TotalCount: 4}))
	require.NoError(t, report.Set(2, types.SearchResult{FilePath: "c", TargetWord: "red", MatchCount: 0, TotalCount: 0}))
	report.Fail(3, &types.TaskError{Kind: types.KindInput, Index: 3, Path: "d"})

	s := Summarize(report)
	assert.Equal(t, 4, s.Files)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, uint64(8), s.Tokens)
	assert.Equal(t, uint64(4), s.Matches)
	// Ratios 0.25, 0.75 and 0: mean 1/3, sample variance 7/48.
	assert.InDelta(t, 1.0/3.0, s.MeanRatio, 1e-9)
	assert.InDelta(t, 0.3818813, s.StdDevRatio, 1e-6)
}

func TestSummarizeSingleAndEmpty(t *testing.T) {
	report := types.NewReport(types.NewTasks("red", []string{"a"}))
	assert.Equal(t, Summary{Files: 1, Failed: 1}, Summarize(report))

	require.NoError(t, report.Set(0, types.SearchResult{FilePath: "a", TargetWord: "red", MatchCount: 1, TotalCount: 2}))
	s := Summarize(report)
	assert.Equal(t, 0.5, s.MeanRatio)
	assert.Zero(t, s.StdDevRatio)
}
