package types

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldSeparator separates the fields of a serialized result line.
const FieldSeparator = "  "

// SearchTask is one unit of scatter work: count TargetWord in FilePath.
type SearchTask struct {
	Index      int    `json:"index"`
	FilePath   string `json:"file_path"`
	TargetWord string `json:"target_word"`
}

// NewTasks builds one task per path, indexed in the given order.
func NewTasks(word string, paths []string) []SearchTask {
	tasks := make([]SearchTask, len(paths))
	for i, p := range paths {
		tasks[i] = SearchTask{Index: i, FilePath: p, TargetWord: word}
	}
	return tasks
}

// SearchResult holds the counts produced by one worker for one task.
type SearchResult struct {
	FilePath   string `json:"file_path"`
	TargetWord string `json:"target_word"`
	MatchCount uint64 `json:"match_count"`
	TotalCount uint64 `json:"total_count"`
}

// Ratio returns MatchCount/TotalCount, or 0 for an empty file.
func (r SearchResult) Ratio() float64 {
	if r.TotalCount == 0 {
		return 0
	}
	return float64(r.MatchCount) / float64(r.TotalCount)
}

// Line serializes the result as "<path>  <word>  <matches>/<total>\n".
func (r SearchResult) Line() string {
	var b strings.Builder
	b.Grow(len(r.FilePath) + len(r.TargetWord) + 32)
	b.WriteString(r.FilePath)
	b.WriteString(FieldSeparator)
	b.WriteString(r.TargetWord)
	b.WriteString(FieldSeparator)
	b.WriteString(strconv.FormatUint(r.MatchCount, 10))
	b.WriteByte('/')
	b.WriteString(strconv.FormatUint(r.TotalCount, 10))
	b.WriteByte('\n')
	return b.String()
}

// Validate checks the invariants a result line must satisfy on the wire.
func (r SearchResult) Validate() error {
	if strings.ContainsAny(r.FilePath, "\n") || strings.ContainsAny(r.TargetWord, "\n") {
		return fmt.Errorf("result fields must not contain newlines")
	}
	if r.MatchCount > r.TotalCount {
		return fmt.Errorf("match count %d exceeds total count %d", r.MatchCount, r.TotalCount)
	}
	return nil
}

// ParseLine parses a line produced by SearchResult.Line. The trailing
// newline is optional.
func ParseLine(line string) (SearchResult, error) {
	line = strings.TrimSuffix(line, "\n")
	if strings.Contains(line, "\n") {
		return SearchResult{}, fmt.Errorf("result line contains embedded newline")
	}

	// The path may itself contain the separator, so split from the right.
	countsAt := strings.LastIndex(line, FieldSeparator)
	if countsAt < 0 {
		return SearchResult{}, fmt.Errorf("malformed result line %q", line)
	}
	head, counts := line[:countsAt], line[countsAt+len(FieldSeparator):]

	wordAt := strings.LastIndex(head, FieldSeparator)
	if wordAt < 0 {
		return SearchResult{}, fmt.Errorf("malformed result line %q", line)
	}
	path, word := head[:wordAt], head[wordAt+len(FieldSeparator):]

	matches, total, ok := strings.Cut(counts, "/")
	if !ok {
		return SearchResult{}, fmt.Errorf("malformed counts %q", counts)
	}
	m, err := strconv.ParseUint(matches, 10, 64)
	if err != nil {
		return SearchResult{}, fmt.Errorf("malformed match count: %w", err)
	}
	t, err := strconv.ParseUint(total, 10, 64)
	if err != nil {
		return SearchResult{}, fmt.Errorf("malformed total count: %w", err)
	}

	res := SearchResult{FilePath: path, TargetWord: word, MatchCount: m, TotalCount: t}
	if err := res.Validate(); err != nil {
		return SearchResult{}, err
	}
	return res, nil
}
