package types

import (
	"fmt"
	"io"
	"strings"
)

// Entry is one report position: either a result or the failure that
// replaced it.
type Entry struct {
	Task   SearchTask
	Result *SearchResult
	Err    *TaskError
}

// Line renders the entry. Failed entries render as a marker line.
func (e Entry) Line() string {
	if e.Result != nil {
		return e.Result.Line()
	}
	kind := KindTransport
	if e.Err != nil {
		kind = e.Err.Kind
	}
	return MarkerLine(e.Task, kind)
}

// MarkerLine is written in place of a result when the partial-report
// policy is active.
func MarkerLine(task SearchTask, kind ErrorKind) string {
	return task.FilePath + FieldSeparator + task.TargetWord + FieldSeparator + "error: " + string(kind) + "\n"
}

// Report is the aggregated output of one round, one entry per task in
// dispatch order.
type Report struct {
	Entries []Entry
}

// NewReport allocates a report with one empty entry per task.
func NewReport(tasks []SearchTask) *Report {
	r := &Report{Entries: make([]Entry, len(tasks))}
	for i, t := range tasks {
		r.Entries[i].Task = t
	}
	return r
}

// Set stores the result for the task at index.
func (r *Report) Set(index int, res SearchResult) error {
	if index < 0 || index >= len(r.Entries) {
		return fmt.Errorf("result index %d out of range [0,%d)", index, len(r.Entries))
	}
	if r.Entries[index].Result != nil {
		return fmt.Errorf("duplicate result for task %d", index)
	}
	r.Entries[index].Result = &res
	return nil
}

// Fail records a failure for the task at index.
func (r *Report) Fail(index int, err *TaskError) {
	if index < 0 || index >= len(r.Entries) {
		return
	}
	r.Entries[index].Err = err
}

// Results returns the successful results in dispatch order.
func (r *Report) Results() []SearchResult {
	out := make([]SearchResult, 0, len(r.Entries))
	for _, e := range r.Entries {
		if e.Result != nil {
			out = append(out, *e.Result)
		}
	}
	return out
}

// Failures returns every failed entry's error in dispatch order.
func (r *Report) Failures() []*TaskError {
	var out []*TaskError
	for _, e := range r.Entries {
		if e.Err != nil {
			out = append(out, e.Err)
		}
	}
	return out
}

// String renders the whole report.
func (r *Report) String() string {
	var b strings.Builder
	for _, e := range r.Entries {
		b.WriteString(e.Line())
	}
	return b.String()
}

// WriteTo writes the report lines to w.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, r.String())
	return int64(n), err
}
