package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies why a task or a round failed.
type ErrorKind string

const (
	KindInput     ErrorKind = "input"
	KindTransport ErrorKind = "transport"
	KindSpawn     ErrorKind = "spawn"
	KindSync      ErrorKind = "synchronization"
)

var (
	ErrInput     = errors.New("input error")
	ErrTransport = errors.New("transport error")
	ErrSpawn     = errors.New("spawn error")
	ErrSync      = errors.New("synchronization error")

	// ErrNoResult means a worker terminated without delivering anything.
	ErrNoResult = errors.New("worker terminated without delivering a result")
)

// Sentinel returns the sentinel error matching the kind.
func (k ErrorKind) Sentinel() error {
	switch k {
	case KindInput:
		return ErrInput
	case KindTransport:
		return ErrTransport
	case KindSpawn:
		return ErrSpawn
	case KindSync:
		return ErrSync
	default:
		return ErrTransport
	}
}

// Fatal reports whether a failure of this kind aborts the run regardless of
// the failure policy. Only input errors are local to their task.
func (k ErrorKind) Fatal() bool {
	return k != KindInput
}

// ParseErrorKind maps a wire string back to an ErrorKind.
func ParseErrorKind(s string) ErrorKind {
	switch ErrorKind(s) {
	case KindInput, KindTransport, KindSpawn, KindSync:
		return ErrorKind(s)
	default:
		return KindTransport
	}
}

// KindOf extracts the kind from err, defaulting to transport.
func KindOf(err error) ErrorKind {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Kind
	}
	switch {
	case errors.Is(err, ErrInput):
		return KindInput
	case errors.Is(err, ErrSpawn):
		return KindSpawn
	case errors.Is(err, ErrSync):
		return KindSync
	default:
		return KindTransport
	}
}

// TaskError is a failure attributed to one task.
type TaskError struct {
	Kind  ErrorKind
	Index int
	Path  string
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %d (%s): %s: %v", e.Index, e.Path, e.Kind, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *TaskError) Is(target error) bool {
	return target == e.Kind.Sentinel()
}

// RoundError aggregates every failed task of one round, ordered by index.
type RoundError struct {
	Failures []*TaskError
}

func (e *RoundError) Error() string {
	if len(e.Failures) == 1 {
		return "search failed: " + e.Failures[0].Error()
	}
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("search failed: %d tasks failed: %s", len(e.Failures), strings.Join(msgs, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *RoundError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}
