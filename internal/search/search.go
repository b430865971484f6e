package search

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/GriffinCanCode/psearch/internal/shared/types"
)

// ctxCheckEvery is how many tokens are scanned between cancellation checks.
const ctxCheckEvery = 4096

// ErrTokenTooLong is returned when a single token exceeds Options.MaxTokenBytes.
var ErrTokenTooLong = errors.New("token exceeds maximum length")

// Counts is the tally of one scan.
type Counts struct {
	Matches uint64
	Total   uint64
}

// Count tokenizes r on whitespace and counts tokens equal to target.
func Count(ctx context.Context, r io.Reader, target string, maxToken int) (Counts, error) {
	if maxToken <= 0 {
		maxToken = bufio.MaxScanTokenSize
	}
	initial := 64 << 10
	if initial > maxToken {
		initial = maxToken
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initial), maxToken)
	scanner.Split(bufio.ScanWords)

	var c Counts
	for scanner.Scan() {
		c.Total++
		if string(scanner.Bytes()) == target {
			c.Matches++
		}
		if c.Total%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return c, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return c, fmt.Errorf("%w (limit %d bytes)", ErrTokenTooLong, maxToken)
		}
		return c, err
	}
	return c, nil
}

// Search runs one task to completion and produces its result. Failures to
// read the input are returned as a *types.TaskError of kind input;
// cancellation is returned as is.
func Search(ctx context.Context, task types.SearchTask, opts Options) (types.SearchResult, error) {
	src, err := Open(task.FilePath, opts)
	if err != nil {
		return types.SearchResult{}, inputError(task, err)
	}
	defer src.Close()

	counts, err := Count(ctx, src, task.TargetWord, opts.MaxTokenBytes)
	if err != nil {
		err = fmt.Errorf("scan %s: %w", task.FilePath, err)
		if ctx.Err() != nil {
			return types.SearchResult{}, err
		}
		return types.SearchResult{}, inputError(task, err)
	}

	return types.SearchResult{
		FilePath:   task.FilePath,
		TargetWord: task.TargetWord,
		MatchCount: counts.Matches,
		TotalCount: counts.Total,
	}, nil
}

func inputError(task types.SearchTask, err error) error {
	return &types.TaskError{Kind: types.KindInput, Index: task.Index, Path: task.FilePath, Err: err}
}
