package coordinator

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
)

// PrepareInputs de-duplicates and sorts the input paths. With expand set,
// directories are replaced by the regular files below them and glob
// patterns (including **) by their matches. Paths that do not exist are
// kept; the worker reports them as input errors.
func PrepareInputs(ctx context.Context, args []string, expand bool) ([]string, error) {
	var files []string
	for _, arg := range args {
		if !expand {
			files = append(files, arg)
			continue
		}
		expanded, err := expandArg(ctx, arg)
		if err != nil {
			return nil, err
		}
		files = append(files, expanded...)
	}

	slices.Sort(files)
	return slices.Compact(files), nil
}

func expandArg(ctx context.Context, arg string) ([]string, error) {
	if isPattern(arg) {
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", arg, err)
		}
		return matches, nil
	}

	info, err := os.Stat(arg)
	if err != nil || !info.IsDir() {
		return []string{arg}, nil
	}
	return walkDir(ctx, arg)
}

func isPattern(arg string) bool {
	return strings.ContainsAny(arg, "*?[{")
}

// walkDir lists the regular files under root.
func walkDir(ctx context.Context, root string) ([]string, error) {
	var (
		mu    sync.Mutex
		files []string
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		mu.Lock()
		files = append(files, p)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}
