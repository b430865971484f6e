package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const tempPattern = ".task-*.tmp"

// fileSet collects one artifact per task from the run directory. Artifacts
// are only read after every worker has exited, in dispatch order.
type fileSet struct {
	opts Options

	closeOnce sync.Once
	closeErr  error
}

func openFileSet(opts Options) (Set, error) {
	info, err := os.Stat(opts.Run.Dir())
	if err != nil {
		return nil, fmt.Errorf("run directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("run directory %s is not a directory", opts.Run.Dir())
	}
	return &fileSet{opts: opts}, nil
}

func (s *fileSet) Kind() Kind { return KindFile }

func (s *fileSet) Endpoint(index int) (Endpoint, error) {
	if err := checkIndex(index, s.opts.Tasks); err != nil {
		return Endpoint{}, err
	}
	return Endpoint{
		Kind:          KindFile,
		Index:         index,
		Address:       s.opts.Run.ArtifactPath(index),
		MaxFrameBytes: s.opts.MaxFrameBytes,
	}, nil
}

func (s *fileSet) Handoff(int) error { return nil }

func (s *fileSet) Collect(ctx context.Context, exited <-chan struct{}) ([]Delivery, error) {
	if err := waitExited(ctx, exited); err != nil {
		return nil, err
	}

	deliveries := make([]Delivery, 0, s.opts.Tasks)
	for i := 0; i < s.opts.Tasks; i++ {
		d, ok := s.read(i)
		if ok {
			deliveries = append(deliveries, d)
		}
	}
	return deliveries, nil
}

func (s *fileSet) read(index int) (Delivery, bool) {
	path := s.opts.Run.ArtifactPath(index)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		s.opts.Logger.Debug("no artifact", zap.Int("task", index))
		return Delivery{}, false
	}
	if err != nil {
		return Delivery{Index: index, Err: err}, true
	}
	defer f.Close()

	env, n, err := ReadFrame(f, s.opts.MaxFrameBytes)
	if errors.Is(err, io.EOF) {
		return Delivery{}, false
	}
	return attribute(index, env, n, err), true
}

func (s *fileSet) Close() error {
	s.closeOnce.Do(func() {
		for i := 0; i < s.opts.Tasks; i++ {
			s.closeErr = multierr.Append(s.closeErr, removeIfExists(s.opts.Run.ArtifactPath(i)))
		}
		leftovers, _ := filepath.Glob(filepath.Join(s.opts.Run.Dir(), tempPattern))
		for _, p := range leftovers {
			s.closeErr = multierr.Append(s.closeErr, removeIfExists(p))
		}
	})
	return s.closeErr
}

// fileSender publishes its frame with a temp file and an atomic rename so
// the coordinator never observes a partial artifact.
type fileSender struct {
	path string
	max  int
}

func dialFile(ep Endpoint) (Sender, error) {
	if ep.Address == "" {
		return nil, errors.New("file endpoint has no artifact path")
	}
	return &fileSender{path: ep.Address, max: ep.MaxFrameBytes}, nil
}

func (s *fileSender) Send(_ context.Context, env Envelope) error {
	frame, err := EncodeFrame(env, s.max)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), tempPattern)
	if err != nil {
		return fmt.Errorf("failed to create artifact: %w", err)
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(frame)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpName, s.path)
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to publish artifact: %w", err)
	}
	return nil
}

func (s *fileSender) Close() error { return nil }

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
