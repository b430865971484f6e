package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// pipeOutcome is what one reader produced for its task.
type pipeOutcome struct {
	delivery Delivery
	ok       bool
}

// pipeSet owns one anonymous pipe per task. A reader goroutine per read
// end runs from Open onward, so a worker never blocks on a full pipe and
// deliveries surface in completion order.
type pipeSet struct {
	opts    Options
	readers []*os.File
	writers []*os.File

	mu       sync.Mutex
	handed   []bool
	outcomes chan pipeOutcome
	wg       sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

func openPipeSet(opts Options) (Set, error) {
	s := &pipeSet{
		opts:     opts,
		readers:  make([]*os.File, opts.Tasks),
		writers:  make([]*os.File, opts.Tasks),
		handed:   make([]bool, opts.Tasks),
		outcomes: make(chan pipeOutcome, opts.Tasks),
	}

	for i := 0; i < opts.Tasks; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			s.abort(i)
			return nil, fmt.Errorf("failed to create pipe for task %d: %w", i, err)
		}
		s.readers[i], s.writers[i] = r, w
	}

	for i, r := range s.readers {
		s.wg.Add(1)
		go s.read(i, r)
	}
	return s, nil
}

// abort closes the first n pipes after a failed Open.
func (s *pipeSet) abort(n int) {
	for i := 0; i < n; i++ {
		s.readers[i].Close()
		s.writers[i].Close()
	}
}

func (s *pipeSet) read(index int, r *os.File) {
	defer s.wg.Done()

	env, n, err := ReadFrame(r, s.opts.MaxFrameBytes)
	switch {
	case errors.Is(err, io.EOF):
		s.outcomes <- pipeOutcome{}
	case errors.Is(err, os.ErrClosed):
		s.outcomes <- pipeOutcome{}
	default:
		s.opts.Logger.Debug("frame read", zap.Int("task", index), zap.Int("bytes", n), zap.Error(err))
		s.outcomes <- pipeOutcome{delivery: attribute(index, env, n, err), ok: true}
	}
	// Nothing after the first frame is ever read.
	r.Close()
}

func (s *pipeSet) Kind() Kind { return KindPipe }

func (s *pipeSet) Endpoint(index int) (Endpoint, error) {
	if err := checkIndex(index, s.opts.Tasks); err != nil {
		return Endpoint{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handed[index] {
		return Endpoint{}, fmt.Errorf("pipe for task %d already handed off", index)
	}
	return Endpoint{
		Kind:          KindPipe,
		Index:         index,
		Address:       strconv.Itoa(InheritedFD),
		MaxFrameBytes: s.opts.MaxFrameBytes,
		File:          s.writers[index],
	}, nil
}

// Handoff closes the coordinator's write end so the reader sees EOF once
// the worker's copy is gone.
func (s *pipeSet) Handoff(index int) error {
	if err := checkIndex(index, s.opts.Tasks); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handed[index] {
		return nil
	}
	s.handed[index] = true
	return s.writers[index].Close()
}

func (s *pipeSet) Collect(ctx context.Context, _ <-chan struct{}) ([]Delivery, error) {
	deliveries := make([]Delivery, 0, s.opts.Tasks)
	for received := 0; received < s.opts.Tasks; received++ {
		select {
		case o := <-s.outcomes:
			if o.ok {
				deliveries = append(deliveries, o.delivery)
			}
		case <-ctx.Done():
			return deliveries, ctx.Err()
		}
	}
	return deliveries, nil
}

func (s *pipeSet) Close() error {
	s.closeOnce.Do(func() {
		for i := range s.writers {
			s.closeErr = multierr.Append(s.closeErr, s.Handoff(i))
		}
		for _, r := range s.readers {
			if err := r.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
				s.closeErr = multierr.Append(s.closeErr, err)
			}
		}
		s.wg.Wait()
	})
	return s.closeErr
}

// pipeSender writes to the inherited write end.
type pipeSender struct {
	file *os.File
	max  int
}

func dialPipe(ep Endpoint) (Sender, error) {
	f := ep.File
	if f == nil {
		fd, err := strconv.Atoi(ep.Address)
		if err != nil || fd < 0 {
			return nil, fmt.Errorf("invalid pipe descriptor %q", ep.Address)
		}
		f = os.NewFile(uintptr(fd), "pipe")
		if f == nil {
			return nil, fmt.Errorf("invalid pipe descriptor %d", fd)
		}
	}
	return &pipeSender{file: f, max: ep.MaxFrameBytes}, nil
}

func (s *pipeSender) Send(_ context.Context, env Envelope) error {
	_, err := WriteFrame(s.file, env, s.max)
	return err
}

func (s *pipeSender) Close() error { return s.file.Close() }
