package ipc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/GriffinCanCode/psearch/internal/shared/types"
)

const (
	gatePollMin = time.Millisecond
	gatePollMax = 20 * time.Millisecond
)

// ErrGateNotHeld is returned by Release when the caller does not hold the gate.
var ErrGateNotHeld = errors.New("gate is not held")

// Gate is a named binary semaphore shared by every process of a round.
// Across processes it is an exclusive flock(2) on a file; within one
// process a channel semaphore serializes users of the same descriptor,
// since flock is per open file description.
type Gate struct {
	path  string
	file  *os.File
	sem   chan struct{}
	owner bool

	closeOnce sync.Once
	closeErr  error
}

// CreateGate creates the gate file. It fails if the file already exists.
func CreateGate(path string) (*Gate, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: create gate: %v", types.ErrSync, err)
	}
	return newGate(path, f, true), nil
}

// OpenGate opens an existing gate created by the coordinator.
func OpenGate(path string) (*Gate, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open gate: %v", types.ErrSync, err)
	}
	return newGate(path, f, false), nil
}

func newGate(path string, f *os.File, owner bool) *Gate {
	return &Gate{
		path:  path,
		file:  f,
		sem:   make(chan struct{}, 1),
		owner: owner,
	}
}

// Path returns the gate's file name.
func (g *Gate) Path() string {
	return g.path
}

// Acquire blocks until the caller holds the gate or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: acquire gate: %v", types.ErrSync, ctx.Err())
	}

	wait := gatePollMin
	for {
		err := unix.Flock(int(g.file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			<-g.sem
			return fmt.Errorf("%w: lock gate: %v", types.ErrSync, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			<-g.sem
			return fmt.Errorf("%w: acquire gate: %v", types.ErrSync, ctx.Err())
		}
		if wait *= 2; wait > gatePollMax {
			wait = gatePollMax
		}
	}
}

// Release gives the gate up.
func (g *Gate) Release() error {
	select {
	case <-g.sem:
	default:
		return ErrGateNotHeld
	}
	if err := unix.Flock(int(g.file.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("%w: unlock gate: %v", types.ErrSync, err)
	}
	return nil
}

// Do runs fn while holding the gate. The gate is released on every path,
// including a panic in fn.
func (g *Gate) Do(ctx context.Context, fn func() error) (err error) {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, g.Release())
	}()
	return fn()
}

// Close releases the descriptor without removing the gate.
func (g *Gate) Close() error {
	g.closeOnce.Do(func() {
		g.closeErr = g.file.Close()
	})
	return g.closeErr
}

// Destroy closes the gate and removes its name. Only the creator destroys.
func (g *Gate) Destroy() error {
	err := g.Close()
	if g.owner {
		if rmErr := os.Remove(g.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = multierr.Append(err, rmErr)
		}
	}
	return err
}
