package ipc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/psearch/internal/infrastructure/logging"
	"github.com/GriffinCanCode/psearch/internal/shared/paths"
)

// Kind names a channel variant.
type Kind string

const (
	KindFile   Kind = "file"
	KindPipe   Kind = "pipe"
	KindShm    Kind = "shm"
	KindSocket Kind = "socket"
)

// InheritedFD is the descriptor number a pipe write end takes in a worker.
const InheritedFD = 3

// Kinds lists every channel variant.
func Kinds() []Kind {
	return []Kind{KindFile, KindPipe, KindShm, KindSocket}
}

// ParseKind validates a channel name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown channel kind %q", s)
}

func (k Kind) String() string { return string(k) }

// Endpoint is everything worker Index needs to reach the coordinator.
type Endpoint struct {
	Kind          Kind
	Index         int
	Address       string
	Gate          string
	Token         string
	MaxFrameBytes int

	// File is an inherited descriptor. On the coordinator side it is the
	// pipe write end to pass to the child; on the worker side it is the
	// descriptor the worker writes to.
	File *os.File
}

// Delivery is one frame received for one task.
type Delivery struct {
	Index    int
	Envelope Envelope
	Bytes    int
	Err      error
}

// Options configures a channel set for one round.
type Options struct {
	Run           paths.Run
	Tasks         int
	MaxFrameBytes int
	RegionBytes   int
	AcceptGrace   time.Duration
	Logger        *logging.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if o.RegionBytes <= 0 {
		o.RegionBytes = 1 << 20
	}
	if o.AcceptGrace <= 0 {
		o.AcceptGrace = 250 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
	return o
}

// Set is the coordinator side of one round's channels.
type Set interface {
	Kind() Kind
	// Endpoint describes what worker index receives.
	Endpoint(index int) (Endpoint, error)
	// Handoff releases the coordinator's copy of a worker-owned descriptor.
	// It is called once the worker was launched or will never be.
	Handoff(index int) error
	// Collect gathers deliveries in arrival order. exited is closed once
	// every worker has terminated. At most one delivery is returned per
	// task; a task with no delivery produced nothing.
	Collect(ctx context.Context, exited <-chan struct{}) ([]Delivery, error)
	// Close releases every resource of the set. It is idempotent.
	Close() error
}

// Sender is the worker side of a channel.
type Sender interface {
	Send(ctx context.Context, env Envelope) error
	Close() error
}

// Open creates the coordinator side of kind for opts.Tasks workers.
// The run directory must already exist.
func Open(kind Kind, opts Options) (Set, error) {
	if opts.Tasks < 0 {
		return nil, fmt.Errorf("negative task count %d", opts.Tasks)
	}
	opts = opts.withDefaults()
	opts.Logger = opts.Logger.Named("ipc").With(zap.String("channel", string(kind)))

	switch kind {
	case KindFile:
		return openFileSet(opts)
	case KindPipe:
		return openPipeSet(opts)
	case KindShm:
		return openShmSet(opts)
	case KindSocket:
		return openSocketSet(opts)
	default:
		return nil, fmt.Errorf("unknown channel kind %q", kind)
	}
}

// Dial opens the worker side of ep.
func Dial(ep Endpoint) (Sender, error) {
	switch ep.Kind {
	case KindFile:
		return dialFile(ep)
	case KindPipe:
		return dialPipe(ep)
	case KindShm:
		return dialShm(ep)
	case KindSocket:
		return dialSocket(ep)
	default:
		return nil, fmt.Errorf("unknown channel kind %q", ep.Kind)
	}
}

func checkIndex(index, tasks int) error {
	if index < 0 || index >= tasks {
		return fmt.Errorf("task index %d out of range [0,%d)", index, tasks)
	}
	return nil
}

// waitExited blocks until every worker terminated or ctx is done.
func waitExited(ctx context.Context, exited <-chan struct{}) error {
	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrMisrouted is reported when a per-task channel carries another task's frame.
var ErrMisrouted = errors.New("frame delivered on the wrong channel")

// attribute builds the delivery of a per-task channel.
func attribute(index int, env Envelope, n int, err error) Delivery {
	d := Delivery{Index: index, Envelope: env, Bytes: n, Err: err}
	if err == nil && env.Index != index {
		d.Err = fmt.Errorf("%w: task %d on channel %d", ErrMisrouted, env.Index, index)
	}
	return d
}
