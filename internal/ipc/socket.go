package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	dialTimeout   = 5 * time.Second
	dialRetryWait = 5 * time.Millisecond
	connReadLimit = 30 * time.Second
)

// socketSet serves one unix-domain listener for the whole round. Each
// worker connects once and writes one frame; the accept loop runs from
// Open so connections are served as they arrive.
type socketSet struct {
	opts     Options
	path     string
	listener *net.UnixListener

	deliveries chan Delivery
	closing    chan struct{}
	acceptDone chan struct{}
	conns      sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

func openSocketSet(opts Options) (Set, error) {
	path, err := opts.Run.SocketPath()
	if err != nil {
		return nil, err
	}
	if err := removeIfExists(path); err != nil {
		return nil, fmt.Errorf("failed to clear stale socket: %w", err)
	}

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", path, err)
	}
	ln.SetUnlinkOnClose(false)

	s := &socketSet{
		opts:       opts,
		path:       path,
		listener:   ln,
		deliveries: make(chan Delivery),
		closing:    make(chan struct{}),
		acceptDone: make(chan struct{}),
	}
	go s.acceptLoop()

	opts.Logger.Debug("listening", zap.String("socket", path))
	return s, nil
}

func (s *socketSet) acceptLoop() {
	defer func() {
		s.conns.Wait()
		close(s.acceptDone)
	}()

	for {
		conn, err := s.listener.AcceptUnix()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return
			}
			if !errors.Is(err, net.ErrClosed) {
				s.opts.Logger.Warn("accept failed", zap.Error(err))
			}
			return
		}
		s.conns.Add(1)
		go s.serve(conn)
	}
}

func (s *socketSet) serve(conn *net.UnixConn) {
	defer s.conns.Done()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(connReadLimit))
	env, n, err := ReadFrame(conn, s.opts.MaxFrameBytes)
	if errors.Is(err, io.EOF) {
		s.opts.Logger.Debug("connection closed without a frame")
		return
	}
	if err != nil {
		s.opts.Logger.Warn("bad frame", zap.Error(err))
		// The sender cannot be identified from a broken frame.
		env.Index = -1
	}

	select {
	case s.deliveries <- Delivery{Index: env.Index, Envelope: env, Bytes: n, Err: err}:
	case <-s.closing:
	}
}

func (s *socketSet) Kind() Kind { return KindSocket }

func (s *socketSet) Endpoint(index int) (Endpoint, error) {
	if err := checkIndex(index, s.opts.Tasks); err != nil {
		return Endpoint{}, err
	}
	return Endpoint{
		Kind:          KindSocket,
		Index:         index,
		Address:       s.path,
		MaxFrameBytes: s.opts.MaxFrameBytes,
	}, nil
}

func (s *socketSet) Handoff(int) error { return nil }

// Collect gathers frames as connections complete. Once every worker has
// exited the listener keeps accepting for the grace period, so
// connections still queued in the backlog are served, then stops.
func (s *socketSet) Collect(ctx context.Context, exited <-chan struct{}) ([]Delivery, error) {
	var deliveries []Delivery
	for {
		select {
		case d := <-s.deliveries:
			deliveries = append(deliveries, d)
		case <-exited:
			exited = nil
			if err := s.listener.SetDeadline(time.Now().Add(s.opts.AcceptGrace)); err != nil {
				return deliveries, fmt.Errorf("failed to arm accept deadline: %w", err)
			}
		case <-s.acceptDone:
			// Every connection is served; pick up anything still in flight.
			for {
				select {
				case d := <-s.deliveries:
					deliveries = append(deliveries, d)
				default:
					return deliveries, nil
				}
			}
		case <-ctx.Done():
			return deliveries, ctx.Err()
		}
	}
}

func (s *socketSet) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.closeErr = err
		}
		<-s.acceptDone
		s.closeErr = multierr.Append(s.closeErr, removeIfExists(s.path))
	})
	return s.closeErr
}

// socketSender dials the coordinator once per frame.
type socketSender struct {
	path string
	max  int
}

func dialSocket(ep Endpoint) (Sender, error) {
	if ep.Address == "" {
		return nil, errors.New("socket endpoint has no address")
	}
	return &socketSender{path: ep.Address, max: ep.MaxFrameBytes}, nil
}

func (s *socketSender) Send(ctx context.Context, env Envelope) error {
	frame, err := EncodeFrame(env, s.max)
	if err != nil {
		return err
	}

	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}
	return conn.CloseWrite()
}

// connect retries while the listener's backlog is full.
func (s *socketSender) connect(ctx context.Context) (*net.UnixConn, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "unix", s.path)
		if err == nil {
			return conn.(*net.UnixConn), nil
		}
		if !errors.Is(err, syscall.EAGAIN) {
			return nil, fmt.Errorf("failed to connect to %s: %w", s.path, err)
		}

		select {
		case <-time.After(dialRetryWait):
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to connect to %s: %w", s.path, ctx.Err())
		}
	}
}

func (s *socketSender) Close() error { return nil }

