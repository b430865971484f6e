package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/psearch/internal/shared/types"
)

// HeaderBytes is the size of the length prefix in front of every frame.
const HeaderBytes = 4

// DefaultMaxFrameBytes bounds a frame when no limit is configured.
const DefaultMaxFrameBytes = 1 << 20

var (
	// ErrFrameTooLarge is returned instead of truncating an oversized frame.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
	// ErrEmptyFrame is returned for a frame announcing a zero-length payload.
	ErrEmptyFrame = errors.New("frame has empty payload")
	// ErrMalformedFrame is returned for payloads that do not decode to an envelope.
	ErrMalformedFrame = errors.New("malformed frame")
)

// Status tells whether a worker produced a result.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Envelope is the payload of one frame: a worker's single delivery.
type Envelope struct {
	Index  int    `json:"index"`
	Status Status `json:"status"`
	Line   string `json:"line,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ResultEnvelope wraps a successful result.
func ResultEnvelope(index int, result types.SearchResult) Envelope {
	return Envelope{Index: index, Status: StatusOK, Line: result.Line()}
}

// FailureEnvelope reports a task failure.
func FailureEnvelope(index int, kind types.ErrorKind, err error) Envelope {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Envelope{Index: index, Status: StatusFailed, Kind: string(kind), Error: msg}
}

// Validate checks the envelope is internally consistent.
func (e Envelope) Validate() error {
	if e.Index < 0 {
		return fmt.Errorf("%w: negative task index %d", ErrMalformedFrame, e.Index)
	}
	switch e.Status {
	case StatusOK:
		if _, err := types.ParseLine(e.Line); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
	case StatusFailed:
		if e.Kind == "" {
			return fmt.Errorf("%w: failure without kind", ErrMalformedFrame)
		}
	default:
		return fmt.Errorf("%w: unknown status %q", ErrMalformedFrame, e.Status)
	}
	return nil
}

// Result parses the carried result line.
func (e Envelope) Result() (types.SearchResult, error) {
	if e.Status != StatusOK {
		return types.SearchResult{}, fmt.Errorf("envelope for task %d carries no result", e.Index)
	}
	return types.ParseLine(e.Line)
}

// TaskError converts a failed envelope into the error it reports.
func (e Envelope) TaskError(path string) *types.TaskError {
	kind := types.ParseErrorKind(e.Kind)
	return &types.TaskError{
		Kind:  kind,
		Index: e.Index,
		Path:  path,
		Err:   errors.New(e.Error),
	}
}

func limit(max int) int {
	if max <= 0 {
		return DefaultMaxFrameBytes
	}
	return max
}

// EncodeFrame returns the length-prefixed encoding of env.
func EncodeFrame(env Envelope, max int) ([]byte, error) {
	payload, err := sonic.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	if len(payload) > limit(max) {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, len(payload), limit(max))
	}

	frame := make([]byte, HeaderBytes+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[HeaderBytes:], payload)
	return frame, nil
}

// WriteFrame writes one frame to w and returns its size on the wire.
func WriteFrame(w io.Writer, env Envelope, max int) (int, error) {
	frame, err := EncodeFrame(env, max)
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(frame); err != nil {
		return 0, fmt.Errorf("failed to write frame: %w", err)
	}
	return len(frame), nil
}

// ReadFrame reads one frame from r. A stream that ends before the first
// byte returns io.EOF; one that ends inside a frame returns
// io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader, max int) (Envelope, int, error) {
	var header [HeaderBytes]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Envelope{}, 0, err
	}

	size, err := checkSize(binary.BigEndian.Uint32(header[:]), max)
	if err != nil {
		return Envelope{}, 0, err
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Envelope{}, 0, err
	}

	env, err := decodePayload(payload)
	return env, HeaderBytes + size, err
}

// DecodeFrame decodes the frame at the start of buf and returns the number
// of bytes it occupies.
func DecodeFrame(buf []byte, max int) (Envelope, int, error) {
	if len(buf) < HeaderBytes {
		return Envelope{}, 0, io.ErrUnexpectedEOF
	}
	size, err := checkSize(binary.BigEndian.Uint32(buf), max)
	if err != nil {
		return Envelope{}, 0, err
	}
	if len(buf) < HeaderBytes+size {
		return Envelope{}, 0, io.ErrUnexpectedEOF
	}

	env, err := decodePayload(buf[HeaderBytes : HeaderBytes+size])
	return env, HeaderBytes + size, err
}

func checkSize(size uint32, max int) (int, error) {
	if size == 0 {
		return 0, ErrEmptyFrame
	}
	if uint64(size) > uint64(limit(max)) {
		return 0, fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, size, limit(max))
	}
	return int(size), nil
}

func decodePayload(payload []byte) (Envelope, error) {
	var env Envelope
	if err := sonic.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
