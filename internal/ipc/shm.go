package ipc

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/GriffinCanCode/psearch/internal/shared/types"
)

// Region layout:
//
//	[0:4)   magic "PSRG"
//	[4:20)  token, the uuid of the round
//	[20:24) bytes used in the data area
//	[24:28) number of frames appended
//	[32:)   frames, back to back
const (
	regionMagic      = "PSRG"
	regionTokenAt    = 4
	regionUsedAt     = 20
	regionCountAt    = 24
	RegionHeaderSize = 32
)

// ErrRegionFull is returned when a frame does not fit in the remaining space.
var ErrRegionFull = errors.New("shared region is full")

// region is a mapping of the round's shared segment.
type region struct {
	path string
	file *os.File
	mem  []byte
}

func mapRegion(path string, f *os.File, size int) (*region, error) {
	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %s: %v", types.ErrSync, path, err)
	}
	return &region{path: path, file: f, mem: mem}, nil
}

func (r *region) token() []byte { return r.mem[regionTokenAt:regionUsedAt] }
func (r *region) used() int     { return int(binary.BigEndian.Uint32(r.mem[regionUsedAt:])) }
func (r *region) count() int    { return int(binary.BigEndian.Uint32(r.mem[regionCountAt:])) }
func (r *region) data() []byte  { return r.mem[RegionHeaderSize:] }

func (r *region) verify(token uuid.UUID) error {
	if string(r.mem[:regionTokenAt]) != regionMagic {
		return fmt.Errorf("%w: region %s has bad magic", types.ErrSync, r.path)
	}
	if !bytes.Equal(r.token(), token[:]) {
		return fmt.Errorf("%w: region %s belongs to another round", types.ErrSync, r.path)
	}
	if r.used() > len(r.data()) {
		return fmt.Errorf("%w: region %s is corrupt (used %d of %d)", types.ErrSync, r.path, r.used(), len(r.data()))
	}
	return nil
}

// appendFrame must be called with the gate held.
func (r *region) appendFrame(frame []byte) error {
	used := r.used()
	if used+len(frame) > len(r.data()) {
		return fmt.Errorf("%w: need %d bytes, %d free", ErrRegionFull, len(frame), len(r.data())-used)
	}
	copy(r.data()[used:], frame)
	binary.BigEndian.PutUint32(r.mem[regionUsedAt:], uint32(used+len(frame)))
	binary.BigEndian.PutUint32(r.mem[regionCountAt:], uint32(r.count()+1))
	return nil
}

func (r *region) unmap() error {
	var err error
	if r.mem != nil {
		err = unix.Munmap(r.mem)
		r.mem = nil
	}
	return multierr.Append(err, r.file.Close())
}

// shmSet owns the round's shared region and its gate. Workers append
// frames inside the gate; the coordinator reads them in append order once
// every worker has exited.
type shmSet struct {
	opts   Options
	token  uuid.UUID
	region *region
	gate   *Gate

	closeOnce sync.Once
	closeErr  error
}

func openShmSet(opts Options) (Set, error) {
	path := opts.Run.RegionPath()
	size := RegionHeaderSize + opts.RegionBytes

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: create region: %v", types.ErrSync, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: size region: %v", types.ErrSync, err)
	}

	r, err := mapRegion(path, f, size)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}

	gate, err := CreateGate(opts.Run.GatePath())
	if err != nil {
		r.unmap()
		os.Remove(path)
		return nil, err
	}

	token := uuid.New()
	copy(r.mem, regionMagic)
	copy(r.token(), token[:])

	opts.Logger.Debug("region created", zap.String("path", path), zap.Int("bytes", size))
	return &shmSet{opts: opts, token: token, region: r, gate: gate}, nil
}

func (s *shmSet) Kind() Kind { return KindShm }

func (s *shmSet) Endpoint(index int) (Endpoint, error) {
	if err := checkIndex(index, s.opts.Tasks); err != nil {
		return Endpoint{}, err
	}
	return Endpoint{
		Kind:          KindShm,
		Index:         index,
		Address:       s.region.path,
		Gate:          s.gate.Path(),
		Token:         s.token.String(),
		MaxFrameBytes: s.opts.MaxFrameBytes,
	}, nil
}

func (s *shmSet) Handoff(int) error { return nil }

func (s *shmSet) Collect(ctx context.Context, exited <-chan struct{}) ([]Delivery, error) {
	if err := waitExited(ctx, exited); err != nil {
		return nil, err
	}

	var deliveries []Delivery
	err := s.gate.Do(ctx, func() error {
		if err := s.region.verify(s.token); err != nil {
			return err
		}
		var err error
		deliveries, err = s.scan()
		return err
	})
	return deliveries, err
}

// scan decodes every appended frame. A frame that cannot be decoded makes
// the rest of the region unreadable, so it fails the whole collection.
func (s *shmSet) scan() ([]Delivery, error) {
	data := s.region.data()[:s.region.used()]
	want := s.region.count()

	deliveries := make([]Delivery, 0, want)
	for off := 0; off < len(data); {
		env, n, err := DecodeFrame(data[off:], s.opts.MaxFrameBytes)
		if err != nil {
			return deliveries, fmt.Errorf("%w: frame at offset %d: %v", types.ErrSync, off, err)
		}
		deliveries = append(deliveries, Delivery{Index: env.Index, Envelope: env, Bytes: n})
		off += n
	}
	if len(deliveries) != want {
		return deliveries, fmt.Errorf("%w: region holds %d frames, header says %d", types.ErrSync, len(deliveries), want)
	}
	return deliveries, nil
}

func (s *shmSet) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = multierr.Combine(
			s.region.unmap(),
			removeIfExists(s.region.path),
			s.gate.Destroy(),
		)
	})
	return s.closeErr
}

// shmSender appends one frame to the region inside the gate.
type shmSender struct {
	region *region
	gate   *Gate
	max    int
}

func dialShm(ep Endpoint) (Sender, error) {
	token, err := uuid.Parse(ep.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid region token: %v", types.ErrSync, err)
	}

	f, err := os.OpenFile(ep.Address, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open region: %v", types.ErrSync, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat region: %v", types.ErrSync, err)
	}
	if info.Size() < RegionHeaderSize {
		f.Close()
		return nil, fmt.Errorf("%w: region %s too small", types.ErrSync, ep.Address)
	}

	r, err := mapRegion(ep.Address, f, int(info.Size()))
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := r.verify(token); err != nil {
		r.unmap()
		return nil, err
	}

	gate, err := OpenGate(ep.Gate)
	if err != nil {
		r.unmap()
		return nil, err
	}
	return &shmSender{region: r, gate: gate, max: ep.MaxFrameBytes}, nil
}

func (s *shmSender) Send(ctx context.Context, env Envelope) error {
	frame, err := EncodeFrame(env, s.max)
	if err != nil {
		return err
	}
	return s.gate.Do(ctx, func() error {
		return s.region.appendFrame(frame)
	})
}

func (s *shmSender) Close() error {
	return multierr.Append(s.region.unmap(), s.gate.Close())
}
