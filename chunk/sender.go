package chunk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/flowchartsman/retry"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/oy3o/wire"
)

// Destination receives encoded frames of a transfer.
type Destination interface {
	Name() string
	Send(ctx context.Context, frame []byte) error
}

type destinationFunc struct {
	name string
	fn   func(ctx context.Context, frame []byte) error
}

func (d *destinationFunc) Name() string                                 { return d.name }
func (d *destinationFunc) Send(ctx context.Context, frame []byte) error { return d.fn(ctx, frame) }

// DestinationFunc adapts a function to a Destination.
func DestinationFunc(name string, fn func(ctx context.Context, frame []byte) error) Destination {
	return &destinationFunc{name: name, fn: fn}
}

// Transfer describes one outgoing stream.
type Transfer struct {
	// Channel selects the receiver callback.
	Channel string
	// Extra travels on the open frame only.
	Extra []byte
	// Source is read to the end, or up to Length bytes when Length >= 0.
	Source io.Reader
	// Length is the declared total size, -1 when unknown.
	Length       int64
	Destinations []Destination
}

// Result is the outcome of a transfer as seen by the sender.
type Result struct {
	Session uuid.UUID
	Status  Status
	Err     error
	Frames  int
	Bytes   int64
}

// Pending is a transfer in flight.
type Pending struct {
	session  uuid.UUID
	done     chan struct{}
	result   Result
	cancel   context.CancelFunc
	timedOut *atomic.Bool
}

func (p *Pending) Session() uuid.UUID { return p.session }

// Done is closed when the transfer goroutine returns.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Await blocks until the transfer finishes or timeout elapses. A timeout
// cancels the transfer and resolves to StatusTimeout; it is never reported as
// a panic or a blocked call. Once timed out, the pending stays timed out.
func (p *Pending) Await(timeout time.Duration) Result {
	if p.timedOut.Load() {
		return p.timeoutResult()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return p.result
	case <-timer.C:
		p.timedOut.Store(true)
		p.cancel()
		return p.timeoutResult()
	}
}

func (p *Pending) timeoutResult() Result {
	return Result{Session: p.session, Status: StatusTimeout, Err: ErrTimeout}
}

// Sender splits streams into frames and fans them out to destinations.
type Sender struct {
	s       *settings
	encoder *zstd.Encoder
}

func NewSender(opts ...Option) (*Sender, error) {
	s := apply(opts)
	sender := &Sender{s: s}
	if s.compress {
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithWindowSize(512<<10),
			zstd.WithEncoderConcurrency(1),
			zstd.WithLowerEncoderMem(true),
			zstd.WithZeroFrames(true),
		)
		if err != nil {
			return nil, fmt.Errorf("chunk: create zstd encoder: %w", err)
		}
		sender.encoder = enc
	}
	return sender, nil
}

// Close releases the compressor.
func (s *Sender) Close() error {
	if s.encoder != nil {
		return s.encoder.Close()
	}
	return nil
}

// Transfer starts sending t in the background.
func (s *Sender) Transfer(ctx context.Context, t Transfer) *Pending {
	ctx, cancel := context.WithCancel(ctx)
	p := &Pending{
		session:  uuid.New(),
		done:     make(chan struct{}),
		cancel:   cancel,
		timedOut: atomic.NewBool(false),
	}
	go func() {
		defer close(p.done)
		defer cancel()
		p.result = s.run(ctx, p.session, t)
	}()
	return p
}

func (s *Sender) run(ctx context.Context, id uuid.UUID, t Transfer) (res Result) {
	res.Session = id
	logger := s.s.logger.With("session", id.String())
	defer func() {
		if r := recover(); r != nil {
			res.Status, res.Err = StatusFailure, fmt.Errorf("chunk: transfer panicked: %v", r)
		}
		if res.Status == StatusFailure {
			logger.Warnf("transfer on %q failed after %d frames: %v", t.Channel, res.Frames, res.Err)
		}
	}()

	if len(t.Destinations) == 0 {
		res.Status = StatusSuccess
		return res
	}

	src := t.Source
	if src == nil {
		src = bytes.NewReader(nil)
	}
	size := s.s.chunkSize
	if t.Length >= 0 {
		src = io.LimitReader(src, t.Length)
		logger.Debugf("transfer on %q: %d bytes in %d frames",
			t.Channel, t.Length, max(1, wire.CeilDiv(t.Length, int64(size))))
	}

	cur, next := make([]byte, size), make([]byte, size)
	if size == wire.CHUNK_SIZE {
		a, b := wire.GetChunk(), wire.GetChunk()
		defer wire.PutChunk(a)
		defer wire.PutChunk(b)
		cur, next = *a, *b
	}

	n, rerr := io.ReadFull(src, cur)
	for index := uint32(0); ; index++ {
		var (
			m     int
			nerr  error
			final bool
		)
		switch rerr {
		case nil:
			// a full chunk; look ahead so the last frame carries the final flag
			m, nerr = io.ReadFull(src, next)
			final = m == 0 && nerr == io.EOF
		case io.EOF, io.ErrUnexpectedEOF:
			final = true
		default:
			res.Status, res.Err = StatusFailure, fmt.Errorf("chunk: read source: %w", rerr)
			return res
		}

		f := Frame{Session: id, Index: index, Channel: t.Channel, Payload: cur[:n]}
		if index == 0 {
			f.Flags |= FlagOpen
			f.Extra = t.Extra
			f.Length = t.Length
		}
		if final {
			f.Flags |= FlagFinal
		}
		if err := s.broadcast(ctx, &f, t.Destinations); err != nil {
			if ctx.Err() != nil {
				res.Status, res.Err = StatusTimeout, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
				return res
			}
			res.Status, res.Err = StatusFailure, err
			return res
		}
		res.Frames++
		res.Bytes += int64(n)
		if final {
			res.Status = StatusSuccess
			logger.Debugf("transfer on %q sent %d frames, %d bytes", t.Channel, res.Frames, res.Bytes)
			return res
		}
		cur, next = next, cur
		n, rerr = m, nerr
	}
}

// broadcast encodes f once and offers it to every destination concurrently.
func (s *Sender) broadcast(ctx context.Context, f *Frame, dests []Destination) error {
	if s.encoder != nil && len(f.Payload) > 0 {
		f.Payload = s.encoder.EncodeAll(f.Payload, nil)
		f.Flags |= FlagCompressed
	}
	f.Seal()
	data, err := f.MarshalBinary()
	if err != nil {
		return fmt.Errorf("chunk: encode frame %d: %w", f.Index, err)
	}

	eg, ctx := errgroup.WithContext(ctx)
	for _, dest := range dests {
		eg.Go(func() error {
			retrier := retry.NewRetrier(s.s.retries, s.s.retryDelay, s.s.retryMaxDelay)
			err := retrier.RunContext(ctx, func(ctx context.Context) error {
				return dest.Send(ctx, data)
			})
			if err != nil {
				return fmt.Errorf("chunk: send frame %d to %s: %w", f.Index, dest.Name(), err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	s.s.metrics.FramesSent.Add(len(dests))
	s.s.metrics.BytesSent.Add(len(data) * len(dests))
	return nil
}
