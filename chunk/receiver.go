package chunk

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"

	"github.com/oy3o/wire"
)

// SessionInfo describes a reassembled transfer.
type SessionInfo struct {
	Session uuid.UUID
	Channel string
	Extra   []byte
	// Length is the declared size, -1 when the sender did not know it.
	Length int64
	// Size is the number of bytes received.
	Size   int64
	Frames int
}

// Callback consumes a completed session. data is only valid until the
// callback returns.
type Callback func(ctx context.Context, info SessionInfo, data io.Reader) error

// State is the queryable view of a session.
type State struct {
	SessionInfo
	Status Status
	Err    error
}

type session struct {
	mu       sync.Mutex
	info     SessionInfo
	status   Status
	err      error
	next     uint32
	complete bool  // final frame seen, callback pending
	final    bool  // final frame accepted at some point
	conflict error // a second final marker arrived while the callback ran
	sink     Sink
	callback Callback
	updated  time.Time
	finished time.Time
}

func (s *session) state() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{SessionInfo: s.info, Status: s.status, Err: s.err}
}

type binding struct{ cb Callback }

// Receiver reassembles frames into sessions and hands completed payloads to
// the callback bound to their channel.
type Receiver struct {
	s         *settings
	callbacks *xsync.Map[string, *binding]
	sessions  *xsync.Map[uuid.UUID, *session]
	decoder   *zstd.Decoder
	sem       *semaphore.Weighted
	wg        sync.WaitGroup
	gate      sync.RWMutex // held shared by Apply, exclusively by Close
	ctx       context.Context
	cancel    context.CancelFunc
	closed    *atomic.Bool
	inflight  *atomic.Int64
}

func NewReceiver(opts ...Option) (*Receiver, error) {
	s := apply(opts)
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(true),
		zstd.WithDecoderMaxMemory(64<<20),
	)
	if err != nil {
		return nil, fmt.Errorf("chunk: create zstd decoder: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Receiver{
		s:         s,
		callbacks: xsync.NewMap[string, *binding](),
		sessions:  xsync.NewMap[uuid.UUID, *session](),
		decoder:   dec,
		sem:       semaphore.NewWeighted(s.maxCallbacks),
		ctx:       ctx,
		cancel:    cancel,
		closed:    atomic.NewBool(false),
		inflight:  atomic.NewInt64(0),
	}, nil
}

// Bind routes sessions opened on channel to cb, replacing any previous
// binding. The returned func removes the binding if it is still cb's.
func (r *Receiver) Bind(channel string, cb Callback) func() {
	b := &binding{cb: cb}
	r.callbacks.Store(channel, b)
	return func() {
		r.callbacks.Compute(channel, func(old *binding, loaded bool) (*binding, xsync.ComputeOp) {
			if !loaded || old != b {
				return old, xsync.CancelOp
			}
			return nil, xsync.DeleteOp
		})
	}
}

// HandleFrame decodes data and applies the frame.
func (r *Receiver) HandleFrame(data []byte) error {
	var f Frame
	if err := f.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("chunk: decode frame: %w", err)
	}
	return r.Apply(&f)
}

// Apply feeds one frame into its session.
//
// Duplicates of already applied indices are accepted and ignored unless they
// carry the final flag. A gap, a bad checksum, an unknown channel or a second
// final marker fails the session. Frames for a session that has finished or
// is completing return ErrSessionClosed.
func (r *Receiver) Apply(f *Frame) error {
	r.gate.RLock()
	defer r.gate.RUnlock()
	if r.closed.Load() {
		return ErrReceiverClosed
	}
	now := r.s.clock()
	r.s.metrics.FramesReceived.Inc()

	var sess *session
	if f.IsOpen() {
		candidate := &session{
			info: SessionInfo{
				Session: f.Session,
				Channel: f.Channel,
				Extra:   f.Extra,
				Length:  f.Length,
			},
			status:  StatusOpen,
			updated: now,
		}
		// locked before publishing so no other frame sees it without a sink
		candidate.mu.Lock()
		stored, loaded := r.sessions.LoadOrStore(f.Session, candidate)
		if loaded {
			candidate.mu.Unlock()
			sess = stored
			sess.mu.Lock()
		} else {
			sess = candidate
			if err := r.open(sess); err != nil {
				sess.mu.Unlock()
				return err
			}
		}
	} else {
		var ok bool
		if sess, ok = r.sessions.Load(f.Session); !ok {
			failed := &session{
				info:    SessionInfo{Session: f.Session, Channel: f.Channel, Length: -1},
				updated: now,
			}
			failed.mu.Lock()
			stored, loaded := r.sessions.LoadOrStore(f.Session, failed)
			if !loaded {
				err := fmt.Errorf("%w: first frame index %d", ErrUnknownSession, f.Index)
				r.finish(failed, StatusFailure, err, now)
				failed.mu.Unlock()
				return err
			}
			failed.mu.Unlock()
			sess = stored
		}
		sess.mu.Lock()
	}
	defer sess.mu.Unlock()

	if sess.status.Terminal() || sess.complete {
		if !f.IsFinal() || !sess.final {
			return fmt.Errorf("%w: %s", ErrSessionClosed, f.Session)
		}
		err := fmt.Errorf("%w: %w: frame %d of %s", ErrSessionClosed, ErrDuplicateFinal, f.Index, f.Session)
		if sess.complete && sess.conflict == nil {
			// fails once the running callback returns
			sess.conflict = fmt.Errorf("%w: frame %d", ErrDuplicateFinal, f.Index)
		}
		return err
	}
	switch {
	case f.Index < sess.next:
		if f.IsFinal() {
			err := fmt.Errorf("%w: frame %d repeated as final", ErrDuplicateFinal, f.Index)
			r.finish(sess, StatusFailure, err, now)
			return err
		}
		r.s.metrics.FramesDuplicate.Inc()
		return nil
	case f.Index > sess.next:
		err := fmt.Errorf("%w: got %d, want %d", ErrIndexGap, f.Index, sess.next)
		r.finish(sess, StatusFailure, err, now)
		return err
	}
	if !f.Verify() {
		err := fmt.Errorf("%w: frame %d", ErrChecksum, f.Index)
		r.finish(sess, StatusFailure, err, now)
		return err
	}

	payload := f.Payload
	if f.IsCompressed() {
		var err error
		if payload, err = r.decoder.DecodeAll(payload, nil); err != nil {
			err = fmt.Errorf("chunk: decompress frame %d: %w", f.Index, err)
			r.finish(sess, StatusFailure, err, now)
			return err
		}
	}
	if _, err := sess.sink.Write(payload); err != nil {
		err = fmt.Errorf("chunk: spool frame %d: %w", f.Index, err)
		r.finish(sess, StatusFailure, err, now)
		return err
	}
	r.s.metrics.BytesReceived.Add(len(payload))
	sess.next++
	sess.info.Size += int64(len(payload))
	sess.info.Frames++
	sess.status = StatusReceiving
	sess.updated = now

	if !f.IsFinal() {
		return nil
	}
	if sess.info.Length >= 0 && sess.info.Size != sess.info.Length {
		err := fmt.Errorf("%w: declared %d, received %d", ErrLengthMismatch, sess.info.Length, sess.info.Size)
		r.finish(sess, StatusFailure, err, now)
		return err
	}
	sess.complete = true
	sess.final = true
	r.dispatch(sess)
	return nil
}

// open binds the callback and sink of a freshly stored session. The caller
// holds sess.mu.
func (r *Receiver) open(sess *session) error {
	b, ok := r.callbacks.Load(sess.info.Channel)
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownChannel, sess.info.Channel)
		r.finish(sess, StatusFailure, err, sess.updated)
		return err
	}
	sink, err := r.newSink()
	if err != nil {
		err = fmt.Errorf("chunk: create sink: %w", err)
		r.finish(sess, StatusFailure, err, sess.updated)
		return err
	}
	sess.callback = b.cb
	sess.sink = sink
	r.s.logger.Debugf("session %s opened on %q", sess.info.Session, sess.info.Channel)
	return nil
}

// finish moves sess to a terminal status and drops its payload. The caller
// holds sess.mu.
func (r *Receiver) finish(sess *session, status Status, err error, now time.Time) {
	if sess.status.Terminal() {
		return
	}
	sess.status = status
	sess.err = err
	sess.complete = false
	sess.finished = now
	if sess.sink != nil {
		if rerr := sess.sink.Release(); rerr != nil {
			r.s.logger.Warnf("release sink of session %s: %v", sess.info.Session, rerr)
		}
		sess.sink = nil
	}
	r.s.metrics.finished(status)
	if status != StatusSuccess {
		r.s.logger.Warnf("session %s on %q ended with %s: %v", sess.info.Session, sess.info.Channel, status, err)
	}
}

// dispatch runs the callback off the frame delivery goroutine. The caller
// holds sess.mu.
func (r *Receiver) dispatch(sess *session) {
	info := sess.info
	cb, sink := sess.callback, sess.sink
	r.wg.Add(1)
	r.inflight.Inc()
	go func() {
		defer r.wg.Done()
		defer r.inflight.Dec()
		err := r.invoke(cb, info, sink)
		sess.mu.Lock()
		defer sess.mu.Unlock()
		if err == nil {
			err = sess.conflict
		}
		if err != nil {
			r.finish(sess, StatusFailure, err, r.s.clock())
			return
		}
		r.finish(sess, StatusSuccess, nil, r.s.clock())
	}()
}

func (r *Receiver) invoke(cb Callback, info SessionInfo, sink Sink) (err error) {
	if err := r.sem.Acquire(r.ctx, 1); err != nil {
		return fmt.Errorf("chunk: callback not started: %w", err)
	}
	defer r.sem.Release(1)
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("chunk: callback panicked: %v", rec)
		}
	}()

	src, err := sink.Reader()
	if err != nil {
		return fmt.Errorf("chunk: open reassembled payload: %w", err)
	}
	// the sink goes away as soon as the consumer has read everything
	body := wire.ChainReader(src, info.Size, func(io.Reader) error { return sink.Release() })
	if err := cb(r.ctx, info, body); err != nil {
		return fmt.Errorf("chunk: callback for %q: %w", info.Channel, err)
	}
	return nil
}

// Lookup returns the state of a session that is running or still retained.
func (r *Receiver) Lookup(id uuid.UUID) (State, bool) {
	sess, ok := r.sessions.Load(id)
	if !ok {
		return State{}, false
	}
	return sess.state(), true
}

// Status is a shortcut for Lookup(id).Status.
func (r *Receiver) Status(id uuid.UUID) (Status, bool) {
	st, ok := r.Lookup(id)
	return st.Status, ok
}

// InFlight returns the number of callbacks queued or running.
func (r *Receiver) InFlight() int64 { return r.inflight.Load() }

// Sweep times out sessions idle since before now minus the session timeout
// and forgets terminal sessions older than the retention window. It returns
// the number of sessions timed out.
func (r *Receiver) Sweep(now time.Time) int {
	timedOut := 0
	r.sessions.Range(func(id uuid.UUID, sess *session) bool {
		sess.mu.Lock()
		switch {
		case sess.status.Terminal():
			if now.Sub(sess.finished) > r.s.retention {
				r.sessions.Delete(id)
			}
		case !sess.complete && now.Sub(sess.updated) > r.s.sessionTimeout:
			r.finish(sess, StatusTimeout, ErrTimeout, now)
			timedOut++
		}
		sess.mu.Unlock()
		return true
	})
	return timedOut
}

// Run sweeps periodically until ctx is done.
func (r *Receiver) Run(ctx context.Context) {
	interval := min(r.s.sessionTimeout, r.s.retention) / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.s.clock())
		}
	}
}

// Close stops accepting frames, waits for running callbacks and drops
// unfinished sessions.
func (r *Receiver) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	// drain Apply calls that got past the closed check, so nothing is
	// dispatched or decoded from here on
	r.gate.Lock()
	r.gate.Unlock()
	r.wg.Wait()
	r.cancel()
	now := r.s.clock()
	r.sessions.Range(func(_ uuid.UUID, sess *session) bool {
		sess.mu.Lock()
		r.finish(sess, StatusFailure, ErrReceiverClosed, now)
		sess.mu.Unlock()
		return true
	})
	r.decoder.Close()
	return nil
}

// Destination returns a destination that applies frames to r in process.
func (r *Receiver) Destination(name string) Destination {
	return DestinationFunc(name, func(_ context.Context, frame []byte) error {
		return r.HandleFrame(frame)
	})
}
