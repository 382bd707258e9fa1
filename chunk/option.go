package chunk

import (
	"time"

	"github.com/oy3o/wire"
	"github.com/oy3o/wire/log"
)

// Default tuning values.
const (
	DefaultChunkSize      = wire.CHUNK_SIZE
	DefaultSessionTimeout = 5 * time.Minute
	DefaultRetention      = time.Minute
	DefaultMaxCallbacks   = 4
	DefaultSendRetries    = 3
)

// settings is shared by Sender and Receiver; each reads the fields it needs.
type settings struct {
	chunkSize      int
	compress       bool
	retries        int
	retryDelay     time.Duration
	retryMaxDelay  time.Duration
	sessionTimeout time.Duration
	retention      time.Duration
	spoolDir       string
	maxCallbacks   int64
	logger         log.Logger
	metrics        *Metrics
	clock          func() time.Time
}

func defaults() *settings {
	return &settings{
		chunkSize:      DefaultChunkSize,
		retries:        DefaultSendRetries,
		retryDelay:     50 * time.Millisecond,
		retryMaxDelay:  time.Second,
		sessionTimeout: DefaultSessionTimeout,
		retention:      DefaultRetention,
		maxCallbacks:   DefaultMaxCallbacks,
		logger:         log.DiscardLogger,
		clock:          time.Now,
	}
}

// Option is the interface that applies a configuration option.
type Option interface {
	// Apply sets the Option value of a config.
	Apply(s *settings)
}

var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(*settings)

func (f OptionFunc) Apply(s *settings) { f(s) }

// WithChunkSize sets the payload size of each frame. Non-positive values keep the default.
func WithChunkSize(size int) Option {
	return OptionFunc(func(s *settings) {
		if size > 0 {
			s.chunkSize = size
		}
	})
}

// WithCompression enables zstd compression of frame payloads on the sender.
// Receivers always understand compressed frames.
func WithCompression(enabled bool) Option {
	return OptionFunc(func(s *settings) { s.compress = enabled })
}

// WithRetry sets how many times a frame is offered to a destination and the
// backoff between attempts.
func WithRetry(attempts int, initialDelay, maxDelay time.Duration) Option {
	return OptionFunc(func(s *settings) {
		if attempts < 1 {
			attempts = 1
		}
		s.retries = attempts
		s.retryDelay = initialDelay
		s.retryMaxDelay = maxDelay
	})
}

// WithSessionTimeout sets how long a receiving session may stay idle.
func WithSessionTimeout(timeout time.Duration) Option {
	return OptionFunc(func(s *settings) { s.sessionTimeout = timeout })
}

// WithRetention sets how long terminal session states stay queryable.
func WithRetention(retention time.Duration) Option {
	return OptionFunc(func(s *settings) { s.retention = retention })
}

// WithSpoolDir makes the receiver reassemble into temporary files under dir
// instead of memory.
func WithSpoolDir(dir string) Option {
	return OptionFunc(func(s *settings) { s.spoolDir = dir })
}

// WithMaxCallbacks bounds the number of completion callbacks running at once.
func WithMaxCallbacks(n int) Option {
	return OptionFunc(func(s *settings) {
		if n > 0 {
			s.maxCallbacks = int64(n)
		}
	})
}

func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	})
}

// WithMetrics records counters into m.
func WithMetrics(m *Metrics) Option {
	return OptionFunc(func(s *settings) { s.metrics = m })
}

// WithClock replaces time.Now, mainly for timeout tests.
func WithClock(now func() time.Time) Option {
	return OptionFunc(func(s *settings) {
		if now != nil {
			s.clock = now
		}
	})
}

func apply(opts []Option) *settings {
	s := defaults()
	for _, opt := range opts {
		opt.Apply(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	return s
}
