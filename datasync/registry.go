// Package datasync keeps the cluster-replicated objects of every module in
// step. Each module registers a Handler under a stable key; a Registry turns
// the handlers' data into batches for peers and applies batches received
// from them.
//
// A batch is a force flag followed by (key, object) pairs until the end of
// the buffer. Each object is a nested length-prefixed buffer, so an unknown
// key or an object that fails to decode can be skipped without losing the
// rest of the batch.
package datasync

import (
	"context"
	"fmt"
	"slices"

	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/multierr"

	"github.com/oy3o/wire"
	"github.com/oy3o/wire/log"
)

// Decision is the outcome of a conflict between a local and an incoming
// version that are both present and differ.
type Decision int

const (
	// AcceptTheirs writes the incoming version.
	AcceptTheirs Decision = iota
	// KeepOurs leaves local state alone and sends the local version back.
	KeepOurs
	// Skip leaves local state alone and sends nothing.
	Skip
)

// Conflict describes a pending decision.
type Conflict struct {
	Key      string
	Name     string
	Current  any
	Incoming any
}

// ConflictResolver decides a conflict. It may block, for example on an
// operator prompt.
type ConflictResolver func(ctx context.Context, c Conflict) Decision

// AlwaysAcceptTheirs is the default resolver.
func AlwaysAcceptTheirs(context.Context, Conflict) Decision { return AcceptTheirs }

// Option configures a Registry.
type Option func(*Registry)

func WithLogger(logger log.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithConflictResolver(resolver ConflictResolver) Option {
	return func(r *Registry) {
		if resolver != nil {
			r.resolver = resolver
		}
	}
}

// Registry is the process-wide table of sync handlers.
type Registry struct {
	handlers *xsync.Map[string, Handler]
	resolver ConflictResolver
	logger   log.Logger

	metrics  *metrics.Set
	applied  *metrics.Counter
	replied  *metrics.Counter
	skipped  *metrics.Counter
	failures *metrics.Counter
}

func NewRegistry(opts ...Option) *Registry {
	set := metrics.NewSet()
	r := &Registry{
		handlers: xsync.NewMap[string, Handler](),
		resolver: AlwaysAcceptTheirs,
		logger:   log.DiscardLogger,
		metrics:  set,
		applied:  set.GetOrCreateCounter(`wire_datasync_objects_total{result="applied"}`),
		replied:  set.GetOrCreateCounter(`wire_datasync_objects_total{result="replied"}`),
		skipped:  set.GetOrCreateCounter(`wire_datasync_objects_total{result="skipped"}`),
		failures: set.GetOrCreateCounter(`wire_datasync_objects_total{result="failed"}`),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Metrics exposes the registry counters.
func (r *Registry) Metrics() *metrics.Set { return r.metrics }

// Register adds h unless its key is taken. The first registration wins.
func (r *Registry) Register(h Handler) bool {
	if h == nil {
		return false
	}
	_, loaded := r.handlers.LoadOrStore(h.Key(), h)
	return !loaded
}

// Unregister removes the handler under key.
func (r *Registry) Unregister(key string) bool {
	_, ok := r.handlers.LoadAndDelete(key)
	return ok
}

// UnregisterHandler removes h only if it is the registered instance.
func (r *Registry) UnregisterHandler(h Handler) bool {
	if h == nil {
		return false
	}
	removed := false
	r.handlers.Compute(h.Key(), func(old Handler, loaded bool) (Handler, xsync.ComputeOp) {
		if !loaded || old != h {
			return old, xsync.CancelOp
		}
		removed = true
		return nil, xsync.DeleteOp
	})
	return removed
}

// UnregisterOwner removes every handler registered by owner.
func (r *Registry) UnregisterOwner(owner string) int {
	if owner == "" {
		return 0
	}
	removed := 0
	r.handlers.Range(func(key string, h Handler) bool {
		if h.Owner() == owner && r.UnregisterHandler(h) {
			removed++
		}
		return true
	})
	return removed
}

func (r *Registry) Has(key string) bool {
	_, ok := r.handlers.Load(key)
	return ok
}

func (r *Registry) Handler(key string) (Handler, bool) { return r.handlers.Load(key) }

// Keys returns the registered keys in order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, r.handlers.Size())
	r.handlers.Range(func(key string, _ Handler) bool {
		keys = append(keys, key)
		return true
	})
	slices.Sort(keys)
	return keys
}

// PrepareClusterData writes a batch holding every object of the selected
// handlers, or of all handlers when none are selected. A handler whose data
// cannot be collected or encoded is left out and reported in the error; the
// batch stays valid.
func (r *Registry) PrepareClusterData(ctx context.Context, buf *wire.Buffer, force bool, selected ...string) error {
	buf.WriteBool(force)
	var errs error
	for _, key := range r.Keys() {
		if len(selected) > 0 && !slices.Contains(selected, key) {
			continue
		}
		h, ok := r.handlers.Load(key)
		if !ok {
			continue
		}
		objs, err := h.collect(ctx)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("datasync: collect %q: %w", key, err))
			continue
		}
		for _, obj := range objs {
			if err := r.appendObject(buf, h, obj); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	}
	return multierr.Append(errs, buf.Err())
}

// appendObject writes one (key, object) pair. The object is encoded into a
// scratch buffer first so a failing converter leaves buf untouched.
func (r *Registry) appendObject(buf *wire.Buffer, h Handler, obj any) error {
	nested := wire.NewBuffer()
	if err := h.encode(nested, obj); err != nil {
		return fmt.Errorf("datasync: encode %s under %q: %w", h.Name(obj), h.Key(), err)
	}
	buf.WriteString(h.Key())
	buf.WriteBuffer(nested)
	return buf.Err()
}

// HandleBatch reads the leading force flag of a batch and applies the rest.
func (r *Registry) HandleBatch(ctx context.Context, in *wire.Buffer) (*wire.Buffer, error) {
	force := in.ReadBool()
	if err := in.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBatch, err)
	}
	return r.Handle(ctx, in, force)
}

// Handle applies every (key, object) pair left in in.
//
// Unknown keys are skipped. An object is written when force is set, when its
// handler always forces, or when there is no local counterpart. Equal
// versions are left alone and differing ones go to the conflict resolver.
// A failing key is reported in the returned error and does not stop the
// others. The reply, nil when there is nothing to send back, is a forced
// batch of the local versions the resolver chose to keep.
func (r *Registry) Handle(ctx context.Context, in *wire.Buffer, force bool) (*wire.Buffer, error) {
	var (
		reply *wire.Buffer
		errs  error
	)
	for in.ReadableBytes() > 0 {
		key := in.ReadString()
		nested := in.ReadBuffer()
		if err := in.Err(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: %w", ErrMalformedBatch, err))
			break
		}
		h, ok := r.handlers.Load(key)
		if !ok {
			r.logger.Debugf("no sync handler for key %q", key)
			r.skipped.Inc()
			continue
		}
		keep, err := r.apply(ctx, h, nested, force)
		if err != nil {
			r.failures.Inc()
			errs = multierr.Append(errs, fmt.Errorf("datasync: key %q: %w", key, err))
			r.logger.Errorf("sync of key %q failed: %v", key, err)
			continue
		}
		if keep == nil {
			continue
		}
		if reply == nil {
			reply = wire.NewBuffer()
			reply.WriteBool(true)
		}
		if err := r.appendObject(reply, h, keep); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		r.replied.Inc()
	}
	return reply, errs
}

// apply handles one object and returns the local version to send back, if
// the resolver kept it.
func (r *Registry) apply(ctx context.Context, h Handler, nested *wire.Buffer, force bool) (keep any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			keep, err = nil, fmt.Errorf("datasync: handler panicked: %v", rec)
		}
	}()

	incoming, err := h.decode(nested)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if force || h.AlwaysForce() {
		return nil, r.write(ctx, h, incoming)
	}
	current, found, err := h.current(ctx, incoming)
	if err != nil {
		return nil, fmt.Errorf("load current version: %w", err)
	}
	if !found {
		return nil, r.write(ctx, h, incoming)
	}
	if h.equal(current, incoming) {
		r.skipped.Inc()
		return nil, nil
	}

	name := h.Name(current)
	r.logger.Warnf("sync conflict on %q for %s", h.Key(), name)
	switch r.resolver(ctx, Conflict{Key: h.Key(), Name: name, Current: current, Incoming: incoming}) {
	case AcceptTheirs:
		r.logger.Infof("accepted incoming %s", name)
		return nil, r.write(ctx, h, incoming)
	case KeepOurs:
		r.logger.Infof("kept local %s", name)
		return current, nil
	default:
		r.logger.Infof("skipped change of %s", name)
		r.skipped.Inc()
		return nil, nil
	}
}

func (r *Registry) write(ctx context.Context, h Handler, obj any) error {
	if err := h.write(ctx, obj); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	r.applied.Inc()
	return nil
}
