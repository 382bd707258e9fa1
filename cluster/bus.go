package cluster

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

// Listener handles one event.
type Listener func(ctx context.Context, e Event) error

// Subscription is a registered listener.
type Subscription struct {
	bus      *Bus
	kind     Kind
	channel  string
	priority int
	seq      uint64
	fn       Listener
}

// Unsubscribe removes the listener. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.subs.Compute(s.kind, func(old []*Subscription, loaded bool) ([]*Subscription, xsync.ComputeOp) {
		if !loaded {
			return nil, xsync.CancelOp
		}
		i := slices.Index(old, s)
		if i < 0 {
			return old, xsync.CancelOp
		}
		next := slices.Delete(slices.Clone(old), i, i+1)
		if len(next) == 0 {
			return nil, xsync.DeleteOp
		}
		return next, xsync.UpdateOp
	})
}

// Bus delivers events synchronously to listeners registered for their kind,
// highest priority first and in registration order within a priority.
type Bus struct {
	subs *xsync.Map[Kind, []*Subscription]
	seq  *atomic.Uint64
}

func NewBus() *Bus {
	return &Bus{subs: xsync.NewMap[Kind, []*Subscription](), seq: atomic.NewUint64(0)}
}

// Subscribe registers fn for every event of kind.
func (b *Bus) Subscribe(kind Kind, priority int, fn Listener) *Subscription {
	return b.add(&Subscription{kind: kind, priority: priority, fn: fn})
}

// SubscribeChannel registers fn for messages received on channel.
func (b *Bus) SubscribeChannel(channel string, priority int, fn Listener) *Subscription {
	return b.add(&Subscription{kind: KindMessageReceived, channel: channel, priority: priority, fn: fn})
}

func (b *Bus) add(s *Subscription) *Subscription {
	s.bus = b
	s.seq = b.seq.Inc()
	b.subs.Compute(s.kind, func(old []*Subscription, _ bool) ([]*Subscription, xsync.ComputeOp) {
		next := append(slices.Clone(old), s)
		slices.SortStableFunc(next, func(x, y *Subscription) int {
			if x.priority != y.priority {
				return cmp.Compare(y.priority, x.priority)
			}
			return cmp.Compare(x.seq, y.seq)
		})
		return next, xsync.UpdateOp
	})
	return s
}

// Publish runs every matching listener. A failing or panicking listener
// does not stop the others; all errors are returned together.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	subs, _ := b.subs.Load(e.Kind())
	var errs error
	for _, s := range subs {
		if s.channel != "" {
			msg, ok := e.(MessageReceived)
			if !ok || msg.Message.Channel != s.channel {
				continue
			}
		}
		errs = multierr.Append(errs, s.call(ctx, e))
	}
	return errs
}

func (s *Subscription) call(ctx context.Context, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cluster: %s listener panicked: %v", s.kind, r)
		}
	}()
	return s.fn(ctx, e)
}
