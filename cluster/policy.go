package cluster

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/oy3o/wire"
	"github.com/oy3o/wire/chunk"
	"github.com/oy3o/wire/datasync"
	"github.com/oy3o/wire/log"
)

// Channels and messages used between nodes.
const (
	InternalChannel = "cluster_internal"
	MessageSyncData = "sync_cluster_data"

	TransferChannel = "chunked_transfer"
	MessageFrame    = "frame"
)

// SyncPolicy keeps the data sync registry of this node in step with its
// peers: a newly authenticated peer receives a forced full sync, and sync
// batches received from peers are applied and answered when the conflict
// resolver kept local versions.
type SyncPolicy struct {
	local    string
	registry *datasync.Registry
	logger   log.Logger
}

func NewSyncPolicy(local string, registry *datasync.Registry, logger log.Logger) *SyncPolicy {
	if logger == nil {
		logger = log.DiscardLogger
	}
	return &SyncPolicy{local: local, registry: registry, logger: logger}
}

// Attach subscribes the policy to bus.
func (p *SyncPolicy) Attach(bus *Bus) []*Subscription {
	return []*Subscription{
		bus.Subscribe(KindChannelAuthenticated, 0, p.onAuthenticated),
		bus.SubscribeChannel(InternalChannel, 0, p.onMessage),
	}
}

func (p *SyncPolicy) onAuthenticated(ctx context.Context, e Event) error {
	auth := e.(ChannelAuthenticated)
	if auth.Channel == nil {
		return ErrNoChannel
	}
	buf := wire.NewBuffer()
	if err := p.registry.PrepareClusterData(ctx, buf, true); err != nil {
		// the batch is still valid without the failing handlers
		p.logger.Warnf("full sync for %s is partial: %v", auth.Peer.UniqueID, err)
	}
	return p.send(ctx, auth.Channel, buf)
}

func (p *SyncPolicy) onMessage(ctx context.Context, e Event) error {
	msg := e.(MessageReceived)
	if msg.Message.Message != MessageSyncData {
		return nil
	}
	reply, err := p.registry.HandleBatch(ctx, wire.BufferFrom(msg.Message.Content))
	if reply == nil {
		return err
	}
	if msg.Channel == nil {
		return multierr.Append(err, ErrNoChannel)
	}
	return multierr.Append(err, p.send(ctx, msg.Channel, reply))
}

func (p *SyncPolicy) send(ctx context.Context, ch NetworkChannel, buf *wire.Buffer) error {
	err := ch.Send(ctx, ChannelMessage{
		Sender:  p.local,
		Channel: InternalChannel,
		Message: MessageSyncData,
		Content: buf.Bytes(),
	})
	if err != nil {
		return fmt.Errorf("cluster: send sync data to %s: %w", ch.ID(), err)
	}
	return nil
}

// ChannelDestination sends transfer frames over a NetworkChannel.
type ChannelDestination struct {
	Sender  string
	Channel NetworkChannel
}

var _ chunk.Destination = (*ChannelDestination)(nil)

func (d *ChannelDestination) Name() string { return d.Channel.ID() }

func (d *ChannelDestination) Send(ctx context.Context, frame []byte) error {
	return d.Channel.Send(ctx, ChannelMessage{
		Sender:  d.Sender,
		Channel: TransferChannel,
		Message: MessageFrame,
		Content: frame,
	})
}

// AttachReceiver feeds frames arriving on the transfer channel to r.
func AttachReceiver(bus *Bus, r *chunk.Receiver) *Subscription {
	return bus.SubscribeChannel(TransferChannel, 0, func(_ context.Context, e Event) error {
		msg := e.(MessageReceived)
		if msg.Message.Message != MessageFrame {
			return nil
		}
		return r.HandleFrame(msg.Message.Content)
	})
}
