package cluster

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/memberlist"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/atomic"

	"github.com/oy3o/wire"
	"github.com/oy3o/wire/datasync"
	"github.com/oy3o/wire/log"
	"github.com/oy3o/wire/mapper"
)

// Memberlist plugs the node into a hashicorp/memberlist cluster.
//
// Node metadata carries the encoded local snapshot, push/pull state carries
// a data sync batch, and membership changes are published on the bus.
type Memberlist struct {
	mapper   *mapper.Mapper
	local    func() NodeInfoSnapshot
	registry *datasync.Registry
	bus      *Bus
	logger   log.Logger
	list     *atomic.Pointer[memberlist.Memberlist]
	peers    *xsync.Map[string, NodeInfoSnapshot]
	head     *atomic.String
}

var (
	_ memberlist.Delegate      = (*Memberlist)(nil)
	_ memberlist.EventDelegate = (*Memberlist)(nil)
)

// NewMemberlist returns the delegates of a node. local is called whenever
// memberlist asks for fresh node metadata; m encodes it.
func NewMemberlist(m *mapper.Mapper, local func() NodeInfoSnapshot, registry *datasync.Registry, bus *Bus, logger log.Logger) *Memberlist {
	if logger == nil {
		logger = log.DiscardLogger
	}
	return &Memberlist{
		mapper:   m,
		local:    local,
		registry: registry,
		bus:      bus,
		logger:   logger,
		list:     atomic.NewPointer[memberlist.Memberlist](nil),
		peers:    xsync.NewMap[string, NodeInfoSnapshot](),
		head:     atomic.NewString(""),
	}
}

// Start names the member after the local node, installs the delegates and
// creates the memberlist.
func (d *Memberlist) Start(cfg *memberlist.Config) (*memberlist.Memberlist, error) {
	if id := d.local().Node.UniqueID; id != "" {
		cfg.Name = id
	}
	cfg.Delegate = d
	cfg.Events = d
	list, err := memberlist.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("cluster: create memberlist: %w", err)
	}
	d.list.Store(list)
	return list, nil
}

// Channel returns a channel to the member named id.
func (d *Memberlist) Channel(id string) (NetworkChannel, bool) {
	list := d.list.Load()
	if list == nil {
		return nil, false
	}
	for _, node := range list.Members() {
		if node.Name == id {
			return &memberChannel{list: list, node: node}, true
		}
	}
	return nil, false
}

// Peers returns the last snapshot of every known peer, ordered by id.
func (d *Memberlist) Peers() []NodeInfoSnapshot {
	var out []NodeInfoSnapshot
	d.peers.Range(func(_ string, s NodeInfoSnapshot) bool {
		out = append(out, s)
		return true
	})
	slices.SortFunc(out, func(a, b NodeInfoSnapshot) int { return strings.Compare(a.Node.UniqueID, b.Node.UniqueID) })
	return out
}

// Head returns the id of the current head node, if known.
func (d *Memberlist) Head() string { return d.head.Load() }

func (d *Memberlist) NodeMeta(limit int) []byte {
	data, err := EncodeSnapshot(d.mapper, d.local())
	if err != nil {
		d.logger.Errorf("encode node snapshot: %v", err)
		return nil
	}
	if len(data) > limit {
		d.logger.Warnf("node snapshot of %d bytes exceeds the %d byte metadata limit", len(data), limit)
		return nil
	}
	return data
}

// NotifyMsg publishes the message off the packet receive loop. b is reused
// by memberlist once NotifyMsg returns.
func (d *Memberlist) NotifyMsg(b []byte) {
	msg, err := DecodeChannelMessage(append([]byte(nil), b...))
	if err != nil {
		d.logger.Warnf("drop user message: %v", err)
		return
	}
	e := MessageReceived{Message: msg}
	if ch, ok := d.Channel(msg.Sender); ok {
		e.Channel = ch
	}
	go d.publish(e)
}

func (d *Memberlist) GetBroadcasts(overhead, limit int) [][]byte { return nil }

func (d *Memberlist) LocalState(join bool) []byte {
	buf := wire.NewBuffer()
	if err := d.registry.PrepareClusterData(context.Background(), buf, join); err != nil {
		d.logger.Warnf("local sync state is partial: %v", err)
	}
	return buf.Bytes()
}

// MergeRemoteState applies the peer's batch. Replies are not sent: the peer
// pulls this node's state in the same exchange.
func (d *Memberlist) MergeRemoteState(buf []byte, join bool) {
	if len(buf) == 0 {
		return
	}
	data := append([]byte(nil), buf...)
	if _, err := d.registry.HandleBatch(context.Background(), wire.BufferFrom(data)); err != nil {
		d.logger.Warnf("merge remote sync state: %v", err)
	}
}

func (d *Memberlist) NotifyJoin(node *memberlist.Node) {
	snap := d.snapshotOf(node)
	d.peers.Store(node.Name, snap)
	d.publish(NodeJoined{Node: snap.Node})
	d.observeHead(snap)
}

func (d *Memberlist) NotifyLeave(node *memberlist.Node) {
	snap, ok := d.peers.LoadAndDelete(node.Name)
	if !ok {
		snap = NodeInfoSnapshot{Node: NodeIdentity{UniqueID: node.Name}}
	}
	d.publish(NodeLeft{Node: snap.Node})
	if d.head.CompareAndSwap(node.Name, "") {
		d.publish(HeadNodeChanged{Previous: snap.Node})
	}
}

func (d *Memberlist) NotifyUpdate(node *memberlist.Node) {
	snap, err := DecodeSnapshot(d.mapper, node.Meta)
	if err != nil {
		d.logger.Warnf("update from %s: %v", node.Name, err)
		return
	}
	d.peers.Store(node.Name, snap)
	d.publish(NodeInfoUpdated{Snapshot: snap})
	d.observeHead(snap)
}

// snapshotOf decodes the node metadata, falling back to the bare identity.
func (d *Memberlist) snapshotOf(node *memberlist.Node) NodeInfoSnapshot {
	snap, err := DecodeSnapshot(d.mapper, node.Meta)
	if err != nil {
		d.logger.Debugf("no snapshot in metadata of %s: %v", node.Name, err)
		return NodeInfoSnapshot{Node: NodeIdentity{UniqueID: node.Name, Listeners: []string{node.Address()}}}
	}
	return snap
}

func (d *Memberlist) observeHead(snap NodeInfoSnapshot) {
	if !snap.Head {
		return
	}
	prev := d.head.Swap(snap.Node.UniqueID)
	if prev == snap.Node.UniqueID {
		return
	}
	previous := NodeIdentity{UniqueID: prev}
	if p, ok := d.peers.Load(prev); ok {
		previous = p.Node
	}
	d.publish(HeadNodeChanged{Previous: previous, Current: snap.Node})
}

func (d *Memberlist) publish(e Event) {
	if err := d.bus.Publish(context.Background(), e); err != nil {
		d.logger.Warnf("%s listeners failed: %v", e.Kind(), err)
	}
}

type memberChannel struct {
	list *memberlist.Memberlist
	node *memberlist.Node
}

func (c *memberChannel) ID() string { return c.node.Name }

func (c *memberChannel) Send(ctx context.Context, msg ChannelMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.list.SendReliable(c.node, msg.Encode())
}
