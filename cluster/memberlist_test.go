package cluster

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/memberlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oy3o/wire/datasync"
	"github.com/oy3o/wire/mapper"
)

// recorder keeps every membership event published on a bus.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func record(bus *Bus) *recorder {
	r := &recorder{}
	for _, kind := range []Kind{KindNodeJoined, KindNodeLeft, KindNodeInfoUpdated, KindHeadNodeChanged} {
		bus.Subscribe(kind, 0, func(_ context.Context, e Event) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, e)
			return nil
		})
	}
	return r
}

func (r *recorder) take() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

func member(t *testing.T, snap NodeInfoSnapshot) *memberlist.Node {
	meta, err := EncodeSnapshot(mapper.New(), snap)
	require.NoError(t, err)
	return &memberlist.Node{Name: snap.Node.UniqueID, Addr: net.ParseIP("10.0.0.2"), Port: 7946, Meta: meta}
}

func TestMemberlistNodeMeta(t *testing.T) {
	local := snapshot("local", false)
	d := NewMemberlist(mapper.New(), func() NodeInfoSnapshot { return local }, datasync.NewRegistry(), NewBus(), nil)

	meta := d.NodeMeta(memberlist.MetaMaxSize)
	require.NotNil(t, meta)
	got, err := DecodeSnapshot(mapper.New(), meta)
	require.NoError(t, err)
	assert.Equal(t, local, got)

	assert.Nil(t, d.NodeMeta(4))
	assert.Nil(t, d.GetBroadcasts(0, 1024))
}

func TestMemberlistMembership(t *testing.T) {
	bus := NewBus()
	events := record(bus)
	d := NewMemberlist(mapper.New(), func() NodeInfoSnapshot { return snapshot("local", false) }, datasync.NewRegistry(), bus, nil)

	first := snapshot("first", true)
	d.NotifyJoin(member(t, first))
	assert.Equal(t, []Event{
		NodeJoined{Node: first.Node},
		HeadNodeChanged{Current: first.Node},
	}, events.take())
	assert.Equal(t, "first", d.Head())

	d.NotifyJoin(&memberlist.Node{Name: "bare", Addr: net.ParseIP("10.0.0.3"), Port: 7946})
	assert.Equal(t, []Event{
		NodeJoined{Node: NodeIdentity{UniqueID: "bare", Listeners: []string{"10.0.0.3:7946"}}},
	}, events.take())

	second := snapshot("second", true)
	d.NotifyUpdate(member(t, second))
	assert.Equal(t, []Event{
		NodeInfoUpdated{Snapshot: second},
		HeadNodeChanged{Previous: first.Node, Current: second.Node},
	}, events.take())

	d.NotifyUpdate(&memberlist.Node{Name: "bare"})
	assert.Empty(t, events.take(), "updates without a snapshot are dropped")

	d.NotifyLeave(member(t, second))
	assert.Equal(t, []Event{
		NodeLeft{Node: second.Node},
		HeadNodeChanged{Previous: second.Node},
	}, events.take())
	assert.Empty(t, d.Head())

	peers := d.Peers()
	require.Len(t, peers, 2)
	assert.Equal(t, "bare", peers[0].Node.UniqueID)
	assert.Equal(t, "first", peers[1].Node.UniqueID)
}

func TestMemberlistPushPull(t *testing.T) {
	a, b := newPeer(t, "a"), newPeer(t, "b")
	a.put(t, service{Name: "lobby", Memory: 512})
	da := NewMemberlist(mapper.New(), func() NodeInfoSnapshot { return snapshot("a", false) }, a.registry, a.bus, nil)
	db := NewMemberlist(mapper.New(), func() NodeInfoSnapshot { return snapshot("b", false) }, b.registry, b.bus, nil)

	db.MergeRemoteState(da.LocalState(true), true)
	got, ok := b.get(t, "lobby")
	require.True(t, ok)
	assert.Equal(t, int32(512), got.Memory)

	db.MergeRemoteState(nil, false)
	db.MergeRemoteState([]byte{0x07}, false)
}

func TestMemberlistNotifyMsg(t *testing.T) {
	bus := NewBus()
	got := make(chan MessageReceived, 1)
	bus.SubscribeChannel("greetings", 0, func(_ context.Context, e Event) error {
		got <- e.(MessageReceived)
		return nil
	})
	d := NewMemberlist(mapper.New(), func() NodeInfoSnapshot { return snapshot("local", false) }, datasync.NewRegistry(), bus, nil)

	msg := ChannelMessage{Sender: "peer", Channel: "greetings", Message: "hello", Content: []byte("hi")}
	d.NotifyMsg([]byte{0x01})
	d.NotifyMsg(msg.Encode())

	select {
	case e := <-got:
		assert.Equal(t, msg, e.Message)
		assert.Nil(t, e.Channel, "no memberlist to answer on")
	case <-time.After(5 * time.Second):
		t.Fatal("message was not published")
	}
	_, ok := d.Channel("peer")
	assert.False(t, ok)
}
