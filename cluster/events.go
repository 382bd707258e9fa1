package cluster

// Kind identifies an event type on the Bus.
type Kind int

const (
	KindChannelAuthenticated Kind = iota
	KindNodeInfoUpdated
	KindHeadNodeChanged
	KindNodeJoined
	KindNodeLeft
	KindMessageReceived
)

func (k Kind) String() string {
	switch k {
	case KindChannelAuthenticated:
		return "channel_authenticated"
	case KindNodeInfoUpdated:
		return "node_info_updated"
	case KindHeadNodeChanged:
		return "head_node_changed"
	case KindNodeJoined:
		return "node_joined"
	case KindNodeLeft:
		return "node_left"
	case KindMessageReceived:
		return "message_received"
	}
	return "unknown"
}

// Event is anything published on the Bus.
type Event interface {
	Kind() Kind
}

// ChannelAuthenticated is raised once a peer has authenticated on a channel.
type ChannelAuthenticated struct {
	Peer    NodeIdentity
	Channel NetworkChannel
}

// NodeInfoUpdated is raised when a peer advertises a new snapshot.
type NodeInfoUpdated struct {
	Snapshot NodeInfoSnapshot
}

// HeadNodeChanged is raised when the head role moves. Previous is empty on
// the first election seen.
type HeadNodeChanged struct {
	Previous NodeIdentity
	Current  NodeIdentity
}

type NodeJoined struct {
	Node NodeIdentity
}

type NodeLeft struct {
	Node NodeIdentity
}

// MessageReceived carries a message and the channel to answer on, which may
// be nil.
type MessageReceived struct {
	Channel NetworkChannel
	Message ChannelMessage
}

func (ChannelAuthenticated) Kind() Kind { return KindChannelAuthenticated }
func (NodeInfoUpdated) Kind() Kind      { return KindNodeInfoUpdated }
func (HeadNodeChanged) Kind() Kind      { return KindHeadNodeChanged }
func (NodeJoined) Kind() Kind           { return KindNodeJoined }
func (NodeLeft) Kind() Kind             { return KindNodeLeft }
func (MessageReceived) Kind() Kind      { return KindMessageReceived }
