// Package cluster connects the wire codec, the chunked transfer engine and
// the data sync registry to cluster membership. It defines the node data
// shapes peers exchange, an event bus for membership notifications, the
// policies answering those events and a hashicorp/memberlist adapter.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/oy3o/wire"
	"github.com/oy3o/wire/mapper"
)

var (
	// ErrNoChannel is returned when a reply is needed but the event carries no channel.
	ErrNoChannel = errors.New("cluster: event has no network channel")

	// ErrEmptySnapshot is returned for node metadata that holds no snapshot.
	ErrEmptySnapshot = errors.New("cluster: empty node snapshot")
)

// NodeIdentity names a node and the addresses it listens on.
type NodeIdentity struct {
	UniqueID  string
	Listeners []string
}

// NodeInfoSnapshot is the state a node advertises to its peers.
type NodeInfoSnapshot struct {
	Node           NodeIdentity
	StartupMillis  int64
	CreationMillis int64
	MaxMemory      int64
	UsedMemory     int64
	ProcessorCount int32
	Draining       bool
	Head           bool
	Version        string
	Properties     map[string]string
}

var snapshotType = mapper.Record(reflect.TypeFor[NodeInfoSnapshot]())

// EncodeSnapshot writes s as a record with m.
func EncodeSnapshot(m *mapper.Mapper, s NodeInfoSnapshot) ([]byte, error) {
	buf := wire.NewBuffer()
	if err := m.WriteAs(buf, s, snapshotType); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeSnapshot(m *mapper.Mapper, data []byte) (NodeInfoSnapshot, error) {
	if len(data) == 0 {
		return NodeInfoSnapshot{}, ErrEmptySnapshot
	}
	s, ok, err := mapper.ReadAs[NodeInfoSnapshot](m, wire.BufferFrom(data), snapshotType)
	if err != nil {
		return s, fmt.Errorf("cluster: decode node snapshot: %w", err)
	}
	if !ok {
		return s, ErrEmptySnapshot
	}
	return s, nil
}

// ChannelMessage is the envelope of everything sent over a NetworkChannel.
type ChannelMessage struct {
	Sender  string
	Channel string
	Message string
	Content []byte
}

func (m ChannelMessage) Encode() []byte {
	buf := wire.NewBufferSize(len(m.Content) + len(m.Sender) + len(m.Channel) + len(m.Message) + 16)
	buf.WriteString(m.Sender)
	buf.WriteString(m.Channel)
	buf.WriteString(m.Message)
	buf.WriteBlob(m.Content)
	return buf.Bytes()
}

func DecodeChannelMessage(data []byte) (ChannelMessage, error) {
	buf := wire.BufferFrom(data)
	m := ChannelMessage{
		Sender:  buf.ReadString(),
		Channel: buf.ReadString(),
		Message: buf.ReadString(),
		Content: buf.ReadBlob(),
	}
	if err := buf.Err(); err != nil {
		return ChannelMessage{}, fmt.Errorf("cluster: decode channel message: %w", err)
	}
	return m, nil
}

// NetworkChannel is an authenticated link to one peer.
type NetworkChannel interface {
	// ID is the peer's unique id.
	ID() string
	Send(ctx context.Context, msg ChannelMessage) error
}
