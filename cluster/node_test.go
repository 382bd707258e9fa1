package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oy3o/wire/mapper"
)

func snapshot(id string, head bool) NodeInfoSnapshot {
	return NodeInfoSnapshot{
		Node:           NodeIdentity{UniqueID: id, Listeners: []string{id + ":7946"}},
		StartupMillis:  1700000000000,
		CreationMillis: 1700000000500,
		MaxMemory:      4096,
		UsedMemory:     1024,
		ProcessorCount: 8,
		Head:           head,
		Version:        "4.0.0",
		Properties:     map[string]string{"region": "eu"},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	in := snapshot("node-1", true)
	in.Draining = true
	data, err := EncodeSnapshot(mapper.New(), in)
	require.NoError(t, err)

	out, err := DecodeSnapshot(mapper.New(), data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeSnapshotEmpty(t *testing.T) {
	_, err := DecodeSnapshot(mapper.New(), nil)
	assert.ErrorIs(t, err, ErrEmptySnapshot)

	data, err := EncodeSnapshot(mapper.New(), snapshot("node-1", false))
	require.NoError(t, err)
	_, err = DecodeSnapshot(mapper.New(), data[:len(data)/2])
	assert.Error(t, err)
}

func TestChannelMessage(t *testing.T) {
	in := ChannelMessage{Sender: "node-1", Channel: InternalChannel, Message: MessageSyncData, Content: []byte{1, 2, 3}}
	out, err := DecodeChannelMessage(in.Encode())
	require.NoError(t, err)
	assert.Equal(t, in, out)

	data := in.Encode()
	_, err = DecodeChannelMessage(data[:len(data)-1])
	assert.Error(t, err)
}
