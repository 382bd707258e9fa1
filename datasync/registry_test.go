package datasync

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/oy3o/wire"
	"github.com/oy3o/wire/mapper"
	"github.com/oy3o/wire/storage"
)

type task struct {
	Name   string
	Groups []string
	Memory int32
}

var taskType = mapper.Record(reflect.TypeFor[task]())

type RegistryTestSuite struct {
	suite.Suite
	ctx      context.Context
	registry *Registry
	local    *storage.Memory[task]
	handler  Handler
}

func (s *RegistryTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.registry = NewRegistry()
	s.local = storage.NewMemory[task]()
	var err error
	s.handler, err = StoreHandler("tasks", s.local, func(t task) string { return t.Name },
		MapperConverter[task](mapper.New(), taskType),
		WithName(func(t task) string { return "task " + t.Name }),
	)
	s.Require().NoError(err)
	s.Require().True(s.registry.Register(s.handler))
}

func (s *RegistryTestSuite) put(tasks ...task) {
	for _, t := range tasks {
		s.Require().NoError(s.local.Put(s.ctx, t.Name, t))
	}
}

func (s *RegistryTestSuite) get(name string) task {
	t, ok, err := s.local.Get(s.ctx, name)
	s.Require().NoError(err)
	s.Require().True(ok, name)
	return t
}

// batch builds what a peer holding tasks would send.
func (s *RegistryTestSuite) batch(force bool, tasks ...task) *wire.Buffer {
	peer := NewRegistry()
	store := storage.NewMemory[task]()
	for _, t := range tasks {
		s.Require().NoError(store.Put(s.ctx, t.Name, t))
	}
	h, err := StoreHandler("tasks", store, func(t task) string { return t.Name }, MapperConverter[task](mapper.New(), taskType))
	s.Require().NoError(err)
	peer.Register(h)

	buf := wire.NewBuffer()
	s.Require().NoError(peer.PrepareClusterData(s.ctx, buf, force))
	return buf
}

func (s *RegistryTestSuite) TestPrepareAndApply() {
	in := s.batch(false, task{Name: "lobby", Groups: []string{"global"}, Memory: 512}, task{Name: "proxy", Memory: 256})
	reply, err := s.registry.HandleBatch(s.ctx, in)
	s.Require().NoError(err)
	s.Nil(reply)
	s.Equal(task{Name: "lobby", Groups: []string{"global"}, Memory: 512}, s.get("lobby"))
	s.Equal(int32(256), s.get("proxy").Memory)
}

func (s *RegistryTestSuite) TestEqualIsNotRewritten() {
	lobby := task{Name: "lobby", Groups: []string{"global"}, Memory: 512}
	s.put(lobby)
	writes := 0
	h, err := NewHandler("counted", MapperConverter[task](mapper.New(), taskType),
		func(context.Context, task) error { writes++; return nil },
		func(context.Context, task) (task, bool, error) { return lobby, true, nil },
		func(context.Context) ([]task, error) { return nil, nil },
	)
	s.Require().NoError(err)
	s.registry.Register(h)

	nested := wire.NewBuffer()
	s.Require().NoError(h.encode(nested, lobby))
	pair := func() *wire.Buffer {
		in := wire.NewBuffer()
		in.WriteString("counted")
		in.WriteBuffer(nested)
		return in
	}

	reply, err := s.registry.Handle(s.ctx, pair(), false)
	s.Require().NoError(err)
	s.Nil(reply)
	s.Zero(writes)

	_, err = s.registry.Handle(s.ctx, pair(), true)
	s.Require().NoError(err)
	s.Equal(1, writes, "force applies even equal versions")
}

func (s *RegistryTestSuite) TestForceOverwrites() {
	s.put(task{Name: "lobby", Memory: 512})
	_, err := s.registry.HandleBatch(s.ctx, s.batch(true, task{Name: "lobby", Memory: 1024}))
	s.Require().NoError(err)
	s.Equal(int32(1024), s.get("lobby").Memory)
}

func (s *RegistryTestSuite) TestConflictAcceptTheirsByDefault() {
	s.put(task{Name: "lobby", Memory: 512})
	_, err := s.registry.HandleBatch(s.ctx, s.batch(false, task{Name: "lobby", Memory: 1024}))
	s.Require().NoError(err)
	s.Equal(int32(1024), s.get("lobby").Memory)
}

func (s *RegistryTestSuite) TestConflictKeepOurs() {
	var seen Conflict
	s.registry = NewRegistry(WithConflictResolver(func(_ context.Context, c Conflict) Decision {
		seen = c
		return KeepOurs
	}))
	s.registry.Register(s.handler)
	s.put(task{Name: "lobby", Memory: 512})

	reply, err := s.registry.HandleBatch(s.ctx, s.batch(false, task{Name: "lobby", Memory: 1024}))
	s.Require().NoError(err)
	s.Require().NotNil(reply)
	s.Equal("task lobby", seen.Name)
	s.Equal(int32(512), s.get("lobby").Memory)

	// the reply overwrites the peer
	peerStore := storage.NewMemory[task]()
	s.Require().NoError(peerStore.Put(s.ctx, "lobby", task{Name: "lobby", Memory: 1024}))
	peer := NewRegistry(WithConflictResolver(func(context.Context, Conflict) Decision { return Skip }))
	h, err := StoreHandler("tasks", peerStore, func(t task) string { return t.Name }, MapperConverter[task](mapper.New(), taskType))
	s.Require().NoError(err)
	peer.Register(h)
	back, err := peer.HandleBatch(s.ctx, reply)
	s.Require().NoError(err)
	s.Nil(back)
	got, _, _ := peerStore.Get(s.ctx, "lobby")
	s.Equal(int32(512), got.Memory)
}

func (s *RegistryTestSuite) TestConflictSkip() {
	s.registry = NewRegistry(WithConflictResolver(func(context.Context, Conflict) Decision { return Skip }))
	s.registry.Register(s.handler)
	s.put(task{Name: "lobby", Memory: 512})

	reply, err := s.registry.HandleBatch(s.ctx, s.batch(false, task{Name: "lobby", Memory: 1024}))
	s.Require().NoError(err)
	s.Nil(reply)
	s.Equal(int32(512), s.get("lobby").Memory)
}

func (s *RegistryTestSuite) TestUnknownKeySkipped() {
	in := wire.NewBuffer()
	in.WriteBool(false)
	in.WriteString("unknown")
	in.WriteBlob([]byte{1, 2, 3})
	peerBatch := s.batch(false, task{Name: "lobby"})
	peerBatch.ReadBool()
	_, _ = in.Write(peerBatch.Bytes())

	reply, err := s.registry.HandleBatch(s.ctx, in)
	s.Require().NoError(err)
	s.Nil(reply)
	s.Equal("lobby", s.get("lobby").Name)
}

func (s *RegistryTestSuite) TestPartialBatchIsolation() {
	failing, err := NewHandler("broken", CBORConverter[task](),
		func(context.Context, task) error { return errors.New("disk full") },
		func(context.Context, task) (task, bool, error) { return task{}, false, nil },
		func(ctx context.Context) ([]task, error) { return []task{{Name: "x"}}, nil },
	)
	s.Require().NoError(err)

	peer := NewRegistry()
	peer.Register(failing)
	peerStore := storage.NewMemory[task]()
	s.Require().NoError(peerStore.Put(s.ctx, "lobby", task{Name: "lobby"}))
	s.Require().NoError(peerStore.Put(s.ctx, "proxy", task{Name: "proxy"}))
	h, err := StoreHandler("tasks", peerStore, func(t task) string { return t.Name }, MapperConverter[task](mapper.New(), taskType))
	s.Require().NoError(err)
	peer.Register(h)

	buf := wire.NewBuffer()
	s.Require().NoError(peer.PrepareClusterData(s.ctx, buf, true))

	s.registry.Register(failing)
	_, err = s.registry.HandleBatch(s.ctx, buf)
	s.Require().Error(err)
	s.ErrorContains(err, "disk full")
	s.ErrorContains(err, `"broken"`)
	s.Equal("lobby", s.get("lobby").Name)
	s.Equal("proxy", s.get("proxy").Name)
}

func (s *RegistryTestSuite) TestMalformedObjectIsolated() {
	in := wire.NewBuffer()
	in.WriteBool(true)
	in.WriteString("tasks")
	in.WriteBlob([]byte{7}) // invalid presence flag
	peerBatch := s.batch(true, task{Name: "proxy"})
	peerBatch.ReadBool()
	_, _ = in.Write(peerBatch.Bytes())

	_, err := s.registry.HandleBatch(s.ctx, in)
	s.ErrorIs(err, wire.ErrInvalidFlag)
	s.Equal("proxy", s.get("proxy").Name)
}

func (s *RegistryTestSuite) TestTruncatedBatch() {
	in := s.batch(true, task{Name: "lobby"}, task{Name: "proxy"})
	data := in.Bytes()
	_, err := s.registry.HandleBatch(s.ctx, wire.BufferFrom(data[:len(data)-2]))
	s.ErrorIs(err, ErrMalformedBatch)
	s.Equal("lobby", s.get("lobby").Name)
}

func (s *RegistryTestSuite) TestSelectedHandlers() {
	s.put(task{Name: "lobby"})
	other, err := NewHandler("other", CBORConverter[string](),
		func(context.Context, string) error { return nil },
		func(context.Context, string) (string, bool, error) { return "", false, nil },
		func(context.Context) ([]string, error) { return []string{"a", "b"}, nil },
	)
	s.Require().NoError(err)
	s.registry.Register(other)

	buf := wire.NewBuffer()
	s.Require().NoError(s.registry.PrepareClusterData(s.ctx, buf, false, "other"))
	s.False(buf.ReadBool())
	var keys []string
	for buf.ReadableBytes() > 0 {
		keys = append(keys, buf.ReadString())
		buf.ReadBuffer()
	}
	s.Require().NoError(buf.Err())
	s.Equal([]string{"other", "other"}, keys)
}

func TestRegistry(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func TestRegisterFirstWins(t *testing.T) {
	r := NewRegistry()
	newHandler := func(owner string) Handler {
		h, err := NewHandler("templates", CBORConverter[string](),
			func(context.Context, string) error { return nil },
			func(context.Context, string) (string, bool, error) { return "", false, nil },
			func(context.Context) ([]string, error) { return nil, nil },
			WithOwner(owner),
		)
		require.NoError(t, err)
		return h
	}
	first, second := newHandler("core"), newHandler("module")
	assert.True(t, r.Register(first))
	assert.False(t, r.Register(second))
	got, _ := r.Handler("templates")
	assert.Same(t, first, got)

	assert.False(t, r.UnregisterHandler(second), "identity must match")
	assert.True(t, r.Has("templates"))
	assert.Equal(t, 0, r.UnregisterOwner("module"))
	assert.Equal(t, 1, r.UnregisterOwner("core"))
	assert.False(t, r.Has("templates"))

	assert.True(t, r.Register(second))
	assert.True(t, r.Unregister("templates"))
	assert.False(t, r.Unregister("templates"))
	assert.Empty(t, r.Keys())
}

func TestNewHandlerValidation(t *testing.T) {
	conv := CBORConverter[string]()
	write := func(context.Context, string) error { return nil }
	current := func(context.Context, string) (string, bool, error) { return "", false, nil }
	collect := func(context.Context) ([]string, error) { return nil, nil }

	_, err := NewHandler("", conv, write, current, collect)
	assert.ErrorIs(t, err, ErrInvalidHandler)
	_, err = NewHandler[string]("k", nil, write, current, collect)
	assert.ErrorIs(t, err, ErrInvalidHandler)
	_, err = NewHandler[string]("k", conv, nil, current, collect)
	assert.ErrorIs(t, err, ErrInvalidHandler)
	_, err = NewHandler[string]("k", conv, write, nil, collect)
	assert.ErrorIs(t, err, ErrInvalidHandler)
	_, err = NewHandler[string]("k", conv, write, current, nil)
	assert.ErrorIs(t, err, ErrInvalidHandler)
	_, err = NewHandler("k", conv, write, current, collect, WithEqual(func(a, b int) bool { return a == b }))
	assert.ErrorIs(t, err, ErrInvalidHandler)

	h, err := NewHandler("k", conv, write, current, collect, WithAlwaysForce(), WithOwner("m"))
	require.NoError(t, err)
	assert.True(t, h.AlwaysForce())
	assert.Equal(t, "m", h.Owner())
}

func TestAlwaysForceHandler(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	var written []string
	h, err := NewHandler("motd", CBORConverter[string](),
		func(_ context.Context, v string) error {
			mu.Lock()
			defer mu.Unlock()
			written = append(written, v)
			return nil
		},
		func(context.Context, string) (string, bool, error) { return "same", true, nil },
		func(context.Context) ([]string, error) { return []string{"same"}, nil },
		WithAlwaysForce(),
	)
	require.NoError(t, err)
	r := NewRegistry()
	r.Register(h)

	buf := wire.NewBuffer()
	require.NoError(t, r.PrepareClusterData(ctx, buf, false))
	reply, err := r.HandleBatch(ctx, buf)
	require.NoError(t, err)
	assert.Nil(t, reply)
	assert.Equal(t, []string{"same"}, written)
}
