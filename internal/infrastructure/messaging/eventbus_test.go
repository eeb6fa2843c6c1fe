package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendify/attendify/internal/domain/shared"
)

func testEvent() shared.Event {
	return shared.NewSessionRecordedEvent("c1", "s1", 1000, true, time.Unix(0, 0))
}

func TestBus_SyncDelivery(t *testing.T) {
	bus := New(Config{})
	var typed, all []shared.EventType

	require.NoError(t, bus.Subscribe(shared.EventSessionRecorded, func(e shared.Event) error {
		typed = append(typed, e.EventType())
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventCourseCreated, func(e shared.Event) error {
		t.Fatal("unexpected delivery")
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, e.EventType())
		return errors.New("handler failed")
	}))

	require.NoError(t, bus.Publish(testEvent()))

	assert.Equal(t, []shared.EventType{shared.EventSessionRecorded}, typed)
	assert.Equal(t, []shared.EventType{shared.EventSessionRecorded}, all)
	published, failures := bus.Stats()
	assert.Equal(t, int64(1), published)
	assert.Equal(t, int64(1), failures)
}

func TestBus_AsyncCloseWaits(t *testing.T) {
	bus := New(DefaultConfig())
	var mu sync.Mutex
	count := 0
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(testEvent()))
	}
	require.NoError(t, bus.Close())

	assert.Equal(t, 10, count)
	assert.ErrorIs(t, bus.Publish(testEvent()), ErrEventBusClosed)
}

func TestBus_RecoversPanics(t *testing.T) {
	bus := New(Config{})
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("boom") }))

	assert.NotPanics(t, func() { _ = bus.Publish(testEvent()) })
}

type fakeRedis struct {
	mu       sync.Mutex
	channels []string
	messages []string
	err      error
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channel)
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	f.messages = append(f.messages, string(data))
	return f.err
}

func TestBus_MirrorsAndDeliversLocally(t *testing.T) {
	client := &fakeRedis{err: errors.New("redis down")}
	bus := New(Config{Mirror: client})

	delivered := 0
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { delivered++; return nil }))

	require.NoError(t, bus.Publish(testEvent()))
	assert.Equal(t, 1, delivered)

	require.NoError(t, bus.Close())
	require.Len(t, client.messages, 1)
	assert.Equal(t, DefaultChannel, client.channels[0])

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(client.messages[0]), &env))
	assert.Equal(t, shared.EventSessionRecorded, env.EventType)
	assert.Equal(t, "c1", env.AggregateID)
	assert.Equal(t, "s1", env.Payload["session_id"])
}

func TestBus_SubscribeAfterClose(t *testing.T) {
	bus := New(DefaultConfig())
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)
	assert.Error(t, bus.Subscribe(shared.EventCourseCreated, nil))
}

type stuckMirror struct {
	started chan struct{}
	once    sync.Once
}

func (m *stuckMirror) Publish(ctx context.Context, _ string, _ interface{}) error {
	m.once.Do(func() { close(m.started) })
	<-ctx.Done()
	return ctx.Err()
}

func TestBus_UnresponsiveMirrorDoesNotBlockPublish(t *testing.T) {
	mirror := &stuckMirror{started: make(chan struct{})}
	bus := New(Config{Mirror: mirror, MirrorTimeout: 50 * time.Millisecond})

	delivered := 0
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { delivered++; return nil }))

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(testEvent()))
	}
	assert.Less(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, 5, delivered)

	require.NoError(t, bus.Close())
}

func TestBus_FullMirrorQueueDropsEvents(t *testing.T) {
	mirror := &stuckMirror{started: make(chan struct{})}
	bus := New(Config{Mirror: mirror, MirrorQueueSize: 1, MirrorTimeout: 50 * time.Millisecond})

	require.NoError(t, bus.Publish(testEvent()))
	<-mirror.started

	require.NoError(t, bus.Publish(testEvent()))
	require.NoError(t, bus.Publish(testEvent()))

	assert.Equal(t, int64(1), bus.MirrorDropped())
	published, _ := bus.Stats()
	assert.Equal(t, int64(3), published)

	require.NoError(t, bus.Close())
}
