// Package messaging carries domain events between components. Events are
// delivered to subscribers inside the process and, when a mirror is
// configured, copied to a Redis Pub/Sub channel for outside consumers.
package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/attendify/attendify/internal/domain/shared"
)

var (
	// ErrEventBusClosed is returned by Publish and Subscribe after Close.
	ErrEventBusClosed = errors.New("event bus is closed")

	errNilHandler = errors.New("handler cannot be nil")
	errNilEvent   = errors.New("event cannot be nil")
)

// DefaultChannel is the Redis channel events are mirrored to.
const DefaultChannel = "attendify:events"

// Mirror publishes a JSON-encodable message on a channel. *redis.Cache
// satisfies it.
type Mirror interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Config configures a Bus.
type Config struct {
	// Workers is the number of delivery goroutines. Zero delivers on the
	// publisher's goroutine.
	Workers int

	// QueueSize bounds undelivered events. Publish blocks when it is full.
	QueueSize int

	// Mirror is optional. Events are mirrored from a background goroutine
	// through a queue of MirrorQueueSize. Events arriving while it is full
	// are dropped.
	Mirror          Mirror
	MirrorQueueSize int
	Channel         string
	MirrorTimeout   time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns an asynchronous bus without a mirror.
func DefaultConfig() Config {
	return Config{Workers: 4, QueueSize: 256}
}

type delivery struct {
	event    shared.Event
	handlers []shared.EventHandler
}

// ══════════════════════════════════════════════════════════════════════════════
// BUS
// ══════════════════════════════════════════════════════════════════════════════

// Bus fans events out to handlers subscribed by type or to all events.
// Handler errors and panics are logged and counted, never returned.
type Bus struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	byType map[shared.EventType][]shared.EventHandler
	all    []shared.EventHandler
	closed bool

	queue   chan delivery
	workers sync.WaitGroup

	mirrorQ  chan shared.Event
	mirrorWG sync.WaitGroup

	published atomic.Int64
	failures  atomic.Int64
	dropped   atomic.Int64
}

// New creates a bus and starts its workers.
func New(cfg Config) *Bus {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.MirrorTimeout <= 0 {
		cfg.MirrorTimeout = 2 * time.Second
	}
	if cfg.MirrorQueueSize <= 0 {
		cfg.MirrorQueueSize = 256
	}

	b := &Bus{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "eventbus"),
		byType: make(map[shared.EventType][]shared.EventHandler),
	}

	if cfg.Workers > 0 {
		b.queue = make(chan delivery, max(cfg.QueueSize, cfg.Workers))
		b.workers.Add(cfg.Workers)
		for range cfg.Workers {
			go b.work()
		}
	}
	if cfg.Mirror != nil {
		b.mirrorQ = make(chan shared.Event, cfg.MirrorQueueSize)
		b.mirrorWG.Add(1)
		go b.mirrorLoop()
	}
	return b
}

// Subscribe registers handler for one event type.
func (b *Bus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.subscribe(handler, func() {
		b.byType[eventType] = append(b.byType[eventType], handler)
	})
}

// SubscribeAll registers handler for every event.
func (b *Bus) SubscribeAll(handler shared.EventHandler) error {
	return b.subscribe(handler, func() {
		b.all = append(b.all, handler)
	})
}

func (b *Bus) subscribe(handler shared.EventHandler, add func()) error {
	if handler == nil {
		return errNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	add()
	return nil
}

// Publish delivers event locally and hands it to the mirror when one is
// set. It never waits on the mirror.
func (b *Bus) Publish(event shared.Event) error {
	if event == nil {
		return errNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}

	d := delivery{event: event}
	d.handlers = append(d.handlers, b.byType[event.EventType()]...)
	d.handlers = append(d.handlers, b.all...)

	b.enqueueMirror(event)
	b.published.Add(1)

	if b.queue != nil {
		// Close needs the write lock, so the queue stays open while the
		// read lock is held.
		if len(d.handlers) > 0 {
			b.queue <- d
		}
		b.mu.RUnlock()
		return nil
	}
	b.mu.RUnlock()

	b.deliver(d)
	return nil
}

// enqueueMirror must be called with b.mu read-locked.
func (b *Bus) enqueueMirror(event shared.Event) {
	if b.mirrorQ == nil {
		return
	}
	select {
	case b.mirrorQ <- event:
	default:
		b.dropped.Add(1)
		b.logger.Warn("mirror queue full, event not mirrored", "event_type", event.EventType())
	}
}

func (b *Bus) mirrorLoop() {
	defer b.mirrorWG.Done()
	for event := range b.mirrorQ {
		b.mirror(event)
	}
}

func (b *Bus) mirror(event shared.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.MirrorTimeout)
	defer cancel()

	if err := b.cfg.Mirror.Publish(ctx, b.cfg.Channel, newEnvelope(event)); err != nil {
		b.logger.Warn("failed to mirror event", "event_type", event.EventType(), "channel", b.cfg.Channel, "error", err)
	}
}

func (b *Bus) work() {
	defer b.workers.Done()
	for d := range b.queue {
		b.deliver(d)
	}
}

func (b *Bus) deliver(d delivery) {
	for _, handler := range d.handlers {
		b.invoke(d.event, handler)
	}
}

func (b *Bus) invoke(event shared.Event, handler shared.EventHandler) {
	defer func() {
		if r := recover(); r != nil {
			b.failures.Add(1)
			b.logger.Error("event handler panicked", "event_type", event.EventType(), "panic", r)
		}
	}()

	if err := handler(event); err != nil {
		b.failures.Add(1)
		b.logger.Error("event handler failed", "event_type", event.EventType(), "error", err)
	}
}

// Stats returns the number of published events and failed handler runs.
func (b *Bus) Stats() (published, failures int64) {
	return b.published.Load(), b.failures.Load()
}

// MirrorDropped returns how many events were not mirrored because the
// mirror queue was full.
func (b *Bus) MirrorDropped() int64 {
	return b.dropped.Load()
}

// Close rejects further events and waits until queued ones are delivered
// and mirrored.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.queue != nil {
		close(b.queue)
	}
	if b.mirrorQ != nil {
		close(b.mirrorQ)
	}
	b.mu.Unlock()

	b.workers.Wait()
	b.mirrorWG.Wait()
	b.logger.Info("event bus closed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRE FORMAT
// ══════════════════════════════════════════════════════════════════════════════

// Envelope is the JSON form of an event on the mirror channel.
type Envelope struct {
	EventType   shared.EventType       `json:"event_type"`
	AggregateID string                 `json:"aggregate_id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Payload     map[string]interface{} `json:"payload"`
}

func newEnvelope(event shared.Event) Envelope {
	return Envelope{
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Payload:     event.Payload(),
	}
}

// SubscribeAuditLog logs every event at info level.
func SubscribeAuditLog(bus shared.EventSubscriber, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	return bus.SubscribeAll(func(event shared.Event) error {
		logger.Info("domain event",
			"event_type", event.EventType(),
			"aggregate_id", event.AggregateID(),
			"occurred_at", event.OccurredAt(),
			"payload", event.Payload(),
		)
		return nil
	})
}
