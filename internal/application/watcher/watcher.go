// Package watcher turns dashboard refreshes into below-threshold warnings.
package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/attendify/attendify/internal/application/tracker"
	"github.com/attendify/attendify/internal/domain/attendance"
	"github.com/attendify/attendify/internal/domain/shared"
)

// DashboardSource is the snapshot stream the watcher observes.
type DashboardSource interface {
	Subscribe(fn func(tracker.DashboardState)) (unsubscribe func())
}

// Config contains watcher settings.
type Config struct {
	// Events receives a ThresholdBreachedEvent per warning. Optional.
	Events shared.EventPublisher

	// Logger for structured logging.
	Logger *slog.Logger

	// NotifyTimeout bounds a single notifier call.
	NotifyTimeout time.Duration
}

// ThresholdWatcher warns once per dashboard refresh for every course with
// at least one past session and a percentage below its requirement.
type ThresholdWatcher struct {
	notifier attendance.Notifier
	events   shared.EventPublisher
	logger   *slog.Logger
	timeout  time.Duration

	mu             sync.Mutex
	lastGeneration uint64

	// pending holds the newest unprocessed snapshot.
	pending chan tracker.DashboardState
}

// New creates a watcher.
func New(notifier attendance.Notifier, cfg Config) *ThresholdWatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	return &ThresholdWatcher{
		notifier: notifier,
		events:   cfg.Events,
		logger:   cfg.Logger.With("component", "threshold_watcher"),
		timeout:  cfg.NotifyTimeout,
		pending:  make(chan tracker.DashboardState, 1),
	}
}

// Run subscribes to source and processes snapshots until ctx is done.
// Delivery happens off the publishing goroutine; if snapshots arrive faster
// than they are processed, only the newest one is kept.
func (w *ThresholdWatcher) Run(ctx context.Context, source DashboardSource) {
	unsubscribe := source.Subscribe(w.enqueue)
	defer unsubscribe()

	w.logger.Info("threshold watcher started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("threshold watcher stopped")
			return
		case state := <-w.pending:
			w.Handle(ctx, state)
		}
	}
}

func (w *ThresholdWatcher) enqueue(state tracker.DashboardState) {
	for {
		select {
		case w.pending <- state:
			return
		default:
		}
		// Drop the stale snapshot and retry.
		select {
		case <-w.pending:
		default:
		}
	}
}

// Handle evaluates one snapshot. Snapshots whose generation was already
// handled, or that carry no completed refresh, are ignored.
// It returns the number of warnings sent.
func (w *ThresholdWatcher) Handle(ctx context.Context, state tracker.DashboardState) int {
	if state.Loading || state.Generation == 0 {
		return 0
	}

	w.mu.Lock()
	if state.Generation <= w.lastGeneration {
		w.mu.Unlock()
		return 0
	}
	w.lastGeneration = state.Generation
	w.mu.Unlock()

	sent := 0
	for _, summary := range state.Summaries {
		if !summary.NeedsWarning() {
			continue
		}
		if w.notify(ctx, summary) {
			sent++
		}
	}
	return sent
}

func (w *ThresholdWatcher) notify(ctx context.Context, summary attendance.Summary) bool {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	course := summary.Course
	err := w.notifier.NotifyBelowThreshold(ctx, course.Code, summary.AttendancePercentage, course.RequiredThreshold)
	if err != nil {
		w.logger.Warn("threshold notification failed",
			"course_code", course.Code,
			"percentage", summary.AttendancePercentage,
			"required", course.RequiredThreshold,
			"error", err,
		)
		return false
	}

	if w.events != nil {
		event := shared.NewThresholdBreachedEvent(course.ID, course.Code, summary.AttendancePercentage, course.RequiredThreshold, time.Now())
		if err := w.events.Publish(event); err != nil {
			w.logger.Warn("failed to publish event", "event_type", event.EventType(), "error", err)
		}
	}
	return true
}
