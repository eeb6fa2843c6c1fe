package redis

import (
	"context"
	"fmt"
	"time"
)

// NotificationThrottle collapses repeated warnings for the same course
// inside a cool-down window, across restarts and instances.
type NotificationThrottle struct {
	cache    *Cache
	cooldown time.Duration
	now      func() time.Time
}

// throttleRecord is stored under the throttle key.
type throttleRecord struct {
	Percentage int       `json:"percentage"`
	Required   int       `json:"required"`
	SentAt     time.Time `json:"sent_at"`
}

// NewNotificationThrottle creates a throttle with the given window.
func NewNotificationThrottle(cache *Cache, cooldown time.Duration) *NotificationThrottle {
	return &NotificationThrottle{
		cache:    cache,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Allow reports whether a warning for courseCode may be sent now and,
// if so, claims the window.
func (t *NotificationThrottle) Allow(ctx context.Context, courseCode string, percentage, required int) (bool, error) {
	if t.cooldown <= 0 {
		return true, nil
	}

	ok, err := t.cache.SetNX(ctx, NotificationKey(courseCode), throttleRecord{
		Percentage: percentage,
		Required:   required,
		SentAt:     t.now(),
	}, t.cooldown)
	if err != nil {
		return false, fmt.Errorf("claim notification window: %w", err)
	}
	return ok, nil
}

// Release forgets the claim so the next warning is sent immediately.
// Used when delivery failed after Allow.
func (t *NotificationThrottle) Release(ctx context.Context, courseCode string) error {
	return t.cache.Delete(ctx, NotificationKey(courseCode))
}
