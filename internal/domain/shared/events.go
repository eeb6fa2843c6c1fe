// Package shared contains common domain types, errors and events
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types.
const (
	// Course events
	EventCourseCreated EventType = "course.created"
	EventCourseUpdated EventType = "course.updated"
	EventCourseDeleted EventType = "course.deleted"

	// Attendance events
	EventSessionRecorded EventType = "attendance.session_recorded"

	// Dashboard events
	EventDashboardRefreshed EventType = "dashboard.refreshed"

	// Notification events
	EventThresholdBreached EventType = "notification.threshold_breached"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Course Events
// ═══════════════════════════════════════════════════════════════════════════

// CourseChangedEvent is emitted when a course is created, updated or deleted.
type CourseChangedEvent struct {
	BaseEvent
	Code              string `json:"code"`
	Name              string `json:"name"`
	RequiredThreshold int    `json:"required_threshold"`
}

// Payload implements Event interface.
func (e CourseChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"code":               e.Code,
		"name":               e.Name,
		"required_threshold": e.RequiredThreshold,
	}
}

// NewCourseChangedEvent creates a new CourseChangedEvent of the given type.
func NewCourseChangedEvent(eventType EventType, courseID, code, name string, threshold int, at time.Time) CourseChangedEvent {
	return CourseChangedEvent{
		BaseEvent:         NewBaseEvent(eventType, courseID, at),
		Code:              code,
		Name:              name,
		RequiredThreshold: threshold,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Attendance Events
// ═══════════════════════════════════════════════════════════════════════════

// SessionRecordedEvent is emitted after a session has been persisted.
type SessionRecordedEvent struct {
	BaseEvent
	SessionID      string `json:"session_id"`
	DateTimeMillis int64  `json:"date_time_millis"`
	Attended       bool   `json:"attended"`
}

// Payload implements Event interface.
func (e SessionRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id":       e.SessionID,
		"date_time_millis": e.DateTimeMillis,
		"attended":         e.Attended,
	}
}

// NewSessionRecordedEvent creates a new SessionRecordedEvent.
func NewSessionRecordedEvent(courseID, sessionID string, dateTimeMillis int64, attended bool, at time.Time) SessionRecordedEvent {
	return SessionRecordedEvent{
		BaseEvent:      NewBaseEvent(EventSessionRecorded, courseID, at),
		SessionID:      sessionID,
		DateTimeMillis: dateTimeMillis,
		Attended:       attended,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Dashboard Events
// ═══════════════════════════════════════════════════════════════════════════

// DashboardRefreshedEvent is emitted after every successful dashboard refresh.
type DashboardRefreshedEvent struct {
	BaseEvent
	Generation  uint64 `json:"generation"`
	CourseCount int    `json:"course_count"`
	BelowCount  int    `json:"below_count"`
}

// Payload implements Event interface.
func (e DashboardRefreshedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"generation":   e.Generation,
		"course_count": e.CourseCount,
		"below_count":  e.BelowCount,
	}
}

// NewDashboardRefreshedEvent creates a new DashboardRefreshedEvent.
func NewDashboardRefreshedEvent(generation uint64, courses, below int, at time.Time) DashboardRefreshedEvent {
	return DashboardRefreshedEvent{
		BaseEvent:   NewBaseEvent(EventDashboardRefreshed, "dashboard", at),
		Generation:  generation,
		CourseCount: courses,
		BelowCount:  below,
	}
}

// ThresholdBreachedEvent is emitted when the watcher reports a course below its threshold.
type ThresholdBreachedEvent struct {
	BaseEvent
	Code       string `json:"code"`
	Percentage int    `json:"percentage"`
	Required   int    `json:"required"`
}

// Payload implements Event interface.
func (e ThresholdBreachedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"code":       e.Code,
		"percentage": e.Percentage,
		"required":   e.Required,
	}
}

// NewThresholdBreachedEvent creates a new ThresholdBreachedEvent.
func NewThresholdBreachedEvent(courseID, code string, percentage, required int, at time.Time) ThresholdBreachedEvent {
	return ThresholdBreachedEvent{
		BaseEvent:  NewBaseEvent(EventThresholdBreached, courseID, at),
		Code:       code,
		Percentage: percentage,
		Required:   required,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Bus Interfaces
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
