package attendance

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// CourseRepository stores courses.
type CourseRepository interface {
	// ListCourses returns all courses ordered by code.
	ListCourses(ctx context.Context) ([]Course, error)

	// GetCourse returns a course by ID.
	// Returns shared.ErrCourseNotFound if absent.
	GetCourse(ctx context.Context, id string) (Course, error)

	// GetCourseByCode returns a course by exact code.
	// Returns shared.ErrCourseNotFound if absent.
	GetCourseByCode(ctx context.Context, code string) (Course, error)

	// UpsertCourse inserts or replaces a course.
	// Returns shared.ErrCourseCodeTaken if another course has the same code.
	UpsertCourse(ctx context.Context, course Course) error

	// DeleteCourse removes a course and all of its sessions.
	DeleteCourse(ctx context.Context, id string) error
}

// SessionRepository stores sessions.
type SessionRepository interface {
	// ListSessions returns all sessions of a course ordered by time.
	ListSessions(ctx context.Context, courseID string) ([]Session, error)

	// ListSessionsInRange returns the sessions of a course with
	// start <= DateTimeMillis <= end, ordered by time.
	ListSessionsInRange(ctx context.Context, courseID string, startMillis, endMillis int64) ([]Session, error)

	// UpsertSession inserts or replaces a session.
	UpsertSession(ctx context.Context, session Session) error

	// DeleteSession removes a session.
	DeleteSession(ctx context.Context, id string) error
}

// Store combines both repositories.
type Store interface {
	CourseRepository
	SessionRepository
}

// Notifier delivers below-threshold warnings.
// Implementations without delivery permission return nil without doing anything.
type Notifier interface {
	NotifyBelowThreshold(ctx context.Context, courseCode string, percentage, required int) error
}
