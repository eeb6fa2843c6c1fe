// Package attendance holds the course and session model and the
// aggregation rules that turn recorded sessions into attendance summaries.
package attendance

import (
	"strings"
	"time"

	"github.com/attendify/attendify/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COURSE
// ══════════════════════════════════════════════════════════════════════════════

// Course is a class the student tracks attendance for.
type Course struct {
	// ID is assigned at creation and never changes.
	ID string `json:"id"`

	// Code is the short unique identifier, e.g. "CS 2063". Compared case-sensitively.
	Code string `json:"code"`

	// Name is the display name.
	Name string `json:"name"`

	// RequiredThreshold is the minimum acceptable attendance percentage.
	RequiredThreshold int `json:"required_threshold"`
}

// NewCourse builds a validated course with trimmed text and a clamped threshold.
// Blank code or name yields shared.ErrInvalidCourse.
func NewCourse(id, code, name string, threshold int) (Course, error) {
	c := Course{
		ID:                strings.TrimSpace(id),
		Code:              strings.TrimSpace(code),
		Name:              strings.TrimSpace(name),
		RequiredThreshold: shared.Percentage(threshold).Clamp().Int(),
	}
	if err := c.Validate(); err != nil {
		return Course{}, err
	}
	return c, nil
}

// Validate checks the course invariants.
func (c Course) Validate() error {
	if c.ID == "" {
		return shared.NewDomainError("course", "Validate", shared.ErrInvalidID, "course id is required")
	}
	if strings.TrimSpace(c.Code) == "" || strings.TrimSpace(c.Name) == "" {
		return shared.ErrInvalidCourse
	}
	if !shared.Percentage(c.RequiredThreshold).IsValid() {
		return shared.NewDomainError("course", "Validate", shared.ErrValueOutOfRange, "required threshold must be between 0 and 100")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION
// ══════════════════════════════════════════════════════════════════════════════

// Session is one class meeting of a course.
type Session struct {
	ID       string `json:"id"`
	CourseID string `json:"course_id"`

	// DateTimeMillis is the meeting instant in epoch milliseconds.
	// It may lie in the future for planned meetings.
	DateTimeMillis int64 `json:"date_time_millis"`

	Attended bool `json:"attended"`
}

// NewSession creates a session at the given instant.
func NewSession(id, courseID string, at time.Time, attended bool) Session {
	return Session{
		ID:             id,
		CourseID:       courseID,
		DateTimeMillis: at.UnixMilli(),
		Attended:       attended,
	}
}

// IsPast reports whether the session counts toward statistics at now.
func (s Session) IsPast(now time.Time) bool {
	return s.DateTimeMillis <= now.UnixMilli()
}

// IDGenerator issues identifiers for new entities.
type IDGenerator interface {
	// CourseID returns a new course identifier.
	CourseID() string

	// SessionID returns a new session identifier.
	SessionID() string
}
