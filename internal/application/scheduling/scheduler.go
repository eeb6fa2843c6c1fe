// Package scheduling decides whether a new session may be created for a
// course on a given local day and builds it. It never writes to the store.
package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/attendify/attendify/internal/domain/attendance"
	"github.com/attendify/attendify/internal/domain/shared"
	"github.com/attendify/attendify/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION SCHEDULER
// Two duplicate policies apply:
//   - check-in: blocked only by an attended session on the same day;
//   - offset day: blocked by any session on the target day.
// ══════════════════════════════════════════════════════════════════════════════

// RangeFinder is the store query the scheduler depends on.
type RangeFinder interface {
	ListSessionsInRange(ctx context.Context, courseID string, startMillis, endMillis int64) ([]attendance.Session, error)
}

// Scheduler plans new sessions.
type Scheduler struct {
	sessions RangeFinder
	ids      attendance.IDGenerator
	location *time.Location
}

// NewScheduler creates a scheduler evaluating days in loc.
func NewScheduler(sessions RangeFinder, ids attendance.IDGenerator, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		sessions: sessions,
		ids:      ids,
		location: loc,
	}
}

// Location returns the zone used for day boundaries.
func (s *Scheduler) Location() *time.Location {
	return s.location
}

// FindSessionsInRange returns the sessions of a course inside [start, end].
func (s *Scheduler) FindSessionsInRange(ctx context.Context, courseID string, startMillis, endMillis int64) ([]attendance.Session, error) {
	sessions, err := s.sessions.ListSessionsInRange(ctx, courseID, startMillis, endMillis)
	if err != nil {
		return nil, fmt.Errorf("find sessions in range: %w", err)
	}
	return sessions, nil
}

// PlanCheckIn returns an attended session stamped at now, or
// shared.ErrAlreadyCheckedIn if today already has an attended session.
// Non-attended sessions on the same day do not block.
func (s *Scheduler) PlanCheckIn(ctx context.Context, courseID string, now time.Time) (attendance.Session, error) {
	start, end := timeutil.DayBounds(now, s.location)

	existing, err := s.FindSessionsInRange(ctx, courseID, start, end)
	if err != nil {
		return attendance.Session{}, err
	}

	for _, session := range existing {
		if session.Attended {
			return attendance.Session{}, shared.ErrAlreadyCheckedIn
		}
	}

	return attendance.NewSession(s.ids.SessionID(), courseID, now, true), nil
}

// PlanOffsetSession returns a session at local noon of the day offsetDays
// away from today, or shared.ErrDuplicateSession if that day has any session.
func (s *Scheduler) PlanOffsetSession(ctx context.Context, courseID string, now time.Time, offsetDays int, attended bool) (attendance.Session, error) {
	target := timeutil.AddDays(now, offsetDays, s.location)
	start, end := timeutil.DayBounds(target, s.location)

	existing, err := s.FindSessionsInRange(ctx, courseID, start, end)
	if err != nil {
		return attendance.Session{}, err
	}
	if len(existing) > 0 {
		return attendance.Session{}, shared.ErrDuplicateSession
	}

	return attendance.NewSession(s.ids.SessionID(), courseID, timeutil.NoonOf(target, s.location), attended), nil
}
