// Package memory provides an in-process attendance store used when no
// database is configured and in tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/attendify/attendify/internal/domain/attendance"
	"github.com/attendify/attendify/internal/domain/shared"
)

// Store keeps courses and sessions in maps guarded by a RWMutex.
type Store struct {
	mu       sync.RWMutex
	courses  map[string]attendance.Course
	sessions map[string]attendance.Session
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		courses:  make(map[string]attendance.Course),
		sessions: make(map[string]attendance.Session),
	}
}

// ListCourses returns all courses ordered by code.
func (s *Store) ListCourses(ctx context.Context) ([]attendance.Course, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	courses := make([]attendance.Course, 0, len(s.courses))
	for _, c := range s.courses {
		courses = append(courses, c)
	}
	sort.Slice(courses, func(i, j int) bool {
		return courses[i].Code < courses[j].Code
	})
	return courses, nil
}

// GetCourse returns a course by ID.
func (s *Store) GetCourse(ctx context.Context, id string) (attendance.Course, error) {
	if err := ctx.Err(); err != nil {
		return attendance.Course{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.courses[id]
	if !ok {
		return attendance.Course{}, shared.ErrCourseNotFound
	}
	return c, nil
}

// GetCourseByCode returns a course by exact code.
func (s *Store) GetCourseByCode(ctx context.Context, code string) (attendance.Course, error) {
	if err := ctx.Err(); err != nil {
		return attendance.Course{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.courses {
		if c.Code == code {
			return c, nil
		}
	}
	return attendance.Course{}, shared.ErrCourseNotFound
}

// UpsertCourse inserts or replaces a course.
func (s *Store) UpsertCourse(ctx context.Context, course attendance.Course) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.courses {
		if id != course.ID && c.Code == course.Code {
			return shared.ErrCourseCodeTaken
		}
	}
	s.courses[course.ID] = course
	return nil
}

// DeleteCourse removes a course and its sessions.
func (s *Store) DeleteCourse(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.courses, id)
	for sid, session := range s.sessions {
		if session.CourseID == id {
			delete(s.sessions, sid)
		}
	}
	return nil
}

// ListSessions returns all sessions of a course ordered by time.
func (s *Store) ListSessions(ctx context.Context, courseID string) ([]attendance.Session, error) {
	return s.collect(ctx, func(session attendance.Session) bool {
		return session.CourseID == courseID
	})
}

// ListSessionsInRange returns sessions with start <= time <= end.
func (s *Store) ListSessionsInRange(ctx context.Context, courseID string, startMillis, endMillis int64) ([]attendance.Session, error) {
	return s.collect(ctx, func(session attendance.Session) bool {
		return session.CourseID == courseID &&
			session.DateTimeMillis >= startMillis &&
			session.DateTimeMillis <= endMillis
	})
}

// UpsertSession inserts or replaces a session.
// Sessions referencing an unknown course are rejected.
func (s *Store) UpsertSession(ctx context.Context, session attendance.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.courses[session.CourseID]; !ok {
		return shared.ErrCourseNotFound
	}
	s.sessions[session.ID] = session
	return nil
}

// DeleteSession removes a session.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

func (s *Store) collect(ctx context.Context, match func(attendance.Session) bool) ([]attendance.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]attendance.Session, 0)
	for _, session := range s.sessions {
		if match(session) {
			out = append(out, session)
		}
	}
	attendance.SortSessions(out)
	return out, nil
}

var _ attendance.Store = (*Store)(nil)
