package postgres

import (
	"context"
	"fmt"

	"github.com/attendify/attendify/internal/domain/attendance"
	"github.com/attendify/attendify/internal/domain/shared"
)

// SessionRepository implements attendance.SessionRepository for PostgreSQL.
type SessionRepository struct {
	conn *Connection
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(conn *Connection) *SessionRepository {
	return &SessionRepository{conn: conn}
}

const sessionColumns = `session_id, course_id, session_date_time_millis, is_attended`

// ListSessions returns the sessions of a course in ascending time order.
func (r *SessionRepository) ListSessions(ctx context.Context, courseID string) ([]attendance.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM attendance_sessions
		WHERE course_id = $1
		ORDER BY session_date_time_millis, session_id
	`

	return r.list(ctx, query, courseID)
}

// ListSessionsInRange returns sessions with start <= time <= end.
func (r *SessionRepository) ListSessionsInRange(ctx context.Context, courseID string, startMillis, endMillis int64) ([]attendance.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM attendance_sessions
		WHERE course_id = $1
		  AND session_date_time_millis BETWEEN $2 AND $3
		ORDER BY session_date_time_millis, session_id
	`

	return r.list(ctx, query, courseID, startMillis, endMillis)
}

// UpsertSession inserts a session or replaces the one with the same ID.
func (r *SessionRepository) UpsertSession(ctx context.Context, s attendance.Session) error {
	query := `
		INSERT INTO attendance_sessions (session_id, course_id, session_date_time_millis, is_attended)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO UPDATE SET
			course_id = EXCLUDED.course_id,
			session_date_time_millis = EXCLUDED.session_date_time_millis,
			is_attended = EXCLUDED.is_attended
	`

	q, err := r.conn.querier()
	if err != nil {
		return err
	}
	ctx, cancel := r.conn.bound(ctx)
	defer cancel()

	if _, err := q.Exec(ctx, query, s.ID, s.CourseID, s.DateTimeMillis, s.Attended); err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrCourseNotFound
		}
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	return nil
}

// DeleteSession removes a session. Deleting a missing session is a no-op.
func (r *SessionRepository) DeleteSession(ctx context.Context, id string) error {
	q, err := r.conn.querier()
	if err != nil {
		return err
	}
	ctx, cancel := r.conn.bound(ctx)
	defer cancel()

	if _, err := q.Exec(ctx, `DELETE FROM attendance_sessions WHERE session_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func deleteSessionsOfCourse(ctx context.Context, q Querier, courseID string) error {
	if _, err := q.Exec(ctx, `DELETE FROM attendance_sessions WHERE course_id = $1`, courseID); err != nil {
		return fmt.Errorf("failed to delete course sessions: %w", err)
	}
	return nil
}

func (r *SessionRepository) list(ctx context.Context, query string, args ...any) ([]attendance.Session, error) {
	q, err := r.conn.querier()
	if err != nil {
		return nil, err
	}
	ctx, cancel := r.conn.bound(ctx)
	defer cancel()

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]attendance.Session, 0)
	for rows.Next() {
		var s attendance.Session
		if err := rows.Scan(&s.ID, &s.CourseID, &s.DateTimeMillis, &s.Attended); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return sessions, nil
}
