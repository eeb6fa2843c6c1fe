package postgres

import (
	"context"
	"fmt"

	"github.com/attendify/attendify/internal/domain/attendance"
	"github.com/attendify/attendify/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// CourseRepository implements attendance.CourseRepository for PostgreSQL.
type CourseRepository struct {
	conn *Connection
}

// NewCourseRepository creates a new CourseRepository.
func NewCourseRepository(conn *Connection) *CourseRepository {
	return &CourseRepository{conn: conn}
}

const courseColumns = `course_id, course_code, course_name, required_attendance_threshold`

// ListCourses returns every course ordered by code.
func (r *CourseRepository) ListCourses(ctx context.Context) ([]attendance.Course, error) {
	q, err := r.conn.querier()
	if err != nil {
		return nil, err
	}
	ctx, cancel := r.conn.bound(ctx)
	defer cancel()

	rows, err := q.Query(ctx, `SELECT `+courseColumns+` FROM courses ORDER BY course_code`)
	if err != nil {
		return nil, fmt.Errorf("failed to query courses: %w", err)
	}
	defer rows.Close()

	courses := make([]attendance.Course, 0)
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate courses: %w", err)
	}

	return courses, nil
}

// GetCourse returns a course by ID.
func (r *CourseRepository) GetCourse(ctx context.Context, id string) (attendance.Course, error) {
	return r.getOne(ctx, `course_id`, id)
}

// GetCourseByCode returns a course by its exact code.
func (r *CourseRepository) GetCourseByCode(ctx context.Context, code string) (attendance.Course, error) {
	return r.getOne(ctx, `course_code`, code)
}

func (r *CourseRepository) getOne(ctx context.Context, column, value string) (attendance.Course, error) {
	q, err := r.conn.querier()
	if err != nil {
		return attendance.Course{}, err
	}
	ctx, cancel := r.conn.bound(ctx)
	defer cancel()

	return scanCourse(q.QueryRow(ctx, `SELECT `+courseColumns+` FROM courses WHERE `+column+` = $1`, value))
}

// UpsertCourse inserts a course or replaces the one with the same ID.
func (r *CourseRepository) UpsertCourse(ctx context.Context, c attendance.Course) error {
	query := `
		INSERT INTO courses (course_id, course_code, course_name, required_attendance_threshold)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (course_id) DO UPDATE SET
			course_code = EXCLUDED.course_code,
			course_name = EXCLUDED.course_name,
			required_attendance_threshold = EXCLUDED.required_attendance_threshold,
			updated_at = NOW()
	`

	q, err := r.conn.querier()
	if err != nil {
		return err
	}
	ctx, cancel := r.conn.bound(ctx)
	defer cancel()

	if _, err := q.Exec(ctx, query, c.ID, c.Code, c.Name, c.RequiredThreshold); err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrCourseCodeTaken
		}
		return fmt.Errorf("failed to upsert course: %w", err)
	}

	return nil
}

// DeleteCourse removes a course together with its sessions.
func (r *CourseRepository) DeleteCourse(ctx context.Context, id string) error {
	ctx, cancel := r.conn.bound(ctx)
	defer cancel()

	return r.conn.WithTx(ctx, func(tx Querier) error {
		if err := deleteSessionsOfCourse(ctx, tx, id); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `DELETE FROM courses WHERE course_id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete course: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrCourseNotFound
		}
		return nil
	})
}

func scanCourse(row pgx.Row) (attendance.Course, error) {
	var c attendance.Course
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.RequiredThreshold); err != nil {
		if IsNoRows(err) {
			return attendance.Course{}, shared.ErrCourseNotFound
		}
		return attendance.Course{}, fmt.Errorf("failed to scan course: %w", err)
	}
	return c, nil
}
