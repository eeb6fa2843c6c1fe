package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrMigrationFailed wraps any error raised while applying a migration.
var ErrMigrationFailed = errors.New("postgres: migration failed")

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// GetMigrations returns the schema history in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_courses", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_attendance_sessions", UpSQL: migration002Up, DownSQL: migration002Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

const migrationsTable = "schema_migrations"

// Migrator applies pending migrations and records them in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	logger     *slog.Logger
}

// NewMigrator creates a migrator for the built-in schema.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		logger:     conn.logger,
	}
}

// Migrate applies every pending migration, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	pending, err := m.Pending(ctx)
	if err != nil {
		return err
	}

	for _, mig := range pending {
		err := m.conn.WithTx(ctx, func(q Querier) error {
			if _, err := q.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := q.Exec(ctx, `INSERT INTO `+migrationsTable+` (version, name) VALUES ($1, $2)`, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d (%s): %v", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
		m.logger.Info("migration applied", "version", mig.Version, "name", mig.Name)
	}

	return nil
}

// Pending lists the migrations not yet recorded as applied.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	q, err := m.conn.querier()
	if err != nil {
		return nil, err
	}

	if _, err := q.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+migrationsTable+` (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`); err != nil {
		return nil, fmt.Errorf("postgres: create %s: %w", migrationsTable, err)
	}

	rows, err := q.Query(ctx, `SELECT version FROM `+migrationsTable)
	if err != nil {
		return nil, fmt.Errorf("postgres: read %s: %w", migrationsTable, err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("postgres: scan %s: %w", migrationsTable, err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return pendingMigrations(m.migrations, applied), nil
}

func pendingMigrations(all []Migration, applied map[int]bool) []Migration {
	var pending []Migration
	for _, mig := range all {
		if !applied[mig.Version] {
			pending = append(pending, mig)
		}
	}
	return pending
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEMA
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS courses (
    course_id TEXT PRIMARY KEY,
    course_code VARCHAR(64) NOT NULL,
    course_name VARCHAR(200) NOT NULL,
    required_attendance_threshold INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT courses_code_unique UNIQUE (course_code),
    CONSTRAINT valid_required_threshold CHECK (required_attendance_threshold >= 0 AND required_attendance_threshold <= 100)
);
`

const migration001Down = `
DROP TABLE IF EXISTS courses;
`

const migration002Up = `
CREATE TABLE IF NOT EXISTS attendance_sessions (
    session_id TEXT PRIMARY KEY,
    course_id TEXT NOT NULL REFERENCES courses(course_id) ON DELETE CASCADE,
    session_date_time_millis BIGINT NOT NULL,
    is_attended BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

-- Day-range lookups per course
CREATE INDEX IF NOT EXISTS idx_sessions_course_time
    ON attendance_sessions(course_id, session_date_time_millis);
`

const migration002Down = `
DROP INDEX IF EXISTS idx_sessions_course_time;
DROP TABLE IF EXISTS attendance_sessions;
`
