package postgres

// Store satisfies attendance.Store with one shared connection pool.
type Store struct {
	*CourseRepository
	*SessionRepository
}

// NewStore creates a Store on conn.
func NewStore(conn *Connection) *Store {
	return &Store{
		CourseRepository:  NewCourseRepository(conn),
		SessionRepository: NewSessionRepository(conn),
	}
}
