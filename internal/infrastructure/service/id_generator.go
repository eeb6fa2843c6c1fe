package service

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// IDGeneratorImpl implements attendance.IDGenerator.
// Courses get UUIDs, sessions get ULIDs so their IDs sort by creation time.
type IDGeneratorImpl struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewIDGenerator() *IDGeneratorImpl {
	return &IDGeneratorImpl{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (g *IDGeneratorImpl) CourseID() string {
	return uuid.New().String()
}

func (g *IDGeneratorImpl) SessionID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}
