package scheduling

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendify/attendify/internal/domain/attendance"
	"github.com/attendify/attendify/internal/domain/shared"
	"github.com/attendify/attendify/internal/infrastructure/persistence/memory"
)

type seqIDs struct{ n int }

func (g *seqIDs) CourseID() string {
	g.n++
	return fmt.Sprintf("course-%d", g.n)
}

func (g *seqIDs) SessionID() string {
	g.n++
	return fmt.Sprintf("session-%d", g.n)
}

type failingFinder struct{}

func (failingFinder) ListSessionsInRange(context.Context, string, int64, int64) ([]attendance.Session, error) {
	return nil, errors.New("disk full")
}

var (
	loc = time.UTC
	now = time.Date(2025, 3, 10, 9, 15, 0, 0, loc)
)

func newFixture(t *testing.T) (*Scheduler, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.UpsertCourse(context.Background(), attendance.Course{ID: "c1", Code: "CS", Name: "Systems", RequiredThreshold: 75}))
	return NewScheduler(store, &seqIDs{}, loc), store
}

func TestPlanCheckIn_StampsNow(t *testing.T) {
	s, _ := newFixture(t)

	session, err := s.PlanCheckIn(context.Background(), "c1", now)

	require.NoError(t, err)
	assert.Equal(t, now.UnixMilli(), session.DateTimeMillis)
	assert.True(t, session.Attended)
	assert.Equal(t, "c1", session.CourseID)
	assert.NotEmpty(t, session.ID)
}

func TestPlanCheckIn_BlockedByAttendedSessionToday(t *testing.T) {
	s, store := newFixture(t)
	ctx := context.Background()

	first, err := s.PlanCheckIn(ctx, "c1", now)
	require.NoError(t, err)
	require.NoError(t, store.UpsertSession(ctx, first))

	_, err = s.PlanCheckIn(ctx, "c1", now.Add(5*time.Hour))
	assert.True(t, errors.Is(err, shared.ErrAlreadyCheckedIn))
}

func TestPlanCheckIn_PlaceholderDoesNotBlock(t *testing.T) {
	s, store := newFixture(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertSession(ctx, attendance.Session{
		ID: "planned", CourseID: "c1", DateTimeMillis: now.Add(2 * time.Hour).UnixMilli(), Attended: false,
	}))

	session, err := s.PlanCheckIn(ctx, "c1", now)

	require.NoError(t, err)
	assert.True(t, session.Attended)
}

func TestPlanCheckIn_NextDayIsAllowed(t *testing.T) {
	s, store := newFixture(t)
	ctx := context.Background()
	first, err := s.PlanCheckIn(ctx, "c1", now)
	require.NoError(t, err)
	require.NoError(t, store.UpsertSession(ctx, first))

	_, err = s.PlanCheckIn(ctx, "c1", now.Add(24*time.Hour))
	assert.NoError(t, err)
}

func TestPlanOffsetSession_NoonOfTargetDay(t *testing.T) {
	s, _ := newFixture(t)

	session, err := s.PlanOffsetSession(context.Background(), "c1", now, -1, false)

	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 9, 12, 0, 0, 0, loc).UnixMilli(), session.DateTimeMillis)
	assert.False(t, session.Attended)

	session, err = s.PlanOffsetSession(context.Background(), "c1", now, 1, true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 11, 12, 0, 0, 0, loc).UnixMilli(), session.DateTimeMillis)
	assert.True(t, session.Attended)
}

func TestPlanOffsetSession_AnySessionBlocks(t *testing.T) {
	for _, attended := range []bool{true, false} {
		t.Run(fmt.Sprintf("attended=%v", attended), func(t *testing.T) {
			s, store := newFixture(t)
			ctx := context.Background()
			require.NoError(t, store.UpsertSession(ctx, attendance.Session{
				ID: "y", CourseID: "c1", DateTimeMillis: time.Date(2025, 3, 9, 23, 59, 0, 0, loc).UnixMilli(), Attended: attended,
			}))

			_, err := s.PlanOffsetSession(ctx, "c1", now, -1, false)
			assert.True(t, errors.Is(err, shared.ErrDuplicateSession))
		})
	}
}

func TestPlanOffsetSession_OtherCourseDoesNotBlock(t *testing.T) {
	s, store := newFixture(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertCourse(ctx, attendance.Course{ID: "c2", Code: "MATH", Name: "Calc"}))
	require.NoError(t, store.UpsertSession(ctx, attendance.Session{
		ID: "m", CourseID: "c2", DateTimeMillis: time.Date(2025, 3, 9, 12, 0, 0, 0, loc).UnixMilli(),
	}))

	_, err := s.PlanOffsetSession(ctx, "c1", now, -1, false)
	assert.NoError(t, err)
}

func TestPlan_PropagatesStoreErrors(t *testing.T) {
	s := NewScheduler(failingFinder{}, &seqIDs{}, loc)

	_, err := s.PlanCheckIn(context.Background(), "c1", now)
	assert.Error(t, err)

	_, err = s.PlanOffsetSession(context.Background(), "c1", now, 1, false)
	assert.Error(t, err)
}

func TestNewScheduler_Location(t *testing.T) {
	almaty := time.FixedZone("UTC+5", 5*3600)
	assert.Equal(t, almaty, NewScheduler(failingFinder{}, &seqIDs{}, almaty).Location())
	assert.Equal(t, time.UTC, NewScheduler(failingFinder{}, &seqIDs{}, nil).Location())
}
