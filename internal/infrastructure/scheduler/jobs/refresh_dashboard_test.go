package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/attendify/attendify/internal/application/tracker"
	"github.com/attendify/attendify/internal/domain/attendance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRefresher struct {
	state tracker.DashboardState
	err   error
	calls int
}

func (s *stubRefresher) RefreshDashboard(context.Context) (tracker.DashboardState, error) {
	s.calls++
	return s.state, s.err
}

func TestRefreshDashboardJob_Run(t *testing.T) {
	refresher := &stubRefresher{state: tracker.DashboardState{
		Generation: 7,
		Summaries: []attendance.Summary{
			{Course: attendance.Course{RequiredThreshold: 80}, TotalSessions: 4, AttendancePercentage: 50, IsBelowThreshold: true},
			{Course: attendance.Course{RequiredThreshold: 80}, TotalSessions: 4, AttendancePercentage: 100},
			{Course: attendance.Course{RequiredThreshold: 80}, TotalSessions: 0},
		},
	}}
	job := NewRefreshDashboardJob("refresh_dashboard", "refresh", refresher, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, "refresh_dashboard", job.Name())
	assert.Equal(t, uint64(7), job.LastGeneration())
	assert.Equal(t, 1, job.LastBelowThreshold())
	assert.Equal(t, 1, refresher.calls)
}

func TestRefreshDashboardJob_Error(t *testing.T) {
	boom := errors.New("boom")
	job := NewRefreshDashboardJob("refresh_dashboard", "refresh", &stubRefresher{err: boom}, nil)

	err := job.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, job.LastGeneration())
}
