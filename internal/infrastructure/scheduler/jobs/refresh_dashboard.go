// Package jobs contains the scheduled jobs of the attendance service.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/attendify/attendify/internal/application/tracker"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH DASHBOARD JOB
// ══════════════════════════════════════════════════════════════════════════════

// DashboardRefresher recomputes the dashboard snapshot.
type DashboardRefresher interface {
	RefreshDashboard(ctx context.Context) (tracker.DashboardState, error)
}

// RefreshDashboardJob recomputes course summaries so that sessions that
// moved from the future into the past are counted, and so the threshold
// watcher sees a fresh generation.
type RefreshDashboardJob struct {
	name        string
	description string
	refresher   DashboardRefresher
	logger      *slog.Logger

	lastGeneration atomic.Uint64
	lastBelow      atomic.Int64
}

// NewRefreshDashboardJob creates a refresh job registered under name.
func NewRefreshDashboardJob(name, description string, refresher DashboardRefresher, logger *slog.Logger) *RefreshDashboardJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RefreshDashboardJob{
		name:        name,
		description: description,
		refresher:   refresher,
		logger:      logger.With("job", name),
	}
}

// Name returns the job name.
func (j *RefreshDashboardJob) Name() string { return j.name }

// Description returns a human-readable description of the job.
func (j *RefreshDashboardJob) Description() string { return j.description }

// Run refreshes the dashboard once.
func (j *RefreshDashboardJob) Run(ctx context.Context) error {
	state, err := j.refresher.RefreshDashboard(ctx)
	if err != nil {
		return fmt.Errorf("refresh dashboard: %w", err)
	}

	below := 0
	for _, s := range state.Summaries {
		if s.NeedsWarning() {
			below++
		}
	}
	j.lastGeneration.Store(state.Generation)
	j.lastBelow.Store(int64(below))

	j.logger.Debug("dashboard refreshed",
		"generation", state.Generation,
		"courses", len(state.Summaries),
		"below_threshold", below,
	)
	return nil
}

// LastGeneration returns the generation produced by the last successful run.
func (j *RefreshDashboardJob) LastGeneration() uint64 {
	return j.lastGeneration.Load()
}

// LastBelowThreshold returns how many courses were below threshold after
// the last successful run.
func (j *RefreshDashboardJob) LastBelowThreshold() int {
	return int(j.lastBelow.Load())
}
