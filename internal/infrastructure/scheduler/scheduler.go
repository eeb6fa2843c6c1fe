// Package scheduler runs periodic background jobs such as the dashboard
// refresh.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrNilJob                  = errors.New("job cannot be nil")
	ErrNilSchedule             = errors.New("schedule cannot be nil")
	ErrJobAlreadyExists        = errors.New("job already exists")
	ErrJobNotFound             = errors.New("job not found")
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)

// Job is a unit of background work.
type Job interface {
	Name() string
	Description() string

	// Run executes the job. ctx is cancelled when the scheduler stops.
	Run(ctx context.Context) error
}

// Schedule decides when a job runs next.
type Schedule interface {
	// Next returns the first run time strictly after t.
	Next(t time.Time) time.Time
	String() string
}

// JobResult describes one execution.
type JobResult struct {
	JobName   string
	StartedAt time.Time
	Duration  time.Duration
	Error     error
	Manual    bool
}

// Success reports whether the run returned no error.
func (r JobResult) Success() bool {
	return r.Error == nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// SchedulerConfig contains configuration for the Scheduler.
type SchedulerConfig struct {
	Logger *slog.Logger

	// Timezone schedules are evaluated in. Defaults to UTC.
	Timezone *time.Location

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Scheduler runs every registered job on its own timer loop. Runs of the
// same job, scheduled or manual, never overlap.
type Scheduler struct {
	logger   *slog.Logger
	timezone *time.Location
	now      func() time.Time

	mu      sync.Mutex
	jobs    map[string]*entry
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time
	wg      sync.WaitGroup

	executions atomic.Int64
	failures   atomic.Int64
	busyNanos  atomic.Int64
}

type entry struct {
	job      Job
	schedule Schedule
	enabled  atomic.Bool

	// runMu serializes executions of this job.
	runMu sync.Mutex

	mu       sync.Mutex
	nextRun  time.Time
	runs     int64
	failures int64
	last     *JobResult
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(config SchedulerConfig) *Scheduler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Scheduler{
		logger:   config.Logger.With("component", "scheduler"),
		timezone: config.Timezone,
		now:      config.Now,
		jobs:     make(map[string]*entry),
	}
}

// Register adds job. Jobs registered on a running scheduler start at once.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	e := &entry{job: job, schedule: schedule}
	e.enabled.Store(true)
	e.nextRun = schedule.Next(s.now().In(s.timezone))
	s.jobs[name] = e

	s.logger.Info("job registered",
		"job", name,
		"description", job.Description(),
		"schedule", schedule.String(),
		"next_run", e.nextRun.Format(time.RFC3339),
	)

	if s.ctx != nil {
		s.spawn(e)
	}
	return nil
}

// DisableJob stops scheduled runs of a job. RunNow still works.
func (s *Scheduler) DisableJob(name string) error {
	s.mu.Lock()
	e, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	e.enabled.Store(false)
	s.logger.Info("job disabled", "job", name)
	return nil
}

// Start launches the job loops. They stop when ctx ends or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return ErrSchedulerAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = s.now()

	for _, e := range s.jobs {
		s.spawn(e)
	}
	s.logger.Info("scheduler started", "jobs_count", len(s.jobs))
	return nil
}

// Stop cancels running jobs and waits for every loop to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.cancel()
	s.ctx, s.cancel = nil, nil
	started := s.started
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped", "uptime", s.now().Sub(started).String())
	return nil
}

// IsRunning reports whether Start was called without a matching Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx != nil
}

// spawn must be called with s.mu held.
func (s *Scheduler) spawn(e *entry) {
	s.wg.Add(1)
	go s.loop(s.ctx, e)
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	defer s.wg.Done()

	for {
		e.mu.Lock()
		wait := e.nextRun.Sub(s.now())
		e.mu.Unlock()

		timer := time.NewTimer(max(wait, 0))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		e.mu.Lock()
		e.nextRun = e.schedule.Next(s.now().In(s.timezone))
		e.mu.Unlock()

		if e.enabled.Load() {
			s.execute(ctx, e, false)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, e *entry, manual bool) JobResult {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	name := e.job.Name()
	s.logger.Debug("job started", "job", name, "manual", manual)

	started := s.now()
	err := e.job.Run(ctx)
	result := JobResult{
		JobName:   name,
		StartedAt: started,
		Duration:  s.now().Sub(started),
		Error:     err,
		Manual:    manual,
	}

	s.executions.Add(1)
	s.busyNanos.Add(int64(result.Duration))
	e.mu.Lock()
	e.runs++
	if err != nil {
		e.failures++
		s.failures.Add(1)
	}
	e.last = &result
	e.mu.Unlock()

	switch {
	case err == nil:
		s.logger.Debug("job completed", "job", name, "duration", result.Duration.String())
	case errors.Is(err, context.Canceled):
		s.logger.Info("job cancelled", "job", name)
	default:
		s.logger.Error("job failed", "job", name, "duration", result.Duration.String(), "error", err)
	}
	return result
}

// RunNow executes a job immediately, waiting for a scheduled run in
// progress to finish first.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*JobResult, error) {
	s.mu.Lock()
	e, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	result := s.execute(ctx, e, true)
	return &result, result.Error
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo describes a registered job.
type JobInfo struct {
	Name        string
	Description string
	Enabled     bool
	Schedule    string
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
	LastResult  *JobResult
}

// ListJobs returns every registered job sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	infos := make([]JobInfo, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		infos = append(infos, JobInfo{
			Name:        e.job.Name(),
			Description: e.job.Description(),
			Enabled:     e.enabled.Load(),
			Schedule:    e.schedule.String(),
			NextRun:     e.nextRun,
			RunCount:    e.runs,
			FailCount:   e.failures,
			LastResult:  e.last,
		})
		e.mu.Unlock()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Stats aggregates executions across all jobs.
type Stats struct {
	Executions      int64
	Failures        int64
	AverageDuration time.Duration
}

// Stats returns totals since the scheduler was created.
func (s *Scheduler) Stats() Stats {
	st := Stats{
		Executions: s.executions.Load(),
		Failures:   s.failures.Load(),
	}
	if st.Executions > 0 {
		st.AverageDuration = time.Duration(s.busyNanos.Load() / st.Executions)
	}
	return st
}
