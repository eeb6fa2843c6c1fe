// Package tracker owns the observable attendance state. It is the only
// component that reads from and writes to the store; every mutation is
// followed by a recomputation of the affected snapshots.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/attendify/attendify/internal/application/scheduling"
	"github.com/attendify/attendify/internal/domain/attendance"
	"github.com/attendify/attendify/internal/domain/shared"
	"github.com/attendify/attendify/pkg/timeutil"
)

// DefaultTransientErrorDelay is how long a transient error stays visible.
const DefaultTransientErrorDelay = 2500 * time.Millisecond

// scanPrefix is the optional prefix of scanned course codes.
const scanPrefix = "COURSE:"

// ══════════════════════════════════════════════════════════════════════════════
// STATE SNAPSHOTS
// ══════════════════════════════════════════════════════════════════════════════

// DashboardState is the list view of all courses.
type DashboardState struct {
	Loading   bool                 `json:"loading"`
	Summaries []attendance.Summary `json:"summaries"`

	// ErrorMessage is empty when there is no error.
	ErrorMessage string `json:"error_message,omitempty"`

	// Generation increases with every successful refresh.
	Generation uint64 `json:"generation"`
}

// CourseDetailState is the view of a single course.
type CourseDetailState struct {
	Loading  bool                 `json:"loading"`
	Course   *attendance.Course   `json:"course,omitempty"`
	Sessions []attendance.Session `json:"sessions"`
	Summary  *attendance.Summary  `json:"summary,omitempty"`

	// ErrorMessage is empty when there is no error.
	ErrorMessage string `json:"error_message,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// TRACKER
// ══════════════════════════════════════════════════════════════════════════════

// Config contains tracker settings.
type Config struct {
	// TransientErrorDelay is how long transient errors stay visible.
	TransientErrorDelay time.Duration

	// Events receives domain events. Optional.
	Events shared.EventPublisher

	// Logger for structured logging.
	Logger *slog.Logger

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// AfterFunc schedules f after d. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func())
}

// Tracker coordinates the store, the session scheduler and the snapshots.
type Tracker struct {
	store     attendance.Store
	scheduler *scheduling.Scheduler
	ids       attendance.IDGenerator
	events    shared.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
	afterFunc func(time.Duration, func())
	delay     time.Duration

	dashboard *Observable[DashboardState]
	detail    *Observable[CourseDetailState]

	courseLocks *keyedMutex
	catalogMu   sync.Mutex
	refreshMu   sync.Mutex
	detailMu    sync.Mutex
}

// New creates a tracker.
func New(store attendance.Store, scheduler *scheduling.Scheduler, ids attendance.IDGenerator, cfg Config) *Tracker {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	if cfg.TransientErrorDelay <= 0 {
		cfg.TransientErrorDelay = DefaultTransientErrorDelay
	}

	return &Tracker{
		store:       store,
		scheduler:   scheduler,
		ids:         ids,
		events:      cfg.Events,
		logger:      cfg.Logger.With("component", "tracker"),
		now:         cfg.Now,
		afterFunc:   cfg.AfterFunc,
		delay:       cfg.TransientErrorDelay,
		dashboard:   NewObservable(DashboardState{Summaries: []attendance.Summary{}}),
		detail:      NewObservable(emptyDetail(false, "")),
		courseLocks: newKeyedMutex(),
	}
}

// Dashboard returns the dashboard snapshot stream.
func (t *Tracker) Dashboard() *Observable[DashboardState] {
	return t.dashboard
}

// CourseDetail returns the course detail snapshot stream.
func (t *Tracker) CourseDetail() *Observable[CourseDetailState] {
	return t.detail
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// RefreshDashboard recomputes every course summary.
func (t *Tracker) RefreshDashboard(ctx context.Context) (DashboardState, error) {
	t.refreshMu.Lock()
	defer t.refreshMu.Unlock()

	t.dashboard.Update(func(s DashboardState) DashboardState {
		s.Loading = true
		return s
	})

	summaries, err := t.buildSummaries(ctx)
	if err != nil {
		err = asDomainError("RefreshDashboard", err)
		t.logger.Error("dashboard refresh failed", "error", err)
		state := t.dashboard.Update(func(s DashboardState) DashboardState {
			s.Loading = false
			s.ErrorMessage = shared.UserMessage(err)
			return s
		})
		return state, err
	}

	state := t.dashboard.Update(func(s DashboardState) DashboardState {
		return DashboardState{
			Summaries:  summaries,
			Generation: s.Generation + 1,
		}
	})

	below := 0
	for _, s := range summaries {
		if s.IsBelowThreshold {
			below++
		}
	}
	t.publish(shared.NewDashboardRefreshedEvent(state.Generation, len(summaries), below, t.now()))
	t.logger.Debug("dashboard refreshed", "generation", state.Generation, "courses", len(summaries))

	return state, nil
}

func (t *Tracker) buildSummaries(ctx context.Context) ([]attendance.Summary, error) {
	courses, err := t.store.ListCourses(ctx)
	if err != nil {
		return nil, err
	}

	now := t.now()
	summaries := make([]attendance.Summary, 0, len(courses))
	for _, course := range courses {
		sessions, err := t.store.ListSessions(ctx, course.ID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, attendance.Summarize(course, sessions, now))
	}
	attendance.SortSummaries(summaries)

	return summaries, nil
}

// emptyDetail is a detail snapshot without a course. Sessions is non-nil so
// it encodes as an empty JSON array.
func emptyDetail(loading bool, errorMessage string) CourseDetailState {
	return CourseDetailState{
		Loading:      loading,
		Sessions:     []attendance.Session{},
		ErrorMessage: errorMessage,
	}
}

// LoadCourseDetail publishes the detail snapshot of one course.
func (t *Tracker) LoadCourseDetail(ctx context.Context, courseID string) (CourseDetailState, error) {
	t.detailMu.Lock()
	defer t.detailMu.Unlock()

	t.detail.Set(emptyDetail(true, ""))

	course, err := t.store.GetCourse(ctx, courseID)
	if err != nil {
		err = asDomainError("LoadCourseDetail", err)
		return t.detail.Set(emptyDetail(false, shared.UserMessage(err))), err
	}

	sessions, err := t.store.ListSessions(ctx, courseID)
	if err != nil {
		err = asDomainError("LoadCourseDetail", err)
		return t.detail.Set(emptyDetail(false, shared.UserMessage(err))), err
	}
	attendance.SortSessions(sessions)

	summary := attendance.Summarize(course, sessions, t.now())
	state := t.detail.Set(CourseDetailState{
		Course:   &course,
		Sessions: sessions,
		Summary:  &summary,
	})
	return state, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Session mutations
// ─────────────────────────────────────────────────────────────────────────────

// CheckInToday records an attended session at the current instant unless
// the course already has an attended session today.
func (t *Tracker) CheckInToday(ctx context.Context, courseID string) error {
	return t.recordSession(ctx, "CheckInToday", courseID, func(now time.Time) (attendance.Session, error) {
		return t.scheduler.PlanCheckIn(ctx, courseID, now)
	})
}

// AddSessionOffset records a session at noon of the day offsetDays from
// today unless that day already has a session.
func (t *Tracker) AddSessionOffset(ctx context.Context, courseID string, offsetDays int, attended bool) error {
	return t.recordSession(ctx, "AddSessionOffset", courseID, func(now time.Time) (attendance.Session, error) {
		return t.scheduler.PlanOffsetSession(ctx, courseID, now, offsetDays, attended)
	})
}

// AddMissedSessionYesterday records a missed session for yesterday.
func (t *Tracker) AddMissedSessionYesterday(ctx context.Context, courseID string) error {
	return t.AddSessionOffset(ctx, courseID, -1, false)
}

// AddFutureSessionTomorrow plans a session for tomorrow.
func (t *Tracker) AddFutureSessionTomorrow(ctx context.Context, courseID string) error {
	return t.AddSessionOffset(ctx, courseID, 1, false)
}

func (t *Tracker) recordSession(ctx context.Context, op, courseID string, plan func(time.Time) (attendance.Session, error)) error {
	unlock := t.courseLocks.Lock(courseID)

	session, err := plan(t.now())
	if err == nil {
		err = t.store.UpsertSession(ctx, session)
	}
	unlock()

	if err != nil {
		return t.fail(op, err)
	}

	t.logger.Info("session recorded",
		"op", op,
		"course_id", courseID,
		"session_id", session.ID,
		"at", timeutil.FormatMillis(session.DateTimeMillis, t.scheduler.Location()),
		"attended", session.Attended,
	)
	t.publish(shared.NewSessionRecordedEvent(courseID, session.ID, session.DateTimeMillis, session.Attended, t.now()))

	t.refreshAfterMutation(ctx, courseID)
	return nil
}

// HandleScannedCode checks in to the course whose code was scanned.
// The raw text may carry a case-insensitive "COURSE:" prefix.
func (t *Tracker) HandleScannedCode(ctx context.Context, raw string) error {
	code := NormalizeScannedCode(raw)
	if code == "" {
		return t.showTransient(shared.ErrInvalidCode)
	}

	course, err := t.store.GetCourseByCode(ctx, code)
	if err != nil {
		if errors.Is(err, shared.ErrCourseNotFound) {
			return t.showTransient(shared.CourseNotFoundForCode(code))
		}
		return t.showTransient(asDomainError("HandleScannedCode", err))
	}

	return t.CheckInToday(ctx, course.ID)
}

// NormalizeScannedCode trims raw and strips an optional "COURSE:" prefix.
func NormalizeScannedCode(raw string) string {
	code := strings.TrimSpace(raw)
	if len(code) >= len(scanPrefix) && strings.EqualFold(code[:len(scanPrefix)], scanPrefix) {
		code = strings.TrimSpace(code[len(scanPrefix):])
	}
	return code
}

// ─────────────────────────────────────────────────────────────────────────────
// Course management
// ─────────────────────────────────────────────────────────────────────────────

// AddCourse creates a course. Text is trimmed and the threshold clamped.
func (t *Tracker) AddCourse(ctx context.Context, code, name string, threshold int) (attendance.Course, error) {
	course, err := attendance.NewCourse(t.ids.CourseID(), code, name, threshold)
	if err != nil {
		return attendance.Course{}, err
	}

	t.catalogMu.Lock()
	err = t.ensureCodeAvailable(ctx, course)
	if err == nil {
		err = t.store.UpsertCourse(ctx, course)
	}
	t.catalogMu.Unlock()

	if err != nil {
		return attendance.Course{}, t.failCatalog("AddCourse", err)
	}

	t.logger.Info("course created", "course_id", course.ID, "code", course.Code)
	t.publish(shared.NewCourseChangedEvent(shared.EventCourseCreated, course.ID, course.Code, course.Name, course.RequiredThreshold, t.now()))
	_, _ = t.RefreshDashboard(ctx)

	return course, nil
}

// UpdateCourse replaces the code, name and threshold of an existing course.
func (t *Tracker) UpdateCourse(ctx context.Context, update attendance.Course) (attendance.Course, error) {
	course, err := attendance.NewCourse(update.ID, update.Code, update.Name, update.RequiredThreshold)
	if err != nil {
		return attendance.Course{}, err
	}

	t.catalogMu.Lock()
	_, err = t.store.GetCourse(ctx, course.ID)
	if err == nil {
		err = t.ensureCodeAvailable(ctx, course)
	}
	if err == nil {
		err = t.store.UpsertCourse(ctx, course)
	}
	t.catalogMu.Unlock()

	if err != nil {
		return attendance.Course{}, t.failCatalog("UpdateCourse", err)
	}

	t.logger.Info("course updated", "course_id", course.ID, "code", course.Code)
	t.publish(shared.NewCourseChangedEvent(shared.EventCourseUpdated, course.ID, course.Code, course.Name, course.RequiredThreshold, t.now()))
	_, _ = t.RefreshDashboard(ctx)
	if c := t.detail.Get().Course; c != nil && c.ID == course.ID {
		_, _ = t.LoadCourseDetail(ctx, course.ID)
	}

	return course, nil
}

// DeleteCourse removes a course together with its sessions.
func (t *Tracker) DeleteCourse(ctx context.Context, courseID string) error {
	t.catalogMu.Lock()
	unlock := t.courseLocks.Lock(courseID)
	course, err := t.store.GetCourse(ctx, courseID)
	if err == nil {
		err = t.store.DeleteCourse(ctx, courseID)
	}
	unlock()
	t.catalogMu.Unlock()

	if err != nil {
		return t.failCatalog("DeleteCourse", err)
	}

	t.logger.Info("course deleted", "course_id", courseID, "code", course.Code)
	t.publish(shared.NewCourseChangedEvent(shared.EventCourseDeleted, course.ID, course.Code, course.Name, course.RequiredThreshold, t.now()))

	_, _ = t.RefreshDashboard(ctx)
	t.detailMu.Lock()
	if c := t.detail.Get().Course; c != nil && c.ID == courseID {
		t.detail.Set(emptyDetail(false, ""))
	}
	t.detailMu.Unlock()

	return nil
}

func (t *Tracker) ensureCodeAvailable(ctx context.Context, course attendance.Course) error {
	existing, err := t.store.GetCourseByCode(ctx, course.Code)
	switch {
	case errors.Is(err, shared.ErrCourseNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != course.ID:
		return shared.ErrCourseCodeTaken
	default:
		return nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// refreshAfterMutation reloads the dashboard and the detail of courseID.
// Failures are already reflected in the snapshots.
func (t *Tracker) refreshAfterMutation(ctx context.Context, courseID string) {
	_, _ = t.RefreshDashboard(ctx)
	_, _ = t.LoadCourseDetail(ctx, courseID)
}

// fail reports a session mutation error. Duplicate-day and lookup errors
// are transient; everything else stays until the next successful load.
func (t *Tracker) fail(op string, err error) error {
	if isTransient(err) {
		return t.showTransient(err)
	}

	err = asDomainError(op, err)
	t.logger.Error("operation failed", "op", op, "error", err)
	t.setErrorMessage(shared.UserMessage(err))
	return err
}

// failCatalog reports a course management error. Validation and conflict
// errors are returned as is; store failures also show on the dashboard.
func (t *Tracker) failCatalog(op string, err error) error {
	err = asDomainError(op, err)
	if errors.Is(err, shared.ErrStoreFailure) {
		t.logger.Error("operation failed", "op", op, "error", err)
		t.dashboard.Update(func(s DashboardState) DashboardState {
			s.ErrorMessage = shared.UserMessage(err)
			return s
		})
	}
	return err
}

// showTransient publishes err on both snapshots and schedules a clear.
// The clear is never cancelled, so a later transient error may be
// cleared early by an earlier timer.
func (t *Tracker) showTransient(err error) error {
	t.logger.Debug("transient error", "error", err)
	t.setErrorMessage(shared.UserMessage(err))
	t.afterFunc(t.delay, func() {
		t.setErrorMessage("")
	})
	return err
}

func (t *Tracker) setErrorMessage(msg string) {
	t.dashboard.Update(func(s DashboardState) DashboardState {
		s.ErrorMessage = msg
		return s
	})
	t.detail.Update(func(s CourseDetailState) CourseDetailState {
		s.ErrorMessage = msg
		return s
	})
}

func (t *Tracker) publish(event shared.Event) {
	if t.events == nil {
		return
	}
	if err := t.events.Publish(event); err != nil {
		t.logger.Warn("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}

func isTransient(err error) bool {
	return errors.Is(err, shared.ErrAlreadyCheckedIn) ||
		errors.Is(err, shared.ErrDuplicateSession) ||
		errors.Is(err, shared.ErrInvalidCode) ||
		errors.Is(err, shared.ErrCourseNotFoundForCode)
}

// asDomainError keeps domain errors and wraps anything else as a store failure.
func asDomainError(op string, err error) error {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	return shared.StoreFailure(op, err)
}
