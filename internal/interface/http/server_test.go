package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/attendify/attendify/internal/application/scheduling"
	"github.com/attendify/attendify/internal/application/tracker"
	"github.com/attendify/attendify/internal/domain/attendance"
	"github.com/attendify/attendify/internal/infrastructure/persistence/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type seqIDs struct{ n atomic.Int64 }

func (g *seqIDs) CourseID() string  { return fmt.Sprintf("course-%d", g.n.Add(1)) }
func (g *seqIDs) SessionID() string { return fmt.Sprintf("session-%d", g.n.Add(1)) }

type brokenStore struct {
	attendance.Store
}

func (brokenStore) ListCourses(context.Context) ([]attendance.Course, error) {
	return nil, errors.New("connection refused")
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func newTestServer(t *testing.T, store attendance.Store, apiKeyHash string) *Server {
	t.Helper()

	ids := &seqIDs{}
	now := func() time.Time { return time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC) }
	tr := tracker.New(store, scheduling.NewScheduler(store, ids, time.UTC), ids, tracker.Config{
		Now:       now,
		AfterFunc: func(time.Duration, func()) {},
	})

	cfg := DefaultConfig()
	cfg.Mode = gin.TestMode
	cfg.APIKeyHash = apiKeyHash

	srv, err := NewServer(cfg, Dependencies{Tracker: tr})
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, srv *Server, method, path string, body interface{}, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func createCourse(t *testing.T, srv *Server, code string, threshold int) attendance.Course {
	t.Helper()
	rec, env := do(t, srv, http.MethodPost, "/api/v1/courses", CourseRequest{Code: code, Name: "Course " + code, RequiredThreshold: threshold})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var course attendance.Course
	require.NoError(t, json.Unmarshal(env.Data, &course))
	return course
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, memory.NewStore(), "")

	rec, env := do(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCourseLifecycle(t *testing.T) {
	srv := newTestServer(t, memory.NewStore(), "")

	course := createCourse(t, srv, "  CS 2063 ", 150)
	assert.Equal(t, "CS 2063", course.Code)
	assert.Equal(t, 100, course.RequiredThreshold)

	rec, env := do(t, srv, http.MethodGet, "/api/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var dash tracker.DashboardState
	require.NoError(t, json.Unmarshal(env.Data, &dash))
	require.Len(t, dash.Summaries, 1)
	assert.Equal(t, "CS 2063", dash.Summaries[0].Course.Code)

	rec, _ = do(t, srv, http.MethodPut, "/api/v1/courses/"+course.ID, CourseRequest{Code: "CS 2064", Name: "Renamed", RequiredThreshold: 60})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = do(t, srv, http.MethodGet, "/api/v1/courses/"+course.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail tracker.CourseDetailState
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	require.NotNil(t, detail.Course)
	assert.Equal(t, "Renamed", detail.Course.Name)

	rec, _ = do(t, srv, http.MethodDelete, "/api/v1/courses/"+course.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, env = do(t, srv, http.MethodGet, "/api/v1/courses/"+course.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestCreateCourse_Validation(t *testing.T) {
	srv := newTestServer(t, memory.NewStore(), "")

	rec, env := do(t, srv, http.MethodPost, "/api/v1/courses", map[string]interface{}{"code": "CS"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)
	assert.Contains(t, env.Error.Details, "Name failed on required")

	rec, env = do(t, srv, http.MethodPost, "/api/v1/courses", CourseRequest{Code: "   ", Name: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)

	createCourse(t, srv, "CS", 50)
	rec, env = do(t, srv, http.MethodPost, "/api/v1/courses", CourseRequest{Code: "CS", Name: "Again"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", env.Error.Code)
}

func TestCheckIn(t *testing.T) {
	srv := newTestServer(t, memory.NewStore(), "")
	course := createCourse(t, srv, "CS", 80)

	rec, env := do(t, srv, http.MethodPost, "/api/v1/courses/"+course.ID+"/check-in", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var detail tracker.CourseDetailState
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	require.NotNil(t, detail.Summary)
	assert.Equal(t, 1, detail.Summary.AttendedCount)
	assert.Equal(t, 100, detail.Summary.AttendancePercentage)

	rec, env = do(t, srv, http.MethodPost, "/api/v1/courses/"+course.ID+"/check-in", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Already checked in for today", env.Error.Message)

	rec, _ = do(t, srv, http.MethodPost, "/api/v1/courses/missing/check-in", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddSessions(t *testing.T) {
	srv := newTestServer(t, memory.NewStore(), "")
	course := createCourse(t, srv, "CS", 80)

	rec, _ := do(t, srv, http.MethodPost, "/api/v1/courses/"+course.ID+"/sessions/yesterday", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := do(t, srv, http.MethodPost, "/api/v1/courses/"+course.ID+"/sessions", SessionRequest{OffsetDays: -1, Attended: true})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Session already exists for that date", env.Error.Message)

	rec, env = do(t, srv, http.MethodPost, "/api/v1/courses/"+course.ID+"/sessions/tomorrow", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var detail tracker.CourseDetailState
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Len(t, detail.Sessions, 2)
	assert.Equal(t, 1, detail.Summary.TotalSessions)

	rec, _ = do(t, srv, http.MethodPost, "/api/v1/courses/"+course.ID+"/sessions", SessionRequest{OffsetDays: 99999})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScan(t *testing.T) {
	srv := newTestServer(t, memory.NewStore(), "")
	course := createCourse(t, srv, "CS 2063", 80)

	rec, env := do(t, srv, http.MethodPost, "/api/v1/scan", ScanRequest{Raw: "  course: CS 2063 "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var detail tracker.CourseDetailState
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, course.ID, detail.Course.ID)

	rec, env = do(t, srv, http.MethodPost, "/api/v1/scan", ScanRequest{Raw: "MATH 1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No course for QR: MATH 1", env.Error.Message)

	rec, env = do(t, srv, http.MethodPost, "/api/v1/scan", ScanRequest{Raw: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid QR code", env.Error.Message)
}

func TestRefresh_StoreFailure(t *testing.T) {
	srv := newTestServer(t, brokenStore{Store: memory.NewStore()}, "")

	rec, env := do(t, srv, http.MethodPost, "/api/v1/dashboard/refresh", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "store_unavailable", env.Error.Code)
	assert.Equal(t, "connection refused", env.Error.Message)
}

func TestAPIKeyAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	srv := newTestServer(t, memory.NewStore(), string(hash))

	rec, env := do(t, srv, http.MethodGet, "/api/v1/dashboard", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_api_key", env.Error.Code)

	rec, env = do(t, srv, http.MethodGet, "/api/v1/dashboard", nil, "X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_api_key", env.Error.Code)

	rec, _ = do(t, srv, http.MethodGet, "/api/v1/dashboard", nil, "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewServer_RejectsBadHash(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = gin.TestMode
	cfg.APIKeyHash = "plain-text"

	_, err := NewServer(cfg, Dependencies{Tracker: tracker.New(memory.NewStore(), nil, &seqIDs{}, tracker.Config{})})
	assert.Error(t, err)
}

func TestClassifyError(t *testing.T) {
	status, code := classifyError(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal_error", code)
}
