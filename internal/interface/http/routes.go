package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/attendify/attendify/internal/domain/attendance"
	"github.com/attendify/attendify/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ══════════════════════════════════════════════════════════════════════════════
// REQUESTS
// ══════════════════════════════════════════════════════════════════════════════

// CourseRequest is the body of course create and update calls.
// Code and name are trimmed and the threshold clamped to 0..100 by the tracker.
type CourseRequest struct {
	Code              string `json:"code" validate:"required,max=64"`
	Name              string `json:"name" validate:"required,max=200"`
	RequiredThreshold int    `json:"required_threshold"`
}

// SessionRequest adds a session offsetDays away from today.
type SessionRequest struct {
	OffsetDays int  `json:"offset_days" validate:"min=-3660,max=3660"`
	Attended   bool `json:"attended"`
}

// ScanRequest carries the raw text of a scanned QR code.
type ScanRequest struct {
	Raw string `json:"raw"`
}

// bindJSON decodes and validates the request body into dst.
// It writes the error response itself and reports whether to continue.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(c, http.StatusBadRequest, "invalid_body", "Request body is required")
			return false
		}
		writeError(c, http.StatusBadRequest, "invalid_body", "Malformed JSON body")
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				details = append(details, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
			}
			writeErrorWithDetails(c, http.StatusBadRequest, "validation_error", "Invalid request", details)
			return false
		}
		writeError(c, http.StatusBadRequest, "validation_error", err.Error())
		return false
	}

	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(c *gin.Context) {
	status := s.deps.Health.Check(c.Request.Context())
	if !status.Healthy {
		writeJSON(c, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(c, http.StatusOK, status)
}

func (s *Server) handleLive(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// DASHBOARD
// ══════════════════════════════════════════════════════════════════════════════

// handleGetDashboard returns the current dashboard snapshot without
// touching the store.
func (s *Server) handleGetDashboard(c *gin.Context) {
	writeJSON(c, http.StatusOK, s.deps.Tracker.Dashboard().Get())
}

func (s *Server) handleRefreshDashboard(c *gin.Context) {
	state, err := s.deps.Tracker.RefreshDashboard(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, state)
}

// ══════════════════════════════════════════════════════════════════════════════
// COURSES
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleCreateCourse(c *gin.Context) {
	var req CourseRequest
	if !bindJSON(c, &req) {
		return
	}

	course, err := s.deps.Tracker.AddCourse(c.Request.Context(), req.Code, req.Name, req.RequiredThreshold)
	if err != nil {
		respondError(c, err)
		return
	}

	logger.FromContext(c.Request.Context(), s.logger).Info("course created via api", "course_id", course.ID)
	writeJSON(c, http.StatusCreated, course)
}

func (s *Server) handleGetCourse(c *gin.Context) {
	state, err := s.deps.Tracker.LoadCourseDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, state)
}

func (s *Server) handleUpdateCourse(c *gin.Context) {
	var req CourseRequest
	if !bindJSON(c, &req) {
		return
	}

	course, err := s.deps.Tracker.UpdateCourse(c.Request.Context(), attendance.Course{
		ID:                c.Param("id"),
		Code:              req.Code,
		Name:              req.Name,
		RequiredThreshold: req.RequiredThreshold,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, course)
}

func (s *Server) handleDeleteCourse(c *gin.Context) {
	if err := s.deps.Tracker.DeleteCourse(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleCheckIn(c *gin.Context) {
	courseID := c.Param("id")
	s.respondSessionRecorded(c, courseID, s.deps.Tracker.CheckInToday(c.Request.Context(), courseID))
}

func (s *Server) handleAddSession(c *gin.Context) {
	var req SessionRequest
	if !bindJSON(c, &req) {
		return
	}

	courseID := c.Param("id")
	err := s.deps.Tracker.AddSessionOffset(c.Request.Context(), courseID, req.OffsetDays, req.Attended)
	s.respondSessionRecorded(c, courseID, err)
}

func (s *Server) handleMissedYesterday(c *gin.Context) {
	courseID := c.Param("id")
	s.respondSessionRecorded(c, courseID, s.deps.Tracker.AddMissedSessionYesterday(c.Request.Context(), courseID))
}

func (s *Server) handlePlannedTomorrow(c *gin.Context) {
	courseID := c.Param("id")
	s.respondSessionRecorded(c, courseID, s.deps.Tracker.AddFutureSessionTomorrow(c.Request.Context(), courseID))
}

func (s *Server) handleScan(c *gin.Context) {
	var req ScanRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := s.deps.Tracker.HandleScannedCode(c.Request.Context(), req.Raw); err != nil {
		respondError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, s.deps.Tracker.CourseDetail().Get())
}

// respondSessionRecorded answers a session mutation with the refreshed
// detail of the course.
func (s *Server) respondSessionRecorded(c *gin.Context, courseID string, err error) {
	if err != nil {
		respondError(c, err)
		return
	}

	state := s.deps.Tracker.CourseDetail().Get()
	if state.Course == nil || state.Course.ID != courseID {
		state, err = s.deps.Tracker.LoadCourseDetail(c.Request.Context(), courseID)
		if err != nil {
			respondError(c, err)
			return
		}
	}
	writeJSON(c, http.StatusCreated, state)
}
