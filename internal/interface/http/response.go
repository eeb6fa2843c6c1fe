package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/attendify/attendify/internal/domain/shared"

	"github.com/gin-gonic/gin"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      interface{}   `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

func writeJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: "v1"},
		RequestID: c.GetString(contextKeyRequestID),
	})
}

func errorResponse(c *gin.Context, code, message string, details []string) JSONResponse {
	return JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message, Details: details},
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: c.GetString(contextKeyRequestID),
	}
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse(c, code, message, nil))
}

func writeErrorWithDetails(c *gin.Context, status int, code, message string, details []string) {
	c.JSON(status, errorResponse(c, code, message, details))
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse(c, code, message, nil))
}

// respondError maps a domain error to a status code and writes it.
func respondError(c *gin.Context, err error) {
	status, code := classifyError(err)
	writeError(c, status, code, shared.UserMessage(err))
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrStoreFailure):
		return http.StatusServiceUnavailable, "store_unavailable"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsAlreadyExists(err):
		return http.StatusConflict, "conflict"
	case shared.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case shared.IsExternalService(err):
		return http.StatusServiceUnavailable, "service_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
