// Package http exposes the attendance tracker over a REST API.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/attendify/attendify/internal/application/tracker"
	"github.com/attendify/attendify/internal/domain/attendance"
	"github.com/attendify/attendify/internal/interface/http/handlers"

	"github.com/gin-gonic/gin"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	// ReadTimeout - maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout - maximum duration for writing the response.
	WriteTimeout time.Duration

	// IdleTimeout - maximum duration for idle connections.
	IdleTimeout time.Duration

	// MaxHeaderBytes - maximum size of request headers.
	MaxHeaderBytes int

	// AllowedOrigins - allowed origins for CORS. Empty disables CORS.
	AllowedOrigins []string

	// APIKeyHeader - header name for API key authentication.
	APIKeyHeader string

	// APIKeyHash - bcrypt hash of the API key. Empty disables authentication.
	APIKeyHash string

	// Mode - gin mode (debug, release, test).
	Mode string

	// Version - reported by the health endpoint.
	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
		AllowedOrigins: []string{"*"},
		APIKeyHeader:   "X-API-Key",
		Mode:           gin.ReleaseMode,
		Version:        "v1",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceTracker is the part of the tracker the API drives.
type AttendanceTracker interface {
	Dashboard() *tracker.Observable[tracker.DashboardState]
	CourseDetail() *tracker.Observable[tracker.CourseDetailState]
	RefreshDashboard(ctx context.Context) (tracker.DashboardState, error)
	LoadCourseDetail(ctx context.Context, courseID string) (tracker.CourseDetailState, error)
	CheckInToday(ctx context.Context, courseID string) error
	AddSessionOffset(ctx context.Context, courseID string, offsetDays int, attended bool) error
	AddMissedSessionYesterday(ctx context.Context, courseID string) error
	AddFutureSessionTomorrow(ctx context.Context, courseID string) error
	HandleScannedCode(ctx context.Context, raw string) error
	AddCourse(ctx context.Context, code, name string, threshold int) (attendance.Course, error)
	UpdateCourse(ctx context.Context, update attendance.Course) (attendance.Course, error)
	DeleteCourse(ctx context.Context, courseID string) error
}

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	Tracker AttendanceTracker

	// Health is optional.
	Health *handlers.CompositeHealthChecker

	Logger *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	engine     *gin.Engine
	httpServer *http.Server
	logger     *slog.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) (*Server, error) {
	if deps.Tracker == nil {
		return nil, errors.New("http: tracker is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Health == nil {
		deps.Health = handlers.NewCompositeHealthChecker(config.Version)
	}
	if config.APIKeyHeader == "" {
		config.APIKeyHeader = "X-API-Key"
	}
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	s := &Server{
		config: config,
		deps:   deps,
		logger: deps.Logger.With("component", "http"),
	}

	auth, err := NewAPIKeyAuth(config.APIKeyHeader, config.APIKeyHash)
	if err != nil {
		return nil, err
	}

	s.engine = gin.New()
	_ = s.engine.SetTrustedProxies(nil)
	s.engine.Use(requestIDMiddleware(), loggingMiddleware(s.logger), gin.Recovery())
	if len(config.AllowedOrigins) > 0 {
		s.engine.Use(corsMiddleware(config.AllowedOrigins, config.APIKeyHeader))
	}
	s.setupRoutes(auth)

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.engine,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s, nil
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes(auth *APIKeyAuth) {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/live", s.handleLive)

	// ─────────────────────────────────────────────────────────────────────────
	// API v1
	// ─────────────────────────────────────────────────────────────────────────
	api := s.engine.Group("/api/v1", auth.Middleware())

	api.GET("/dashboard", s.handleGetDashboard)
	api.POST("/dashboard/refresh", s.handleRefreshDashboard)

	api.POST("/courses", s.handleCreateCourse)
	api.GET("/courses/:id", s.handleGetCourse)
	api.PUT("/courses/:id", s.handleUpdateCourse)
	api.DELETE("/courses/:id", s.handleDeleteCourse)

	api.POST("/courses/:id/check-in", s.handleCheckIn)
	api.POST("/courses/:id/sessions", s.handleAddSession)
	api.POST("/courses/:id/sessions/yesterday", s.handleMissedYesterday)
	api.POST("/courses/:id/sessions/tomorrow", s.handlePlannedTomorrow)

	api.POST("/scan", s.handleScan)

	s.engine.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "not_found", "Route not found")
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("http server starting", "address", s.config.Address())

	err := s.httpServer.ListenAndServe()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// StartAsync starts the server in a goroutine and returns a channel that
// receives the terminal error.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.config.Address()
}
