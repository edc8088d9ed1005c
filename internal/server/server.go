// Package server exposes the session pool over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ShayCichocki/wayfinder/internal/events"
	"github.com/ShayCichocki/wayfinder/internal/orchestrator"
	"github.com/ShayCichocki/wayfinder/internal/plan"
	"github.com/ShayCichocki/wayfinder/internal/state"
	"github.com/ShayCichocki/wayfinder/pkg/models"
)

// Store is the persistence the server reads when a session is not live.
type Store interface {
	state.SessionStore
	state.EventStore
}

// Server routes control requests to a session pool.
type Server struct {
	pool     *orchestrator.Pool
	store    Store
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	engine   *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithStore lets the server answer for sessions from earlier runs and serve
// event history.
func WithStore(store Store) Option {
	return func(s *Server) { s.store = store }
}

// WithGatherer sets the registry served at /metrics. Defaults to the
// Prometheus default gatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New builds a Server for pool.
func New(pool *orchestrator.Pool, opts ...Option) *Server {
	s := &Server{
		pool:     pool,
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("control server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// routes registers:
//
//	POST /v1/sessions              start a session for a goal
//	GET  /v1/sessions              list live sessions (?stored=true for the store)
//	GET  /v1/sessions/:id          session record
//	GET  /v1/sessions/:id/plan     current plan and its source
//	GET  /v1/sessions/:id/events   recorded events (?limit=N)
//	POST /v1/sessions/:id/pause    pause a running session
//	POST /v1/sessions/:id/resume   resume a paused session
//	GET  /healthz                  liveness
//	GET  /metrics                  Prometheus metrics
func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := r.Group("/v1")
	v1.POST("/sessions", s.createSession)
	v1.GET("/sessions", s.listSessions)
	v1.GET("/sessions/:id", s.getSession)
	v1.GET("/sessions/:id/plan", s.getPlan)
	v1.GET("/sessions/:id/events", s.listEvents)
	v1.POST("/sessions/:id/pause", s.pauseSession)
	v1.POST("/sessions/:id/resume", s.resumeSession)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "active_sessions": s.pool.Count()})
}

type createRequest struct {
	Goal string `json:"goal" binding:"required"`
}

func (s *Server) createSession(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a non-empty goal is required"})
		return
	}
	id, err := s.pool.Submit(req.Goal)
	if err != nil {
		s.logger.Error("failed to start session", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id})
}

func (s *Server) listSessions(c *gin.Context) {
	if c.Query("stored") != "true" {
		c.JSON(http.StatusOK, gin.H{"sessions": s.pool.List()})
		return
	}
	if s.store == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no session store configured"})
		return
	}
	var status *models.SessionStatus
	if q := c.Query("status"); q != "" {
		st := models.SessionStatus(q)
		status = &st
	}
	sessions, err := s.store.ListSessions(c.Request.Context(), status)
	if err != nil {
		s.logger.Error("failed to list stored sessions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *Server) getSession(c *gin.Context) {
	id := c.Param("id")
	if a, ok := s.pool.Get(id); ok {
		c.JSON(http.StatusOK, a.Snapshot())
		return
	}
	if s.store != nil {
		sess, err := s.store.GetSession(c.Request.Context(), id)
		if err == nil {
			c.JSON(http.StatusOK, sess)
			return
		}
		if !errors.Is(err, state.ErrNotFound) {
			s.logger.Error("failed to load session", "session", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
}

type planResponse struct {
	Source string        `json:"source"`
	Plan   plan.Snapshot `json:"plan"`
}

func (s *Server) getPlan(c *gin.Context) {
	a, ok := s.pool.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	g := a.Graph()
	if g == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "session has no plan yet"})
		return
	}
	c.JSON(http.StatusOK, planResponse{Source: a.Source(), Plan: g.Snapshot()})
}

func (s *Server) listEvents(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no session store configured"})
		return
	}
	limit := 100
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	evs, err := s.store.ListEvents(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		s.logger.Error("failed to list events", "session", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list events"})
		return
	}
	if evs == nil {
		evs = []events.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}

func (s *Server) pauseSession(c *gin.Context) {
	s.transition(c, s.pool.Pause)
}

func (s *Server) resumeSession(c *gin.Context) {
	s.transition(c, s.pool.Resume)
}

func (s *Server) transition(c *gin.Context, fn func(id string) error) {
	id := c.Param("id")
	if err := fn(id); err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrUnknownSession):
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		case errors.Is(err, orchestrator.ErrCompleted), errors.Is(err, orchestrator.ErrNotPaused):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			s.logger.Error("session transition failed", "session", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	a, _ := s.pool.Get(id)
	c.JSON(http.StatusOK, gin.H{"id": id, "status": a.Status()})
}
