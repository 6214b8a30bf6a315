// Package api is the HTTP façade over the pipeline engine: submitting
// natural-language descriptions for compilation, polling run status, and
// streaming the resulting event log. Adapted from the teacher's pkg/api
// server shape, rebuilt on gin/v1 (the framework the retrieved go.mod
// actually commits to) rather than the echo/v5 most of the teacher's
// handler files import but never declare as a dependency.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/nl2schema/pkg/config"
	"github.com/codeready-toolchain/nl2schema/pkg/persist"
	"github.com/codeready-toolchain/nl2schema/pkg/version"
	"github.com/codeready-toolchain/nl2schema/pkg/workerpool"
)

// Server wraps a gin engine bound to the pipeline store and worker pool.
type Server struct {
	router *gin.Engine
	http   *http.Server

	config *config.Config
	store  persist.Store
	pool   *workerpool.Pool
}

// NewServer builds a Server with routes registered but not yet listening.
func NewServer(cfg *config.Config, store persist.Store, pool *workerpool.Pool) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		router: router,
		config: cfg,
		store:  store,
		pool:   pool,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/runs", s.handleSubmitRun)
		v1.GET("/runs", s.handleListRuns)
		v1.GET("/runs/:id", s.handleGetRun)
		v1.GET("/runs/:id/events", s.handleStreamEvents)
	}
}

// Start runs the HTTP server on addr until Shutdown is called or it fails.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	dbHealth, err := s.store.Health(c.Request.Context())
	status := http.StatusOK
	overall := "healthy"
	if err != nil {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}

	var poolHealth any
	if s.pool != nil {
		poolHealth = s.pool.Health(c.Request.Context())
	}

	c.JSON(status, HealthResponse{
		Status:        overall,
		Version:       version.Full(),
		Database:      dbHealth,
		Configuration: s.config.Stats(),
		WorkerPool:    poolHealth,
	})
}
