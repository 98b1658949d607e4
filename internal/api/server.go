// Package api exposes compliance runs and their history over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mcp-compliance-tester/internal/compliance"
	"github.com/mcp-compliance-tester/internal/config"
	"github.com/mcp-compliance-tester/internal/history"
)

// RunFunc executes a compliance run against one server definition. Injected
// so the HTTP layer carries no knowledge of transports or registries.
type RunFunc func(ctx context.Context, def config.ServerDefinition) (*compliance.HealthReport, error)

// Server is the HTTP API server.
type Server struct {
	cfg    config.APIConfig
	store  *history.Store
	run    RunFunc
	router *gin.Engine
	server *http.Server
	logger *logrus.Logger
}

// NewServer creates the API server. The history store is optional; without
// it the run endpoints return 404s for history lookups.
func NewServer(cfg config.APIConfig, store *history.Store, run RunFunc, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	if logger.GetLevel() >= logrus.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())

	s := &Server{
		cfg:    cfg,
		store:  store,
		run:    run,
		router: router,
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("API server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/runs", s.handleListRuns)
		v1.GET("/runs/:id", s.handleGetRun)
		v1.POST("/runs", s.handleCreateRun)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleListRuns(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusOK, gin.H{"runs": []history.RunRecord{}})
		return
	}
	records, err := s.store.List(c.Request.Context(), 50)
	if err != nil {
		s.logger.WithError(err).Error("Listing runs failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing runs failed"})
		return
	}
	if records == nil {
		records = []history.RunRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": records})
}

func (s *Server) handleGetRun(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is disabled"})
		return
	}
	report, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, history.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		s.logger.WithError(err).Error("Loading run failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "loading run failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleCreateRun(c *gin.Context) {
	var def config.ServerDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid server definition: %v", err)})
		return
	}
	if def.Command == "" && def.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "server definition needs a command or a url"})
		return
	}

	report, err := s.run(c.Request.Context(), def)
	if err != nil {
		s.logger.WithError(err).Error("Compliance run failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "compliance run failed"})
		return
	}

	if s.store != nil {
		if err := s.store.Save(c.Request.Context(), report); err != nil {
			s.logger.WithError(err).Warn("Saving run to history failed")
		}
	}
	c.JSON(http.StatusOK, report)
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}
