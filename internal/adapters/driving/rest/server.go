// Package rest exposes the administrative surface over HTTP. It wraps
// the driving ports in a gin router and serves Prometheus metrics on
// the same listener.
package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tenderline-labs/tenderline/internal/core/domain"
	"github.com/tenderline-labs/tenderline/internal/core/ports/driving"
)

// Server is the admin HTTP server.
type Server struct {
	admin  driving.SourceAdmin
	ingest driving.IngestControl
	stats  driving.PipelineStats

	router   *gin.Engine
	server   *http.Server
	listener net.Listener
}

// NewServer creates the admin server. The registry may be nil, in which
// case /metrics is not registered.
func NewServer(admin driving.SourceAdmin, ingest driving.IngestControl, stats driving.PipelineStats, registry *prometheus.Registry) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		admin:  admin,
		ingest: ingest,
		stats:  stats,
		router: router,
	}

	router.GET("/healthz", s.handleHealth)
	if registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/sources", s.handleListSources)
		v1.POST("/sources", s.handleAddSource)
		v1.GET("/sources/:id", s.handleGetSource)
		v1.PUT("/sources/:id", s.handleUpdateSource)
		v1.DELETE("/sources/:id", s.handleRemoveSource)
		v1.POST("/sources/:id/enable", s.handleEnableSource)
		v1.POST("/sources/:id/disable", s.handleDisableSource)
		v1.GET("/sources/:id/status", s.handleSourceStatus)
		v1.POST("/sources/:id/poll", s.handlePollNow)
		v1.POST("/sources/:id/quota/reset", s.handleResetQuota)
		v1.GET("/pipeline/stats", s.handlePipelineStats)
	}

	return s
}

// Start begins serving on addr. If the port is 0 a free port is chosen;
// Addr reports the bound address.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rest: listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Serve only fails this way on a broken listener.
			panic(err)
		}
	}()
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListSources(c *gin.Context) {
	configs, err := s.admin.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	payloads := make([]sourcePayload, 0, len(configs))
	for _, cfg := range configs {
		payloads = append(payloads, toPayload(cfg))
	}
	c.JSON(http.StatusOK, gin.H{"sources": payloads})
}

func (s *Server) handleAddSource(c *gin.Context) {
	var payload sourcePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	cfg, err := payload.toConfig()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := s.admin.Add(c.Request.Context(), cfg); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toPayload(cfg))
}

func (s *Server) handleGetSource(c *gin.Context) {
	cfg, err := s.admin.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPayload(*cfg))
}

func (s *Server) handleUpdateSource(c *gin.Context) {
	var payload sourcePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	payload.ID = c.Param("id")

	cfg, err := payload.toConfig()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := s.admin.Update(c.Request.Context(), cfg); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPayload(cfg))
}

func (s *Server) handleRemoveSource(c *gin.Context) {
	if err := s.admin.Remove(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleEnableSource(c *gin.Context) {
	if err := s.admin.Enable(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDisableSource(c *gin.Context) {
	if err := s.admin.Disable(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSourceStatus(c *gin.Context) {
	status, err := s.admin.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStatusPayload(status))
}

func (s *Server) handlePollNow(c *gin.Context) {
	if err := s.ingest.PollNow(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "polling"})
}

func (s *Server) handleResetQuota(c *gin.Context) {
	if err := s.admin.ResetQuota(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handlePipelineStats(c *gin.Context) {
	stages := s.stats.Stats()
	payloads := make([]stageStatsPayload, 0, len(stages))
	for _, st := range stages {
		payloads = append(payloads, stageStatsPayload{
			Stage:     string(st.Stage),
			Waiting:   st.Waiting,
			Active:    st.Active,
			Completed: st.Completed,
			Failed:    st.Failed,
			Retried:   st.Retried,
			Dropped:   st.Dropped,
		})
	}
	c.JSON(http.StatusOK, gin.H{"stages": payloads})
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrSourceEnabled),
		errors.Is(err, domain.ErrSourceDisabled),
		errors.Is(err, domain.ErrPollInFlight):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnsupportedType):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrQuotaExhausted), errors.Is(err, domain.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrStopped):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, errorResponse{Error: err.Error()})
}
