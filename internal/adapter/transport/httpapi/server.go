package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rcrowley/go-metrics"

	"github.com/dayanaadylkhanova/pow-orchestrator/internal/entity"
	"github.com/dayanaadylkhanova/pow-orchestrator/internal/service"
)

// Server exposes the orchestrator over HTTP. Async challenges report through the
// orchestrator's reporter; /solve holds the request open until the cycle ends.
type Server struct {
	log       *slog.Logger
	addr      string
	orch      Orchestrator
	router    *gin.Engine
	started   time.Time
	shutdownT time.Duration
}

func NewServer(log *slog.Logger, addr string, shutdown time.Duration, orch Orchestrator) *Server {
	s := &Server{
		log:       log,
		addr:      addr,
		orch:      orch,
		started:   time.Now(),
		shutdownT: shutdown,
	}

	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api/v1")
	{
		api.POST("/challenges", s.handleIssue)
		api.GET("/challenges", s.handleList)
		api.DELETE("/challenges/:id", s.handleCancel)
		api.POST("/solve", s.handleSolve)
		api.GET("/health", s.handleHealth)
		api.GET("/metrics", s.handleMetrics)
	}
	s.router = router
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server started", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http listen: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutdown: stopping http server")
		sctx, cancel := context.WithTimeout(context.Background(), s.shutdownT)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			s.log.Warn("http shutdown", "err", err)
			_ = srv.Close()
		}
		return nil
	case err := <-errCh:
		return err
	}
}

type issueResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type listResponse struct {
	InFlight []string `json:"in_flight"`
	Running  int      `json:"running"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	InFlight int    `json:"in_flight"`
	Running  int    `json:"running"`
}

// issueError maps an Issue failure to a response.
func (s *Server) issueError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, entity.ErrInvalidChallenge):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server shutting down"})
	default:
		s.log.Error("issue failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue failed"})
	}
}

func (s *Server) handleIssue(c *gin.Context) {
	var ch entity.ChallengeParameters
	if err := c.ShouldBindJSON(&ch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid challenge json"})
		return
	}
	// Detached from the request: the cycle outlives it and ends by budget or DELETE.
	h, err := s.orch.Issue(context.Background(), ch)
	if err != nil {
		s.issueError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, issueResponse{ID: h.ID.String(), Status: entity.StatusIssued})
}

func (s *Server) handleSolve(c *gin.Context) {
	var ch entity.ChallengeParameters
	if err := c.ShouldBindJSON(&ch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid challenge json"})
		return
	}
	h, err := s.orch.Issue(c.Request.Context(), ch)
	if err != nil {
		s.issueError(c, err)
		return
	}

	<-h.Done()
	out := h.Outcome()
	r := entity.Reply{
		ID:       h.ID.String(),
		Status:   out.Status.String(),
		Result:   out.Result,
		Reason:   out.Reason,
		Attempts: out.Attempts,
	}
	if out.Err != nil {
		r.Error = out.Err.Error()
	}

	code := http.StatusOK
	switch out.Status {
	case service.StatusNoSolution:
		code = http.StatusUnprocessableEntity
	case service.StatusReportFailed:
		code = http.StatusBadGateway
	case service.StatusCancelled:
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, r)
}

func (s *Server) handleCancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid challenge id"})
		return
	}
	if !s.orch.Cancel(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "challenge not in flight"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleList(c *gin.Context) {
	ids := s.orch.InFlight()
	resp := listResponse{InFlight: make([]string, 0, len(ids)), Running: s.orch.Running()}
	for _, id := range ids {
		resp.InFlight = append(resp.InFlight, id.String())
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:   "healthy",
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		InFlight: len(s.orch.InFlight()),
		Running:  s.orch.Running(),
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, snapshot(s.orch.Registry()))
}

// snapshot flattens a registry into JSON-friendly values keyed by metric name.
func snapshot(r metrics.Registry) map[string]any {
	out := make(map[string]any)
	r.Each(func(name string, m any) {
		switch v := m.(type) {
		case metrics.Counter:
			out[name] = v.Count()
		case metrics.Gauge:
			out[name] = v.Value()
		case metrics.Meter:
			ms := v.Snapshot()
			out[name] = gin.H{"count": ms.Count(), "rate1": ms.Rate1(), "rate_mean": ms.RateMean()}
		case metrics.Timer:
			ts := v.Snapshot()
			out[name] = gin.H{
				"count":   ts.Count(),
				"mean_ms": ts.Mean() / float64(time.Millisecond),
				"p99_ms":  ts.Percentile(0.99) / float64(time.Millisecond),
			}
		}
	})
	return out
}
