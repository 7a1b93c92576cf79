// Package server exposes experiment sessions and statistics over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/verte-zerg/vstask/internal/experiment"
	"github.com/verte-zerg/vstask/internal/model"
)

// Sessions runs experiment sessions.
type Sessions interface {
	StartSession(ctx context.Context, cfg model.SessionConfig) (string, model.Session, error)
	Session(gameID string) (model.Session, error)
	Round(gameID string, n int) (model.Round, error)
	RecordChoice(ctx context.Context, gameID string, req experiment.ChoiceRequest) (model.Choice, error)
	FinalizeSession(ctx context.Context, gameID, rawChoice string) (experiment.Result, error)
}

// Statistics serves the persisted summary.
type Statistics interface {
	Current(ctx context.Context) (*model.Summary, error)
	Refresh(ctx context.Context) (model.Summary, error)
}

// Config holds HTTP server settings.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	// Defaults fills fields a start request leaves out.
	Defaults model.SessionConfig
}

// Server is the HTTP front end.
type Server struct {
	cfg      Config
	sessions Sessions
	stats    Statistics
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	engine   *gin.Engine
}

// New builds the router. gatherer may be nil to use the default registry.
func New(cfg Config, sessions Sessions, stats Statistics, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		stats:    stats,
		gatherer: gatherer,
		logger:   logger.Named("http"),
	}
	s.engine = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(requestLogger(s.logger))
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api", limitBody(maxBodyBytes))
	{
		api.POST("/sessions", s.startSession)
		api.GET("/sessions/:id", s.getSession)
		api.GET("/sessions/:id/rounds/:n", s.getRound)
		api.POST("/sessions/:id/choices", s.recordChoice)
		api.POST("/sessions/:id/final", s.finalize)
		api.GET("/stats", s.getStats)
		api.POST("/stats/refresh", s.refreshStats)
	}
	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func (s *Server) startSession(c *gin.Context) {
	cfg := s.cfg.Defaults
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, err)
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &cfg); err != nil {
			badRequest(c, fmt.Errorf("invalid session config: %w", err))
			return
		}
	}

	gameID, sess, err := s.sessions.StartSession(c.Request.Context(), cfg)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, experiment.Public(gameID, sess))
}

func (s *Server) getSession(c *gin.Context) {
	gameID := c.Param("id")
	sess, err := s.sessions.Session(gameID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, experiment.Public(gameID, sess))
}

func (s *Server) getRound(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil {
		badRequest(c, fmt.Errorf("invalid round number %q", c.Param("n")))
		return
	}
	round, err := s.sessions.Round(c.Param("id"), n)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"round_number": n, "round": round})
}

func (s *Server) recordChoice(c *gin.Context) {
	var req experiment.ChoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Errorf("no data provided: %w", err))
		return
	}
	choice, err := s.sessions.RecordChoice(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, choice)
}

type finalRequest struct {
	ChosenQuadrant json.RawMessage `json:"chosen_quadrant"`
}

func (s *Server) finalize(c *gin.Context) {
	var req finalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Errorf("no data provided: %w", err))
		return
	}
	res, err := s.sessions.FinalizeSession(c.Request.Context(), c.Param("id"), rawChoice(req.ChosenQuadrant))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// rawChoice accepts both 2 and "2"; anything else is passed through and
// scored as an invalid answer.
func rawChoice(msg json.RawMessage) string {
	var str string
	if err := json.Unmarshal(msg, &str); err == nil {
		return str
	}
	return string(msg)
}

func (s *Server) getStats(c *gin.Context) {
	sum, err := s.stats.Current(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if sum == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{Code: CodeNoStatistics, Message: "No statistics computed yet"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) refreshStats(c *gin.Context) {
	sum, err := s.stats.Refresh(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}
