// Package sim is a scripted stand-in for the Autonomous Newsroom server.
// It speaks the same HTTP API and writes the same log lines, so clients can
// be exercised without running the agent pipeline.
package sim

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsroom/internal/config"
	"github.com/fyrsmithlabs/newsroom/internal/logging"
	"github.com/fyrsmithlabs/newsroom/internal/newsroom"
)

const (
	// DefaultMaxIterations applies when a start request omits max_iterations.
	DefaultMaxIterations = 3
	// MaxIterationsLimit bounds max_iterations on a start request.
	MaxIterationsLimit = 10
	// DefaultLogLines is the /logs tail length when lines is omitted.
	DefaultLogLines = 100

	systemName = "Newsroom v1.0"
)

// Server serves the newsroom API backed by scripted cycles.
type Server struct {
	echo        *echo.Echo
	cfg         config.SimConfig
	outcome     Outcome
	logger      *logging.Logger
	journal     *Journal
	logFile     *os.File
	registry    *prometheus.Registry
	metrics     *cycleMetrics
	httpMetrics *HTTPMetrics
	newID       func() string

	mu   sync.Mutex
	last *newsroom.PipelineResult

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithHTTPMetrics records request metrics through m.
func WithHTTPMetrics(m *HTTPMetrics) Option {
	return func(s *Server) { s.httpMetrics = m }
}

// WithRunIDs replaces the run id generator.
func WithRunIDs(gen func() string) Option {
	return func(s *Server) { s.newID = gen }
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	System string `json:"system"`
}

// StartRequest is the request body for POST /start-cycle. Topic is a pointer
// so a missing field can be told apart from an empty one.
type StartRequest struct {
	Topic         *string `json:"topic"`
	MaxIterations *int    `json:"max_iterations"`
	Scenario      string  `json:"scenario"`
}

// NewServer creates a simulator. The journal is mirrored to cfg.LogFile
// when set.
func NewServer(cfg config.SimConfig, logger *logging.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		return nil, errors.New("logger is required for request tracking")
	}
	outcome, err := ParseOutcome(cfg.Outcome)
	if err != nil {
		return nil, err
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}

	s := &Server{
		cfg:      cfg,
		outcome:  outcome,
		logger:   logger.Named("sim"),
		registry: prometheus.NewRegistry(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newCycleMetrics(s.registry)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o700); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		s.logFile = f
		s.journal = NewJournal(cfg.JournalSize, f)
	} else {
		s.journal = NewJournal(cfg.JournalSize, nil)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			s.logger.Debug(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})
	if s.httpMetrics != nil {
		e.Use(s.httpMetrics.Middleware())
	}
	s.echo = e
	s.registerRoutes()

	s.journal.Log(levelInfo, "System Newsroom uruchomiony.")
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/", s.handleRoot)
	s.echo.GET("/health", s.handleHealth)
	s.echo.POST("/start-cycle", s.handleStartCycle)
	s.echo.GET("/logs", s.handleLogs)
	s.echo.GET("/last-result", s.handleLastResult)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Journal returns the server's log journal.
func (s *Server) Journal() *Journal {
	return s.journal
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Welcome to Autonomous Newsroom API.",
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "active", System: systemName})
}

func (s *Server) handleStartCycle(c echo.Context) error {
	var req StartRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid request body")
	}
	if req.Topic == nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "topic field is required")
	}
	topic := strings.TrimSpace(*req.Topic)
	if topic == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "topic must not be blank")
	}
	maxIter := DefaultMaxIterations
	if req.MaxIterations != nil {
		maxIter = *req.MaxIterations
	}
	if maxIter < 1 || maxIter > MaxIterationsLimit {
		return echo.NewHTTPError(http.StatusUnprocessableEntity,
			fmt.Sprintf("max_iterations must be between 1 and %d", MaxIterationsLimit))
	}
	outcome := s.outcome
	if req.Scenario != "" {
		o, err := ParseOutcome(req.Scenario)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		outcome = o
	}

	runID := s.newID()
	s.journal.Log(levelInfo, "Otrzymano zlecenie: "+topic)
	s.metrics.started.Inc()
	s.metrics.active.Inc()

	s.wg.Add(1)
	go s.runCycle(topic, runID, maxIter, outcome)

	s.logger.Info(c.Request().Context(), "cycle started",
		zap.String("topic", topic),
		zap.String("run_id", runID),
		zap.Int("max_iterations", maxIter),
		zap.String("outcome", string(outcome)),
	)
	return c.JSON(http.StatusOK, newsroom.StartAck{
		Message:       "Zlecenie przyjęte. Agenty rozpoczynają pracę.",
		Topic:         topic,
		Status:        "processing",
		MaxIterations: maxIter,
		RunID:         runID,
	})
}

func (s *Server) handleLogs(c echo.Context) error {
	n := DefaultLogLines
	if v := c.QueryParam("lines"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "lines must be a positive integer")
		}
		n = parsed
	}
	return c.String(http.StatusOK, s.journal.Tail(n))
}

func (s *Server) handleLastResult(c echo.Context) error {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last == nil {
		return c.JSON(http.StatusOK, map[string]string{"status": string(newsroom.StatusNoResult)})
	}
	return c.JSON(http.StatusOK, last)
}

// LastResult returns the most recently published result, or nil.
func (s *Server) LastResult() *newsroom.PipelineResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Server) runCycle(topic, runID string, maxIter int, outcome Outcome) {
	defer s.wg.Done()
	defer s.metrics.active.Dec()

	started := time.Now()
	p := script(topic, runID, maxIter, outcome)
	for _, st := range p.steps {
		if st.pause && !s.sleep(s.cfg.StepDelay.Duration()) {
			s.logger.Info(s.ctx, "cycle abandoned", zap.String("run_id", runID))
			return
		}
		s.journal.Log(st.level, st.msg)
	}
	s.metrics.lines.Set(float64(s.journal.Len()))

	res := p.result(topic, runID)
	res.StartedAt = newsroom.Timestamp{Time: started}
	res.FinishedAt = newsroom.Timestamp{Time: time.Now()}

	s.mu.Lock()
	s.last = res
	s.mu.Unlock()
	s.metrics.finished.WithLabelValues(string(res.Status)).Inc()
	s.logger.Info(s.ctx, "cycle finished",
		zap.String("run_id", runID),
		zap.String("status", string(res.Status)),
		zap.Int("iterations", p.iterations),
	)
}

// sleep waits d and reports false if the server shut down first.
func (s *Server) sleep(d time.Duration) bool {
	if d <= 0 {
		return s.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Wait blocks until every running cycle has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

// Start listens on Addr. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.logger.Info(s.ctx, "starting simulator", zap.String("addr", s.Addr()), zap.String("outcome", string(s.outcome)))
	return s.echo.Start(s.Addr())
}

// Shutdown stops the listener, abandons running cycles and closes the
// log file.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down simulator")
	err := s.echo.Shutdown(ctx)
	s.cancel()
	s.wg.Wait()
	s.journal.Log(levelInfo, "System Newsroom zatrzymany.")
	if s.logFile != nil {
		if cerr := s.logFile.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
