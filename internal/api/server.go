// Package api exposes the HTTP interface for the harvester service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/licitatech/pncp-harvester/internal/engine"
	"github.com/licitatech/pncp-harvester/internal/metrics"
	"github.com/licitatech/pncp-harvester/internal/pncp"
)

// Runner is the engine surface the API triggers.
type Runner interface {
	Run(ctx context.Context, params engine.RunParams) (pncp.RunSummary, error)
	Backfill(ctx context.Context, days int, params engine.RunParams) (pncp.RunSummary, error)
}

// SchedulerControl toggles the cron schedule at runtime.
type SchedulerControl interface {
	Enable()
	Disable()
	Enabled() bool
	Spec() string
}

// StatsProvider serves the dashboard's aggregate queries.
type StatsProvider interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
	RecentRecords(ctx context.Context, limit int) ([]pncp.StoredRecord, error)
}

// Config carries the API server's own settings.
type Config struct {
	// APIKey enables key auth on the /v1 routes when non-empty.
	APIKey string
	// HistorySize bounds the in-memory run history (default 50).
	HistorySize int
	// RequestTimeout bounds the non-extraction routes (default 30s).
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the engine, scheduler, and repository. At
// most one run is in flight at a time; concurrent triggers are refused.
type Server struct {
	router    chi.Router
	runner    Runner
	scheduler SchedulerControl
	stats     StatsProvider
	history   *runHistory
	logger    *zap.Logger
	running   atomic.Bool
}

// NewServer constructs a Server with middleware and routes. scheduler and
// stats may be nil; the corresponding routes then report unavailability.
func NewServer(runner Runner, scheduler SchedulerControl, stats StatsProvider, cfg Config, logger *zap.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	metrics.Init()
	s := &Server{
		runner:    runner,
		scheduler: scheduler,
		stats:     stats,
		history:   newRunHistory(cfg.HistorySize),
		logger:    logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		// Extraction routes run synchronously and pace themselves; only the
		// read-side routes get the short timeout.
		r.Post("/extractions", s.triggerExtraction)
		r.Post("/extractions/backfill", s.triggerBackfill)

		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(cfg.RequestTimeout))
			r.Get("/runs", s.listRuns)
			r.Get("/runs/{run_id}", s.getRun)
			r.Get("/dashboard/stats", s.dashboardStats)
			r.Get("/scheduler", s.schedulerStatus)
			r.Post("/scheduler/enable", s.schedulerEnable)
			r.Post("/scheduler/disable", s.schedulerDisable)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// RecordRun folds an externally triggered run (e.g. from the scheduler) into
// the history served by /v1/runs.
func (s *Server) RecordRun(summary pncp.RunSummary) {
	s.history.add(summary)
}

// TryAcquireRun marks a run as in flight, refusing when one already is. The
// scheduler shares this flag so cron ticks skip while a manual run is active.
func (s *Server) TryAcquireRun() bool {
	return s.running.CompareAndSwap(false, true)
}

// ReleaseRun clears the in-flight flag.
func (s *Server) ReleaseRun() {
	s.running.Store(false)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
