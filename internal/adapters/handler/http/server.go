package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"picpic.transcode/internal/core/domain"
	"picpic.transcode/internal/core/logger"
	"picpic.transcode/internal/core/ports"
	"picpic.transcode/internal/core/services"
)

// ProgressSource is the read side of the progress registry.
type ProgressSource interface {
	Snapshot() []domain.ProgressEntry
	Get(label string) (domain.ProgressEntry, bool)
}

type ServerOptions struct {
	Progress ProgressSource
	Health   *services.HealthService
	Hub      *Hub
	Attempts ports.AttemptRepository
	Failures ports.FailureLedger
	Metrics  bool
}

// Server exposes a read-only view of the transcoder: progress, history,
// failures, health and metrics.
type Server struct {
	router   *chi.Mux
	progress ProgressSource
	health   *services.HealthService
	hub      *Hub
	attempts ports.AttemptRepository
	failures ports.FailureLedger
}

func NewServer(opts ServerOptions) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		progress: opts.Progress,
		health:   opts.Health,
		hub:      opts.Hub,
		attempts: opts.Attempts,
		failures: opts.Failures,
	}
	s.routes(opts.Metrics)
	return s
}

func (s *Server) routes(metrics bool) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger)
	if metrics {
		s.router.Use(MetricsMiddleware)
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	if metrics {
		s.router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			MetricsHandler().ServeHTTP(w, r)
		})
	}

	// Kubernetes probes
	s.router.Get("/health/live", s.handleLiveness)
	s.router.Get("/health/ready", s.handleReadiness)
	s.router.Get("/api/health/detailed", s.handleDetailedHealth)

	s.router.Get("/api/progress", s.handleListProgress)
	s.router.Get("/api/progress/{label}", s.handleGetProgress)
	s.router.Get("/api/attempts", s.handleListAttempts)
	s.router.Get("/api/attempts/{id}", s.handleGetAttempt)
	s.router.Get("/api/failures", s.handleListFailures)
	if s.hub != nil {
		s.router.Get("/api/ws", s.handleWS)
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// pagination parses offset/limit query params, limit capped at 100.
func pagination(r *http.Request) (offset, limit int) {
	offset, limit = 0, 20
	if o := r.URL.Query().Get("offset"); o != "" {
		if val, err := strconv.Atoi(o); err == nil && val >= 0 {
			offset = val
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 && val <= 100 {
			limit = val
		}
	}
	return offset, limit
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	status, code := s.health.SimpleHealthCheck(r.Context())
	w.WriteHeader(code)
	w.Write([]byte(status))
}

func (s *Server) handleDetailedHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.CheckHealth(r.Context())

	statusCode := http.StatusOK
	if report.Status == services.HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, report)
}

type progressView struct {
	domain.ProgressEntry
	Percent int `json:"percent"`
}

func toView(e domain.ProgressEntry) progressView {
	return progressView{ProgressEntry: e, Percent: e.Percent()}
}

func (s *Server) handleListProgress(w http.ResponseWriter, r *http.Request) {
	snap := s.progress.Snapshot()
	views := make([]progressView, 0, len(snap))
	for _, e := range snap {
		views = append(views, toView(e))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")
	e, ok := s.progress.Get(label)
	if !ok {
		writeError(w, http.StatusNotFound, "no progress for "+label)
		return
	}
	writeJSON(w, http.StatusOK, toView(e))
}

type PaginatedAttempts struct {
	Attempts []*domain.Attempt `json:"attempts"`
	Total    int64             `json:"total"`
	Offset   int               `json:"offset"`
	Limit    int               `json:"limit"`
}

func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	if s.attempts == nil {
		writeError(w, http.StatusServiceUnavailable, "attempt history is not configured")
		return
	}
	offset, limit := pagination(r)

	var (
		attempts []*domain.Attempt
		total    int64
		err      error
	)
	if label := r.URL.Query().Get("label"); label != "" {
		attempts, err = s.attempts.ListAttemptsByLabel(r.Context(), label, offset, limit)
		if err == nil {
			total, err = s.attempts.CountAttemptsByLabel(r.Context(), label)
		}
	} else {
		attempts, err = s.attempts.ListAttempts(r.Context(), offset, limit)
		if err == nil {
			total, err = s.attempts.CountAttempts(r.Context())
		}
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, PaginatedAttempts{Attempts: attempts, Total: total, Offset: offset, Limit: limit})
}

func (s *Server) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	if s.attempts == nil {
		writeError(w, http.StatusServiceUnavailable, "attempt history is not configured")
		return
	}
	attempt, err := s.attempts.GetAttempt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

type PaginatedFailures struct {
	Failures []*domain.FailureRecord `json:"failures"`
	Total    int64                   `json:"total"`
	Offset   int                     `json:"offset"`
	Limit    int                     `json:"limit"`
}

func (s *Server) handleListFailures(w http.ResponseWriter, r *http.Request) {
	if s.failures == nil {
		writeError(w, http.StatusServiceUnavailable, "failure ledger is not configured")
		return
	}
	offset, limit := pagination(r)

	records, err := s.failures.ListFailures(r.Context(), int64(offset), int64(limit))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.failures.CountFailures(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, PaginatedFailures{Failures: records, Total: total, Offset: offset, Limit: limit})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ServeWs(s.hub, w, r)
}
