// Package status serves the daemon's loopback diagnostics API: a health
// probe, the current decision state, and the recent alert and switch
// history. It binds to loopback only and carries no authentication.
package status

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"skybar/internal/alert"
	"skybar/internal/config"
	"skybar/internal/history"
	"skybar/internal/slot"
	"skybar/internal/types"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
	shutdownTimeout     = 5 * time.Second
)

// ServerConfig holds the status server's collaborators. The snapshot
// functions are called per request and must be safe from any goroutine.
type ServerConfig struct {
	Addr          string
	Build         config.BuildInfo
	Store         *history.Store // optional
	SlotSnapshot  func() slot.Snapshot
	AlertSnapshot func() alert.Snapshot
	CurrentEvent  func() *types.WeatherEvent
	Logger        *slog.Logger
}

// Server is the loopback diagnostics HTTP server.
type Server struct {
	cfg    ServerConfig
	logger *slog.Logger
	router chi.Router
}

// NewServer creates the Server and mounts its routes.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		logger: logger,
		router: chi.NewRouter(),
	}
	s.mountRoutes()
	return s
}

func (s *Server) mountRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/history/alerts", s.handleAlertHistory)
		r.Get("/history/switches", s.handleSwitchHistory)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.Info("status server listening", "addr", s.cfg.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("status request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, apiResponse{Data: healthResponse{
		Status:  "ok",
		Version: s.cfg.Build.Version,
		Commit:  s.cfg.Build.Commit,
	}})
}

type statusResponse struct {
	Slot  slot.Snapshot       `json:"slot"`
	Alert alert.Snapshot      `json:"alert"`
	Event *types.WeatherEvent `json:"event,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, apiResponse{Data: statusResponse{
		Slot:  s.cfg.SlotSnapshot(),
		Alert: s.cfg.AlertSnapshot(),
		Event: s.cfg.CurrentEvent(),
	}})
}

func (s *Server) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store == nil {
		writeJSON(w, http.StatusOK, apiResponse{Data: []history.AlertRecord{}})
		return
	}
	records, err := s.cfg.Store.RecentAlerts(r.Context(), historyLimit(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Data: records})
}

func (s *Server) handleSwitchHistory(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store == nil {
		writeJSON(w, http.StatusOK, apiResponse{Data: []history.SwitchRecord{}})
		return
	}
	records, err := s.cfg.Store.RecentSwitches(r.Context(), historyLimit(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Data: records})
}

// historyLimit parses the ?limit query parameter, clamped to
// [1, maxHistoryLimit].
func historyLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultHistoryLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.logger.Error("status request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, apiErrorResponse{
		Error: errorDetail{
			Code:    string(types.ErrCodeInternalUnexpected),
			Message: "internal error",
		},
	})
}
