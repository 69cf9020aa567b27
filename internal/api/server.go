// Package api serves the last report, tracker state and journal head over a
// read-only HTTP interface.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yourorg/arca/internal/notify"
	"github.com/yourorg/arca/internal/report"
	"github.com/yourorg/arca/internal/storage"
	"github.com/yourorg/arca/internal/tracker"
)

type Options struct {
	Storage   storage.Storage
	State     tracker.Store
	Journal   notify.Journal
	ReportKey string
	// KeyHash guards /api when set.
	KeyHash string
	Logger  *slog.Logger
}

type Server struct {
	opts   Options
	logger *slog.Logger
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{opts: opts, logger: logger}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Use(RequireKey(s.opts.KeyHash, s.logger))
		r.Get("/report", s.getReport)
		r.Get("/state", s.getState)
		r.Get("/journal/last", s.getJournalHead)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	rep, err := report.Load(r.Context(), s.opts.Storage, s.opts.ReportKey)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no report has been generated")
		return
	}
	if err != nil {
		s.internal(w, r, "load report", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	state, err := s.opts.State.Load(r.Context())
	if err != nil {
		s.internal(w, r, "load state", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) getJournalHead(w http.ResponseWriter, r *http.Request) {
	if s.opts.Journal == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "journal disabled")
		return
	}
	entry, err := s.opts.Journal.Last(r.Context())
	if errors.Is(err, notify.ErrJournalEmpty) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "nothing dispatched yet")
		return
	}
	if err != nil {
		s.internal(w, r, "load journal", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entry":    entry,
		"verified": notify.Verify(entry),
	})
}

func (s *Server) internal(w http.ResponseWriter, r *http.Request, what string, err error) {
	s.logger.Error(what+" failed", "requestId", middleware.GetReqID(r.Context()), "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"code":      "INTERNAL_ERROR",
		"message":   what + " failed",
		"retryable": true,
	})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
