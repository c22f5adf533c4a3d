// Package api exposes the interval computation over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"mixsim/app"
	"mixsim/domain/core"
	"mixsim/internal/config"
)

// Server routes interval requests to the interval service.
type Server struct {
	service  *app.IntervalService
	defaults config.SimulationConfig
	log      zerolog.Logger
}

// NewServer creates the HTTP surface over the interval service.
func NewServer(service *app.IntervalService, defaults config.SimulationConfig, log zerolog.Logger) *Server {
	return &Server{service: service, defaults: defaults, log: log}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Post("/api/intervals", s.handleIntervals)
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case core.IsInputError(err):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrUnsupportedModelKind):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrDegenerateCovariance), errors.Is(err, core.ErrInvalidModel):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
