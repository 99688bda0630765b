// Package api exposes the admin HTTP surface for the scheduler: per-source
// status, manual triggers, initialization, and teardown.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/meridian-news/ingest/internal/ingest"
	"github.com/meridian-news/ingest/internal/scraper"
	"github.com/meridian-news/ingest/internal/store"
)

// Server wires HTTP handlers to the scraper registry.
type Server struct {
	router   chi.Router
	registry *scraper.Registry
	sources  ingest.SourceStore
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(registry *scraper.Registry, sources ingest.SourceStore, logger *zap.Logger) *Server {
	s := &Server{
		registry: registry,
		sources:  sources,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(s.loggingMiddleware)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/sources", func(r chi.Router) {
		r.Post("/initialize", s.initializeSource)
		r.Route("/{source_id}", func(r chi.Router) {
			r.Get("/status", s.sourceStatus)
			r.Post("/trigger", s.triggerSource)
			r.Delete("/", s.deleteSource)
		})
	})

	s.router = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type initializeRequest struct {
	ID              int64  `json:"id"`
	URL             string `json:"url"`
	ScrapeFrequency int    `json:"scrape_frequency"`
}

func (s *Server) initializeSource(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.ID <= 0 || req.URL == "" {
		writeError(w, http.StatusBadRequest, errors.New("id and url are required"))
		return
	}

	err := s.registry.Initialize(r.Context(), ingest.Source{
		ID: req.ID, URL: req.URL, ScrapeFrequency: req.ScrapeFrequency,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "initialized"})
}

func (s *Server) sourceStatus(w http.ResponseWriter, r *http.Request) {
	src, ok := s.lookupSource(w, r)
	if !ok {
		return
	}
	status, err := s.registry.Status(r.Context(), src.URL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) triggerSource(w http.ResponseWriter, r *http.Request) {
	src, ok := s.lookupSource(w, r)
	if !ok {
		return
	}
	if err := s.registry.Trigger(r.Context(), src.URL); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func (s *Server) deleteSource(w http.ResponseWriter, r *http.Request) {
	src, ok := s.lookupSource(w, r)
	if !ok {
		return
	}
	if err := s.registry.Destroy(r.Context(), src); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "destroyed"})
}

func (s *Server) lookupSource(w http.ResponseWriter, r *http.Request) (ingest.Source, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "source_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid source id: %w", err))
		return ingest.Source{}, false
	}
	src, err := s.sources.GetSource(r.Context(), id)
	if errors.Is(err, store.ErrSourceNotFound) {
		writeError(w, http.StatusNotFound, err)
		return ingest.Source{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return ingest.Source{}, false
	}
	return src, true
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
