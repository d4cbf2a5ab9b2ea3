package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/garbagecal/internal/domain"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresher triggers calendar refreshes and reports readiness.
type Refresher interface {
	sharedobs.ReadinessChecker
	Refresh(ctx context.Context, force bool) (domain.RefreshReport, error)
}

// CalendarReader exposes the cached calendar.
type CalendarReader interface {
	Upcoming(now time.Time) []domain.Collection
	Collections() []domain.Collection
	LastUpdated() (time.Time, bool)
	Sector() string
}

// Server exposes health, readiness, metrics and calendar HTTP endpoints.
type Server struct {
	httpServer *http.Server
	refresher  Refresher
	calendar   CalendarReader
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics,
// /collections and /refresh routes.
func NewServer(addr string, refresher Refresher, calendar CalendarReader, clock clockwork.Clock, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		refresher: refresher,
		calendar:  calendar,
		clock:     clock,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(refresher))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /collections", s.handleCollections)
	mux.HandleFunc("POST /refresh", s.handleRefresh)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type collectionsResponse struct {
	Sector      string                 `json:"sector"`
	UpdatedAt   *time.Time             `json:"updated_at,omitempty"`
	Collections []domain.CollectionDTO `json:"collections"`
}

// handleCollections lists upcoming collections, or all cached ones with ?all=true.
func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	all, err := boolParam(r, "all")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cols := s.calendar.Upcoming(s.clock.Now())
	if all {
		cols = s.calendar.Collections()
	}

	resp := collectionsResponse{
		Sector:      s.calendar.Sector(),
		Collections: domain.ToDTOs(cols),
	}
	if updated, ok := s.calendar.LastUpdated(); ok {
		resp.UpdatedAt = &updated
	}
	writeJSON(w, http.StatusOK, resp)
}

type refreshResponse struct {
	Sector      string                 `json:"sector"`
	Collections int                    `json:"collections"`
	Skipped     bool                   `json:"skipped"`
	Added       []domain.CollectionDTO `json:"added"`
	Removed     []domain.CollectionDTO `json:"removed"`
}

// handleRefresh runs a refresh synchronously. ?force=true ignores a fresh cache.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	force, err := boolParam(r, "force")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	report, err := s.refresher.Refresh(r.Context(), force)
	if err != nil {
		status := refreshStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.Warn("refresh request failed", "error", err)
		}
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		Sector:      report.Sector.String(),
		Collections: report.Collections,
		Skipped:     report.Skipped,
		Added:       domain.ToDTOs(report.Added),
		Removed:     domain.ToDTOs(report.Removed),
	})
}

func refreshStatus(err error) int {
	var scrapeErr *domain.ScrapeError
	switch {
	case errors.Is(err, domain.ErrRefreshInFlight):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoAddress), errors.Is(err, domain.ErrApartment), errors.Is(err, domain.ErrNoSector):
		return http.StatusUnprocessableEntity
	case errors.As(err, &scrapeErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func boolParam(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.New("invalid " + name + " parameter")
	}
	return b, nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
