package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/M1nhHoang/marketintel/internal/domain"
	"github.com/M1nhHoang/marketintel/internal/repository"
)

// Repos bundles the read-only repository surface the ops API queries.
// It is a subset of orchestrator.Deps: the server never writes.
type Repos struct {
	Events     *repository.EventRepository
	Indicators *repository.IndicatorRepository
	History    *repository.IndicatorHistoryRepository
	Signals    *repository.SignalRepository
	Themes     *repository.ThemeRepository
	Watchlist  *repository.WatchlistRepository
	RunHistory *repository.RunHistoryRepository
}

// Config holds server configuration.
type Config struct {
	Port    int
	Log     zerolog.Logger
	Repos   Repos
	DevMode bool
}

// Server is the read-only ops/status surface described in the external
// interfaces section: no trading or write endpoints, just enough to
// inspect the latest pass and its output.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	repos  Repos
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		repos:  cfg.Repos,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/runs", func(r chi.Router) {
		r.Get("/latest", s.handleLatestRun)
		r.Get("/recent", s.handleRecentRuns)
	})

	s.router.Route("/events", func(r chi.Router) {
		r.Get("/", s.handleEventsBySection)
	})

	s.router.Route("/indicators", func(r chi.Router) {
		r.Get("/", s.handleIndicatorsGrouped)
		r.Get("/{id}/history", s.handleIndicatorHistory)
	})

	s.router.Route("/signals", func(r chi.Router) {
		r.Get("/active", s.handleSignalsActive)
		r.Get("/", s.handleSignalsByStatus)
		r.Get("/accuracy", s.handleSignalAccuracy)
	})

	s.router.Route("/themes", func(r chi.Router) {
		r.Get("/", s.handleThemesActiveAndEmerging)
	})

	s.router.Route("/watchlist", func(r chi.Router) {
		r.Get("/active", s.handleWatchlistActive)
		r.Get("/triggered", s.handleWatchlistTriggered)
	})
}

// handleHealth reports process liveness only; it intentionally does
// not touch the database.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	rh, err := s.repos.RunHistory.GetLatest(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if rh == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no runs recorded"})
		return
	}
	writeJSON(w, http.StatusOK, rh)
}

func (s *Server) handleRecentRuns(w http.ResponseWriter, r *http.Request) {
	days := intQuery(r, "days", 7)
	runs, err := s.repos.RunHistory.GetRecent(r.Context(), days)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleEventsBySection(w http.ResponseWriter, r *http.Request) {
	section := domain.DisplaySection(r.URL.Query().Get("section"))
	if section == "" {
		section = domain.SectionKeyEvents
	}
	limit := intQuery(r, "limit", 50)
	offset := intQuery(r, "offset", 0)

	events, err := s.repos.Events.GetBySection(r.Context(), section, limit, offset)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleIndicatorsGrouped(w http.ResponseWriter, r *http.Request) {
	grouped, err := s.repos.Indicators.GetAllGrouped(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, grouped)
}

func (s *Server) handleIndicatorHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	days := intQuery(r, "days", 90)
	limit := intQuery(r, "limit", 500)

	hist, err := s.repos.History.GetHistory(r.Context(), id, days, limit)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

func (s *Server) handleSignalsActive(w http.ResponseWriter, r *http.Request) {
	signals, err := s.repos.Signals.GetActive(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, signals)
}

func (s *Server) handleSignalsByStatus(w http.ResponseWriter, r *http.Request) {
	status := domain.SignalStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.SignalActive
	}
	signals, err := s.repos.Signals.GetByStatus(r.Context(), status)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, signals)
}

func (s *Server) handleSignalAccuracy(w http.ResponseWriter, r *http.Request) {
	days := intQuery(r, "days", 90)

	var confidence *domain.SignalConfidence
	if v := r.URL.Query().Get("confidence"); v != "" {
		c := domain.SignalConfidence(v)
		confidence = &c
	}
	var indicator *string
	if v := r.URL.Query().Get("indicator"); v != "" {
		indicator = &v
	}

	stats, err := s.repos.Signals.GetAccuracyStats(r.Context(), days, confidence, indicator)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleThemesActiveAndEmerging(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 20)
	themes, err := s.repos.Themes.GetActiveAndEmerging(r.Context(), limit)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, themes)
}

func (s *Server) handleWatchlistActive(w http.ResponseWriter, r *http.Request) {
	items, err := s.repos.Watchlist.GetActive(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleWatchlistTriggered(w http.ResponseWriter, r *http.Request) {
	items, err := s.repos.Watchlist.GetTriggered(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	log.Error().Err(err).Msg("request failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
