// Package server is the HTTP ingress for the terminal and the public
// feed: analysis submissions, the watch/confirmation flow, the 60s
// trade hand-off queue and lifecycle reports.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/manuham/fx-coordinator/internal/analysis"
	"github.com/manuham/fx-coordinator/internal/archive"
	"github.com/manuham/fx-coordinator/internal/config"
	"github.com/manuham/fx-coordinator/internal/domain"
	"github.com/manuham/fx-coordinator/internal/macro"
	"github.com/manuham/fx-coordinator/internal/news"
	"github.com/manuham/fx-coordinator/internal/notify"
	"github.com/manuham/fx-coordinator/internal/queue"
	"github.com/manuham/fx-coordinator/internal/report"
	"github.com/manuham/fx-coordinator/internal/risk"
	"github.com/manuham/fx-coordinator/internal/store"
	"github.com/manuham/fx-coordinator/internal/watch"
)

// Analyzer is the slice of the analysis engine the server calls.
type Analyzer interface {
	Analyze(ctx context.Context, bundle *domain.Bundle) *domain.AnalysisResult
	ConfirmEntry(ctx context.Context, req analysis.ConfirmRequest) (*analysis.ConfirmVerdict, error)
	ReviewTrade(ctx context.Context, t *store.TradeRecord) (string, error)
}

// Notifier is the slice of the messenger the server pushes through.
type Notifier interface {
	Send(text string)
	SendWithButtons(text string, rows [][]notify.Button)
}

// Deps carries everything the server needs.
type Deps struct {
	Config   *config.Config
	Log      zerolog.Logger
	Store    *store.Store
	Engine   Analyzer
	Registry *watch.Registry
	Queue    *queue.Queue
	Gate     *risk.Gate
	Notifier Notifier
	Archive  *archive.Store
	Reports  *report.Service
	Calendar *news.Service
	Macro    *macro.Service
}

// Server is the HTTP surface plus the chat-command backend.
type Server struct {
	router chi.Router
	server *http.Server
	log    zerolog.Logger
	cfg    *config.Config

	store    *store.Store
	engine   Analyzer
	registry *watch.Registry
	queue    *queue.Queue
	gate     *risk.Gate
	notifier Notifier
	archive  *archive.Store
	reports  *report.Service
	calendar *news.Service
	macroSvc *macro.Service

	startedAt time.Time

	// Latest analysis context per symbol, for chat callbacks and the
	// risk gate's balance input.
	mu           sync.Mutex
	lastResult   map[string]*domain.AnalysisResult
	lastBalance  map[string]float64
	lastSession  map[string]string
	lastRejected map[string]domain.WatchTrade
}

// New builds the server and its routes.
func New(d Deps) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		log:          d.Log.With().Str("component", "server").Logger(),
		cfg:          d.Config,
		store:        d.Store,
		engine:       d.Engine,
		registry:     d.Registry,
		queue:        d.Queue,
		gate:         d.Gate,
		notifier:     d.Notifier,
		archive:      d.Archive,
		reports:      d.Reports,
		calendar:     d.Calendar,
		macroSvc:     d.Macro,
		startedAt:    time.Now(),
		lastResult:   make(map[string]*domain.AnalysisResult),
		lastBalance:  make(map[string]float64),
		lastSession:  make(map[string]string),
		lastRejected: make(map[string]domain.WatchTrade),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", d.Config.Host, d.Config.Port),
		Handler: s.router,
		// Analysis submissions carry four screenshots; give uploads room.
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/public", func(r chi.Router) {
		r.Get("/trades", s.handlePublicTrades)
		r.Get("/stats", s.handlePublicStats)
		r.Get("/report/{year}/{month}", s.handlePublicReport)
	})

	s.router.Group(func(r chi.Router) {
		r.Use(s.apiKeyAuth)
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/scan", s.handleScan)
		r.Post("/scan", s.handleScan)
		r.Get("/stats", s.handleStats)
		r.Get("/pending_trade", s.handlePendingTrade)
		r.Get("/watch_trade", s.handleWatchTrade)
		r.Post("/confirm_entry", s.handleConfirmEntry)
		r.Post("/trade_executed", s.handleTradeExecuted)
		r.Post("/trade_closed", s.handleTradeClosed)
	})
}

// apiKeyAuth checks X-API-Key. An empty configured key disables auth,
// which is only sensible in dev mode.
func (s *Server) apiKeyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && r.Header.Get("X-API-Key") != s.cfg.APIKey {
			s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request handled")
	})
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server starting")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
