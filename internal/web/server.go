// Package web serves the dividend import API.
package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/divimport/internal/config"
	"github.com/JonMunkholm/divimport/internal/dividend"
	"github.com/JonMunkholm/divimport/internal/session"
	mw "github.com/JonMunkholm/divimport/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Pipeline is the import work the handlers drive. *dividend.Pipeline
// implements it.
type Pipeline interface {
	Preview(ctx context.Context, name string, r io.Reader, defaults dividend.Defaults) (*dividend.Batch, error)
	Duplicates(ctx context.Context, b *dividend.Batch) ([]dividend.Duplicate, error)
	Confirm(ctx context.Context, b *dividend.Batch, policy dividend.DuplicatePolicy) (dividend.ImportResult, error)
	RecentImports(ctx context.Context, limit int) ([]dividend.ImportRun, error)
	Fields() []dividend.Field
	LimiterStatus() dividend.LimiterStatus
}

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP server for the import API.
type Server struct {
	cfg      *config.Config
	pipeline Pipeline
	sessions *session.Store
	db       Pinger
	router   *chi.Mux
	server   *http.Server
}

// NewServer wires routes and middleware. db may be nil, in which case the
// health check skips the database.
func NewServer(cfg *config.Config, pipeline Pipeline, sessions *session.Store, db Pinger) *Server {
	s := &Server{
		cfg:      cfg,
		pipeline: pipeline,
		sessions: sessions,
		db:       db,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.With(middleware.Timeout(s.cfg.Server.RequestTimeout)).Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(s.cfg.Security))
		if s.cfg.Rate.Enabled {
			r.Use(mw.NewRateLimiter(s.cfg.Rate.RequestsPerMinute, 0).Handler)
		}

		r.Route("/imports", func(r chi.Router) {
			// Preview and confirm may run long and are limited separately.
			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(s.cfg.Import.Timeout))
				if s.cfg.Rate.Enabled {
					r.Use(mw.NewRateLimiter(s.cfg.Rate.ImportPerMinute, 0).Handler)
				}
				r.Post("/preview", s.handlePreview)
				r.Post("/current/confirm", s.handleConfirm)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
				r.Get("/current", s.handleCurrent)
				r.Get("/current/duplicates", s.handleDuplicates)
				r.Delete("/current", s.handleDiscard)
				r.Get("/history", s.handleHistory)
				r.Get("/template", s.handleTemplate)
			})
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses. The API serves
// only JSON and CSV, so the policy forbids every resource type.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if s.cfg.Security.EnableCSP {
			w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status   string                 `json:"status"`
	Database string                 `json:"database"`
	Imports  dividend.LimiterStatus `json:"imports"`
	Sessions int                    `json:"pending_batches"`
	Time     time.Time              `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Database: "ok",
		Imports:  s.pipeline.LimiterStatus(),
		Sessions: s.sessions.Len(),
		Time:     time.Now().UTC(),
	}
	status := http.StatusOK

	if s.db == nil {
		resp.Database = "unknown"
	} else if err := s.db.Ping(r.Context()); err != nil {
		slog.Error("health: database ping failed", "error", err)
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}
