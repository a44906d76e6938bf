// Package web provides the HTTP server for table sessions: JSON and HTMX
// endpoints that drive table engines, and the built-in record source API.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/tablekit/internal/config"
	"github.com/JonMunkholm/tablekit/internal/source"
	mw "github.com/JonMunkholm/tablekit/internal/web/middleware"
)

// Deps are the collaborators of a Server.
type Deps struct {
	Config   *config.Config
	Sessions *Sessions
	Source   *source.Source // nil disables /api/data
	Logger   *slog.Logger
}

// Server is the HTTP server for table sessions.
type Server struct {
	cfg      *config.Config
	sessions *Sessions
	source   *source.Source
	logger   *slog.Logger
	limiter  *rateLimiter

	router *chi.Mux
	server *http.Server
}

// NewServer creates a new Server instance.
func NewServer(deps Deps) *Server {
	s := &Server{
		cfg:      deps.Config,
		sessions: deps.Sessions,
		source:   deps.Source,
		logger:   deps.Logger,
		router:   chi.NewRouter(),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.cfg.Rate.Enabled {
		s.limiter = newRateLimiter(s.cfg.Rate.RequestsPerMinute, s.cfg.Rate.Burst)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	}

	// Security hardening
	s.router.Use(securityHeaders)

	if s.limiter != nil {
		s.router.Use(s.limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	// Pages
	s.router.Get("/", s.handleIndex)
	s.router.Get("/table/{table}", s.handleTablePage)

	// Browser fragments for sessions created by /table pages.
	s.router.Route("/ui/sessions/{id}", s.sessionRoutes)

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(s.cfg.Security))

		r.Get("/tables", s.handleListTables)

		// Record source
		r.Get("/data/{table}", s.handleData)
		r.Post("/data/{table}", s.handleData)

		// Table sessions
		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions", s.handleListSessions)
		r.Route("/sessions/{id}", s.sessionRoutes)
	})
}

// sessionRoutes are shared by the JSON API and the browser fragments.
func (s *Server) sessionRoutes(r chi.Router) {
	r.Get("/", s.handleGetSession)
	r.Delete("/", s.handleDeleteSession)
	r.Post("/filters", s.handleApplyFilter)
	r.Delete("/filters", s.handleClearFilters)
	r.Delete("/filters/{column}", s.handleRemoveFilter)
	r.Post("/page/{page}", s.handleGoToPage)
	r.Post("/next", s.handleNextPage)
	r.Post("/previous", s.handlePreviousPage)
	r.Post("/reload", s.handleReload)
	r.Post("/actions/{action}", s.handleRunAction)
}

// Start begins listening for HTTP requests. It returns nil after Shutdown.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.logger.Info("starting server", "addr", ln.Addr().String())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// RunJanitors sweeps expired sessions and idle rate-limit entries until ctx
// ends.
func (s *Server) RunJanitors(ctx context.Context) error {
	if s.limiter != nil {
		go s.limiter.run(ctx)
	}
	return s.sessions.Run(ctx, time.Minute)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// Content Security Policy: htmx from its CDN, inline styles only
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' https://unpkg.com; style-src 'self' 'unsafe-inline'; img-src 'self' data:")

		// Control referrer information
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}
