// Package server exposes the demo engine and the site's collaborators over
// HTTP: session snapshots and operations, an SSE snapshot stream, evidence
// export, donation checkout, the pitch deck and the admin area.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/Mindburn-Labs/sita/pkg/api"
	"github.com/Mindburn-Labs/sita/pkg/artifacts"
	"github.com/Mindburn-Labs/sita/pkg/auth"
	"github.com/Mindburn-Labs/sita/pkg/observability"
	"github.com/Mindburn-Labs/sita/pkg/payments"
	"github.com/Mindburn-Labs/sita/pkg/records"
	"github.com/Mindburn-Labs/sita/pkg/sessions"
)

// VisitorCookie scopes persisted view-mode preferences to one browser.
const VisitorCookie = "sita_visitor"

const visitorCookieTTL = 365 * 24 * time.Hour

// Options wires the server's collaborators. Sessions is required; a nil
// collaborator disables the routes that need it.
type Options struct {
	Sessions      *sessions.Registry
	Payments      *payments.Service
	Records       records.Store
	Artifacts     artifacts.Store
	Auth          *auth.Manager
	Authenticator *auth.Authenticator
	Functions     *auth.Functions
	Telemetry     *observability.Provider
	RateLimiter   *api.GlobalRateLimiter
	VersionGate   *api.VersionGate
	Clock         clock.Clock
	Logger        *slog.Logger
	SecureCookies bool
	// KeepAlive is the SSE comment interval; zero means 15s.
	KeepAlive time.Duration
}

// Server holds the HTTP handlers.
type Server struct {
	sessions      *sessions.Registry
	payments      *payments.Service
	records       records.Store
	artifacts     artifacts.Store
	auth          *auth.Manager
	authenticator *auth.Authenticator
	functions     *auth.Functions
	telemetry     *observability.Provider
	limiter       *api.GlobalRateLimiter
	gate          *api.VersionGate
	schemas       *api.Schemas
	clk           clock.Clock
	logger        *slog.Logger
	secure        bool
	keepAlive     time.Duration
}

// New builds a Server.
func New(opts Options) (*Server, error) {
	if opts.Sessions == nil {
		return nil, fmt.Errorf("server: session registry is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 15 * time.Second
	}
	schemas, err := api.CompileSchemas(schemaSources)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	return &Server{
		sessions:      opts.Sessions,
		payments:      opts.Payments,
		records:       opts.Records,
		artifacts:     opts.Artifacts,
		auth:          opts.Auth,
		authenticator: opts.Authenticator,
		functions:     opts.Functions,
		telemetry:     opts.Telemetry,
		limiter:       opts.RateLimiter,
		gate:          opts.VersionGate,
		schemas:       schemas,
		clk:           opts.Clock,
		logger:        opts.Logger.With("component", "server"),
		secure:        opts.SecureCookies,
		keepAlive:     opts.KeepAlive,
	}, nil
}

// Routes registers every route on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	// Demo sessions
	mux.HandleFunc("POST /api/v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}/intelligence", s.handleIntelligence)
	mux.HandleFunc("POST /api/v1/sessions/{id}/actions", s.handleAction)
	mux.HandleFunc("POST /api/v1/sessions/{id}/keys", s.handleKey)
	mux.HandleFunc("POST /api/v1/sessions/{id}/autoplay", s.handleStartAutoplay)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/autoplay", s.handleStopAutoplay)
	mux.HandleFunc("GET /api/v1/sessions/{id}/autoplay/progress", s.handleProgress)
	mux.HandleFunc("GET /api/v1/sessions/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/sessions/{id}/export", s.handleExport)

	// Donations
	mux.HandleFunc("GET /api/v1/tiers", s.handleTiers)
	mux.HandleFunc("POST /api/v1/checkout", s.handleCheckout)
	mux.HandleFunc("POST /api/v1/webhooks/checkout", s.handleWebhook)

	// Pitch deck
	mux.HandleFunc("GET /deck", s.handleDeckIndex)
	mux.HandleFunc("GET /deck/{page}", s.handleDeckPage)

	// Admin
	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)
	if s.auth != nil {
		admin := http.NewServeMux()
		s.adminRoutes(admin)
		guarded := s.auth.RequireAdmin(admin)
		mux.Handle("/admin", guarded)
		mux.Handle("/admin/", guarded)
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

// Handler returns the routed handler wrapped in the middleware chain:
// request ids, tracing, rate limiting, then the client version gate.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Routes(mux)

	var h http.Handler = mux
	if s.gate != nil {
		h = s.gate.Middleware(h)
	}
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	if s.telemetry != nil {
		h = s.telemetry.Middleware(h)
	}
	return api.RequestIDMiddleware(h)
}

// HTTPServer returns an http.Server with explicit timeouts. WriteTimeout
// is lifted per request by the SSE handler.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
