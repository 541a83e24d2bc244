// Package server exposes the feed over HTTP: subreddit search, post
// listing with optional summarization, and single-post enhancement.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/subfeed/subfeed/internal/obs"
	"github.com/subfeed/subfeed/internal/reddit"
	"github.com/subfeed/subfeed/internal/summarize"
)

const (
	defaultAddr = ":8000"

	// Inbound per-IP budget, separate from the upstream limiter.
	inboundRateLimit  = 100
	inboundRateWindow = time.Minute
)

// Session is one authenticated upstream connection. Handlers open a
// session per request and close it when done.
type Session interface {
	LatestPosts(ctx context.Context, subreddit string, limit int) ([]reddit.Post, error)
	SearchSubreddits(ctx context.Context, query string, limit int) ([]string, error)
	Close() error
}

// SessionFactory opens authenticated upstream sessions.
type SessionFactory interface {
	Open(ctx context.Context) (Session, error)
}

// Config carries the server's collaborators. Zero fields get defaults
// where one exists; Sessions is required.
type Config struct {
	Addr       string
	Version    string
	Logger     zerolog.Logger
	Sessions   SessionFactory
	Summarizer summarize.Summarizer
	Registry   *prometheus.Registry
}

// Server is the HTTP API server.
type Server struct {
	router     *chi.Mux
	server     *http.Server
	addr       string
	version    string
	logger     zerolog.Logger
	sessions   SessionFactory
	summarizer summarize.Summarizer
	metrics    *obs.Metrics
}

// New builds the server and its routes.
func New(cfg Config) *Server {
	addr := cfg.Addr
	if addr == "" {
		addr = defaultAddr
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
	}

	s := &Server{
		router:     chi.NewRouter(),
		addr:       addr,
		version:    version,
		logger:     cfg.Logger,
		sessions:   cfg.Sessions,
		summarizer: cfg.Summarizer,
		metrics:    obs.NewMetrics(registry),
	}

	r := s.router
	r.Use(middleware.RealIP)
	r.Use(obs.Logger(s.logger))
	r.Use(s.metrics.Middleware(map[string]struct{}{"/metrics": {}}))
	r.Use(processTime)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}))
	r.Use(httprate.LimitByIP(inboundRateLimit, inboundRateWindow))
	r.Use(middleware.Recoverer)

	r.Get("/api/search/subreddits", s.handleSearchSubreddits)
	r.Get("/api/posts/{subreddit}", s.handleGetPosts)
	r.Post("/api/ai/enhance/{postID}", s.handleEnhancePost)

	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleVersion)
	r.Get("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "The requested resource was not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "The requested method is not allowed for this resource")
	})

	return s
}

// Start runs the server until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	s.logger.Info().Str("addr", s.addr).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
