// Package server wires the CacheGate HTTP surface: routes, middleware
// chain, and server lifecycle.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cachegate/cachegate/internal/auth"
	"github.com/cachegate/cachegate/internal/config"
	"github.com/cachegate/cachegate/internal/handlers"
	"github.com/cachegate/cachegate/internal/registry"
	"github.com/cachegate/cachegate/internal/router"
)

// Server is the CacheGate HTTP server.
type Server struct {
	cfg        *config.Config
	reg        *registry.Registry
	mux        chi.Router
	cache      *handlers.CacheHandler
	httpServer *http.Server
}

// New creates a Server over a built registry and registers all routes.
func New(cfg *config.Config, reg *registry.Registry) *Server {
	s := &Server{
		cfg:   cfg,
		reg:   reg,
		mux:   chi.NewMux(),
		cache: handlers.NewCacheHandler(router.New(reg)),
	}
	s.registerRoutes()
	return s
}

// registerRoutes configures the chi router. /health and /metrics are
// public; the cache routes sit behind the bearer-token middleware.
func (s *Server) registerRoutes() {
	s.mux.Get("/health", handlers.Health)

	if s.cfg.Observability.Metrics {
		s.mux.Handle("/metrics", promhttp.Handler())
	}

	s.mux.Route("/v1/cache", func(r chi.Router) {
		r.Use(auth.Middleware(s.reg))
		r.Put("/{hash}", s.cache.StoreArtifact)
		r.Get("/{hash}", s.cache.RetrieveArtifact)
	})
}

// Handler returns the complete handler chain:
// metricsMiddleware -> requestID -> router.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.mux
	handler = requestIDMiddleware(handler)
	if s.cfg.Observability.Metrics {
		handler = metricsMiddleware(handler)
	}
	return handler
}

// ListenAndServe starts the HTTP server on the given address. The underlying
// http.Server is stored so it can be shut down gracefully.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
