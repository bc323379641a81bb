// Package server exposes the hierarchy resolver over HTTP to the
// dashboard UI.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/omniview-labs/omniview/internal/resolver"
)

// Server wraps the HTTP listener around the resolver service.
type Server struct {
	log     *zap.Logger
	service *resolver.Service
	http    *http.Server
}

// New builds a server listening on addr.
func New(log *zap.Logger, service *resolver.Service, addr string) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{log: log, service: service}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// routes wires the API surface.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/tenants/{tenant}/reload", s.handleReload)
		r.Get("/tenants/{tenant}/components/{componentType}/{name}", s.handleGetCached)
		r.Get("/tenants/{tenant}/children/{name}", s.handleChildHierarchy)
		r.Delete("/tenants/{tenant}/cache", s.handleClearTenant)
		r.Delete("/cache", s.handleClearAll)
	})
	return r
}

// Start blocks serving HTTP until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.log.Info("http server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("http server shutting down")
	return s.http.Shutdown(ctx)
}

// requestLogger emits one structured line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(started)),
			zap.String("requestId", middleware.GetReqID(r.Context())))
	})
}
