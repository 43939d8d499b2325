package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"statusflow/internal/config"
	"statusflow/internal/interfaces"
)

// Server represents the ops HTTP server
type Server struct {
	httpServer *http.Server
	logger     *zerolog.Logger
	store      interfaces.DeadLetterStore
	config     *config.Config
}

// New creates a new HTTP server instance
func New(cfg *config.Config, store interfaces.DeadLetterStore, logger *zerolog.Logger) *Server {
	server := &Server{
		logger: logger,
		store:  store,
		config: cfg,
	}

	server.httpServer = &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      server.setupRoutes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return server
}

// Start serves the ops endpoints until Stop is called
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("Ops server listening")

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("ops server on %s: %w", s.httpServer.Addr, err)
}

// Stop waits for in-flight ops requests, at most until ctx is done
func (s *Server) Stop(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ops server shutdown: %w", err)
	}
	return nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.recoveryMiddleware)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Route("/dead-letters", func(r chi.Router) {
		r.Get("/", s.handleListDeadLetters)
		r.Get("/count", s.handleCountDeadLetters)
	})

	return r
}

// requestLogger logs every request with its matched route and dead-letter filter
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			event := s.logger.Debug()
			if ww.Status() >= http.StatusInternalServerError {
				event = s.logger.Warn()
			}
			if channel := r.URL.Query().Get("channel"); channel != "" {
				event = event.Str("channel", channel)
			}
			event.
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("route", routePattern(r)).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("Ops request served")
		},
	)
}

// routePattern returns the chi pattern that matched r, or the raw path for unmatched requests
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// recoveryMiddleware turns a handler panic into a JSON 500
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					s.logger.Error().
						Interface("panic", rec).
						Str("request_id", middleware.GetReqID(r.Context())).
						Str("route", routePattern(r)).
						Msg("Panic recovered in ops handler")

					s.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error", "")
				}
			}()

			next.ServeHTTP(w, r)
		},
	)
}
