// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server provides the REST API over the extraction pipeline and
// the store.
package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/pdiddy/paper-extractor/pkg/types"
)

// APIKeyHeader carries the client credential.
const APIKeyHeader = "X-API-Key"

// Extractor runs batch extractions.
type Extractor interface {
	ExtractBatch(ctx context.Context, identifiers []string) types.BatchSummary
}

// Store is the read side of the store used by the API.
type Store interface {
	Get(ctx context.Context, id string) (*types.PaperRecord, error)
	List(ctx context.Context) ([]types.PaperSummary, error)
	Stats(ctx context.Context) (types.StoreStats, error)
	Ping(ctx context.Context) error
}

// Server is the HTTP server for the API.
type Server struct {
	extractor Extractor
	store     Store
	config    types.ServerConfig
	logger    *zap.Logger
	server    *http.Server
}

// New creates a server. A nil logger discards output.
func New(e Extractor, s Store, cfg types.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &Server{extractor: e, store: s, config: cfg, logger: logger}
	srv.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)

		r.Post("/extract", s.handleExtract)
		r.Get("/papers", s.handleList)
		r.Get("/papers/csv", s.handleExportCSV)
		r.Get("/papers/xlsx", s.handleExportXLSX)
		r.Get("/papers/{id}", s.handleGet)
		r.Get("/papers/{id}/csv", s.handleExportOneCSV)
		r.Get("/db-stats", s.handleStats)
	})
	return r
}

// Start serves until the server is stopped, then returns
// http.ErrServerClosed.
func (s *Server) Start() error {
	if s.config.APIKey == "" {
		s.logger.Warn("no API key configured, requests are not authenticated")
	}
	s.logger.Info("starting server", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server. It may be called before Start.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// requireAPIKey rejects requests without the configured key: 401 when the
// header is absent, 403 when it does not match. An empty configured key
// disables the check.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	want := []byte(s.config.APIKey)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(want) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get(APIKeyHeader)
		switch {
		case got == "":
			s.respondError(w, http.StatusUnauthorized, "missing API key")
		case subtle.ConstantTimeCompare([]byte(got), want) != 1:
			s.respondError(w, http.StatusForbidden, "invalid API key")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)))
	})
}
