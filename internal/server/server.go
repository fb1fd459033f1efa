// Package server provides the HTTP API for Chronicle.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/chronicle-app/chronicle/internal/ask"
	"github.com/chronicle-app/chronicle/internal/llm"
	"github.com/chronicle-app/chronicle/internal/search"
	"github.com/chronicle-app/chronicle/internal/store"
	"github.com/chronicle-app/chronicle/internal/timeline"
	"github.com/chronicle-app/chronicle/internal/transcribe"
)

// Config holds the server's listen address and upload location.
type Config struct {
	Host      string
	Port      int
	UploadDir string
}

// Server is the HTTP server for the Chronicle API.
type Server struct {
	store       store.Store
	timeline    *timeline.Service
	search      *search.Service
	engine      *ask.Engine
	provider    llm.Provider
	transcriber *transcribe.Client
	config      Config
	logger      *zap.Logger
	server      *http.Server
}

// NewServer creates a server with the given dependencies. transcriber may
// be nil; audio uploads then return 503.
func NewServer(
	st store.Store,
	tl *timeline.Service,
	se *search.Service,
	engine *ask.Engine,
	provider llm.Provider,
	transcriber *transcribe.Client,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:       st,
		timeline:    tl,
		search:      se,
		engine:      engine,
		provider:    provider,
		transcriber: transcriber,
		config:      cfg,
		logger:      logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(90 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Get("/events/export/csv", s.handleExportCSV)
		r.Post("/events", s.handleCreateEvent)
		r.Get("/events", s.handleListEvents)
		r.Get("/events/{id}", s.handleGetEvent)
		r.Put("/events/{id}", s.handleUpdateEvent)
		r.Delete("/events/{id}", s.handleDeleteEvent)
		r.Post("/events/{id}/audio", s.handleAttachAudio)
		r.Post("/events/{id}/attachments", s.handleAttachDocument)
		r.Get("/events/{id}/attachments", s.handleListAttachments)
		r.Delete("/events/{id}/attachments/{attachmentID}", s.handleDetachDocument)

		r.Get("/timelines", s.handleTimelines)

		r.Get("/search", s.handleSearch)
		r.Get("/search/suggestions", s.handleSuggestions)
		r.Post("/search/rebuild-index", s.handleRebuildIndex)

		r.Post("/ask", s.handleAsk)
		r.Get("/ask/status", s.handleAskStatus)
	})
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
