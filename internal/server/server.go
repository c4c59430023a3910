// Package server provides the HTTP API for the tutor service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/educore/tutor/internal/config"
	"github.com/educore/tutor/internal/corpus"
	"github.com/educore/tutor/internal/ingest"
	"github.com/educore/tutor/internal/pipeline"
	"github.com/educore/tutor/internal/storage"
	"github.com/educore/tutor/internal/systemcfg"
)

// Server is the HTTP server for the tutor API.
type Server struct {
	storage storage.Storage
	ingest  *ingest.Service
	corpus  *corpus.Index
	router  *pipeline.Router
	sysCfg  *systemcfg.Service
	config  *config.ServerConfig
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	store storage.Storage,
	ing *ingest.Service,
	idx *corpus.Index,
	router *pipeline.Router,
	sysCfg *systemcfg.Service,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		storage: store,
		ingest:  ing,
		corpus:  idx,
		router:  router,
		sysCfg:  sysCfg,
		config:  cfg,
		logger:  logger,
	}
}

// routes builds the chi router with the full middleware stack.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Duration(s.config.RequestTimeoutSeconds) * time.Second))
	r.Use(middleware.Compress(5))
	r.Use(identityMiddleware)

	// Pipeline and routing-mode endpoints, consumed by the platform UI.
	r.Post("/agents/{id}/ask", s.handleAsk)
	r.Get("/master/system/ai-model", s.handleGetRoutingMode)
	r.Put("/master/system/ai-model", s.handleSetRoutingMode)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/agents", s.handleCreateAgent)
		r.Get("/agents", s.handleListAgents)
		r.Get("/agents/{id}", s.handleGetAgent)
		r.Put("/agents/{id}", s.handleUpdateAgent)
		r.Put("/agents/{id}/status", s.handleUpdateAgentStatus)
		r.Delete("/agents/{id}", s.handleDeleteAgent)

		r.Post("/agents/{id}/documents", s.handleUploadDocument)
		r.Get("/agents/{id}/documents", s.handleListDocuments)
		r.Delete("/documents/{id}", s.handleDeleteDocument)

		r.Post("/agents/{id}/links", s.handleCreateLink)
		r.Get("/agents/{id}/links", s.handleListLinks)
		r.Delete("/links/{id}", s.handleDeleteLink)

		r.Post("/knowledge", s.handleCreateKnowledge)
		r.Get("/knowledge", s.handleListKnowledge)
		r.Get("/knowledge/{id}", s.handleGetKnowledge)
		r.Put("/knowledge/{id}", s.handleUpdateKnowledge)
		r.Delete("/knowledge/{id}", s.handleDeleteKnowledge)
		r.Put("/knowledge/{id}/status", s.handleUpdateKnowledgeStatus)
		r.Post("/knowledge/{id}/agents/{agentID}", s.handleAssociateKnowledge)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
