// Package server exposes the HTTP API: figure CRUD, document ingestion
// with SSE progress, hybrid search, and streaming chat.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/figurechat/figurechat/internal/config"
	"github.com/figurechat/figurechat/internal/figure"
	"github.com/figurechat/figurechat/internal/ingest"
	"github.com/figurechat/figurechat/internal/llm"
	"github.com/figurechat/figurechat/internal/search"
	"github.com/figurechat/figurechat/internal/session"
)

// Server is the HTTP front end.
type Server struct {
	cfg      *config.Config
	figures  *figure.Manager
	engine   *search.Engine
	ingestor *ingest.Service
	sessions *session.Manager
	llm      *llm.Client

	httpServer *http.Server
}

// New wires the handler stack.
func New(cfg *config.Config, figures *figure.Manager, engine *search.Engine, ingestor *ingest.Service, sessions *session.Manager, llmClient *llm.Client) *Server {
	s := &Server{
		cfg:      cfg,
		figures:  figures,
		engine:   engine,
		ingestor: ingestor,
		sessions: sessions,
		llm:      llmClient,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("GET /api/figures", s.handleListFigures)
	mux.HandleFunc("POST /api/figures", s.handleCreateFigure)
	mux.HandleFunc("GET /api/figures/{id}", s.handleGetFigure)
	mux.HandleFunc("PUT /api/figures/{id}", s.handleUpdateFigure)
	mux.HandleFunc("DELETE /api/figures/{id}", s.handleDeleteFigure)
	mux.HandleFunc("POST /api/figures/{id}/clear", s.handleClearFigure)
	mux.HandleFunc("POST /api/figures/{id}/sync", s.handleSyncFigure)
	mux.HandleFunc("POST /api/figures/{id}/image", s.handleFigureImage)
	mux.HandleFunc("POST /api/figures/{id}/documents", s.handleUploadDocuments)

	mux.HandleFunc("POST /api/search", s.handleSearch)
	mux.HandleFunc("POST /api/chat", s.handleChat)

	return s.logRequests(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slog.Info("http server shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}

// Handler exposes the routing table for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Count(),
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("took", time.Since(start)))
	})
}
