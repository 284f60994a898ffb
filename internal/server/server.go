// Package server serves the single-page QA interface and its JSON API.
package server

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"textfile-qa/internal/config"
	"textfile-qa/internal/rag"
)

//go:embed templates/*.html
var templateFS embed.FS

// Server is the HTTP server for the QA page.
type Server struct {
	rag      *rag.RAG
	cfg      *config.Config
	router   chi.Router
	page     *template.Template
	markdown goldmark.Markdown
	server   *http.Server
}

func NewServer(r *rag.RAG, cfg *config.Config) (*Server, error) {
	page, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse page template: %w", err)
	}
	s := &Server{
		rag:  r,
		cfg:  cfg,
		page: page,
		// raw HTML in answers is omitted by the default renderer
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(SessionCookie(s.cfg.Session.CookieName))

		r.Get("/", s.handlePage)
		r.Post("/process", s.handleProcess)
		r.Post("/ask", s.handleAsk)
		r.Post("/reset", s.handleReset)

		r.Post("/api/process", s.handleAPIProcess)
		r.Post("/api/ask", s.handleAPIAsk)
		r.Get("/api/session", s.handleAPISession)
		r.Delete("/api/session", s.handleAPIReset)
	})

	s.router = r
}

// Start listens on the configured address and blocks until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		// processing large uploads embeds every chunk before responding
		WriteTimeout: 10 * time.Minute,
	}
	log.Info().Str("addr", addr).Msg("Starting server")
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
