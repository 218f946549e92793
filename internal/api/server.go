// Package api provides the REST, server-sent-event and WebSocket handlers
// for browsing and tailing logs.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fidde/log_dashboard/internal/engine"
	"github.com/fidde/log_dashboard/internal/normalize"
	"github.com/fidde/log_dashboard/internal/registry"
	"github.com/fidde/log_dashboard/internal/tail"
	"github.com/fidde/log_dashboard/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

// Options configures a Server.
type Options struct {
	// Realtime enables /stream and /ws/stream. When false both answer
	// with an informational message instead of opening a stream.
	Realtime bool

	// Tail tunes the sessions opened by the stream endpoints.
	Tail tail.Config

	// DefaultLimit is the page size used when a request omits limit.
	DefaultLimit int

	// StaticDir, when set, is served at / with fallback to index.html.
	StaticDir string

	Logger *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	engine     *engine.Engine
	registry   *registry.Registry
	normalizer *normalize.Normalizer
	opts       Options
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	router     *chi.Mux
	server     *http.Server
}

// NewServer creates a new API server.
func NewServer(addr string, eng *engine.Engine, reg *registry.Registry, normalizer *normalize.Normalizer, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = engine.DefaultLimit
	}
	if normalizer == nil {
		normalizer = normalize.New(opts.Logger)
	}

	s := &Server{
		engine:     eng,
		registry:   reg,
		normalizer: normalizer,
		opts:       opts,
		logger:     opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // dashboard may be served from another origin
			},
		},
		router: chi.NewRouter(),
	}

	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.HandleHealth)

	// Streams are long-lived and must not sit behind the request timeout.
	s.router.Get("/stream", s.stream)
	s.router.Get("/ws/stream", s.streamWS)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/categories", s.listCategories)
		r.Get("/logs/{category}", s.listLogs)
		r.Get("/logs/{category}/{id}", s.getLog)
		r.Get("/schema/{category}", s.getSchema)
	})

	if opts.StaticDir != "" {
		s.mountStatic(opts.StaticDir)
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// mountStatic serves dashboard assets from dir, with SPA fallback to
// index.html.
func (s *Server) mountStatic(dir string) {
	fileServer := http.FileServer(http.Dir(dir))

	s.router.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			fileServer.ServeHTTP(w, r)
			return
		}

		// If file doesn't exist, serve index.html for SPA routing
		http.ServeFile(w, r, filepath.Join(dir, "index.html"))
	})
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the API server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// listCategories returns the registered category names.
// GET /api/categories
func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string][]string{
		"categories": s.engine.Categories(),
	})
}

// listLogs returns one page of a category, newest first.
// GET /api/logs/{category}?page=1&limit=15&search=term
func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	category := chi.URLParam(r, "category")

	// Unknown categories are reported before argument errors.
	if _, err := s.registry.Resolve(category); err != nil {
		s.respondErr(w, err)
		return
	}

	q := r.URL.Query()
	page, err := intParam(q.Get("page"), engine.DefaultPage)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "page must be an integer")
		return
	}
	limit, err := intParam(q.Get("limit"), s.opts.DefaultLimit)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}

	result, err := s.engine.Logs(ctx, category, engine.Query{
		Page:   page,
		Limit:  limit,
		Search: q.Get("search"),
	})
	if err != nil {
		s.respondErr(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, result)
}

// getLog returns a single record as stored.
// GET /api/logs/{category}/{id}
func (s *Server) getLog(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Log(r.Context(), chi.URLParam(r, "category"), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

// getSchema returns the sniffed field names of a category.
// GET /api/schema/{category}
func (s *Server) getSchema(w http.ResponseWriter, r *http.Request) {
	fields, err := s.engine.Fields(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string][]string{
		"fields": fields,
	})
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// respondJSON writes a JSON response.
// The body is encoded before the header is sent so an encoding failure
// still becomes a 500.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to encode response"}` + "\n"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}

// respondError writes an error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondErr maps err to a status code and writes it.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrCategoryNotFound), errors.Is(err, models.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrInvalidArgument):
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}
