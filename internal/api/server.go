// Package api serves the library, reading positions, settings and search
// over HTTP for browser or native reader front ends.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/yuanying/epubrsvp/internal/library"
	"github.com/yuanying/epubrsvp/internal/position"
	"github.com/yuanying/epubrsvp/internal/search"
	"github.com/yuanying/epubrsvp/internal/settings"
)

// DefaultMaxUploadBytes caps a multipart import request.
const DefaultMaxUploadBytes = 256 << 20

// Searcher finds paragraphs.
type Searcher interface {
	Search(ctx context.Context, bookID, q string, limit int) ([]search.Hit, error)
}

// Options configures a Server.
type Options struct {
	Library   *library.Library
	Positions *position.Store
	Settings  *settings.Store
	Search    Searcher // optional
	Logger    *slog.Logger

	// AllowedOrigins lists CORS origins. Empty allows any origin.
	AllowedOrigins []string
	// ImportRate limits import requests per second, with ImportBurst.
	ImportRate  rate.Limit
	ImportBurst int
	// MaxUploadBytes caps a multipart import. Defaults to DefaultMaxUploadBytes.
	MaxUploadBytes int64
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	library   *library.Library
	positions *position.Store
	settings  *settings.Store
	search    Searcher
	logger    *slog.Logger
	imports   *rate.Limiter
	maxUpload int64
	origins   []string
	router    *chi.Mux
}

// NewServer creates a Server with all routes configured.
func NewServer(opts Options) *Server {
	s := &Server{
		library:   opts.Library,
		positions: opts.Positions,
		settings:  opts.Settings,
		search:    opts.Search,
		logger:    opts.Logger,
		maxUpload: opts.MaxUploadBytes,
		origins:   opts.AllowedOrigins,
		router:    chi.NewRouter(),
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUploadBytes
	}
	limit, burst := opts.ImportRate, opts.ImportBurst
	if limit == 0 {
		limit = rate.Every(time.Second)
	}
	if burst <= 0 {
		burst = 5
	}
	s.imports = rate.NewLimiter(limit, burst)

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/fonts", s.handleFonts)
		r.Get("/search", s.handleSearch)

		r.Route("/books", func(r chi.Router) {
			r.Get("/", s.handleListBooks)
			r.With(s.limitImports).Post("/", s.handleImportBooks)
			r.Delete("/", s.handleDeleteBooks)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetBook)
				r.Delete("/", s.handleDeleteBook)
				r.Get("/words", s.handleWords)
				r.Get("/rows", s.handleRows)
				r.Post("/click", s.handleClick)
				r.Get("/frame", s.handleFrame)
				r.Get("/position", s.handleGetPosition)
				r.Put("/position", s.handleSetPosition)
				r.Get("/cover", s.handleCover)
				r.Get("/search", s.handleSearch)
			})
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.handleGetSettings)
			r.Put("/", s.handleSaveSettings)
			r.Put("/{key}", s.handleSetSetting)
		})
	})
}

// requestLogger logs each request with slog.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// limitImports rejects imports beyond the configured rate.
func (s *Server) limitImports(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.imports.Allow() {
			writeError(w, http.StatusTooManyRequests, "too many imports, retry later", s.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	success(w, map[string]string{"status": "ok"}, s.logger)
}
