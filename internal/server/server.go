// Package server exposes the pipeline over a small JSON API: upload,
// status polling, cancel, result queries and XLSX export.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/common"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/export"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/pipeline"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/repository"
)

// Server wires the HTTP surface around the batch manager.
type Server struct {
	cfg        common.ServerConfig
	uploadDir  string
	manager    *pipeline.Manager
	sessions   repository.SessionRepository
	results    repository.ComparisonRepository
	exporter   *export.Service
	logger     *slog.Logger
	httpServer *http.Server
}

func New(
	cfg common.ServerConfig,
	uploadDir string,
	manager *pipeline.Manager,
	sessions repository.SessionRepository,
	results repository.ComparisonRepository,
	exporter *export.Service,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		uploadDir: uploadDir,
		manager:   manager,
		sessions:  sessions,
		results:   results,
		exporter:  exporter,
		logger:    logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-User-ID"},
		AllowCredentials: false,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Get("/status", s.handleStatus)
		r.Post("/cancel", s.handleCancel)
		r.Get("/results", s.handleListSessions)
		r.Get("/results/{id}", s.handleGetComparison)
		r.Get("/results/{id}/export", s.handleExport)
	})
	return r
}

// Start blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.logger.Info("http server listening", "addr", s.cfg.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// requestIDMiddleware tags every request with a request ID for log
// correlation.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", rid)
		ctx := common.WithRequestID(r.Context(), rid)
		if owner := r.Header.Get("X-User-ID"); owner != "" {
			ctx = common.WithOwnerID(ctx, owner)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
