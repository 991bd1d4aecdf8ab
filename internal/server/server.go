// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package server provides the HTTP server for the REST API and the live
// progress WebSocket.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/dsget/dsget/internal/logging"
)

// Config holds server configuration.
type Config struct {
	Addr           string
	Port           int
	Token          string   // hub token
	ImagesDir      string   // output directory for URL-list fetches (not configurable via API)
	DatasetsDir    string   // output directory for dataset splits (not configurable via API)
	MaxActive      int
	Verify         string
	Retries        int
	AllowedOrigins []string // CORS origins
	Endpoint       string   // custom hub endpoint (e.g. for mirrors)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:        "0.0.0.0",
		Port:        8080,
		ImagesDir:   "./Data/images",
		DatasetsDir: "./Data",
		MaxActive:   3,
		Verify:      "size",
		Retries:     4,
	}
}

// Server is the dsget HTTP server.
type Server struct {
	config     Config
	log        zerolog.Logger
	httpServer *http.Server
	jobs       *JobManager
	wsHub      *WSHub
}

// New creates a new server with the given configuration.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = 3
	}

	log := logging.New(logging.Config{Level: "info", Console: true, Component: "server"}, os.Stderr)
	wsHub := NewWSHub(log)
	s := &Server{
		config: cfg,
		log:    log,
		jobs:   NewJobManager(cfg, wsHub),
		wsHub:  wsHub,
	}
	return s
}

// Handler builds the chi router for the API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/fetch", s.handleStartFetch)
		r.Post("/datasets", s.handleStartDataset)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Post("/jobs/{id}/cancel", s.handleCancelJob)
		r.Delete("/jobs/{id}", s.handleDeleteJob)

		r.Get("/settings", s.handleGetSettings)
		r.Post("/settings", s.handleUpdateSettings)

		r.Post("/plan", s.handlePlan)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// ListenAndServe starts the HTTP server and blocks until ctx is canceled or
// the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	go s.wsHub.Run()

	addr := fmt.Sprintf("%s:%d", s.config.Addr, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", addr).Msg("server starting")

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Middleware

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start).Round(time.Millisecond)).
			Msg("request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" {
			allowed := false
			if len(s.config.AllowedOrigins) == 0 {
				// Default: allow same host
				allowed = true
			} else {
				for _, o := range s.config.AllowedOrigins {
					if o == "*" || o == origin {
						allowed = true
						break
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
