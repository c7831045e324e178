// Copyright (C) 2026 ClipForge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/credits"
	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/internal/presets"
	"github.com/clipforge/clipforge/internal/recording"
	"github.com/clipforge/clipforge/internal/store"
)

// Server is the REST + WebSocket API server.
type Server struct {
	httpServer  *http.Server
	broadcaster *UpdateBroadcaster
}

// New creates and wires up the API server. It does NOT start listening —
// call Run() for that.
func New(
	cfg *config.AppConfig,
	st *store.Store,
	engine *pipeline.Engine,
	reviser *pipeline.Reviser,
	cs *credits.Service,
	recordings *recording.Registry,
	catalog *presets.Catalog,
	updates <-chan pipeline.ProjectUpdate,
) *Server {
	registry := NewClientRegistry()
	broadcaster := NewUpdateBroadcaster(updates, registry)
	handlers := NewHandlers(st, engine, reviser, cs, recordings, catalog, cfg.Credits)

	r := chi.NewRouter()

	// Global middleware
	r.Use(Recovery)
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(CORS(cfg.Server.AllowedOrigins))
	r.Use(MaxBodySize(4 << 20)) // scripts and composition code can be large

	// REST routes; everything under /api/v1 requires a bearer token.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Auth(st))

		// Generation streams, with self-describing GETs
		r.Get("/generate", handlers.GenerateDocs)
		r.Post("/generate", handlers.Generate)
		r.Get("/continue", handlers.ContinueDocs)
		r.Post("/continue", handlers.Continue)

		// Projects
		r.Get("/projects", handlers.GetProjects)
		r.Route("/projects/{id}", func(r chi.Router) {
			r.Get("/", handlers.GetProject)
			r.Post("/revise", handlers.Revise)
		})

		// Recordings
		r.Post("/recordings", handlers.CreateRecording)
		r.Get("/recordings/{id}/status", handlers.GetRecording)

		// Catalog and account
		r.Get("/presets", handlers.GetPresets)
		r.Get("/credits/balance", handlers.GetBalance)
	})

	// WebSocket project update feed
	r.Get("/ws", HandleWebSocket(registry, cfg.Server.AllowedOrigins))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			// No WriteTimeout: generation streams stay open for the
			// duration of a run.
			IdleTimeout: 60 * time.Second,
		},
		broadcaster: broadcaster,
	}
}

// Run starts the update broadcaster goroutine and the HTTP server.
// Blocks until the server is shut down or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		const maxRetries = 3
		for attempt := 1; attempt <= maxRetries; attempt++ {
			func() {
				defer func() {
					if r := recover(); r != nil {
						getLog().Error().Interface("panic", r).Int("attempt", attempt).Msg("Update broadcaster panic")
					}
				}()
				s.broadcaster.Run(ctx)
			}()

			// Normal return (context cancelled) — exit without retry.
			if ctx.Err() != nil {
				return
			}

			if attempt < maxRetries {
				getLog().Warn().Int("attempt", attempt).Msg("Restarting update broadcaster after panic")
				time.Sleep(1 * time.Second)
			}
		}
		getLog().Error().Msg("Update broadcaster exhausted retries - updates will no longer be dispatched")
	}()

	getLog().Info().Str("addr", s.httpServer.Addr).Msg("API server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
