// Copyright (C) 2026 ClipForge
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/credits"
	"github.com/clipforge/clipforge/internal/logger"
	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/internal/presets"
	"github.com/clipforge/clipforge/internal/recording"
	"github.com/clipforge/clipforge/internal/server"
	"github.com/clipforge/clipforge/internal/stages"
	"github.com/clipforge/clipforge/internal/store"
)

func main() {
	cfg, err := config.NewConfig("config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.CloseGlobal()

	mainLog := logger.GetLogger("main")
	mainLog.Info().Msg("Starting clipforge API server")

	st, err := store.New(&cfg.Database)
	if err != nil {
		mainLog.Error().Err(err).Msg("Error connecting to database")
		fmt.Fprintf(os.Stderr, "Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.ValidateSchema(); err != nil {
		mainLog.Error().Err(err).Msg("Schema validation failed")
		fmt.Fprintf(os.Stderr, "Schema validation failed: %v\n", err)
		os.Exit(1)
	}

	catalog, err := presets.Load(cfg.Presets.Path)
	if err != nil {
		mainLog.Error().Err(err).Msg("Error loading preset catalog")
		fmt.Fprintf(os.Stderr, "Error loading preset catalog: %v\n", err)
		os.Exit(1)
	}

	// Stage collaborators live in the external generation service; one
	// client implements all of them plus the recording processor.
	client := stages.NewClient(cfg.Generation)

	// Checkpoint updates fan out to WebSocket clients via the server's
	// broadcaster. Buffered: a full channel drops updates rather than
	// blocking a pipeline run.
	updates := make(chan pipeline.ProjectUpdate, 100)

	ckpt := pipeline.NewCheckpointWriter(st, updates)
	engine := pipeline.NewEngine(client, ckpt, cfg.Pipeline)
	reviser := pipeline.NewReviser(client)
	creditSvc := credits.NewService(st)
	recordings := recording.NewRegistry(st, client, cfg.Recording)

	ctx, cancel := context.WithCancel(context.Background())

	srv := server.New(cfg, st, engine, reviser, creditSvc, recordings, catalog, updates)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- srv.Run(ctx)
	}()

	// Wait for signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		mainLog.Info().Msgf("Received signal %v, shutting down...", sig)
	case err := <-serverErrChan:
		if err != nil {
			mainLog.Error().Err(err).Msg("Server error")
		}
	}

	// Graceful shutdown: fresh context with timeout, independent of the
	// broadcaster ctx.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		mainLog.Error().Err(err).Msg("Error shutting down server")
	}

	cancel()

	// Drain in-flight recording jobs before closing the store.
	mainLog.Info().Msg("Shutting down recording registry...")
	recordings.Shutdown()

	mainLog.Info().Msg("API server shut down")
}
