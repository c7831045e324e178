// Copyright (C) 2026 ClipForge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the REST API: generation endpoints that stream
// pipeline events as newline-delimited JSON, project and recording
// resources, and a WebSocket feed of project checkpoint updates.
package server

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/clipforge/clipforge/internal/logger"
	"github.com/clipforge/clipforge/internal/pipeline"
)

var (
	log     *zerolog.Logger
	logOnce sync.Once
)

func getLog() *zerolog.Logger {
	logOnce.Do(func() {
		l := logger.GetAPILogger()
		log = &l
	})
	return log
}

// UpdateBroadcaster reads project checkpoint updates from the pipeline's
// update channel and fans them out to all connected WebSocket clients.
type UpdateBroadcaster struct {
	updates <-chan pipeline.ProjectUpdate
	clients *ClientRegistry
}

// NewUpdateBroadcaster creates a broadcaster over the checkpoint
// writer's update channel.
func NewUpdateBroadcaster(updates <-chan pipeline.ProjectUpdate, clients *ClientRegistry) *UpdateBroadcaster {
	return &UpdateBroadcaster{
		updates: updates,
		clients: clients,
	}
}

// Run reads updates until the channel is closed or context is cancelled.
func (b *UpdateBroadcaster) Run(ctx context.Context) {
	for {
		select {
		case update, ok := <-b.updates:
			if !ok {
				getLog().Info().Msg("Update broadcaster stopped (channel closed)")
				return
			}
			b.dispatch(update)
		case <-ctx.Done():
			getLog().Info().Msg("Update broadcaster stopped (context cancelled)")
			return
		}
	}
}

func (b *UpdateBroadcaster) dispatch(update pipeline.ProjectUpdate) {
	if b.clients != nil {
		b.clients.Broadcast(update)
	}
}
