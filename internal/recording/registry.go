// Copyright (C) 2026 ClipForge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package recording runs the screen-recording post-processing queue:
// cursor detection followed by video compositing, executed by a fixed
// worker pool. The registry is an explicitly owned component with a
// clear lifecycle — constructed once per process, shut down explicitly —
// rather than a module-level singleton map.
package recording

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/logger"
	"github.com/clipforge/clipforge/internal/store"
)

var (
	log     *zerolog.Logger
	logOnce sync.Once
)

func getLog() *zerolog.Logger {
	logOnce.Do(func() {
		l := logger.GetRecordingLogger()
		log = &l
	})
	return log
}

// ErrShuttingDown is returned by Enqueue once Shutdown has begun.
var ErrShuttingDown = errors.New("recording registry is shutting down")

// Processor is the external collaborator pair for recording jobs.
type Processor interface {
	// DetectCursor analyzes the raw recording and returns a serialized
	// cursor track.
	DetectCursor(ctx context.Context, sourceURL string) (string, error)
	// Composite overlays the cursor track onto the recording and
	// returns the processed output URL.
	Composite(ctx context.Context, sourceURL, cursorData string) (string, error)
}

// Registry owns the in-process job queue. Job state is persisted in the
// store; the in-memory side is only the work queue and lifecycle flags,
// all behind one mutex.
type Registry struct {
	store *store.Store
	proc  Processor
	cfg   config.RecordingConfig

	mu     sync.Mutex
	queue  chan string
	closed bool
	wg     sync.WaitGroup
}

// NewRegistry creates the registry and starts its worker pool.
func NewRegistry(st *store.Store, proc Processor, cfg config.RecordingConfig) *Registry {
	r := &Registry{
		store: st,
		proc:  proc,
		cfg:   cfg,
		queue: make(chan string, 256),
	}
	for i := 0; i < cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// Enqueue persists a queued job and hands it to the worker pool.
func (r *Registry) Enqueue(ctx context.Context, userID, projectID, sourceURL string) (string, error) {
	if sourceURL == "" {
		return "", errors.New("source url is required")
	}

	job := &store.RecordingJob{
		ID:        uuid.NewString(),
		UserID:    userID,
		ProjectID: projectID,
		SourceURL: sourceURL,
		Status:    store.RecordingQueued,
	}
	if err := r.store.CreateRecordingJob(ctx, job); err != nil {
		return "", fmt.Errorf("persist recording job: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", ErrShuttingDown
	}
	select {
	case r.queue <- job.ID:
	default:
		// Queue full: the row stays queued; mark it failed so the
		// caller's status poll doesn't hang on a job nothing will run.
		if err := r.store.MarkRecordingJobFailed(ctx, job.ID, "queue full"); err != nil {
			getLog().Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark overflowed job")
		}
		return "", errors.New("recording queue is full")
	}

	getLog().Info().Str("job_id", job.ID).Str("project_id", projectID).Msg("Recording job enqueued")
	return job.ID, nil
}

// Status returns the persisted job record for polling.
func (r *Registry) Status(ctx context.Context, jobID string) (*store.RecordingJob, error) {
	return r.store.GetRecordingJob(ctx, jobID)
}

// Shutdown stops intake and waits for in-flight jobs to finish.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
	getLog().Info().Msg("Recording registry shut down")
}

func (r *Registry) worker() {
	defer r.wg.Done()
	for jobID := range r.queue {
		r.process(jobID)
	}
}

func (r *Registry) process(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.JobTimeout)
	defer cancel()

	if err := r.store.MarkRecordingJobProcessing(ctx, jobID); err != nil {
		getLog().Error().Err(err).Str("job_id", jobID).Msg("Failed to mark recording job processing")
		return
	}

	job, err := r.store.GetRecordingJob(ctx, jobID)
	if err != nil {
		getLog().Error().Err(err).Str("job_id", jobID).Msg("Failed to load recording job")
		return
	}

	cursorData, err := r.proc.DetectCursor(ctx, job.SourceURL)
	if err != nil {
		r.failJob(ctx, jobID, fmt.Errorf("cursor detection: %w", err))
		return
	}

	outputURL, err := r.proc.Composite(ctx, job.SourceURL, cursorData)
	if err != nil {
		r.failJob(ctx, jobID, fmt.Errorf("compositing: %w", err))
		return
	}

	if err := r.store.MarkRecordingJobComplete(ctx, jobID, cursorData, outputURL); err != nil {
		getLog().Error().Err(err).Str("job_id", jobID).Msg("Failed to mark recording job complete")
		return
	}
	getLog().Info().Str("job_id", jobID).Str("output_url", outputURL).Msg("Recording job complete")
}

func (r *Registry) failJob(ctx context.Context, jobID string, cause error) {
	getLog().Warn().Err(cause).Str("job_id", jobID).Msg("Recording job failed")
	if err := r.store.MarkRecordingJobFailed(ctx, jobID, cause.Error()); err != nil {
		getLog().Error().Err(err).Str("job_id", jobID).Msg("Failed to persist recording job failure")
	}
}
