// Copyright (C) 2026 ClipForge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ProjectStatus mirrors the durable project record's lifecycle.
type ProjectStatus string

const (
	StatusDraft      ProjectStatus = "draft"
	StatusGenerating ProjectStatus = "generating"
	StatusReady      ProjectStatus = "ready"
)

// CheckpointStore is the persistence boundary the writer talks to.
// Structured payloads arrive already serialized; the store keeps them
// as text and parses them back on read.
type CheckpointStore interface {
	SaveProductData(ctx context.Context, projectID, sourceURL, productData string) error
	SaveScript(ctx context.Context, projectID, script string) error
	SaveComposition(ctx context.Context, projectID, composition string) error
	SaveVideoURL(ctx context.Context, projectID, videoURL string) error
	SetProjectStatus(ctx context.Context, projectID string, status ProjectStatus) error
}

// ProjectUpdate is broadcast to interested observers (the WebSocket
// fan-out) whenever a checkpoint changes a project.
type ProjectUpdate struct {
	ProjectID string        `json:"project_id"`
	Step      Step          `json:"step"`
	Status    ProjectStatus `json:"status"`
}

// CheckpointWriter persists durable snapshots of run progress into the
// project record after each stage boundary. Writes for one project are
// serialized through a per-project lock, so concurrent runs against
// the same project interleave at checkpoint granularity instead of
// racing mid-write.
type CheckpointWriter struct {
	store  CheckpointStore
	events chan<- ProjectUpdate // optional; nil disables notifications

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCheckpointWriter creates a writer over the given store. events may
// be nil when no observer transport is wired.
func NewCheckpointWriter(store CheckpointStore, events chan<- ProjectUpdate) *CheckpointWriter {
	return &CheckpointWriter{
		store:  store,
		events: events,
		locks:  make(map[string]*sync.Mutex),
	}
}

// projectLock returns the lock for one project, creating it on first
// use. Locks are never removed; the map is bounded by project count.
func (w *CheckpointWriter) projectLock(projectID string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		w.locks[projectID] = l
	}
	return l
}

func (w *CheckpointWriter) notify(projectID string, step Step, status ProjectStatus) {
	if w.events == nil {
		return
	}
	select {
	case w.events <- ProjectUpdate{ProjectID: projectID, Step: step, Status: status}:
	default:
		getLog().Warn().Str("project_id", projectID).Msg("Dropping project update, observer channel full")
	}
}

// AfterAnalyze persists the analysis output; status stays generating.
func (w *CheckpointWriter) AfterAnalyze(ctx context.Context, st *State) error {
	if !st.Persisted() {
		return nil
	}
	l := w.projectLock(st.ProjectID)
	l.Lock()
	defer l.Unlock()
	if err := w.store.SaveProductData(ctx, st.ProjectID, st.SourceURL, string(st.ProductData)); err != nil {
		return fmt.Errorf("checkpoint product data: %w", err)
	}
	w.notify(st.ProjectID, StepScraping, StatusGenerating)
	return nil
}

// AfterScript persists the script and moves the project to draft —
// the script is a reviewable artifact before paid rendering proceeds.
func (w *CheckpointWriter) AfterScript(ctx context.Context, st *State) error {
	if !st.Persisted() {
		return nil
	}
	payload, err := json.Marshal(st.Script)
	if err != nil {
		return fmt.Errorf("serialize script: %w", err)
	}
	l := w.projectLock(st.ProjectID)
	l.Lock()
	defer l.Unlock()
	if err := w.store.SaveScript(ctx, st.ProjectID, string(payload)); err != nil {
		return fmt.Errorf("checkpoint script: %w", err)
	}
	w.notify(st.ProjectID, StepScripting, StatusDraft)
	return nil
}

// AfterTranslate persists the composition; status back to generating.
func (w *CheckpointWriter) AfterTranslate(ctx context.Context, st *State) error {
	if !st.Persisted() {
		return nil
	}
	l := w.projectLock(st.ProjectID)
	l.Lock()
	defer l.Unlock()
	if err := w.store.SaveComposition(ctx, st.ProjectID, st.CompositionCode); err != nil {
		return fmt.Errorf("checkpoint composition: %w", err)
	}
	if err := w.store.SetProjectStatus(ctx, st.ProjectID, StatusGenerating); err != nil {
		return fmt.Errorf("checkpoint status: %w", err)
	}
	w.notify(st.ProjectID, StepTranslating, StatusGenerating)
	return nil
}

// AfterRepair persists only the repaired composition, status unchanged,
// so a crash between fix and re-render does not lose the repaired code.
func (w *CheckpointWriter) AfterRepair(ctx context.Context, st *State) error {
	if !st.Persisted() {
		return nil
	}
	l := w.projectLock(st.ProjectID)
	l.Lock()
	defer l.Unlock()
	if err := w.store.SaveComposition(ctx, st.ProjectID, st.CompositionCode); err != nil {
		return fmt.Errorf("checkpoint repaired composition: %w", err)
	}
	return nil
}

// AfterRender persists the final video URL and marks the project ready.
func (w *CheckpointWriter) AfterRender(ctx context.Context, st *State) error {
	if !st.Persisted() {
		return nil
	}
	l := w.projectLock(st.ProjectID)
	l.Lock()
	defer l.Unlock()
	if err := w.store.SaveVideoURL(ctx, st.ProjectID, st.VideoURL); err != nil {
		return fmt.Errorf("checkpoint video url: %w", err)
	}
	w.notify(st.ProjectID, StepComplete, StatusReady)
	return nil
}

// Rollback moves the project back to draft after a terminal failure.
// Best effort: a failed rollback write is logged, not retried, and
// never changes the run's already-decided outcome.
func (w *CheckpointWriter) Rollback(ctx context.Context, st *State) {
	if !st.Persisted() {
		return
	}
	l := w.projectLock(st.ProjectID)
	l.Lock()
	defer l.Unlock()
	if err := w.store.SetProjectStatus(ctx, st.ProjectID, StatusDraft); err != nil {
		getLog().Error().Err(err).Str("project_id", st.ProjectID).Msg("Failed to roll back project status to draft")
		return
	}
	w.notify(st.ProjectID, StepError, StatusDraft)
}
