// Copyright (C) 2026 ClipForge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pipeline implements the video generation pipeline: a single
// mutable state record threaded through an ordered sequence of stage
// collaborators, with incremental progress streamed to the caller,
// a bounded render/repair retry loop, and durable checkpoints after
// each stage boundary.
package pipeline

import (
	"encoding/json"
)

// Step identifies the pipeline's current position in the state machine.
type Step string

const (
	StepInit        Step = "init"
	StepScraping    Step = "scraping"
	StepScripting   Step = "scripting"
	StepGenerating  Step = "generating"
	StepTranslating Step = "translating"
	StepRendering   Step = "rendering"
	StepFixing      Step = "fixing"
	StepComplete    Step = "complete"
	StepError       Step = "error"
)

// Preferences holds caller-supplied style and duration options.
// Immutable after run initialization.
type Preferences struct {
	Style          string `json:"style,omitempty"` // preset name, see internal/presets
	DurationFrames int    `json:"duration_frames,omitempty"`
	Audio          string `json:"audio,omitempty"` // "none", "music", "voiceover"
}

// State is the record threaded through a single run. It is created
// once per run, owned exclusively by the Engine, and discarded at run
// end. Stage collaborators receive a value copy (a read-only view) and
// return typed results; only the Engine writes to State.
//
// Invariants: VideoURL is non-empty iff CurrentStep == StepComplete;
// Errors is non-empty whenever CurrentStep == StepError.
type State struct {
	SourceURL   string
	Description string
	Preferences Preferences

	ProductData     json.RawMessage // opaque result of source analysis
	Script          *VideoScript
	PageCode        string // generated intermediate page source
	CompositionCode string // final renderable source

	CurrentStep     Step
	Errors          []string // append-only for the run
	RenderAttempts  int
	LastRenderError string
	VideoURL        string

	// ProjectID keys the durable checkpoint record. Empty means an
	// ephemeral run: no persistence at all.
	ProjectID string
}

// Persisted reports whether this run checkpoints into a project record.
func (s *State) Persisted() bool {
	return s.ProjectID != ""
}

// recordFailure moves the state to its terminal error position,
// appending every message to the run's error list.
func (s *State) recordFailure(msgs ...string) {
	s.Errors = append(s.Errors, msgs...)
	s.CurrentStep = StepError
}
