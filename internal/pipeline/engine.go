// Copyright (C) 2026 ClipForge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/clipforge/clipforge/internal/config"
)

// Validation sentinels, mapped to 4xx responses before any stream opens.
var (
	ErrMissingInput       = errors.New("either a source url or a description is required")
	ErrMissingScript      = errors.New("an approved video script is required")
	ErrMissingProductData = errors.New("product data from source analysis is required")
)

// GenerateRequest starts a full run from a product URL or description.
type GenerateRequest struct {
	SourceURL   string
	Description string
	Preferences Preferences
	ProjectID   string // empty = ephemeral run, no persistence
}

// Validate fails fast on missing required inputs. Called before any
// streaming starts and before any external side effect.
func (r GenerateRequest) Validate() error {
	if r.SourceURL == "" && r.Description == "" {
		return ErrMissingInput
	}
	return nil
}

// ContinueRequest resumes a run from an already-approved script,
// skipping the analysis and scripting stages.
type ContinueRequest struct {
	Script      *VideoScript
	ProductData json.RawMessage
	Preferences Preferences
	ProjectID   string
}

// Validate checks the resume inputs, normalizing the script's timeline
// before judging it.
func (r ContinueRequest) Validate() error {
	if r.Script == nil || len(r.Script.Scenes) == 0 {
		return ErrMissingScript
	}
	if len(r.ProductData) == 0 {
		return ErrMissingProductData
	}
	r.Script.Normalize()
	if err := r.Script.Validate(); err != nil {
		return fmt.Errorf("invalid video script: %w", err)
	}
	return nil
}

// Engine owns the run state machine. It is the only component with
// write access to the state's current step; stages see value copies.
// Engines are stateless across runs and safe for concurrent use —
// each run is one sequential task, runs share nothing but the store.
type Engine struct {
	stages Stages
	ckpt   *CheckpointWriter
	cfg    config.PipelineConfig
}

// NewEngine wires the stage collaborators and checkpoint writer.
func NewEngine(stages Stages, ckpt *CheckpointWriter, cfg config.PipelineConfig) *Engine {
	return &Engine{stages: stages, ckpt: ckpt, cfg: cfg}
}

// Run executes a full pipeline run, streaming events into em. It always
// delivers a terminal outcome: exactly one complete event ends the
// stream, on success, handled error, or unexpected fault alike.
//
// A consumer disconnect stops event delivery (the emitter's guard) but
// not stage execution: an invoked stage runs to completion and its
// checkpoint write still happens.
func (e *Engine) Run(ctx context.Context, req GenerateRequest, em *Emitter) {
	st := &State{
		SourceURL:   req.SourceURL,
		Description: req.Description,
		Preferences: e.withDefaults(req.Preferences),
		CurrentStep: StepInit,
		ProjectID:   req.ProjectID,
	}
	e.execute(ctx, st, em, false)
}

// Continue executes the render half of the pipeline from an approved
// script, with the same retry/fix/checkpoint behavior as Run.
func (e *Engine) Continue(ctx context.Context, req ContinueRequest, em *Emitter) {
	req.Script.Normalize()
	st := &State{
		Preferences: e.withDefaults(req.Preferences),
		ProductData: req.ProductData,
		Script:      req.Script,
		CurrentStep: StepInit,
		ProjectID:   req.ProjectID,
	}
	e.execute(ctx, st, em, true)
}

func (e *Engine) withDefaults(p Preferences) Preferences {
	if p.DurationFrames == 0 {
		p.DurationFrames = e.cfg.DefaultDurationFrames
	}
	return p
}

// execute drives the state machine. fromScript skips the analysis and
// scripting stages.
func (e *Engine) execute(ctx context.Context, st *State, em *Emitter, fromScript bool) {
	terminal := false
	failRun := func(msgs ...string) {
		e.fail(ctx, st, em, msgs...)
		terminal = true
	}
	defer func() {
		if r := recover(); r != nil {
			getLog().Error().Interface("panic", r).Str("project_id", st.ProjectID).Msg("Pipeline run panicked")
			if !terminal {
				e.fail(ctx, st, em, fmt.Sprintf("unexpected pipeline fault: %v", r))
			}
		}
		em.Close()
	}()

	if !fromScript {
		// Source analysis
		st.CurrentStep = StepScraping
		em.Emit(statusEvent(StepScraping, "Analyzing product source"))
		ares, err := e.stages.AnalyzeSource(ctx, *st)
		if err != nil {
			failRun("source analysis failed: " + err.Error())
			return
		}
		if len(ares.Errs) > 0 {
			failRun(ares.Errs...)
			return
		}
		st.ProductData = ares.ProductData
		em.Emit(Event{Type: EventProductData, Data: st.ProductData})
		if err := e.ckpt.AfterAnalyze(ctx, st); err != nil {
			failRun(err.Error())
			return
		}

		// Script authoring
		st.CurrentStep = StepScripting
		em.Emit(statusEvent(StepScripting, "Writing video script"))
		sres, err := e.stages.WriteScript(ctx, *st)
		if err != nil {
			failRun("script writing failed: " + err.Error())
			return
		}
		if len(sres.Errs) > 0 {
			failRun(sres.Errs...)
			return
		}
		if sres.Script == nil {
			failRun("script stage returned no script")
			return
		}
		st.Script = sres.Script
		st.Script.Normalize()
		em.Emit(Event{Type: EventVideoScript, Data: st.Script})
		if err := e.ckpt.AfterScript(ctx, st); err != nil {
			failRun(err.Error())
			return
		}
	}

	// Page code generation
	st.CurrentStep = StepGenerating
	em.Emit(statusEvent(StepGenerating, "Generating page code"))
	pres, err := e.stages.GeneratePage(ctx, *st)
	if err != nil {
		failRun("page generation failed: " + err.Error())
		return
	}
	if len(pres.Errs) > 0 {
		failRun(pres.Errs...)
		return
	}
	st.PageCode = pres.PageCode
	em.Emit(Event{Type: EventReactPageCode, Data: st.PageCode})

	// Translation to renderable composition
	st.CurrentStep = StepTranslating
	em.Emit(statusEvent(StepTranslating, "Translating page code to composition"))
	tres, err := e.stages.Translate(ctx, *st)
	if err != nil {
		failRun("translation failed: " + err.Error())
		return
	}
	if len(tres.Errs) > 0 {
		failRun(tres.Errs...)
		return
	}
	st.CompositionCode = tres.CompositionCode
	em.Emit(Event{Type: EventRemotionCode, Data: st.CompositionCode})
	if err := e.ckpt.AfterTranslate(ctx, st); err != nil {
		failRun(err.Error())
		return
	}

	// Render/repair loop. Attempts increment on each render entry; from
	// the second attempt on, each render is preceded by exactly one
	// repair call fed with the previous attempt's failure. Retries are
	// immediate — render failures are deterministic code errors, not
	// transient infrastructure faults.
	maxAttempts := e.cfg.MaxRenderAttempts
	for attempt := 1; ; attempt++ {
		st.RenderAttempts = attempt
		st.CurrentStep = StepRendering
		em.Emit(renderStatusEvent(attempt, fmt.Sprintf("Rendering video (attempt %d/%d)", attempt, maxAttempts)))
		rres, err := e.stages.Render(ctx, *st)
		if err != nil {
			failRun("render failed: " + err.Error())
			return
		}
		if len(rres.Errs) > 0 {
			failRun(rres.Errs...)
			return
		}
		if rres.VideoURL != "" {
			st.VideoURL = rres.VideoURL
			if err := e.ckpt.AfterRender(ctx, st); err != nil {
				failRun(err.Error())
				return
			}
			em.Emit(Event{Type: EventVideoURL, Data: st.VideoURL})
			st.CurrentStep = StepComplete
			em.Emit(Event{Type: EventComplete, Data: CompleteData{Success: true, Message: "Video generated"}})
			terminal = true
			return
		}

		st.LastRenderError = rres.RenderError
		if !rres.Recoverable {
			msg := rres.RenderError
			if msg == "" {
				msg = "render failed"
			}
			failRun(msg)
			return
		}
		if attempt == maxAttempts {
			failRun(fmt.Sprintf("render failed after %d attempts: %s", maxAttempts, rres.RenderError))
			return
		}

		// Repair
		st.CurrentStep = StepFixing
		em.Emit(statusEvent(StepFixing, "Repairing render error"))
		fres, err := e.stages.RepairRender(ctx, *st)
		if err != nil {
			failRun("repair failed: " + err.Error())
			return
		}
		if len(fres.Errs) > 0 {
			failRun(fres.Errs...)
			return
		}
		st.CompositionCode = fres.CompositionCode
		em.Emit(Event{Type: EventRemotionCode, Data: st.CompositionCode})
		if err := e.ckpt.AfterRepair(ctx, st); err != nil {
			failRun(err.Error())
			return
		}
	}
}

// fail normalizes any failure into the error + complete{success:false}
// pair. The rollback write is best-effort and cannot change the
// reported outcome.
func (e *Engine) fail(ctx context.Context, st *State, em *Emitter, msgs ...string) {
	st.recordFailure(msgs...)
	getLog().Error().
		Strs("errors", st.Errors).
		Str("project_id", st.ProjectID).
		Str("step", string(st.CurrentStep)).
		Int("render_attempts", st.RenderAttempts).
		Msg("Pipeline run failed")
	em.Emit(Event{Type: EventError, Data: ErrorData{Errors: st.Errors}})
	e.ckpt.Rollback(ctx, st)
	em.Emit(Event{Type: EventComplete, Data: CompleteData{Success: false, Message: "Video generation could not finish"}})
}
