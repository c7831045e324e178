// Copyright (C) 2026 ClipForge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"encoding/json"
)

// Stage collaborators are external units of work. Each receives a
// read-only view of the run state and returns only the fields it is
// allowed to set — one result type per stage, so a stage cannot
// silently start writing fields the Engine doesn't expect.
//
// Expected failure modes (unparseable source, un-renderable code, ...)
// are reported through the result's Errs field; a returned error means
// a truly unexpected fault and is normalized by the Engine into a
// generic error event.

// AnalyzeResult is what the analyze-source stage may set.
type AnalyzeResult struct {
	ProductData json.RawMessage
	Errs        []string
}

// ScriptResult is what the write-script stage may set.
type ScriptResult struct {
	Script *VideoScript
	Errs   []string
}

// PageResult is what the generate-page-code stage may set.
type PageResult struct {
	PageCode string
	Errs     []string
}

// TranslateResult is what the translate-to-composition stage may set.
type TranslateResult struct {
	CompositionCode string
	Errs            []string
}

// RenderResult is what the render stage may set. A recoverable failure
// (Recoverable=true with RenderError) routes the run into the repair
// loop instead of terminating it.
type RenderResult struct {
	VideoURL    string
	RenderError string
	Recoverable bool
	Errs        []string
}

// RepairResult is what the repair-render-error stage may set.
type RepairResult struct {
	CompositionCode string
	Errs            []string
}

// Stages is the set of content-generation collaborators the Engine
// invokes in order. Implementations must be side-effect-isolated
// except for their declared outputs.
type Stages interface {
	AnalyzeSource(ctx context.Context, st State) (AnalyzeResult, error)
	WriteScript(ctx context.Context, st State) (ScriptResult, error)
	GeneratePage(ctx context.Context, st State) (PageResult, error)
	Translate(ctx context.Context, st State) (TranslateResult, error)
	Render(ctx context.Context, st State) (RenderResult, error)
	RepairRender(ctx context.Context, st State) (RepairResult, error)
}

// Editor is the narrower collaborator pair used by chat-driven
// composition edits: a generator that rewrites composition code from
// an instruction, and a repair-focused collaborator fed with local
// validation diagnostics.
type Editor interface {
	EditComposition(ctx context.Context, st State, instruction string) (TranslateResult, error)
	RepairComposition(ctx context.Context, code string, diagnostics []string) (RepairResult, error)
}
