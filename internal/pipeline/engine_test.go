// Copyright (C) 2026 ClipForge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/config"
)

// fakeCheckpointStore records every persistence call in order.
type fakeCheckpointStore struct {
	mu    sync.Mutex
	calls []string

	productData string
	script      string
	composition string
	videoURL    string
	status      ProjectStatus
}

func (f *fakeCheckpointStore) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeCheckpointStore) SaveProductData(_ context.Context, _, _, productData string) error {
	f.record("productData")
	f.productData = productData
	f.status = StatusGenerating
	return nil
}

func (f *fakeCheckpointStore) SaveScript(_ context.Context, _, script string) error {
	f.record("script")
	f.script = script
	f.status = StatusDraft
	return nil
}

func (f *fakeCheckpointStore) SaveComposition(_ context.Context, _, composition string) error {
	f.record("composition")
	f.composition = composition
	return nil
}

func (f *fakeCheckpointStore) SaveVideoURL(_ context.Context, _, videoURL string) error {
	f.record("videoUrl")
	f.videoURL = videoURL
	f.status = StatusReady
	return nil
}

func (f *fakeCheckpointStore) SetProjectStatus(_ context.Context, _ string, status ProjectStatus) error {
	f.record("status:" + string(status))
	f.status = status
	return nil
}

// fakeStages is a scripted stage set. Render results are consumed one
// per attempt; the other stages return canned outputs unless overridden.
type fakeStages struct {
	renders []RenderResult

	analyzeErr  error
	analyzeErrs []string
	scriptPanic bool

	analyzeCalls, scriptCalls, pageCalls, translateCalls int
	renderCalls, repairCalls                             int
}

func (f *fakeStages) AnalyzeSource(_ context.Context, _ State) (AnalyzeResult, error) {
	f.analyzeCalls++
	if f.analyzeErr != nil {
		return AnalyzeResult{}, f.analyzeErr
	}
	if len(f.analyzeErrs) > 0 {
		return AnalyzeResult{Errs: f.analyzeErrs}, nil
	}
	return AnalyzeResult{ProductData: json.RawMessage(`{"name":"Widget"}`)}, nil
}

func (f *fakeStages) WriteScript(_ context.Context, _ State) (ScriptResult, error) {
	f.scriptCalls++
	if f.scriptPanic {
		panic("script stage blew up")
	}
	return ScriptResult{Script: threeSceneScript()}, nil
}

func (f *fakeStages) GeneratePage(_ context.Context, _ State) (PageResult, error) {
	f.pageCalls++
	return PageResult{PageCode: "<Page/>"}, nil
}

func (f *fakeStages) Translate(_ context.Context, _ State) (TranslateResult, error) {
	f.translateCalls++
	return TranslateResult{CompositionCode: "export const C = () => <Composition/>"}, nil
}

func (f *fakeStages) Render(_ context.Context, _ State) (RenderResult, error) {
	f.renderCalls++
	if len(f.renders) == 0 {
		return RenderResult{VideoURL: "https://cdn.example.com/video.mp4"}, nil
	}
	res := f.renders[0]
	f.renders = f.renders[1:]
	return res, nil
}

func (f *fakeStages) RepairRender(_ context.Context, st State) (RepairResult, error) {
	f.repairCalls++
	return RepairResult{CompositionCode: st.CompositionCode + " /* fixed */"}, nil
}

func testEngine(stages Stages, store CheckpointStore) *Engine {
	ckpt := NewCheckpointWriter(store, nil)
	return NewEngine(stages, ckpt, config.PipelineConfig{
		MaxRenderAttempts:     3,
		DefaultDurationFrames: 900,
		FPS:                   30,
	})
}

func eventTypes(events []Event) []EventType {
	types := make([]EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

// assertOneTerminalComplete verifies the stream invariant: exactly one
// complete event, and it is the last event.
func assertOneTerminalComplete(t *testing.T, events []Event, wantSuccess bool) {
	t.Helper()
	require.NotEmpty(t, events)
	completes := 0
	for _, ev := range events {
		if ev.Type == EventComplete {
			completes++
		}
	}
	assert.Equal(t, 1, completes, "exactly one complete event per stream")

	last := events[len(events)-1]
	require.Equal(t, EventComplete, last.Type, "complete must be the last event")
	data, ok := last.Data.(CompleteData)
	require.True(t, ok)
	assert.Equal(t, wantSuccess, data.Success)
}

func TestEngineRunHappyPath(t *testing.T) {
	stages := &fakeStages{}
	store := &fakeCheckpointStore{}
	engine := testEngine(stages, store)

	sink := &collectSink{}
	em := NewEmitter(sink)
	engine.Run(context.Background(), GenerateRequest{
		SourceURL: "https://example.com/product",
		ProjectID: "proj-1",
	}, em)

	events := sink.collected()
	assert.Equal(t, []EventType{
		EventStatus, EventProductData,
		EventStatus, EventVideoScript,
		EventStatus, EventReactPageCode,
		EventStatus, EventRemotionCode,
		EventStatus, EventVideoURL,
		EventComplete,
	}, eventTypes(events))
	assertOneTerminalComplete(t, events, true)

	// First render attempt is tagged in its status event.
	renderStatus := events[8].Data.(StatusData)
	assert.Equal(t, StepRendering, renderStatus.Step)
	assert.Equal(t, 1, renderStatus.Attempts)

	assert.Equal(t, 1, stages.renderCalls)
	assert.Equal(t, 0, stages.repairCalls)

	// Checkpoints landed in stage order and the project ended ready.
	assert.Equal(t, []string{"productData", "script", "composition", "status:generating", "videoUrl"}, store.calls)
	assert.Equal(t, StatusReady, store.status)
	assert.True(t, em.Closed())
}

func TestEngineRunRetriesThenSucceeds(t *testing.T) {
	stages := &fakeStages{
		renders: []RenderResult{
			{RenderError: "missing import", Recoverable: true},
			{RenderError: "still broken", Recoverable: true},
			{VideoURL: "https://cdn.example.com/video.mp4"},
		},
	}
	store := &fakeCheckpointStore{}
	engine := testEngine(stages, store)

	sink := &collectSink{}
	engine.Run(context.Background(), GenerateRequest{Description: "a widget", ProjectID: "proj-2"}, sinkEmitter(sink))

	events := sink.collected()
	assertOneTerminalComplete(t, events, true)
	assert.Equal(t, 3, stages.renderCalls)
	assert.Equal(t, 2, stages.repairCalls)

	// Render status events carry attempt numbers 1, 2, 3.
	var attempts []int
	for _, ev := range events {
		if sd, ok := ev.Data.(StatusData); ok && sd.Step == StepRendering {
			attempts = append(attempts, sd.Attempts)
		}
	}
	assert.Equal(t, []int{1, 2, 3}, attempts)

	// Each repair re-emits the composition and re-checkpoints it.
	remotions := 0
	for _, ev := range events {
		if ev.Type == EventRemotionCode {
			remotions++
		}
	}
	assert.Equal(t, 3, remotions) // translate + two repairs
	assert.Equal(t, StatusReady, store.status)
}

func TestEngineRunExhaustsRenderAttempts(t *testing.T) {
	stages := &fakeStages{
		renders: []RenderResult{
			{RenderError: "broken 1", Recoverable: true},
			{RenderError: "broken 2", Recoverable: true},
			{RenderError: "broken 3", Recoverable: true},
		},
	}
	store := &fakeCheckpointStore{}
	engine := testEngine(stages, store)

	sink := &collectSink{}
	engine.Run(context.Background(), GenerateRequest{Description: "a widget", ProjectID: "proj-3"}, sinkEmitter(sink))

	events := sink.collected()
	assertOneTerminalComplete(t, events, false)

	// Exactly 3 renders and 2 repairs: no repair after the final attempt.
	assert.Equal(t, 3, stages.renderCalls)
	assert.Equal(t, 2, stages.repairCalls)

	// Error event precedes the failed complete.
	errIdx := -1
	for i, ev := range events {
		if ev.Type == EventError {
			errIdx = i
		}
	}
	require.GreaterOrEqual(t, errIdx, 0)
	errData := events[errIdx].Data.(ErrorData)
	require.NotEmpty(t, errData.Errors)
	assert.Contains(t, errData.Errors[0], "after 3 attempts")

	// Terminal failure rolls the project back to draft.
	assert.Equal(t, StatusDraft, store.status)
}

func TestEngineRunUnrecoverableRenderFailure(t *testing.T) {
	stages := &fakeStages{
		renders: []RenderResult{{RenderError: "out of disk", Recoverable: false}},
	}
	store := &fakeCheckpointStore{}
	engine := testEngine(stages, store)

	sink := &collectSink{}
	engine.Run(context.Background(), GenerateRequest{Description: "a widget", ProjectID: "proj-4"}, sinkEmitter(sink))

	assertOneTerminalComplete(t, sink.collected(), false)
	assert.Equal(t, 1, stages.renderCalls)
	assert.Equal(t, 0, stages.repairCalls, "no repair for unrecoverable failures")
	assert.Equal(t, StatusDraft, store.status)
}

func TestEngineRunStageReportedErrors(t *testing.T) {
	stages := &fakeStages{analyzeErrs: []string{"page could not be fetched"}}
	store := &fakeCheckpointStore{}
	engine := testEngine(stages, store)

	sink := &collectSink{}
	engine.Run(context.Background(), GenerateRequest{SourceURL: "https://example.com", ProjectID: "proj-5"}, sinkEmitter(sink))

	events := sink.collected()
	assertOneTerminalComplete(t, events, false)
	assert.Equal(t, 0, stages.scriptCalls, "failure stops the stage sequence")

	errData := events[1].Data.(ErrorData)
	assert.Equal(t, []string{"page could not be fetched"}, errData.Errors)
}

func TestEngineRunStageFault(t *testing.T) {
	stages := &fakeStages{analyzeErr: errors.New("connection refused")}
	engine := testEngine(stages, &fakeCheckpointStore{})

	sink := &collectSink{}
	engine.Run(context.Background(), GenerateRequest{SourceURL: "https://example.com"}, sinkEmitter(sink))

	events := sink.collected()
	assertOneTerminalComplete(t, events, false)
	errData := events[1].Data.(ErrorData)
	require.Len(t, errData.Errors, 1)
	assert.Contains(t, errData.Errors[0], "source analysis failed")
}

func TestEngineRunPanicIsNormalized(t *testing.T) {
	stages := &fakeStages{scriptPanic: true}
	store := &fakeCheckpointStore{}
	engine := testEngine(stages, store)

	sink := &collectSink{}
	require.NotPanics(t, func() {
		engine.Run(context.Background(), GenerateRequest{SourceURL: "https://example.com", ProjectID: "proj-6"}, sinkEmitter(sink))
	})

	events := sink.collected()
	assertOneTerminalComplete(t, events, false)
	assert.Equal(t, StatusDraft, store.status)
}

func TestEngineRunEphemeralSkipsPersistence(t *testing.T) {
	stages := &fakeStages{}
	store := &fakeCheckpointStore{}
	engine := testEngine(stages, store)

	sink := &collectSink{}
	engine.Run(context.Background(), GenerateRequest{Description: "a widget"}, sinkEmitter(sink))

	assertOneTerminalComplete(t, sink.collected(), true)
	assert.Empty(t, store.calls, "ephemeral runs never touch the store")
}

func TestEngineRunDisconnectDoesNotStopStages(t *testing.T) {
	stages := &fakeStages{}
	store := &fakeCheckpointStore{}
	engine := testEngine(stages, store)

	// Consumer disappears after the first event.
	sink := &collectSink{failAfter: 1}
	engine.Run(context.Background(), GenerateRequest{SourceURL: "https://example.com", ProjectID: "proj-7"}, sinkEmitter(sink))

	// Delivery stopped early, but every stage still ran and the final
	// checkpoint still landed.
	assert.Len(t, sink.collected(), 1)
	assert.Equal(t, 1, stages.renderCalls)
	assert.Equal(t, StatusReady, store.status)
	assert.Equal(t, "https://cdn.example.com/video.mp4", store.videoURL)
}

func TestEngineContinueSkipsEarlyStages(t *testing.T) {
	stages := &fakeStages{}
	store := &fakeCheckpointStore{}
	engine := testEngine(stages, store)

	sink := &collectSink{}
	engine.Continue(context.Background(), ContinueRequest{
		Script:      threeSceneScript(),
		ProductData: json.RawMessage(`{"name":"Widget"}`),
		ProjectID:   "proj-8",
	}, sinkEmitter(sink))

	events := sink.collected()
	assertOneTerminalComplete(t, events, true)
	assert.Equal(t, 0, stages.analyzeCalls)
	assert.Equal(t, 0, stages.scriptCalls)
	assert.Equal(t, 1, stages.pageCalls)
	assert.Equal(t, 1, stages.renderCalls)

	assert.Equal(t, []EventType{
		EventStatus, EventReactPageCode,
		EventStatus, EventRemotionCode,
		EventStatus, EventVideoURL,
		EventComplete,
	}, eventTypes(events))
}

func TestContinueRequestValidate(t *testing.T) {
	t.Run("missing script", func(t *testing.T) {
		req := ContinueRequest{ProductData: json.RawMessage(`{}`)}
		assert.ErrorIs(t, req.Validate(), ErrMissingScript)
	})

	t.Run("missing product data", func(t *testing.T) {
		req := ContinueRequest{Script: threeSceneScript()}
		assert.ErrorIs(t, req.Validate(), ErrMissingProductData)
	})

	t.Run("non-contiguous script is normalized, not rejected", func(t *testing.T) {
		vs := threeSceneScript()
		vs.Scenes[1].StartFrame = 100 // gap
		req := ContinueRequest{Script: vs, ProductData: json.RawMessage(`{}`)}
		assert.NoError(t, req.Validate())
		assert.NoError(t, vs.Validate())
	})
}

func TestGenerateRequestValidate(t *testing.T) {
	assert.ErrorIs(t, GenerateRequest{}.Validate(), ErrMissingInput)
	assert.NoError(t, GenerateRequest{SourceURL: "https://example.com"}.Validate())
	assert.NoError(t, GenerateRequest{Description: "a widget"}.Validate())
}

func sinkEmitter(sink Sink) *Emitter {
	return NewEmitter(sink)
}
