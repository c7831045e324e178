// Copyright (C) 2026 ClipForge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/credits"
	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/internal/presets"
	"github.com/clipforge/clipforge/internal/recording"
	"github.com/clipforge/clipforge/internal/store"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	store      *store.Store
	engine     *pipeline.Engine
	reviser    *pipeline.Reviser
	credits    *credits.Service
	recordings *recording.Registry
	presets    *presets.Catalog
	pricing    config.CreditsConfig
}

// NewHandlers creates the handler set.
func NewHandlers(
	st *store.Store,
	engine *pipeline.Engine,
	reviser *pipeline.Reviser,
	cs *credits.Service,
	recordings *recording.Registry,
	catalog *presets.Catalog,
	pricing config.CreditsConfig,
) *Handlers {
	return &Handlers{
		store:      st,
		engine:     engine,
		reviser:    reviser,
		credits:    cs,
		recordings: recordings,
		presets:    catalog,
		pricing:    pricing,
	}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		getLog().Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// checkPreset validates the requested style against the catalog.
// Returns false after writing the 400 response.
func (h *Handlers) checkPreset(w http.ResponseWriter, style string) bool {
	if style == "" {
		return true
	}
	if _, ok := h.presets.Get(style); !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": fmt.Sprintf("unknown style preset %q", style),
			"known": h.presets.Names(),
		})
		return false
	}
	return true
}

// charge deducts credits, writing the 402 response on shortfall.
// Returns false when the request must not proceed.
func (h *Handlers) charge(w http.ResponseWriter, r *http.Request, userID string, amount int64, reason string) bool {
	err := h.credits.Charge(r.Context(), userID, amount, reason)
	if err == nil {
		return true
	}
	var insufficient *credits.InsufficientError
	if errors.As(err, &insufficient) {
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":    "insufficient credits",
			"required": insufficient.Required,
			"balance":  insufficient.Balance,
		})
		return false
	}
	getLog().Error().Err(err).Str("user_id", userID).Msg("Credit charge failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	return false
}

// loadOwnedProject fetches a project and enforces ownership, writing
// the error response itself on failure.
func (h *Handlers) loadOwnedProject(w http.ResponseWriter, r *http.Request, projectID string) *store.Project {
	user := GetUser(r.Context())
	project, err := h.store.GetProject(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "project not found"})
			return nil
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load project", "context": err.Error()})
		return nil
	}
	if project.UserID != user.ID {
		// Hide other users' projects entirely.
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "project not found"})
		return nil
	}
	return project
}

// --- Generation ---

// generateRequest is the body of POST /api/v1/generate.
type generateRequest struct {
	SourceURL   string               `json:"source_url,omitempty"`
	Description string               `json:"description,omitempty"`
	Preferences pipeline.Preferences `json:"preferences,omitempty"`
	ProjectID   string               `json:"project_id,omitempty"`
	// Ephemeral runs stream results without persisting a project record.
	Ephemeral bool `json:"ephemeral,omitempty"`
}

// Generate handles POST /api/v1/generate: the full pipeline run,
// streamed as newline-delimited JSON events. All request validation and
// the credit charge happen before the stream opens, so failures are
// plain JSON errors with proper status codes.
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	user := GetUser(r.Context())

	var body generateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body", "context": err.Error()})
		return
	}

	req := pipeline.GenerateRequest{
		SourceURL:   body.SourceURL,
		Description: body.Description,
		Preferences: body.Preferences,
		ProjectID:   body.ProjectID,
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if !h.checkPreset(w, body.Preferences.Style) {
		return
	}

	if body.ProjectID != "" {
		if h.loadOwnedProject(w, r, body.ProjectID) == nil {
			return
		}
	}

	if !h.charge(w, r, user.ID, h.pricing.GenerationCost, "generation") {
		return
	}

	if body.ProjectID == "" && !body.Ephemeral {
		project := &store.Project{
			ID:          uuid.NewString(),
			UserID:      user.ID,
			SourceURL:   body.SourceURL,
			Description: body.Description,
			Status:      string(pipeline.StatusGenerating),
		}
		if err := h.store.CreateProject(r.Context(), project); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create project", "context": err.Error()})
			return
		}
		req.ProjectID = project.ID
	}

	h.stream(w, r, req.ProjectID, func(ctx context.Context, em *pipeline.Emitter) {
		h.engine.Run(ctx, req, em)
	})
}

// continueRequest is the body of POST /api/v1/continue. Script and
// product data default to the project's stored checkpoints.
type continueRequest struct {
	ProjectID   string                `json:"project_id"`
	Script      *pipeline.VideoScript `json:"script,omitempty"`
	ProductData json.RawMessage       `json:"product_data,omitempty"`
	Preferences pipeline.Preferences  `json:"preferences,omitempty"`
}

// Continue handles POST /api/v1/continue: resume a run from an
// approved script, skipping analysis and scripting.
func (h *Handlers) Continue(w http.ResponseWriter, r *http.Request) {
	user := GetUser(r.Context())

	var body continueRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body", "context": err.Error()})
		return
	}

	if body.ProjectID != "" {
		project := h.loadOwnedProject(w, r, body.ProjectID)
		if project == nil {
			return
		}
		if body.Script == nil && project.Script != "" {
			script, err := project.ParsedScript()
			if err != nil {
				writeJSON(w, http.StatusConflict, map[string]string{"error": "stored script is unreadable", "context": err.Error()})
				return
			}
			body.Script = script
		}
		if len(body.ProductData) == 0 && project.ProductData != "" {
			body.ProductData = json.RawMessage(project.ProductData)
		}
	}

	req := pipeline.ContinueRequest{
		Script:      body.Script,
		ProductData: body.ProductData,
		Preferences: body.Preferences,
		ProjectID:   body.ProjectID,
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if !h.checkPreset(w, body.Preferences.Style) {
		return
	}

	if !h.charge(w, r, user.ID, h.pricing.ContinueCost, "generation_continue") {
		return
	}

	h.stream(w, r, req.ProjectID, func(ctx context.Context, em *pipeline.Emitter) {
		h.engine.Continue(ctx, req, em)
	})
}

// stream opens the NDJSON response and runs the pipeline on it. The run
// gets a context detached from the request's cancellation: a consumer
// disconnect stops event delivery (the emitter notices the failed
// write) but never interrupts stage execution or checkpoint writes.
func (h *Handlers) stream(w http.ResponseWriter, r *http.Request, projectID string, run func(context.Context, *pipeline.Emitter)) {
	streamHeaders(w)
	w.WriteHeader(http.StatusOK)

	em := pipeline.NewEmitter(newNDJSONSink(w))
	ctx := context.WithoutCancel(r.Context())
	getLog().Info().Str("project_id", projectID).Str("request_id", GetRequestID(r.Context())).Msg("Generation stream opened")
	run(ctx, em)
}

// eventCatalog describes the NDJSON stream for the docs endpoints.
var eventCatalog = []map[string]string{
	{"type": string(pipeline.EventStatus), "data": "current step, message, render attempt count"},
	{"type": string(pipeline.EventProductData), "data": "structured product analysis"},
	{"type": string(pipeline.EventVideoScript), "data": "scene-by-scene video script"},
	{"type": string(pipeline.EventReactPageCode), "data": "generated page source"},
	{"type": string(pipeline.EventRemotionCode), "data": "renderable composition source"},
	{"type": string(pipeline.EventVideoURL), "data": "rendered video location"},
	{"type": string(pipeline.EventError), "data": "list of error messages"},
	{"type": string(pipeline.EventComplete), "data": "success flag; always the final event"},
}

// GenerateDocs handles GET /api/v1/generate: a static description of
// the streaming contract, so the endpoint is self-documenting.
func (h *Handlers) GenerateDocs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"endpoint": "POST /api/v1/generate",
		"body": map[string]string{
			"source_url":  "product page to analyze (this or description required)",
			"description": "freeform product description (this or source_url required)",
			"preferences": "optional style/duration/audio preferences",
			"project_id":  "optional existing project to checkpoint into",
			"ephemeral":   "true to skip persistence entirely",
		},
		"response": "application/x-ndjson event stream",
		"events":   eventCatalog,
	})
}

// ContinueDocs handles GET /api/v1/continue.
func (h *Handlers) ContinueDocs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"endpoint": "POST /api/v1/continue",
		"body": map[string]string{
			"project_id":   "project whose stored script and product data to resume from",
			"script":       "approved video script (defaults to the project's stored script)",
			"product_data": "analysis output (defaults to the project's stored data)",
			"preferences":  "optional style/duration/audio preferences",
		},
		"response": "application/x-ndjson event stream; analysis and scripting stages are skipped",
		"events":   eventCatalog,
	})
}

// --- Projects ---

// GetProjects handles GET /api/v1/projects.
func (h *Handlers) GetProjects(w http.ResponseWriter, r *http.Request) {
	user := GetUser(r.Context())
	projects, err := h.store.GetProjectsByUser(r.Context(), user.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load projects", "context": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

// GetProject handles GET /api/v1/projects/{id}.
func (h *Handlers) GetProject(w http.ResponseWriter, r *http.Request) {
	project := h.loadOwnedProject(w, r, chi.URLParam(r, "id"))
	if project == nil {
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// reviseRequest is the body of POST /api/v1/projects/{id}/revise.
type reviseRequest struct {
	Instruction string `json:"instruction"`
}

// Revise handles POST /api/v1/projects/{id}/revise: a chat-driven edit
// of the project's composition code. Synchronous — no streaming.
func (h *Handlers) Revise(w http.ResponseWriter, r *http.Request) {
	project := h.loadOwnedProject(w, r, chi.URLParam(r, "id"))
	if project == nil {
		return
	}

	var body reviseRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body", "context": err.Error()})
		return
	}
	if body.Instruction == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "instruction is required"})
		return
	}
	if project.Composition == "" {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "project has no composition to revise"})
		return
	}

	st := pipeline.State{
		ProjectID:       project.ID,
		ProductData:     json.RawMessage(project.ProductData),
		CompositionCode: project.Composition,
	}
	if project.Script != "" {
		script, err := project.ParsedScript()
		if err != nil {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "stored script is unreadable", "context": err.Error()})
			return
		}
		st.Script = script
	}

	result, err := h.reviser.Revise(r.Context(), st, body.Instruction)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "revision failed", "context": err.Error()})
		return
	}

	if err := h.store.SaveComposition(r.Context(), project.ID, result.CompositionCode); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save composition", "context": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// --- Recordings ---

// recordingRequest is the body of POST /api/v1/recordings.
type recordingRequest struct {
	ProjectID string `json:"project_id,omitempty"`
	SourceURL string `json:"source_url"`
}

// CreateRecording handles POST /api/v1/recordings: enqueue a screen
// recording for cursor detection and compositing. Async — returns 202
// with the job ID for status polling.
func (h *Handlers) CreateRecording(w http.ResponseWriter, r *http.Request) {
	user := GetUser(r.Context())

	var body recordingRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body", "context": err.Error()})
		return
	}
	if body.SourceURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "source_url is required"})
		return
	}
	if body.ProjectID != "" {
		if h.loadOwnedProject(w, r, body.ProjectID) == nil {
			return
		}
	}

	if !h.charge(w, r, user.ID, h.pricing.RecordingCost, "recording") {
		return
	}

	jobID, err := h.recordings.Enqueue(r.Context(), user.ID, body.ProjectID, body.SourceURL)
	if err != nil {
		if errors.Is(err, recording.ErrShuttingDown) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue recording", "context": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

// GetRecording handles GET /api/v1/recordings/{id}.
func (h *Handlers) GetRecording(w http.ResponseWriter, r *http.Request) {
	user := GetUser(r.Context())
	job, err := h.recordings.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "recording job not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load recording job", "context": err.Error()})
		return
	}
	if job.UserID != user.ID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "recording job not found"})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// --- Presets and credits ---

// GetPresets handles GET /api/v1/presets.
func (h *Handlers) GetPresets(w http.ResponseWriter, r *http.Request) {
	names := h.presets.Names()
	out := make([]presets.Preset, 0, len(names))
	for _, name := range names {
		p, _ := h.presets.Get(name)
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"presets": out})
}

// GetBalance handles GET /api/v1/credits/balance.
func (h *Handlers) GetBalance(w http.ResponseWriter, r *http.Request) {
	user := GetUser(r.Context())
	balance, err := h.credits.Balance(r.Context(), user.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load balance", "context": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}
