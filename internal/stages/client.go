// Copyright (C) 2026 ClipForge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stages is the HTTP client for the external content-generation
// service that hosts the stage collaborators: source analysis, script
// writing, page code generation, composition translation, rendering,
// render repair, chat edits, and recording post-processing.
//
// Each stage maps to one POST endpoint. Expected, reportable failures
// come back in the response body's errors field; transport and non-2xx
// faults become Go errors.
package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/logger"
	"github.com/clipforge/clipforge/internal/pipeline"
)

var (
	log     *zerolog.Logger
	logOnce sync.Once
)

func getLog() *zerolog.Logger {
	logOnce.Do(func() {
		l := logger.GetStagesLogger()
		log = &l
	})
	return log
}

// Client talks to the generation service. It implements
// pipeline.Stages, pipeline.Editor, and recording.Processor.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// NewClient builds the client from generation config.
func NewClient(cfg config.GenerationConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpc:   &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// post sends the request body to path and decodes the response into out.
func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		getLog().Warn().Int("status", resp.StatusCode).Str("path", path).Msg("Generation service returned non-2xx")
		return fmt.Errorf("call %s: status %d: %s", path, resp.StatusCode, snippet)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// stageInput is the common request shape: the slice of run state a
// stage needs, nothing more.
type stageInput struct {
	SourceURL       string                `json:"source_url,omitempty"`
	Description     string                `json:"description,omitempty"`
	Preferences     pipeline.Preferences  `json:"preferences,omitempty"`
	ProductData     json.RawMessage       `json:"product_data,omitempty"`
	Script          *pipeline.VideoScript `json:"script,omitempty"`
	PageCode        string                `json:"page_code,omitempty"`
	CompositionCode string                `json:"composition_code,omitempty"`
	RenderError     string                `json:"render_error,omitempty"`
	Instruction     string                `json:"instruction,omitempty"`
	Diagnostics     []string              `json:"diagnostics,omitempty"`
}

// AnalyzeSource extracts structured product data from the URL or
// description.
func (c *Client) AnalyzeSource(ctx context.Context, st pipeline.State) (pipeline.AnalyzeResult, error) {
	var resp struct {
		ProductData json.RawMessage `json:"product_data"`
		Errors      []string        `json:"errors,omitempty"`
	}
	err := c.post(ctx, "/v1/analyze", stageInput{
		SourceURL:   st.SourceURL,
		Description: st.Description,
	}, &resp)
	if err != nil {
		return pipeline.AnalyzeResult{}, err
	}
	return pipeline.AnalyzeResult{ProductData: resp.ProductData, Errs: resp.Errors}, nil
}

// WriteScript authors a scene-by-scene video script from product data.
func (c *Client) WriteScript(ctx context.Context, st pipeline.State) (pipeline.ScriptResult, error) {
	var resp struct {
		Script *pipeline.VideoScript `json:"script"`
		Errors []string              `json:"errors,omitempty"`
	}
	err := c.post(ctx, "/v1/script", stageInput{
		ProductData: st.ProductData,
		Preferences: st.Preferences,
	}, &resp)
	if err != nil {
		return pipeline.ScriptResult{}, err
	}
	return pipeline.ScriptResult{Script: resp.Script, Errs: resp.Errors}, nil
}

// GeneratePage produces the intermediate page source for the script.
func (c *Client) GeneratePage(ctx context.Context, st pipeline.State) (pipeline.PageResult, error) {
	var resp struct {
		PageCode string   `json:"page_code"`
		Errors   []string `json:"errors,omitempty"`
	}
	err := c.post(ctx, "/v1/page", stageInput{
		ProductData: st.ProductData,
		Script:      st.Script,
		Preferences: st.Preferences,
	}, &resp)
	if err != nil {
		return pipeline.PageResult{}, err
	}
	return pipeline.PageResult{PageCode: resp.PageCode, Errs: resp.Errors}, nil
}

// Translate converts page source into renderable composition code.
func (c *Client) Translate(ctx context.Context, st pipeline.State) (pipeline.TranslateResult, error) {
	var resp struct {
		CompositionCode string   `json:"composition_code"`
		Errors          []string `json:"errors,omitempty"`
	}
	err := c.post(ctx, "/v1/translate", stageInput{
		Script:      st.Script,
		PageCode:    st.PageCode,
		Preferences: st.Preferences,
	}, &resp)
	if err != nil {
		return pipeline.TranslateResult{}, err
	}
	return pipeline.TranslateResult{CompositionCode: resp.CompositionCode, Errs: resp.Errors}, nil
}

// Render submits composition code for rendering. A failed render with
// recoverable=true routes the run into the repair loop.
func (c *Client) Render(ctx context.Context, st pipeline.State) (pipeline.RenderResult, error) {
	var resp struct {
		VideoURL    string   `json:"video_url,omitempty"`
		RenderError string   `json:"render_error,omitempty"`
		Recoverable bool     `json:"recoverable,omitempty"`
		Errors      []string `json:"errors,omitempty"`
	}
	err := c.post(ctx, "/v1/render", stageInput{
		CompositionCode: st.CompositionCode,
		Preferences:     st.Preferences,
	}, &resp)
	if err != nil {
		return pipeline.RenderResult{}, err
	}
	return pipeline.RenderResult{
		VideoURL:    resp.VideoURL,
		RenderError: resp.RenderError,
		Recoverable: resp.Recoverable,
		Errs:        resp.Errors,
	}, nil
}

// RepairRender rewrites composition code to fix the last render error.
func (c *Client) RepairRender(ctx context.Context, st pipeline.State) (pipeline.RepairResult, error) {
	var resp struct {
		CompositionCode string   `json:"composition_code"`
		Errors          []string `json:"errors,omitempty"`
	}
	err := c.post(ctx, "/v1/repair", stageInput{
		CompositionCode: st.CompositionCode,
		RenderError:     st.LastRenderError,
	}, &resp)
	if err != nil {
		return pipeline.RepairResult{}, err
	}
	return pipeline.RepairResult{CompositionCode: resp.CompositionCode, Errs: resp.Errors}, nil
}

// EditComposition applies a chat instruction to the composition.
func (c *Client) EditComposition(ctx context.Context, st pipeline.State, instruction string) (pipeline.TranslateResult, error) {
	var resp struct {
		CompositionCode string   `json:"composition_code"`
		Errors          []string `json:"errors,omitempty"`
	}
	err := c.post(ctx, "/v1/edit", stageInput{
		Script:          st.Script,
		CompositionCode: st.CompositionCode,
		Instruction:     instruction,
	}, &resp)
	if err != nil {
		return pipeline.TranslateResult{}, err
	}
	return pipeline.TranslateResult{CompositionCode: resp.CompositionCode, Errs: resp.Errors}, nil
}

// RepairComposition fixes composition code against the given
// diagnostics from the local syntax check.
func (c *Client) RepairComposition(ctx context.Context, code string, diagnostics []string) (pipeline.RepairResult, error) {
	var resp struct {
		CompositionCode string   `json:"composition_code"`
		Errors          []string `json:"errors,omitempty"`
	}
	err := c.post(ctx, "/v1/repair", stageInput{
		CompositionCode: code,
		Diagnostics:     diagnostics,
	}, &resp)
	if err != nil {
		return pipeline.RepairResult{}, err
	}
	return pipeline.RepairResult{CompositionCode: resp.CompositionCode, Errs: resp.Errors}, nil
}

// DetectCursor analyzes a screen recording for cursor positions.
func (c *Client) DetectCursor(ctx context.Context, sourceURL string) (string, error) {
	var resp struct {
		CursorData string   `json:"cursor_data"`
		Errors     []string `json:"errors,omitempty"`
	}
	err := c.post(ctx, "/v1/recordings/cursor", map[string]string{"source_url": sourceURL}, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Errors) > 0 {
		return "", fmt.Errorf("cursor detection: %v", resp.Errors)
	}
	return resp.CursorData, nil
}

// Composite overlays the cursor track onto the recording.
func (c *Client) Composite(ctx context.Context, sourceURL, cursorData string) (string, error) {
	var resp struct {
		OutputURL string   `json:"output_url"`
		Errors    []string `json:"errors,omitempty"`
	}
	err := c.post(ctx, "/v1/recordings/composite", map[string]string{
		"source_url":  sourceURL,
		"cursor_data": cursorData,
	}, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Errors) > 0 {
		return "", fmt.Errorf("compositing: %v", resp.Errors)
	}
	return resp.OutputURL, nil
}
