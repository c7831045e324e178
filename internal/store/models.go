// Copyright (C) 2026 ClipForge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/clipforge/clipforge/internal/pipeline"
)

// Project is the durable checkpoint record for a generation run. It
// outlives any single run: the pipeline checkpoints into it, and it can
// be read or edited independently (manual script edits, chat edits).
// ProductData and Script are stored as serialized text and parsed back
// to structured form on read.
type Project struct {
	ID          string `gorm:"primaryKey;type:text" json:"id"`
	UserID      string `gorm:"type:text;index" json:"user_id"`
	SourceURL   string `gorm:"type:text" json:"source_url,omitempty"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	ProductData string `gorm:"type:text" json:"product_data,omitempty"`
	Script      string `gorm:"type:text" json:"script,omitempty"`
	Composition string `gorm:"type:text" json:"composition,omitempty"`
	VideoURL    string `gorm:"type:text" json:"video_url,omitempty"`
	Status      string `gorm:"not null;default:draft;index" json:"status"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Project) TableName() string {
	return "projects"
}

// ParsedScript deserializes the stored script.
func (p *Project) ParsedScript() (*pipeline.VideoScript, error) {
	if p.Script == "" {
		return nil, fmt.Errorf("project %s has no script", p.ID)
	}
	var vs pipeline.VideoScript
	if err := json.Unmarshal([]byte(p.Script), &vs); err != nil {
		return nil, fmt.Errorf("parse script for project %s: %w", p.ID, err)
	}
	return &vs, nil
}

// User identifies an API caller. Token-based: the Authorization header
// carries APIToken as a bearer token.
type User struct {
	ID       string `gorm:"primaryKey;type:text" json:"id"`
	Email    string `gorm:"type:text;uniqueIndex" json:"email"`
	APIToken string `gorm:"type:text;uniqueIndex" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

// CreditAccount holds a user's spendable balance.
type CreditAccount struct {
	UserID  string `gorm:"primaryKey;type:text" json:"user_id"`
	Balance int64  `gorm:"not null;default:0" json:"balance"`

	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CreditAccount) TableName() string {
	return "credit_accounts"
}

// CreditEntry is one append-only ledger row. Delta is negative for
// deductions.
type CreditEntry struct {
	ID     string `gorm:"primaryKey;type:text" json:"id"`
	UserID string `gorm:"type:text;index;not null" json:"user_id"`
	Delta  int64  `gorm:"not null" json:"delta"`
	Reason string `gorm:"type:text" json:"reason"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (CreditEntry) TableName() string {
	return "credit_entries"
}

// RecordingJobStatus tracks the screen-recording post-processing queue.
type RecordingJobStatus string

const (
	RecordingQueued     RecordingJobStatus = "queued"
	RecordingProcessing RecordingJobStatus = "processing"
	RecordingComplete   RecordingJobStatus = "complete"
	RecordingFailed     RecordingJobStatus = "failed"
)

// RecordingJob is one queued screen-recording post-processing task
// (cursor detection + compositing). Pollable via the status endpoint.
type RecordingJob struct {
	ID         string             `gorm:"primaryKey;type:text" json:"id"`
	ProjectID  string             `gorm:"type:text;index" json:"project_id"`
	UserID     string             `gorm:"type:text;index" json:"user_id"`
	SourceURL  string             `gorm:"type:text;not null" json:"source_url"`
	Status     RecordingJobStatus `gorm:"not null;default:queued;index" json:"status"`
	CursorData string             `gorm:"type:text" json:"cursor_data,omitempty"`
	OutputURL  string             `gorm:"type:text" json:"output_url,omitempty"`
	Error      string             `gorm:"type:text" json:"error,omitempty"`

	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	StartedAt   *time.Time `gorm:"type:timestamp" json:"started_at,omitempty"`
	CompletedAt *time.Time `gorm:"type:timestamp" json:"completed_at,omitempty"`
}

func (RecordingJob) TableName() string {
	return "recording_jobs"
}
