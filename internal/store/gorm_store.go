// Copyright (C) 2026 ClipForge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store wraps the GORM database connection behind the
// operations the rest of the system needs: project checkpoints, users,
// credits, and the recording job queue.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/pipeline"
)

// ErrInsufficientCredits is returned by DeductCredits when the balance
// cannot cover the requested amount.
var ErrInsufficientCredits = errors.New("insufficient credits")

// Store wraps the GORM database connection.
type Store struct {
	db *gorm.DB
}

// New creates a new database connection.
func New(cfg *config.DatabaseConfig) (*Store, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.GetDSN())
	case "postgres":
		dialector = postgres.Open(cfg.GetDSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent), // Reduce GORM log noise
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Store{db: db}, nil
}

// AutoMigrate runs database migrations.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&Project{},
		&User{},
		&CreditAccount{},
		&CreditEntry{},
		&RecordingJob{},
	)
}

// ValidateSchema checks that the models match the database schema.
func (s *Store) ValidateSchema() error {
	var missingTables []string
	var missingColumns []string

	for name, model := range map[string]any{
		"projects":        &Project{},
		"users":           &User{},
		"credit_accounts": &CreditAccount{},
		"credit_entries":  &CreditEntry{},
		"recording_jobs":  &RecordingJob{},
	} {
		if !s.db.Migrator().HasTable(model) {
			missingTables = append(missingTables, name)
		}
	}
	if len(missingTables) > 0 {
		return fmt.Errorf("missing tables: %v (run the migrate command)", missingTables)
	}

	projectColumns := []string{
		"id", "user_id", "source_url", "description", "product_data",
		"script", "composition", "video_url", "status",
	}
	for _, col := range projectColumns {
		if !s.db.Migrator().HasColumn(&Project{}, col) {
			missingColumns = append(missingColumns, fmt.Sprintf("projects.%s", col))
		}
	}
	recordingColumns := []string{"id", "project_id", "source_url", "status", "cursor_data", "output_url"}
	for _, col := range recordingColumns {
		if !s.db.Migrator().HasColumn(&RecordingJob{}, col) {
			missingColumns = append(missingColumns, fmt.Sprintf("recording_jobs.%s", col))
		}
	}
	if len(missingColumns) > 0 {
		return fmt.Errorf("missing columns: %v (run the migrate command)", missingColumns)
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- Projects ---

// CreateProject inserts a new project record.
func (s *Store) CreateProject(ctx context.Context, p *Project) error {
	if p.Status == "" {
		p.Status = string(pipeline.StatusGenerating)
	}
	return s.db.WithContext(ctx).Create(p).Error
}

// GetProject retrieves a single project by ID.
func (s *Store) GetProject(ctx context.Context, projectID string) (*Project, error) {
	var p Project
	if err := s.db.WithContext(ctx).First(&p, "id = ?", projectID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProjectsByUser retrieves a user's projects, most recent first.
func (s *Store) GetProjectsByUser(ctx context.Context, userID string) ([]Project, error) {
	var projects []Project
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&projects).Error
	return projects, err
}

// --- Checkpoint operations (pipeline.CheckpointStore) ---

// SaveProductData persists the source analysis output; status stays generating.
func (s *Store) SaveProductData(ctx context.Context, projectID, sourceURL, productData string) error {
	return s.updateProject(ctx, projectID, map[string]any{
		"source_url":   sourceURL,
		"product_data": productData,
		"status":       string(pipeline.StatusGenerating),
	})
}

// SaveScript persists the authored script and marks the project draft.
func (s *Store) SaveScript(ctx context.Context, projectID, script string) error {
	return s.updateProject(ctx, projectID, map[string]any{
		"script": script,
		"status": string(pipeline.StatusDraft),
	})
}

// SaveComposition persists composition code without touching status.
func (s *Store) SaveComposition(ctx context.Context, projectID, composition string) error {
	return s.updateProject(ctx, projectID, map[string]any{
		"composition": composition,
	})
}

// SaveVideoURL persists the rendered output and marks the project ready.
func (s *Store) SaveVideoURL(ctx context.Context, projectID, videoURL string) error {
	return s.updateProject(ctx, projectID, map[string]any{
		"video_url": videoURL,
		"status":    string(pipeline.StatusReady),
	})
}

// SetProjectStatus updates only the lifecycle status.
func (s *Store) SetProjectStatus(ctx context.Context, projectID string, status pipeline.ProjectStatus) error {
	return s.updateProject(ctx, projectID, map[string]any{
		"status": string(status),
	})
}

func (s *Store) updateProject(ctx context.Context, projectID string, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&Project{}).
		Where("id = ?", projectID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("project %s not found", projectID)
	}
	return nil
}

// --- Users ---

// CreateUser inserts a user with a zero-balance credit account.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(u).Error; err != nil {
			return err
		}
		return tx.Create(&CreditAccount{UserID: u.ID}).Error
	})
}

// GetUserByToken resolves an API token to its user.
func (s *Store) GetUserByToken(ctx context.Context, token string) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).First(&u, "api_token = ?", token).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// --- Credits ---

// GetBalance returns a user's current credit balance.
func (s *Store) GetBalance(ctx context.Context, userID string) (int64, error) {
	var acct CreditAccount
	if err := s.db.WithContext(ctx).First(&acct, "user_id = ?", userID).Error; err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// DeductCredits atomically subtracts amount from the user's balance and
// appends a ledger entry. Returns the balance after the deduction, or
// the unchanged balance alongside ErrInsufficientCredits.
func (s *Store) DeductCredits(ctx context.Context, userID string, amount int64, reason string) (int64, error) {
	var balance int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Conditional update guards against concurrent spends.
		res := tx.Model(&CreditAccount{}).
			Where("user_id = ? AND balance >= ?", userID, amount).
			Update("balance", gorm.Expr("balance - ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var acct CreditAccount
			if err := tx.First(&acct, "user_id = ?", userID).Error; err != nil {
				return err
			}
			balance = acct.Balance
			return ErrInsufficientCredits
		}

		var acct CreditAccount
		if err := tx.First(&acct, "user_id = ?", userID).Error; err != nil {
			return err
		}
		balance = acct.Balance

		return tx.Create(&CreditEntry{
			ID:     uuid.NewString(),
			UserID: userID,
			Delta:  -amount,
			Reason: reason,
		}).Error
	})
	return balance, err
}

// AddCredits tops up a balance and appends a ledger entry.
func (s *Store) AddCredits(ctx context.Context, userID string, amount int64, reason string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&CreditAccount{}).
			Where("user_id = ?", userID).
			Update("balance", gorm.Expr("balance + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("credit account for user %s not found", userID)
		}
		return tx.Create(&CreditEntry{
			ID:     uuid.NewString(),
			UserID: userID,
			Delta:  amount,
			Reason: reason,
		}).Error
	})
}

// --- Recording jobs ---

// CreateRecordingJob inserts a queued job.
func (s *Store) CreateRecordingJob(ctx context.Context, job *RecordingJob) error {
	if job.Status == "" {
		job.Status = RecordingQueued
	}
	return s.db.WithContext(ctx).Create(job).Error
}

// GetRecordingJob retrieves a job by ID.
func (s *Store) GetRecordingJob(ctx context.Context, jobID string) (*RecordingJob, error) {
	var job RecordingJob
	if err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkRecordingJobProcessing flips a job to processing and stamps its start.
func (s *Store) MarkRecordingJobProcessing(ctx context.Context, jobID string) error {
	now := time.Now()
	return s.updateRecordingJob(ctx, jobID, map[string]any{
		"status":     RecordingProcessing,
		"started_at": &now,
	})
}

// MarkRecordingJobComplete records the cursor track and output location.
func (s *Store) MarkRecordingJobComplete(ctx context.Context, jobID, cursorData, outputURL string) error {
	now := time.Now()
	return s.updateRecordingJob(ctx, jobID, map[string]any{
		"status":       RecordingComplete,
		"cursor_data":  cursorData,
		"output_url":   outputURL,
		"completed_at": &now,
	})
}

// MarkRecordingJobFailed records the failure reason.
func (s *Store) MarkRecordingJobFailed(ctx context.Context, jobID, errMsg string) error {
	now := time.Now()
	return s.updateRecordingJob(ctx, jobID, map[string]any{
		"status":       RecordingFailed,
		"error":        errMsg,
		"completed_at": &now,
	})
}

func (s *Store) updateRecordingJob(ctx context.Context, jobID string, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&RecordingJob{}).
		Where("id = ?", jobID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("recording job %s not found", jobID)
	}
	return nil
}
