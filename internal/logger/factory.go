// Copyright (C) 2026 ClipForge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logger

import (
	"github.com/rs/zerolog"
)

// Static logger getters that map directly to config.yaml log.levels
// These ensure consistent logger names across the codebase

// GetPipelineLogger returns a logger for the generation pipeline
func GetPipelineLogger() zerolog.Logger {
	return GetLogger("pipeline")
}

// GetStoreLogger returns a logger for persistence operations
func GetStoreLogger() zerolog.Logger {
	return GetLogger("store")
}

// GetAPILogger returns a logger for API operations
func GetAPILogger() zerolog.Logger {
	return GetLogger("api")
}

// GetRecordingLogger returns a logger for the recording job queue
func GetRecordingLogger() zerolog.Logger {
	return GetLogger("recording")
}

// GetStagesLogger returns a logger for stage collaborator calls
func GetStagesLogger() zerolog.Logger {
	return GetLogger("stages")
}
