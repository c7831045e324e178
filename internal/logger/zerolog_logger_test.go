// Copyright (C) 2026 ClipForge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logger

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/config"
)

func TestNewManager(t *testing.T) {
	tests := []struct {
		name        string
		config      *config.LogConfig
		expectError bool
	}{
		{
			name: "minimal_config",
			config: &config.LogConfig{
				Level:  "info",
				Format: "json",
				Output: []config.LogOutputConfig{
					{Type: "console", Enabled: true},
				},
				Context: config.LogContextConfig{IncludeTimestamp: true},
			},
		},
		{
			name: "file_output_config",
			config: &config.LogConfig{
				Level:  "debug",
				Format: "json",
				Output: []config.LogOutputConfig{
					{Type: "file", Enabled: true, Path: filepath.Join(t.TempDir(), "test.log")},
				},
				Context: config.LogContextConfig{IncludeTimestamp: true, IncludeCaller: true},
			},
		},
		{
			name: "rotating_file_config",
			config: &config.LogConfig{
				Level:  "error",
				Format: "json",
				Output: []config.LogOutputConfig{
					{
						Type:    "file",
						Enabled: true,
						Path:    filepath.Join(t.TempDir(), "rotated.log"),
						Rotate:  config.LogRotateConfig{MaxSizeMB: 10, MaxBackups: 2, MaxAgeDays: 7},
					},
				},
			},
		},
		{
			name: "unsupported_output_type",
			config: &config.LogConfig{
				Level:  "info",
				Format: "json",
				Output: []config.LogOutputConfig{
					{Type: "syslog", Enabled: true},
				},
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManager(tt.config)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, m)
			t.Cleanup(func() { m.Close() })
		})
	}
}

func TestManagerPerPackageLevels(t *testing.T) {
	m, err := NewManager(&config.LogConfig{
		Level:  "info",
		Format: "json",
		Output: []config.LogOutputConfig{{Type: "console", Enabled: true}},
		Levels: map[string]string{"pipeline": "DEBUG", "store": "ERROR"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	assert.Equal(t, zerolog.DebugLevel, m.GetLogger("pipeline").GetLevel())
	assert.Equal(t, zerolog.ErrorLevel, m.GetLogger("store").GetLevel())
	// Unlisted packages inherit the global level.
	assert.Equal(t, zerolog.InfoLevel, m.GetLogger("api").GetLevel())

	// Same name returns the cached logger at the same level.
	assert.Equal(t, m.GetLogger("pipeline").GetLevel(), m.GetLogger("pipeline").GetLevel())
}

func TestManagerSetPackageLevel(t *testing.T) {
	m, err := NewManager(&config.LogConfig{
		Level:  "info",
		Format: "json",
		Output: []config.LogOutputConfig{{Type: "console", Enabled: true}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	assert.Equal(t, zerolog.InfoLevel, m.GetLogger("recording").GetLevel())
	m.SetPackageLevel("recording", "DEBUG")
	assert.Equal(t, zerolog.DebugLevel, m.GetLogger("recording").GetLevel())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"DEBUG", zerolog.DebugLevel},
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"WARN", zerolog.WarnLevel},
		{"WARNING", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"FATAL", zerolog.FatalLevel},
		{"PANIC", zerolog.PanicLevel},
		{"TRACE", zerolog.TraceLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), "level %q", tt.in)
	}
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	// Uninitialized global manager returns a usable discard logger
	// instead of panicking.
	l := GetLogger("anything")
	l.Info().Msg("should not panic")
}
