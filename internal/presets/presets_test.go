// Copyright (C) 2026 ClipForge
// SPDX-License-Identifier: AGPL-3.0-or-later

package presets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBuiltinsOnly(t *testing.T) {
	catalog, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"bold", "minimal", "playful"}, catalog.Names())

	p, ok := catalog.Get("minimal")
	require.True(t, ok)
	assert.Equal(t, "minimal", p.Name)
	assert.NotEmpty(t, p.Background)

	_, ok = catalog.Get("nonexistent")
	assert.False(t, ok)
}

func TestLoadMergesFileOverBuiltins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	content := `presets:
  - name: corporate
    background: "#f4f4f5"
    text_color: "#18181b"
    font: "IBM Plex Sans"
    font_size: 44
    pacing: calm
  - name: minimal
    background: "#000000"
    text_color: "#ffffff"
    font: "Inter"
    font_size: 48
    pacing: calm
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	catalog, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"bold", "corporate", "minimal", "playful"}, catalog.Names())

	// File entry with the same name overrides the builtin.
	p, ok := catalog.Get("minimal")
	require.True(t, ok)
	assert.Equal(t, "#000000", p.Background)

	p, ok = catalog.Get("corporate")
	require.True(t, ok)
	assert.Equal(t, "IBM Plex Sans", p.Font)
}

func TestLoadRejectsBadCatalog(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("presets: [\n"), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("nameless preset", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nameless.yaml")
		require.NoError(t, os.WriteFile(path, []byte("presets:\n  - background: '#fff'\n"), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}
