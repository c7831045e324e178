// Copyright (C) 2026 ClipForge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package presets holds the style preset catalog: named visual style
// bundles a caller can select by name in generation preferences. The
// built-in defaults are always available; an optional YAML file merges
// over them (same name wins).
package presets

import (
	"fmt"
	"os"
	"sort"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Preset is one named style bundle forwarded to the scripting and
// code-generation stages.
type Preset struct {
	Name       string `yaml:"name" json:"name"`
	Background string `yaml:"background" json:"background"`
	TextColor  string `yaml:"text_color" json:"text_color"`
	Font       string `yaml:"font" json:"font"`
	FontSize   int    `yaml:"font_size" json:"font_size"`
	Pacing     string `yaml:"pacing" json:"pacing"` // "calm", "standard", "fast"
}

// Catalog is an immutable-after-load preset lookup.
type Catalog struct {
	presets map[string]Preset
}

func builtins() []Preset {
	return []Preset{
		{Name: "minimal", Background: "#ffffff", TextColor: "#111111", Font: "Inter", FontSize: 48, Pacing: "calm"},
		{Name: "bold", Background: "#0b0b0f", TextColor: "#fafafa", Font: "Archivo Black", FontSize: 64, Pacing: "fast"},
		{Name: "playful", Background: "#fff7e6", TextColor: "#1f2937", Font: "Nunito", FontSize: 52, Pacing: "standard"},
	}
}

type catalogFile struct {
	Presets []Preset `yaml:"presets"`
}

// Load builds the catalog from the built-ins plus the optional YAML
// file at path. An empty path means built-ins only.
func Load(path string) (*Catalog, error) {
	presets := lo.SliceToMap(builtins(), func(p Preset) (string, Preset) {
		return p.Name, p
	})

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read preset catalog %s: %w", path, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse preset catalog %s: %w", path, err)
		}
		for _, p := range file.Presets {
			if p.Name == "" {
				return nil, fmt.Errorf("preset catalog %s: preset without a name", path)
			}
			presets[p.Name] = p
		}
	}

	return &Catalog{presets: presets}, nil
}

// Get looks up a preset by name.
func (c *Catalog) Get(name string) (Preset, bool) {
	p, ok := c.presets[name]
	return p, ok
}

// Names lists the known preset names, sorted.
func (c *Catalog) Names() []string {
	names := lo.Keys(c.presets)
	sort.Strings(names)
	return names
}
