// Copyright (C) 2026 ClipForge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"fmt"

	"github.com/samber/lo"
)

// SceneType classifies what a scene shows.
type SceneType string

const (
	SceneIntro       SceneType = "intro"
	SceneFeature     SceneType = "feature"
	SceneTagline     SceneType = "tagline"
	SceneValueProp   SceneType = "value_prop"
	SceneScreenshot  SceneType = "screenshot"
	SceneTestimonial SceneType = "testimonial"
	SceneRecording   SceneType = "recording"
	SceneCTA         SceneType = "cta"
)

// Animation names the enter/exit transitions of a scene.
type Animation struct {
	Enter string `json:"enter,omitempty"`
	Exit  string `json:"exit,omitempty"`
}

// SceneStyle holds per-scene visual overrides.
type SceneStyle struct {
	Background string `json:"background,omitempty"`
	TextColor  string `json:"text_color,omitempty"`
	FontSize   int    `json:"font_size,omitempty"`
}

// Scene is one segment of the video timeline. Content is a free-form
// per-type payload (headline text, feature list, screenshot URL, ...).
type Scene struct {
	ID         string         `json:"id"`
	StartFrame int            `json:"start_frame"`
	EndFrame   int            `json:"end_frame"`
	Type       SceneType      `json:"type"`
	Content    map[string]any `json:"content,omitempty"`
	Animation  Animation      `json:"animation"`
	Style      SceneStyle     `json:"style"`
}

// Duration returns the scene length in frames.
func (sc Scene) Duration() int {
	return sc.EndFrame - sc.StartFrame
}

// VideoScript is the authored plan for the output video.
//
// Invariants: scenes are contiguous and sorted — the first scene starts
// at frame 0, each scene starts where the previous one ends, and
// TotalDurationFrames equals the last scene's end frame. Any edit that
// changes scene durations or order must call Normalize before the
// script is considered valid again.
type VideoScript struct {
	TotalDurationFrames int     `json:"total_duration_frames"`
	Scenes              []Scene `json:"scenes"`
}

// Normalize recomputes all frame ranges left to right, preserving each
// scene's duration, so the contiguity invariant holds again. Scenes
// with a non-positive duration are clamped to one frame.
func (vs *VideoScript) Normalize() {
	cursor := 0
	for i := range vs.Scenes {
		d := vs.Scenes[i].Duration()
		if d < 1 {
			d = 1
		}
		vs.Scenes[i].StartFrame = cursor
		vs.Scenes[i].EndFrame = cursor + d
		cursor += d
	}
	vs.TotalDurationFrames = cursor
}

// Validate checks the contiguity and ordering invariants.
func (vs *VideoScript) Validate() error {
	if len(vs.Scenes) == 0 {
		if vs.TotalDurationFrames != 0 {
			return fmt.Errorf("empty script must have zero duration, got %d", vs.TotalDurationFrames)
		}
		return nil
	}
	if vs.Scenes[0].StartFrame != 0 {
		return fmt.Errorf("first scene must start at frame 0, got %d", vs.Scenes[0].StartFrame)
	}
	for i, sc := range vs.Scenes {
		if sc.EndFrame <= sc.StartFrame {
			return fmt.Errorf("scene %q has non-positive duration (%d..%d)", sc.ID, sc.StartFrame, sc.EndFrame)
		}
		if i > 0 && sc.StartFrame != vs.Scenes[i-1].EndFrame {
			return fmt.Errorf("scene %q starts at %d but previous scene ends at %d", sc.ID, sc.StartFrame, vs.Scenes[i-1].EndFrame)
		}
	}
	if last := vs.Scenes[len(vs.Scenes)-1].EndFrame; vs.TotalDurationFrames != last {
		return fmt.Errorf("total duration %d does not match last scene end %d", vs.TotalDurationFrames, last)
	}
	return nil
}

// sceneIndex finds a scene position by ID.
func (vs *VideoScript) sceneIndex(id string) (int, error) {
	_, idx, found := lo.FindIndexOf(vs.Scenes, func(sc Scene) bool { return sc.ID == id })
	if !found {
		return 0, fmt.Errorf("no scene with id %q", id)
	}
	return idx, nil
}

// SetSceneDuration changes one scene's length and renormalizes the
// timeline.
func (vs *VideoScript) SetSceneDuration(id string, frames int) error {
	if frames < 1 {
		return fmt.Errorf("scene duration must be at least 1 frame, got %d", frames)
	}
	idx, err := vs.sceneIndex(id)
	if err != nil {
		return err
	}
	vs.Scenes[idx].EndFrame = vs.Scenes[idx].StartFrame + frames
	vs.Normalize()
	return nil
}

// MoveScene repositions a scene to a new index and renormalizes.
func (vs *VideoScript) MoveScene(id string, newIndex int) error {
	if newIndex < 0 || newIndex >= len(vs.Scenes) {
		return fmt.Errorf("index %d out of range [0,%d)", newIndex, len(vs.Scenes))
	}
	idx, err := vs.sceneIndex(id)
	if err != nil {
		return err
	}
	sc := vs.Scenes[idx]
	vs.Scenes = append(vs.Scenes[:idx], vs.Scenes[idx+1:]...)
	vs.Scenes = append(vs.Scenes[:newIndex], append([]Scene{sc}, vs.Scenes[newIndex:]...)...)
	vs.Normalize()
	return nil
}

// InsertScene adds a scene at the given index and renormalizes. The
// scene's frame range is taken only as a duration hint.
func (vs *VideoScript) InsertScene(index int, sc Scene) error {
	if index < 0 || index > len(vs.Scenes) {
		return fmt.Errorf("index %d out of range [0,%d]", index, len(vs.Scenes))
	}
	vs.Scenes = append(vs.Scenes[:index], append([]Scene{sc}, vs.Scenes[index:]...)...)
	vs.Normalize()
	return nil
}

// RemoveScene deletes a scene by ID and renormalizes.
func (vs *VideoScript) RemoveScene(id string) error {
	idx, err := vs.sceneIndex(id)
	if err != nil {
		return err
	}
	vs.Scenes = append(vs.Scenes[:idx], vs.Scenes[idx+1:]...)
	vs.Normalize()
	return nil
}
