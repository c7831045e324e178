// Copyright (C) 2026 ClipForge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// threeSceneScript returns a valid contiguous script: 0..90, 90..240, 240..300.
func threeSceneScript() *VideoScript {
	return &VideoScript{
		TotalDurationFrames: 300,
		Scenes: []Scene{
			{ID: "intro", Type: SceneIntro, StartFrame: 0, EndFrame: 90},
			{ID: "feature", Type: SceneFeature, StartFrame: 90, EndFrame: 240},
			{ID: "cta", Type: SceneCTA, StartFrame: 240, EndFrame: 300},
		},
	}
}

func TestVideoScriptValidate(t *testing.T) {
	t.Run("valid script passes", func(t *testing.T) {
		vs := threeSceneScript()
		assert.NoError(t, vs.Validate())
	})

	t.Run("empty script with zero duration passes", func(t *testing.T) {
		vs := &VideoScript{}
		assert.NoError(t, vs.Validate())
	})

	t.Run("empty script with nonzero duration fails", func(t *testing.T) {
		vs := &VideoScript{TotalDurationFrames: 100}
		assert.Error(t, vs.Validate())
	})

	t.Run("first scene must start at zero", func(t *testing.T) {
		vs := threeSceneScript()
		vs.Scenes[0].StartFrame = 10
		assert.Error(t, vs.Validate())
	})

	t.Run("gap between scenes fails", func(t *testing.T) {
		vs := threeSceneScript()
		vs.Scenes[1].StartFrame = 100 // previous ends at 90
		assert.Error(t, vs.Validate())
	})

	t.Run("overlap between scenes fails", func(t *testing.T) {
		vs := threeSceneScript()
		vs.Scenes[1].StartFrame = 80
		assert.Error(t, vs.Validate())
	})

	t.Run("non-positive scene duration fails", func(t *testing.T) {
		vs := threeSceneScript()
		vs.Scenes[2].EndFrame = vs.Scenes[2].StartFrame
		assert.Error(t, vs.Validate())
	})

	t.Run("total duration must match last scene end", func(t *testing.T) {
		vs := threeSceneScript()
		vs.TotalDurationFrames = 999
		assert.Error(t, vs.Validate())
	})
}

func TestVideoScriptNormalize(t *testing.T) {
	t.Run("preserves durations while restoring contiguity", func(t *testing.T) {
		vs := &VideoScript{
			Scenes: []Scene{
				{ID: "a", StartFrame: 5, EndFrame: 95},    // 90 frames
				{ID: "b", StartFrame: 200, EndFrame: 350}, // 150 frames
				{ID: "c", StartFrame: 0, EndFrame: 60},    // 60 frames
			},
		}
		vs.Normalize()

		require.NoError(t, vs.Validate())
		assert.Equal(t, 0, vs.Scenes[0].StartFrame)
		assert.Equal(t, 90, vs.Scenes[0].EndFrame)
		assert.Equal(t, 90, vs.Scenes[1].StartFrame)
		assert.Equal(t, 240, vs.Scenes[1].EndFrame)
		assert.Equal(t, 240, vs.Scenes[2].StartFrame)
		assert.Equal(t, 300, vs.Scenes[2].EndFrame)
		assert.Equal(t, 300, vs.TotalDurationFrames)
	})

	t.Run("clamps non-positive durations to one frame", func(t *testing.T) {
		vs := &VideoScript{
			Scenes: []Scene{
				{ID: "a", StartFrame: 0, EndFrame: 0},
				{ID: "b", StartFrame: 10, EndFrame: 5},
			},
		}
		vs.Normalize()

		require.NoError(t, vs.Validate())
		assert.Equal(t, 1, vs.Scenes[0].Duration())
		assert.Equal(t, 1, vs.Scenes[1].Duration())
		assert.Equal(t, 2, vs.TotalDurationFrames)
	})

	t.Run("idempotent on valid scripts", func(t *testing.T) {
		vs := threeSceneScript()
		before := *vs
		vs.Normalize()
		assert.Equal(t, before.TotalDurationFrames, vs.TotalDurationFrames)
		assert.Equal(t, before.Scenes, vs.Scenes)
	})
}

func TestVideoScriptSceneOps(t *testing.T) {
	t.Run("SetSceneDuration shifts later scenes", func(t *testing.T) {
		vs := threeSceneScript()
		require.NoError(t, vs.SetSceneDuration("intro", 120))

		require.NoError(t, vs.Validate())
		assert.Equal(t, 120, vs.Scenes[0].EndFrame)
		assert.Equal(t, 120, vs.Scenes[1].StartFrame)
		assert.Equal(t, 330, vs.TotalDurationFrames)
	})

	t.Run("SetSceneDuration rejects zero frames", func(t *testing.T) {
		vs := threeSceneScript()
		assert.Error(t, vs.SetSceneDuration("intro", 0))
	})

	t.Run("SetSceneDuration unknown id", func(t *testing.T) {
		vs := threeSceneScript()
		assert.Error(t, vs.SetSceneDuration("nope", 30))
	})

	t.Run("MoveScene to front", func(t *testing.T) {
		vs := threeSceneScript()
		require.NoError(t, vs.MoveScene("cta", 0))

		require.NoError(t, vs.Validate())
		assert.Equal(t, "cta", vs.Scenes[0].ID)
		assert.Equal(t, 60, vs.Scenes[0].Duration())
		assert.Equal(t, 300, vs.TotalDurationFrames)
	})

	t.Run("MoveScene out of range", func(t *testing.T) {
		vs := threeSceneScript()
		assert.Error(t, vs.MoveScene("cta", 3))
		assert.Error(t, vs.MoveScene("cta", -1))
	})

	t.Run("InsertScene in the middle", func(t *testing.T) {
		vs := threeSceneScript()
		require.NoError(t, vs.InsertScene(1, Scene{ID: "shot", Type: SceneScreenshot, StartFrame: 0, EndFrame: 45}))

		require.NoError(t, vs.Validate())
		assert.Equal(t, "shot", vs.Scenes[1].ID)
		assert.Equal(t, 90, vs.Scenes[1].StartFrame)
		assert.Equal(t, 135, vs.Scenes[1].EndFrame)
		assert.Equal(t, 345, vs.TotalDurationFrames)
	})

	t.Run("RemoveScene closes the gap", func(t *testing.T) {
		vs := threeSceneScript()
		require.NoError(t, vs.RemoveScene("feature"))

		require.NoError(t, vs.Validate())
		assert.Len(t, vs.Scenes, 2)
		assert.Equal(t, 90, vs.Scenes[1].StartFrame)
		assert.Equal(t, 150, vs.TotalDurationFrames)
	})

	t.Run("RemoveScene unknown id", func(t *testing.T) {
		vs := threeSceneScript()
		assert.Error(t, vs.RemoveScene("nope"))
	})
}
