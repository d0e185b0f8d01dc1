// Package render_test tests the line renderer.
package render_test

import (
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/video-service/internal/audio"
	"github.com/book-expert/video-service/internal/blink"
	"github.com/book-expert/video-service/internal/core"
	"github.com/book-expert/video-service/internal/frame"
	"github.com/book-expert/video-service/internal/pose"
	"github.com/book-expert/video-service/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRate = 8000

func newRenderer(t *testing.T, mutate func(*render.Config)) *render.Renderer {
	t.Helper()

	log, err := logger.New(t.TempDir(), "render-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	cfg := render.DefaultConfig()
	cfg.TargetHeight = 32
	cfg.FallbackWidth = 64
	cfg.FallbackHeight = 36

	if mutate != nil {
		mutate(&cfg)
	}

	renderer, err := render.NewRenderer(cfg, log)
	require.NoError(t, err)

	return renderer
}

func track(t *testing.T, value int16, seconds float64) *audio.Track {
	t.Helper()

	samples := make([]int16, int(seconds*testRate))
	for i := range samples {
		samples[i] = value
	}

	tr, err := audio.NewTrack(samples, testRate)
	require.NoError(t, err)

	return tr
}

func poseImages(t *testing.T, keys ...pose.Key) pose.Paths {
	t.Helper()

	dir := t.TempDir()
	paths := pose.Paths{}

	for _, key := range keys {
		path := filepath.Join(dir, key.Name()+".png")
		file, err := os.Create(path)
		require.NoError(t, err)

		fill := color.RGBA{R: uint8(key+1) * 50, G: 10, B: 10, A: 255}
		require.NoError(t, png.Encode(file, frame.Solid(48, 32, fill)))
		require.NoError(t, file.Close())

		paths[key] = path
	}

	return paths
}

func TestRenderLine_OnlyDefaultPoseUsedThroughout(t *testing.T) {
	t.Parallel()

	renderer := newRenderer(t, nil)
	paths := poseImages(t, pose.EyesOpenMouthClosed)
	tr := track(t, 16000, 7.0)

	clip, err := renderer.RenderLine(0, render.Line{CharacterID: "A", Text: "hello"}, tr, paths)
	require.NoError(t, err)

	assert.Equal(t, tr.Duration(), clip.Duration)
	assert.Same(t, tr, clip.Audio)
	assert.False(t, clip.Fallback)

	first := clip.FrameAt(0)
	for i := range clip.FrameCount() {
		assert.Same(t, first, clip.FrameAt(float64(i)/float64(clip.FrameRate)))
	}
}

func TestRenderLine_MouthFollowsAmplitude(t *testing.T) {
	t.Parallel()

	// Blinks never happen inside a one second line with the default gaps.
	renderer := newRenderer(t, nil)
	paths := poseImages(t, pose.Keys()...)

	loud, err := renderer.RenderLine(0, render.Line{CharacterID: "A"}, track(t, 16000, 1.0), paths)
	require.NoError(t, err)

	quiet, err := renderer.RenderLine(1, render.Line{CharacterID: "A"}, track(t, 0, 1.0), paths)
	require.NoError(t, err)

	assert.NotEqual(t, loud.FrameAt(0.5).Pix, quiet.FrameAt(0.5).Pix)
	assert.Equal(t, quiet.FrameAt(0.1).Pix, quiet.FrameAt(0.9).Pix)
}

func TestRenderLine_BlinkClosesEyes(t *testing.T) {
	t.Parallel()

	renderer := newRenderer(t, func(cfg *render.Config) {
		cfg.Blink = blink.Config{MinGap: 1.0, MaxGap: 1.0, BlinkDuration: 0.15}
	})
	paths := poseImages(t, pose.Keys()...)

	clip, err := renderer.RenderLine(0, render.Line{CharacterID: "A"}, track(t, 0, 2.0), paths)
	require.NoError(t, err)

	open := clip.FrameAt(0.5)
	closed := clip.FrameAt(1.05)
	assert.NotEqual(t, open.Pix, closed.Pix)
	assert.Equal(t, open.Pix, clip.FrameAt(1.5).Pix)
}

func TestRenderLine_FallbackWithoutCharacter(t *testing.T) {
	t.Parallel()

	renderer := newRenderer(t, nil)
	tr := track(t, 16000, 0.5)

	clip, err := renderer.RenderLine(3, render.Line{Text: "narration"}, tr, nil)
	require.NoError(t, err)

	assert.True(t, clip.Fallback)
	assert.Equal(t, 64, clip.Width)
	assert.Equal(t, 36, clip.Height)
	assert.Equal(t, 3, clip.Index)
	assert.Equal(t, color.RGBA{A: 255}, clip.FrameAt(0.2).RGBAAt(0, 0))
	assert.Equal(t, 12, clip.FrameCount())
}

func TestRenderLine_DimensionMismatchIsFatal(t *testing.T) {
	t.Parallel()

	renderer := newRenderer(t, nil)
	dir := t.TempDir()

	wide := filepath.Join(dir, "01.png")
	file, err := os.Create(wide)
	require.NoError(t, err)
	require.NoError(t, png.Encode(file, frame.Solid(96, 32, color.White)))
	require.NoError(t, file.Close())

	paths := poseImages(t, pose.EyesOpenMouthClosed)
	paths[pose.EyesOpenMouthOpen] = wide

	_, err = renderer.RenderLine(0, render.Line{CharacterID: "A"}, track(t, 0, 0.5), paths)
	require.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestRenderLine_NilTrack(t *testing.T) {
	t.Parallel()

	_, err := newRenderer(t, nil).RenderLine(0, render.Line{}, nil, nil)
	require.ErrorIs(t, err, render.ErrNoAudio)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*render.Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*render.Config) {}, wantErr: false},
		{name: "zero fps", mutate: func(c *render.Config) { c.FrameRate = 0 }, wantErr: true},
		{name: "odd fallback", mutate: func(c *render.Config) { c.FallbackWidth = 1279 }, wantErr: true},
		{name: "bad colour", mutate: func(c *render.Config) { c.FallbackColor = "black" }, wantErr: true},
		{name: "bad blink", mutate: func(c *render.Config) { c.Blink.MinGap = 0.1 }, wantErr: true},
		{name: "negative threshold", mutate: func(c *render.Config) { c.VolumeThreshold = -1 }, wantErr: true},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			cfg := render.DefaultConfig()
			testCase.mutate(&cfg)

			err := cfg.Validate()
			if testCase.wantErr {
				require.ErrorIs(t, err, render.ErrInvalidConfig)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestParseHexColor(t *testing.T) {
	t.Parallel()

	got, err := render.ParseHexColor("#1a2B3c")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0x1a, G: 0x2b, B: 0x3c, A: 0xff}, got)

	_, err = render.ParseHexColor("#12345")
	require.Error(t, err)
}
