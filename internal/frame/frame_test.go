// Package frame_test tests the pose buffer cache.
package frame_test

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/video-service/internal/core"
	"github.com/book-expert/video-service/internal/frame"
	"github.com/book-expert/video-service/internal/pose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "frame-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func writePNG(t *testing.T, dir, name string, width, height int, fill color.Color) string {
	t.Helper()

	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	require.NoError(t, err)

	defer file.Close()

	require.NoError(t, png.Encode(file, frame.Solid(width, height, fill)))

	return path
}

func TestNormalize_EvenDimensions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		width        int
		height       int
		targetHeight int
		wantWidth    int
		wantHeight   int
	}{
		{name: "already even", width: 200, height: 100, targetHeight: 50, wantWidth: 100, wantHeight: 50},
		{name: "odd width truncated", width: 101, height: 100, targetHeight: 100, wantWidth: 100, wantHeight: 100},
		{name: "odd target height truncated", width: 100, height: 100, targetHeight: 75, wantWidth: 74, wantHeight: 74},
		{name: "upscale", width: 16, height: 9, targetHeight: 720, wantWidth: 1280, wantHeight: 720},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			src := frame.Solid(testCase.width, testCase.height, color.White)

			got, err := frame.Normalize(src, testCase.targetHeight)
			require.NoError(t, err)
			assert.Equal(t, testCase.wantWidth, got.Bounds().Dx())
			assert.Equal(t, testCase.wantHeight, got.Bounds().Dy())
			assert.Zero(t, got.Bounds().Dx()%2)
			assert.Zero(t, got.Bounds().Dy()%2)
		})
	}
}

func TestNormalize_InvalidHeight(t *testing.T) {
	t.Parallel()

	_, err := frame.Normalize(frame.Solid(10, 10, color.Black), 1)
	require.ErrorIs(t, err, frame.ErrInvalidHeight)
}

func TestBuild_AllPosesShareDimensions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	paths := pose.Paths{}

	for _, key := range pose.Keys() {
		paths[key] = writePNG(t, dir, key.Name()+".png", 64, 48, color.RGBA{R: uint8(key) * 60, A: 255})
	}

	set, err := frame.Build(paths, 24, newTestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 32, set.Width())
	assert.Equal(t, 24, set.Height())

	for _, key := range pose.Keys() {
		buffer := set.Frame(key)
		assert.Equal(t, set.Width(), buffer.Bounds().Dx())
		assert.Equal(t, set.Height(), buffer.Bounds().Dy())
	}

	assert.NotEqual(t, set.Frame(pose.EyesOpenMouthClosed).Pix, set.Frame(pose.EyesClosedMouthOpen).Pix)
}

func TestBuild_OnlyDefaultPoseFillsAll(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	paths := pose.Paths{pose.EyesOpenMouthClosed: writePNG(t, dir, "00.png", 40, 40, color.White)}

	set, err := frame.Build(paths, 20, newTestLogger(t))
	require.NoError(t, err)

	base := set.Frame(pose.EyesOpenMouthClosed)
	for _, key := range pose.Keys() {
		assert.Same(t, base, set.Frame(key))
	}
}

func TestBuild_UnreadableImageDegrades(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	broken := filepath.Join(dir, "01.png")
	require.NoError(t, os.WriteFile(broken, []byte("not an image"), 0o600))

	paths := pose.Paths{
		pose.EyesOpenMouthClosed: writePNG(t, dir, "00.png", 40, 40, color.White),
		pose.EyesOpenMouthOpen:   broken,
	}

	set, err := frame.Build(paths, 20, newTestLogger(t))
	require.NoError(t, err)
	assert.Same(t, set.Frame(pose.EyesOpenMouthClosed), set.Frame(pose.EyesOpenMouthOpen))
}

func TestBuild_NoPoses(t *testing.T) {
	t.Parallel()

	_, err := frame.Build(pose.Paths{}, 20, newTestLogger(t))
	require.ErrorIs(t, err, frame.ErrNoPoses)

	_, err = frame.Build(pose.Paths{pose.EyesOpenMouthClosed: "/does/not/exist.png"}, 20, newTestLogger(t))
	require.ErrorIs(t, err, frame.ErrNoPoses)
}

func TestBuild_DimensionMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	paths := pose.Paths{
		pose.EyesOpenMouthClosed: writePNG(t, dir, "00.png", 40, 40, color.White),
		pose.EyesOpenMouthOpen:   writePNG(t, dir, "01.png", 80, 40, color.White),
	}

	_, err := frame.Build(paths, 20, newTestLogger(t))
	require.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestSolid(t *testing.T) {
	t.Parallel()

	buffer := frame.Solid(4, 2, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	assert.Equal(t, image.Rect(0, 0, 4, 2), buffer.Bounds())
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 255}, buffer.RGBAAt(3, 1))
}
