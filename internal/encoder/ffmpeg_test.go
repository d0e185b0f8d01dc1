// Package encoder_test tests the ffmpeg encoder adapter.
package encoder_test

import (
	"bytes"
	"context"
	"image"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/video-service/internal/audio"
	"github.com/book-expert/video-service/internal/core"
	"github.com/book-expert/video-service/internal/encoder"
	"github.com/book-expert/video-service/internal/pose"
	"github.com/book-expert/video-service/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRate = 16000

func newTestEncoder(t *testing.T) *encoder.FFmpeg {
	t.Helper()

	log, err := logger.New(t.TempDir(), "encoder-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return encoder.New(encoder.Config{}, log)
}

func fallbackClip(t *testing.T, index, width, height int, seconds float64) *render.Clip {
	t.Helper()

	log, err := logger.New(t.TempDir(), "clip.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	cfg := render.DefaultConfig()
	cfg.FallbackWidth = width
	cfg.FallbackHeight = height

	renderer, err := render.NewRenderer(cfg, log)
	require.NoError(t, err)

	track, err := audio.NewTrack(make([]int16, int(seconds*testRate)), testRate)
	require.NoError(t, err)

	clip, err := renderer.RenderLine(index, render.Line{}, track, pose.Paths{})
	require.NoError(t, err)

	return clip
}

func TestCanvas_UsesLargestDimensions(t *testing.T) {
	t.Parallel()

	clips := []*render.Clip{
		{Width: 640, Height: 720},
		{Width: 1280, Height: 480},
	}

	assert.Equal(t, image.Pt(1280, 720), encoder.Canvas(clips))
}

func TestSegmentArgs(t *testing.T) {
	t.Parallel()

	clip := fallbackClip(t, 2, 64, 36, 1.5)
	args := newTestEncoder(t).SegmentArgs(clip, image.Pt(128, 72), "/tmp/a.pcm", "/tmp/s.ts")
	joined := " " + strings.Join(args, " ") + " "

	assert.Contains(t, joined, " -f rawvideo -pix_fmt rgba -s 64x36 -r 24 -i pipe:0 ")
	assert.Contains(t, joined, " -f s16le -ar 16000 -ac 1 -i /tmp/a.pcm ")
	assert.Contains(t, joined, " -vf pad=128:72:(ow-iw)/2:(oh-ih)/2:color=black,format=yuv420p ")
	assert.Contains(t, joined, " -c:v libx264 ")
	assert.Contains(t, joined, " -c:a aac ")
	assert.Contains(t, joined, " -t 1.500000 ")
	assert.Equal(t, "/tmp/s.ts", args[len(args)-1])
}

func TestConcatArgsAndList(t *testing.T) {
	t.Parallel()

	args := newTestEncoder(t).ConcatArgs("/w/list.txt", "/out/final.mp4")
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-f concat -safe 0 -i /w/list.txt -c copy")
	assert.Contains(t, joined, "-movflags +faststart -f mp4 /out/final.mp4")

	list := encoder.ConcatList([]string{"/w/a.ts", "/w/it's.ts"})
	assert.Equal(t, "file '/w/a.ts'\nfile '/w/it'\\''s.ts'\n", list)
}

func TestWriteFrames_WritesEveryFrame(t *testing.T) {
	t.Parallel()

	clip := fallbackClip(t, 0, 8, 4, 0.5)

	var buffer bytes.Buffer
	require.NoError(t, encoder.WriteFrames(&buffer, clip))
	assert.Equal(t, clip.FrameCount()*8*4*4, buffer.Len())
}

func TestEncode_NoClips(t *testing.T) {
	t.Parallel()

	err := newTestEncoder(t).Encode(context.Background(), nil, filepath.Join(t.TempDir(), "out.mp4"))
	require.ErrorIs(t, err, core.ErrEncoding)
	require.ErrorIs(t, err, encoder.ErrNoClips)
}

func TestParseProbe(t *testing.T) {
	t.Parallel()

	data := []byte(`{"streams":[{"codec_type":"video","codec_name":"h264","width":1280,"height":720},` +
		`{"codec_type":"audio","codec_name":"aac"}],"format":{"duration":"5.013000"}}`)

	result, err := encoder.ParseProbe(data)
	require.NoError(t, err)
	assert.InDelta(t, 5.013, result.Duration, 1e-9)
	assert.Equal(t, "h264", result.VideoCodec)
	assert.Equal(t, "aac", result.AudioCodec)
	assert.Equal(t, 1280, result.Width)

	_, err = encoder.ParseProbe([]byte(`{"format":{"duration":"n/a"}}`))
	require.Error(t, err)
}

func TestEncode_TwoClipsEndToEnd(t *testing.T) {
	t.Parallel()

	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}

	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}

	enc := newTestEncoder(t)
	clips := []*render.Clip{
		fallbackClip(t, 0, 64, 36, 2.0),
		fallbackClip(t, 1, 32, 18, 3.0),
	}
	output := filepath.Join(t.TempDir(), "out.mp4")

	require.NoError(t, enc.Encode(context.Background(), clips, output))

	result, err := enc.Probe(context.Background(), output)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, result.Duration, 1.0/24+0.05)
	assert.Equal(t, 64, result.Width)
	assert.Equal(t, 36, result.Height)
}
