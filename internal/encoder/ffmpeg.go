// Package encoder drives the ffmpeg and ffprobe binaries to turn rendered clips into
// a single H.264/AAC file.
package encoder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/video-service/internal/core"
	"github.com/book-expert/video-service/internal/render"
)

// Defaults for the encoder configuration.
const (
	DefaultFFmpegPath      = "ffmpeg"
	DefaultFFprobePath     = "ffprobe"
	DefaultVideoCodec      = "libx264"
	DefaultAudioCodec      = "aac"
	DefaultPixelFormat     = "yuv420p"
	DefaultPreset          = "veryfast"
	DefaultCRF             = 23
	DefaultAudioBitrate    = "192k"
	DefaultAudioSampleRate = 44100
	DefaultSegmentTimeout  = 10 * time.Minute
)

const (
	segmentNameFmt  = "segment_%04d.ts"
	audioNameFmt    = "segment_%04d.pcm"
	concatListName  = "segments.txt"
	maxStderrLength = 2048

	logFmtSegment = "Encoding clip %d: %dx%d, %d frames, %.2fs"
	logFmtConcat  = "Joining %d segments into %s"
)

var (
	// ErrNoClips is returned when Encode is called with nothing to encode.
	ErrNoClips = errors.New("no clips to encode")
	// ErrBinaryMissing is returned by Check when a required binary cannot be run.
	ErrBinaryMissing = errors.New("required binary not available")
)

// Config selects binaries and codec parameters.
type Config struct {
	FFmpegPath      string `toml:"ffmpeg_path"`
	FFprobePath     string `toml:"ffprobe_path"`
	VideoCodec      string `toml:"video_codec"`
	AudioCodec      string `toml:"audio_codec"`
	PixelFormat     string `toml:"pixel_format"`
	Preset          string `toml:"preset"`
	CRF             int    `toml:"crf"`
	AudioBitrate    string `toml:"audio_bitrate"`
	AudioSampleRate int    `toml:"audio_sample_rate"`
	SegmentTimeout  int    `toml:"segment_timeout_seconds"`
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	c.FFmpegPath = orDefault(c.FFmpegPath, DefaultFFmpegPath)
	c.FFprobePath = orDefault(c.FFprobePath, DefaultFFprobePath)
	c.VideoCodec = orDefault(c.VideoCodec, DefaultVideoCodec)
	c.AudioCodec = orDefault(c.AudioCodec, DefaultAudioCodec)
	c.PixelFormat = orDefault(c.PixelFormat, DefaultPixelFormat)
	c.Preset = orDefault(c.Preset, DefaultPreset)
	c.AudioBitrate = orDefault(c.AudioBitrate, DefaultAudioBitrate)

	if c.CRF == 0 {
		c.CRF = DefaultCRF
	}

	if c.AudioSampleRate == 0 {
		c.AudioSampleRate = DefaultAudioSampleRate
	}

	if c.SegmentTimeout == 0 {
		c.SegmentTimeout = int(DefaultSegmentTimeout.Seconds())
	}
}

// FFmpeg encodes clips by shelling out to ffmpeg.
type FFmpeg struct {
	cfg Config
	log *logger.Logger
}

// New creates an encoder; unset configuration fields take their defaults.
func New(cfg Config, log *logger.Logger) *FFmpeg {
	cfg.ApplyDefaults()

	return &FFmpeg{cfg: cfg, log: log}
}

// Canvas returns the output size: the largest clip width and height, so smaller
// clips are centred on a padded frame.
func Canvas(clips []*render.Clip) image.Point {
	var canvas image.Point

	for _, clip := range clips {
		canvas.X = max(canvas.X, clip.Width)
		canvas.Y = max(canvas.Y, clip.Height)
	}

	return canvas
}

// Encode writes clips, in order and with hard cuts, to outputPath as mp4. Each clip is
// encoded to its own segment trimmed to the clip's exact duration, then the segments are
// joined with stream copy. Intermediate files live next to outputPath and are removed.
func (f *FFmpeg) Encode(ctx context.Context, clips []*render.Clip, outputPath string) error {
	if len(clips) == 0 {
		return fmt.Errorf("%w: %w", core.ErrEncoding, ErrNoClips)
	}

	workDir, mkdirErr := os.MkdirTemp(filepath.Dir(outputPath), ".segments-")
	if mkdirErr != nil {
		return fmt.Errorf("%w: failed to create work dir: %w", core.ErrEncoding, mkdirErr)
	}

	defer func() {
		removeErr := os.RemoveAll(workDir)
		if removeErr != nil {
			f.log.Warn("Failed to remove encoder work dir '%s': %v", workDir, removeErr)
		}
	}()

	canvas := Canvas(clips)
	segments := make([]string, 0, len(clips))

	for position, clip := range clips {
		segmentPath := filepath.Join(workDir, fmt.Sprintf(segmentNameFmt, position))

		segmentErr := f.encodeSegment(ctx, clip, canvas, workDir, segmentPath)
		if segmentErr != nil {
			return &core.LineError{Index: clip.Index, Err: fmt.Errorf("%w: %w", core.ErrEncoding, segmentErr)}
		}

		segments = append(segments, segmentPath)
	}

	listPath := filepath.Join(workDir, concatListName)

	writeErr := os.WriteFile(listPath, []byte(ConcatList(segments)), 0o600)
	if writeErr != nil {
		return fmt.Errorf("%w: failed to write concat list: %w", core.ErrEncoding, writeErr)
	}

	f.log.Info(logFmtConcat, len(segments), outputPath)

	concatErr := f.run(ctx, f.ConcatArgs(listPath, outputPath), nil)
	if concatErr != nil {
		return fmt.Errorf("%w: failed to join segments: %w", core.ErrEncoding, concatErr)
	}

	return nil
}

func (f *FFmpeg) encodeSegment(
	ctx context.Context,
	clip *render.Clip,
	canvas image.Point,
	workDir, segmentPath string,
) error {
	if clip.Audio == nil {
		return render.ErrNoAudio
	}

	audioPath := filepath.Join(workDir, fmt.Sprintf(audioNameFmt, clip.Index))

	writeErr := os.WriteFile(audioPath, clip.Audio.PCM16(), 0o600)
	if writeErr != nil {
		return fmt.Errorf("failed to write segment audio: %w", writeErr)
	}

	defer os.Remove(audioPath)

	f.log.Info(logFmtSegment, clip.Index, clip.Width, clip.Height, clip.FrameCount(), clip.Duration)

	segmentCtx, cancel := context.WithTimeout(ctx, time.Duration(f.cfg.SegmentTimeout)*time.Second)
	defer cancel()

	frames, writer := io.Pipe()

	go func() {
		writer.CloseWithError(WriteFrames(writer, clip))
	}()

	runErr := f.run(segmentCtx, f.SegmentArgs(clip, canvas, audioPath, segmentPath), frames)
	_ = frames.Close()

	return runErr
}

// WriteFrames streams every frame of clip to w as raw RGBA, one frame per 1/fps seconds.
func WriteFrames(w io.Writer, clip *render.Clip) error {
	buffered := bufio.NewWriterSize(w, clip.Width*clip.Height*4)

	for index := range clip.FrameCount() {
		buffer := clip.FrameAt(float64(index) / float64(clip.FrameRate))

		_, writeErr := buffered.Write(buffer.Pix)
		if writeErr != nil {
			return fmt.Errorf("failed to write frame %d: %w", index, writeErr)
		}
	}

	return buffered.Flush()
}

// SegmentArgs builds the ffmpeg arguments for one clip: raw frames on stdin, PCM audio
// from audioPath, padded to canvas and cut to the clip duration.
func (f *FFmpeg) SegmentArgs(clip *render.Clip, canvas image.Point, audioPath, segmentPath string) []string {
	filter := fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black,format=%s",
		canvas.X, canvas.Y, f.cfg.PixelFormat)

	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "rawvideo", "-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", clip.Width, clip.Height),
		"-r", strconv.Itoa(clip.FrameRate),
		"-i", "pipe:0",
		"-f", "s16le", "-ar", strconv.Itoa(clip.Audio.SampleRate()), "-ac", "1",
		"-i", audioPath,
		"-map", "0:v:0", "-map", "1:a:0",
		"-vf", filter,
		"-c:v", f.cfg.VideoCodec, "-preset", f.cfg.Preset, "-crf", strconv.Itoa(f.cfg.CRF),
		"-c:a", f.cfg.AudioCodec, "-b:a", f.cfg.AudioBitrate,
		"-ar", strconv.Itoa(f.cfg.AudioSampleRate), "-ac", "2",
		"-t", strconv.FormatFloat(clip.Duration, 'f', 6, 64),
		"-f", "mpegts", segmentPath,
	}
}

// ConcatArgs builds the ffmpeg arguments that join the listed segments without
// re-encoding.
func (f *FFmpeg) ConcatArgs(listPath, outputPath string) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-c", "copy", "-bsf:a", "aac_adtstoasc",
		"-movflags", "+faststart",
		"-f", "mp4", outputPath,
	}
}

// ConcatList renders the concat demuxer input for the given segment files.
func ConcatList(segments []string) string {
	var builder strings.Builder

	for _, segment := range segments {
		escaped := strings.ReplaceAll(segment, "'", `'\''`)
		builder.WriteString("file '" + escaped + "'\n")
	}

	return builder.String()
}

// Check verifies that ffmpeg and ffprobe can be executed.
func (f *FFmpeg) Check(ctx context.Context) error {
	for _, binary := range []string{f.cfg.FFmpegPath, f.cfg.FFprobePath} {
		var output bytes.Buffer

		cmd := exec.CommandContext(ctx, binary, "-version")
		cmd.Stdout = &output
		cmd.Stderr = &output

		runErr := cmd.Run()
		if runErr != nil {
			return fmt.Errorf("%w: %s: %w", ErrBinaryMissing, binary, runErr)
		}
	}

	return nil
}

func (f *FFmpeg) run(ctx context.Context, args []string, stdin io.Reader) error {
	var stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, f.cfg.FFmpegPath, args...)
	cmd.Stdin = stdin
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("ffmpeg interrupted: %w", ctxErr)
	}

	message := strings.TrimSpace(stderr.String())
	if len(message) > maxStderrLength {
		message = message[len(message)-maxStderrLength:]
	}

	return fmt.Errorf("ffmpeg failed: %w: %s", runErr, message)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}
