// Package render builds the audio-visual clip for a single dialogue line.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/book-expert/logger"
	"github.com/book-expert/video-service/internal/audio"
	"github.com/book-expert/video-service/internal/blink"
	"github.com/book-expert/video-service/internal/frame"
	"github.com/book-expert/video-service/internal/pose"
)

// Defaults for a render configuration.
const (
	DefaultFrameRate       = 24
	DefaultVolumeThreshold = 0.01
	DefaultTargetHeight    = 720
	DefaultFallbackWidth   = 1280
	DefaultFallbackHeight  = 720
)

const logFmtFallback = "Line %d: no usable pose images for character %q, rendering fallback frame"

var (
	// ErrInvalidConfig is returned when the render configuration is unusable.
	ErrInvalidConfig = errors.New("invalid render configuration")
	// ErrNoAudio is returned when a line is rendered without an audio track.
	ErrNoAudio = errors.New("line has no audio track")
)

// Config tunes the line renderer.
type Config struct {
	FrameRate       int          `toml:"frame_rate"`
	VolumeThreshold float64      `toml:"volume_threshold"`
	TargetHeight    int          `toml:"target_height"`
	FallbackWidth   int          `toml:"fallback_width"`
	FallbackHeight  int          `toml:"fallback_height"`
	FallbackColor   string       `toml:"fallback_color"`
	Seed            uint64       `toml:"seed"`
	Blink           blink.Config `toml:"blink"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		FrameRate:       DefaultFrameRate,
		VolumeThreshold: DefaultVolumeThreshold,
		TargetHeight:    DefaultTargetHeight,
		FallbackWidth:   DefaultFallbackWidth,
		FallbackHeight:  DefaultFallbackHeight,
		FallbackColor:   "#000000",
		Seed:            0,
		Blink:           blink.DefaultConfig(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.FrameRate <= 0 {
		return fmt.Errorf("%w: frame rate must be positive, got %d", ErrInvalidConfig, c.FrameRate)
	}

	if c.VolumeThreshold < 0 {
		return fmt.Errorf("%w: volume threshold must not be negative", ErrInvalidConfig)
	}

	if c.TargetHeight < 2 {
		return fmt.Errorf("%w: target height must be at least 2, got %d", ErrInvalidConfig, c.TargetHeight)
	}

	if c.FallbackWidth < 2 || c.FallbackHeight < 2 || c.FallbackWidth%2 != 0 || c.FallbackHeight%2 != 0 {
		return fmt.Errorf("%w: fallback size %dx%d must be even and positive",
			ErrInvalidConfig, c.FallbackWidth, c.FallbackHeight)
	}

	_, colorErr := ParseHexColor(c.FallbackColor)
	if colorErr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, colorErr)
	}

	blinkErr := c.Blink.Validate()
	if blinkErr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, blinkErr)
	}

	return nil
}

// Line is the part of a dialogue line the renderer needs.
type Line struct {
	CharacterID string
	Text        string
}

// Clip is one rendered line. FrameAt is safe for concurrent use and has no side
// effects; the returned buffers must be treated as read-only.
type Clip struct {
	Index     int
	Width     int
	Height    int
	FrameRate int
	Duration  float64
	Audio     *audio.Track
	Fallback  bool

	frameAt func(ts float64) *image.RGBA
}

// FrameAt returns the frame shown at ts seconds into the clip.
func (c *Clip) FrameAt(ts float64) *image.RGBA {
	return c.frameAt(ts)
}

// FrameCount is the number of frames needed to cover the clip's duration.
func (c *Clip) FrameCount() int {
	return int(math.Ceil(c.Duration * float64(c.FrameRate)))
}

// Release drops the clip's audio once it has been encoded.
func (c *Clip) Release() {
	if c.Audio != nil {
		c.Audio.Release()
	}
}

// Renderer turns a line, its audio and its pose images into a Clip.
type Renderer struct {
	cfg      Config
	fallback *image.RGBA
	log      *logger.Logger
}

// NewRenderer validates cfg and prepares the shared fallback frame.
func NewRenderer(cfg Config, log *logger.Logger) (*Renderer, error) {
	validationErr := cfg.Validate()
	if validationErr != nil {
		return nil, validationErr
	}

	fill, _ := ParseHexColor(cfg.FallbackColor)

	return &Renderer{
		cfg:      cfg,
		fallback: frame.Solid(cfg.FallbackWidth, cfg.FallbackHeight, fill),
		log:      log,
	}, nil
}

// RenderLine builds the clip for the line at index. The blink schedule and pose
// buffers are computed once here; the clip's frame function only reads them.
func (r *Renderer) RenderLine(index int, line Line, track *audio.Track, paths pose.Paths) (*Clip, error) {
	if track == nil {
		return nil, fmt.Errorf("line %d: %w", index, ErrNoAudio)
	}

	duration := track.Duration()
	clip := &Clip{
		Index:     index,
		FrameRate: r.cfg.FrameRate,
		Duration:  duration,
		Audio:     track,
	}

	set, buildErr := frame.Build(paths, r.cfg.TargetHeight, r.log)
	if errors.Is(buildErr, frame.ErrNoPoses) {
		r.log.Warn(logFmtFallback, index, line.CharacterID)

		fallback := r.fallback
		clip.Width = fallback.Bounds().Dx()
		clip.Height = fallback.Bounds().Dy()
		clip.Fallback = true
		clip.frameAt = func(float64) *image.RGBA { return fallback }

		return clip, nil
	}

	if buildErr != nil {
		return nil, fmt.Errorf("failed to build poses for line %d: %w", index, buildErr)
	}

	rng := blink.NewRand(r.cfg.Seed, uint64(index))
	schedule := blink.Generate(r.cfg.Blink, duration, rng)
	threshold := r.cfg.VolumeThreshold

	clip.Width = set.Width()
	clip.Height = set.Height()
	clip.frameAt = func(ts float64) *image.RGBA {
		mouthOpen := track.AmplitudeAt(ts) > threshold
		eyesClosed := schedule.Contains(ts)

		return set.Frame(pose.Select(mouthOpen, eyesClosed))
	}

	return clip, nil
}

// ParseHexColor parses "#rrggbb" into an opaque colour.
func ParseHexColor(value string) (color.RGBA, error) {
	var red, green, blue uint8

	if len(value) != 7 || value[0] != '#' {
		return color.RGBA{}, fmt.Errorf("invalid colour %q, expected #rrggbb", value)
	}

	_, scanErr := fmt.Sscanf(value, "#%02x%02x%02x", &red, &green, &blue)
	if scanErr != nil {
		return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", value, scanErr)
	}

	return color.RGBA{R: red, G: green, B: blue, A: 255}, nil
}
