// Package config provides the configuration structure for the video-service.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/book-expert/video-service/internal/audio"
	"github.com/book-expert/video-service/internal/encoder"
	"github.com/book-expert/video-service/internal/fsutil"
	"github.com/book-expert/video-service/internal/render"
	"github.com/book-expert/video-service/internal/timeline"
	"github.com/book-expert/video-service/internal/tts"
	"github.com/pelletier/go-toml/v2"
)

// Defaults for the service surfaces.
const (
	DefaultNATSURL                = "nats://127.0.0.1:4222"
	DefaultRenderRequestedSubject = "render.requested"
	DefaultScriptBucket           = "SCRIPTS"
	DefaultVideoBucket            = "VIDEOS"
	DefaultJobTimeoutSeconds      = 1800
	DefaultLogsDir                = "logs"
	DefaultCharactersDir          = "characters"
	DefaultOutputDir              = "output"
	DefaultJobsDBName             = "jobs.db"
	DefaultSweepAgeSeconds        = 3600
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `toml:"url"`
	RenderRequestedSubject string `toml:"render_requested_subject"`
	ScriptObjectBucket     string `toml:"script_object_store_bucket"`
	VideoObjectBucket      string `toml:"video_object_store_bucket"`
	JobTimeoutSeconds      int    `toml:"job_timeout_seconds"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir     string `toml:"base_logs_dir"`
	CharactersDir   string `toml:"characters_dir"`
	JobsDB          string `toml:"jobs_db"`
	SweepAgeSeconds int    `toml:"sweep_age_seconds"`
}

// Config is the root configuration structure.
type Config struct {
	NATS     NATSConfig          `toml:"nats"`
	TTS      tts.Config          `toml:"tts"`
	Audio    audio.DecodeOptions `toml:"audio"`
	Render   render.Config       `toml:"render"`
	Timeline timeline.Config     `toml:"timeline"`
	Encoder  encoder.Config      `toml:"encoder"`
	Paths    PathsConfig         `toml:"paths"`
}

// Default returns a fully defaulted configuration.
func Default() *Config {
	cfg := &Config{Render: render.DefaultConfig(), Audio: audio.NewDefaultOptions()}
	cfg.ApplyDefaults()

	return cfg
}

// Load loads the configuration for the video-service.
func Load(log *logger.Logger) (*Config, error) {
	cfg := Config{Render: render.DefaultConfig(), Audio: audio.NewDefaultOptions()}

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// LoadFile reads a project TOML file. Keys it does not set keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, readErr)
	}

	cfg := Config{Render: render.DefaultConfig(), Audio: audio.NewDefaultOptions()}

	decodeErr := toml.Unmarshal(data, &cfg)
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, decodeErr)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	c.NATS.URL = orDefault(c.NATS.URL, DefaultNATSURL)
	c.NATS.RenderRequestedSubject = orDefault(c.NATS.RenderRequestedSubject, DefaultRenderRequestedSubject)
	c.NATS.ScriptObjectBucket = orDefault(c.NATS.ScriptObjectBucket, DefaultScriptBucket)
	c.NATS.VideoObjectBucket = orDefault(c.NATS.VideoObjectBucket, DefaultVideoBucket)

	if c.NATS.JobTimeoutSeconds <= 0 {
		c.NATS.JobTimeoutSeconds = DefaultJobTimeoutSeconds
	}

	c.Paths.BaseLogsDir = orDefault(c.Paths.BaseLogsDir, DefaultLogsDir)
	c.Paths.CharactersDir = orDefault(c.Paths.CharactersDir, DefaultCharactersDir)
	c.Timeline.OutputDir = orDefault(c.Timeline.OutputDir, DefaultOutputDir)
	c.Paths.JobsDB = orDefault(c.Paths.JobsDB, filepath.Join(c.Timeline.OutputDir, DefaultJobsDBName))

	if c.Paths.SweepAgeSeconds <= 0 {
		c.Paths.SweepAgeSeconds = DefaultSweepAgeSeconds
	}

	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = audio.DefaultSampleRate
	}

	if c.Audio.MaxDuration == 0 {
		c.Audio.MaxDuration = audio.DefaultMaxDuration
	}

	c.TTS.ApplyDefaults()

	if c.TTS.CacheEnabled && c.TTS.CacheDir == "" {
		c.TTS.CacheDir = filepath.Join(fsutil.CacheDir(), "tts")
	}

	// Scripts without a language are spoken in the engine's language.
	c.Timeline.Language = orDefault(c.Timeline.Language, c.TTS.Language)
	c.Timeline.ApplyDefaults()

	c.Encoder.ApplyDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	ttsErr := c.TTS.Validate()
	if ttsErr != nil {
		return fmt.Errorf("%w: [tts]: %w", ErrInvalidConfig, ttsErr)
	}

	audioErr := c.Audio.Validate()
	if audioErr != nil {
		return fmt.Errorf("%w: [audio]: %w", ErrInvalidConfig, audioErr)
	}

	renderErr := c.Render.Validate()
	if renderErr != nil {
		return fmt.Errorf("%w: [render]: %w", ErrInvalidConfig, renderErr)
	}

	timelineErr := c.Timeline.Validate()
	if timelineErr != nil {
		return fmt.Errorf("%w: [timeline]: %w", ErrInvalidConfig, timelineErr)
	}

	if c.Encoder.CRF < 0 || c.Encoder.CRF > 51 {
		return fmt.Errorf("%w: [encoder]: crf must be between 0 and 51, got %d", ErrInvalidConfig, c.Encoder.CRF)
	}

	return nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}
