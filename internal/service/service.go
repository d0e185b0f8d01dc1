// Package service wires the configured speech engine, asset provider, renderer and
// encoder into one timeline assembler. The NATS service and the CLI both build on it.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/video-service/internal/assets"
	"github.com/book-expert/video-service/internal/audio"
	"github.com/book-expert/video-service/internal/config"
	"github.com/book-expert/video-service/internal/encoder"
	"github.com/book-expert/video-service/internal/fsutil"
	"github.com/book-expert/video-service/internal/render"
	"github.com/book-expert/video-service/internal/timeline"
	"github.com/book-expert/video-service/internal/tts"
)

const (
	logFmtReady      = "Renderer ready: engine %s, language %s, %d fps, characters in %s, output to %s"
	logFmtCacheOn    = "TTS cache enabled at %s"
	logFmtSweep      = "Removed %d leftover render files from %s (%d kept)"
	logFmtSweepError = "Failed to remove leftover %v"
)

// Check names reported by Doctor.
const (
	CheckEncoder    = "encoder"
	CheckEngine     = "tts engine"
	CheckCharacters = "characters"
	CheckOutput     = "output dir"
)

// ErrNoCharacters is reported by Doctor when the characters directory has none.
var ErrNoCharacters = errors.New("no characters found")

// CheckResult is the outcome of one Doctor check. Err is nil when it passed.
type CheckResult struct {
	Name   string
	Detail string
	Err    error
}

// Service owns every collaborator of a render.
type Service struct {
	cfg       *config.Config
	engine    tts.Engine
	cache     *tts.AudioCache
	assets    *assets.DirProvider
	encoder   *encoder.FFmpeg
	assembler *timeline.Assembler
	log       *logger.Logger
}

// New validates cfg and builds the render pipeline. Close releases the TTS cache.
func New(cfg *config.Config, log *logger.Logger) (*Service, error) {
	validationErr := cfg.Validate()
	if validationErr != nil {
		return nil, validationErr
	}

	dirErr := fsutil.EnsureDir(cfg.Timeline.OutputDir)
	if dirErr != nil {
		return nil, fmt.Errorf("failed to prepare output dir: %w", dirErr)
	}

	engine, engineErr := tts.NewEngine(cfg.TTS)
	if engineErr != nil {
		return nil, fmt.Errorf("failed to create tts engine: %w", engineErr)
	}

	decoder, decoderErr := audio.NewDecoder(
		cfg.Encoder.FFmpegPath, cfg.Audio, time.Duration(cfg.TTS.TimeoutSeconds)*time.Second,
	)
	if decoderErr != nil {
		return nil, fmt.Errorf("failed to create audio decoder: %w", decoderErr)
	}

	var cache *tts.AudioCache

	if cfg.TTS.CacheEnabled {
		var cacheErr error

		cache, cacheErr = tts.NewAudioCache(cfg.TTS.CacheDir)
		if cacheErr != nil {
			return nil, fmt.Errorf("failed to open tts cache: %w", cacheErr)
		}

		log.Info(logFmtCacheOn, cfg.TTS.CacheDir)
	}

	renderer, rendererErr := render.NewRenderer(cfg.Render, log)
	if rendererErr != nil {
		closeCache(cache)

		return nil, fmt.Errorf("failed to create line renderer: %w", rendererErr)
	}

	provider := assets.NewDirProvider(cfg.Paths.CharactersDir, log)
	ffmpeg := encoder.New(cfg.Encoder, log)

	assembler, assemblerErr := timeline.NewAssembler(cfg.Timeline, timeline.Dependencies{
		Synthesizer: tts.NewSynthesizer(engine, decoder, cache, cfg.TTS, log),
		Assets:      provider,
		Renderer:    renderer,
		Encoder:     ffmpeg,
	}, log)
	if assemblerErr != nil {
		closeCache(cache)

		return nil, fmt.Errorf("failed to create assembler: %w", assemblerErr)
	}

	log.Info(logFmtReady, engine.Name(), cfg.Timeline.Language, cfg.Render.FrameRate,
		cfg.Paths.CharactersDir, cfg.Timeline.OutputDir)

	return &Service{
		cfg:       cfg,
		engine:    engine,
		cache:     cache,
		assets:    provider,
		encoder:   ffmpeg,
		assembler: assembler,
		log:       log,
	}, nil
}

// Assembler returns the configured timeline assembler.
func (s *Service) Assembler() *timeline.Assembler {
	return s.assembler
}

// Characters lists the characters found in the characters directory.
func (s *Service) Characters() ([]assets.CharacterInfo, error) {
	return s.assets.Characters()
}

// Probe inspects an encoded video.
func (s *Service) Probe(ctx context.Context, path string) (*encoder.ProbeResult, error) {
	return s.encoder.Probe(ctx, path)
}

// Doctor checks every external dependency of a render and reports each outcome.
func (s *Service) Doctor(ctx context.Context) []CheckResult {
	results := make([]CheckResult, 0, 4)

	results = append(results, CheckResult{
		Name:   CheckEncoder,
		Detail: s.cfg.Encoder.FFmpegPath + ", " + s.cfg.Encoder.FFprobePath,
		Err:    s.encoder.Check(ctx),
	})

	results = append(results, CheckResult{
		Name:   CheckEngine,
		Detail: s.engine.Name(),
		Err:    s.engine.Check(ctx),
	})

	characters, listErr := s.assets.Characters()
	if listErr == nil && len(characters) == 0 {
		listErr = fmt.Errorf("%w in %s", ErrNoCharacters, s.cfg.Paths.CharactersDir)
	}

	results = append(results, CheckResult{
		Name:   CheckCharacters,
		Detail: fmt.Sprintf("%d in %s", len(characters), s.cfg.Paths.CharactersDir),
		Err:    listErr,
	})

	results = append(results, CheckResult{
		Name:   CheckOutput,
		Detail: s.cfg.Timeline.OutputDir,
		Err:    checkWritable(s.cfg.Timeline.OutputDir),
	})

	return results
}

// Sweep removes partial outputs older than the configured age, left behind by
// renders that were killed mid-encode.
func (s *Service) Sweep(now time.Time) (*timeline.SweepReport, error) {
	minAge := time.Duration(s.cfg.Paths.SweepAgeSeconds) * time.Second

	report, sweepErr := timeline.SweepPartials(s.cfg.Timeline.OutputDir, minAge, now)
	if sweepErr != nil {
		return nil, sweepErr
	}

	for _, removeErr := range report.Errors {
		s.log.Warn(logFmtSweepError, removeErr)
	}

	s.log.Info(logFmtSweep, len(report.Removed), s.cfg.Timeline.OutputDir, len(report.Kept))

	return report, nil
}

// Close releases the TTS cache.
func (s *Service) Close() {
	closeCache(s.cache)
}

func closeCache(cache *tts.AudioCache) {
	if cache != nil {
		cache.Close()
	}
}

func checkWritable(dir string) error {
	probe, createErr := os.CreateTemp(dir, ".doctor-*")
	if createErr != nil {
		return fmt.Errorf("output dir not writable: %w", createErr)
	}

	name := probe.Name()
	_ = probe.Close()

	removeErr := os.Remove(filepath.Clean(name))
	if removeErr != nil {
		return fmt.Errorf("failed to remove probe file: %w", removeErr)
	}

	return nil
}
