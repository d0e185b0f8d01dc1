// Package tts turns dialogue text into decoded audio tracks through a pluggable
// speech engine, with rate limiting and an on-disk cache in front of it.
package tts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/video-service/internal/audio"
	"github.com/book-expert/video-service/internal/core"
	"github.com/book-expert/video-service/internal/tts/text"
	"golang.org/x/time/rate"
)

// Engine names.
const (
	EngineGTTS = "gtts"
	EngineHTTP = "http"
)

// Defaults for the TTS configuration.
const (
	DefaultLanguage          = "ja"
	DefaultRequestsPerMinute = 50
	DefaultMaxTextLength     = 5000
	DefaultTimeoutSeconds    = 30
)

const (
	logFmtCacheHit      = "TTS cache hit for %q (%s)"
	logFmtCachePutError = "Failed to cache speech for %q: %v"
)

var (
	// ErrUnknownEngine is returned for an engine name that is not supported.
	ErrUnknownEngine = errors.New("unknown tts engine")
	// ErrTextTooLong is returned for text above the configured limit.
	ErrTextTooLong = errors.New("text too long")
)

// Engine produces encoded speech (wav or mp3) for a piece of text.
type Engine interface {
	Name() string
	Generate(ctx context.Context, text, lang string) ([]byte, error)
	Check(ctx context.Context) error
}

// AudioDecoder turns encoded speech into a track.
type AudioDecoder interface {
	Decode(ctx context.Context, encoded []byte) (*audio.Track, error)
}

// Config selects and tunes the speech engine.
type Config struct {
	Engine            string `toml:"engine"`
	Language          string `toml:"language"`
	BaseURL           string `toml:"base_url"`
	SpeakerRefPath    string `toml:"speaker_ref_path"`
	GTTSPath          string `toml:"gtts_path"`
	Slow              bool   `toml:"slow"`
	TLD               string `toml:"tld"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
	MaxTextLength     int    `toml:"max_text_length"`
	CacheEnabled      bool   `toml:"cache_enabled"`
	CacheDir          string `toml:"cache_dir"`
}

// ApplyDefaults fills every unset field except CacheDir.
func (c *Config) ApplyDefaults() {
	if c.Engine == "" {
		c.Engine = EngineGTTS
	}

	if c.Language == "" {
		c.Language = DefaultLanguage
	}

	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = DefaultTimeoutSeconds
	}

	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = DefaultRequestsPerMinute
	}

	if c.MaxTextLength <= 0 {
		c.MaxTextLength = DefaultMaxTextLength
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Engine {
	case EngineGTTS:
		return nil
	case EngineHTTP:
		if c.BaseURL == "" {
			return fmt.Errorf("%w: engine %q requires base_url", ErrUnknownEngine, c.Engine)
		}

		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEngine, c.Engine)
	}
}

// NewEngine builds the engine named in cfg.
func NewEngine(cfg Config) (Engine, error) {
	validationErr := cfg.Validate()
	if validationErr != nil {
		return nil, validationErr
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	if cfg.Engine == EngineHTTP {
		return NewHTTPClient(cfg.BaseURL, timeout).WithSpeaker(cfg.SpeakerRefPath), nil
	}

	return NewGTTSEngine(cfg.GTTSPath, cfg.Slow, cfg.TLD, timeout), nil
}

// Synthesizer implements core.Synthesizer on top of an Engine.
type Synthesizer struct {
	engine        Engine
	decoder       AudioDecoder
	limiter       *rate.Limiter
	cache         *AudioCache
	preprocessor  *text.Preprocessor
	maxTextLength int
	log           *logger.Logger
}

// NewSynthesizer wires an engine and decoder. cache may be nil to disable caching.
func NewSynthesizer(
	engine Engine,
	decoder AudioDecoder,
	cache *AudioCache,
	cfg Config,
	log *logger.Logger,
) *Synthesizer {
	cfg.ApplyDefaults()

	return &Synthesizer{
		engine:        engine,
		decoder:       decoder,
		limiter:       rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		cache:         cache,
		preprocessor:  text.NewPreprocessor(),
		maxTextLength: cfg.MaxTextLength,
		log:           log,
	}
}

// Synthesize implements core.Synthesizer. Every failure wraps core.ErrSynthesis.
func (s *Synthesizer) Synthesize(ctx context.Context, line, lang string) (*audio.Track, error) {
	prepared := s.preprocessor.Prepare(line, lang)
	if prepared == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrSynthesis, ErrEmptyText)
	}

	if len(prepared) > s.maxTextLength {
		return nil, fmt.Errorf("%w: %w: %d bytes (max %d)",
			core.ErrSynthesis, ErrTextTooLong, len(prepared), s.maxTextLength)
	}

	encoded, generateErr := s.generate(ctx, prepared, lang)
	if generateErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrSynthesis, s.engine.Name(), generateErr)
	}

	track, decodeErr := s.decoder.Decode(ctx, encoded)
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: failed to decode speech: %w", core.ErrSynthesis, decodeErr)
	}

	return track, nil
}

func (s *Synthesizer) generate(ctx context.Context, prepared, lang string) ([]byte, error) {
	key := CacheKey(s.engine.Name(), lang, prepared)

	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			s.log.Info(logFmtCacheHit, prepared, key)

			return cached, nil
		}
	}

	waitErr := s.limiter.Wait(ctx)
	if waitErr != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", waitErr)
	}

	encoded, generateErr := s.engine.Generate(ctx, prepared, lang)
	if generateErr != nil {
		return nil, generateErr
	}

	if s.cache != nil {
		putErr := s.cache.Put(key, encoded)
		if putErr != nil {
			s.log.Warn(logFmtCachePutError, prepared, putErr)
		}
	}

	return encoded, nil
}
