// Package timeline turns a script into one encoded video: it synthesizes and renders
// every line, restores script order and hands the clips to the encoder.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/video-service/internal/assets"
	"github.com/book-expert/video-service/internal/audio"
	"github.com/book-expert/video-service/internal/core"
	"github.com/book-expert/video-service/internal/fsutil"
	"github.com/book-expert/video-service/internal/pose"
	"github.com/book-expert/video-service/internal/render"
	"github.com/book-expert/video-service/internal/script"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Failure policies for a line whose speech cannot be synthesized.
const (
	// PolicyAbort fails the whole render on the first failed line.
	PolicyAbort = "abort"
	// PolicySkip logs the failed line, leaves it out of the video and continues.
	PolicySkip = "skip"
)

// Defaults for the assembler configuration.
const (
	DefaultWorkers  = 1
	DefaultLanguage = "ja"
	partialSuffix   = ".partial"
	outputExt       = ".mp4"
)

const (
	logFmtStart        = "Render %s: %d of %d lines speakable, %d workers, policy %s"
	logFmtSkipped      = "Render %s: skipping line %d: %v"
	logFmtLineDone     = "Render %s: line %d rendered (%.2fs, %dx%d)"
	logFmtDone         = "Render %s: wrote %s (%d clips, %.2fs)"
	logFmtFailed       = "Render %s failed in state %s: %v"
	logFmtRemoveFailed = "Render %s: failed to remove partial output %s: %v"
)

// ErrInvalidConfig is returned for an unusable assembler configuration.
var ErrInvalidConfig = errors.New("invalid timeline configuration")

// Encoder writes clips, in order, to a single output file.
type Encoder interface {
	Encode(ctx context.Context, clips []*render.Clip, outputPath string) error
}

// LineRenderer builds the clip for one line.
type LineRenderer interface {
	RenderLine(index int, line render.Line, track *audio.Track, paths pose.Paths) (*render.Clip, error)
}

// CharacterScoper is an asset provider that can honour the image directories a
// script declares for its characters.
type CharacterScoper interface {
	WithCharacters(characters []script.Character) core.AssetProvider
}

// Config controls the assembler.
type Config struct {
	OutputDir     string `toml:"output_dir"`
	Workers       int    `toml:"workers"`
	FailurePolicy string `toml:"failure_policy"`
	Language      string `toml:"language"`
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}

	if c.FailurePolicy == "" {
		c.FailurePolicy = PolicyAbort
	}

	if c.Language == "" {
		c.Language = DefaultLanguage
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("%w: output directory is required", ErrInvalidConfig)
	}

	if c.FailurePolicy != PolicyAbort && c.FailurePolicy != PolicySkip {
		return fmt.Errorf("%w: failure policy must be %q or %q, got %q",
			ErrInvalidConfig, PolicyAbort, PolicySkip, c.FailurePolicy)
	}

	return nil
}

// Dependencies are the collaborators of an Assembler.
type Dependencies struct {
	Synthesizer core.Synthesizer
	Assets      core.AssetProvider
	Renderer    LineRenderer
	Encoder     Encoder
}

// Result describes a finished render.
type Result struct {
	ID         string
	OutputPath string
	Clips      int
	Duration   float64
	Skipped    []int
}

// Assembler renders scripts. It is safe for concurrent use; each call has its own
// state machine.
type Assembler struct {
	cfg  Config
	deps Dependencies
	log  *logger.Logger
}

// NewAssembler validates cfg and creates an assembler.
func NewAssembler(cfg Config, deps Dependencies, log *logger.Logger) (*Assembler, error) {
	cfg.ApplyDefaults()

	validationErr := cfg.Validate()
	if validationErr != nil {
		return nil, validationErr
	}

	if deps.Synthesizer == nil || deps.Assets == nil || deps.Renderer == nil || deps.Encoder == nil {
		return nil, fmt.Errorf("%w: all dependencies are required", ErrInvalidConfig)
	}

	return &Assembler{cfg: cfg, deps: deps, log: log}, nil
}

// Assemble renders s to a new file in the output directory and returns its path.
func (a *Assembler) Assemble(ctx context.Context, s *script.Script) (*Result, error) {
	return a.Run(ctx, s, nil)
}

// Run is Assemble with an observer that is told about every state change.
// The output file only appears at its final path once encoding succeeded.
func (a *Assembler) Run(ctx context.Context, s *script.Script, observe Observer) (*Result, error) {
	id := uuid.NewString()
	states := newMachine(observe)

	result, runErr := a.run(ctx, id, s, states)
	if runErr != nil {
		a.log.Error(logFmtFailed, id, states.current(), runErr)
		states.fail()

		return nil, runErr
	}

	states.transition(StateDone)

	return result, nil
}

func (a *Assembler) run(ctx context.Context, id string, s *script.Script, states *machine) (*Result, error) {
	states.transition(StateCollecting)

	if s == nil {
		return nil, fmt.Errorf("%w: no script", core.ErrInput)
	}

	speakable := s.Speakable()
	if len(speakable) == 0 {
		return nil, fmt.Errorf("%w: script has no lines with text", core.ErrInput)
	}

	language := s.Language
	if language == "" {
		language = a.cfg.Language
	}

	a.log.Info(logFmtStart, id, len(speakable), len(s.Lines), a.cfg.Workers, a.cfg.FailurePolicy)

	provider := a.deps.Assets
	if scoped, ok := provider.(CharacterScoper); ok {
		provider = scoped.WithCharacters(s.Characters)
	}

	poses := assets.Resolve(provider, s.CharacterIDs())

	clips, skipped, collectErr := a.collect(ctx, id, speakable, language, poses)
	if collectErr != nil {
		return nil, collectErr
	}

	defer releaseAll(clips)

	states.transition(StateConcatenating)

	if len(clips) == 0 {
		return nil, fmt.Errorf("%w: every line failed to render", core.ErrInput)
	}

	var duration float64
	for _, clip := range clips {
		duration += clip.Duration
	}

	states.transition(StateEncoding)

	outputPath, encodeErr := a.encode(ctx, id, clips)
	if encodeErr != nil {
		return nil, encodeErr
	}

	a.log.Info(logFmtDone, id, outputPath, len(clips), duration)

	return &Result{
		ID:         id,
		OutputPath: outputPath,
		Clips:      len(clips),
		Duration:   duration,
		Skipped:    skipped,
	}, nil
}

// collect synthesizes and renders lines on a bounded pool and returns the clips in
// script order.
func (a *Assembler) collect(
	ctx context.Context,
	id string,
	speakable []script.Indexed,
	language string,
	poses map[string]pose.Paths,
) ([]*render.Clip, []int, error) {
	slots := make([]*render.Clip, len(speakable))

	var (
		mu      sync.Mutex
		skipped []int
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(a.cfg.Workers)

	for position, indexed := range speakable {
		group.Go(func() error {
			if ctxErr := groupCtx.Err(); ctxErr != nil {
				return ctxErr
			}

			clip, lineErr := a.renderLine(groupCtx, indexed, language, poses[indexed.Line.CharacterID])
			if lineErr == nil {
				a.log.Info(logFmtLineDone, id, indexed.Index, clip.Duration, clip.Width, clip.Height)
				slots[position] = clip

				return nil
			}

			if a.cfg.FailurePolicy == PolicySkip && errors.Is(lineErr, core.ErrSynthesis) && groupCtx.Err() == nil {
				a.log.Warn(logFmtSkipped, id, indexed.Index, lineErr)

				mu.Lock()
				skipped = append(skipped, indexed.Index)
				mu.Unlock()

				return nil
			}

			return lineErr
		})
	}

	waitErr := group.Wait()
	clips := compact(slots)

	if waitErr != nil {
		releaseAll(clips)

		return nil, nil, waitErr
	}

	slices.Sort(skipped)

	return clips, skipped, nil
}

func (a *Assembler) renderLine(
	ctx context.Context,
	indexed script.Indexed,
	language string,
	paths pose.Paths,
) (*render.Clip, error) {
	track, synthErr := a.deps.Synthesizer.Synthesize(ctx, indexed.Line.Text, language)
	if synthErr != nil {
		if !errors.Is(synthErr, core.ErrSynthesis) {
			synthErr = fmt.Errorf("%w: %w", core.ErrSynthesis, synthErr)
		}

		return nil, &core.LineError{Index: indexed.Index, Err: synthErr}
	}

	line := render.Line{CharacterID: indexed.Line.CharacterID, Text: indexed.Line.Text}

	clip, renderErr := a.deps.Renderer.RenderLine(indexed.Index, line, track, paths)
	if renderErr != nil {
		track.Release()

		return nil, &core.LineError{Index: indexed.Index, Err: renderErr}
	}

	return clip, nil
}

// encode writes to a hidden partial file and renames it into place on success.
func (a *Assembler) encode(ctx context.Context, id string, clips []*render.Clip) (string, error) {
	ensureErr := fsutil.EnsureDir(a.cfg.OutputDir)
	if ensureErr != nil {
		return "", fmt.Errorf("%w: %w", core.ErrEncoding, ensureErr)
	}

	finalPath := filepath.Join(a.cfg.OutputDir, id+outputExt)
	partialPath := PartialPath(finalPath)

	encodeErr := a.deps.Encoder.Encode(ctx, clips, partialPath)
	if encodeErr == nil {
		encodeErr = os.Rename(partialPath, finalPath)
	}

	if encodeErr != nil {
		removeErr := os.Remove(partialPath)
		if removeErr != nil && !os.IsNotExist(removeErr) {
			a.log.Warn(logFmtRemoveFailed, id, partialPath, removeErr)
		}

		if !errors.Is(encodeErr, core.ErrEncoding) {
			encodeErr = fmt.Errorf("%w: %w", core.ErrEncoding, encodeErr)
		}

		return "", encodeErr
	}

	return finalPath, nil
}

// PartialPath is the hidden temporary name used while finalPath is being written.
func PartialPath(finalPath string) string {
	return filepath.Join(filepath.Dir(finalPath), "."+filepath.Base(finalPath)+partialSuffix)
}

func compact(slots []*render.Clip) []*render.Clip {
	clips := make([]*render.Clip, 0, len(slots))

	for _, clip := range slots {
		if clip != nil {
			clips = append(clips, clip)
		}
	}

	return clips
}

func releaseAll(clips []*render.Clip) {
	for _, clip := range clips {
		clip.Release()
	}
}
