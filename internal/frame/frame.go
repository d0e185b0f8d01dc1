// Package frame prepares the per-line pose buffers: every pose image is decoded,
// scaled and converted to RGBA once so the per-frame path is a map lookup.
package frame

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // jpeg pose images
	_ "image/png"  // png pose images
	"os"

	"github.com/book-expert/logger"
	"github.com/book-expert/video-service/internal/core"
	"github.com/book-expert/video-service/internal/pose"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // webp pose images
)

const (
	logFmtDegraded   = "Pose %s unavailable, using %s instead"
	logFmtUnreadable = "Skipping unreadable pose image %s: %v"
	errFmtMismatch   = "%w: pose %s is %dx%d, pose %s is %dx%d"
)

var (
	// ErrNoPoses is returned when none of the pose images could be loaded.
	ErrNoPoses = errors.New("no usable pose images")
	// ErrInvalidHeight is returned for a non-positive target height.
	ErrInvalidHeight = errors.New("target height must be at least 2 pixels")
)

// Set holds one normalized buffer per pose. All buffers share the same even
// dimensions and must not be modified after Build returns.
type Set struct {
	frames [pose.Count]*image.RGBA
	width  int
	height int
}

// Frame returns the buffer drawn for k.
func (s *Set) Frame(k pose.Key) *image.RGBA {
	return s.frames[k]
}

// Width returns the shared buffer width.
func (s *Set) Width() int {
	return s.width
}

// Height returns the shared buffer height.
func (s *Set) Height() int {
	return s.height
}

// Normalize scales img to targetHeight preserving its aspect ratio, then drops one
// pixel from any odd dimension so the result is safe for yuv420p encoders.
func Normalize(img image.Image, targetHeight int) (*image.RGBA, error) {
	if targetHeight < 2 {
		return nil, ErrInvalidHeight
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("failed to normalize image: empty bounds %v", bounds)
	}

	scaledWidth := max(1, int(float64(bounds.Dx())*float64(targetHeight)/float64(bounds.Dy())))
	width := evenFloor(scaledWidth)
	height := evenFloor(targetHeight)

	if width < 2 {
		return nil, fmt.Errorf("failed to normalize image: scaled width %d too small", scaledWidth)
	}

	// Scale to the untruncated size, then crop by dropping the last row or column.
	scaled := image.NewRGBA(image.Rect(0, 0, scaledWidth, targetHeight))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, bounds, draw.Src, nil)

	if width == scaledWidth && height == targetHeight {
		return scaled, nil
	}

	cropped := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(cropped, cropped.Bounds(), scaled, image.Point{}, draw.Src)

	return cropped, nil
}

// Solid returns a uniform buffer of the given size, used when a line has no character.
func Solid(width, height int, fill color.Color) *image.RGBA {
	buffer := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(buffer, buffer.Bounds(), &image.Uniform{C: fill}, image.Point{}, draw.Src)

	return buffer
}

// Build decodes and normalizes the images in paths. Each distinct file is read once.
// Missing or unreadable poses are filled with pose.Fallback and logged; these are
// recoverable. Buffers of different sizes are a fatal core.ErrDimensionMismatch.
func Build(paths pose.Paths, targetHeight int, log *logger.Logger) (*Set, error) {
	loaded := make(map[pose.Key]*image.RGBA, pose.Count)
	byPath := make(map[string]*image.RGBA, len(paths))

	for _, key := range pose.Keys() {
		path, ok := paths[key]
		if !ok || path == "" {
			continue
		}

		if buffer, seen := byPath[path]; seen {
			loaded[key] = buffer

			continue
		}

		buffer, loadErr := load(path, targetHeight)
		if loadErr != nil {
			if errors.Is(loadErr, ErrInvalidHeight) {
				return nil, loadErr
			}

			log.Warn(logFmtUnreadable, path, fmt.Errorf("%w: %w", core.ErrAssetResolution, loadErr))

			continue
		}

		byPath[path] = buffer
		loaded[key] = buffer
	}

	if len(loaded) == 0 {
		return nil, ErrNoPoses
	}

	available := func(k pose.Key) bool {
		_, ok := loaded[k]

		return ok
	}

	set := &Set{}

	for _, key := range pose.Keys() {
		chosen, exact, _ := pose.Fallback(key, available)
		if !exact {
			log.Warn(logFmtDegraded, key, chosen)
		}

		set.frames[key] = loaded[chosen]
	}

	mismatchErr := set.checkDimensions()
	if mismatchErr != nil {
		return nil, mismatchErr
	}

	return set, nil
}

func (s *Set) checkDimensions() error {
	first := s.frames[pose.EyesOpenMouthClosed].Bounds()

	for _, key := range pose.Keys() {
		bounds := s.frames[key].Bounds()
		if bounds.Dx() != first.Dx() || bounds.Dy() != first.Dy() {
			return fmt.Errorf(errFmtMismatch, core.ErrDimensionMismatch,
				pose.EyesOpenMouthClosed, first.Dx(), first.Dy(), key, bounds.Dx(), bounds.Dy())
		}
	}

	s.width = first.Dx()
	s.height = first.Dy()

	return nil
}

func load(path string, targetHeight int) (*image.RGBA, error) {
	file, openErr := os.Open(path)
	if openErr != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, openErr)
	}
	defer file.Close()

	img, _, decodeErr := image.Decode(file)
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, decodeErr)
	}

	return Normalize(img, targetHeight)
}

func evenFloor(value int) int {
	return value - value%2
}
