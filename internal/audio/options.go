// Package audio decodes synthesized speech into an in-memory PCM track and samples
// its loudness for the frame synthesizer.
package audio

import (
	"errors"
	"fmt"
)

// Default decode settings. Tracks are always mono signed 16-bit PCM.
const (
	DefaultSampleRate  = 44100
	DefaultMaxDuration = 600.0
)

// Limits for decode option validation.
const (
	minSampleRate = 8000
	maxSampleRate = 192000
)

const (
	errFmtSampleRateRange  = "%w: sample rate must be between %d and %d Hz, got %d"
	errFmtMaxDurationRange = "%w: max duration must be positive, got %.2f"
)

// ErrInvalidOptions is returned when decode options are out of range.
var ErrInvalidOptions = errors.New("invalid decode options")

// Format represents an encoded audio container produced by a speech engine.
type Format string

// Supported encoded formats.
const (
	FormatWAV Format = "wav"
	FormatMP3 Format = "mp3"
)

// DecodeOptions controls how encoded audio is turned into a Track.
type DecodeOptions struct {
	// SampleRate is the rate the track is resampled to.
	SampleRate int `json:"sampleRate" toml:"sample_rate"`
	// MaxDuration caps the decoded length in seconds.
	MaxDuration float64 `json:"maxDuration" toml:"max_duration"`
}

// NewDefaultOptions provides the decode settings used when none are configured.
func NewDefaultOptions() DecodeOptions {
	return DecodeOptions{
		SampleRate:  DefaultSampleRate,
		MaxDuration: DefaultMaxDuration,
	}
}

// Validate checks that the options are within reasonable bounds.
func (o DecodeOptions) Validate() error {
	sampleRateErr := validateSampleRate(o.SampleRate)
	if sampleRateErr != nil {
		return sampleRateErr
	}

	if o.MaxDuration <= 0 {
		return fmt.Errorf(errFmtMaxDurationRange, ErrInvalidOptions, o.MaxDuration)
	}

	return nil
}

// maxBytes returns the largest PCM payload the options allow.
func (o DecodeOptions) maxBytes() int {
	return int(o.MaxDuration*float64(o.SampleRate)) * bytesPerSample
}

func validateSampleRate(sampleRate int) error {
	if sampleRate < minSampleRate || sampleRate > maxSampleRate {
		return fmt.Errorf(
			errFmtSampleRateRange,
			ErrInvalidOptions,
			minSampleRate,
			maxSampleRate,
			sampleRate,
		)
	}

	return nil
}
