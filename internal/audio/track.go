package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// AmplitudeWindow is the length of the RMS window in seconds.
const AmplitudeWindow = 0.02

const (
	bytesPerSample = 2
	int16Scale     = 32768.0
)

var (
	// ErrEmptyTrack indicates audio with no samples.
	ErrEmptyTrack = errors.New("audio track has no samples")
	// ErrMisalignedPCM indicates a PCM payload that is not a whole number of samples.
	ErrMisalignedPCM = errors.New("pcm data is not aligned to 16-bit samples")
)

// Track is a decoded mono 16-bit audio track. It is immutable after construction and
// safe for concurrent reads until Release is called.
type Track struct {
	samples    []int16
	sampleRate int
	window     int
	duration   float64
}

// NewTrack wraps mono samples recorded at sampleRate.
func NewTrack(samples []int16, sampleRate int) (*Track, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyTrack
	}

	sampleRateErr := validateSampleRate(sampleRate)
	if sampleRateErr != nil {
		return nil, sampleRateErr
	}

	window := int(AmplitudeWindow * float64(sampleRate))
	if window < 1 {
		window = 1
	}

	return &Track{
		samples:    samples,
		sampleRate: sampleRate,
		window:     window,
		duration:   float64(len(samples)) / float64(sampleRate),
	}, nil
}

// ParsePCM16 builds a track from raw signed 16-bit little-endian mono PCM.
func ParsePCM16(data []byte, sampleRate int) (*Track, error) {
	if len(data)%bytesPerSample != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMisalignedPCM, len(data))
	}

	samples := make([]int16, len(data)/bytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*bytesPerSample:]))
	}

	return NewTrack(samples, sampleRate)
}

// Duration returns the track length in seconds.
func (t *Track) Duration() float64 {
	return t.duration
}

// SampleRate returns the number of samples per second.
func (t *Track) SampleRate() int {
	return t.sampleRate
}

// AmplitudeAt returns the RMS loudness of the window starting at ts, normalized to
// [0, 1]. Timestamps outside [0, duration) and released tracks yield silence.
func (t *Track) AmplitudeAt(ts float64) float64 {
	if math.IsNaN(ts) || ts < 0 || ts >= t.duration {
		return 0
	}

	samples := t.samples

	start := int(ts * float64(t.sampleRate))
	if start >= len(samples) {
		return 0
	}

	end := min(start+t.window, len(samples))

	var sum float64

	for _, sample := range samples[start:end] {
		normalized := float64(sample) / int16Scale
		sum += normalized * normalized
	}

	return math.Sqrt(sum / float64(end-start))
}

// PCM16 returns the track as signed 16-bit little-endian mono PCM.
func (t *Track) PCM16() []byte {
	data := make([]byte, len(t.samples)*bytesPerSample)
	for i, sample := range t.samples {
		binary.LittleEndian.PutUint16(data[i*bytesPerSample:], uint16(sample))
	}

	return data
}

// Release drops the sample buffer. Duration stays available for bookkeeping.
func (t *Track) Release() {
	t.samples = nil
}
