package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInput indicates a script that cannot produce any output, e.g. no line with text.
	ErrInput = errors.New("invalid input")
	// ErrSynthesis indicates that speech generation failed for a non-empty line.
	ErrSynthesis = errors.New("speech synthesis failed")
	// ErrAssetResolution marks degraded pose resolution. It is logged, never returned
	// as a render failure.
	ErrAssetResolution = errors.New("asset resolution degraded")
	// ErrDimensionMismatch indicates pose buffers for one line that disagree in size.
	ErrDimensionMismatch = errors.New("pose buffer dimensions differ")
	// ErrEncoding indicates a failure reported by the external video encoder.
	ErrEncoding = errors.New("video encoding failed")
)

// LineError ties a failure to the index of the script line that caused it.
type LineError struct {
	Index int
	Err   error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Index, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}
