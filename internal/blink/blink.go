// Package blink generates the eye-blink schedule for one dialogue line.
//
// Blinks are independent of speech: the schedule depends only on the line duration
// and the random source, so the same seed always reproduces the same eyes.
package blink

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
)

// Defaults for a natural-looking blink rate.
const (
	DefaultMinGap        = 3.0
	DefaultMaxGap        = 5.0
	DefaultBlinkDuration = 0.15
)

var (
	// ErrInvalidConfig is returned when the blink timing cannot produce disjoint intervals.
	ErrInvalidConfig = errors.New("invalid blink configuration")
)

// Config holds the blink timing in seconds.
type Config struct {
	MinGap        float64 `toml:"min_gap"`
	MaxGap        float64 `toml:"max_gap"`
	BlinkDuration float64 `toml:"blink_duration"`
}

// DefaultConfig returns the default blink timing.
func DefaultConfig() Config {
	return Config{
		MinGap:        DefaultMinGap,
		MaxGap:        DefaultMaxGap,
		BlinkDuration: DefaultBlinkDuration,
	}
}

// Validate ensures every gap is longer than a blink, which keeps intervals disjoint.
func (c Config) Validate() error {
	if c.BlinkDuration <= 0 {
		return fmt.Errorf("%w: blink duration must be positive, got %.3f", ErrInvalidConfig, c.BlinkDuration)
	}

	if c.MinGap <= c.BlinkDuration {
		return fmt.Errorf("%w: min gap %.3f must exceed blink duration %.3f",
			ErrInvalidConfig, c.MinGap, c.BlinkDuration)
	}

	if c.MaxGap < c.MinGap {
		return fmt.Errorf("%w: max gap %.3f is below min gap %.3f", ErrInvalidConfig, c.MaxGap, c.MinGap)
	}

	return nil
}

// Interval is a closed time range [Start, End] during which the eyes are shut.
type Interval struct {
	Start float64
	End   float64
}

// Schedule is an ordered list of non-overlapping intervals.
type Schedule []Interval

// NewRand returns a deterministic random source for one line. stream separates lines
// that share a seed.
func NewRand(seed, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, stream))
}

// Generate draws a blink schedule covering duration seconds.
func Generate(cfg Config, duration float64, rng *rand.Rand) Schedule {
	var schedule Schedule

	if duration <= 0 {
		return schedule
	}

	ts := 0.0

	for {
		ts += cfg.MinGap + rng.Float64()*(cfg.MaxGap-cfg.MinGap)
		if ts >= duration {
			return schedule
		}

		schedule = append(schedule, Interval{
			Start: ts,
			End:   min(ts+cfg.BlinkDuration, duration),
		})
	}
}

// Contains reports whether ts falls inside any interval. It uses binary search so
// frames can be requested in any order.
func (s Schedule) Contains(ts float64) bool {
	idx := sort.Search(len(s), func(i int) bool {
		return s[i].End >= ts
	})

	return idx < len(s) && s[idx].Start <= ts
}
