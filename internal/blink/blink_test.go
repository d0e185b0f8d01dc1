// Package blink_test tests the blink scheduler.
package blink_test

import (
	"testing"

	"github.com/book-expert/video-service/internal/blink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_SameSeedSameSchedule(t *testing.T) {
	t.Parallel()

	cfg := blink.DefaultConfig()

	first := blink.Generate(cfg, 60, blink.NewRand(42, 7))
	second := blink.Generate(cfg, 60, blink.NewRand(42, 7))

	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestGenerate_DifferentStreamsDiffer(t *testing.T) {
	t.Parallel()

	cfg := blink.DefaultConfig()

	first := blink.Generate(cfg, 60, blink.NewRand(42, 0))
	second := blink.Generate(cfg, 60, blink.NewRand(42, 1))

	assert.NotEqual(t, first, second)
}

func TestGenerate_IntervalsAreOrderedAndContained(t *testing.T) {
	t.Parallel()

	cfg := blink.DefaultConfig()

	for seed := range uint64(200) {
		duration := 0.5 + float64(seed%40)
		schedule := blink.Generate(cfg, duration, blink.NewRand(seed, seed))

		previousEnd := 0.0

		for i, interval := range schedule {
			assert.Less(t, interval.Start, interval.End, "seed %d interval %d", seed, i)
			assert.GreaterOrEqual(t, interval.Start, 0.0)
			assert.LessOrEqual(t, interval.End, duration)
			assert.Greater(t, interval.Start, previousEnd, "seed %d interval %d overlaps", seed, i)

			previousEnd = interval.End
		}
	}
}

func TestGenerate_GapsFollowConfig(t *testing.T) {
	t.Parallel()

	cfg := blink.DefaultConfig()
	schedule := blink.Generate(cfg, 120, blink.NewRand(1, 2))
	require.NotEmpty(t, schedule)

	assert.GreaterOrEqual(t, schedule[0].Start, cfg.MinGap)
	assert.LessOrEqual(t, schedule[0].Start, cfg.MaxGap)

	for i := 1; i < len(schedule); i++ {
		gap := schedule[i].Start - schedule[i-1].Start
		assert.GreaterOrEqual(t, gap, cfg.MinGap-1e-9)
		assert.LessOrEqual(t, gap, cfg.MaxGap+1e-9)
	}
}

func TestGenerate_ShortLineHasNoBlinks(t *testing.T) {
	t.Parallel()

	cfg := blink.DefaultConfig()

	assert.Empty(t, blink.Generate(cfg, 2.9, blink.NewRand(3, 3)))
	assert.Empty(t, blink.Generate(cfg, 0, blink.NewRand(3, 3)))
	assert.Empty(t, blink.Generate(cfg, -1, blink.NewRand(3, 3)))
}

func TestGenerate_LastBlinkIsClamped(t *testing.T) {
	t.Parallel()

	cfg := blink.Config{MinGap: 1.0, MaxGap: 1.0, BlinkDuration: 0.15}
	schedule := blink.Generate(cfg, 2.05, blink.NewRand(0, 0))

	require.Len(t, schedule, 2)
	assert.InDelta(t, 2.0, schedule[1].Start, 1e-9)
	assert.InDelta(t, 2.05, schedule[1].End, 1e-9)
}

func TestSchedule_Contains(t *testing.T) {
	t.Parallel()

	schedule := blink.Schedule{
		{Start: 1.0, End: 1.15},
		{Start: 4.0, End: 4.15},
	}

	tests := []struct {
		ts   float64
		want bool
	}{
		{ts: 0, want: false},
		{ts: 0.99, want: false},
		{ts: 1.0, want: true},
		{ts: 1.1, want: true},
		{ts: 1.15, want: true},
		{ts: 1.16, want: false},
		{ts: 4.05, want: true},
		{ts: 5, want: false},
	}

	for _, testCase := range tests {
		assert.Equal(t, testCase.want, schedule.Contains(testCase.ts), "t=%v", testCase.ts)
	}

	assert.False(t, blink.Schedule(nil).Contains(1))
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, blink.DefaultConfig().Validate())

	invalid := []blink.Config{
		{MinGap: 3, MaxGap: 5, BlinkDuration: 0},
		{MinGap: 0.1, MaxGap: 5, BlinkDuration: 0.15},
		{MinGap: 3, MaxGap: 2, BlinkDuration: 0.15},
	}

	for _, cfg := range invalid {
		require.ErrorIs(t, cfg.Validate(), blink.ErrInvalidConfig)
	}
}
