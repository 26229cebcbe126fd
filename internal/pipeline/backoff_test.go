package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTileBackoffSchedule(t *testing.T) {
	var got []time.Duration
	for b := initialBackoff; len(got) < 7; b = retry.NextBackoff(b, maxBackoff) {
		got = append(got, b)
	}
	assert.Equal(t, []time.Duration{
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		3200 * time.Millisecond,
		maxBackoff,
		maxBackoff,
	}, got)
}

func TestSleepWithContext(t *testing.T) {
	t.Run("wakes when the clock advances", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		done := make(chan bool, 1)
		go func() { done <- sleepWithContext(context.Background(), clock, time.Second) }()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(time.Second)
		assert.True(t, <-done)
	})

	t.Run("returns early on cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.False(t, sleepWithContext(ctx, clockwork.NewFakeClock(), time.Hour))
	})

	t.Run("zero duration does not block", func(t *testing.T) {
		assert.True(t, sleepWithContext(context.Background(), clockwork.NewFakeClock(), 0))
	})
}
