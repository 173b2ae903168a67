// SPDX-License-Identifier: MIT

package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_DoublesUpToCap(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, 350*time.Millisecond)

	assert.Equal(t, 100*time.Millisecond, b.Current())
	b.Next()
	assert.Equal(t, 200*time.Millisecond, b.Current())
	b.Next()
	assert.Equal(t, 350*time.Millisecond, b.Current(), "interval must clamp at the cap")
	b.Next()
	assert.Equal(t, 350*time.Millisecond, b.Current())

	b.Reset()
	assert.Equal(t, 100*time.Millisecond, b.Current())
}

func TestBackoff_JitterStaysWithinBounds(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, time.Second)
	for i := 0; i < 50; i++ {
		base := b.Current()
		wait := b.Next()
		lo := time.Duration(float64(base) * 0.8)
		hi := time.Duration(float64(base) * 1.2)
		assert.GreaterOrEqual(t, wait, lo)
		assert.LessOrEqual(t, wait, hi)
		b.Reset()
	}
}

func TestBackoff_SleepHonorsContext(t *testing.T) {
	b := NewBackoff(5*time.Second, 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Sleep(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Sleep did not return after context cancellation")
	}

	// A short interval completes normally.
	short := NewBackoff(time.Millisecond, time.Millisecond)
	require.NoError(t, short.Sleep(context.Background()))
}

func TestBackoff_DefendsAgainstBadInputs(t *testing.T) {
	b := NewBackoff(0, -time.Second)
	assert.Positive(t, b.Current())
	assert.Positive(t, b.Next())
}
