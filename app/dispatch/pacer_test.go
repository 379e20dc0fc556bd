package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacerEnforcesMinimumSpacing(t *testing.T) {
	const (
		perSecond = 50
		items     = 5
	)
	pacer := NewPacer(perSecond, nil)
	interval := time.Second / perSecond

	start := time.Now()
	for i := 0; i < items; i++ {
		require.NoError(t, pacer.Wait(context.Background()))
	}
	elapsed := time.Since(start)

	// First item is free, every later one waits out the interval
	assert.GreaterOrEqual(t, elapsed, time.Duration(items-1)*interval)
}

func TestPacerFirstWaitReturnsImmediately(t *testing.T) {
	pacer := NewPacer(1, nil)

	start := time.Now()
	require.NoError(t, pacer.Wait(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestPacerCreditsProcessingTime(t *testing.T) {
	pacer := NewPacer(10, nil) // 100ms interval
	require.NoError(t, pacer.Wait(context.Background()))

	// Simulate item processing longer than the interval; the next wait
	// should have no shortfall left to sleep
	time.Sleep(150 * time.Millisecond)

	start := time.Now()
	require.NoError(t, pacer.Wait(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestPacerCancellation(t *testing.T) {
	pacer := NewPacer(1, nil) // 1s interval
	require.NoError(t, pacer.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pacer.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPacerClampsToGlobalCeiling(t *testing.T) {
	pacer := NewPacer(5000, nil)
	clamped := NewPacer(810, nil)
	assert.Equal(t, clamped.interval, pacer.interval)
}

func TestChannelLimitersSharedPerChannel(t *testing.T) {
	limiters := NewChannelLimiters(810)

	a := limiters.For(1)
	b := limiters.For(1)
	c := limiters.For(2)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}
