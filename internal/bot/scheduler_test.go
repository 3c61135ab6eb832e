package bot

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPeriod = 4 * time.Second

func waitForTicker(t *testing.T, clock *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, n))
}

func expectTick(t *testing.T, ticks <-chan struct{}) {
	t.Helper()
	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a tick")
	}
}

func expectNoTick(t *testing.T, ticks <-chan struct{}) {
	t.Helper()
	select {
	case <-ticks:
		t.Fatal("unexpected tick")
	case <-time.After(100 * time.Millisecond):
	}
}

func shutdown(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}

func TestScheduler_StartTwiceKeepsOneTimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ticks := make(chan struct{}, 16)
	s := NewScheduler(func(context.Context) error {
		ticks <- struct{}{}
		return nil
	}, testPeriod, clock, nil)
	defer shutdown(t, s)

	assert.True(t, s.Start())
	assert.False(t, s.Start())
	assert.True(t, s.Running())

	waitForTicker(t, clock, 1)
	clock.Advance(testPeriod)
	expectTick(t, ticks)
	expectNoTick(t, ticks)

	clock.Advance(testPeriod)
	expectTick(t, ticks)
	expectNoTick(t, ticks)
}

func TestScheduler_StopIsIdempotentAndSilencesTicks(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ticks := make(chan struct{}, 16)
	s := NewScheduler(func(context.Context) error {
		ticks <- struct{}{}
		return nil
	}, testPeriod, clock, nil)
	defer shutdown(t, s)

	assert.False(t, s.Stop())
	require.True(t, s.Start())
	waitForTicker(t, clock, 1)

	assert.True(t, s.Stop())
	assert.False(t, s.Stop())
	assert.False(t, s.Running())

	clock.Advance(3 * testPeriod)
	expectNoTick(t, ticks)
}

func TestScheduler_RestartAfterStop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ticks := make(chan struct{}, 16)
	s := NewScheduler(func(context.Context) error {
		ticks <- struct{}{}
		return nil
	}, testPeriod, clock, nil)
	defer shutdown(t, s)

	require.True(t, s.Start())
	require.True(t, s.Stop())
	require.True(t, s.Start())

	// the first run's ticker may still fire once; its loop is already cancelled
	waitForTicker(t, clock, 1)
	clock.Advance(testPeriod)
	expectTick(t, ticks)
	expectNoTick(t, ticks)
}

func TestScheduler_NoTicksAfterStopWithRealClock(t *testing.T) {
	period := 10 * time.Millisecond
	var count atomic.Int64
	s := NewScheduler(func(context.Context) error {
		count.Add(1)
		return nil
	}, period, clockwork.NewRealClock(), nil)
	defer shutdown(t, s)

	require.True(t, s.Start())
	require.Eventually(t, func() bool { return count.Load() >= 2 }, 2*time.Second, period)

	require.True(t, s.Stop())
	time.Sleep(period)
	after := count.Load()

	time.Sleep(5 * period)
	assert.Equal(t, after, count.Load())
}

func TestScheduler_ShutdownWaitsForInFlightTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	started := make(chan struct{})
	release := make(chan struct{})
	var sawCancel atomic.Bool

	s := NewScheduler(func(ctx context.Context) error {
		close(started)
		<-release
		sawCancel.Store(ctx.Err() != nil)
		return nil
	}, testPeriod, clock, nil)

	require.True(t, s.Start())
	waitForTicker(t, clock, 1)
	clock.Advance(testPeriod)
	<-started

	done := make(chan error, 1)
	go func() { done <- s.Shutdown(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Shutdown returned while a tick was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-done)
	assert.True(t, sawCancel.Load(), "in-flight tick should observe cancellation")
	assert.False(t, s.Start(), "scheduler must not restart after shutdown")
}

func TestScheduler_ShutdownHonoursDeadline(t *testing.T) {
	clock := clockwork.NewFakeClock()
	started := make(chan struct{})
	release := make(chan struct{})

	s := NewScheduler(func(context.Context) error {
		close(started)
		<-release
		return nil
	}, testPeriod, clock, nil)

	require.True(t, s.Start())
	waitForTicker(t, clock, 1)
	clock.Advance(testPeriod)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Shutdown(ctx), context.DeadlineExceeded)

	close(release)
	shutdown(t, s)
}
