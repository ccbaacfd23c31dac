package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLimiter_PollingEndpointBoundary(t *testing.T) {
	clock := newFakeClock()
	l := New(30, time.Minute, WithClock(clock.Now))

	for i := 1; i <= 30; i++ {
		d := l.Check("10.0.0.1")
		require.Truef(t, d.Allowed, "call %d should be allowed", i)
	}

	clock.Advance(15 * time.Second)
	d := l.Check("10.0.0.1")
	require.False(t, d.Allowed, "31st call must be rejected")
	require.Equal(t, 45*time.Second, d.RetryAfter)
	require.Equal(t, 45, d.RetryAfterSeconds())
}

func TestLimiter_WindowResetsAfterElapsing(t *testing.T) {
	clock := newFakeClock()
	l := New(2, time.Minute, WithClock(clock.Now))

	require.True(t, l.Check("c").Allowed)
	require.True(t, l.Check("c").Allowed)
	require.False(t, l.Check("c").Allowed)

	clock.Advance(time.Minute)
	require.True(t, l.Check("c").Allowed, "call after the window elapses starts a new one")
	require.True(t, l.Check("c").Allowed)
	require.False(t, l.Check("c").Allowed)
}

func TestLimiter_IdentifiersAreIndependent(t *testing.T) {
	clock := newFakeClock()
	l := New(1, time.Minute, WithClock(clock.Now))

	require.True(t, l.Check("a").Allowed)
	require.False(t, l.Check("a").Allowed)
	require.True(t, l.Check("b").Allowed)
}

func TestDecision_RetryAfterSecondsRoundsUp(t *testing.T) {
	require.Equal(t, 1, Decision{RetryAfter: 10 * time.Millisecond}.RetryAfterSeconds())
	require.Equal(t, 2, Decision{RetryAfter: 1500 * time.Millisecond}.RetryAfterSeconds())
	require.Equal(t, 0, Decision{Allowed: true}.RetryAfterSeconds())
}

func TestLimiter_Sweep(t *testing.T) {
	clock := newFakeClock()
	l := New(5, time.Minute, WithClock(clock.Now))

	l.Check("old")
	clock.Advance(30 * time.Second)
	l.Check("fresh")
	require.Equal(t, 2, l.Len())

	clock.Advance(31 * time.Second)
	require.Equal(t, 1, l.Sweep())
	require.Equal(t, 1, l.Len())
}

func TestLimiter_ConcurrentChecksNeverExceedLimit(t *testing.T) {
	l := New(10, time.Minute)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check("shared").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 10, allowed)
}
