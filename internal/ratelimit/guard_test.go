package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
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

func TestGuard_LimitAndRecovery(t *testing.T) {
	clock := newFakeClock()
	guard := NewGuard(20, WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		clock.Advance(10 * time.Millisecond)
		require.NoError(t, guard.Admit(ctx, "K"), "admission %d", i+1)
	}

	err := guard.Admit(ctx, "K")
	require.ErrorIs(t, err, ErrRateLimitExceeded)

	clock.Advance(61 * time.Second)
	require.NoError(t, guard.Admit(ctx, "K"))
}

func TestGuard_RejectionDoesNotRecord(t *testing.T) {
	clock := newFakeClock()
	guard := NewGuard(2, WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, guard.Admit(ctx, "K"))
	clock.Advance(30 * time.Second)
	require.NoError(t, guard.Admit(ctx, "K"))

	for i := 0; i < 5; i++ {
		require.ErrorIs(t, guard.Admit(ctx, "K"), ErrRateLimitExceeded)
	}

	// Only the first stamp has expired; rejected attempts left no trace.
	clock.Advance(31 * time.Second)
	require.NoError(t, guard.Admit(ctx, "K"))
	require.ErrorIs(t, guard.Admit(ctx, "K"), ErrRateLimitExceeded)
}

func TestGuard_KeysAreIndependent(t *testing.T) {
	guard := NewGuard(1)
	ctx := context.Background()

	require.NoError(t, guard.Admit(ctx, "user-1:10.0.0.1"))
	require.NoError(t, guard.Admit(ctx, "user-1:10.0.0.2"))
	require.ErrorIs(t, guard.Admit(ctx, "user-1:10.0.0.1"), ErrRateLimitExceeded)
}

func TestGuard_ConcurrentSameKeyNeverExceedsLimit(t *testing.T) {
	guard := NewGuard(20, WithEvictEvery(7))
	ctx := context.Background()

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if guard.Admit(ctx, "hot") == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(20), admitted.Load())
}

func TestGuard_SweepDropsExpiredKeys(t *testing.T) {
	clock := newFakeClock()
	guard := NewGuard(5, WithClock(clock.Now), WithEvictEvery(0))
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		require.NoError(t, guard.Admit(ctx, fmt.Sprintf("user-%d", i)))
	}
	assert.Equal(t, 50, guard.Len())

	clock.Advance(30 * time.Second)
	require.NoError(t, guard.Admit(ctx, "fresh"))
	assert.Equal(t, 0, guard.Sweep())

	clock.Advance(31 * time.Second)
	assert.Equal(t, 50, guard.Sweep())
	assert.Equal(t, 1, guard.Len())
}

func TestGuard_LazySweepOnAdmission(t *testing.T) {
	clock := newFakeClock()
	guard := NewGuard(5, WithClock(clock.Now), WithEvictEvery(10))
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		require.NoError(t, guard.Admit(ctx, fmt.Sprintf("old-%d", i)))
	}
	clock.Advance(2 * time.Minute)

	// Tenth check triggers the sweep before the new key is inserted.
	require.NoError(t, guard.Admit(ctx, "new"))
	assert.Equal(t, 1, guard.Len())
}
