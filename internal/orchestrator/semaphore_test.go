package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDynamicSemaphoreLimitsConcurrency(t *testing.T) {
	sem := newDynamicSemaphore(2)
	ctx := context.Background()

	var active int32
	var maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, sem.Acquire(ctx))
			defer sem.Release()

			n := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&maxActive)
				if n <= old || atomic.CompareAndSwapInt32(&maxActive, old, n) {
					break
				}
			}

			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}

	wg.Wait()
	assert.LessOrEqual(t, maxActive, int32(2))
}

func TestDynamicSemaphoreRaiseLimitReleasesWaiters(t *testing.T) {
	sem := newDynamicSemaphore(1)
	ctx := context.Background()

	require.NoError(t, sem.Acquire(ctx))

	acquired := make(chan struct{})
	go func() {
		require.NoError(t, sem.Acquire(ctx))
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire should have blocked at limit 1")
	case <-time.After(20 * time.Millisecond):
	}

	sem.SetLimit(2)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("raising the limit should have released the waiter")
	}
}

func TestDynamicSemaphoreAcquireRespectsContextCancellation(t *testing.T) {
	sem := newDynamicSemaphore(1)
	ctx := context.Background()
	require.NoError(t, sem.Acquire(ctx))

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	err := sem.Acquire(cctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDynamicSemaphoreLoweringLimitDoesNotPreemptHolders(t *testing.T) {
	sem := newDynamicSemaphore(3)
	ctx := context.Background()

	require.NoError(t, sem.Acquire(ctx))
	require.NoError(t, sem.Acquire(ctx))

	sem.SetLimit(1) // below the current active count of 2

	assert.Equal(t, 1, sem.Limit())

	// A third Acquire should still block since two holders remain active
	// despite the lowered limit.
	done := make(chan struct{})
	go func() {
		require.NoError(t, sem.Acquire(ctx))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("acquire should block while two holders occupy a limit-1 semaphore")
	case <-time.After(20 * time.Millisecond):
	}

	sem.Release()
	sem.Release()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquire should unblock once active count drops to 0")
	}
}
