package rateguard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardAcquireProceedsWhenClosed(t *testing.T) {
	limiter, err := NewLimiter(6000, nil)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Now()}
	breaker := newTestBreaker(clock)

	g := NewGuard(limiter, breaker, 0, nil)

	decision, err := g.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, decision.Proceed)
	assert.False(t, decision.IsProbe)
}

func TestGuardAcquireSkipsWhenBreakerOpen(t *testing.T) {
	limiter, err := NewLimiter(6000, nil)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Now()}
	breaker := newTestBreaker(clock)
	breaker.RecordOutcome(OutcomeRateLimited)
	breaker.RecordOutcome(OutcomeRateLimited)
	breaker.RecordOutcome(OutcomeRateLimited)
	require.Equal(t, "OPEN", breaker.State())

	g := NewGuard(limiter, breaker, 0, nil)

	decision, err := g.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, decision.Proceed)
}

func TestGuardRecordOutcomeIsNoopWithoutBreaker(t *testing.T) {
	limiter, err := NewLimiter(6000, nil)
	require.NoError(t, err)

	g := NewGuard(limiter, nil, 0, nil)
	g.RecordOutcome(OutcomeOther) // must not panic

	assert.Equal(t, "CLOSED", g.BreakerState())
}

func TestGuardAcquireRespectsContextCancellation(t *testing.T) {
	limiter, err := NewLimiter(1, nil) // 1/minute, tiny burst
	require.NoError(t, err)

	g := NewGuard(limiter, nil, time.Hour, nil)

	// Exhaust the first immediate grant, then the context should cancel the wait.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, _ = g.Acquire(context.Background())
	_, err = g.Acquire(ctx)
	assert.Error(t, err)
}
