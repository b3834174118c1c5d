package rateguard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance time deterministically without real sleeps.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestBreaker(clock *fakeClock) *Breaker {
	return NewBreaker(time.Minute, 30*time.Second, clock.Now, nil)
}

func TestBreakerStartsClosed(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := newTestBreaker(clock)

	proceed, isProbe := b.Allow()
	assert.True(t, proceed)
	assert.False(t, isProbe)
	assert.Equal(t, "CLOSED", b.State())
}

func TestBreakerTripsOnThreeConsecutiveRateLimits(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := newTestBreaker(clock)

	b.RecordOutcome(OutcomeRateLimited)
	b.RecordOutcome(OutcomeRateLimited)
	assert.Equal(t, "CLOSED", b.State())

	b.RecordOutcome(OutcomeRateLimited)
	assert.Equal(t, "OPEN", b.State())

	proceed, _ := b.Allow()
	assert.False(t, proceed, "OPEN breaker should skip immediately, not block")
}

func TestBreakerTripsOnErrorRateAboveFivePercent(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := newTestBreaker(clock)

	// 19 successes + 1 error = 5% exactly, should not trip; one more error trips it.
	for i := 0; i < 19; i++ {
		b.RecordOutcome(OutcomeSuccess)
	}

	b.RecordOutcome(OutcomeOther)
	assert.Equal(t, "CLOSED", b.State(), "exactly 5%% should not trip")

	b.RecordOutcome(OutcomeOther)
	assert.Equal(t, "OPEN", b.State())
}

func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := newTestBreaker(clock)

	b.RecordOutcome(OutcomeRateLimited)
	b.RecordOutcome(OutcomeRateLimited)
	b.RecordOutcome(OutcomeRateLimited)
	require.Equal(t, "OPEN", b.State())

	// Before cooldown elapses, still skip.
	proceed, _ := b.Allow()
	assert.False(t, proceed)

	clock.Advance(31 * time.Second)

	proceed, isProbe := b.Allow()
	assert.True(t, proceed)
	assert.True(t, isProbe)
	assert.Equal(t, "HALF_OPEN", b.State())

	// A second caller while the probe is in flight is skipped.
	proceed, _ = b.Allow()
	assert.False(t, proceed)
}

func TestBreakerClosesOnSuccessfulProbe(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := newTestBreaker(clock)

	b.RecordOutcome(OutcomeRateLimited)
	b.RecordOutcome(OutcomeRateLimited)
	b.RecordOutcome(OutcomeRateLimited)
	clock.Advance(31 * time.Second)

	_, isProbe := b.Allow()
	require.True(t, isProbe)

	b.RecordOutcome(OutcomeSuccess)
	assert.Equal(t, "CLOSED", b.State())
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := newTestBreaker(clock)

	b.RecordOutcome(OutcomeRateLimited)
	b.RecordOutcome(OutcomeRateLimited)
	b.RecordOutcome(OutcomeRateLimited)
	clock.Advance(31 * time.Second)

	_, isProbe := b.Allow()
	require.True(t, isProbe)

	b.RecordOutcome(OutcomeRateLimited)
	assert.Equal(t, "OPEN", b.State())
}

func TestBreakerPacingMultiplierTriplesWhenOpen(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := newTestBreaker(clock)

	assert.Equal(t, 1, b.PacingMultiplier())

	b.RecordOutcome(OutcomeRateLimited)
	b.RecordOutcome(OutcomeRateLimited)
	b.RecordOutcome(OutcomeRateLimited)

	assert.Equal(t, 3, b.PacingMultiplier())
}

func TestBreakerPrunesEventsOutsideWindow(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	b := newTestBreaker(clock)

	b.RecordOutcome(OutcomeOther)
	clock.Advance(2 * time.Minute) // outside the 1-minute window

	for i := 0; i < 10; i++ {
		b.RecordOutcome(OutcomeSuccess)
	}

	assert.Equal(t, "CLOSED", b.State(), "the stale error should have been pruned from the window")
}
