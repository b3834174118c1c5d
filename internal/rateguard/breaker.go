package rateguard

import (
	"log/slog"
	"sync"
	"time"
)

// Outcome classifies the result of one remote call for window accounting.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRateLimited
	OutcomeServerError
	OutcomeOther
)

// breakerState is one of the three circuit states (spec.md §4.3).
type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// Default window/threshold constants, spec.md §4.3.
const (
	DefaultWindow                 = 60 * time.Second
	DefaultCooldown               = 30 * time.Second
	errorRateThreshold            = 0.05
	consecutiveRateLimitThreshold = 3
	openPacingMultiplier          = 3
)

type event struct {
	at      time.Time
	outcome Outcome
}

// Breaker is a rolling-window circuit breaker. It does not perform I/O — it
// is consulted before a call (Allow) and updated after (RecordOutcome), the
// same split NewBandwidthLimiter's wrap/waitN split uses to keep decision
// logic separate from the I/O it gates.
//
// The clock field mirrors graph.Client's injectable sleepFunc: tests supply
// a fake clock to exercise cooldown transitions without real time passing.
type Breaker struct {
	mu sync.Mutex

	window   time.Duration
	cooldown time.Duration
	clock    func() time.Time
	logger   *slog.Logger

	events                 []event
	consecutiveRateLimited int
	state                  breakerState
	openedAt               time.Time
	probeInFlight          bool
}

// NewBreaker creates a Breaker. A zero window or cooldown falls back to the
// spec.md §4.3 defaults. clock defaults to time.Now.
func NewBreaker(window, cooldown time.Duration, clock func() time.Time, logger *slog.Logger) *Breaker {
	if window <= 0 {
		window = DefaultWindow
	}

	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}

	if clock == nil {
		clock = time.Now
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Breaker{window: window, cooldown: cooldown, clock: clock, logger: logger}
}

// Allow reports whether the caller may proceed, and whether this
// particular call is the single HALF_OPEN probe. When state is OPEN and
// the cooldown hasn't elapsed, Allow returns (false, false) — the caller
// skips this unit of work rather than blocking (spec.md §4.3).
func (b *Breaker) Allow() (proceed, isProbe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()

	switch b.state {
	case stateClosed:
		return true, false
	case stateOpen:
		if now.Sub(b.openedAt) < b.cooldown {
			return false, false
		}

		b.state = stateHalfOpen
		b.probeInFlight = true

		b.logger.Info("rateguard: breaker entering half-open", slog.Time("now", now))

		return true, true
	case stateHalfOpen:
		// Exactly one probe in flight at a time; later callers skip until
		// the probe resolves.
		return false, false
	default:
		return false, false
	}
}

// RecordOutcome updates the rolling window and evaluates trip/recovery
// conditions. Call this after every guarded request, including skipped
// half-open probes that never actually ran (do not call for those).
func (b *Breaker) RecordOutcome(outcome Outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()
	b.events = append(b.events, event{at: now, outcome: outcome})
	b.pruneLocked(now)

	if outcome == OutcomeRateLimited {
		b.consecutiveRateLimited++
	} else {
		b.consecutiveRateLimited = 0
	}

	switch b.state {
	case stateHalfOpen:
		b.probeInFlight = false

		if outcome == OutcomeSuccess {
			b.logger.Info("rateguard: breaker closing after successful probe")
			b.state = stateClosed
			b.consecutiveRateLimited = 0
			b.events = nil
		} else {
			b.logger.Warn("rateguard: probe failed, reopening breaker")
			b.state = stateOpen
			b.openedAt = now
		}
	case stateClosed:
		if b.shouldTripLocked() {
			b.logger.Warn("rateguard: breaker tripping open",
				slog.Int("consecutive_rate_limited", b.consecutiveRateLimited),
				slog.Float64("error_rate", b.errorRateLocked()),
			)
			b.state = stateOpen
			b.openedAt = now
		}
	case stateOpen:
		// A recorded outcome while OPEN (e.g. a non-guarded Reconciler
		// call) doesn't change state; only cooldown elapsing does.
	}
}

func (b *Breaker) shouldTripLocked() bool {
	if b.consecutiveRateLimited >= consecutiveRateLimitThreshold {
		return true
	}

	// The error-rate rule only applies once the window holds enough
	// outcomes for one failure to be at most 5%; below that a single
	// failure would read as a 100% error rate.
	const minErrorRateSamples = 20
	if len(b.events) < minErrorRateSamples {
		return false
	}

	return b.errorRateLocked() > errorRateThreshold
}

func (b *Breaker) errorRateLocked() float64 {
	if len(b.events) == 0 {
		return 0
	}

	var errs int

	for _, e := range b.events {
		if e.outcome != OutcomeSuccess {
			errs++
		}
	}

	return float64(errs) / float64(len(b.events))
}

func (b *Breaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.window)

	i := 0
	for i < len(b.events) && b.events[i].at.Before(cutoff) {
		i++
	}

	b.events = b.events[i:]
}

// State reports the breaker's current state, for `status` reporting.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateOpen:
		return "OPEN"
	case stateHalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}

// PacingMultiplier returns 3 while OPEN (tripling the pacing delay per
// spec.md §4.3), 1 otherwise.
func (b *Breaker) PacingMultiplier() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateOpen {
		return openPacingMultiplier
	}

	return 1
}
