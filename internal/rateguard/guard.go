package rateguard

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Guard combines pacing and circuit breaking into the single coordinator
// the Orchestrator consults before issuing a remote call (spec.md §4.3:
// "RateGuard is a pure coordinator — it does not own I/O. It returns a
// ticket (or a skip signal) to the Orchestrator, which records the
// outcome for window accounting").
type Guard struct {
	limiter         *Limiter
	breaker         *Breaker
	minInterRequest time.Duration

	mu          sync.Mutex
	lastRequest time.Time

	logger *slog.Logger
}

// NewGuard wires a Limiter and Breaker together. minInterRequest enforces
// an additional floor between requests beyond what the token bucket alone
// guarantees (spec.md §4.3: "≈3s gap").
func NewGuard(limiter *Limiter, breaker *Breaker, minInterRequest time.Duration, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}

	return &Guard{limiter: limiter, breaker: breaker, minInterRequest: minInterRequest, logger: logger}
}

// Decision is returned by Acquire.
type Decision struct {
	// Proceed is false when the breaker is OPEN and the caller should skip
	// this unit of work rather than wait (spec.md §4.3).
	Proceed bool
	// IsProbe is true when this call is the single admitted HALF_OPEN
	// probe; its outcome alone determines whether the breaker closes.
	IsProbe bool
}

// Acquire blocks for pacing (tripled while the breaker is OPEN, though an
// OPEN breaker normally short-circuits to Proceed=false before pacing is
// even consulted) and then asks the breaker whether to proceed.
func (g *Guard) Acquire(ctx context.Context) (Decision, error) {
	if g.breaker != nil {
		if proceed, isProbe := g.breaker.Allow(); !proceed {
			return Decision{Proceed: false}, nil
		} else if isProbe {
			// A probe still waits out normal pacing below, then proceeds.
			if err := g.wait(ctx); err != nil {
				return Decision{}, err
			}

			return Decision{Proceed: true, IsProbe: true}, nil
		}
	}

	if err := g.wait(ctx); err != nil {
		return Decision{}, err
	}

	return Decision{Proceed: true}, nil
}

func (g *Guard) wait(ctx context.Context) error {
	multiplier := 1
	if g.breaker != nil {
		multiplier = g.breaker.PacingMultiplier()
	}

	if g.minInterRequest > 0 {
		if err := g.waitInterRequestGap(ctx, multiplier); err != nil {
			return err
		}
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	return nil
}

// waitInterRequestGap serializes callers through the minInterRequest floor.
// Acquire is invoked concurrently from every dispatch goroutine in
// Dispatcher.RunBatch, so lastRequest is read and updated under mu — held
// across the sleep itself, not just the read/write, so concurrent callers
// queue up one gap apart instead of racing the same elapsed reading.
func (g *Guard) waitInterRequestGap(ctx context.Context, multiplier int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	gap := g.minInterRequest * time.Duration(multiplier)

	if !g.lastRequest.IsZero() {
		elapsed := time.Since(g.lastRequest)
		if elapsed < gap {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(gap - elapsed):
			}
		}
	}

	g.lastRequest = time.Now()

	return nil
}

// RecordOutcome reports a request's result for circuit-breaker accounting.
// No-op when no breaker is configured.
func (g *Guard) RecordOutcome(outcome Outcome) {
	if g.breaker != nil {
		g.breaker.RecordOutcome(outcome)
	}
}

// BreakerState reports the underlying breaker's state, or "CLOSED" if no
// breaker is configured (unlimited/ungated).
func (g *Guard) BreakerState() string {
	if g.breaker == nil {
		return "CLOSED"
	}

	return g.breaker.State()
}
