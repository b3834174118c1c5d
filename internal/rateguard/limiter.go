// Package rateguard paces outbound requests to the remote store and trips
// a circuit breaker when the remote starts rejecting work, so a struggling
// backend degrades the Orchestrator's throughput instead of its callers
// retry-storming it (SPEC_FULL.md C3).
package rateguard

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"
)

// burstMultiplier controls the token bucket burst size relative to the
// steady-state rate, matching the teacher's BandwidthLimiter sizing so a
// brief lull can be spent catching up without exceeding the configured
// sustained rate.
const burstMultiplier = 2

// Limiter paces requests to at most requestsPerMinute, shared across every
// concurrent dispatch worker.
type Limiter struct {
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewLimiter creates a Limiter from a requests-per-minute budget. Returns
// nil if requestsPerMinute is 0 (unlimited) — callers use the nil-safe
// Wait method either way.
func NewLimiter(requestsPerMinute int, logger *slog.Logger) (*Limiter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if requestsPerMinute < 0 {
		return nil, fmt.Errorf("rateguard: requests_per_minute must be non-negative, got %d", requestsPerMinute)
	}

	if requestsPerMinute == 0 {
		return nil, nil //nolint:nilnil // nil limiter = unlimited; Wait is nil-safe
	}

	perSecond := float64(requestsPerMinute) / 60.0
	burst := requestsPerMinute * burstMultiplier

	if burst < 1 {
		burst = 1
	}

	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)

	logger.Info("rateguard: limiter created",
		slog.Int("requests_per_minute", requestsPerMinute),
		slog.Int("burst", burst),
	)

	return &Limiter{limiter: limiter, logger: logger}, nil
}

// Wait blocks until the caller is permitted to issue one request, or until
// ctx is done. If l is nil, it returns immediately (unlimited).
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}

	return l.limiter.Wait(ctx)
}
