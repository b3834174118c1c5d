package orchestrator

import (
	"context"
	"time"

	"github.com/agilenature/libsync/internal/catalog"
)

// retryPassCooldown is how long the post-batch retry pass waits, once,
// before its extra dispatch round — spec.md §4.5: "a fixed cool-down
// (≈30s) over any records that landed in FAILED due to transient error
// classes, before surrendering them as permanently FAILED." The constant
// mirrors the style of internal/graph/client.go's backoff constants
// (named, package-level, reapplied here at batch granularity instead of
// per-request).
const retryPassCooldown = 30 * time.Second

// RetryPass gives FAILED records that are still within the retry budget
// (attempt_count below maxTransientAttempts) one more chance by running
// one more RunBatch round after the cooldown. It does not look at how long
// a record has been FAILED or at which error class failed it. Records
// that exhaust the budget are left FAILED permanently — the operator sees
// them via `status --errors`.
type RetryPass struct {
	dispatcher *Dispatcher
	store      *catalog.Store
	cooldown   time.Duration
}

// maxTransientAttempts bounds how many failures (attempt_count) a record
// may accumulate before stepFailedRetry, in any RunBatch round, stops
// resetting it and treats its failure as permanent.
const maxTransientAttempts = 3

func NewRetryPass(dispatcher *Dispatcher, store *catalog.Store) *RetryPass {
	return &RetryPass{dispatcher: dispatcher, store: store, cooldown: retryPassCooldown}
}

// SetCooldown overrides the wait before Run drains FAILED records
// (orchestrator.retry_pass_cooldown). d <= 0 is ignored.
func (p *RetryPass) SetCooldown(d time.Duration) {
	if d > 0 {
		p.cooldown = d
	}
}

// Run waits out the cooldown once, then runs one more ordinary dispatch
// batch over every pending record, not only FAILED ones; records that are
// FAILED with attempt_count under the retry budget are among them. The
// FAILED->UNTRACKED reset happens naturally
// inside the dispatch loop's stepFailedRetry; this pass just gives those
// records one more chance before the caller treats the batch as final.
func (p *RetryPass) Run(ctx context.Context, enrichmentVersion string) (BatchReport, error) {
	select {
	case <-ctx.Done():
		return BatchReport{}, ctx.Err()
	case <-time.After(p.cooldown):
	}

	return p.dispatcher.RunBatch(ctx, enrichmentVersion)
}
