package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPassReturnsImmediatelyOnContextCancellation(t *testing.T) {
	ctx := context.Background()
	store := newTestCatalog(t)
	remote := newFakeRemote()
	files := fakeFileSource{}

	d := NewDispatcher(store, remote, noopGuard(), files, "mystore", 4, 0, nil)
	p := NewRetryPass(d, store)

	cctx, cancel := context.WithCancel(ctx)
	cancel()

	start := time.Now()
	report, err := p.Run(cctx, "v1")
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, BatchReport{}, report)
	assert.Less(t, elapsed, retryPassCooldown, "cancellation should short-circuit the cooldown wait")
}
