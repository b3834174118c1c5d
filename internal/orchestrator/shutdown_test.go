package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGracefulDrainsThenReturnsWithoutForceKill(t *testing.T) {
	ctx := context.Background()
	store := newTestCatalog(t)
	remote := newFakeRemote()
	files := fakeFileSource{}

	require.NoError(t, store.EnsureTracked(ctx, "doc.txt", "hash1", 10, 1000, "v1", 1))

	d := NewDispatcher(store, remote, noopGuard(), files, "mystore", 4, 0, nil)
	sd := NewShutdown(ctx, d, nil)

	_, err := d.RunBatch(ctx, "v1")
	require.NoError(t, err)

	deadline, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	sd.Graceful(deadline)

	assert.NoError(t, sd.ForceKillContext().Err(), "drain completed before the deadline, force kill never fired")

	report, err := d.RunBatch(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, BatchReport{}, report, "stop_accepting remains in effect after a graceful shutdown")
}

func TestGracefulForceKillsPastDeadline(t *testing.T) {
	ctx := context.Background()
	store := newTestCatalog(t)
	remote := newFakeRemote()
	files := fakeFileSource{}

	d := NewDispatcher(store, remote, noopGuard(), files, "mystore", 4, 0, nil)
	sd := NewShutdown(ctx, d, nil)

	// Hold the drain open past the deadline by occupying the dispatcher's
	// own WaitGroup directly, simulating an in-flight dispatch goroutine
	// that hasn't finished yet.
	d.wg.Add(1)
	defer d.wg.Done()

	deadline, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	sd.Graceful(deadline)

	assert.Error(t, sd.ForceKillContext().Err(), "drain deadline passed, force kill should have fired")
}

func TestEmergencyFiresBothSignalsImmediately(t *testing.T) {
	ctx := context.Background()
	store := newTestCatalog(t)
	remote := newFakeRemote()
	files := fakeFileSource{}

	d := NewDispatcher(store, remote, noopGuard(), files, "mystore", 4, 0, nil)
	sd := NewShutdown(ctx, d, nil)

	sd.Emergency()

	assert.Error(t, sd.ForceKillContext().Err())

	report, err := d.RunBatch(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, BatchReport{}, report)
}

func TestForceKillIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestCatalog(t)
	remote := newFakeRemote()
	files := fakeFileSource{}

	d := NewDispatcher(store, remote, noopGuard(), files, "mystore", 4, 0, nil)
	sd := NewShutdown(ctx, d, nil)

	sd.ForceKill()
	sd.ForceKill()

	assert.Error(t, sd.ForceKillContext().Err())
}
