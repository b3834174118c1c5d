package orchestrator

import (
	"context"
	"log/slog"
	"sync"
)

// Shutdown exposes the Orchestrator's two-signal cooperative cancellation
// contract (spec.md §4.5): StopAccepting gates the dispatch loop's source
// off while letting in-flight work finish; ForceKill cancels the context
// every RemoteClient/Catalog call is issued with, for an immediate
// backstop. This mirrors the teacher's shutdownContext (first signal
// cancels gracefully, second force-exits) but as a plain API the CLI's own
// OS-signal handler calls into, rather than tying the Orchestrator
// directly to os/signal — the Orchestrator shouldn't know its caller is a
// terminal process at all.
type Shutdown struct {
	dispatcher *Dispatcher
	logger     *slog.Logger

	cancelForce context.CancelFunc
	forceCtx    context.Context

	once sync.Once
}

// NewShutdown derives ForceKill's cancellable context from parent. Pass
// ForceKillContext() to every RemoteClient call and Catalog transaction
// the dispatch loop issues.
func NewShutdown(parent context.Context, dispatcher *Dispatcher, logger *slog.Logger) *Shutdown {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(parent)

	return &Shutdown{dispatcher: dispatcher, logger: logger, forceCtx: ctx, cancelForce: cancel}
}

// ForceKillContext is the context to thread through dispatch work; it is
// cancelled when ForceKill fires.
func (s *Shutdown) ForceKillContext() context.Context {
	return s.forceCtx
}

// Graceful fires stop_accepting, waits for in-flight work to drain, then
// fires force_kill as a backstop — spec.md §4.5: "A graceful shutdown
// fires stop_accepting, awaits drain, then fires force_kill as a
// backstop."
func (s *Shutdown) Graceful(ctx context.Context) {
	s.StopAccepting()

	drained := make(chan struct{})
	go func() {
		s.dispatcher.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		s.logger.Info("orchestrator: drain complete")
	case <-ctx.Done():
		s.logger.Warn("orchestrator: drain deadline exceeded, forcing kill")
		s.ForceKill()
	}
}

// Emergency fires both signals at once — spec.md §4.5: "emergency shutdown
// fires both."
func (s *Shutdown) Emergency() {
	s.StopAccepting()
	s.ForceKill()
}

// StopAccepting enters drain mode without touching in-flight work.
func (s *Shutdown) StopAccepting() {
	s.dispatcher.StopAccepting()
}

// ForceKill cancels ForceKillContext, immediately unblocking every
// suspension point (RateGuard waits, RemoteClient calls, Catalog
// transactions) with a context-cancelled error. Idempotent.
func (s *Shutdown) ForceKill() {
	s.once.Do(func() {
		s.logger.Warn("orchestrator: force kill")
		s.cancelForce()
	})
}
