package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agilenature/libsync/internal/orchestrator"
)

// defaultShutdownTimeout bounds the graceful-drain window when
// orchestrator.shutdown_timeout is unset or fails to parse.
const defaultShutdownTimeout = 30 * time.Second

// shutdownContext returns a context that cancels on the first SIGINT/SIGTERM
// and force-exits on the second, grounded on the teacher's signal.go. Used
// only where there's no Dispatcher to drive through orchestrator.Shutdown —
// sync --watch's outer loop, which hands each pass off to its own
// installShutdown-backed dispatch loop.
func shutdownContext(parent context.Context, logger *slog.Logger, timeout time.Duration) context.Context {
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", slog.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit", slog.String("signal", sig.String()))
			os.Exit(1)
		case <-time.After(timeout):
			logger.Warn("shutdown timed out, forcing exit", slog.Duration("timeout", timeout))
			os.Exit(1)
		case <-parent.Done():
			return
		}
	}()

	return ctx
}

// installShutdown wires orchestrator.Shutdown's two-signal cooperative
// cancellation contract (spec.md §4.5) to the process's OS signals: the
// first SIGINT/SIGTERM triggers Graceful (stop_accepting, await drain,
// force_kill backstop once timeout elapses), the second triggers Emergency
// and exits immediately. Grounded on the teacher's signal.go, generalized
// to drive the Orchestrator's own Shutdown type instead of hand-rolling the
// same two-phase logic a second time in this package.
//
// The returned context is ForceKillContext — it is NOT cancelled by the
// first signal, only once ForceKill actually fires, so RunBatch calls
// already in flight keep running through the graceful drain instead of
// being cut off the instant a signal arrives.
func installShutdown(parent context.Context, logger *slog.Logger, dispatcher *orchestrator.Dispatcher, timeout time.Duration) (context.Context, *orchestrator.Shutdown) {
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	sh := orchestrator.NewShutdown(parent, dispatcher, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received signal, draining in-flight work", slog.String("signal", sig.String()))

			deadline, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			go sh.Graceful(deadline)
		case <-sh.ForceKillContext().Done():
			return
		case <-parent.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit", slog.String("signal", sig.String()))
			sh.Emergency()
			os.Exit(1)
		case <-sh.ForceKillContext().Done():
			return
		case <-parent.Done():
			return
		}
	}()

	return sh.ForceKillContext(), sh
}
