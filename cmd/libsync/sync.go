package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agilenature/libsync/internal/catalog"
	"github.com/agilenature/libsync/internal/cli"
	"github.com/agilenature/libsync/internal/orchestrator"
	"github.com/agilenature/libsync/internal/reconciler"
)

// pruneMissingGrace is how long a file must be marked missing before
// --prune-missing deletes its remote artifacts (spec.md §4.6 phase 4's
// "7 days default").
const pruneMissingGrace = 7 * 24 * time.Hour

var (
	flagDryRun       bool
	flagForce        bool
	flagPruneMissing bool
	flagWatch        bool
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the library against the remote store and upload pending work",
		Long: `sync runs the four-phase reconciliation sweep (mount check, store-binding
check, orphan drain, change classification) and then dispatches any
resulting new or modified files to the remote store.`,
		RunE: runSync,
	}

	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "classify changes without draining orphans or uploading")
	cmd.Flags().BoolVar(&flagForce, "force", false, "rebind the library to --store even if it was bound to a different store")
	cmd.Flags().BoolVar(&flagPruneMissing, "prune-missing", false, "delete remote artifacts for files missing longer than 7 days")
	cmd.Flags().BoolVar(&flagWatch, "watch", false, "stay resident and re-sync on filesystem changes")

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	root := cc.Cfg.Library.Root
	now := time.Now()

	if flagWatch {
		return runWatch(cmd.Context(), cc, root)
	}

	return runSyncOnce(cmd.Context(), cc, root, now)
}

func runSyncOnce(ctx context.Context, cc *CLIContext, root string, now time.Time) error {
	enrichmentVersion := cc.Cfg.Library.EnrichmentVersion

	if flagDryRun {
		scanner := reconciler.NewScanner(cc.Store, cc.Logger, scannerOptions(cc.Cfg)...)
		changes, err := scanner.Scan(ctx, root, enrichmentVersion, now.UnixNano())
		if err != nil {
			return fmt.Errorf("scanning library: %w", err)
		}

		cli.Statusf(cc.Quiet, "dry run: %d new, %d modified, %d missing, %d unchanged, %d mtime-skipped\n",
			len(changes.New), len(changes.Modified), len(changes.Missing), changes.Unchanged, changes.MtimeSkipped)

		return nil
	}

	if paused, until, err := cc.Store.IsPaused(ctx); err != nil {
		return fmt.Errorf("checking pause state: %w", err)
	} else if paused {
		cli.Statusf(cc.Quiet, "sync skipped: paused until %s\n", until)
		return nil
	}

	rec := newReconciler(cc)

	result, err := rec.Reconcile(ctx, root, flagForce, enrichmentVersion, now.UnixNano())
	if err != nil {
		return fmt.Errorf("reconciling: %w", err)
	}

	cli.Statusf(cc.Quiet, "reconcile: %d orphans drained, %d failed; %d new, %d modified, %d missing\n",
		result.OrphansDrained, result.OrphansFailed,
		len(result.Changes.New), len(result.Changes.Modified), len(result.Changes.Missing))

	if flagPruneMissing {
		pruned, err := pruneMissing(ctx, cc, now)
		if err != nil {
			return fmt.Errorf("pruning missing: %w", err)
		}

		cli.Statusf(cc.Quiet, "prune: %d remote artifacts removed\n", pruned)
	}

	return runDispatchLoop(ctx, cc, root, enrichmentVersion)
}

// pruneMissing deletes remote artifacts for every record missing longer
// than pruneMissingGrace, then removes the Catalog row entirely (spec.md
// §4.6 phase 4, P6).
func pruneMissing(ctx context.Context, cc *CLIContext, now time.Time) (int, error) {
	cutoff := now.Add(-pruneMissingGrace).UnixNano()

	missing, err := cc.Store.LoadMissingOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	pruned := 0

	for _, rec := range missing {
		if err := deleteRemoteArtifacts(ctx, cc, rec); err != nil {
			cc.Logger.Warn("prune: failed to delete remote artifacts", "path", rec.FilePath, "error", err)
			continue
		}

		if err := cc.Store.DeleteRecord(ctx, rec.FilePath); err != nil {
			return pruned, fmt.Errorf("deleting record %q: %w", rec.FilePath, err)
		}

		pruned++
	}

	return pruned, nil
}

func deleteRemoteArtifacts(ctx context.Context, cc *CLIContext, rec *catalog.FileRecord) error {
	if rec.RemoteDocID != nil {
		if err := cc.Remote.DeleteDocument(ctx, cc.Cfg.Remote.Store, *rec.RemoteDocID, true); err != nil {
			return err
		}
	}

	if rec.RemoteRawID != nil {
		if err := cc.Remote.DeleteRaw(ctx, *rec.RemoteRawID); err != nil {
			return err
		}
	}

	return nil
}

// runDispatchLoop repeatedly calls RunBatch until a batch loads no pending
// records, since RunBatch itself drains only a single bounded slice.
func runDispatchLoop(ctx context.Context, cc *CLIContext, root, enrichmentVersion string) error {
	dispatcher, err := newDispatcher(cc, root)
	if err != nil {
		return err
	}

	shutdownTimeout, _ := time.ParseDuration(cc.Cfg.Orchestrator.ShutdownTimeout)
	workCtx, _ := installShutdown(ctx, cc.Logger, dispatcher, shutdownTimeout)

	var totalIndexed, totalFailed int

	for {
		report, err := dispatcher.RunBatch(workCtx, enrichmentVersion)
		if err != nil {
			dispatcher.Wait()
			return fmt.Errorf("dispatching batch: %w", err)
		}

		totalIndexed += report.Indexed
		totalFailed += report.Failed

		if report.Indexed+report.Failed+report.Skipped == 0 {
			break
		}
	}

	dispatcher.Wait()

	retry := orchestrator.NewRetryPass(dispatcher, cc.Store)
	if cooldown, err := time.ParseDuration(cc.Cfg.Orchestrator.RetryPassCooldown); err == nil {
		retry.SetCooldown(cooldown)
	}

	if workCtx.Err() == nil {
		report, err := retry.Run(workCtx, enrichmentVersion)
		if err != nil && workCtx.Err() == nil {
			return fmt.Errorf("retry pass: %w", err)
		}

		totalIndexed += report.Indexed
		totalFailed += report.Failed

		dispatcher.Wait()
	}

	cli.Statusf(cc.Quiet, "upload: %d indexed, %d failed\n", totalIndexed, totalFailed)

	return nil
}

func runWatch(ctx context.Context, cc *CLIContext, root string) error {
	cleanup, err := writePIDFile(watchPIDPath(root))
	if err != nil {
		return err
	}
	defer cleanup()

	trigger := func(triggerCtx context.Context) {
		if err := runSyncOnce(triggerCtx, cc, root, time.Now()); err != nil {
			cc.Logger.Error("watch: sync pass failed", "error", err)
		}
	}

	debounce := 500 * time.Millisecond
	if cc.Cfg.Library.WatchDebounce != "" {
		if d, err := time.ParseDuration(cc.Cfg.Library.WatchDebounce); err == nil {
			debounce = d
		}
	}

	watcher := reconciler.NewWatcher(root, debounce, trigger, cc.Logger)

	shutdownTimeout, _ := time.ParseDuration(cc.Cfg.Orchestrator.ShutdownTimeout)
	shutdownCtx := shutdownContext(ctx, cc.Logger, shutdownTimeout)

	cli.Statusf(cc.Quiet, "watching %s (debounce %s)\n", root, debounce)

	return watcher.Run(shutdownCtx)
}
