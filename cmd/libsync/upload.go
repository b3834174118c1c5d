package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agilenature/libsync/internal/cli"
	"github.com/agilenature/libsync/internal/orchestrator"
)

var flagUploadLimit int

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Dispatch pending uploads without running the reconciliation sweep",
		Long: `upload drives the Orchestrator directly against whatever the Catalog
already considers pending, skipping sync's mount/binding/orphan/scan
phases. Useful for resuming a partial run or retrying FAILED records.`,
		RunE: runUpload,
	}

	cmd.Flags().IntVar(&flagUploadLimit, "limit", 0, "stop after this many records have been indexed or failed (0 = no limit)")

	return cmd
}

func runUpload(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	root := cc.Cfg.Library.Root
	enrichmentVersion := cc.Cfg.Library.EnrichmentVersion

	if paused, until, err := cc.Store.IsPaused(cmd.Context()); err != nil {
		return fmt.Errorf("checking pause state: %w", err)
	} else if paused {
		cli.Statusf(cc.Quiet, "upload skipped: paused until %s\n", until)
		return nil
	}

	dispatcher, err := newDispatcher(cc, root)
	if err != nil {
		return err
	}

	shutdownTimeout, _ := time.ParseDuration(cc.Cfg.Orchestrator.ShutdownTimeout)
	workCtx, _ := installShutdown(cmd.Context(), cc.Logger, dispatcher, shutdownTimeout)

	var totalIndexed, totalFailed int
	limitHit := false

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

		if flagUploadLimit > 0 && totalIndexed+totalFailed >= flagUploadLimit {
			limitHit = true
			break
		}
	}

	dispatcher.Wait()

	if !limitHit && workCtx.Err() == nil {
		retry := orchestrator.NewRetryPass(dispatcher, cc.Store)
		if cooldown, err := time.ParseDuration(cc.Cfg.Orchestrator.RetryPassCooldown); err == nil {
			retry.SetCooldown(cooldown)
		}

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
