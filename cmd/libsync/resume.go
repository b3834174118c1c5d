package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agilenature/libsync/internal/cli"
)

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume sync and upload for this library",
		RunE:  runResume,
	}
}

func runResume(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := cc.Store.SetPaused(cmd.Context(), false, ""); err != nil {
		return fmt.Errorf("clearing paused flag: %w", err)
	}

	cli.Statusf(cc.Quiet, "resumed\n")

	notifyDaemon(cc)

	return nil
}
