package main

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/agilenature/libsync/internal/cli"
)

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause [duration]",
		Short: "Pause sync and upload for this library",
		Long: `Pause records that sync and upload should skip their work until the
library is resumed with "resume". An optional duration (e.g., "2h", "30m",
"1d") is stored as a paused-until time that status and sync display; the
pause does not end on its own when that time passes.

If a sync --watch daemon is running, it receives a SIGHUP.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runPause,
	}
}

func runPause(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	until := ""

	if len(args) > 0 {
		duration, err := parsePauseDuration(args[0])
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", args[0], err)
		}

		until = time.Now().Add(duration).Format(time.RFC3339)
	}

	if err := cc.Store.SetPaused(cmd.Context(), true, until); err != nil {
		return fmt.Errorf("setting paused flag: %w", err)
	}

	if until != "" {
		cli.Statusf(cc.Quiet, "paused until %s\n", until)
	} else {
		cli.Statusf(cc.Quiet, "paused\n")
	}

	notifyDaemon(cc)

	return nil
}

// notifyDaemon attempts to send SIGHUP to a running sync --watch daemon.
// Non-fatal: no daemon running is the common case, not an error.
func notifyDaemon(cc *CLIContext) {
	pidPath := watchPIDPath(cc.Cfg.Library.Root)

	if err := sendSIGHUP(pidPath); err != nil {
		cli.Statusf(cc.Quiet, "note: %v\n", err)
	} else {
		cli.Statusf(cc.Quiet, "notified running watch daemon\n")
	}
}

// hoursPerDay converts a "d" duration suffix to hours.
const hoursPerDay = 24

// durationPattern matches durations like "30m", "2h", "1d", "1h30m".
var durationPattern = regexp.MustCompile(`^(\d+d)?(\d+h)?(\d+m)?(\d+s)?$`)

// parsePauseDuration parses Go duration syntax plus a "d" day suffix,
// adapted from the teacher's pause.go parseDuration.
func parsePauseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("duration must be positive")
		}

		return d, nil
	}

	if s == "" || !durationPattern.MatchString(s) {
		return 0, fmt.Errorf("expected format like 30m, 2h, 1d, or 1h30m")
	}

	var total time.Duration

	re := regexp.MustCompile(`(\d+)([dhms])`)
	for _, match := range re.FindAllStringSubmatch(s, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil {
			return 0, fmt.Errorf("invalid number %q: %w", match[1], err)
		}

		switch match[2] {
		case "d":
			total += time.Duration(n) * hoursPerDay * time.Hour
		case "h":
			total += time.Duration(n) * time.Hour
		case "m":
			total += time.Duration(n) * time.Minute
		case "s":
			total += time.Duration(n) * time.Second
		}
	}

	if total <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}

	return total, nil
}
