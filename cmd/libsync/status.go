package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/agilenature/libsync/internal/catalog"
	"github.com/agilenature/libsync/internal/cli"
)

// errorsReportLimit bounds how many recent FAILED transitions `status
// --errors` prints, matching the teacher's habit of capping status detail
// sections rather than dumping an unbounded audit trail.
const errorsReportLimit = 20

var (
	flagStatusErrors   bool
	flagStatusExpiring bool
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-state record counts, orphan backlog, and pause state",
		RunE:  runStatus,
	}

	cmd.Flags().BoolVar(&flagStatusErrors, "errors", false, "include the most recent FAILED transitions")
	cmd.Flags().BoolVar(&flagStatusExpiring, "expiring", false, "include INDEXED records whose remote expiration has passed")

	return cmd
}

// statusReport is the JSON/text-renderable shape of `status`'s output.
type statusReport struct {
	Store       string            `json:"store"`
	Paused      bool              `json:"paused"`
	PausedUntil string            `json:"paused_until,omitempty"`
	Counts      map[string]int    `json:"counts"`
	OrphanCount int               `json:"orphan_count"`
	Errors      []statusAuditItem `json:"errors,omitempty"`
	Expiring    []string          `json:"expiring,omitempty"`
}

type statusAuditItem struct {
	Path   string `json:"path"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
	At     string `json:"at"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	report, err := buildStatusReport(ctx, cc)
	if err != nil {
		return err
	}

	if cc.JSON {
		return printStatusJSON(report)
	}

	printStatusText(report)

	return nil
}

func buildStatusReport(ctx context.Context, cc *CLIContext) (statusReport, error) {
	report := statusReport{Store: cc.Cfg.Remote.Store}

	counts, err := cc.Store.CountByState(ctx)
	if err != nil {
		return report, fmt.Errorf("loading state counts: %w", err)
	}

	report.Counts = make(map[string]int, len(counts))
	for state, n := range counts {
		report.Counts[string(state)] = n
	}

	orphans, err := cc.Store.LoadOrphans(ctx)
	if err != nil {
		return report, fmt.Errorf("loading orphans: %w", err)
	}
	report.OrphanCount = len(orphans)

	paused, until, err := cc.Store.IsPaused(ctx)
	if err != nil {
		return report, fmt.Errorf("loading pause state: %w", err)
	}
	report.Paused = paused
	report.PausedUntil = until

	if flagStatusErrors {
		entries, err := cc.Store.ListAuditErrors(ctx, errorsReportLimit)
		if err != nil {
			return report, fmt.Errorf("loading audit errors: %w", err)
		}

		for _, e := range entries {
			report.Errors = append(report.Errors, statusAuditItem{
				Path:   e.FilePath,
				From:   string(e.FromState),
				To:     string(e.ToState),
				Reason: e.Reason,
				At:     time.Unix(0, e.At).Format(time.RFC3339),
			})
		}
	}

	if flagStatusExpiring {
		expiring, err := cc.Store.LoadExpiring(ctx, time.Now().UnixNano())
		if err != nil {
			return report, fmt.Errorf("loading expiring records: %w", err)
		}

		for _, rec := range expiring {
			report.Expiring = append(report.Expiring, rec.FilePath)
		}
	}

	return report, nil
}

func printStatusJSON(report statusReport) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

func printStatusText(report statusReport) {
	fmt.Printf("Store: %s\n", report.Store)

	if report.Paused {
		fmt.Printf("Paused: yes (until %s)\n", report.PausedUntil)
	} else {
		fmt.Println("Paused: no")
	}

	states := []catalog.FileState{
		catalog.StateUntracked, catalog.StateUploading, catalog.StateProcessing,
		catalog.StateIndexed, catalog.StateFailed,
	}

	rows := make([][]string, 0, len(states))
	for _, s := range states {
		rows = append(rows, []string{string(s), fmt.Sprintf("%d", report.Counts[string(s)])})
	}

	cli.PrintTable(os.Stdout, []string{"STATE", "COUNT"}, rows)
	fmt.Printf("Orphans pending drain: %d\n", report.OrphanCount)

	if len(report.Errors) > 0 {
		fmt.Println("\nRecent errors:")

		sort.Slice(report.Errors, func(i, j int) bool { return report.Errors[i].At > report.Errors[j].At })

		errRows := make([][]string, 0, len(report.Errors))
		for _, e := range report.Errors {
			errRows = append(errRows, []string{e.Path, e.From + "->" + e.To, e.Reason, e.At})
		}

		cli.PrintTable(os.Stdout, []string{"PATH", "TRANSITION", "REASON", "AT"}, errRows)
	}

	if len(report.Expiring) > 0 {
		fmt.Println("\nExpired:")

		for _, path := range report.Expiring {
			fmt.Printf("  %s\n", path)
		}
	}
}
