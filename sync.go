package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/edge-datahub/internal/sync"
)

// errCycleIncomplete marks a cycle that ran but had phase or batch
// failures. The report already lists them, so main exits without
// repeating the message.
var errCycleIncomplete = errors.New("sync cycle finished with errors")

var flagEventID string

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a one-shot sync cycle with the cloud",
		Long: `Run one download or upload cycle and print its per-phase report.

download pulls an event, its attendees and its experiences, and marks the
event as the target for uploads. upload pushes unsynced attendees, plays
and redemptions of the target event.`,
	}

	download := &cobra.Command{
		Use:   "download",
		Short: "Download an event's reference data from the cloud",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSyncCycle(cmd.Context(), os.Stdout, func(ctx context.Context, e *sync.Engine) (*sync.CycleReport, error) {
				return e.Download(ctx, flagEventID)
			})
		},
	}

	download.Flags().StringVar(&flagEventID, "event", "", "cloud event id to download (required)")
	_ = download.MarkFlagRequired("event")

	upload := &cobra.Command{
		Use:   "upload",
		Short: "Upload unsynced records of the target event",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSyncCycle(cmd.Context(), os.Stdout, func(ctx context.Context, e *sync.Engine) (*sync.CycleReport, error) {
				return e.Upload(ctx)
			})
		},
	}

	cmd.AddCommand(download, upload)

	return cmd
}

func runSyncCycle(
	ctx context.Context, w io.Writer, cycle func(context.Context, *sync.Engine) (*sync.CycleReport, error),
) error {
	logger := buildLogger(os.Stderr)
	status := sync.NewStatusStore()
	ctx = shutdownContext(ctx, status, logger)

	a, err := openApp(ctx, resolvedCfg, status, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := cycle(ctx, a.engine)
	if err != nil {
		return err
	}

	return writeCycleReport(w, report, flagJSON)
}

// writeCycleReport prints the report and returns errCycleIncomplete when
// any phase or batch failed.
func writeCycleReport(w io.Writer, report *sync.CycleReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
	} else {
		printCycleReport(w, report)
	}

	if report.Err() != nil {
		return errCycleIncomplete
	}

	return nil
}
