package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/edge-datahub/internal/sync"
)

var flagStatusEvent string

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show local record counts, pending uploads and cloud reachability",
		Long: `Probe the cloud once and count local rows, for one event or all of
them. Pending counts are rows not yet acknowledged by the cloud.`,
		RunE: runStatus,
	}

	cmd.Flags().StringVar(&flagStatusEvent, "event", "", "limit counts to one event (local or cloud id)")

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	logger := buildLogger(os.Stderr)

	a, err := openApp(cmd.Context(), resolvedCfg, sync.NewStatusStore(), logger)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.engine.SyncStatus(cmd.Context(), flagStatusEvent)
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(st)
	}

	printStatus(os.Stdout, st, resolvedCfg.APIBase)

	return nil
}

func printStatus(w io.Writer, st *sync.SyncStatus, apiBase string) {
	cloudState := "unreachable"

	switch {
	case apiBase == "":
		cloudState = "not configured"
	case st.CloudConnected:
		cloudState = "reachable"
	}

	fmt.Fprintf(w, "Event:  %s\n", st.EventID)
	fmt.Fprintf(w, "Cloud:  %s", cloudState)

	if apiBase != "" {
		fmt.Fprintf(w, " (%s)", apiBase)
	}

	fmt.Fprintf(w, "\n\n")

	printTable(w, []string{"ENTITY", "LOCAL", "PENDING"}, [][]string{
		{"attendees", strconv.Itoa(st.Attendees), strconv.Itoa(st.UnsyncedAttendees)},
		{"experiences", strconv.Itoa(st.Experiences), "-"},
		{"plays", strconv.Itoa(st.Plays), strconv.Itoa(st.UnsyncedPlays)},
		{"redemptions", strconv.Itoa(st.Redemptions), strconv.Itoa(st.UnsyncedRedemptions)},
	})

	fmt.Fprintf(w, "\nPending uploads: %d\n", st.PendingUploads)
}
