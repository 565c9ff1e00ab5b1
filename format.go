package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tonimelisma/edge-datahub/internal/sync"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// formatDuration rounds for display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}

	return d.Round(10 * time.Millisecond).String()
}

// formatTime returns a compact UTC timestamp, or "never".
func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}

	return t.UTC().Format("2006-01-02 15:04:05Z")
}

// printCycleReport renders a cycle as a header, a phase table and the
// error list.
func printCycleReport(w io.Writer, r *sync.CycleReport) {
	fmt.Fprintf(w, "%s cycle for event %s: %d synced in %s\n\n",
		cases.Title(language.English).String(string(r.Direction)),
		r.EventID, r.Synced(), formatDuration(r.FinishedAt.Sub(r.StartedAt)))

	headers := []string{"PHASE", "SELECTED", "SYNCED", "DEFERRED", "SKIPPED", "BATCHES", "FAILED", "DURATION"}
	rows := make([][]string, 0, len(r.Phases))

	for _, p := range r.Phases {
		rows = append(rows, []string{
			string(p.Phase),
			strconv.Itoa(p.Selected),
			strconv.Itoa(p.Synced),
			strconv.Itoa(p.Deferred),
			strconv.Itoa(p.Skipped),
			strconv.Itoa(len(p.Batches)),
			strconv.Itoa(p.FailedBatches()),
			formatDuration(p.Duration),
		})
	}

	printTable(w, headers, rows)

	var errs []string

	for _, p := range r.Phases {
		if p.Err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", p.Phase, p.Err))
		}

		for _, b := range p.Batches {
			if b.Err != nil {
				errs = append(errs, fmt.Sprintf("%s batch %d: %v", p.Phase, b.Index, b.Err))
			}
		}
	}

	if len(errs) == 0 {
		return
	}

	fmt.Fprintln(w, "\nErrors:")

	for _, e := range errs {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row. The last column is not padded.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		if i == len(cells)-1 {
			parts[i] = cell
			continue
		}

		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.Join(parts, "  "))
}
