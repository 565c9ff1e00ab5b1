package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Direction names which way a cycle moves data.
type Direction string

// Cycle directions.
const (
	DirectionDownload Direction = "download"
	DirectionUpload   Direction = "upload"
)

// Phase names one entity pass within a cycle.
type Phase string

// Phases in the order they run.
const (
	PhaseEvent       Phase = "event"
	PhaseAttendees   Phase = "attendees"
	PhaseExperiences Phase = "experiences"
	PhasePlays       Phase = "plays"
	PhaseRedemptions Phase = "redemptions"
)

// BatchResult is the outcome of one bounded batch. For uploads Accepted is
// the number of acknowledgements the cloud returned and Marked the number
// of local rows flipped to synced; for downloads Marked counts rows written.
type BatchResult struct {
	Index    int
	Size     int
	Accepted int
	Marked   int
	Err      error
}

// PhaseReport is the outcome of one phase. Err is set when the phase
// could not run at all; per-batch failures live in Batches.
type PhaseReport struct {
	Phase    Phase
	Selected int // rows fetched from the cloud or read from the store
	Synced   int
	Deferred int // rows held back until a dependency is synced
	Skipped  int // rows rejected as unusable
	Batches  []BatchResult
	Duration time.Duration
	Err      error
}

// FailedBatches returns how many batches ended with an error.
func (p *PhaseReport) FailedBatches() int {
	n := 0

	for i := range p.Batches {
		if p.Batches[i].Err != nil {
			n++
		}
	}

	return n
}

// CycleReport summarizes one download or upload cycle.
type CycleReport struct {
	Direction  Direction
	EventID    string // remote id of the event the cycle ran against
	StartedAt  time.Time
	FinishedAt time.Time
	Phases     []*PhaseReport
}

// Phase returns the report for the named phase, or nil.
func (r *CycleReport) Phase(name Phase) *PhaseReport {
	for _, p := range r.Phases {
		if p.Phase == name {
			return p
		}
	}

	return nil
}

// Synced returns the total rows synced across phases.
func (r *CycleReport) Synced() int {
	n := 0
	for _, p := range r.Phases {
		n += p.Synced
	}

	return n
}

// Err joins every phase and batch error, or returns nil for a clean cycle.
func (r *CycleReport) Err() error {
	var errs []error

	for _, p := range r.Phases {
		if p.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Phase, p.Err))
		}

		for i := range p.Batches {
			if b := p.Batches[i]; b.Err != nil {
				errs = append(errs, fmt.Errorf("%s batch %d: %w", p.Phase, b.Index, b.Err))
			}
		}
	}

	return errors.Join(errs...)
}

type batchJSON struct {
	Index    int    `json:"index"`
	Size     int    `json:"size"`
	Accepted int    `json:"accepted"`
	Marked   int    `json:"marked"`
	Error    string `json:"error,omitempty"`
}

type phaseJSON struct {
	Phase      Phase       `json:"phase"`
	Selected   int         `json:"selected"`
	Synced     int         `json:"synced"`
	Deferred   int         `json:"deferred"`
	Skipped    int         `json:"skipped"`
	Batches    []batchJSON `json:"batches"`
	DurationMS int64       `json:"durationMs"`
	Error      string      `json:"error,omitempty"`
}

// MarshalJSON renders errors as strings.
func (p *PhaseReport) MarshalJSON() ([]byte, error) {
	out := phaseJSON{
		Phase:      p.Phase,
		Selected:   p.Selected,
		Synced:     p.Synced,
		Deferred:   p.Deferred,
		Skipped:    p.Skipped,
		Batches:    make([]batchJSON, 0, len(p.Batches)),
		DurationMS: p.Duration.Milliseconds(),
		Error:      errString(p.Err),
	}

	for _, b := range p.Batches {
		out.Batches = append(out.Batches, batchJSON{
			Index:    b.Index,
			Size:     b.Size,
			Accepted: b.Accepted,
			Marked:   b.Marked,
			Error:    errString(b.Err),
		})
	}

	return json.Marshal(out)
}

// MarshalJSON adds the cycle totals.
func (r *CycleReport) MarshalJSON() ([]byte, error) {
	type cycleJSON struct {
		Direction  Direction      `json:"direction"`
		EventID    string         `json:"eventId"`
		StartedAt  time.Time      `json:"startedAt"`
		FinishedAt time.Time      `json:"finishedAt"`
		Synced     int            `json:"synced"`
		Phases     []*PhaseReport `json:"phases"`
		Error      string         `json:"error,omitempty"`
	}

	phases := r.Phases
	if phases == nil {
		phases = []*PhaseReport{}
	}

	return json.Marshal(cycleJSON{
		Direction:  r.Direction,
		EventID:    r.EventID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Synced:     r.Synced(),
		Phases:     phases,
		Error:      errString(r.Err()),
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
