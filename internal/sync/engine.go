// Package sync moves records between the edge store and the cloud.
//
// Download pulls the authoritative event, attendees and experiences for one
// event and overwrites local reference data. Upload pushes every unsynced
// attendee, play and redemption of the sync-target event in bounded
// batches and reconciles cloud ids back onto the local rows. Each phase and
// each batch is isolated: a failure is recorded in the CycleReport and the
// next batch or phase proceeds. Rows that fail stay unsynced and are picked
// up again by the next cycle.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/tonimelisma/edge-datahub/internal/cloud"
	"github.com/tonimelisma/edge-datahub/internal/store"
)

// Sentinel errors returned by cycle entry points.
var (
	ErrSyncInProgress = errors.New("sync: cycle already in progress")
	ErrNoSyncTarget   = errors.New("sync: no sync target event (run a download first)")
	ErrEventRequired  = errors.New("sync: event id is required")
)

// Cloud is the subset of the cloud client the engine drives.
type Cloud interface {
	Configured() bool
	Reachable(ctx context.Context) bool
	GetEvent(ctx context.Context, eventID string) (*cloud.Event, error)
	ListAttendees(ctx context.Context, eventID string) ([]cloud.Attendee, error)
	ListExperiences(ctx context.Context, eventID string) ([]cloud.Experience, error)
	UploadAttendees(ctx context.Context, eventID string, batch []cloud.AttendeeUpload) ([]cloud.AttendeeAck, error)
	UploadPlays(ctx context.Context, eventID string, batch []cloud.PlayUpload) ([]cloud.RecordAck, error)
	UploadRedemptions(ctx context.Context, eventID string, batch []cloud.RedemptionUpload) ([]cloud.RecordAck, error)
}

// Engine runs download and upload cycles. Each direction is guarded by a
// non-blocking flag so overlapping triggers fail fast instead of queuing.
type Engine struct {
	store  *store.Store
	cloud  Cloud
	status *StatusStore
	logger *slog.Logger

	mu        stdsync.RWMutex
	batchSize int

	downloading atomic.Bool
	uploading   atomic.Bool

	nowFunc func() time.Time
}

// NewEngine creates an engine. status may be nil when no one observes it.
func NewEngine(st *store.Store, c Cloud, status *StatusStore, batchSize int, logger *slog.Logger) *Engine {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	if status == nil {
		status = NewStatusStore()
	}

	return &Engine{
		store:     st,
		cloud:     c,
		status:    status,
		logger:    logger,
		batchSize: batchSize,
		nowFunc:   time.Now,
	}
}

// SetBatchSize changes the batch size for subsequent cycles. Values <= 0
// restore the default.
func (e *Engine) SetBatchSize(n int) {
	if n <= 0 {
		n = DefaultBatchSize
	}

	e.mu.Lock()
	e.batchSize = n
	e.mu.Unlock()
}

// Status returns the engine's status store.
func (e *Engine) Status() *StatusStore {
	return e.status
}

func (e *Engine) currentBatchSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.batchSize
}

func (e *Engine) runner() *phaseRunner {
	return &phaseRunner{logger: e.logger, nowFunc: e.nowFunc}
}

// begin checks configuration and takes the direction's guard. The returned
// func releases it.
func (e *Engine) begin(dir Direction) (func(), error) {
	if !e.cloud.Configured() {
		return nil, fmt.Errorf("sync: %s: %w", dir, cloud.ErrNotConfigured)
	}

	guard := &e.uploading
	if dir == DirectionDownload {
		guard = &e.downloading
	}

	if !guard.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("sync: %s: %w", dir, ErrSyncInProgress)
	}

	e.status.setRunning(dir, true)

	return func() {
		e.status.setRunning(dir, false)
		guard.Store(false)
	}, nil
}

func (e *Engine) finish(report *CycleReport) {
	report.FinishedAt = e.nowFunc()
	e.status.recordCycle(report)

	attrs := []any{
		slog.String("direction", string(report.Direction)),
		slog.String("event_id", report.EventID),
		slog.Int("synced", report.Synced()),
		slog.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	}

	if err := report.Err(); err != nil {
		e.logger.Warn("sync cycle finished with errors", append(attrs, slog.String("error", err.Error()))...)
		return
	}

	e.logger.Info("sync cycle complete", attrs...)
}
