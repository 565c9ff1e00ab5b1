package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/tonimelisma/edge-datahub/internal/ident"
	"github.com/tonimelisma/edge-datahub/internal/store"
)

// CycleSummary is the last known outcome of one direction.
type CycleSummary struct {
	EventID    string    `json:"eventId"`
	FinishedAt time.Time `json:"finishedAt"`
	Synced     int       `json:"synced"`
	Error      string    `json:"error,omitempty"`
}

// Snapshot is a point-in-time copy of the shared sync status.
type Snapshot struct {
	CloudConnected bool          `json:"cloudConnected"`
	LastProbeAt    *time.Time    `json:"lastProbeAt"`
	Uploading      bool          `json:"uploading"`
	Downloading    bool          `json:"downloading"`
	LastUpload     *CycleSummary `json:"lastUpload"`
	LastDownload   *CycleSummary `json:"lastDownload"`
	UploadCycles   int           `json:"uploadCycles"`
	DownloadCycles int           `json:"downloadCycles"`
	UploadFailures int           `json:"consecutiveUploadFailures"`
}

// StatusStore is the thread-safe status shared by the probe loop, the
// scheduler, the engine and the HTTP surface. Subscribers receive the
// latest snapshot after every change; a slow subscriber only ever sees
// the most recent one.
type StatusStore struct {
	mu   stdsync.RWMutex
	snap Snapshot
	subs map[int]chan Snapshot
	next int
}

// NewStatusStore returns an empty store reporting the cloud as offline.
func NewStatusStore() *StatusStore {
	return &StatusStore{subs: make(map[int]chan Snapshot)}
}

// Snapshot returns a copy of the current status.
func (s *StatusStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snap
}

// Connected reports the last probe result.
func (s *StatusStore) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snap.CloudConnected
}

// SetConnected records a probe result taken at the given time.
func (s *StatusStore) SetConnected(ok bool, at time.Time) {
	s.update(func(snap *Snapshot) {
		snap.CloudConnected = ok
		snap.LastProbeAt = &at
	})
}

// Subscribe returns a channel of snapshots and a cancel func. The current
// snapshot is delivered immediately.
func (s *StatusStore) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	ch <- s.snap
	s.mu.Unlock()

	var once stdsync.Once

	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *StatusStore) setRunning(dir Direction, running bool) {
	s.update(func(snap *Snapshot) {
		if dir == DirectionUpload {
			snap.Uploading = running
		} else {
			snap.Downloading = running
		}
	})
}

func (s *StatusStore) recordCycle(r *CycleReport) {
	sum := &CycleSummary{
		EventID:    r.EventID,
		FinishedAt: r.FinishedAt,
		Synced:     r.Synced(),
		Error:      errString(r.Err()),
	}

	s.update(func(snap *Snapshot) {
		if r.Direction == DirectionDownload {
			snap.LastDownload = sum
			snap.DownloadCycles++

			return
		}

		snap.LastUpload = sum
		snap.UploadCycles++

		if sum.Error != "" {
			snap.UploadFailures++
		} else {
			snap.UploadFailures = 0
		}
	})
}

func (s *StatusStore) update(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.snap)

	for _, ch := range s.subs {
		// Replace a stale pending snapshot with the new one.
		select {
		case <-ch:
		default:
		}

		ch <- s.snap
	}
}

// SyncStatus is the operator view of one event (or all events): live
// cloud reachability plus local row and pending-upload counts.
type SyncStatus struct {
	CloudConnected bool   `json:"cloudConnected"`
	EventID        string `json:"eventId"` // "all" when no event was named

	store.Counts

	PendingUploads int      `json:"pending"`
	Status         Snapshot `json:"status"`
}

// SyncStatus probes the cloud and counts local rows. An empty eventRef
// counts across every event.
func (e *Engine) SyncStatus(ctx context.Context, eventRef string) (*SyncStatus, error) {
	out := &SyncStatus{EventID: "all"}

	var eventID ident.LocalID

	if eventRef != "" {
		ev, err := e.store.GetEvent(ctx, eventRef)
		if err != nil {
			return nil, fmt.Errorf("sync: status for event %s: %w", eventRef, err)
		}

		eventID = ev.LocalID
		out.EventID = eventRef
	}

	counts, err := e.store.Counts(ctx, eventID)
	if err != nil {
		return nil, err
	}

	out.Counts = counts
	out.PendingUploads = counts.Pending()
	out.CloudConnected = e.Probe(ctx)
	out.Status = e.status.Snapshot()

	return out, nil
}

// Probe checks cloud reachability once and records the result.
func (e *Engine) Probe(ctx context.Context) bool {
	ok := e.cloud.Reachable(ctx)
	e.status.SetConnected(ok, e.nowFunc())

	return ok
}
