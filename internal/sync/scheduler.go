package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// Default loop periods.
const (
	DefaultUploadInterval = 10 * time.Minute
	DefaultProbeInterval  = 30 * time.Second
)

// ErrCloudOffline means a scheduled upload was skipped because the probe
// failed.
var ErrCloudOffline = errors.New("sync: cloud unreachable")

// Scheduler drives the probe loop and the periodic upload. Upload ticks
// are gated by a fresh probe; there is no backoff beyond the tick period.
// Intervals can be changed while the loops run.
type Scheduler struct {
	engine *Engine
	logger *slog.Logger

	uploadEvery atomic.Int64
	probeEvery  atomic.Int64
	enabled     atomic.Bool

	uploadReset chan struct{}
	probeReset  chan struct{}
}

// NewScheduler creates a scheduler. Non-positive intervals use defaults.
func NewScheduler(engine *Engine, uploadEvery, probeEvery time.Duration, logger *slog.Logger) *Scheduler {
	s := &Scheduler{
		engine:      engine,
		logger:      logger,
		uploadReset: make(chan struct{}, 1),
		probeReset:  make(chan struct{}, 1),
	}

	s.enabled.Store(true)
	s.SetIntervals(uploadEvery, probeEvery)

	return s
}

// SetIntervals updates both periods. Running loops pick the change up on
// their next select.
func (s *Scheduler) SetIntervals(uploadEvery, probeEvery time.Duration) {
	if uploadEvery <= 0 {
		uploadEvery = DefaultUploadInterval
	}

	if probeEvery <= 0 {
		probeEvery = DefaultProbeInterval
	}

	if old := s.uploadEvery.Swap(int64(uploadEvery)); old != int64(uploadEvery) {
		notify(s.uploadReset)
	}

	if old := s.probeEvery.Swap(int64(probeEvery)); old != int64(probeEvery) {
		notify(s.probeReset)
	}
}

// SetEnabled turns scheduled uploads on or off. The probe loop keeps
// running either way.
func (s *Scheduler) SetEnabled(on bool) {
	s.enabled.Store(on)
}

// Intervals returns the current upload and probe periods.
func (s *Scheduler) Intervals() (upload, probe time.Duration) {
	return time.Duration(s.uploadEvery.Load()), time.Duration(s.probeEvery.Load())
}

// RunProbeLoop probes immediately and then every probe interval, recording
// each result in the status store. It returns when ctx is canceled.
func (s *Scheduler) RunProbeLoop(ctx context.Context) error {
	s.probe(ctx)

	return s.loop(ctx, &s.probeEvery, s.probeReset, func() { s.probe(ctx) })
}

// RunUploadLoop runs Tick every upload interval until ctx is canceled.
func (s *Scheduler) RunUploadLoop(ctx context.Context) error {
	return s.loop(ctx, &s.uploadEvery, s.uploadReset, func() {
		if _, err := s.Tick(ctx); err != nil {
			s.logTickError(err)
		}
	})
}

// Tick runs one scheduled upload: probe first, upload only when the cloud
// answers.
func (s *Scheduler) Tick(ctx context.Context) (*CycleReport, error) {
	if !s.enabled.Load() {
		s.logger.Debug("scheduled upload disabled")
		return nil, nil //nolint:nilnil // nothing ran
	}

	if !s.probe(ctx) {
		return nil, ErrCloudOffline
	}

	return s.engine.Upload(ctx)
}

func (s *Scheduler) probe(ctx context.Context) bool {
	was := s.engine.status.Connected()

	ok := s.engine.Probe(ctx)
	if was != ok {
		s.logger.Info("cloud connectivity changed", slog.Bool("connected", ok))
	}

	return ok
}

func (s *Scheduler) loop(ctx context.Context, every *atomic.Int64, reset <-chan struct{}, fn func()) error {
	ticker := time.NewTicker(time.Duration(every.Load()))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-reset:
			ticker.Reset(time.Duration(every.Load()))
		case <-ticker.C:
			fn()
		}
	}
}

func (s *Scheduler) logTickError(err error) {
	switch {
	case errors.Is(err, ErrCloudOffline):
		s.logger.Debug("scheduled upload skipped: cloud offline")
	case errors.Is(err, ErrSyncInProgress):
		s.logger.Debug("scheduled upload skipped: upload already running")
	case errors.Is(err, ErrNoSyncTarget):
		s.logger.Info("scheduled upload skipped: no event downloaded yet")
	default:
		s.logger.Warn("scheduled upload failed", slog.String("error", err.Error()))
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
