package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// phaseRunner executes one phase with panic recovery and error isolation.
// A panic or error in one phase does not stop the phases after it.
type phaseRunner struct {
	logger  *slog.Logger
	nowFunc func() time.Time
}

// run executes fn against a fresh report for phase. fn fills in counts and
// batch results; its returned error becomes the phase error.
func (pr *phaseRunner) run(ctx context.Context, phase Phase, fn func(context.Context, *PhaseReport) error) (result *PhaseReport) {
	result = &PhaseReport{Phase: phase}
	start := pr.nowFunc()

	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("panic in %s phase: %v", phase, r)
		}

		result.Duration = pr.nowFunc().Sub(start)
		pr.log(result)
	}()

	result.Err = fn(ctx, result)

	return result
}

func (pr *phaseRunner) log(p *PhaseReport) {
	attrs := []any{
		slog.String("phase", string(p.Phase)),
		slog.Int("selected", p.Selected),
		slog.Int("synced", p.Synced),
		slog.Int("deferred", p.Deferred),
		slog.Int("batches", len(p.Batches)),
		slog.Int("failed_batches", p.FailedBatches()),
		slog.Duration("duration", p.Duration),
	}

	if p.Err != nil {
		pr.logger.Warn("sync phase failed", append(attrs, slog.String("error", p.Err.Error()))...)
		return
	}

	pr.logger.Info("sync phase complete", attrs...)
}
