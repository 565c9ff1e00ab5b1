package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tonimelisma/edge-datahub/internal/sync"
)

// exitFunc is os.Exit, swapped in tests.
var exitFunc = os.Exit

// shutdownContext returns a context that cancels on the first SIGINT/SIGTERM
// and force-exits on the second. Both log the sync cycles still running
// according to status, so an operator who forces the exit knows an upload
// was cut short; its rows stay unsynced and go out with the next cycle.
func shutdownContext(parent context.Context, status *sync.StatusStore, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		watchShutdown(ctx, parent, cancel, sigCh, status, logger)
	}()

	return ctx
}

func watchShutdown(
	ctx, parent context.Context, cancel context.CancelFunc,
	sigCh <-chan os.Signal, status *sync.StatusStore, logger *slog.Logger,
) {
	select {
	case sig := <-sigCh:
		logger.Info("received signal, stopping edge node",
			slog.String("signal", sig.String()),
			slog.Any("cycles_in_flight", inFlightCycles(status.Snapshot())),
		)
		cancel()
	case <-ctx.Done():
		return
	}

	select {
	case sig := <-sigCh:
		cycles := inFlightCycles(status.Snapshot())
		if len(cycles) > 0 {
			logger.Warn("received second signal, abandoning sync cycles",
				slog.String("signal", sig.String()),
				slog.Any("cycles", cycles),
			)
		} else {
			logger.Warn("received second signal, forcing exit", slog.String("signal", sig.String()))
		}

		exitFunc(1)
	case <-parent.Done():
		return
	}
}

// inFlightCycles names the sync directions running in snap.
func inFlightCycles(snap sync.Snapshot) []string {
	var cycles []string

	if snap.Uploading {
		cycles = append(cycles, string(sync.DirectionUpload))
	}

	if snap.Downloading {
		cycles = append(cycles, string(sync.DirectionDownload))
	}

	return cycles
}

// reloadOnSIGHUP calls reload on every SIGHUP, for setups where file events
// are not delivered (some network and container filesystems) and for the
// reload command.
func reloadOnSIGHUP(ctx context.Context, reload func() error, logger *slog.Logger) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	defer signal.Stop(hup)

	return watchReload(ctx, hup, reload, logger)
}

func watchReload(ctx context.Context, hup <-chan os.Signal, reload func() error, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			logger.Info("received SIGHUP, reloading config")

			if err := reload(); err != nil {
				logger.Debug("SIGHUP reload kept the running config", slog.String("error", err.Error()))
			}
		}
	}
}
