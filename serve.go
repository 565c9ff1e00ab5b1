package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/edge-datahub/internal/api"
	"github.com/tonimelisma/edge-datahub/internal/config"
	"github.com/tonimelisma/edge-datahub/internal/sync"
)

// readHeaderTimeout bounds slow clients on the local API.
const readHeaderTimeout = 10 * time.Second

var flagListenAddr string

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the edge HTTP API and background sync",
		Long: `Run the edge node: the local HTTP API under /edge, the cloud
connectivity probe, the periodic upload and the config file watcher.
Only one instance may serve a given database.`,
		RunE: runServe,
	}

	cmd.Flags().StringVar(&flagListenAddr, "listen", "", "listen address (overrides server.listen_addr)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := resolvedCfg
	logger := buildLogger(os.Stderr)

	status := sync.NewStatusStore()
	ctx := shutdownContext(cmd.Context(), status, logger)

	release, err := acquireServeLock(cfg.DBPath, serveInfo{PID: os.Getpid(), ListenAddr: cfg.ListenAddr})
	if err != nil {
		return err
	}
	defer release()

	a, err := openApp(ctx, cfg, status, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	sched := sync.NewScheduler(a.engine, cfg.UploadInterval, cfg.ProbeInterval, logger)
	sched.SetEnabled(cfg.SyncEnabled)

	holder := config.NewHolder(cfg, cfg.ConfigPath)
	watcher := config.NewWatcher(holder, envOverrides, cliOverrides, func(prev, next *config.Resolved) {
		applyReload(prev, next, a.engine, sched, logger)
	}, logger)

	handler := api.NewHandler(a.svc, a.engine, logger)
	srv := &http.Server{
		Handler:           api.NewRouter(handler, api.Options{AllowedOrigins: cfg.AllowedOrigins}),
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.ListenAddr, err)
	}

	logger.Info("edge node started",
		slog.String("version", version),
		slog.String("listen_addr", ln.Addr().String()),
		slog.String("db_path", cfg.DBPath),
		slog.String("api_base", cfg.APIBase),
		slog.Duration("upload_interval", cfg.UploadInterval),
		slog.Duration("probe_interval", cfg.ProbeInterval),
		slog.Bool("sync_enabled", cfg.SyncEnabled),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), holder.Config().ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown incomplete", slog.String("error", err.Error()))
		}

		return nil
	})

	g.Go(func() error { return sched.RunProbeLoop(gctx) })
	g.Go(func() error { return sched.RunUploadLoop(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return reloadOnSIGHUP(gctx, watcher.Reload, logger) })

	err = g.Wait()

	logger.Info("edge node stopped")

	return err
}

// applyReload pushes hot-reloadable settings into the running components.
// Settings bound at startup are reported as needing a restart.
func applyReload(prev, next *config.Resolved, engine *sync.Engine, sched *sync.Scheduler, logger *slog.Logger) {
	applyLogLevel(next.LogLevel)
	sched.SetIntervals(next.UploadInterval, next.ProbeInterval)
	sched.SetEnabled(next.SyncEnabled)
	engine.SetBatchSize(next.BatchSize)

	logger.Info("applied config reload",
		slog.String("log_level", next.LogLevel),
		slog.Duration("upload_interval", next.UploadInterval),
		slog.Duration("probe_interval", next.ProbeInterval),
		slog.Int("batch_size", next.BatchSize),
		slog.Bool("sync_enabled", next.SyncEnabled),
	)

	for _, field := range restartOnlyChanges(prev, next) {
		logger.Warn("config change needs a restart to take effect", slog.String("field", field))
	}
}

// restartOnlyChanges lists settings that differ but are only read at startup.
func restartOnlyChanges(prev, next *config.Resolved) []string {
	var changed []string

	check := func(field string, differ bool) {
		if differ {
			changed = append(changed, field)
		}
	}

	check("cloud.api_base", prev.APIBase != next.APIBase)
	check("cloud.token", prev.Token != next.Token)
	check("cloud.token_file", prev.TokenFile != next.TokenFile)
	check("cloud.user_agent", prev.UserAgent != next.UserAgent)
	check("cloud.oauth", prev.OAuth.ClientID != next.OAuth.ClientID || prev.OAuth.TokenURL != next.OAuth.TokenURL)
	check("cloud.timeouts", prev.ProbeTimeout != next.ProbeTimeout ||
		prev.FetchTimeout != next.FetchTimeout || prev.UploadTimeout != next.UploadTimeout)
	check("server.listen_addr", prev.ListenAddr != next.ListenAddr)
	check("server.allowed_origins", fmt.Sprint(prev.AllowedOrigins) != fmt.Sprint(next.AllowedOrigins))
	check("store.db_path", prev.DBPath != next.DBPath)
	check("logging.log_format", prev.LogFormat != next.LogFormat)

	return changed
}
