// Standalone cloud twin for local development and demos.
//
// Usage: go run ./cmd/cloudtwin --addr :4000 --seed testdata/seed.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tonimelisma/edge-datahub/internal/cloudtwin"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

func main() {
	addr := flag.String("addr", ":4000", "listen address")
	seedPath := flag.String("seed", "", "YAML seed file with events, attendees and experiences")
	requireAuth := flag.Bool("require-auth", false, "reject API calls without a bearer token")
	tokens := flag.String("tokens", "", "comma-separated static bearer tokens accepted when auth is required")
	clientID := flag.String("client-id", "", "OAuth2 client id for the token endpoint")
	clientSecret := flag.String("client-secret", "", "OAuth2 client secret for the token endpoint")
	debug := flag.Bool("debug", false, "log every request")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(*addr, *seedPath, cloudtwin.Options{
		Logger:       logger,
		RequireAuth:  *requireAuth,
		StaticTokens: splitList(*tokens),
		ClientID:     *clientID,
		ClientSecret: *clientSecret,
	}, logger); err != nil {
		fmt.Fprintf(os.Stderr, "cloudtwin: %v\n", err)
		os.Exit(1)
	}
}

func run(addr, seedPath string, opts cloudtwin.Options, logger *slog.Logger) error {
	tw := cloudtwin.New(opts)

	if seedPath != "" {
		seed, err := cloudtwin.LoadSeedFile(seedPath)
		if err != nil {
			return err
		}

		if err := tw.Load(seed); err != nil {
			return err
		}

		logger.Info("seed loaded", slog.String("path", seedPath), slog.Int("events", len(seed.Events)))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           tw.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	errc := make(chan error, 1)

	go func() {
		logger.Info("cloud twin listening", slog.String("addr", addr), slog.Bool("require_auth", opts.RequireAuth))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	logger.Info("cloud twin stopped")

	return nil
}

func splitList(s string) []string {
	var out []string

	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}
