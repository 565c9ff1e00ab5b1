package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tonimelisma/edge-datahub/internal/cloud"
	"github.com/tonimelisma/edge-datahub/internal/config"
	"github.com/tonimelisma/edge-datahub/internal/edge"
	"github.com/tonimelisma/edge-datahub/internal/store"
	"github.com/tonimelisma/edge-datahub/internal/sync"
)

// dataDirPermissions keeps the database and token owner-only.
const dataDirPermissions = 0o700

// app is the set of long-lived components every command that touches data
// needs: the local store, the cloud client, the sync engine and the rule
// layer.
type app struct {
	store  *store.Store
	cloud  *cloud.Client
	engine *sync.Engine
	svc    *edge.Service
	logger *slog.Logger
}

// openApp wires the components from the resolved config. ctx must outlive
// the app: OAuth token refreshes run under it. status is created by the
// caller so signal handling can report cycles before the app exists.
func openApp(ctx context.Context, cfg *config.Resolved, status *sync.StatusStore, logger *slog.Logger) (*app, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), dataDirPermissions); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	st, err := store.Open(ctx, cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}

	client, err := newCloudClient(ctx, cfg, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	if !client.Configured() {
		logger.Warn("no cloud API base configured; sync is disabled until api_base is set")
	}

	return &app{
		store:  st,
		cloud:  client,
		engine: sync.NewEngine(st, client, status, cfg.BatchSize, logger),
		svc:    edge.NewService(st, logger),
		logger: logger,
	}, nil
}

func newCloudClient(ctx context.Context, cfg *config.Resolved, logger *slog.Logger) (*cloud.Client, error) {
	tokens, err := cloud.NewTokenSource(ctx, cloud.Credentials{
		Token: cfg.Token,
		OAuth: cloud.OAuthConfig{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			TokenURL:     cfg.OAuth.TokenURL,
			Scopes:       cfg.OAuth.Scopes,
		},
		TokenFile: cfg.TokenFile,
		APIBase:   cfg.APIBase,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("cloud credentials: %w", err)
	}

	client := cloud.NewClient(cfg.APIBase, defaultHTTPClient(), tokens, logger, cfg.UserAgent)
	client.SetTimeouts(cloud.Timeouts{
		Probe:  cfg.ProbeTimeout,
		Fetch:  cfg.FetchTimeout,
		Upload: cfg.UploadTimeout,
	})

	return client, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", slog.String("error", err.Error()))
	}
}
