package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/edge-datahub/internal/config"
	"github.com/tonimelisma/edge-datahub/internal/sync"
)

// resetGlobals restores the package-level flag and config state after a
// test mutates it.
func resetGlobals(t *testing.T) {
	t.Helper()

	t.Cleanup(func() {
		flagConfigPath, flagAPIBase, flagDBPath, flagLogLevel, flagListenAddr = "", "", "", "", ""
		flagJSON, flagVerbose, flagQuiet = false, false, false
		resolvedCfg = nil
		envOverrides = config.EnvOverrides{}
		cliOverrides = config.CLIOverrides{}
		logLevel.Set(slog.LevelInfo)
	})
}

func clearEdgeEnv(t *testing.T) {
	t.Helper()

	for _, k := range []string{config.EnvConfig, config.EnvAPIBase, config.EnvToken, config.EnvDBPath} {
		t.Setenv(k, "")
	}
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, want := range []string{"serve", "sync", "status", "login", "logout", "reload", "config"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestNewRootCmd_PersistentFlags(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"config", "api-base", "db", "log-level", "json", "verbose", "quiet"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	resetGlobals(t)
	clearEdgeEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[cloud]
api_base = "https://file.example.com/api"

[store]
db_path = "/from/file.db"
`), 0o600))

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--db", filepath.Join(dir, "flag.db")}))
	require.NoError(t, loadConfig(cmd))

	require.NotNil(t, resolvedCfg)
	assert.Equal(t, "https://file.example.com/api", resolvedCfg.APIBase)
	assert.Equal(t, filepath.Join(dir, "flag.db"), resolvedCfg.DBPath)
	assert.Equal(t, path, cliOverrides.ConfigPath)
	assert.Nil(t, cliOverrides.APIBase)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	resetGlobals(t)
	clearEdgeEnv(t)

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", filepath.Join(t.TempDir(), "absent.toml")}))
	require.NoError(t, loadConfig(cmd))

	assert.Equal(t, ":3000", resolvedCfg.ListenAddr)
	assert.Empty(t, resolvedCfg.APIBase)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	resetGlobals(t)
	clearEdgeEnv(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[sync]\nbatch_sise = 5\n"), 0o600))

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", path}))

	err := loadConfig(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_size")
}

func TestBuildLogger_ConfigLevelAndFormat(t *testing.T) {
	resetGlobals(t)

	resolvedCfg = &config.Resolved{LogLevel: "debug", LogFormat: "json"}

	var buf bytes.Buffer
	buildLogger(&buf).Debug("probe", slog.Bool("connected", true))

	assert.Contains(t, buf.String(), `"msg":"probe"`)
	assert.Contains(t, buf.String(), `"connected":true`)
}

func TestBuildLogger_TextFormat(t *testing.T) {
	resetGlobals(t)

	resolvedCfg = &config.Resolved{LogLevel: "info", LogFormat: "text"}

	var buf bytes.Buffer
	buildLogger(&buf).Info("ready")

	assert.Contains(t, buf.String(), "msg=ready")
}

func TestBuildLogger_QuietWinsOverConfig(t *testing.T) {
	resetGlobals(t)

	resolvedCfg = &config.Resolved{LogLevel: "debug", LogFormat: "json"}
	flagQuiet = true

	var buf bytes.Buffer
	logger := buildLogger(&buf)
	logger.Info("hidden")
	logger.Error("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestUseJSONLogs_AutoOnNonTerminal(t *testing.T) {
	resetGlobals(t)

	resolvedCfg = &config.Resolved{LogFormat: "auto"}

	assert.True(t, useJSONLogs(&bytes.Buffer{}))
}

func TestApplyReload_UpdatesSchedulerAndLevel(t *testing.T) {
	resetGlobals(t)

	logger := slog.New(slog.DiscardHandler)
	engine := sync.NewEngine(nil, nil, nil, 10, logger)
	sched := sync.NewScheduler(engine, 10*time.Minute, 30*time.Second, logger)

	prev := &config.Resolved{LogLevel: "info", ListenAddr: ":3000", UploadInterval: 10 * time.Minute}
	next := &config.Resolved{
		LogLevel:       "warn",
		ListenAddr:     ":3000",
		UploadInterval: 2 * time.Minute,
		ProbeInterval:  5 * time.Second,
		BatchSize:      50,
		SyncEnabled:    true,
	}

	applyReload(prev, next, engine, sched, logger)

	upload, probe := sched.Intervals()
	assert.Equal(t, 2*time.Minute, upload)
	assert.Equal(t, 5*time.Second, probe)
	assert.Equal(t, slog.LevelWarn, logLevel.Level())
}

func TestApplyReload_VerboseFlagPinsLevel(t *testing.T) {
	resetGlobals(t)

	flagVerbose = true

	logger := slog.New(slog.DiscardHandler)
	engine := sync.NewEngine(nil, nil, nil, 10, logger)
	sched := sync.NewScheduler(engine, 0, 0, logger)

	applyReload(&config.Resolved{}, &config.Resolved{LogLevel: "error"}, engine, sched, logger)

	assert.Equal(t, slog.LevelDebug, logLevel.Level())
}

func TestRestartOnlyChanges(t *testing.T) {
	prev := &config.Resolved{APIBase: "https://a", ListenAddr: ":3000", DBPath: "/a.db", LogLevel: "info"}
	next := &config.Resolved{APIBase: "https://b", ListenAddr: ":3000", DBPath: "/b.db", LogLevel: "debug"}

	assert.Equal(t, []string{"cloud.api_base", "store.db_path"}, restartOnlyChanges(prev, next))
	assert.Empty(t, restartOnlyChanges(prev, prev))
}

func TestDefaultHTTPClient_HasTimeout(t *testing.T) {
	assert.Equal(t, httpClientTimeout, defaultHTTPClient().Timeout)
}
