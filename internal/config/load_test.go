package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func clearEnv(t *testing.T) {
	t.Helper()

	for _, k := range []string{EnvConfig, EnvAPIBase, EnvToken, EnvDBPath} {
		t.Setenv(k, "")
	}
}

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, `
[cloud]
api_base = "https://cloud.example.com/api"
token_file = "/var/lib/edge/token.json"
probe_timeout = "2s"
fetch_timeout = "8s"
upload_timeout = "30s"
user_agent = "booth-7"

[cloud.oauth]
client_id = "edge"
client_secret = "s3cret"
token_url = "https://auth.example.com/token"
scopes = ["sync"]

[sync]
upload_interval = "5m"
probe_interval = "15s"
batch_size = 250
enabled = false

[server]
listen_addr = "127.0.0.1:4000"
allowed_origins = ["http://kiosk.local:8080"]
shutdown_timeout = "20s"

[store]
db_path = "/var/lib/edge/edge.db"

[logging]
log_level = "debug"
log_format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://cloud.example.com/api", cfg.Cloud.APIBase)
	assert.Equal(t, "2s", cfg.Cloud.ProbeTimeout)
	assert.Equal(t, "booth-7", cfg.Cloud.UserAgent)
	assert.Equal(t, "edge", cfg.Cloud.OAuth.ClientID)
	assert.Equal(t, []string{"sync"}, cfg.Cloud.OAuth.Scopes)
	assert.Equal(t, 250, cfg.Sync.BatchSize)
	assert.False(t, cfg.Sync.Enabled)
	assert.Equal(t, []string{"http://kiosk.local:8080"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "/var/lib/edge/edge.db", cfg.Store.DBPath)
	assert.Equal(t, "json", cfg.Logging.LogFormat)
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	path := writeTestConfig(t, `
[sync]
batch_size = 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Sync.BatchSize)
	assert.True(t, cfg.Sync.Enabled)
	assert.Equal(t, defaultUploadInterval, cfg.Sync.UploadInterval)
	assert.Equal(t, defaultListenAddr, cfg.Server.ListenAddr)
	assert.Equal(t, defaultLogLevel, cfg.Logging.LogLevel)
}

func TestLoad_UnknownKeyIsFatal(t *testing.T) {
	path := writeTestConfig(t, `
[sync]
batch_sise = 10
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"sync.batch_sise"`)
	assert.Contains(t, err.Error(), `did you mean "batch_size"`)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTestConfig(t, "[sync\nbatch_size = ")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_ValidationErrorsAccumulate(t *testing.T) {
	path := writeTestConfig(t, `
[sync]
batch_size = 0
probe_interval = "soon"

[logging]
log_level = "loud"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_size")
	assert.Contains(t, err.Error(), "probe_interval")
	assert.Contains(t, err.Error(), "log_level")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_DefaultsOnly(t *testing.T) {
	clearEnv(t)

	r, err := ResolveFile("", EnvOverrides{}, CLIOverrides{})
	require.NoError(t, err)

	assert.Empty(t, r.APIBase)
	assert.Equal(t, 3*time.Second, r.ProbeTimeout)
	assert.Equal(t, 5*time.Second, r.FetchTimeout)
	assert.Equal(t, 15*time.Second, r.UploadTimeout)
	assert.Equal(t, 10*time.Minute, r.UploadInterval)
	assert.Equal(t, 30*time.Second, r.ProbeInterval)
	assert.Equal(t, 1000, r.BatchSize)
	assert.True(t, r.SyncEnabled)
	assert.Equal(t, ":3000", r.ListenAddr)
	assert.Equal(t, 10*time.Second, r.ShutdownTimeout)
	assert.Equal(t, DefaultDBPath(), r.DBPath)
	assert.Equal(t, DefaultTokenPath(), r.TokenFile)
}

func TestResolve_LayerPrecedence(t *testing.T) {
	path := writeTestConfig(t, `
[cloud]
api_base = "https://file.example.com"

[store]
db_path = "/from/file.db"

[server]
listen_addr = ":4000"
`)

	env := EnvOverrides{
		ConfigPath: "/ignored/because/cli/wins.toml",
		APIBase:    "https://env.example.com",
		DBPath:     "/from/env.db",
		Token:      "env-token",
	}

	cliDB := "/from/cli.db"
	cliLevel := "debug"
	cli := CLIOverrides{ConfigPath: path, DBPath: &cliDB, LogLevel: &cliLevel}

	r, err := Resolve(env, cli)
	require.NoError(t, err)

	assert.Equal(t, path, r.ConfigPath)
	assert.Equal(t, "https://env.example.com", r.APIBase)
	assert.Equal(t, "env-token", r.Token)
	assert.Equal(t, "/from/cli.db", r.DBPath)
	assert.Equal(t, ":4000", r.ListenAddr)
	assert.Equal(t, "debug", r.LogLevel)
}

func TestResolve_RejectsBadOverride(t *testing.T) {
	clearEnv(t)

	level := "chatty"
	_, err := ResolveFile("", EnvOverrides{APIBase: "ftp://cloud"}, CLIOverrides{LogLevel: &level})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_base")
	assert.Contains(t, err.Error(), "log_level")
}

func TestConfigPath_Precedence(t *testing.T) {
	assert.Equal(t, "/cli.toml", ConfigPath(EnvOverrides{ConfigPath: "/env.toml"}, CLIOverrides{ConfigPath: "/cli.toml"}))
	assert.Equal(t, "/env.toml", ConfigPath(EnvOverrides{ConfigPath: "/env.toml"}, CLIOverrides{}))
	assert.Equal(t, DefaultConfigPath(), ConfigPath(EnvOverrides{}, CLIOverrides{}))
}
