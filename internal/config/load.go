package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Resolved is the effective configuration after defaults, the config file,
// environment variables and CLI flags have been layered. Durations are
// parsed.
type Resolved struct {
	ConfigPath string `json:"config_path"`

	APIBase       string        `json:"api_base"`
	Token         string        `json:"-"`
	TokenFile     string        `json:"token_file"`
	UserAgent     string        `json:"user_agent"`
	OAuth         OAuthConfig   `json:"oauth"`
	ProbeTimeout  time.Duration `json:"probe_timeout"`
	FetchTimeout  time.Duration `json:"fetch_timeout"`
	UploadTimeout time.Duration `json:"upload_timeout"`

	UploadInterval time.Duration `json:"upload_interval"`
	ProbeInterval  time.Duration `json:"probe_interval"`
	BatchSize      int           `json:"batch_size"`
	SyncEnabled    bool          `json:"sync_enabled"`

	ListenAddr      string        `json:"listen_addr"`
	AllowedOrigins  []string      `json:"allowed_origins,omitempty"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`

	DBPath string `json:"db_path"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal and come with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// ConfigPath picks the config file path: CLI flag, then environment, then
// the platform default.
func ConfigPath(env EnvOverrides, cli CLIOverrides) string {
	if cli.ConfigPath != "" {
		return cli.ConfigPath
	}

	if env.ConfigPath != "" {
		return env.ConfigPath
	}

	return DefaultConfigPath()
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	return ResolveFile(ConfigPath(env, cli), env, cli)
}

// ResolveFile is Resolve with an explicit config path. The watcher uses it
// to re-resolve after the file changes.
func ResolveFile(path string, env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfg, err := LoadOrDefault(path)
	if err != nil {
		return nil, err
	}

	env.apply(cfg)

	if cli.APIBase != nil {
		cfg.Cloud.APIBase = *cli.APIBase
	}

	if cli.DBPath != nil {
		cfg.Store.DBPath = *cli.DBPath
	}

	if cli.ListenAddr != nil {
		cfg.Server.ListenAddr = *cli.ListenAddr
	}

	if cli.LogLevel != nil {
		cfg.Logging.LogLevel = *cli.LogLevel
	}

	r := flatten(cfg)
	r.ConfigPath = path

	if err := ValidateResolved(r); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return r, nil
}

// flatten converts a validated Config. Durations were checked by Validate
// (or are defaults), so parse errors cannot occur here.
func flatten(cfg *Config) *Resolved {
	r := &Resolved{
		APIBase:         cfg.Cloud.APIBase,
		Token:           cfg.Cloud.Token,
		TokenFile:       expandHome(cfg.Cloud.TokenFile),
		UserAgent:       cfg.Cloud.UserAgent,
		OAuth:           cfg.Cloud.OAuth,
		ProbeTimeout:    durationOf(cfg.Cloud.ProbeTimeout),
		FetchTimeout:    durationOf(cfg.Cloud.FetchTimeout),
		UploadTimeout:   durationOf(cfg.Cloud.UploadTimeout),
		UploadInterval:  durationOf(cfg.Sync.UploadInterval),
		ProbeInterval:   durationOf(cfg.Sync.ProbeInterval),
		BatchSize:       cfg.Sync.BatchSize,
		SyncEnabled:     cfg.Sync.Enabled,
		ListenAddr:      cfg.Server.ListenAddr,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		ShutdownTimeout: durationOf(cfg.Server.ShutdownTimeout),
		DBPath:          expandHome(cfg.Store.DBPath),
		LogLevel:        cfg.Logging.LogLevel,
		LogFormat:       cfg.Logging.LogFormat,
	}

	if r.TokenFile == "" {
		r.TokenFile = DefaultTokenPath()
	}

	if r.DBPath == "" {
		r.DBPath = DefaultDBPath()
	}

	return r
}

func durationOf(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}

	return d
}
