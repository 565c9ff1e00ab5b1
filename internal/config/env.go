package config

import "os"

// Environment variable names for overrides. API_BASE and TOKEN keep the
// names the cloud deployment already uses.
const (
	EnvConfig  = "EDGE_DATAHUB_CONFIG"
	EnvAPIBase = "API_BASE"
	EnvToken   = "TOKEN"
	EnvDBPath  = "EDGE_DATAHUB_DB"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // EDGE_DATAHUB_CONFIG: config file path
	APIBase    string // API_BASE: cloud API base URL
	Token      string // TOKEN: bearer token for the cloud
	DBPath     string // EDGE_DATAHUB_DB: local database path
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. It does not modify a Config.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		APIBase:    os.Getenv(EnvAPIBase),
		Token:      os.Getenv(EnvToken),
		DBPath:     os.Getenv(EnvDBPath),
	}
}

// apply copies set environment values onto cfg.
func (e EnvOverrides) apply(cfg *Config) {
	if e.APIBase != "" {
		cfg.Cloud.APIBase = e.APIBase
	}

	if e.Token != "" {
		cfg.Cloud.Token = e.Token
	}

	if e.DBPath != "" {
		cfg.Store.DBPath = e.DBPath
	}
}
