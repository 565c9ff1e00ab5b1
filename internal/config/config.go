// Package config loads the edge node's TOML configuration and layers
// environment variables and CLI flags over it.
package config

// Config is the on-disk configuration. Durations are kept as strings so
// validation can report every malformed value at once; Resolve parses them.
type Config struct {
	Cloud   CloudConfig   `toml:"cloud" json:"cloud"`
	Sync    SyncConfig    `toml:"sync" json:"sync"`
	Server  ServerConfig  `toml:"server" json:"server"`
	Store   StoreConfig   `toml:"store" json:"store"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
}

// CloudConfig controls how the edge reaches the cloud API.
type CloudConfig struct {
	APIBase       string      `toml:"api_base" json:"api_base"`
	Token         string      `toml:"token" json:"-"`
	TokenFile     string      `toml:"token_file" json:"token_file"`
	ProbeTimeout  string      `toml:"probe_timeout" json:"probe_timeout"`
	FetchTimeout  string      `toml:"fetch_timeout" json:"fetch_timeout"`
	UploadTimeout string      `toml:"upload_timeout" json:"upload_timeout"`
	UserAgent     string      `toml:"user_agent" json:"user_agent"`
	OAuth         OAuthConfig `toml:"oauth" json:"oauth"`
}

// OAuthConfig enables the client-credentials flow when client_id and
// token_url are both set.
type OAuthConfig struct {
	ClientID     string   `toml:"client_id" json:"client_id"`
	ClientSecret string   `toml:"client_secret" json:"-"`
	TokenURL     string   `toml:"token_url" json:"token_url"`
	Scopes       []string `toml:"scopes" json:"scopes,omitempty"`
}

// SyncConfig controls the background upload scheduler and probe loop.
type SyncConfig struct {
	UploadInterval string `toml:"upload_interval" json:"upload_interval"`
	ProbeInterval  string `toml:"probe_interval" json:"probe_interval"`
	BatchSize      int    `toml:"batch_size" json:"batch_size"`
	Enabled        bool   `toml:"enabled" json:"enabled"`
}

// ServerConfig controls the local HTTP API.
type ServerConfig struct {
	ListenAddr      string   `toml:"listen_addr" json:"listen_addr"`
	AllowedOrigins  []string `toml:"allowed_origins" json:"allowed_origins,omitempty"`
	ShutdownTimeout string   `toml:"shutdown_timeout" json:"shutdown_timeout"`
}

// StoreConfig locates the local database.
type StoreConfig struct {
	DBPath string `toml:"db_path" json:"db_path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level" json:"log_level"`
	LogFormat string `toml:"log_format" json:"log_format"`
}

// CLIOverrides holds values from command-line flags. Nil pointers mean the
// flag was not given.
type CLIOverrides struct {
	ConfigPath string
	APIBase    *string
	DBPath     *string
	ListenAddr *string
	LogLevel   *string
}
