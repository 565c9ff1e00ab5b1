package config

// Default values for configuration options. These are layer 0 of the
// override chain and give a working edge node with no config file at all.
const (
	defaultProbeTimeout    = "3s"
	defaultFetchTimeout    = "5s"
	defaultUploadTimeout   = "15s"
	defaultUserAgent       = "edge-datahub"
	defaultUploadInterval  = "10m"
	defaultProbeInterval   = "30s"
	defaultBatchSize       = 1000
	defaultListenAddr      = ":3000"
	defaultShutdownTimeout = "10s"
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
	defaultDBFileName      = "edge.db"
	defaultTokenFileName   = "token.json"
)

// DefaultConfig returns a Config populated with all default values. TOML
// decoding starts from it so unset keys keep their defaults. The cloud API
// base has no default: an edge without one serves local traffic only.
func DefaultConfig() *Config {
	return &Config{
		Cloud: CloudConfig{
			ProbeTimeout:  defaultProbeTimeout,
			FetchTimeout:  defaultFetchTimeout,
			UploadTimeout: defaultUploadTimeout,
			UserAgent:     defaultUserAgent,
		},
		Sync: SyncConfig{
			UploadInterval: defaultUploadInterval,
			ProbeInterval:  defaultProbeInterval,
			BatchSize:      defaultBatchSize,
			Enabled:        true,
		},
		Server: ServerConfig{
			ListenAddr:      defaultListenAddr,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
