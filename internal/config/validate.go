package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"
)

// Validation range constants.
const (
	minTimeout         = 100 * time.Millisecond
	minProbeInterval   = time.Second
	minUploadInterval  = 10 * time.Second
	minShutdownTimeout = time.Second
	minBatchSize       = 1
	maxBatchSize       = 10_000
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateCloud(&cfg.Cloud)...)
	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

// ValidateResolved checks constraints that only hold after the override
// chain has been applied.
func ValidateResolved(r *Resolved) error {
	var errs []error

	if r.DBPath == "" {
		errs = append(errs, errors.New("db_path: no database path and no data directory available"))
	}

	if r.APIBase != "" {
		if err := validateHTTPURL(r.APIBase); err != nil {
			errs = append(errs, fmt.Errorf("api_base: %w", err))
		}
	}

	errs = append(errs, validateLogLevel(r.LogLevel)...)

	return errors.Join(errs...)
}

func validateCloud(c *CloudConfig) []error {
	var errs []error

	if c.APIBase != "" {
		if err := validateHTTPURL(c.APIBase); err != nil {
			errs = append(errs, fmt.Errorf("api_base: %w", err))
		}
	}

	errs = append(errs, validateDurationMin("probe_timeout", c.ProbeTimeout, minTimeout)...)
	errs = append(errs, validateDurationMin("fetch_timeout", c.FetchTimeout, minTimeout)...)
	errs = append(errs, validateDurationMin("upload_timeout", c.UploadTimeout, minTimeout)...)

	errs = append(errs, validateOAuth(&c.OAuth)...)

	return errs
}

func validateOAuth(o *OAuthConfig) []error {
	if o.ClientID == "" && o.TokenURL == "" && o.ClientSecret == "" {
		return nil
	}

	var errs []error

	if o.ClientID == "" {
		errs = append(errs, errors.New("oauth.client_id: required when oauth is configured"))
	}

	if o.TokenURL == "" {
		errs = append(errs, errors.New("oauth.token_url: required when oauth is configured"))
	} else if err := validateHTTPURL(o.TokenURL); err != nil {
		errs = append(errs, fmt.Errorf("oauth.token_url: %w", err))
	}

	return errs
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("upload_interval", s.UploadInterval, minUploadInterval)...)
	errs = append(errs, validateDurationMin("probe_interval", s.ProbeInterval, minProbeInterval)...)

	if s.BatchSize < minBatchSize || s.BatchSize > maxBatchSize {
		errs = append(errs, fmt.Errorf("batch_size: must be between %d and %d, got %d",
			minBatchSize, maxBatchSize, s.BatchSize))
	}

	return errs
}

func validateServer(s *ServerConfig) []error {
	var errs []error

	if _, _, err := net.SplitHostPort(s.ListenAddr); err != nil {
		errs = append(errs, fmt.Errorf("listen_addr: %w", err))
	}

	for _, o := range s.AllowedOrigins {
		if o == "*" {
			continue
		}

		if err := validateHTTPURL(o); err != nil {
			errs = append(errs, fmt.Errorf("allowed_origins: %q: %w", o, err))
		}
	}

	errs = append(errs, validateDurationMin("shutdown_timeout", s.ShutdownTimeout, minShutdownTimeout)...)

	return errs
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q must use http or https", raw)
	}

	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", raw)
	}

	return nil
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}
