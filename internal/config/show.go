package config

import (
	"fmt"
	"io"
	"strings"
)

// redacted replaces secrets in rendered output.
const redacted = "(set)"

// RenderEffective writes the resolved configuration as an annotated TOML
// summary to w. Secrets are shown only as set or unset.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", orNone(r.ConfigPath))

	ew.printf("[cloud]\n")
	ew.printf("  api_base       = %q\n", r.APIBase)
	ew.printf("  token          = %q\n", secret(r.Token))
	ew.printf("  token_file     = %q\n", r.TokenFile)
	ew.printf("  probe_timeout  = %q\n", r.ProbeTimeout.String())
	ew.printf("  fetch_timeout  = %q\n", r.FetchTimeout.String())
	ew.printf("  upload_timeout = %q\n", r.UploadTimeout.String())
	ew.printf("  user_agent     = %q\n", r.UserAgent)

	if r.OAuth.ClientID != "" {
		ew.printf("\n[cloud.oauth]\n")
		ew.printf("  client_id     = %q\n", r.OAuth.ClientID)
		ew.printf("  client_secret = %q\n", secret(r.OAuth.ClientSecret))
		ew.printf("  token_url     = %q\n", r.OAuth.TokenURL)

		if len(r.OAuth.Scopes) > 0 {
			ew.printf("  scopes        = [%s]\n", joinQuoted(r.OAuth.Scopes))
		}
	}

	ew.printf("\n[sync]\n")
	ew.printf("  upload_interval = %q\n", r.UploadInterval.String())
	ew.printf("  probe_interval  = %q\n", r.ProbeInterval.String())
	ew.printf("  batch_size      = %d\n", r.BatchSize)
	ew.printf("  enabled         = %t\n", r.SyncEnabled)

	ew.printf("\n[server]\n")
	ew.printf("  listen_addr      = %q\n", r.ListenAddr)
	ew.printf("  allowed_origins  = [%s]\n", joinQuoted(r.AllowedOrigins))
	ew.printf("  shutdown_timeout = %q\n", r.ShutdownTimeout.String())

	ew.printf("\n[store]\n")
	ew.printf("  db_path = %q\n", r.DBPath)

	ew.printf("\n[logging]\n")
	ew.printf("  log_level  = %q\n", r.LogLevel)
	ew.printf("  log_format = %q\n", r.LogFormat)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func joinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}

	return strings.Join(quoted, ", ")
}

func secret(s string) string {
	if s == "" {
		return ""
	}

	return redacted
}

func orNone(path string) string {
	if path == "" {
		return "none"
	}

	return path
}
