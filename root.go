package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/edge-datahub/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagAPIBase    string
	flagDBPath     string
	flagLogLevel   string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
// envOverrides and cliOverrides are kept so serve can re-resolve on reload.
var (
	resolvedCfg  *config.Resolved
	envOverrides config.EnvOverrides
	cliOverrides config.CLIOverrides
)

// logLevel is shared by every logger the process builds, so a config reload
// changes the level in place.
var logLevel = new(slog.LevelVar)

// httpClientTimeout caps a whole cloud round trip. Per-call timeouts in the
// cloud client are shorter; this only guards against hung connections.
const httpClientTimeout = 30 * time.Second

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// newRootCmd builds the root command with all subcommands registered.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "edge-datahub",
		Short:   "Offline-first event data hub",
		Long:    "Serves attendee, play and redemption traffic on-site and syncs it with the cloud when reachable.",
		Version: version,
		// Errors are printed by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagAPIBase, "api-base", "", "cloud API base URL")
	cmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "local database path")
	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "log errors only")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newReloadCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration and stores it for
// subcommands. Flags count as overrides only when the user set them.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{ConfigPath: flagConfigPath}

	if cmd.Flags().Changed("api-base") {
		cli.APIBase = &flagAPIBase
	}

	if cmd.Flags().Changed("db") {
		cli.DBPath = &flagDBPath
	}

	if cmd.Flags().Changed("log-level") {
		cli.LogLevel = &flagLogLevel
	}

	if cmd.Flags().Changed("listen") {
		cli.ListenAddr = &flagListenAddr
	}

	env := config.ReadEnvOverrides()

	resolved, err := config.Resolve(env, cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved
	envOverrides = env
	cliOverrides = cli

	return nil
}

// buildLogger creates the process logger. The config file sets the level
// and format; --verbose and --quiet win over the level.
func buildLogger(w io.Writer) *slog.Logger {
	applyLogLevel(configLogLevel())

	opts := &slog.HandlerOptions{Level: logLevel}

	if useJSONLogs(w) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func configLogLevel() string {
	if resolvedCfg == nil {
		return ""
	}

	return resolvedCfg.LogLevel
}

// applyLogLevel sets the shared level from a config value unless a CLI flag
// pins it.
func applyLogLevel(configured string) {
	switch {
	case flagVerbose:
		logLevel.Set(slog.LevelDebug)
	case flagQuiet:
		logLevel.Set(slog.LevelError)
	default:
		logLevel.Set(parseLevel(configured))
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// useJSONLogs decides the handler. "auto" picks text for a terminal and
// JSON for everything else (journald, docker, files).
func useJSONLogs(w io.Writer) bool {
	format := "auto"
	if resolvedCfg != nil && resolvedCfg.LogFormat != "" {
		format = resolvedCfg.LogFormat
	}

	switch format {
	case "json":
		return true
	case "text":
		return false
	}

	f, ok := w.(*os.File)
	if !ok {
		return true
	}

	return !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
