package main

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/edge-datahub/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		RunE: func(_ *cobra.Command, _ []string) error {
			return showConfig(os.Stdout, resolvedCfg, flagJSON)
		},
	})

	return cmd
}

func showConfig(w io.Writer, cfg *config.Resolved, asJSON bool) error {
	if cfg == nil {
		return errors.New("no configuration loaded")
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(cfg)
	}

	return config.RenderEffective(cfg, w)
}
