package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/edge-datahub/internal/tokenfile"
)

var (
	flagLoginToken   string
	flagLoginExpires time.Duration
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save a cloud bearer token for this edge node",
		Long: `Save a bearer token to the token file (0600). The token is bound to
the configured API base and is not sent to any other cloud. Without
--token the token is read from stdin.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVar(&flagLoginToken, "token", "", "bearer token (read from stdin when empty)")
	cmd.Flags().DurationVar(&flagLoginExpires, "expires-in", 0, "token lifetime, if known")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved cloud token",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runLogout()
		},
	}
}

func runLogin(stdin io.Reader) error {
	raw := flagLoginToken
	if raw == "" {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading token: %w", err)
		}

		raw = line
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("no token given")
	}

	if resolvedCfg.APIBase == "" {
		return errors.New("set cloud.api_base (or API_BASE) before logging in: tokens are bound to an API base")
	}

	tok := &oauth2.Token{AccessToken: raw, TokenType: "Bearer"}
	if flagLoginExpires > 0 {
		tok.Expiry = time.Now().Add(flagLoginExpires)
	}

	if err := tokenfile.Save(resolvedCfg.TokenFile, &tokenfile.File{Token: tok, APIBase: resolvedCfg.APIBase}); err != nil {
		return err
	}

	statusf(flagQuiet, "Token saved to %s.\n", resolvedCfg.TokenFile)

	return nil
}

func runLogout() error {
	removed, err := tokenfile.Remove(resolvedCfg.TokenFile)
	if err != nil {
		return err
	}

	if !removed {
		statusf(flagQuiet, "No saved token at %s.\n", resolvedCfg.TokenFile)
		return nil
	}

	statusf(flagQuiet, "Logged out.\n")

	return nil
}

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Ask the running edge node to re-read its config file",
		RunE: func(_ *cobra.Command, _ []string) error {
			info, err := sendSIGHUP(resolvedCfg.DBPath)
			if err != nil {
				return err
			}

			statusf(flagQuiet, "Reload requested (PID %d, listening on %s).\n", info.PID, orUnknown(info.ListenAddr))

			return nil
		},
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown address"
	}

	return s
}
