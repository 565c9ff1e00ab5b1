package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tonimelisma/edge-datahub/internal/tokenfile"
)

// ErrTokenExpired means the stored bearer token has expired and no OAuth
// client is configured to mint a new one.
var ErrTokenExpired = errors.New("cloud: stored token expired (run login again)")

// StaticToken is a fixed bearer token.
type StaticToken string

// Token returns the fixed token.
func (t StaticToken) Token() (string, error) {
	return string(t), nil
}

// OAuthConfig configures the OAuth2 client-credentials flow.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// Enabled reports whether enough is set to run the flow.
func (o OAuthConfig) Enabled() bool {
	return o.ClientID != "" && o.TokenURL != ""
}

// Credentials lists the ways the edge can authenticate, highest priority
// first: a literal token, an OAuth client, a saved token file.
type Credentials struct {
	Token     string
	OAuth     OAuthConfig
	TokenFile string
	APIBase   string
}

// NewTokenSource picks a TokenSource from creds. It returns (nil, nil)
// when no credential is configured, which sends unauthenticated requests.
//
// ctx must outlive the returned source: the OAuth flow uses it for token
// refreshes.
func NewTokenSource(ctx context.Context, creds Credentials, logger *slog.Logger) (TokenSource, error) {
	switch {
	case creds.Token != "":
		logger.Debug("cloud auth: static token")
		return StaticToken(creds.Token), nil

	case creds.OAuth.Enabled():
		logger.Debug("cloud auth: client credentials", slog.String("token_url", creds.OAuth.TokenURL))
		return clientCredentialsSource(ctx, creds, logger)

	case creds.TokenFile != "":
		return fileTokenSource(creds, logger)

	default:
		logger.Debug("cloud auth: none configured")
		return nil, nil //nolint:nilnil // unauthenticated
	}
}

func clientCredentialsSource(ctx context.Context, creds Credentials, logger *slog.Logger) (TokenSource, error) {
	cc := &clientcredentials.Config{
		ClientID:     creds.OAuth.ClientID,
		ClientSecret: creds.OAuth.ClientSecret,
		TokenURL:     creds.OAuth.TokenURL,
		Scopes:       creds.OAuth.Scopes,
	}

	// Seed from the token file so a restart reuses a still-valid token.
	var seed *oauth2.Token

	if creds.TokenFile != "" {
		tf, err := tokenfile.Load(creds.TokenFile)
		if err != nil {
			logger.Warn("ignoring unreadable token file", slog.String("error", err.Error()))
		} else if tf != nil && tf.MatchesAPIBase(creds.APIBase) {
			seed = tf.Token
		}
	}

	src := oauth2.ReuseTokenSource(seed, cc.TokenSource(ctx))

	return &tokenBridge{
		src:     src,
		logger:  logger,
		path:    creds.TokenFile,
		apiBase: creds.APIBase,
		last:    accessToken(seed),
	}, nil
}

func fileTokenSource(creds Credentials, logger *slog.Logger) (TokenSource, error) {
	tf, err := tokenfile.Load(creds.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("cloud: loading token file: %w", err)
	}

	if tf == nil {
		logger.Debug("cloud auth: no token file", slog.String("path", creds.TokenFile))
		return nil, nil //nolint:nilnil // unauthenticated
	}

	if !tf.MatchesAPIBase(creds.APIBase) {
		return nil, fmt.Errorf("cloud: token file %s was issued for %s, not %s",
			creds.TokenFile, tf.APIBase, creds.APIBase)
	}

	logger.Debug("cloud auth: token file", slog.String("path", creds.TokenFile))

	return &tokenBridge{src: oauth2.StaticTokenSource(tf.Token), logger: logger}, nil
}

// tokenBridge adapts an oauth2.TokenSource to TokenSource. When path is set
// it persists each newly minted token.
type tokenBridge struct {
	src     oauth2.TokenSource
	logger  *slog.Logger
	path    string
	apiBase string

	mu   sync.Mutex
	last string
}

func (b *tokenBridge) Token() (string, error) {
	tok, err := b.src.Token()
	if err != nil {
		return "", fmt.Errorf("cloud: token source: %w", err)
	}

	if !tok.Valid() {
		return "", ErrTokenExpired
	}

	b.persist(tok)

	return tok.AccessToken, nil
}

func (b *tokenBridge) persist(tok *oauth2.Token) {
	if b.path == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if tok.AccessToken == b.last {
		return
	}

	b.last = tok.AccessToken

	if err := tokenfile.Save(b.path, &tokenfile.File{Token: tok, APIBase: b.apiBase}); err != nil {
		b.logger.Warn("failed to persist refreshed token", slog.String("error", err.Error()))
		return
	}

	b.logger.Info("persisted refreshed cloud token",
		slog.String("path", b.path),
		slog.Time("expiry", tok.Expiry),
	)
}

func accessToken(tok *oauth2.Token) string {
	if tok == nil {
		return ""
	}

	return tok.AccessToken
}
