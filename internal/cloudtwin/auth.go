package cloudtwin

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer   = "cloudtwin"
	tokenLifetime = time.Hour
)

var errBadClient = errors.New("cloudtwin: invalid client credentials")

// issueToken signs an HS256 access token for clientID.
func (t *Twin) issueToken(clientID string) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(tokenLifetime)

	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   clientID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("cloudtwin: signing token: %w", err)
	}

	return signed, exp, nil
}

// verifyToken accepts a configured static token or a valid twin-issued JWT.
func (t *Twin) verifyToken(raw string) error {
	if slices.Contains(t.opts.StaticTokens, raw) {
		return nil
	}

	_, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(t.now),
	)

	return err
}

// requireAuth rejects requests without a valid bearer token when the twin
// was started with authentication enabled.
func (t *Twin) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.opts.RequireAuth {
			next.ServeHTTP(w, r)
			return
		}

		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		if err := t.verifyToken(raw); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token: "+err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// handleToken implements the OAuth2 client-credentials grant. Client
// credentials may arrive as HTTP basic auth or form fields.
func (t *Twin) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}

	if grant := r.PostForm.Get("grant_type"); grant != "client_credentials" {
		writeError(w, http.StatusBadRequest, "unsupported grant_type "+grant)
		return
	}

	id, secret, ok := r.BasicAuth()
	if !ok {
		id, secret = r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
	}

	if err := t.checkClient(id, secret); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	signed, exp, err := t.issueToken(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: signed,
		TokenType:   "bearer",
		ExpiresIn:   int64(exp.Sub(t.now()).Seconds()),
	})
}

func (t *Twin) checkClient(id, secret string) error {
	if t.opts.ClientID == "" || id != t.opts.ClientID || secret != t.opts.ClientSecret {
		return errBadClient
	}

	return nil
}
