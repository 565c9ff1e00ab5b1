package config

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective(t *testing.T) {
	r := flatten(DefaultConfig())
	r.ConfigPath = "/etc/edge-datahub/config.toml"
	r.APIBase = "https://cloud.example.com/api"
	r.Token = "super-secret"
	r.OAuth = OAuthConfig{ClientID: "edge", ClientSecret: "hidden", TokenURL: "https://auth/token", Scopes: []string{"sync"}}
	r.AllowedOrigins = []string{"http://kiosk.local"}

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(r, &buf))

	out := buf.String()
	assert.Contains(t, out, "(file: /etc/edge-datahub/config.toml)")
	assert.Contains(t, out, `api_base       = "https://cloud.example.com/api"`)
	assert.Contains(t, out, `token          = "(set)"`)
	assert.Contains(t, out, `client_secret = "(set)"`)
	assert.Contains(t, out, `scopes        = ["sync"]`)
	assert.Contains(t, out, `upload_interval = "10m0s"`)
	assert.Contains(t, out, `allowed_origins  = ["http://kiosk.local"]`)
	assert.NotContains(t, out, "super-secret")
	assert.NotContains(t, out, "hidden")
}

func TestRenderEffective_NoOAuthSection(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderEffective(flatten(DefaultConfig()), &buf))

	assert.NotContains(t, buf.String(), "[cloud.oauth]")
	assert.Contains(t, buf.String(), "(file: none)")
	assert.Contains(t, buf.String(), `token          = ""`)
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRenderEffective_PropagatesWriteError(t *testing.T) {
	err := RenderEffective(flatten(DefaultConfig()), failWriter{})
	assert.EqualError(t, err, "disk full")
}
