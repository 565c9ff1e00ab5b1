package config

import (
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeKeys(t *testing.T, content string) error {
	t.Helper()

	cfg := DefaultConfig()
	md, err := toml.Decode(content, cfg)
	require.NoError(t, err)

	return checkUnknownKeys(&md)
}

func TestCheckUnknownKeys(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "all known",
			content: "[cloud]\napi_base = \"http://x\"\n[cloud.oauth]\nclient_id = \"a\"\n",
		},
		{
			name:    "typo in section key",
			content: "[server]\nlisten_adr = \":1\"\n",
			want:    []string{`unknown config key "server.listen_adr", did you mean "listen_addr"?`},
		},
		{
			name:    "typo in nested table",
			content: "[cloud.oauth]\ntoken_ur = \"x\"\n",
			want:    []string{`"cloud.oauth.token_ur", did you mean "token_url"?`},
		},
		{
			name:    "unknown table reported once",
			content: "[metrics]\nenabled = true\nport = 9100\n",
			want:    []string{`unknown config key "metrics"`},
		},
		{
			name:    "top-level key",
			content: "log_level = \"debug\"\n",
			want:    []string{`unknown config key "log_level"`},
		},
		{
			name:    "no close match",
			content: "[store]\ncompletely_different = 1\n",
			want:    []string{`unknown config key "store.completely_different"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := decodeKeys(t, tt.content)
			if len(tt.want) == 0 {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)

			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestCheckUnknownKeys_UnknownTableNotRepeated(t *testing.T) {
	err := decodeKeys(t, "[metrics]\nenabled = true\nport = 9100\n")
	require.Error(t, err)
	assert.Equal(t, `unknown config key "metrics"`, err.Error())
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("db_path", "db_path"))
	assert.Equal(t, 1, levenshtein("db_pth", "db_path"))
	assert.Equal(t, 3, levenshtein("", "abc"))
	assert.Equal(t, 3, levenshtein("kitten", "sitting"))
}

func TestClosestMatch(t *testing.T) {
	known := knownSections["sync"]

	assert.Equal(t, "enabled", closestMatch("enable", known))
	assert.Empty(t, closestMatch("xyzzy_quux", known))
}
