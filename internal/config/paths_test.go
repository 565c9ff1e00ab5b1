package config

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigPath_EndsWithConfigToml(t *testing.T) {
	path := DefaultConfigPath()
	assert.NotEmpty(t, path)
	assert.True(t, strings.HasSuffix(path, filepath.Join(appName, "config.toml")))
}

func TestDefaultDataFiles_ShareDataDir(t *testing.T) {
	dir := DefaultDataDir()
	require.NotEmpty(t, dir)

	assert.Equal(t, filepath.Join(dir, "edge.db"), DefaultDBPath())
	assert.Equal(t, filepath.Join(dir, "token.json"), DefaultTokenPath())
}

func TestLinuxDirs_RespectXDG(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("linux-only test")
	}

	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_DATA_HOME", "/xdg/data")

	assert.Equal(t, "/xdg/config/edge-datahub", DefaultConfigDir())
	assert.Equal(t, "/xdg/data/edge-datahub", DefaultDataDir())
}

func TestLinuxDirs_FallBackToHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_DATA_HOME", "")

	assert.Equal(t, "/home/testuser/.config/edge-datahub", linuxConfigDir("/home/testuser"))
	assert.Equal(t, "/home/testuser/.local/share/edge-datahub", linuxDataDir("/home/testuser"))
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/testuser")

	if runtime.GOOS == "windows" {
		t.Skip("HOME is not consulted on windows")
	}

	assert.Equal(t, "/home/testuser/data/edge.db", expandHome("~/data/edge.db"))
	assert.Equal(t, "/abs/edge.db", expandHome("/abs/edge.db"))
	assert.Equal(t, "rel/edge.db", expandHome("rel/edge.db"))
	assert.Equal(t, "/home/testuser", expandHome("~"))
}
