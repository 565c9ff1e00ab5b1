package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tWriter struct{ t *testing.T }

func (w tWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(tWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestWatcher(t *testing.T, content string, onReload ReloadFunc) (*Watcher, *Holder) {
	t.Helper()

	path := writeTestConfig(t, content)

	r, err := ResolveFile(path, EnvOverrides{}, CLIOverrides{})
	require.NoError(t, err)

	h := NewHolder(r, path)
	w := NewWatcher(h, EnvOverrides{}, CLIOverrides{}, onReload, testLogger(t))
	w.debounce = 20 * time.Millisecond

	return w, h
}

func TestWatcher_Reload(t *testing.T) {
	var (
		mu    sync.Mutex
		calls [][2]*Resolved
	)

	w, h := newTestWatcher(t, "[logging]\nlog_level = \"info\"\n", func(prev, next *Resolved) {
		mu.Lock()
		defer mu.Unlock()

		calls = append(calls, [2]*Resolved{prev, next})
	})

	require.NoError(t, os.WriteFile(h.Path(), []byte("[logging]\nlog_level = \"debug\"\n[sync]\nprobe_interval = \"5s\"\n"), 0o600))
	require.NoError(t, w.Reload())

	assert.Equal(t, "debug", h.Config().LogLevel)
	assert.Equal(t, 5*time.Second, h.Config().ProbeInterval)

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, calls, 1)
	assert.Equal(t, "info", calls[0][0].LogLevel)
	assert.Equal(t, "debug", calls[0][1].LogLevel)
}

func TestWatcher_InvalidEditKeepsPrevious(t *testing.T) {
	called := false
	w, h := newTestWatcher(t, "[sync]\nbatch_size = 50\n", func(_, _ *Resolved) { called = true })

	require.NoError(t, os.WriteFile(h.Path(), []byte("[sync]\nbatch_size = -1\n"), 0o600))

	err := w.Reload()
	require.Error(t, err)
	assert.Equal(t, 50, h.Config().BatchSize)
	assert.False(t, called)
}

func TestWatcher_ReappliesOverrides(t *testing.T) {
	path := writeTestConfig(t, "[store]\ndb_path = \"/file.db\"\n")

	cliDB := "/cli.db"
	cli := CLIOverrides{DBPath: &cliDB}

	r, err := ResolveFile(path, EnvOverrides{}, cli)
	require.NoError(t, err)

	h := NewHolder(r, path)
	w := NewWatcher(h, EnvOverrides{}, cli, nil, testLogger(t))

	require.NoError(t, os.WriteFile(path, []byte("[store]\ndb_path = \"/other.db\"\n"), 0o600))
	require.NoError(t, w.Reload())

	assert.Equal(t, "/cli.db", h.Config().DBPath)
}

func TestWatcher_RunPicksUpFileChanges(t *testing.T) {
	reloaded := make(chan *Resolved, 4)

	w, h := newTestWatcher(t, "[sync]\nupload_interval = \"10m\"\n", func(_, next *Resolved) {
		select {
		case reloaded <- next:
		default:
		}
	})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)

	go func() { done <- w.Run(ctx) }()

	// Replace via rename, the way most editors save.
	require.Eventually(t, func() bool {
		tmp := filepath.Join(filepath.Dir(h.Path()), "config.toml.tmp")
		if err := os.WriteFile(tmp, []byte("[sync]\nupload_interval = \"2m\"\n"), 0o600); err != nil {
			return false
		}

		if err := os.Rename(tmp, h.Path()); err != nil {
			return false
		}

		select {
		case next := <-reloaded:
			return next.UploadInterval == 2*time.Minute
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 2*time.Minute, h.Config().UploadInterval)

	cancel()
	require.NoError(t, <-done)
}

func TestWatcher_MissingDirectoryDisablesWatch(t *testing.T) {
	h := NewHolder(&Resolved{}, filepath.Join(t.TempDir(), "absent", "config.toml"))
	w := NewWatcher(h, EnvOverrides{}, CLIOverrides{}, nil, testLogger(t))

	assert.NoError(t, w.Run(t.Context()))
}
