package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/edge-datahub/internal/cloudtwin"
	"github.com/tonimelisma/edge-datahub/internal/config"
	"github.com/tonimelisma/edge-datahub/internal/sync"
	"github.com/tonimelisma/edge-datahub/internal/tokenfile"
)

const cliSeed = `
events:
  - id: evt-1
    name: Expo
    attendees:
      - id: att-1
        email: ana@example.com
        fullName: Ana
    experiences:
      - id: exp-1
        name: Racing
`

// useTwin points resolvedCfg at a seeded cloud twin and a temp database.
func useTwin(t *testing.T) *cloudtwin.Twin {
	t.Helper()
	resetGlobals(t)

	tw := cloudtwin.New(cloudtwin.Options{})
	seed, err := cloudtwin.ParseSeed(strings.NewReader(cliSeed))
	require.NoError(t, err)
	require.NoError(t, tw.Load(seed))

	srv := httptest.NewServer(tw.Handler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	resolvedCfg = &config.Resolved{
		APIBase:       srv.URL,
		TokenFile:     filepath.Join(dir, "token.json"),
		UserAgent:     "edge-test",
		ProbeTimeout:  time.Second,
		FetchTimeout:  time.Second,
		UploadTimeout: time.Second,
		BatchSize:     100,
		DBPath:        filepath.Join(dir, "data", "edge.db"),
		LogLevel:      "error",
		LogFormat:     "text",
	}

	return tw
}

func TestSyncCycle_DownloadThenUpload(t *testing.T) {
	useTwin(t)

	var buf bytes.Buffer

	err := runSyncCycle(t.Context(), &buf, func(ctx context.Context, e *sync.Engine) (*sync.CycleReport, error) {
		return e.Download(ctx, "evt-1")
	})
	require.NoError(t, err, buf.String())
	assert.Contains(t, buf.String(), "Download cycle for event evt-1: 3 synced")
	assert.FileExists(t, resolvedCfg.DBPath)

	buf.Reset()

	err = runSyncCycle(t.Context(), &buf, func(ctx context.Context, e *sync.Engine) (*sync.CycleReport, error) {
		return e.Upload(ctx)
	})
	require.NoError(t, err, buf.String())
	assert.Contains(t, buf.String(), "Upload cycle for event evt-1: 0 synced")
}

func TestSyncCycle_UploadWithoutTarget(t *testing.T) {
	useTwin(t)

	err := runSyncCycle(t.Context(), &bytes.Buffer{}, func(ctx context.Context, e *sync.Engine) (*sync.CycleReport, error) {
		return e.Upload(ctx)
	})
	require.ErrorIs(t, err, sync.ErrNoSyncTarget)
}

func TestSyncCycle_PhaseFailureIsIncomplete(t *testing.T) {
	tw := useTwin(t)
	tw.InjectFault(cloudtwin.Fault{Path: "/attendee/full/evt-1", Status: 500})

	flagJSON = true

	var buf bytes.Buffer

	err := runSyncCycle(t.Context(), &buf, func(ctx context.Context, e *sync.Engine) (*sync.CycleReport, error) {
		return e.Download(ctx, "evt-1")
	})
	require.ErrorIs(t, err, errCycleIncomplete)

	var report struct {
		Direction string `json:"direction"`
		Phases    []struct {
			Phase string `json:"phase"`
			Error string `json:"error"`
		} `json:"phases"`
	}

	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	assert.Equal(t, "download", report.Direction)
	require.Len(t, report.Phases, 3)
	assert.NotEmpty(t, report.Phases[1].Error)
}

func TestPrintStatus(t *testing.T) {
	st := &sync.SyncStatus{CloudConnected: true, EventID: "evt-1", PendingUploads: 3}
	st.Attendees = 2
	st.UnsyncedAttendees = 1
	st.Plays = 4
	st.UnsyncedPlays = 2

	var buf bytes.Buffer
	printStatus(&buf, st, "https://cloud.example.com")

	out := buf.String()
	assert.Contains(t, out, "Event:  evt-1")
	assert.Contains(t, out, "Cloud:  reachable (https://cloud.example.com)")
	assert.Contains(t, out, "attendees    2      1")
	assert.Contains(t, out, "Pending uploads: 3")

	buf.Reset()
	printStatus(&buf, &sync.SyncStatus{EventID: "all"}, "")
	assert.Contains(t, buf.String(), "Cloud:  not configured\n")
}

func TestLoginLogout(t *testing.T) {
	useTwin(t)

	flagLoginToken = "  tok-123  "
	t.Cleanup(func() { flagLoginToken = "" })

	require.NoError(t, runLogin(strings.NewReader("")))

	tf, err := tokenfile.Load(resolvedCfg.TokenFile)
	require.NoError(t, err)
	require.NotNil(t, tf)
	assert.Equal(t, "tok-123", tf.Token.AccessToken)
	assert.Equal(t, resolvedCfg.APIBase, tf.APIBase)

	info, err := os.Stat(resolvedCfg.TokenFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, runLogout())
	assert.NoFileExists(t, resolvedCfg.TokenFile)

	// A second logout is not an error.
	require.NoError(t, runLogout())
}

func TestLogin_ReadsStdin(t *testing.T) {
	useTwin(t)

	require.NoError(t, runLogin(strings.NewReader("from-stdin\n")))

	tf, err := tokenfile.Load(resolvedCfg.TokenFile)
	require.NoError(t, err)
	assert.Equal(t, "from-stdin", tf.Token.AccessToken)
}

func TestLogin_RequiresAPIBase(t *testing.T) {
	useTwin(t)
	resolvedCfg.APIBase = ""

	err := runLogin(strings.NewReader("tok\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_base")
}

func TestShowConfig(t *testing.T) {
	cfg := &config.Resolved{APIBase: "https://cloud.example.com", Token: "secret", DBPath: "/data/edge.db"}

	var buf bytes.Buffer
	require.NoError(t, showConfig(&buf, cfg, true))
	assert.Contains(t, buf.String(), `"db_path": "/data/edge.db"`)
	assert.NotContains(t, buf.String(), "secret")

	buf.Reset()
	require.NoError(t, showConfig(&buf, cfg, false))
	assert.Contains(t, buf.String(), "[store]")

	assert.Error(t, showConfig(&buf, nil, false))
}
