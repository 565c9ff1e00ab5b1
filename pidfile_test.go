package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockPathFor(t *testing.T) {
	assert.Equal(t, "/var/lib/edge/edge.db.serve.pid", lockPathFor("/var/lib/edge/edge.db"))
	assert.Empty(t, lockPathFor(""))
}

func TestAcquireServeLock_RecordsPIDAndAddress(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "data", "edge.db")

	release, err := acquireServeLock(dbPath, serveInfo{PID: os.Getpid(), ListenAddr: "127.0.0.1:3000"})
	require.NoError(t, err)

	defer release()

	info, err := readServeLock(lockPathFor(dbPath))
	require.NoError(t, err)
	assert.Equal(t, serveInfo{PID: os.Getpid(), ListenAddr: "127.0.0.1:3000"}, info)
}

func TestAcquireServeLock_SameStoreRefused(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "edge.db")

	release, err := acquireServeLock(dbPath, serveInfo{PID: os.Getpid(), ListenAddr: ":3000"})
	require.NoError(t, err)

	defer release()

	again, err := acquireServeLock(dbPath, serveInfo{PID: os.Getpid(), ListenAddr: ":3001"})
	require.Error(t, err)
	assert.Nil(t, again)
	assert.Contains(t, err.Error(), "already running")
	assert.Contains(t, err.Error(), "PID "+strconv.Itoa(os.Getpid()))
}

func TestAcquireServeLock_OtherStoreInSameDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	releaseA, err := acquireServeLock(filepath.Join(dir, "venue-a.db"), serveInfo{PID: os.Getpid()})
	require.NoError(t, err)

	defer releaseA()

	releaseB, err := acquireServeLock(filepath.Join(dir, "venue-b.db"), serveInfo{PID: os.Getpid()})
	require.NoError(t, err)

	releaseB()
}

func TestAcquireServeLock_ReleaseRemovesFile(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "edge.db")

	release, err := acquireServeLock(dbPath, serveInfo{PID: os.Getpid()})
	require.NoError(t, err)

	release()

	assert.NoFileExists(t, lockPathFor(dbPath))
}

func TestAcquireServeLock_NoDatabasePath(t *testing.T) {
	t.Parallel()

	release, err := acquireServeLock("", serveInfo{PID: os.Getpid()})
	require.Error(t, err)
	assert.Nil(t, release)
}

func TestReadServeLock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    serveInfo
		wantErr bool
	}{
		{"pid and address", "4242\n0.0.0.0:3000\n", serveInfo{PID: 4242, ListenAddr: "0.0.0.0:3000"}, false},
		{"pid only", "4242\n", serveInfo{PID: 4242}, false},
		{"garbage", "not-a-pid\n", serveInfo{}, true},
		{"zero", "0\n", serveInfo{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "edge.db"+serveLockSuffix)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			got, err := readServeLock(path)
			if tt.wantErr {
				assert.ErrorContains(t, err, "invalid PID")
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSendSIGHUP_NoRunningNode(t *testing.T) {
	t.Parallel()

	_, err := sendSIGHUP(filepath.Join(t.TempDir(), "edge.db"))
	assert.ErrorContains(t, err, "no running edge node")
}

func TestSendSIGHUP_StaleLockRemoved(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "edge.db")
	// PID 999999999 is almost certainly not a running process.
	require.NoError(t, os.WriteFile(lockPathFor(dbPath), []byte("999999999\n:3000\n"), 0o644))

	_, err := sendSIGHUP(dbPath)
	assert.ErrorContains(t, err, "not running")
	assert.NoFileExists(t, lockPathFor(dbPath))
}

func TestSendSIGHUP_ReachesServingProcess(t *testing.T) {
	t.Parallel()

	// Trap SIGHUP so it doesn't kill the test process.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	defer signal.Stop(sigCh)

	dbPath := filepath.Join(t.TempDir(), "edge.db")

	release, err := acquireServeLock(dbPath, serveInfo{PID: os.Getpid(), ListenAddr: "127.0.0.1:3999"})
	require.NoError(t, err)

	defer release()

	info, err := sendSIGHUP(dbPath)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:3999", info.ListenAddr)

	assert.Equal(t, syscall.SIGHUP, <-sigCh)
}
