package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/edge-datahub/internal/sync"
)

func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// startWatch runs watchShutdown in the background and returns the derived
// context plus a channel closed when the watcher returns.
func startWatch(
	parent context.Context, sigCh chan os.Signal, logger *slog.Logger,
) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		defer close(done)
		watchShutdown(ctx, parent, cancel, sigCh, sync.NewStatusStore(), logger)
	}()

	return ctx, done
}

func TestWatchShutdown_FirstSignalCancels(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	defer cancelParent()

	var logs bytes.Buffer

	sigCh := make(chan os.Signal, 1)
	ctx, done := startWatch(parent, sigCh, bufferLogger(&logs))

	sigCh <- syscall.SIGTERM

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled after first signal")
	}

	cancelParent()
	<-done

	assert.Contains(t, logs.String(), "stopping edge node")
	assert.Contains(t, logs.String(), "signal=terminated")
}

func TestWatchShutdown_SecondSignalExits(t *testing.T) {
	codes := make(chan int, 1)
	exitFunc = func(code int) { codes <- code }
	t.Cleanup(func() { exitFunc = os.Exit })

	var logs bytes.Buffer

	sigCh := make(chan os.Signal, 2)
	_, done := startWatch(context.Background(), sigCh, bufferLogger(&logs))

	sigCh <- syscall.SIGINT
	sigCh <- syscall.SIGINT

	select {
	case code := <-codes:
		assert.Equal(t, 1, code)
	case <-time.After(2 * time.Second):
		t.Fatal("second signal did not force an exit")
	}

	<-done
	assert.Contains(t, logs.String(), "forcing exit")
}

func TestWatchShutdown_ParentCancelStops(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())

	ctx, done := startWatch(parent, make(chan os.Signal), bufferLogger(&bytes.Buffer{}))

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher still running after parent cancel")
	}

	assert.Error(t, ctx.Err())
}

func TestShutdownContext_RealSignal(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctx := shutdownContext(parent, sync.NewStatusStore(), bufferLogger(&bytes.Buffer{}))

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled within 2 seconds of SIGINT")
	}
}

func TestInFlightCycles(t *testing.T) {
	tests := []struct {
		name string
		snap sync.Snapshot
		want []string
	}{
		{"idle", sync.Snapshot{}, nil},
		{"upload", sync.Snapshot{Uploading: true}, []string{"upload"}},
		{"both", sync.Snapshot{Uploading: true, Downloading: true}, []string{"upload", "download"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inFlightCycles(tt.snap))
		})
	}
}

func TestWatchReload(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var logs bytes.Buffer

	hup := make(chan os.Signal)
	calls := make(chan struct{}, 2)
	results := []error{nil, errors.New("config validation failed: batch_size")}

	done := make(chan error, 1)

	go func() {
		done <- watchReload(ctx, hup, func() error {
			err := results[len(calls)]
			calls <- struct{}{}

			return err
		}, bufferLogger(&logs))
	}()

	hup <- syscall.SIGHUP
	hup <- syscall.SIGHUP

	// The unbuffered sends prove the loop took both signals; wait for the
	// second reload to finish before stopping.
	require.Eventually(t, func() bool { return len(calls) == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Contains(t, logs.String(), "received SIGHUP")
	assert.Contains(t, logs.String(), "kept the running config")
}
