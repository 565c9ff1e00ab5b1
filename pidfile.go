package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// serveLockSuffix names a store's serve lock: edge.db is guarded by
// edge.db.serve.pid.
const serveLockSuffix = ".serve.pid"

// lockFilePermissions lets other users read the PID (owner rw, group/other r).
const lockFilePermissions = 0o644

// serveInfo is what a running serve records in its lock file.
type serveInfo struct {
	PID        int
	ListenAddr string
}

// lockPathFor returns the serve lock path for a store. The lock follows the
// database, so two nodes with separate stores can share a directory while
// a second serve on the same store is refused.
func lockPathFor(dbPath string) string {
	if dbPath == "" {
		return ""
	}

	return dbPath + serveLockSuffix
}

// acquireServeLock takes an exclusive flock on the store's lock file and
// records info in it. The returned release removes the file and drops the
// lock.
func acquireServeLock(dbPath string, info serveInfo) (release func(), err error) {
	path := lockPathFor(dbPath)
	if path == "" {
		return nil, errors.New("serve lock: no database path configured")
	}

	if mkdirErr := os.MkdirAll(filepath.Dir(path), dataDirPermissions); mkdirErr != nil {
		return nil, fmt.Errorf("serve lock: creating directory: %w", mkdirErr)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, lockFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("serve lock: opening %s: %w", path, err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()

		holder := "another process"
		if prev, readErr := readServeLock(path); readErr == nil {
			holder = fmt.Sprintf("PID %d", prev.PID)
		}

		return nil, fmt.Errorf("an edge node is already running on %s (%s holds %s)", dbPath, holder, path)
	}

	if err := writeServeInfo(f, info); err != nil {
		f.Close()
		return nil, fmt.Errorf("serve lock: %w", err)
	}

	return func() {
		os.Remove(path)
		f.Close()
	}, nil
}

func writeServeInfo(f *os.File, info serveInfo) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncating: %w", err)
	}

	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("seeking: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%d\n%s\n", info.PID, info.ListenAddr); err != nil {
		return fmt.Errorf("writing: %w", err)
	}

	// Readers such as the reload command look right after startup.
	return f.Sync()
}

// readServeLock parses a lock file: the PID on the first line, the listen
// address on the second. The address is optional.
func readServeLock(path string) (serveInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return serveInfo{}, fmt.Errorf("reading serve lock: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")

	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || pid <= 0 {
		return serveInfo{}, fmt.Errorf("invalid PID in %s: %q", path, lines[0])
	}

	info := serveInfo{PID: pid}
	if len(lines) > 1 {
		info.ListenAddr = strings.TrimSpace(lines[1])
	}

	return info, nil
}

// sendSIGHUP asks the edge node serving dbPath to reload its config. A lock
// file left by a dead process is removed.
func sendSIGHUP(dbPath string) (serveInfo, error) {
	path := lockPathFor(dbPath)

	info, err := readServeLock(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return serveInfo{}, fmt.Errorf("no running edge node found for %s", dbPath)
		}

		return serveInfo{}, err
	}

	proc, err := os.FindProcess(info.PID)
	if err != nil {
		return serveInfo{}, fmt.Errorf("finding process %d: %w", info.PID, err)
	}

	if err := proc.Signal(syscall.Signal(0)); err != nil {
		os.Remove(path)

		return serveInfo{}, fmt.Errorf("edge node (PID %d) is not running (stale lock removed)", info.PID)
	}

	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return serveInfo{}, fmt.Errorf("sending SIGHUP to edge node (PID %d): %w", info.PID, err)
	}

	return info, nil
}
