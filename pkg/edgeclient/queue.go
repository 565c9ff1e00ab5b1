package edgeclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	queueFilePerms = 0o600
	queueDirPerms  = 0o700
)

// Item is one buffered operation. Items keep their position for their
// whole life; a failed attempt only bumps Retries.
type Item struct {
	ID        string          `json:"id"`
	Operation Operation       `json:"operation"`
	Payload   json.RawMessage `json:"payload"`
	Endpoint  string          `json:"endpoint"`
	Timestamp time.Time       `json:"timestamp"`
	Retries   int             `json:"retries"`
	LastError string          `json:"lastError,omitempty"`
}

// Stats breaks the queue down by retry state. Failed items reached the
// retry cap and are kept but no longer attempted.
type Stats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Retrying int `json:"retrying"`
	Failed   int `json:"failed"`
}

// queue is the ordered, file-backed item list. Every mutation rewrites
// the file before returning. An empty path keeps items in memory only.
type queue struct {
	mu         sync.Mutex
	path       string
	items      []Item
	maxRetries int
	logger     *slog.Logger
	nowFunc    func() time.Time
}

func openQueue(path string, maxRetries int, logger *slog.Logger) (*queue, error) {
	q := &queue{path: path, maxRetries: maxRetries, logger: logger, nowFunc: time.Now}

	if path == "" {
		return q, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return q, nil
	}

	if err != nil {
		return nil, fmt.Errorf("edgeclient: reading queue %s: %w", path, err)
	}

	if len(data) == 0 {
		return q, nil
	}

	if err := json.Unmarshal(data, &q.items); err != nil {
		// Keep the unreadable file for inspection and start empty.
		aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		if renameErr := os.Rename(path, aside); renameErr != nil {
			return nil, fmt.Errorf("edgeclient: queue %s is corrupt and could not be moved: %w", path, errors.Join(err, renameErr))
		}

		logger.Warn("queue file unreadable, starting empty",
			slog.String("path", path),
			slog.String("moved_to", aside),
			slog.String("error", err.Error()),
		)

		q.items = nil
	}

	return q, nil
}

// enqueue appends a new item and persists the queue.
func (q *queue) enqueue(op Operation, payload json.RawMessage, endpoint string) (Item, error) {
	it := Item{
		ID:        uuid.NewString(),
		Operation: op,
		Payload:   payload,
		Endpoint:  endpoint,
		Timestamp: q.nowFunc().UTC(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, it)

	if err := q.saveLocked(); err != nil {
		q.items = q.items[:len(q.items)-1]
		return Item{}, err
	}

	q.logger.Info("operation queued",
		slog.String("operation", string(op)),
		slog.String("id", it.ID),
		slog.Int("queue_size", len(q.items)),
	)

	return it, nil
}

// eligible returns copies of the items still under the retry cap, in
// queue order.
func (q *queue) eligible() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Item, 0, len(q.items))

	for _, it := range q.items {
		if it.Retries < q.maxRetries {
			out = append(out, it)
		}
	}

	return out
}

// remove drops the item with id. A missing id is not an error; Clear may
// have raced with a flush.
func (q *queue) remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(id)
	if i < 0 {
		return nil
	}

	q.items = slices.Delete(q.items, i, i+1)

	return q.saveLocked()
}

// fail records a failed attempt in place and returns the new retry count.
func (q *queue) fail(id string, cause error) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(id)
	if i < 0 {
		return 0, nil
	}

	q.items[i].Retries++
	q.items[i].LastError = cause.Error()

	return q.items[i].Retries, q.saveLocked()
}

func (q *queue) clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = nil

	return q.saveLocked()
}

func (q *queue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

func (q *queue) snapshot() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	return slices.Clone(q.items)
}

func (q *queue) stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{Total: len(q.items)}

	for _, it := range q.items {
		switch {
		case it.Retries >= q.maxRetries:
			s.Failed++
		case it.Retries > 0:
			s.Retrying++
		default:
			s.Pending++
		}
	}

	return s
}

func (q *queue) indexLocked(id string) int {
	return slices.IndexFunc(q.items, func(it Item) bool { return it.ID == id })
}

// saveLocked writes the queue atomically: temp file in the same
// directory, fsync, rename.
func (q *queue) saveLocked() error {
	if q.path == "" {
		return nil
	}

	items := q.items
	if items == nil {
		items = []Item{}
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("edgeclient: encoding queue: %w", err)
	}

	dir := filepath.Dir(q.path)
	if err := os.MkdirAll(dir, queueDirPerms); err != nil {
		return fmt.Errorf("edgeclient: creating queue directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".queue-*.tmp")
	if err != nil {
		return fmt.Errorf("edgeclient: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(queueFilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("edgeclient: setting queue permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("edgeclient: writing queue: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("edgeclient: syncing queue: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("edgeclient: closing queue: %w", err)
	}

	if err := os.Rename(tmpPath, q.path); err != nil {
		return fmt.Errorf("edgeclient: replacing queue: %w", err)
	}

	success = true

	return nil
}
