package config

import "sync"

// Holder provides thread-safe access to the current resolved configuration
// and the immutable config file path. The watcher swaps in new values; the
// rest of the process reads through the Holder.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Resolved
	path string // immutable after construction
}

// NewHolder creates a Holder with the initial config and config file path.
func NewHolder(cfg *Resolved, path string) *Holder {
	return &Holder{
		cfg:  cfg,
		path: path,
	}
}

// Config returns the current config snapshot. Callers must not modify it.
func (h *Holder) Config() *Resolved {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

// Path returns the config file path.
func (h *Holder) Path() string {
	return h.path
}

// Update replaces the config and returns the one it replaced.
func (h *Holder) Update(cfg *Resolved) *Resolved {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.cfg
	h.cfg = cfg

	return prev
}
