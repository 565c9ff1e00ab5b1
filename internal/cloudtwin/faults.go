package cloudtwin

import (
	"net/http"
	"sync"
)

// Fault makes the twin fail requests to one path.
type Fault struct {
	Path   string `json:"path"`
	Status int    `json:"status"`
	// OnCall fails only the Nth request to Path (1-based). Zero fails
	// every request.
	OnCall int `json:"onCall,omitempty"`
}

// faultRegistry counts requests per path and decides which to fail.
type faultRegistry struct {
	mu     sync.Mutex
	faults map[string]Fault
	calls  map[string]int
}

func newFaultRegistry() *faultRegistry {
	return &faultRegistry{
		faults: make(map[string]Fault),
		calls:  make(map[string]int),
	}
}

func (fr *faultRegistry) set(f Fault) {
	if f.Status == 0 {
		f.Status = http.StatusInternalServerError
	}

	fr.mu.Lock()
	defer fr.mu.Unlock()

	fr.faults[f.Path] = f
}

func (fr *faultRegistry) clear() {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	clear(fr.faults)
	clear(fr.calls)
}

// check records a request to path and returns the status to fail it with,
// or zero.
func (fr *faultRegistry) check(path string) int {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	fr.calls[path]++

	f, ok := fr.faults[path]
	if !ok {
		return 0
	}

	if f.OnCall == 0 || f.OnCall == fr.calls[path] {
		return f.Status
	}

	return 0
}

func (fr *faultRegistry) count(path string) int {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	return fr.calls[path]
}

// middleware fails requests matched by a registered fault.
func (fr *faultRegistry) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status := fr.check(r.URL.Path); status != 0 {
			writeError(w, status, "injected fault")
			return
		}

		next.ServeHTTP(w, r)
	})
}
