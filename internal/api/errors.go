package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/edge-datahub/internal/cloud"
	"github.com/tonimelisma/edge-datahub/internal/edge"
	"github.com/tonimelisma/edge-datahub/internal/store"
	"github.com/tonimelisma/edge-datahub/internal/sync"
)

// Error codes carried in ErrorResponse.Code.
const (
	codeNotFound       = "not_found"
	codeValidation     = "validation"
	codeConflict       = "conflict"
	codeSyncInProgress = "sync_in_progress"
	codeNoSyncTarget   = "no_sync_target"
	codeNotConfigured  = "cloud_not_configured"
	codeInternal       = "internal"
)

// classify maps an error to its HTTP status and code. Unknown errors are
// internal.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, edge.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, edge.ErrValidation), errors.Is(err, sync.ErrEventRequired):
		return http.StatusBadRequest, codeValidation
	case errors.Is(err, edge.ErrConflict):
		return http.StatusConflict, codeConflict
	case errors.Is(err, sync.ErrSyncInProgress):
		return http.StatusConflict, codeSyncInProgress
	case errors.Is(err, sync.ErrNoSyncTarget):
		return http.StatusConflict, codeNoSyncTarget
	case errors.Is(err, cloud.ErrNotConfigured):
		return http.StatusServiceUnavailable, codeNotConfigured
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// fail writes err as an ErrorResponse. Internal errors are logged and
// their text is not exposed.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", msg),
		)

		msg = http.StatusText(status)
	}

	writeError(w, status, code, msg)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}
