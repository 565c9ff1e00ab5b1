// Package cloudtwin is an in-memory emulation of the cloud API the edge
// syncs with. It serves the same paths and envelopes, upserts uploads by
// natural key so retries are idempotent, can fail chosen requests on
// demand, and optionally guards every route with OAuth2 client-credentials
// bearer tokens. Tests drive it through httptest; cmd/cloudtwin serves it
// standalone for local development.
package cloudtwin

import (
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tonimelisma/edge-datahub/internal/cloud"
)

// Options configures a Twin.
type Options struct {
	Logger *slog.Logger

	// RequireAuth rejects cloud API calls without a valid bearer token.
	RequireAuth  bool
	StaticTokens []string
	ClientID     string
	ClientSecret string
	// Secret signs issued tokens. A random key is generated when empty.
	Secret []byte

	Now func() time.Time
}

// Twin is one emulated cloud.
type Twin struct {
	opts   Options
	logger *slog.Logger
	secret []byte
	mem    *memory
	faults *faultRegistry
	router chi.Router
}

// New creates a twin with empty state.
func New(opts Options) *Twin {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	secret := opts.Secret
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
	}

	t := &Twin{
		opts:   opts,
		logger: opts.Logger,
		secret: secret,
		mem:    newMemory(),
		faults: newFaultRegistry(),
	}

	t.router = t.routes()

	return t
}

// Handler returns the twin's HTTP handler.
func (t *Twin) Handler() http.Handler {
	return t.router
}

func (t *Twin) now() time.Time {
	if t.opts.Now != nil {
		return t.opts.Now()
	}

	return time.Now()
}

func (t *Twin) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/oauth/token", t.handleToken)

	r.Group(func(r chi.Router) {
		r.Use(t.faults.middleware)
		r.Use(t.requireAuth)

		r.Get("/events/stats", t.handleStats)
		r.Get("/events/landing/{eventID}", t.handleGetEvent)
		r.Get("/attendee/full/{eventID}", t.handleListAttendees)
		r.Get("/event-experience/by-event/{eventID}", t.handleListExperiences)
		r.Post("/attendee/massive_upload", t.handleUploadAttendees)
		r.Post("/experience-play-data/massive_upload", t.handleUploadPlays)
		r.Post("/points-redemption/massive_upload", t.handleUploadRedemptions)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Get("/state", t.handleState)
		r.Post("/reset", t.handleReset)
		r.Post("/faults", t.handleSetFault)
		r.Delete("/faults", t.handleClearFaults)
	})

	return r
}

// InjectFault registers a fault for one path.
func (t *Twin) InjectFault(f Fault) {
	t.faults.set(f)
}

// ClearFaults removes every fault and resets request counters.
func (t *Twin) ClearFaults() {
	t.faults.clear()
}

// Calls returns how many requests reached path.
func (t *Twin) Calls(path string) int {
	return t.faults.count(path)
}

// Reset drops all state, faults and counters.
func (t *Twin) Reset() {
	t.mem.mu.Lock()
	t.mem.reset()
	t.mem.mu.Unlock()
	t.faults.clear()
}

// Attendees returns the event's attendees in insertion order.
func (t *Twin) Attendees(eventID string) []cloud.Attendee {
	return t.mem.listAttendees(eventID)
}

// Plays returns every accepted play in acceptance order.
func (t *Twin) Plays() []PlayRecord {
	return t.mem.listPlays()
}

// Redemptions returns every accepted redemption in acceptance order.
func (t *Twin) Redemptions() []RedemptionRecord {
	return t.mem.listRedemptions()
}

func (t *Twin) handleStats(w http.ResponseWriter, _ *http.Request) {
	t.mem.mu.RLock()
	events := len(t.mem.events)
	t.mem.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]int{"events": events})
}

func (t *Twin) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, ok := t.mem.event(chi.URLParam(r, "eventID"))
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"event": ev})
}

func (t *Twin) handleListAttendees(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "eventID")
	if _, ok := t.mem.event(id); !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"attendees": t.mem.listAttendees(id)})
}

func (t *Twin) handleListExperiences(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "eventID")
	if _, ok := t.mem.event(id); !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"eventExperiences": t.mem.listExperiences(id)})
}

type attendeeUploadBody struct {
	Attendees []cloud.AttendeeUpload `json:"attendees"`
	EventID   string                 `json:"eventId"`
}

func (t *Twin) handleUploadAttendees(w http.ResponseWriter, r *http.Request) {
	var body attendeeUploadBody
	if !decodeBody(w, r, &body) {
		return
	}

	if _, ok := t.mem.event(body.EventID); !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	acks := make([]cloud.AttendeeAck, 0, len(body.Attendees))

	for _, a := range body.Attendees {
		if strings.TrimSpace(a.Email) == "" {
			continue
		}

		stored := t.mem.upsertAttendee(body.EventID, cloud.Attendee{
			UserID:      a.UserID,
			FullName:    a.FullName,
			Email:       a.Email,
			Country:     a.Country,
			City:        a.City,
			CheckInAt:   a.CheckInAt,
			CheckInType: a.CheckInType,
			Origin:      a.Origin,
			Properties:  a.Properties,
		})

		acks = append(acks, cloud.AttendeeAck{ID: stored.ID, Email: stored.Email, UserID: stored.UserID})
	}

	t.logger.Debug("twin accepted attendees",
		slog.String("event_id", body.EventID),
		slog.Int("sent", len(body.Attendees)),
		slog.Int("accepted", len(acks)),
	)

	writeJSON(w, http.StatusOK, map[string]any{"success": acks})
}

type playDataBody[T any] struct {
	PlayData []T    `json:"playData"`
	EventID  string `json:"eventId"`
}

// handleUploadPlays accepts plays whose attendee exists in the event.
// Others are left out of success so the edge retries them later.
func (t *Twin) handleUploadPlays(w http.ResponseWriter, r *http.Request) {
	var body playDataBody[cloud.PlayUpload]
	if !decodeBody(w, r, &body) {
		return
	}

	acks := make([]cloud.RecordAck, 0, len(body.PlayData))

	for _, p := range body.PlayData {
		if p.LocalID == "" || !t.mem.attendeeExists(body.EventID, p.AttendeeID) {
			continue
		}

		acks = append(acks, cloud.RecordAck{ID: t.mem.upsertPlay(p), LocalID: p.LocalID})
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": acks})
}

func (t *Twin) handleUploadRedemptions(w http.ResponseWriter, r *http.Request) {
	var body playDataBody[cloud.RedemptionUpload]
	if !decodeBody(w, r, &body) {
		return
	}

	acks := make([]cloud.RecordAck, 0, len(body.PlayData))

	for _, rd := range body.PlayData {
		if rd.LocalID == "" || !t.mem.attendeeExists(body.EventID, rd.AttendeeID) {
			continue
		}

		acks = append(acks, cloud.RecordAck{ID: t.mem.upsertRedemption(rd), LocalID: rd.LocalID})
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": acks})
}

func (t *Twin) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, t.mem.snapshot(t.now()))
}

func (t *Twin) handleReset(w http.ResponseWriter, _ *http.Request) {
	t.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (t *Twin) handleSetFault(w http.ResponseWriter, r *http.Request) {
	var f Fault
	if !decodeBody(w, r, &f) {
		return
	}

	if f.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	t.InjectFault(f)
	w.WriteHeader(http.StatusNoContent)
}

func (t *Twin) handleClearFaults(w http.ResponseWriter, _ *http.Request) {
	t.ClearFaults()
	w.WriteHeader(http.StatusNoContent)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
