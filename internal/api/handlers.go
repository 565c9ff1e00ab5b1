package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tonimelisma/edge-datahub/internal/edge"
	"github.com/tonimelisma/edge-datahub/internal/sync"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handler holds the dependencies shared by every endpoint.
type Handler struct {
	svc    *edge.Service
	engine *sync.Engine
	logger *slog.Logger

	originPatterns []string
	nowFunc        func() time.Time
}

// NewHandler creates a Handler.
func NewHandler(svc *edge.Service, engine *sync.Engine, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, engine: engine, logger: logger, nowFunc: time.Now}
}

// RegisterAttendee answers 201 for a new registration and 200 with the
// stored attendee when the email is already registered for the event.
func (h *Handler) RegisterAttendee(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	a, status, err := h.svc.RegisterAttendee(r.Context(), edge.RegisterInput{
		EventID:    req.EventID,
		FullName:   req.FullName,
		Email:      req.Email,
		Country:    req.Country,
		City:       req.City,
		Properties: req.Properties,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if status.Existing() {
		writeJSON(w, http.StatusOK, AttendeeResponse{Message: "Attendee already registered", Status: status, Attendee: a})
		return
	}

	writeJSON(w, http.StatusCreated, AttendeeResponse{Message: "Attendee registered successfully", Status: status, Attendee: a})
}

// FindAttendeeByCode looks an attendee up by the five-digit code.
func (h *Handler) FindAttendeeByCode(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.LookupAttendeeByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AttendeeResponse{Message: "Attendee found", Attendee: a})
}

// LogExperiencePlay stores one play. A repeat scored play is stored with a
// zero score and reported as logged_unscored.
func (h *Handler) LogExperiencePlay(w http.ResponseWriter, r *http.Request) {
	var req PlayRequest
	if !h.decode(w, r, &req) {
		return
	}

	if !req.Score.Valid {
		writeError(w, http.StatusBadRequest, codeValidation, "score is required")
		return
	}

	in := edge.PlayInput{
		ExperienceID: req.EventExperienceID,
		AttendeeID:   req.AttendeeID,
		Score:        req.Score.Decimal,
		BonusScore:   req.BonusScore.Decimal,
		Data:         req.Data,
	}

	if req.PlayTimestamp != nil {
		in.PlayTimestamp = *req.PlayTimestamp
	}

	play, status, err := h.svc.LogExperiencePlay(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	msg := "Experience play logged successfully"
	if status == edge.StatusLoggedUnscored {
		msg = "Experience play logged without score"
	}

	writeJSON(w, http.StatusCreated, PlayResponse{Message: msg, Status: status, Play: play})
}

// RedeemPoints answers 201 for a new redemption and 200 with the stored
// one when the attendee already redeemed for the event.
func (h *Handler) RedeemPoints(w http.ResponseWriter, r *http.Request) {
	var req RedemptionRequest
	if !h.decode(w, r, &req) {
		return
	}

	if !req.PointsRedeemed.Valid {
		writeError(w, http.StatusBadRequest, codeValidation, "pointsRedeemed is required")
		return
	}

	red, status, err := h.svc.RedeemPoints(r.Context(), edge.RedeemInput{
		EventID:        req.EventID,
		AttendeeID:     req.AttendeeID,
		PointsRedeemed: req.PointsRedeemed.Decimal,
		Reason:         req.Reason,
		Metadata:       req.Metadata,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if status.Existing() {
		writeJSON(w, http.StatusOK, RedemptionResponse{
			Message: "Points already redeemed for this attendee and event", Status: status, Redemption: red,
		})

		return
	}

	writeJSON(w, http.StatusCreated, RedemptionResponse{Message: "Points redeemed successfully", Status: status, Redemption: red})
}

// AttendeeStatus resolves an attendee by id, code or email and returns
// their total points.
func (h *Handler) AttendeeStatus(w http.ResponseWriter, r *http.Request) {
	var req AttendeeStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	st, err := h.svc.GetAttendeeStatus(r.Context(), edge.StatusQuery{
		AttendeeID: req.AttendeeID,
		Code:       req.Code,
		Email:      req.Email,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AttendeeStatusResponse{Message: "Attendee status retrieved successfully", Status: st})
}

// SyncEvent runs a download cycle for the requested event and returns its
// report. Phase failures are part of the report, not the status code.
func (h *Handler) SyncEvent(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if !h.decode(w, r, &req) {
		return
	}

	report, err := h.engine.Download(r.Context(), req.EventID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, SyncResponse{Message: "Sync initiated", EventID: report.EventID, Report: report})
}

// Upload runs one upload cycle for the sync target event.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Upload(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, SyncResponse{Message: "cloud Sync finished", EventID: report.EventID, Report: report})
}

// SyncStatus reports local counts for ?eventId= (all events when absent)
// together with a fresh connectivity probe.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.SyncStatus(r.Context(), r.URL.Query().Get("eventId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, st)
}

// Health always answers 200 without calling the cloud. Stations probe this
// route to decide whether the edge is up, so it must not wait on an
// unreachable upstream; cloudConnected is the probe loop's last result.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	snap := h.engine.Status().Snapshot()

	writeJSON(w, http.StatusOK, HealthResponse{
		Message:        "edge ok",
		CloudConnected: snap.CloudConnected,
		LastProbeAt:    snap.LastProbeAt,
		Timestamp:      h.nowFunc().UTC(),
	})
}

// decode reads a JSON body into v, answering 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, codeValidation,
				fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))

			return false
		}

		writeError(w, http.StatusBadRequest, codeValidation, "invalid request body: "+err.Error())

		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
