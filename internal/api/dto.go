package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tonimelisma/edge-datahub/internal/edge"
	"github.com/tonimelisma/edge-datahub/internal/store"
	"github.com/tonimelisma/edge-datahub/internal/sync"
)

// RegisterRequest is the body of POST /edge/attendees/register.
type RegisterRequest struct {
	EventID    string          `json:"eventId"`
	FullName   string          `json:"fullName"`
	Email      string          `json:"email"`
	Country    string          `json:"country,omitempty"`
	City       string          `json:"city,omitempty"`
	Properties json.RawMessage `json:"properties,omitempty"`
}

// PlayRequest is the body of POST /edge/experience. Score is required;
// an absent play_timestamp means now.
type PlayRequest struct {
	EventExperienceID string              `json:"eventExperienceId"`
	AttendeeID        string              `json:"attendeeId"`
	PlayTimestamp     *time.Time          `json:"play_timestamp"`
	Score             decimal.NullDecimal `json:"score"`
	BonusScore        decimal.NullDecimal `json:"bonusScore"`
	Data              json.RawMessage     `json:"data,omitempty"`
}

// RedemptionRequest is the body of POST /edge/redemption.
type RedemptionRequest struct {
	EventID        string              `json:"eventId"`
	AttendeeID     string              `json:"attendeeId"`
	PointsRedeemed decimal.NullDecimal `json:"pointsRedeemed"`
	Reason         string              `json:"reason"`
	Metadata       json.RawMessage     `json:"metadata,omitempty"`
}

// AttendeeStatusRequest is the body of POST /edge/attendees_status.
type AttendeeStatusRequest struct {
	AttendeeID string `json:"attendeeId,omitempty"`
	Code       string `json:"code,omitempty"`
	Email      string `json:"email,omitempty"`
}

// SyncRequest is the body of POST /edge/sync.
type SyncRequest struct {
	EventID string `json:"eventId"`
}

// AttendeeResponse wraps a registration or lookup result.
type AttendeeResponse struct {
	Message  string          `json:"message"`
	Status   edge.Status     `json:"status,omitempty"`
	Attendee *store.Attendee `json:"attendee"`
}

// PlayResponse wraps a logged play.
type PlayResponse struct {
	Message string            `json:"message"`
	Status  edge.Status       `json:"status"`
	Play    *store.PlayRecord `json:"play"`
}

// RedemptionResponse wraps a redemption.
type RedemptionResponse struct {
	Message    string            `json:"message"`
	Status     edge.Status       `json:"status"`
	Redemption *store.Redemption `json:"redemption"`
}

// AttendeeStatusResponse carries an attendee's identity and total points.
type AttendeeStatusResponse struct {
	Message string               `json:"message"`
	Status  *edge.AttendeeStatus `json:"status"`
}

// SyncResponse is returned by the sync trigger endpoints.
type SyncResponse struct {
	Message string            `json:"message"`
	EventID string            `json:"eventId,omitempty"`
	Report  *sync.CycleReport `json:"report"`
}

// HealthResponse is returned by GET /edge/health.
type HealthResponse struct {
	Message        string     `json:"message"`
	CloudConnected bool       `json:"cloudConnected"`
	LastProbeAt    *time.Time `json:"lastProbeAt"`
	Timestamp      time.Time  `json:"timestamp"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
