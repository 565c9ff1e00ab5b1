package edgeclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Operation names a queueable call.
type Operation string

// Queueable operations.
const (
	OpLogExperiencePlay Operation = "logExperiencePlay"
	OpRedeemPoints      Operation = "redeemPoints"
)

// Delivery says what happened to a queueable call.
type Delivery string

// Delivery outcomes.
const (
	DeliverySent   Delivery = "sent"
	DeliveryQueued Delivery = "queued"
)

var (
	// ErrOffline is returned by non-queueable calls while the edge is
	// unreachable.
	ErrOffline = errors.New("edgeclient: edge unreachable")

	// ErrMissingField marks a request that lacks a required field.
	ErrMissingField = errors.New("edgeclient: missing required field")
)

// APIError is a non-2xx answer from the edge.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("edgeclient: HTTP %d %s: %s", e.StatusCode, e.Code, e.Message)
	}

	return fmt.Sprintf("edgeclient: HTTP %d: %s", e.StatusCode, e.Message)
}

// Rejected reports whether the edge refused the request itself (4xx
// other than timeout and throttling). Resending it cannot succeed.
func (e *APIError) Rejected() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 &&
		e.StatusCode != 408 && e.StatusCode != 429
}

// RegisterRequest registers an attendee. The configured event id is added.
type RegisterRequest struct {
	FullName   string          `json:"fullName"`
	Email      string          `json:"email"`
	Country    string          `json:"country,omitempty"`
	City       string          `json:"city,omitempty"`
	Properties json.RawMessage `json:"properties,omitempty"`
}

// PlayRequest logs one play. The configured event experience id is added.
type PlayRequest struct {
	AttendeeID    string
	PlayTimestamp time.Time
	Score         decimal.Decimal
	BonusScore    decimal.Decimal
	Data          json.RawMessage
}

// RedeemRequest redeems points. The configured event id is added.
type RedeemRequest struct {
	AttendeeID     string
	PointsRedeemed decimal.Decimal
	Reason         string
	Metadata       json.RawMessage
}

type registerPayload struct {
	RegisterRequest

	EventID string `json:"eventId"`
}

type playPayload struct {
	EventExperienceID string          `json:"eventExperienceId"`
	AttendeeID        string          `json:"attendeeId"`
	PlayTimestamp     time.Time       `json:"play_timestamp"`
	Score             decimal.Decimal `json:"score"`
	BonusScore        decimal.Decimal `json:"bonusScore"`
	Data              json.RawMessage `json:"data,omitempty"`
}

type redeemPayload struct {
	EventID        string          `json:"eventId"`
	AttendeeID     string          `json:"attendeeId"`
	PointsRedeemed decimal.Decimal `json:"pointsRedeemed"`
	Reason         string          `json:"reason"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// Attendee is the edge's view of a registered attendee.
type Attendee struct {
	LocalID   string     `json:"localId"`
	RemoteID  string     `json:"remoteId,omitempty"`
	EventID   string     `json:"eventId"`
	FullName  string     `json:"fullName"`
	Email     string     `json:"email"`
	Code      string     `json:"code"`
	Country   string     `json:"country,omitempty"`
	City      string     `json:"city,omitempty"`
	CheckInAt *time.Time `json:"checkInAt"`
	Synced    bool       `json:"sync"`
}

// AttendeeResponse answers registration and code lookup.
type AttendeeResponse struct {
	Message  string    `json:"message"`
	Status   string    `json:"status,omitempty"`
	Attendee *Attendee `json:"attendee"`
}

// PlayResponse answers a directly delivered play.
type PlayResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
	Play    struct {
		LocalID    string          `json:"localId"`
		Score      decimal.Decimal `json:"score"`
		BonusScore decimal.Decimal `json:"bonusScore"`
	} `json:"play"`
}

// RedeemResponse answers a directly delivered redemption.
type RedeemResponse struct {
	Message    string `json:"message"`
	Status     string `json:"status"`
	Redemption struct {
		LocalID        string          `json:"localId"`
		PointsRedeemed decimal.Decimal `json:"pointsRedeemed"`
	} `json:"redemption"`
}

// FlushResult summarizes one pass over the queue.
type FlushResult struct {
	Attempted   int `json:"attempted"`
	Sent        int `json:"sent"`
	Failed      int `json:"failed"`
	Quarantined int `json:"quarantined"`
}

type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
