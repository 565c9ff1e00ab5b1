package store

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tonimelisma/edge-datahub/internal/ident"
)

// SyncState is the reconciliation shape shared by every entity.
type SyncState struct {
	LocalID      ident.LocalID  `json:"localId"`
	RemoteID     ident.RemoteID `json:"remoteId,omitzero"`
	Synced       bool           `json:"sync"`
	LastSyncedAt *time.Time     `json:"lastSyncedAt"`
}

// Event is reference data pulled from the cloud.
type Event struct {
	SyncState

	Name               string          `json:"name"`
	Description        string          `json:"description"`
	Type               string          `json:"type"`
	AccessType         string          `json:"accessType"`
	Dates              json.RawMessage `json:"dates,omitempty"`
	InitialDate        *time.Time      `json:"initialDate"`
	FinishDate         *time.Time      `json:"finishDate"`
	Active             bool            `json:"active"`
	RegistrationFields json.RawMessage `json:"registrationFields,omitempty"`
	SyncTarget         bool            `json:"syncTarget"`
}

// Attendee is a registered person. Code is derived from Email.
type Attendee struct {
	SyncState

	EventID     ident.LocalID   `json:"eventId"`
	UserID      string          `json:"userId,omitempty"`
	FullName    string          `json:"fullName"`
	Email       string          `json:"email"`
	Code        string          `json:"code"`
	Country     string          `json:"country,omitempty"`
	City        string          `json:"city,omitempty"`
	CheckInAt   *time.Time      `json:"checkInAt"`
	CheckInType string          `json:"checkInType"`
	Origin      string          `json:"origin"`
	Properties  json.RawMessage `json:"properties,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Experience is an activity station within an event.
type Experience struct {
	SyncState

	EventID        ident.LocalID   `json:"eventId"`
	ExperienceID   string          `json:"experienceId"`
	Location       string          `json:"location"`
	CustomName     string          `json:"customName"`
	ExperienceName string          `json:"experienceName"`
	Active         bool            `json:"active"`
	CustomConfig   json.RawMessage `json:"customConfig,omitempty"`
}

// PlayRecord is one logged interaction of an attendee with an experience.
type PlayRecord struct {
	SyncState

	EventID       ident.LocalID   `json:"eventId"`
	ExperienceID  ident.LocalID   `json:"experienceId"`
	AttendeeID    ident.LocalID   `json:"attendeeId"`
	Score         decimal.Decimal `json:"score"`
	BonusScore    decimal.Decimal `json:"bonusScore"`
	PlayTimestamp time.Time       `json:"playTimestamp"`
	Data          json.RawMessage `json:"data,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Redemption records points spent by an attendee within an event.
type Redemption struct {
	SyncState

	EventID        ident.LocalID   `json:"eventId"`
	AttendeeID     ident.LocalID   `json:"attendeeId"`
	PointsRedeemed decimal.Decimal `json:"pointsRedeemed"`
	Reason         string          `json:"reason"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	RedemptionDate time.Time       `json:"redemptionDate"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// PendingPlay is an unsynced play joined with the remote ids the cloud
// needs to accept it. AttendeeRemoteID is zero when the attendee has not
// been uploaded yet.
type PendingPlay struct {
	PlayRecord

	EventRemoteID      ident.RemoteID
	ExperienceRemoteID ident.RemoteID
	ExperienceRef      string
	AttendeeRemoteID   ident.RemoteID
}

// PendingRedemption is an unsynced redemption joined with remote ids.
type PendingRedemption struct {
	Redemption

	EventRemoteID    ident.RemoteID
	AttendeeRemoteID ident.RemoteID
	AttendeeUserID   string
}

// AttendeeAck is the cloud's acceptance of one attendee, matched by email.
type AttendeeAck struct {
	Email    string
	RemoteID ident.RemoteID
	UserID   string
}

// Ack is the cloud's acceptance of a play or redemption, matched by the
// echoed local id.
type Ack struct {
	LocalID  ident.LocalID
	RemoteID ident.RemoteID
}

// Counts summarizes local data for one event.
type Counts struct {
	Attendees           int `json:"attendees"`
	Experiences         int `json:"experiences"`
	Plays               int `json:"plays"`
	Redemptions         int `json:"redemptions"`
	UnsyncedAttendees   int `json:"unsyncedAttendees"`
	UnsyncedPlays       int `json:"unsyncedPlays"`
	UnsyncedRedemptions int `json:"unsyncedRedemptions"`
}

// Pending returns the number of rows waiting for upload.
func (c Counts) Pending() int {
	return c.UnsyncedAttendees + c.UnsyncedPlays + c.UnsyncedRedemptions
}
