package cloud

import (
	"encoding/json"
	"time"
)

// Event is the cloud's event document from GET /events/landing/{id}.
type Event struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	Type               string          `json:"type"`
	AccessType         string          `json:"accessType"`
	Dates              json.RawMessage `json:"dates"`
	InitialDate        *time.Time      `json:"initialDate"`
	FinishDate         *time.Time      `json:"finishDate"`
	Active             bool            `json:"active"`
	RegistrationFields json.RawMessage `json:"registrationFields"`
}

// Attendee is a cloud attendee from GET /attendee/full/{eventId}.
type Attendee struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	FullName    string          `json:"fullName"`
	Email       string          `json:"email"`
	Country     string          `json:"country"`
	City        string          `json:"city"`
	CheckInAt   *time.Time      `json:"checkInAt"`
	CheckInType string          `json:"checkInType"`
	Origin      string          `json:"origin"`
	Properties  json.RawMessage `json:"properties"`
}

// ExperienceRef is the nested experience catalog entry.
type ExperienceRef struct {
	Name string `json:"name"`
}

// Experience is an event experience from GET /event-experience/by-event/{id}.
type Experience struct {
	ID           string          `json:"id"`
	EventID      string          `json:"eventId"`
	ExperienceID string          `json:"experienceId"`
	Location     string          `json:"location"`
	CustomName   string          `json:"customName"`
	Experience   *ExperienceRef  `json:"experience"`
	Active       *bool           `json:"active"`
	CustomConfig json.RawMessage `json:"customConfig"`
}

// Name returns the catalog name of the experience, if present.
func (e *Experience) Name() string {
	if e.Experience == nil {
		return ""
	}

	return e.Experience.Name
}

// IsActive treats a missing active flag as active.
func (e *Experience) IsActive() bool {
	return e.Active == nil || *e.Active
}

// AttendeeUpload is one attendee in POST /attendee/massive_upload.
type AttendeeUpload struct {
	LocalID     string          `json:"localId"`
	EventID     string          `json:"eventId"`
	UserID      string          `json:"userId,omitempty"`
	FullName    string          `json:"fullName"`
	Email       string          `json:"email"`
	Code        string          `json:"code"`
	Country     string          `json:"country,omitempty"`
	City        string          `json:"city,omitempty"`
	CheckInAt   *time.Time      `json:"checkInAt,omitempty"`
	CheckInType string          `json:"checkInType,omitempty"`
	Origin      string          `json:"origin,omitempty"`
	Properties  json.RawMessage `json:"properties,omitempty"`
}

// AttendeeAck is the cloud's acceptance of one attendee, keyed by email.
type AttendeeAck struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	UserID string `json:"userId"`
}

// PlayUpload is one play in POST /experience-play-data/massive_upload.
type PlayUpload struct {
	LocalID           string          `json:"localId"`
	EventExperienceID string          `json:"eventExperienceId"`
	EventID           string          `json:"eventId"`
	ExperienceID      string          `json:"experienceId"`
	AttendeeID        string          `json:"attendeeId"`
	PlayTimestamp     time.Time       `json:"play_timestamp"`
	Data              json.RawMessage `json:"data,omitempty"`
	Score             float64         `json:"score"`
	BonusScore        float64         `json:"bonusScore"`
	CreatedAt         time.Time       `json:"created_at"`
}

// RedemptionUpload is one redemption in POST
// /points-redemption/massive_upload.
type RedemptionUpload struct {
	LocalID         string          `json:"localId"`
	AttendeeEventID string          `json:"attendeeEventId"`
	AttendeeID      string          `json:"attendeeId"`
	AttendeeUserID  string          `json:"attendeeUserId,omitempty"`
	EventID         string          `json:"eventId"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	Reason          string          `json:"reason"`
	PointsRedeemed  float64         `json:"pointsRedeemed"`
	RedemptionDate  time.Time       `json:"redemptionDate"`
}

// RecordAck is the cloud's acceptance of a play or redemption, keyed by
// the echoed local id.
type RecordAck struct {
	ID      string `json:"id"`
	LocalID string `json:"localId"`
}

type eventEnvelope struct {
	Event *Event `json:"event"`
}

type attendeesEnvelope struct {
	Attendees []Attendee `json:"attendees"`
}

type experiencesEnvelope struct {
	EventExperiences []Experience `json:"eventExperiences"`
}

type attendeeUploadRequest struct {
	Attendees []AttendeeUpload `json:"attendees"`
	EventID   string           `json:"eventId"`
}

// Plays and redemptions share the playData envelope key.
type playDataRequest[T any] struct {
	PlayData []T    `json:"playData"`
	EventID  string `json:"eventId"`
}

type uploadResponse[T any] struct {
	Success []T `json:"success"`
}
