package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// Cloud API paths.
const (
	pathProbe              = "/events/stats"
	pathEventLanding       = "/events/landing/"
	pathAttendeesFull      = "/attendee/full/"
	pathExperiencesByEvent = "/event-experience/by-event/"
	pathAttendeeUpload     = "/attendee/massive_upload"
	pathPlayUpload         = "/experience-play-data/massive_upload"
	pathRedemptionUpload   = "/points-redemption/massive_upload"
)

// Probe makes one bounded GET against the stats endpoint. It returns nil
// only for a 2xx answer within the probe timeout.
func (c *Client) Probe(ctx context.Context) error {
	return c.doJSON(ctx, c.timeouts.Probe, http.MethodGet, pathProbe, nil, nil)
}

// Reachable reports whether Probe succeeds. Any failure, including a
// missing API base, counts as offline.
func (c *Client) Reachable(ctx context.Context) bool {
	if err := c.Probe(ctx); err != nil {
		c.logger.Debug("cloud unreachable", slog.String("error", err.Error()))
		return false
	}

	return true
}

// GetEvent fetches the event document.
func (c *Client) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	var env eventEnvelope

	if err := c.doJSON(ctx, c.timeouts.Fetch, http.MethodGet, pathEventLanding+url.PathEscape(eventID), nil, &env); err != nil {
		return nil, err
	}

	if env.Event == nil {
		return nil, fmt.Errorf("cloud: event %s: response has no event", eventID)
	}

	return env.Event, nil
}

// ListAttendees fetches every attendee of the event.
func (c *Client) ListAttendees(ctx context.Context, eventID string) ([]Attendee, error) {
	var env attendeesEnvelope

	if err := c.doJSON(ctx, c.timeouts.Fetch, http.MethodGet, pathAttendeesFull+url.PathEscape(eventID), nil, &env); err != nil {
		return nil, err
	}

	return env.Attendees, nil
}

// ListExperiences fetches the event's experiences.
func (c *Client) ListExperiences(ctx context.Context, eventID string) ([]Experience, error) {
	var env experiencesEnvelope

	if err := c.doJSON(ctx, c.timeouts.Fetch, http.MethodGet, pathExperiencesByEvent+url.PathEscape(eventID), nil, &env); err != nil {
		return nil, err
	}

	return env.EventExperiences, nil
}

// UploadAttendees posts one batch of attendees and returns the accepted
// subset.
func (c *Client) UploadAttendees(ctx context.Context, eventID string, batch []AttendeeUpload) ([]AttendeeAck, error) {
	var resp uploadResponse[AttendeeAck]

	req := attendeeUploadRequest{Attendees: batch, EventID: eventID}
	if err := c.doJSON(ctx, c.timeouts.Upload, http.MethodPost, pathAttendeeUpload, req, &resp); err != nil {
		return nil, err
	}

	return resp.Success, nil
}

// UploadPlays posts one batch of plays and returns the accepted subset.
func (c *Client) UploadPlays(ctx context.Context, eventID string, batch []PlayUpload) ([]RecordAck, error) {
	var resp uploadResponse[RecordAck]

	req := playDataRequest[PlayUpload]{PlayData: batch, EventID: eventID}
	if err := c.doJSON(ctx, c.timeouts.Upload, http.MethodPost, pathPlayUpload, req, &resp); err != nil {
		return nil, err
	}

	return resp.Success, nil
}

// UploadRedemptions posts one batch of redemptions and returns the
// accepted subset.
func (c *Client) UploadRedemptions(ctx context.Context, eventID string, batch []RedemptionUpload) ([]RecordAck, error) {
	var resp uploadResponse[RecordAck]

	req := playDataRequest[RedemptionUpload]{PlayData: batch, EventID: eventID}
	if err := c.doJSON(ctx, c.timeouts.Upload, http.MethodPost, pathRedemptionUpload, req, &resp); err != nil {
		return nil, err
	}

	return resp.Success, nil
}
