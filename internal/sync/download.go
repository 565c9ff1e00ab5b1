package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/edge-datahub/internal/cloud"
	"github.com/tonimelisma/edge-datahub/internal/ident"
	"github.com/tonimelisma/edge-datahub/internal/store"
)

// errEventUnavailable means the event phase failed and the event has never
// been downloaded, so dependent phases have nowhere to write.
var errEventUnavailable = errors.New("sync: event not available locally")

// Download pulls the event, its attendees and its experiences from the
// cloud. The event phase runs first and marks the event as the sync
// target; the attendee and experience phases then run concurrently. A
// failed phase is recorded in the report and does not stop the others.
func (e *Engine) Download(ctx context.Context, eventID string) (*CycleReport, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, ErrEventRequired
	}

	release, err := e.begin(DirectionDownload)
	if err != nil {
		return nil, err
	}
	defer release()

	report := &CycleReport{Direction: DirectionDownload, EventID: eventID, StartedAt: e.nowFunc()}
	defer e.finish(report)

	e.logger.Info("download starting", slog.String("event_id", eventID))

	r := e.runner()
	size := e.currentBatchSize()

	report.Phases = append(report.Phases, r.run(ctx, PhaseEvent, func(ctx context.Context, p *PhaseReport) error {
		return e.pullEvent(ctx, eventID, p)
	}))

	// The event phase may have failed on a previously downloaded event;
	// the stored copy is still a valid parent for the other phases.
	local, lookupErr := e.store.GetEvent(ctx, eventID)
	if lookupErr != nil && !errors.Is(lookupErr, store.ErrNotFound) {
		return report, fmt.Errorf("sync: resolving event %s: %w", eventID, lookupErr)
	}

	var attendees, experiences *PhaseReport

	var g errgroup.Group

	g.Go(func() error {
		attendees = r.run(ctx, PhaseAttendees, func(ctx context.Context, p *PhaseReport) error {
			if local == nil {
				return errEventUnavailable
			}

			return e.pullAttendees(ctx, eventID, local.LocalID, size, p)
		})

		return nil
	})

	g.Go(func() error {
		experiences = r.run(ctx, PhaseExperiences, func(ctx context.Context, p *PhaseReport) error {
			if local == nil {
				return errEventUnavailable
			}

			return e.pullExperiences(ctx, eventID, local.LocalID, size, p)
		})

		return nil
	})

	_ = g.Wait() // phases never return errors; failures live in the reports

	report.Phases = append(report.Phases, attendees, experiences)

	return report, nil
}

func (e *Engine) pullEvent(ctx context.Context, eventID string, p *PhaseReport) error {
	remote, err := e.cloud.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}

	p.Selected = 1

	ev := &store.Event{
		Name:               remote.Name,
		Description:        remote.Description,
		Type:               remote.Type,
		AccessType:         remote.AccessType,
		Dates:              remote.Dates,
		InitialDate:        remote.InitialDate,
		FinishDate:         remote.FinishDate,
		Active:             remote.Active,
		RegistrationFields: remote.RegistrationFields,
	}

	// Some cloud responses omit the id; the requested one is authoritative.
	ev.RemoteID = ident.NewRemoteID(eventID)
	if remote.ID != "" && remote.ID != eventID {
		e.logger.Warn("cloud event id differs from requested id",
			slog.String("requested", eventID),
			slog.String("returned", remote.ID),
		)
	}

	err = e.store.InTx(ctx, func(tx *store.Store) error {
		if err := tx.UpsertEvent(ctx, ev); err != nil {
			return err
		}

		return tx.SetSyncTarget(ctx, ev.LocalID)
	})
	if err != nil {
		return err
	}

	p.Synced = 1
	p.Batches = append(p.Batches, BatchResult{Index: 1, Size: 1, Marked: 1})

	return nil
}

func (e *Engine) pullAttendees(ctx context.Context, eventID string, localEvent ident.LocalID, size int, p *PhaseReport) error {
	remote, err := e.cloud.ListAttendees(ctx, eventID)
	if err != nil {
		return err
	}

	p.Selected = len(remote)

	rows := make([]*store.Attendee, 0, len(remote))

	for i := range remote {
		a := attendeeFromCloud(&remote[i])
		if a == nil {
			p.Skipped++
			e.logger.Warn("skipping downloaded attendee without id or email",
				slog.String("remote_id", remote[i].ID),
			)

			continue
		}

		rows = append(rows, a)
	}

	for i, batch := range chunk(rows, size) {
		res := BatchResult{Index: i + 1, Size: len(batch)}

		res.Marked, res.Err = e.store.UpsertDownloadedAttendees(ctx, localEvent, batch)
		if res.Err != nil {
			res.Marked = 0
			e.logger.Warn("attendee chunk failed",
				slog.Int("batch", res.Index),
				slog.String("error", res.Err.Error()),
			)
		} else {
			p.Synced += res.Marked
		}

		p.Batches = append(p.Batches, res)
	}

	return nil
}

func (e *Engine) pullExperiences(ctx context.Context, eventID string, localEvent ident.LocalID, size int, p *PhaseReport) error {
	remote, err := e.cloud.ListExperiences(ctx, eventID)
	if err != nil {
		return err
	}

	p.Selected = len(remote)

	rows := make([]*store.Experience, 0, len(remote))

	for i := range remote {
		if strings.TrimSpace(remote[i].ID) == "" {
			p.Skipped++
			continue
		}

		rows = append(rows, experienceFromCloud(&remote[i]))
	}

	for i, batch := range chunk(rows, size) {
		res := BatchResult{Index: i + 1, Size: len(batch)}

		if res.Err = e.store.UpsertExperiences(ctx, localEvent, batch); res.Err != nil {
			e.logger.Warn("experience chunk failed",
				slog.Int("batch", res.Index),
				slog.String("error", res.Err.Error()),
			)
		} else {
			res.Marked = len(batch)
			p.Synced += len(batch)
		}

		p.Batches = append(p.Batches, res)
	}

	return nil
}

// attendeeFromCloud converts a cloud attendee, normalizing the email and
// deriving the code exactly as local registration does. It returns nil for
// rows that cannot be keyed.
func attendeeFromCloud(c *cloud.Attendee) *store.Attendee {
	email := ident.NormalizeEmail(c.Email)
	if email == "" || strings.TrimSpace(c.ID) == "" {
		return nil
	}

	a := &store.Attendee{
		UserID:      c.UserID,
		FullName:    c.FullName,
		Email:       email,
		Code:        ident.Code(email),
		Country:     c.Country,
		City:        c.City,
		CheckInAt:   c.CheckInAt,
		CheckInType: c.CheckInType,
		Origin:      c.Origin,
		Properties:  c.Properties,
	}
	a.RemoteID = ident.NewRemoteID(c.ID)

	return a
}

func experienceFromCloud(c *cloud.Experience) *store.Experience {
	e := &store.Experience{
		ExperienceID:   c.ExperienceID,
		Location:       c.Location,
		CustomName:     c.CustomName,
		ExperienceName: c.Name(),
		Active:         c.IsActive(),
		CustomConfig:   c.CustomConfig,
	}
	e.RemoteID = ident.NewRemoteID(c.ID)

	return e
}
