package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/edge-datahub/internal/cloud"
	"github.com/tonimelisma/edge-datahub/internal/ident"
	"github.com/tonimelisma/edge-datahub/internal/store"
)

// Upload pushes every unsynced attendee, play and redemption of the sync
// target event. Attendees go first so plays and redemptions registered in
// the same cycle can reference the attendee's new cloud id. Rows whose
// attendee has no cloud id yet are deferred to a later cycle.
func (e *Engine) Upload(ctx context.Context) (*CycleReport, error) {
	release, err := e.begin(DirectionUpload)
	if err != nil {
		return nil, err
	}
	defer release()

	target, err := e.store.SyncTarget(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoSyncTarget
	}

	if err != nil {
		return nil, fmt.Errorf("sync: resolving sync target: %w", err)
	}

	eventID := target.RemoteID.String()

	report := &CycleReport{Direction: DirectionUpload, EventID: eventID, StartedAt: e.nowFunc()}
	defer e.finish(report)

	e.logger.Info("upload starting", slog.String("event_id", eventID))

	r := e.runner()
	size := e.currentBatchSize()

	report.Phases = append(report.Phases,
		r.run(ctx, PhaseAttendees, func(ctx context.Context, p *PhaseReport) error {
			return e.pushAttendees(ctx, target, size, p)
		}),
		r.run(ctx, PhasePlays, func(ctx context.Context, p *PhaseReport) error {
			return e.pushPlays(ctx, target, size, p)
		}),
		r.run(ctx, PhaseRedemptions, func(ctx context.Context, p *PhaseReport) error {
			return e.pushRedemptions(ctx, target, size, p)
		}),
	)

	return report, nil
}

func (e *Engine) pushAttendees(ctx context.Context, target *store.Event, size int, p *PhaseReport) error {
	rows, err := e.store.ListUnsyncedAttendees(ctx, target.LocalID)
	if err != nil {
		return err
	}

	p.Selected = len(rows)
	eventID := target.RemoteID.String()

	for i, batch := range chunk(rows, size) {
		res := BatchResult{Index: i + 1, Size: len(batch)}

		payload := make([]cloud.AttendeeUpload, 0, len(batch))
		sent := make(map[string]struct{}, len(batch))

		for _, a := range batch {
			payload = append(payload, cloud.AttendeeUpload{
				LocalID:     a.LocalID.String(),
				EventID:     eventID,
				UserID:      a.UserID,
				FullName:    a.FullName,
				Email:       a.Email,
				Code:        a.Code,
				Country:     a.Country,
				City:        a.City,
				CheckInAt:   a.CheckInAt,
				CheckInType: a.CheckInType,
				Origin:      a.Origin,
				Properties:  a.Properties,
			})
			sent[a.Email] = struct{}{}
		}

		res.Err = func() error {
			acks, err := e.cloud.UploadAttendees(ctx, eventID, payload)
			if err != nil {
				return err
			}

			res.Accepted = len(acks)

			// Acks are matched by email; anything the batch did not send
			// is ignored.
			matched := make([]store.AttendeeAck, 0, len(acks))

			for _, ack := range acks {
				email := ident.NormalizeEmail(ack.Email)
				if _, ok := sent[email]; !ok || ack.ID == "" {
					continue
				}

				matched = append(matched, store.AttendeeAck{
					Email:    email,
					RemoteID: ident.NewRemoteID(ack.ID),
					UserID:   ack.UserID,
				})
			}

			res.Marked, err = e.store.MarkAttendeesSynced(ctx, target.LocalID, matched)

			return err
		}()

		e.recordBatch(p, &res)
	}

	return nil
}

func (e *Engine) pushPlays(ctx context.Context, target *store.Event, size int, p *PhaseReport) error {
	rows, err := e.store.ListUnsyncedPlays(ctx, target.LocalID)
	if err != nil {
		return err
	}

	p.Selected = len(rows)

	ready := make([]*store.PendingPlay, 0, len(rows))

	for _, row := range rows {
		if row.AttendeeRemoteID.IsZero() || row.ExperienceRemoteID.IsZero() {
			p.Deferred++
			continue
		}

		ready = append(ready, row)
	}

	eventID := target.RemoteID.String()

	for i, batch := range chunk(ready, size) {
		res := BatchResult{Index: i + 1, Size: len(batch)}

		payload := make([]cloud.PlayUpload, 0, len(batch))
		sent := make(map[ident.LocalID]struct{}, len(batch))

		for _, row := range batch {
			payload = append(payload, cloud.PlayUpload{
				LocalID:           row.LocalID.String(),
				EventExperienceID: row.ExperienceRemoteID.String(),
				EventID:           eventID,
				ExperienceID:      row.ExperienceRef,
				AttendeeID:        row.AttendeeRemoteID.String(),
				PlayTimestamp:     row.PlayTimestamp,
				Data:              row.Data,
				Score:             row.Score.InexactFloat64(),
				BonusScore:        row.BonusScore.InexactFloat64(),
				CreatedAt:         row.CreatedAt,
			})
			sent[row.LocalID] = struct{}{}
		}

		res.Err = func() error {
			acks, err := e.cloud.UploadPlays(ctx, eventID, payload)
			if err != nil {
				return err
			}

			res.Accepted = len(acks)
			res.Marked, err = e.store.MarkPlaysSynced(ctx, matchRecordAcks(acks, sent))

			return err
		}()

		e.recordBatch(p, &res)
	}

	return nil
}

func (e *Engine) pushRedemptions(ctx context.Context, target *store.Event, size int, p *PhaseReport) error {
	rows, err := e.store.ListUnsyncedRedemptions(ctx, target.LocalID)
	if err != nil {
		return err
	}

	p.Selected = len(rows)

	ready := make([]*store.PendingRedemption, 0, len(rows))

	for _, row := range rows {
		if row.AttendeeRemoteID.IsZero() {
			p.Deferred++
			continue
		}

		ready = append(ready, row)
	}

	eventID := target.RemoteID.String()

	for i, batch := range chunk(ready, size) {
		res := BatchResult{Index: i + 1, Size: len(batch)}

		payload := make([]cloud.RedemptionUpload, 0, len(batch))
		sent := make(map[ident.LocalID]struct{}, len(batch))

		for _, row := range batch {
			payload = append(payload, cloud.RedemptionUpload{
				LocalID:         row.LocalID.String(),
				AttendeeEventID: eventID,
				AttendeeID:      row.AttendeeRemoteID.String(),
				AttendeeUserID:  row.AttendeeUserID,
				EventID:         eventID,
				Metadata:        row.Metadata,
				Reason:          row.Reason,
				PointsRedeemed:  row.PointsRedeemed.InexactFloat64(),
				RedemptionDate:  row.RedemptionDate,
			})
			sent[row.LocalID] = struct{}{}
		}

		res.Err = func() error {
			acks, err := e.cloud.UploadRedemptions(ctx, eventID, payload)
			if err != nil {
				return err
			}

			res.Accepted = len(acks)
			res.Marked, err = e.store.MarkRedemptionsSynced(ctx, matchRecordAcks(acks, sent))

			return err
		}()

		e.recordBatch(p, &res)
	}

	return nil
}

// matchRecordAcks keeps acknowledgements whose echoed local id belongs to
// the batch that was sent.
func matchRecordAcks(acks []cloud.RecordAck, sent map[ident.LocalID]struct{}) []store.Ack {
	out := make([]store.Ack, 0, len(acks))

	for _, ack := range acks {
		id := ident.ParseLocalID(ack.LocalID)
		if _, ok := sent[id]; !ok || ack.ID == "" {
			continue
		}

		out = append(out, store.Ack{LocalID: id, RemoteID: ident.NewRemoteID(ack.ID)})
	}

	return out
}

func (e *Engine) recordBatch(p *PhaseReport, res *BatchResult) {
	p.Synced += res.Marked
	p.Batches = append(p.Batches, *res)

	if res.Err != nil {
		e.logger.Warn("upload batch failed",
			slog.String("phase", string(p.Phase)),
			slog.Int("batch", res.Index),
			slog.Int("size", res.Size),
			slog.String("error", res.Err.Error()),
		)

		return
	}

	if res.Marked < res.Size {
		e.logger.Info("upload batch partially accepted",
			slog.String("phase", string(p.Phase)),
			slog.Int("batch", res.Index),
			slog.Int("size", res.Size),
			slog.Int("marked", res.Marked),
		)
	}
}
