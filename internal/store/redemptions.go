package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tonimelisma/edge-datahub/internal/ident"
)

const redemptionColumns = `local_id, remote_id, event_id, attendee_id, points_redeemed,
	reason, metadata, redemption_date, synced, last_synced_at, created_at`

const (
	sqlInsertRedemption = `INSERT INTO redemptions
		(local_id, remote_id, event_id, attendee_id, points_redeemed, reason,
		 metadata, redemption_date, synced, last_synced_at, created_at)
		VALUES (?, NULL, ?, ?, ?, ?, ?, ?, 0, NULL, ?)`

	sqlGetRedemption = `SELECT ` + redemptionColumns + ` FROM redemptions
		WHERE event_id = ? AND attendee_id = ?`

	sqlListUnsyncedRedemptions = `SELECT r.local_id, r.remote_id, r.event_id, r.attendee_id,
		 r.points_redeemed, r.reason, r.metadata, r.redemption_date, r.synced,
		 r.last_synced_at, r.created_at,
		 e.remote_id, a.remote_id, a.user_id
		FROM redemptions r
		JOIN events e ON e.local_id = r.event_id
		JOIN attendees a ON a.local_id = r.attendee_id
		WHERE r.event_id = ? AND r.synced = 0
		ORDER BY r.created_at, r.local_id`

	sqlMarkRedemptionSynced = `UPDATE redemptions SET remote_id = ?, synced = 1, last_synced_at = ?
		WHERE local_id = ?`
)

// InsertRedemption records a redemption with synced = 0. A second
// redemption for the same attendee and event yields ErrDuplicate.
func (s *Store) InsertRedemption(ctx context.Context, r *Redemption) error {
	now := s.nowFunc()
	if r.LocalID.IsZero() {
		r.LocalID = ident.NewLocalID()
	}

	if r.RedemptionDate.IsZero() {
		r.RedemptionDate = now
	}

	r.CreatedAt = now
	r.Synced = false
	r.LastSyncedAt = nil

	_, err := s.q.ExecContext(ctx, sqlInsertRedemption,
		r.LocalID, r.EventID, r.AttendeeID, r.PointsRedeemed, r.Reason,
		nullJSON(r.Metadata), toNanos(r.RedemptionDate), toNanos(now),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("store: inserting redemption for attendee %s: %w", r.AttendeeID, ErrDuplicate)
	}

	if err != nil {
		return fmt.Errorf("store: inserting redemption for attendee %s: %w", r.AttendeeID, err)
	}

	return nil
}

// FindRedemption returns the attendee's redemption in the event.
func (s *Store) FindRedemption(ctx context.Context, eventID, attendeeID ident.LocalID) (*Redemption, error) {
	r, err := scanRedemption(s.q.QueryRowContext(ctx, sqlGetRedemption, eventID, attendeeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: redemption for attendee %s: %w", attendeeID, ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("store: getting redemption for attendee %s: %w", attendeeID, err)
	}

	return r, nil
}

// ListUnsyncedRedemptions returns the event's unsynced redemptions with the
// remote ids the cloud expects.
func (s *Store) ListUnsyncedRedemptions(ctx context.Context, eventID ident.LocalID) ([]*PendingRedemption, error) {
	rows, err := s.q.QueryContext(ctx, sqlListUnsyncedRedemptions, eventID)
	if err != nil {
		return nil, fmt.Errorf("store: listing unsynced redemptions: %w", err)
	}
	defer rows.Close()

	var out []*PendingRedemption

	for rows.Next() {
		var (
			p          PendingRedemption
			metadata   sql.NullString
			redeemedAt int64
			synced     int
			lastSynced sql.NullInt64
			createdAt  int64
		)

		err := rows.Scan(&p.LocalID, &p.RemoteID, &p.EventID, &p.AttendeeID,
			&p.PointsRedeemed, &p.Reason, &metadata, &redeemedAt, &synced, &lastSynced,
			&createdAt, &p.EventRemoteID, &p.AttendeeRemoteID, &p.AttendeeUserID)
		if err != nil {
			return nil, fmt.Errorf("store: scanning redemption: %w", err)
		}

		p.Metadata = fromNullJSON(metadata)
		p.RedemptionDate = fromNanos(redeemedAt)
		p.Synced = synced == 1
		p.LastSyncedAt = fromNullNanos(lastSynced)
		p.CreatedAt = fromNanos(createdAt)

		out = append(out, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating redemptions: %w", err)
	}

	return out, nil
}

// MarkRedemptionsSynced applies cloud acknowledgements matched by local id
// in a single transaction.
func (s *Store) MarkRedemptionsSynced(ctx context.Context, acks []Ack) (int, error) {
	return s.markSynced(ctx, "redemption", sqlMarkRedemptionSynced, acks)
}

func scanRedemption(row rowScanner) (*Redemption, error) {
	var (
		r          Redemption
		metadata   sql.NullString
		redeemedAt int64
		synced     int
		lastSynced sql.NullInt64
		createdAt  int64
	)

	err := row.Scan(&r.LocalID, &r.RemoteID, &r.EventID, &r.AttendeeID, &r.PointsRedeemed,
		&r.Reason, &metadata, &redeemedAt, &synced, &lastSynced, &createdAt)
	if err != nil {
		return nil, err
	}

	r.Metadata = fromNullJSON(metadata)
	r.RedemptionDate = fromNanos(redeemedAt)
	r.Synced = synced == 1
	r.LastSyncedAt = fromNullNanos(lastSynced)
	r.CreatedAt = fromNanos(createdAt)

	return &r, nil
}
