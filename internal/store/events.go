package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tonimelisma/edge-datahub/internal/ident"
)

const eventColumns = `local_id, remote_id, name, description, event_type, access_type,
	dates, initial_date, finish_date, active, registration_fields, sync_target,
	synced, last_synced_at`

const (
	sqlUpsertEvent = `INSERT INTO events
		(local_id, remote_id, name, description, event_type, access_type, dates,
		 initial_date, finish_date, active, registration_fields, synced,
		 last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(remote_id) DO UPDATE SET
		 name = excluded.name,
		 description = excluded.description,
		 event_type = excluded.event_type,
		 access_type = excluded.access_type,
		 dates = excluded.dates,
		 initial_date = excluded.initial_date,
		 finish_date = excluded.finish_date,
		 active = excluded.active,
		 registration_fields = excluded.registration_fields,
		 synced = 1,
		 last_synced_at = excluded.last_synced_at,
		 updated_at = excluded.updated_at
		RETURNING local_id`

	sqlGetEvent        = `SELECT ` + eventColumns + ` FROM events WHERE local_id = ? OR remote_id = ? LIMIT 1`
	sqlGetSyncTarget   = `SELECT ` + eventColumns + ` FROM events WHERE sync_target = 1`
	sqlListEvents      = `SELECT ` + eventColumns + ` FROM events ORDER BY created_at, local_id`
	sqlClearSyncTarget = `UPDATE events SET sync_target = 0 WHERE sync_target = 1 AND local_id != ?`
	sqlSetSyncTarget   = `UPDATE events SET sync_target = 1 WHERE local_id = ?`
)

// UpsertEvent writes a downloaded event keyed by its remote id. The row is
// marked synced; an existing row keeps its local id, which is written back
// into ev.
func (s *Store) UpsertEvent(ctx context.Context, ev *Event) error {
	if ev.RemoteID.IsZero() {
		return errors.New("store: upserting event: remote id is required")
	}

	now := s.nowFunc()
	if ev.LocalID.IsZero() {
		ev.LocalID = ident.NewLocalID()
	}

	var localID ident.LocalID

	err := s.q.QueryRowContext(ctx, sqlUpsertEvent,
		ev.LocalID, ev.RemoteID, ev.Name, ev.Description, ev.Type, ev.AccessType,
		nullJSON(ev.Dates), nullNanos(ev.InitialDate), nullNanos(ev.FinishDate),
		boolInt(ev.Active), nullJSON(ev.RegistrationFields),
		toNanos(now), toNanos(now), toNanos(now),
	).Scan(&localID)
	if err != nil {
		return fmt.Errorf("store: upserting event %s: %w", ev.RemoteID, err)
	}

	ev.LocalID = localID
	ev.Synced = true
	ev.LastSyncedAt = &now

	return nil
}

// SetSyncTarget flags the event as the upload target and clears the flag
// on every other event.
func (s *Store) SetSyncTarget(ctx context.Context, eventID ident.LocalID) error {
	return s.InTx(ctx, func(tx *Store) error {
		if _, err := tx.q.ExecContext(ctx, sqlClearSyncTarget, eventID); err != nil {
			return fmt.Errorf("store: clearing sync target: %w", err)
		}

		res, err := tx.q.ExecContext(ctx, sqlSetSyncTarget, eventID)
		if err != nil {
			return fmt.Errorf("store: setting sync target %s: %w", eventID, err)
		}

		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("store: setting sync target %s: %w", eventID, ErrNotFound)
		}

		return nil
	})
}

// GetEvent resolves an event by local or remote id.
func (s *Store) GetEvent(ctx context.Context, ref string) (*Event, error) {
	ev, err := scanEvent(s.q.QueryRowContext(ctx, sqlGetEvent, ident.ParseLocalID(ref), strings.TrimSpace(ref)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: event %q: %w", ref, ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("store: getting event %q: %w", ref, err)
	}

	return ev, nil
}

// SyncTarget returns the event flagged for upload.
func (s *Store) SyncTarget(ctx context.Context) (*Event, error) {
	ev, err := scanEvent(s.q.QueryRowContext(ctx, sqlGetSyncTarget))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: sync target: %w", ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("store: getting sync target: %w", err)
	}

	return ev, nil
}

// ListEvents returns every stored event in creation order.
func (s *Store) ListEvents(ctx context.Context) ([]*Event, error) {
	rows, err := s.q.QueryContext(ctx, sqlListEvents)
	if err != nil {
		return nil, fmt.Errorf("store: listing events: %w", err)
	}
	defer rows.Close()

	var out []*Event

	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning event: %w", err)
		}

		out = append(out, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating events: %w", err)
	}

	return out, nil
}

func scanEvent(row rowScanner) (*Event, error) {
	var (
		ev                 Event
		dates, regFields   sql.NullString
		initial, finish    sql.NullInt64
		lastSynced         sql.NullInt64
		active, target, sy int
	)

	err := row.Scan(&ev.LocalID, &ev.RemoteID, &ev.Name, &ev.Description, &ev.Type,
		&ev.AccessType, &dates, &initial, &finish, &active, &regFields, &target,
		&sy, &lastSynced)
	if err != nil {
		return nil, err
	}

	ev.Dates = fromNullJSON(dates)
	ev.InitialDate = fromNullNanos(initial)
	ev.FinishDate = fromNullNanos(finish)
	ev.Active = active == 1
	ev.RegistrationFields = fromNullJSON(regFields)
	ev.SyncTarget = target == 1
	ev.Synced = sy == 1
	ev.LastSyncedAt = fromNullNanos(lastSynced)

	return &ev, nil
}
