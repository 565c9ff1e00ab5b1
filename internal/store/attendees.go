package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tonimelisma/edge-datahub/internal/ident"
)

const attendeeColumns = `local_id, remote_id, event_id, user_id, full_name, email, code,
	country, city, check_in_at, check_in_type, origin, properties, synced,
	last_synced_at, created_at`

const (
	sqlInsertAttendee = `INSERT INTO attendees
		(local_id, remote_id, event_id, user_id, full_name, email, code, country,
		 city, check_in_at, check_in_type, origin, properties, synced,
		 last_synced_at, created_at, updated_at)
		VALUES (?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?, ?)`

	// Rows whose cloud-owned fields are unchanged are skipped, so repeated
	// downloads do not churn updated_at.
	sqlUpsertDownloadedAttendee = `INSERT INTO attendees
		(local_id, remote_id, event_id, user_id, full_name, email, code, country,
		 city, check_in_at, check_in_type, origin, properties, synced,
		 last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(event_id, email) DO UPDATE SET
		 remote_id = excluded.remote_id,
		 user_id = excluded.user_id,
		 full_name = excluded.full_name,
		 code = excluded.code,
		 country = excluded.country,
		 city = excluded.city,
		 check_in_at = excluded.check_in_at,
		 check_in_type = excluded.check_in_type,
		 origin = excluded.origin,
		 properties = excluded.properties,
		 synced = 1,
		 last_synced_at = excluded.last_synced_at,
		 updated_at = excluded.updated_at
		WHERE attendees.synced = 0
		 OR attendees.remote_id IS NOT excluded.remote_id
		 OR attendees.user_id IS NOT excluded.user_id
		 OR attendees.full_name IS NOT excluded.full_name
		 OR attendees.country IS NOT excluded.country
		 OR attendees.city IS NOT excluded.city
		 OR attendees.check_in_at IS NOT excluded.check_in_at
		 OR attendees.check_in_type IS NOT excluded.check_in_type
		 OR attendees.origin IS NOT excluded.origin
		 OR attendees.properties IS NOT excluded.properties`

	sqlGetAttendee = `SELECT ` + attendeeColumns + ` FROM attendees
		WHERE local_id = ? OR remote_id = ? ORDER BY created_at LIMIT 1`

	sqlGetAttendeeByEmail = `SELECT ` + attendeeColumns + ` FROM attendees
		WHERE event_id = ? AND email = ?`

	sqlGetAttendeeByEmailAnyEvent = `SELECT ` + attendeeColumns + ` FROM attendees
		WHERE email = ? ORDER BY created_at, local_id LIMIT 1`

	sqlGetAttendeeByCode = `SELECT ` + attendeeColumns + ` FROM attendees
		WHERE code = ? ORDER BY created_at, local_id LIMIT 1`

	sqlCountCodeCollisions = `SELECT COUNT(*) FROM attendees
		WHERE event_id = ? AND code = ? AND local_id != ?`

	sqlListUnsyncedAttendees = `SELECT ` + attendeeColumns + ` FROM attendees
		WHERE event_id = ? AND synced = 0 ORDER BY created_at, local_id`

	sqlMarkAttendeeSynced = `UPDATE attendees SET
		 remote_id = ?,
		 user_id = CASE WHEN ? = '' THEN user_id ELSE ? END,
		 synced = 1,
		 last_synced_at = ?,
		 updated_at = ?
		WHERE event_id = ? AND email = ?`
)

// InsertAttendee creates a locally registered attendee with synced = 0.
// A second attendee with the same email in the same event yields
// ErrDuplicate.
func (s *Store) InsertAttendee(ctx context.Context, a *Attendee) error {
	now := s.nowFunc()
	if a.LocalID.IsZero() {
		a.LocalID = ident.NewLocalID()
	}

	a.CreatedAt = now
	a.Synced = false
	a.LastSyncedAt = nil
	a.RemoteID = ident.RemoteID{}

	_, err := s.q.ExecContext(ctx, sqlInsertAttendee,
		a.LocalID, a.EventID, a.UserID, a.FullName, a.Email, a.Code, a.Country,
		a.City, nullNanos(a.CheckInAt), a.CheckInType, a.Origin, nullJSON(a.Properties),
		toNanos(now), toNanos(now),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("store: inserting attendee %s: %w", a.Email, ErrDuplicate)
	}

	if err != nil {
		return fmt.Errorf("store: inserting attendee %s: %w", a.Email, err)
	}

	return nil
}

// UpsertDownloadedAttendees writes a chunk of cloud attendees for one event
// in a single transaction, keyed by (event, email). It returns how many rows
// were inserted or changed.
func (s *Store) UpsertDownloadedAttendees(ctx context.Context, eventID ident.LocalID, attendees []*Attendee) (int, error) {
	changed := 0

	err := s.InTx(ctx, func(tx *Store) error {
		now := tx.nowFunc()

		for _, a := range attendees {
			a.EventID = eventID
			if a.LocalID.IsZero() {
				a.LocalID = ident.NewLocalID()
			}

			res, err := tx.q.ExecContext(ctx, sqlUpsertDownloadedAttendee,
				a.LocalID, a.RemoteID, eventID, a.UserID, a.FullName, a.Email, a.Code,
				a.Country, a.City, nullNanos(a.CheckInAt), a.CheckInType, a.Origin,
				nullJSON(a.Properties), toNanos(now), toNanos(now), toNanos(now),
			)
			if err != nil {
				return fmt.Errorf("store: upserting attendee %s: %w", a.Email, err)
			}

			if n, _ := res.RowsAffected(); n > 0 {
				changed++
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return changed, nil
}

// GetAttendee resolves an attendee by local or remote id.
func (s *Store) GetAttendee(ctx context.Context, ref string) (*Attendee, error) {
	return s.getAttendee(ctx, "attendee "+ref, sqlGetAttendee, ident.ParseLocalID(ref), strings.TrimSpace(ref))
}

// FindAttendeeByEmail looks up the attendee registered with email for one
// event.
func (s *Store) FindAttendeeByEmail(ctx context.Context, eventID ident.LocalID, email string) (*Attendee, error) {
	return s.getAttendee(ctx, "attendee email "+email, sqlGetAttendeeByEmail, eventID, email)
}

// FindAttendeeByEmailAnyEvent returns the oldest attendee with email across
// all events.
func (s *Store) FindAttendeeByEmailAnyEvent(ctx context.Context, email string) (*Attendee, error) {
	return s.getAttendee(ctx, "attendee email "+email, sqlGetAttendeeByEmailAnyEvent, email)
}

// FindAttendeeByCode returns the oldest attendee holding code. Codes can
// collide; the earliest registration wins.
func (s *Store) FindAttendeeByCode(ctx context.Context, code string) (*Attendee, error) {
	return s.getAttendee(ctx, "attendee code "+code, sqlGetAttendeeByCode, code)
}

// CountCodeCollisions counts other attendees of the event sharing code.
func (s *Store) CountCodeCollisions(ctx context.Context, eventID ident.LocalID, code string, exclude ident.LocalID) (int, error) {
	var n int
	if err := s.q.QueryRowContext(ctx, sqlCountCodeCollisions, eventID, code, exclude.String()).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: counting code collisions: %w", err)
	}

	return n, nil
}

// ListUnsyncedAttendees returns the event's attendees with synced = 0,
// oldest first.
func (s *Store) ListUnsyncedAttendees(ctx context.Context, eventID ident.LocalID) ([]*Attendee, error) {
	rows, err := s.q.QueryContext(ctx, sqlListUnsyncedAttendees, eventID)
	if err != nil {
		return nil, fmt.Errorf("store: listing unsynced attendees: %w", err)
	}
	defer rows.Close()

	var out []*Attendee

	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning attendee: %w", err)
		}

		out = append(out, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating attendees: %w", err)
	}

	return out, nil
}

// MarkAttendeesSynced applies cloud acknowledgements for one event in a
// single transaction. Acks are matched by email. It returns the number of
// rows updated.
func (s *Store) MarkAttendeesSynced(ctx context.Context, eventID ident.LocalID, acks []AttendeeAck) (int, error) {
	marked := 0

	err := s.InTx(ctx, func(tx *Store) error {
		now := toNanos(tx.nowFunc())

		for _, ack := range acks {
			res, err := tx.q.ExecContext(ctx, sqlMarkAttendeeSynced,
				ack.RemoteID, ack.UserID, ack.UserID, now, now, eventID, ack.Email)
			if err != nil {
				return fmt.Errorf("store: marking attendee %s synced: %w", ack.Email, err)
			}

			if n, _ := res.RowsAffected(); n > 0 {
				marked++
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return marked, nil
}

func (s *Store) getAttendee(ctx context.Context, what, query string, args ...any) (*Attendee, error) {
	a, err := scanAttendee(s.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: %s: %w", what, ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("store: getting %s: %w", what, err)
	}

	return a, nil
}

func scanAttendee(row rowScanner) (*Attendee, error) {
	var (
		a          Attendee
		checkIn    sql.NullInt64
		props      sql.NullString
		synced     int
		lastSynced sql.NullInt64
		createdAt  int64
	)

	err := row.Scan(&a.LocalID, &a.RemoteID, &a.EventID, &a.UserID, &a.FullName,
		&a.Email, &a.Code, &a.Country, &a.City, &checkIn, &a.CheckInType, &a.Origin,
		&props, &synced, &lastSynced, &createdAt)
	if err != nil {
		return nil, err
	}

	a.CheckInAt = fromNullNanos(checkIn)
	a.Properties = fromNullJSON(props)
	a.Synced = synced == 1
	a.LastSyncedAt = fromNullNanos(lastSynced)
	a.CreatedAt = fromNanos(createdAt)

	return &a, nil
}
