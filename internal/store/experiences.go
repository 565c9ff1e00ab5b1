package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tonimelisma/edge-datahub/internal/ident"
)

const experienceColumns = `local_id, remote_id, event_id, experience_id, location,
	custom_name, experience_name, active, custom_config, synced, last_synced_at`

const (
	sqlUpsertExperience = `INSERT INTO experiences
		(local_id, remote_id, event_id, experience_id, location, custom_name,
		 experience_name, active, custom_config, synced, last_synced_at,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(remote_id) DO UPDATE SET
		 event_id = excluded.event_id,
		 experience_id = excluded.experience_id,
		 location = excluded.location,
		 custom_name = excluded.custom_name,
		 experience_name = excluded.experience_name,
		 active = excluded.active,
		 custom_config = excluded.custom_config,
		 synced = 1,
		 last_synced_at = excluded.last_synced_at,
		 updated_at = excluded.updated_at`

	sqlGetExperience = `SELECT ` + experienceColumns + ` FROM experiences
		WHERE local_id = ? OR remote_id = ? LIMIT 1`

	sqlListExperiences = `SELECT ` + experienceColumns + ` FROM experiences
		WHERE event_id = ? ORDER BY created_at, local_id`
)

// UpsertExperiences writes a chunk of downloaded experiences for one event
// in a single transaction, keyed by remote id.
func (s *Store) UpsertExperiences(ctx context.Context, eventID ident.LocalID, exps []*Experience) error {
	return s.InTx(ctx, func(tx *Store) error {
		now := tx.nowFunc()

		for _, e := range exps {
			if e.RemoteID.IsZero() {
				return fmt.Errorf("store: upserting experience %q: remote id is required", e.ExperienceName)
			}

			e.EventID = eventID
			if e.LocalID.IsZero() {
				e.LocalID = ident.NewLocalID()
			}

			_, err := tx.q.ExecContext(ctx, sqlUpsertExperience,
				e.LocalID, e.RemoteID, eventID, e.ExperienceID, e.Location, e.CustomName,
				e.ExperienceName, boolInt(e.Active), nullJSON(e.CustomConfig),
				toNanos(now), toNanos(now), toNanos(now),
			)
			if err != nil {
				return fmt.Errorf("store: upserting experience %s: %w", e.RemoteID, err)
			}

			e.Synced = true
			e.LastSyncedAt = &now
		}

		return nil
	})
}

// GetExperience resolves an experience by local or remote id.
func (s *Store) GetExperience(ctx context.Context, ref string) (*Experience, error) {
	e, err := scanExperience(s.q.QueryRowContext(ctx, sqlGetExperience, ident.ParseLocalID(ref), strings.TrimSpace(ref)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: experience %q: %w", ref, ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("store: getting experience %q: %w", ref, err)
	}

	return e, nil
}

// ListExperiences returns the experiences of one event.
func (s *Store) ListExperiences(ctx context.Context, eventID ident.LocalID) ([]*Experience, error) {
	rows, err := s.q.QueryContext(ctx, sqlListExperiences, eventID)
	if err != nil {
		return nil, fmt.Errorf("store: listing experiences: %w", err)
	}
	defer rows.Close()

	var out []*Experience

	for rows.Next() {
		e, err := scanExperience(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning experience: %w", err)
		}

		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating experiences: %w", err)
	}

	return out, nil
}

func scanExperience(row rowScanner) (*Experience, error) {
	var (
		e            Experience
		active       int
		customConfig sql.NullString
		synced       int
		lastSynced   sql.NullInt64
	)

	err := row.Scan(&e.LocalID, &e.RemoteID, &e.EventID, &e.ExperienceID, &e.Location,
		&e.CustomName, &e.ExperienceName, &active, &customConfig, &synced, &lastSynced)
	if err != nil {
		return nil, err
	}

	e.Active = active == 1
	e.CustomConfig = fromNullJSON(customConfig)
	e.Synced = synced == 1
	e.LastSyncedAt = fromNullNanos(lastSynced)

	return &e, nil
}
