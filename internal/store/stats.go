package store

import (
	"context"
	"fmt"

	"github.com/tonimelisma/edge-datahub/internal/ident"
)

const sqlCounts = `SELECT
	(SELECT COUNT(*) FROM attendees WHERE (?1 IS NULL OR event_id = ?1)),
	(SELECT COUNT(*) FROM experiences WHERE (?1 IS NULL OR event_id = ?1)),
	(SELECT COUNT(*) FROM play_records WHERE (?1 IS NULL OR event_id = ?1)),
	(SELECT COUNT(*) FROM redemptions WHERE (?1 IS NULL OR event_id = ?1)),
	(SELECT COUNT(*) FROM attendees WHERE (?1 IS NULL OR event_id = ?1) AND synced = 0),
	(SELECT COUNT(*) FROM play_records WHERE (?1 IS NULL OR event_id = ?1) AND synced = 0),
	(SELECT COUNT(*) FROM redemptions WHERE (?1 IS NULL OR event_id = ?1) AND synced = 0)`

// Counts returns row and pending-upload counts for one event. The zero
// event id counts across all events.
func (s *Store) Counts(ctx context.Context, eventID ident.LocalID) (Counts, error) {
	var c Counts

	err := s.q.QueryRowContext(ctx, sqlCounts, eventID).Scan(
		&c.Attendees, &c.Experiences, &c.Plays, &c.Redemptions,
		&c.UnsyncedAttendees, &c.UnsyncedPlays, &c.UnsyncedRedemptions,
	)
	if err != nil {
		return Counts{}, fmt.Errorf("store: counting rows for event %s: %w", eventID, err)
	}

	return c, nil
}
