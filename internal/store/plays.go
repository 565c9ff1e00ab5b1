package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tonimelisma/edge-datahub/internal/ident"
)

const (
	sqlInsertPlay = `INSERT INTO play_records
		(local_id, remote_id, event_id, experience_id, attendee_id, score,
		 bonus_score, scored, play_timestamp, data, synced, last_synced_at, created_at)
		VALUES (?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?)`

	sqlHasScoredPlay = `SELECT EXISTS (SELECT 1 FROM play_records
		WHERE attendee_id = ? AND experience_id = ? AND scored = 1)`

	sqlListPlayScores = `SELECT score, bonus_score FROM play_records
		WHERE event_id = ? AND attendee_id = ?`

	sqlListUnsyncedPlays = `SELECT p.local_id, p.remote_id, p.event_id, p.experience_id,
		 p.attendee_id, p.score, p.bonus_score, p.play_timestamp, p.data, p.synced,
		 p.last_synced_at, p.created_at,
		 e.remote_id, x.remote_id, x.experience_id, a.remote_id
		FROM play_records p
		JOIN events e ON e.local_id = p.event_id
		JOIN experiences x ON x.local_id = p.experience_id
		JOIN attendees a ON a.local_id = p.attendee_id
		WHERE p.event_id = ? AND p.synced = 0
		ORDER BY p.created_at, p.local_id`

	sqlMarkPlaySynced = `UPDATE play_records SET remote_id = ?, synced = 1, last_synced_at = ?
		WHERE local_id = ?`
)

// InsertPlay records a play with synced = 0. The scored flag is derived
// from Score; a second scored play for the same attendee and experience
// yields ErrDuplicate.
func (s *Store) InsertPlay(ctx context.Context, p *PlayRecord) error {
	now := s.nowFunc()
	if p.LocalID.IsZero() {
		p.LocalID = ident.NewLocalID()
	}

	p.CreatedAt = now
	p.Synced = false
	p.LastSyncedAt = nil

	_, err := s.q.ExecContext(ctx, sqlInsertPlay,
		p.LocalID, p.EventID, p.ExperienceID, p.AttendeeID, p.Score, p.BonusScore,
		boolInt(!p.Score.IsZero()), toNanos(p.PlayTimestamp), nullJSON(p.Data), toNanos(now),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("store: inserting play for attendee %s: %w", p.AttendeeID, ErrDuplicate)
	}

	if err != nil {
		return fmt.Errorf("store: inserting play for attendee %s: %w", p.AttendeeID, err)
	}

	return nil
}

// HasScoredPlay reports whether the attendee already has a play with a
// nonzero score for the experience.
func (s *Store) HasScoredPlay(ctx context.Context, attendeeID, experienceID ident.LocalID) (bool, error) {
	var exists bool
	if err := s.q.QueryRowContext(ctx, sqlHasScoredPlay, attendeeID, experienceID).Scan(&exists); err != nil {
		return false, fmt.Errorf("store: checking scored play: %w", err)
	}

	return exists, nil
}

// TotalPoints sums score and bonus score over the attendee's plays in the
// event. Arithmetic is exact decimal.
func (s *Store) TotalPoints(ctx context.Context, eventID, attendeeID ident.LocalID) (decimal.Decimal, error) {
	rows, err := s.q.QueryContext(ctx, sqlListPlayScores, eventID, attendeeID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("store: summing points: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero

	for rows.Next() {
		var score, bonus decimal.NullDecimal
		if err := rows.Scan(&score, &bonus); err != nil {
			return decimal.Zero, fmt.Errorf("store: scanning points: %w", err)
		}

		if score.Valid {
			total = total.Add(score.Decimal)
		}

		if bonus.Valid {
			total = total.Add(bonus.Decimal)
		}
	}

	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("store: iterating points: %w", err)
	}

	return total, nil
}

// ListUnsyncedPlays returns the event's unsynced plays with the remote ids
// the cloud expects.
func (s *Store) ListUnsyncedPlays(ctx context.Context, eventID ident.LocalID) ([]*PendingPlay, error) {
	rows, err := s.q.QueryContext(ctx, sqlListUnsyncedPlays, eventID)
	if err != nil {
		return nil, fmt.Errorf("store: listing unsynced plays: %w", err)
	}
	defer rows.Close()

	var out []*PendingPlay

	for rows.Next() {
		var (
			p          PendingPlay
			playTS     int64
			data       sql.NullString
			synced     int
			lastSynced sql.NullInt64
			createdAt  int64
		)

		err := rows.Scan(&p.LocalID, &p.RemoteID, &p.EventID, &p.ExperienceID, &p.AttendeeID,
			&p.Score, &p.BonusScore, &playTS, &data, &synced, &lastSynced, &createdAt,
			&p.EventRemoteID, &p.ExperienceRemoteID, &p.ExperienceRef, &p.AttendeeRemoteID)
		if err != nil {
			return nil, fmt.Errorf("store: scanning play: %w", err)
		}

		p.PlayTimestamp = fromNanos(playTS)
		p.Data = fromNullJSON(data)
		p.Synced = synced == 1
		p.LastSyncedAt = fromNullNanos(lastSynced)
		p.CreatedAt = fromNanos(createdAt)

		out = append(out, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating plays: %w", err)
	}

	return out, nil
}

// MarkPlaysSynced applies cloud acknowledgements matched by local id in a
// single transaction.
func (s *Store) MarkPlaysSynced(ctx context.Context, acks []Ack) (int, error) {
	return s.markSynced(ctx, "play", sqlMarkPlaySynced, acks)
}

func (s *Store) markSynced(ctx context.Context, what, query string, acks []Ack) (int, error) {
	marked := 0

	err := s.InTx(ctx, func(tx *Store) error {
		now := toNanos(tx.nowFunc())

		for _, ack := range acks {
			res, err := tx.q.ExecContext(ctx, query, ack.RemoteID, now, ack.LocalID)
			if err != nil {
				return fmt.Errorf("store: marking %s %s synced: %w", what, ack.LocalID, err)
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
