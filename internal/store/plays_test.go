package store

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/edge-datahub/internal/ident"
)

func TestInsertPlay_OneScoredPlayPerExperience(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	ev := seedEvent(t, s, "evt-1")
	exp := seedExperience(t, s, ev.LocalID, "exp-1")
	a := seedAttendee(t, s, ev.LocalID, "a@x.io")

	play := func(score int64) *PlayRecord {
		return &PlayRecord{
			EventID: ev.LocalID, ExperienceID: exp.LocalID, AttendeeID: a.LocalID,
			Score: decimal.NewFromInt(score), BonusScore: decimal.Zero, PlayTimestamp: fixedNow,
		}
	}

	has, err := s.HasScoredPlay(ctx, a.LocalID, exp.LocalID)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.InsertPlay(ctx, play(10)))

	has, err = s.HasScoredPlay(ctx, a.LocalID, exp.LocalID)
	require.NoError(t, err)
	assert.True(t, has)

	assert.ErrorIs(t, s.InsertPlay(ctx, play(7)), ErrDuplicate)
	require.NoError(t, s.InsertPlay(ctx, play(0)))
	require.NoError(t, s.InsertPlay(ctx, play(0)))
}

func TestTotalPoints_ExactDecimal(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	ev := seedEvent(t, s, "evt-1")
	a := seedAttendee(t, s, ev.LocalID, "a@x.io")

	scores := []struct{ score, bonus string }{
		{"0.1", "0.2"},
		{"10", "5"},
		{"0", "0"},
	}

	for i, sc := range scores {
		exp := seedExperience(t, s, ev.LocalID, "exp-"+string(rune('a'+i)))
		require.NoError(t, s.InsertPlay(ctx, &PlayRecord{
			EventID: ev.LocalID, ExperienceID: exp.LocalID, AttendeeID: a.LocalID,
			Score: decimal.RequireFromString(sc.score), BonusScore: decimal.RequireFromString(sc.bonus),
			PlayTimestamp: fixedNow,
		}))
	}

	total, err := s.TotalPoints(ctx, ev.LocalID, a.LocalID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("15.3").Equal(total), total.String())

	none, err := s.TotalPoints(ctx, ev.LocalID, ident.NewLocalID())
	require.NoError(t, err)
	assert.True(t, none.IsZero())
}

func TestListUnsyncedPlays_JoinsRemoteIDs(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	ev := seedEvent(t, s, "evt-1")
	exp := seedExperience(t, s, ev.LocalID, "exp-1")
	a := seedAttendee(t, s, ev.LocalID, "a@x.io")

	p := &PlayRecord{
		EventID: ev.LocalID, ExperienceID: exp.LocalID, AttendeeID: a.LocalID,
		Score: decimal.NewFromInt(3), PlayTimestamp: fixedNow,
	}
	require.NoError(t, s.InsertPlay(ctx, p))

	pending, err := s.ListUnsyncedPlays(ctx, ev.LocalID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "evt-1", pending[0].EventRemoteID.String())
	assert.Equal(t, "exp-1", pending[0].ExperienceRemoteID.String())
	assert.True(t, pending[0].AttendeeRemoteID.IsZero())

	_, err = s.MarkAttendeesSynced(ctx, ev.LocalID, []AttendeeAck{{Email: "a@x.io", RemoteID: ident.NewRemoteID("r-a")}})
	require.NoError(t, err)

	pending, err = s.ListUnsyncedPlays(ctx, ev.LocalID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "r-a", pending[0].AttendeeRemoteID.String())

	n, err := s.MarkPlaysSynced(ctx, []Ack{{LocalID: p.LocalID, RemoteID: ident.NewRemoteID("play-1")}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err = s.ListUnsyncedPlays(ctx, ev.LocalID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
