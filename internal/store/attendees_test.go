package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/edge-datahub/internal/ident"
)

func TestInsertAttendee_DuplicateEmail(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	ev := seedEvent(t, s, "evt-1")

	seedAttendee(t, s, ev.LocalID, "ana@example.com")

	dup := &Attendee{EventID: ev.LocalID, FullName: "Ana again", Email: "ana@example.com", Code: "35086"}
	err := s.InsertAttendee(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicate)

	// The same email in a different event is a different attendee.
	other := seedEvent(t, s, "evt-2")
	seedAttendee(t, s, other.LocalID, "ana@example.com")
}

func TestGetAttendee_ByLocalAndRemoteID(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	ev := seedEvent(t, s, "evt-1")
	a := seedAttendee(t, s, ev.LocalID, "ana@example.com")

	got, err := s.GetAttendee(ctx, a.LocalID.String())
	require.NoError(t, err)
	assert.Equal(t, "35086", got.Code)
	assert.False(t, got.Synced)
	assert.Nil(t, got.LastSyncedAt)
	assert.Equal(t, fixedNow, got.CreatedAt)

	n, err := s.MarkAttendeesSynced(ctx, ev.LocalID, []AttendeeAck{
		{Email: "ana@example.com", RemoteID: ident.NewRemoteID("cloud-77"), UserID: "user-9"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = s.GetAttendee(ctx, "cloud-77")
	require.NoError(t, err)
	assert.Equal(t, a.LocalID, got.LocalID)
	assert.True(t, got.Synced)
	assert.Equal(t, "user-9", got.UserID)
	require.NotNil(t, got.LastSyncedAt)

	_, err = s.GetAttendee(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkAttendeesSynced_KeepsUserIDWhenAckHasNone(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	ev := seedEvent(t, s, "evt-1")

	a := &Attendee{EventID: ev.LocalID, FullName: "A", Email: "a@x.io", Code: ident.Code("a@x.io"), UserID: "u-1"}
	require.NoError(t, s.InsertAttendee(ctx, a))

	_, err := s.MarkAttendeesSynced(ctx, ev.LocalID, []AttendeeAck{{Email: "a@x.io", RemoteID: ident.NewRemoteID("r-1")}})
	require.NoError(t, err)

	got, err := s.GetAttendee(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.UserID)
}

func TestMarkAttendeesSynced_UnknownEmailIgnored(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ev := seedEvent(t, s, "evt-1")

	n, err := s.MarkAttendeesSynced(context.Background(), ev.LocalID, []AttendeeAck{
		{Email: "ghost@x.io", RemoteID: ident.NewRemoteID("r-1")},
	})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFindAttendeeByCode_OldestWins(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	ev := seedEvent(t, s, "evt-1")

	clock := fixedNow
	s.SetNowFunc(func() time.Time { return clock })

	first := &Attendee{EventID: ev.LocalID, FullName: "First", Email: "first@x.io", Code: "12345"}
	require.NoError(t, s.InsertAttendee(ctx, first))

	clock = clock.Add(time.Minute)
	second := &Attendee{EventID: ev.LocalID, FullName: "Second", Email: "second@x.io", Code: "12345"}
	require.NoError(t, s.InsertAttendee(ctx, second))

	got, err := s.FindAttendeeByCode(ctx, "12345")
	require.NoError(t, err)
	assert.Equal(t, first.LocalID, got.LocalID)

	n, err := s.CountCodeCollisions(ctx, ev.LocalID, "12345", second.LocalID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.FindAttendeeByCode(ctx, "99999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertDownloadedAttendees(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	ev := seedEvent(t, s, "evt-1")

	local := seedAttendee(t, s, ev.LocalID, "ana@example.com")

	download := func() []*Attendee {
		ana := &Attendee{FullName: "Ana Cloud", Email: "ana@example.com", Code: "35086", UserID: "u-ana"}
		ana.RemoteID = ident.NewRemoteID("r-ana")

		bob := &Attendee{
			FullName: "Bob", Email: "bob@example.com", Code: "28369",
			Properties: json.RawMessage(`{"tier":"gold"}`),
		}
		bob.RemoteID = ident.NewRemoteID("r-bob")

		return []*Attendee{ana, bob}
	}

	changed, err := s.UpsertDownloadedAttendees(ctx, ev.LocalID, download())
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	ana, err := s.FindAttendeeByEmail(ctx, ev.LocalID, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, local.LocalID, ana.LocalID, "local id survives download")
	assert.Equal(t, "Ana Cloud", ana.FullName)
	assert.True(t, ana.Synced)
	assert.Equal(t, "r-ana", ana.RemoteID.String())

	// Unchanged rows are skipped on a repeat download.
	changed, err = s.UpsertDownloadedAttendees(ctx, ev.LocalID, download())
	require.NoError(t, err)
	assert.Zero(t, changed)

	unsynced, err := s.ListUnsyncedAttendees(ctx, ev.LocalID)
	require.NoError(t, err)
	assert.Empty(t, unsynced)
}

func TestListUnsyncedAttendees_ScopedToEvent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	a := seedEvent(t, s, "evt-a")
	b := seedEvent(t, s, "evt-b")

	seedAttendee(t, s, a.LocalID, "one@x.io")
	seedAttendee(t, s, b.LocalID, "two@x.io")

	got, err := s.ListUnsyncedAttendees(ctx, a.LocalID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "one@x.io", got[0].Email)
}
