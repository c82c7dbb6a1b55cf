package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavernlink/internal/access"
	"github.com/tavernlink/internal/apperr"
	"github.com/tavernlink/internal/event"
	"github.com/tavernlink/internal/model"
)

func setup() (*Tracker, *access.Directory, *event.Recorder) {
	dir := access.NewDirectory()
	dir.PutUser(access.Actor{ID: "alice", Role: model.RoleUser})
	dir.PutUser(access.Actor{ID: "bob", Role: model.RoleUser})
	dir.PutCommunity(&model.Community{ID: "g1", CreatorID: "alice", MemberIDs: []string{"alice"}})
	dir.PutChannel(&model.Channel{ID: "hall", CommunityID: "g1", Kind: model.ChannelVoice})
	rec := &event.Recorder{}
	return NewTracker(dir, rec), dir, rec
}

func ptr[T any](v T) *T { return &v }

func lastPresence(t *testing.T, rec *event.Recorder) event.UserUpdated {
	t.Helper()
	evs := rec.OfKind(event.KindUserUpdated)
	require.NotEmpty(t, evs)
	ev := evs[len(evs)-1].(event.UserUpdated)
	require.NotNil(t, ev.Presence)
	return ev
}

func TestConnectUpdateDisconnect(t *testing.T) {
	tr, _, rec := setup()

	tr.Connected("alice")
	assert.True(t, lastPresence(t, rec).Presence.Online)

	p, err := tr.Update("alice", model.PresencePatch{CurrentChannelID: ptr("hall"), Muted: ptr(true)})
	require.NoError(t, err)
	assert.Equal(t, "hall", p.CurrentChannelID)
	assert.True(t, p.Muted)
	assert.True(t, p.Online)

	// второй патч меняет только своё поле
	p, err = tr.Update("alice", model.PresencePatch{VideoOn: ptr(true)})
	require.NoError(t, err)
	assert.True(t, p.Muted)
	assert.True(t, p.VideoOn)
	assert.Equal(t, p, *lastPresence(t, rec).Presence)

	tr.Disconnected("alice")
	ev := lastPresence(t, rec)
	assert.Equal(t, "alice", ev.ID)
	assert.False(t, ev.Presence.Online)
	_, ok := tr.Get("alice")
	assert.False(t, ok)

	// после переподключения состояние по умолчанию
	tr.Connected("alice")
	got, ok := tr.Get("alice")
	require.True(t, ok)
	assert.Equal(t, model.Presence{Online: true}, got)
}

func TestSecondConnectionKeepsState(t *testing.T) {
	tr, _, rec := setup()
	tr.Connected("alice")
	_, err := tr.Update("alice", model.PresencePatch{Muted: ptr(true)})
	require.NoError(t, err)
	before := len(rec.Events())

	tr.Connected("alice")
	tr.Disconnected("alice")
	assert.Len(t, rec.Events(), before)
	got, _ := tr.Get("alice")
	assert.True(t, got.Muted)
}

func TestUpdateRejectsInvisibleChannel(t *testing.T) {
	tr, _, _ := setup()
	tr.Connected("bob")
	_, err := tr.Update("bob", model.PresencePatch{CurrentChannelID: ptr("hall")})
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	_, err = tr.Update("carol", model.PresencePatch{Muted: ptr(true)})
	assert.True(t, apperr.Is(err, apperr.Invalid))
}

func TestRevalidateClearsLostChannel(t *testing.T) {
	tr, dir, _ := setup()
	tr.Connected("alice")
	_, err := tr.Update("alice", model.PresencePatch{CurrentChannelID: ptr("hall")})
	require.NoError(t, err)

	tr.Revalidate("alice")
	got, _ := tr.Get("alice")
	assert.Equal(t, "hall", got.CurrentChannelID)

	dir.RemoveChannel("hall")
	tr.RevalidateAll()
	got, _ = tr.Get("alice")
	assert.Empty(t, got.CurrentChannelID)
}

func TestSnapshotCopies(t *testing.T) {
	tr, _, _ := setup()
	tr.Connected("alice")
	tr.Connected("bob")
	snap := tr.Snapshot()
	assert.Len(t, snap, 2)
	snap["alice"] = model.Presence{Muted: true}
	got, _ := tr.Get("alice")
	assert.False(t, got.Muted)
}
