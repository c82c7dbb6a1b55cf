package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavernlink/internal/model"
)

var (
	admin  = Actor{ID: "admin", Role: model.RoleAdmin}
	alice  = Actor{ID: "alice", Role: model.RoleUser}
	bob    = Actor{ID: "bob", Role: model.RoleUser}
	mallet = Actor{ID: "mallet", Role: model.RolePowerUser}
)

func guild() *model.Community {
	return &model.Community{ID: "g1", Name: "Guild", CreatorID: "alice", MemberIDs: []string{"alice", "mallet"}}
}

func TestCanObserveCommunity(t *testing.T) {
	c := guild()
	assert.True(t, CanObserveCommunity(alice, c))
	assert.True(t, CanObserveCommunity(admin, c), "admin sees every community")
	assert.False(t, CanObserveCommunity(bob, c))
	assert.False(t, CanObserveCommunity(Actor{}, c))
	assert.False(t, CanObserveCommunity(alice, nil))
}

func TestCanObserveChannel(t *testing.T) {
	c := guild()
	text := &model.Channel{ID: "c1", CommunityID: c.ID, Kind: model.ChannelText}
	dm := &model.Channel{
		ID: "dm1", CommunityID: model.DirectCommunityID, Kind: model.ChannelDirect,
		ParticipantIDs: []string{"alice", "bob"},
	}

	assert.True(t, CanObserveChannel(alice, text, c))
	assert.True(t, CanObserveChannel(admin, text, c))
	assert.False(t, CanObserveChannel(bob, text, c))

	assert.True(t, CanObserveChannel(alice, dm, nil))
	assert.True(t, CanObserveChannel(bob, dm, nil))
	assert.False(t, CanObserveChannel(admin, dm, nil), "direct channels have no admin override")
	assert.False(t, CanObserveChannel(mallet, dm, nil))
}

func TestCanObserveMessage(t *testing.T) {
	c := guild()
	ch := &model.Channel{ID: "c1", CommunityID: c.ID, Kind: model.ChannelText}
	m := &model.Message{ID: "m1", ChannelID: "c1"}
	assert.True(t, CanObserveMessage(alice, m, ch, c))
	assert.False(t, CanObserveMessage(bob, m, ch, c))
	assert.False(t, CanObserveMessage(alice, &model.Message{ChannelID: "other"}, ch, c))
}

func TestCapabilities(t *testing.T) {
	c := guild()
	own := &model.Message{AuthorID: "alice"}
	foreign := &model.Message{AuthorID: "bob"}

	t.Run("member", func(t *testing.T) {
		cp := For(alice)
		assert.True(t, cp.CanManage(c), "creator manages own community")
		assert.False(t, For(bob).CanManage(c))
		assert.True(t, cp.CanModerate(own))
		assert.False(t, cp.CanModerate(foreign))
		assert.True(t, cp.CanEditProfile("alice"))
		assert.False(t, cp.CanEditProfile("bob"))
		assert.False(t, cp.CanAssignRole(model.RoleUser, model.RolePowerUser))
		assert.False(t, cp.CanNarrate())
		assert.True(t, For(Actor{ID: "n", Role: model.RoleUser, IsNarrator: true}).CanNarrate())
		assert.False(t, cp.CanAdminister())
		assert.True(t, cp.CanDeleteGif(&model.Gif{AddedBy: "alice"}))
		assert.False(t, cp.CanDeleteGif(&model.Gif{AddedBy: "bob"}))
	})

	t.Run("power user", func(t *testing.T) {
		cp := For(mallet)
		assert.True(t, cp.CanManage(c))
		assert.True(t, cp.CanModerate(foreign))
		assert.True(t, cp.CanAssignRole(model.RoleUser, model.RolePowerUser))
		assert.False(t, cp.CanAssignRole(model.RoleUser, model.RoleAdmin))
		assert.False(t, cp.CanAssignRole(model.RoleAdmin, model.RoleUser))
		assert.False(t, cp.CanDeleteUser("alice"))
		assert.True(t, cp.CanNarrate())
		assert.False(t, cp.CanAdminister())
	})

	t.Run("admin", func(t *testing.T) {
		cp := For(admin)
		assert.True(t, cp.CanManage(c))
		assert.True(t, cp.CanModerate(foreign))
		assert.True(t, cp.CanAssignRole(model.RoleAdmin, model.RoleUser))
		assert.False(t, cp.CanAssignRole(model.RoleUser, model.Role("root")))
		assert.True(t, cp.CanDeleteUser("alice"))
		assert.True(t, cp.CanAdminister())
	})
}

func TestDirectoryTracksMembership(t *testing.T) {
	d := NewDirectory()
	for _, a := range []Actor{admin, alice, bob, mallet} {
		d.PutUser(a)
	}
	d.PutCommunity(guild())
	d.PutChannel(&model.Channel{ID: "c1", CommunityID: "g1", Kind: model.ChannelText})
	d.PutChannel(&model.Channel{
		ID: "dm1", CommunityID: model.DirectCommunityID, Kind: model.ChannelDirect,
		ParticipantIDs: []string{"alice", "bob"},
	})

	assert.True(t, d.CanObserveChannel("alice", "c1"))
	assert.True(t, d.CanObserveChannel("admin", "c1"))
	assert.False(t, d.CanObserveChannel("bob", "c1"))
	assert.True(t, d.CanObserveChannel("bob", "dm1"))
	assert.False(t, d.CanObserveChannel("admin", "dm1"))
	assert.False(t, d.CanObserveChannel("alice", "missing"))

	d.AddMember("g1", "bob")
	assert.True(t, d.CanObserveChannel("bob", "c1"))
	d.RemoveMember("g1", "bob")
	assert.False(t, d.CanObserveChannel("bob", "c1"))

	comm, ok := d.CommunityOf("c1")
	require.True(t, ok)
	assert.Equal(t, "g1", comm)
	assert.Equal(t, []string{"c1"}, d.ChannelsOf("g1"))

	d.RemoveUser("alice")
	_, ok = d.Actor("alice")
	assert.False(t, ok)
	assert.False(t, d.CanObserveChannel("alice", "dm1"), "deleted users observe nothing")

	d.RemoveCommunity("g1")
	assert.False(t, d.CanObserveChannel("mallet", "c1"))
	assert.False(t, d.CanObserveCommunity("admin", "g1"))
}

func TestDirectoryRoleChangeTakesEffect(t *testing.T) {
	d := NewDirectory()
	d.PutUser(bob)
	d.PutCommunity(guild())
	d.PutChannel(&model.Channel{ID: "c1", CommunityID: "g1", Kind: model.ChannelText})
	assert.False(t, d.CanObserveChannel("bob", "c1"))

	d.PutUser(Actor{ID: "bob", Role: model.RoleAdmin})
	assert.True(t, d.CanObserveChannel("bob", "c1"))
}
