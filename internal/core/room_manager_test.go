package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thabo-nyembe/collabsync/domain"
)

func TestGetOrCreateReportsCreation(t *testing.T) {
	m := NewRoomManager(nil)

	first, created := m.GetOrCreate("doc-1", "", domain.RoomTypeDocument)
	assert.True(t, created)
	again, created := m.GetOrCreate("doc-1", "", domain.RoomTypeDocument)
	assert.False(t, created)
	assert.Same(t, first, again)
}

func TestReclaimKeepsOccupiedRoom(t *testing.T) {
	m := NewRoomManager(nil)
	room, _ := m.GetOrCreate("doc-1", "", domain.RoomTypeDocument)
	sid, sess := newMember("a", "alice")
	require.NoError(t, room.Join(sid, sess, domain.RoleEditor, time.Now()))

	m.Reclaim("doc-1")

	got, ok := m.Get("doc-1")
	require.True(t, ok)
	assert.Same(t, room, got)
}

// A join holding a handle from before the reclaim must not land in
// the orphaned room; it fails closed and the caller resolves a fresh
// room that the manager still knows about.
func TestJoinRacingReclaimRetargets(t *testing.T) {
	m := NewRoomManager(nil)
	stale, _ := m.GetOrCreate("doc-1", "", domain.RoomTypeDocument)
	m.Reclaim("doc-1")

	sid, sess := newMember("a", "alice")
	err := stale.Join(sid, sess, domain.RoleEditor, time.Now())
	require.ErrorIs(t, err, ErrRoomClosed)
	assert.Equal(t, 0, stale.MemberCount())

	fresh, created := m.GetOrCreate("doc-1", "", domain.RoomTypeDocument)
	assert.True(t, created)
	require.NoError(t, fresh.Join(sid, sess, domain.RoleEditor, time.Now()))

	got, ok := m.Get("doc-1")
	require.True(t, ok)
	assert.Same(t, fresh, got)
	assert.Equal(t, 1, got.MemberCount())
}
