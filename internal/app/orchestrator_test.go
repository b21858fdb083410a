package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thabo-nyembe/collabsync/domain"
	"github.com/thabo-nyembe/collabsync/internal/core"
	"github.com/thabo-nyembe/collabsync/protocol"
)

type captureConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (c *captureConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, append(core.Frame(nil), f...))
	return nil
}

func (c *captureConn) Close() {}

func (c *captureConn) count(t *testing.T, event protocol.EventType) int {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.frames {
		got, err := protocol.PeekType(f)
		require.NoError(t, err)
		if got == event {
			n++
		}
	}
	return n
}

type fixture struct {
	orch *Orchestrator
}

func newFixture() *fixture {
	reg := NewRegistry()
	rooms := core.NewRoomManager(nil)
	return &fixture{orch: NewOrchestrator(reg, rooms, nil, 3*time.Second)}
}

// connect binds a transport and, when user is non-nil, authenticates it.
func (f *fixture) connect(sid core.SessionID, user *domain.User) *captureConn {
	conn := &captureConn{}
	f.orch.Registry.Bind(sid, conn, nil)
	if user != nil {
		f.orch.Registry.Authenticate(sid, user)
	}
	return conn
}

func alice() *domain.User { return &domain.User{ID: "u-alice", Name: "Alice"} }
func bob() *domain.User   { return &domain.User{ID: "u-bob", Name: "Bob"} }

func TestJoinRequiresAuthentication(t *testing.T) {
	f := newFixture()
	f.connect("s1", nil)

	err := f.orch.Join("s1", "room-1", "", domain.RoomTypeDocument)
	assert.ErrorIs(t, err, core.ErrNotAuthenticated)
	_, ok := f.orch.Rooms.Get("room-1")
	assert.False(t, ok, "no room may be created for an unauthenticated join")
}

func TestJoinCreatesRoomLazily(t *testing.T) {
	f := newFixture()
	f.connect("s1", alice())

	_, ok := f.orch.Rooms.Get("room-1")
	require.False(t, ok)

	require.NoError(t, f.orch.Join("s1", "room-1", "Design Doc", domain.RoomTypeDocument))

	room, ok := f.orch.Rooms.Get("room-1")
	require.True(t, ok)
	assert.Equal(t, 1, room.MemberCount())
	assert.Equal(t, "Design Doc", room.Meta().Name)
	assert.True(t, f.orch.Registry.InRoom("s1", "room-1"))
}

func TestOperationsNeedExistingRoom(t *testing.T) {
	f := newFixture()
	f.connect("s1", alice())

	assert.ErrorIs(t, f.orch.CursorMove("s1", "nope", 1, 2), core.ErrRoomNotFound)
	assert.ErrorIs(t, f.orch.SendMessage("s1", "nope", "hi"), core.ErrRoomNotFound)
	assert.ErrorIs(t, f.orch.StateUpdate("s1", "nope", domain.StateUpdate{Path: "k", Value: 1}), core.ErrRoomNotFound)
	assert.ErrorIs(t, f.orch.TypingStart("s1", "nope"), core.ErrRoomNotFound)
}

func TestLeaveSingleRoom(t *testing.T) {
	f := newFixture()
	f.connect("s1", alice())
	f.connect("s2", bob())
	require.NoError(t, f.orch.Join("s1", "room-1", "", domain.RoomTypeProject))
	require.NoError(t, f.orch.Join("s2", "room-1", "", domain.RoomTypeProject))

	require.NoError(t, f.orch.Leave("s1", "room-1"))

	room, ok := f.orch.Rooms.Get("room-1")
	require.True(t, ok, "room with a remaining member survives")
	assert.Equal(t, 1, room.MemberCount())
	assert.False(t, f.orch.Registry.InRoom("s1", "room-1"))
}

func TestLeaveUnknownRoomFails(t *testing.T) {
	f := newFixture()
	f.connect("s1", alice())
	require.NoError(t, f.orch.Join("s1", "room-1", "", domain.RoomTypeProject))

	assert.ErrorIs(t, f.orch.Leave("s1", "room-2"), core.ErrNotMember)
}

func TestLeaveAllRooms(t *testing.T) {
	f := newFixture()
	f.connect("s1", alice())
	require.NoError(t, f.orch.Join("s1", "room-1", "", domain.RoomTypeProject))
	require.NoError(t, f.orch.Join("s1", "room-2", "", domain.RoomTypeCanvas))

	require.NoError(t, f.orch.Leave("s1", ""))

	assert.Empty(t, f.orch.Registry.Rooms("s1"))
	_, ok := f.orch.Rooms.Get("room-1")
	assert.False(t, ok, "emptied rooms are reclaimed")
	_, ok = f.orch.Rooms.Get("room-2")
	assert.False(t, ok)
}

func TestDisconnectCleansUpEverything(t *testing.T) {
	f := newFixture()
	aConn := f.connect("s1", alice())
	f.connect("s2", bob())
	require.NoError(t, f.orch.Join("s1", "room-1", "", domain.RoomTypeDocument))
	require.NoError(t, f.orch.Join("s2", "room-1", "", domain.RoomTypeDocument))
	require.NoError(t, f.orch.CursorMove("s2", "room-1", 5, 5))
	require.NoError(t, f.orch.TypingStart("s2", "room-1"))

	f.orch.OnDisconnect("s2")

	room, ok := f.orch.Rooms.Get("room-1")
	require.True(t, ok)
	assert.Equal(t, 1, room.MemberCount())
	assert.Empty(t, room.Cursors())

	// the survivor saw cursor-removed, the forced typing stop and user-left
	assert.Equal(t, 1, aConn.count(t, protocol.EventCursorRemoved))
	assert.Equal(t, 1, aConn.count(t, protocol.EventUserStoppedTyping))
	assert.Equal(t, 1, aConn.count(t, protocol.EventUserLeft))

	// the dropped session is gone from the registry
	_, authed := f.orch.Registry.Session("s2")
	assert.False(t, authed)
}

func TestDisconnectLastMemberReclaimsRoom(t *testing.T) {
	f := newFixture()
	f.connect("s1", alice())
	require.NoError(t, f.orch.Join("s1", "room-1", "", domain.RoomTypeDocument))

	f.orch.OnDisconnect("s1")

	_, ok := f.orch.Rooms.Get("room-1")
	assert.False(t, ok)
}

func TestRoomIdentityAcrossJoins(t *testing.T) {
	f := newFixture()
	f.connect("s1", alice())
	f.connect("s2", bob())
	require.NoError(t, f.orch.Join("s1", "room-1", "First", domain.RoomTypeDocument))
	require.NoError(t, f.orch.Join("s2", "room-1", "Second", domain.RoomTypeCanvas))

	room, ok := f.orch.Rooms.Get("room-1")
	require.True(t, ok)
	// the creator's metadata wins; later joins never rewrite it
	assert.Equal(t, "First", room.Meta().Name)
	assert.Equal(t, domain.RoomTypeDocument, room.Meta().Type)
	assert.Equal(t, 2, room.MemberCount())
}

func TestStateFlowThroughOrchestrator(t *testing.T) {
	f := newFixture()
	aConn := f.connect("s1", alice())
	require.NoError(t, f.orch.Join("s1", "room-1", "", domain.RoomTypeDocument))

	require.NoError(t, f.orch.StateUpdate("s1", "room-1", domain.StateUpdate{Path: "title", Value: "v1"}))
	require.NoError(t, f.orch.StateReplace("s1", "room-1", domain.StateDoc{"title": "v2"}))

	room, _ := f.orch.Rooms.Get("room-1")
	assert.Equal(t, "v2", room.StateSnapshot()["title"])

	// the originator receives its own echo for both operations
	assert.Equal(t, 1, aConn.count(t, protocol.EventStateSync))
	assert.Equal(t, 1, aConn.count(t, protocol.EventStateReplaced))
}

func TestTypingSweeperExpiresEntries(t *testing.T) {
	f := newFixture()
	f.orch.TypingTTL = 10 * time.Millisecond
	f.connect("s1", alice())
	bConn := f.connect("s2", bob())
	require.NoError(t, f.orch.Join("s1", "room-1", "", domain.RoomTypeDocument))
	require.NoError(t, f.orch.Join("s2", "room-1", "", domain.RoomTypeDocument))
	require.NoError(t, f.orch.TypingStart("s1", "room-1"))

	room, _ := f.orch.Rooms.Get("room-1")
	room.ExpireTyping(time.Now().Add(time.Second))

	require.Equal(t, 1, bConn.count(t, protocol.EventUserStoppedTyping))
	bConn.mu.Lock()
	var stopped protocol.UserTyping
	for _, fr := range bConn.frames {
		if typ, _ := protocol.PeekType(fr); typ == protocol.EventUserStoppedTyping {
			require.NoError(t, json.Unmarshal(fr, &stopped))
		}
	}
	bConn.mu.Unlock()
	assert.Equal(t, domain.UserID("u-alice"), stopped.UserID)
	assert.Equal(t, "Alice", stopped.UserName)
}

type stubSeeder struct {
	mu    sync.Mutex
	state domain.StateDoc
	loads int
}

func (s *stubSeeder) Load(context.Context, domain.RoomID) (domain.StateDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.state == nil {
		return nil, errors.New("no snapshot")
	}
	return s.state, nil
}

func (s *stubSeeder) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func TestJoinSeedsStateFromSnapshot(t *testing.T) {
	f := newFixture()
	f.orch.Seeder = &stubSeeder{state: domain.StateDoc{"title": "restored"}}
	aConn := f.connect("s1", alice())

	require.NoError(t, f.orch.Join("s1", "room-1", "", domain.RoomTypeDocument))

	room, _ := f.orch.Rooms.Get("room-1")
	assert.Equal(t, "restored", room.StateSnapshot()["title"])

	// the joiner's snapshot already carries the seeded document
	aConn.mu.Lock()
	var joined protocol.RoomJoined
	for _, fr := range aConn.frames {
		if typ, _ := protocol.PeekType(fr); typ == protocol.EventRoomJoined {
			require.NoError(t, json.Unmarshal(fr, &joined))
		}
	}
	aConn.mu.Unlock()
	assert.Equal(t, "restored", joined.State["title"])
}

func TestJoinSeedsOnlyOnCreation(t *testing.T) {
	f := newFixture()
	seeder := &stubSeeder{state: domain.StateDoc{"title": "restored"}}
	f.orch.Seeder = seeder
	f.connect("s1", alice())
	f.connect("s2", bob())

	require.NoError(t, f.orch.Join("s1", "room-1", "", domain.RoomTypeDocument))
	require.NoError(t, f.orch.Join("s2", "room-1", "", domain.RoomTypeDocument))

	assert.Equal(t, 1, seeder.loadCount())
}

func TestJoinSurvivesMissingSnapshot(t *testing.T) {
	f := newFixture()
	f.orch.Seeder = &stubSeeder{}
	f.connect("s1", alice())

	require.NoError(t, f.orch.Join("s1", "room-1", "", domain.RoomTypeDocument))

	room, ok := f.orch.Rooms.Get("room-1")
	require.True(t, ok)
	assert.Empty(t, room.StateSnapshot())
}
