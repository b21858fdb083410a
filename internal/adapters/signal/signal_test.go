package signal

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thabo-nyembe/collabsync/domain"
	"github.com/thabo-nyembe/collabsync/internal/app"
	"github.com/thabo-nyembe/collabsync/internal/core"
	"github.com/thabo-nyembe/collabsync/protocol"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := app.NewRegistry()
	rooms := core.NewRoomManager(nil)
	orch := app.NewOrchestrator(reg, rooms, nil, 3*time.Second)
	ctl := NewController(orch, nil, 0, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := gin.New()
	r.GET("/api/ws", func(c *gin.Context) { ctl.HandleWS(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, orch
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := protocol.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

// expect reads frames until one of the wanted type arrives, skipping
// interleaved broadcasts of other types.
func expect(t *testing.T, conn *websocket.Conn, event protocol.EventType, v any) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", event)
		got, err := protocol.PeekType(data)
		require.NoError(t, err)
		if got != event {
			continue
		}
		require.NoError(t, json.Unmarshal(data, v))
		return
	}
}

func authenticate(t *testing.T, conn *websocket.Conn, id, name string) {
	t.Helper()
	send(t, conn, protocol.Authenticate{
		Type: protocol.EventAuthenticate,
		User: &domain.User{ID: domain.UserID(id), Name: name},
	})
	var reply protocol.Authenticated
	expect(t, conn, protocol.EventAuthenticated, &reply)
	require.True(t, reply.Success, reply.Message)
}

func TestSessionRoundTrip(t *testing.T) {
	srv, orch := newTestServer(t)

	alice := dial(t, srv)
	authenticate(t, alice, "u-alice", "Alice")
	send(t, alice, protocol.JoinRoom{Type: protocol.EventJoinRoom, RoomID: "room-1", RoomType: domain.RoomTypeDocument})

	var joined protocol.RoomJoined
	expect(t, alice, protocol.EventRoomJoined, &joined)
	assert.Equal(t, domain.RoomID("room-1"), joined.Room.ID)
	assert.Len(t, joined.Users, 1)

	bob := dial(t, srv)
	authenticate(t, bob, "u-bob", "Bob")
	send(t, bob, protocol.JoinRoom{Type: protocol.EventJoinRoom, RoomID: "room-1"})

	var bobJoined protocol.RoomJoined
	expect(t, bob, protocol.EventRoomJoined, &bobJoined)
	assert.Len(t, bobJoined.Users, 2)

	var userJoined protocol.UserJoined
	expect(t, alice, protocol.EventUserJoined, &userJoined)
	assert.Equal(t, domain.UserID("u-bob"), userJoined.User.ID)
	assert.Equal(t, 2, userJoined.UserCount)

	// chat fans out to both, with the server-assigned id
	send(t, bob, protocol.ChatSend{Type: protocol.EventChatMessage, RoomID: "room-1", Content: "hello"})
	var forAlice, forBob protocol.ChatBroadcast
	expect(t, alice, protocol.EventChatMessage, &forAlice)
	expect(t, bob, protocol.EventChatMessage, &forBob)
	assert.Equal(t, "hello", forAlice.Content)
	assert.NotEmpty(t, forAlice.ID)
	assert.Equal(t, forAlice.ID, forBob.ID)

	// cursors reach the other member only
	send(t, alice, protocol.CursorMove{Type: protocol.EventCursorMove, RoomID: "room-1", X: 10, Y: 20})
	var cursor protocol.CursorUpdate
	expect(t, bob, protocol.EventCursorUpdate, &cursor)
	assert.Equal(t, domain.UserID("u-alice"), cursor.UserID)
	assert.Equal(t, 10.0, cursor.X)

	// state patch echoes to the originator too
	send(t, alice, protocol.StateUpdate{
		Type:   protocol.EventStateUpdate,
		RoomID: "room-1",
		Update: domain.StateUpdate{Path: "title", Value: "Draft"},
	})
	var sync protocol.StateSync
	expect(t, alice, protocol.EventStateSync, &sync)
	assert.Equal(t, domain.UserID("u-alice"), sync.Update.UserID)

	// dropping bob's transport cleans his membership up server side
	require.NoError(t, bob.Close())
	var left protocol.UserLeft
	expect(t, alice, protocol.EventUserLeft, &left)
	assert.Equal(t, domain.UserID("u-bob"), left.UserID)
	assert.Equal(t, 1, left.UserCount)

	room, ok := orch.Rooms.Get("room-1")
	require.True(t, ok)
	assert.Equal(t, 1, room.MemberCount())
}

func TestJoinBeforeAuthRejected(t *testing.T) {
	srv, orch := newTestServer(t)
	conn := dial(t, srv)

	send(t, conn, protocol.JoinRoom{Type: protocol.EventJoinRoom, RoomID: "room-1"})
	var errEvent protocol.ErrorEvent
	expect(t, conn, protocol.EventError, &errEvent)
	assert.Equal(t, core.ErrNotAuthenticated.Error(), errEvent.Message)
	_, ok := orch.Rooms.Get("room-1")
	assert.False(t, ok)
}

func TestMalformedFrameAnswered(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	var errEvent protocol.ErrorEvent
	expect(t, conn, protocol.EventError, &errEvent)
	assert.Equal(t, "malformed frame", errEvent.Message)

	// the connection survives the bad frame
	authenticate(t, conn, "u-1", "Alice")
}

func TestInvalidInlineIdentityRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv)

	send(t, conn, protocol.Authenticate{
		Type: protocol.EventAuthenticate,
		User: &domain.User{ID: "", Name: "NoID"},
	})
	var reply protocol.Authenticated
	expect(t, conn, protocol.EventAuthenticated, &reply)
	assert.False(t, reply.Success)
}
