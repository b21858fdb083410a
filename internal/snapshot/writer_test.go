package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thabo-nyembe/collabsync/domain"
	"github.com/thabo-nyembe/collabsync/internal/core"
)

func TestWriteAndLoadRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rooms := core.NewRoomManager(nil)
	room, _ := rooms.GetOrCreate("room-1", "", domain.RoomTypeDocument)
	room.InstallState(domain.StateDoc{"title": "v1", "meta": map[string]any{"author": "bob"}})

	w := New(mr.Addr())
	require.True(t, w.Enabled())

	ctx := context.Background()
	w.writeAll(ctx, rooms)

	state, err := w.Load(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "v1", state["title"])
	meta, ok := state["meta"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "bob", meta["author"])
}

func TestRoomClosedDropsKey(t *testing.T) {
	mr := miniredis.RunT(t)
	rooms := core.NewRoomManager(nil)
	rooms.GetOrCreate("room-1", "", domain.RoomTypeDocument)

	w := New(mr.Addr())
	ctx := context.Background()
	w.writeAll(ctx, rooms)
	_, err := w.Load(ctx, "room-1")
	require.NoError(t, err)

	w.RoomClosed(domain.Room{ID: "room-1"})
	require.Eventually(t, func() bool {
		_, err := w.Load(ctx, "room-1")
		return err == redis.Nil
	}, time.Second, 10*time.Millisecond)
}

func TestLoadUnknownRoom(t *testing.T) {
	mr := miniredis.RunT(t)
	w := New(mr.Addr())

	_, err := w.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestDisabledWithoutAddress(t *testing.T) {
	w := New("")
	assert.False(t, w.Enabled())

	_, err := w.Load(context.Background(), "room-1")
	assert.Error(t, err)
}

func TestDegradesWhenRedisUnreachable(t *testing.T) {
	w := New("127.0.0.1:1")
	assert.False(t, w.Enabled())
}
