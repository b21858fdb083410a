// Package snapshot periodically copies each live room's state
// document to Redis. Rooms themselves guarantee nothing past the last
// member leaving; this writer is the external hook that lets an
// operator reload a known-good state via state-replace.
package snapshot

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/thabo-nyembe/collabsync/domain"
	"github.com/thabo-nyembe/collabsync/internal/core"
)

const keyPrefix = "room:state:"

// Snapshots of reclaimed rooms are deleted outright; this TTL only
// bounds keys orphaned by a crash between write and reclaim.
const keyTTL = 24 * time.Hour

type Writer struct {
	client *redis.Client
}

// New connects to Redis; when the address is empty or the server is
// unreachable the writer degrades to a no-op and the process runs
// without snapshots.
func New(addr string) *Writer {
	if addr == "" {
		return &Writer{}
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Warn().Err(err).Str("module", "snapshot").Msg("redis not available, running without snapshots")
		return &Writer{}
	}
	log.Info().Str("module", "snapshot").Str("addr", addr).Msg("redis connected")
	return &Writer{client: client}
}

func (w *Writer) Enabled() bool { return w.client != nil }

// Run writes every live room's state each interval until ctx is done.
func (w *Writer) Run(ctx context.Context, interval time.Duration, rooms *core.RoomManager) {
	if !w.Enabled() {
		return
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.writeAll(ctx, rooms)
		}
	}
}

func (w *Writer) writeAll(ctx context.Context, rooms *core.RoomManager) {
	for _, room := range rooms.Live() {
		state := room.StateSnapshot()
		b, err := json.Marshal(state)
		if err != nil {
			log.Error().Err(err).Str("module", "snapshot").Str("room", string(room.Meta().ID)).Msg("marshal state")
			continue
		}
		key := keyPrefix + string(room.Meta().ID)
		if err := w.client.Set(ctx, key, b, keyTTL).Err(); err != nil {
			log.Warn().Err(err).Str("module", "snapshot").Str("room", string(room.Meta().ID)).Msg("write snapshot")
		}
	}
}

// Load fetches the last snapshot for a room, for seeding a
// state-replace after a restart.
func (w *Writer) Load(ctx context.Context, roomID domain.RoomID) (domain.StateDoc, error) {
	if !w.Enabled() {
		return nil, redis.Nil
	}
	b, err := w.client.Get(ctx, keyPrefix+string(roomID)).Bytes()
	if err != nil {
		return nil, err
	}
	var state domain.StateDoc
	if err := json.Unmarshal(b, &state); err != nil {
		return nil, err
	}
	return state, nil
}

// The writer sits in the room observer chain so a reclaimed room's
// key is dropped with it. The delete runs off the caller's goroutine;
// observers fire under manager locks.
func (w *Writer) RoomClosed(room domain.Room) {
	if !w.Enabled() {
		return
	}
	key := keyPrefix + string(room.ID)
	go func() {
		if err := w.client.Del(context.Background(), key).Err(); err != nil {
			log.Warn().Err(err).Str("module", "snapshot").Str("room", string(room.ID)).Msg("drop snapshot")
		}
	}()
}

func (w *Writer) RoomOpened(domain.Room)         {}
func (w *Writer) MemberJoined(domain.Room)       {}
func (w *Writer) MemberLeft(domain.Room)         {}
func (w *Writer) MessageLogged(domain.Room)      {}
func (w *Writer) BroadcastSent(string, int, int) {}
