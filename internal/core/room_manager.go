package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thabo-nyembe/collabsync/domain"
)

// RoomManager creates rooms lazily on first join and forgets them
// when the last member leaves. State has no persistence guarantee
// past that point; the snapshot writer is the external hook for it.
type RoomManager struct {
	obs   Observer
	mu    sync.RWMutex
	rooms map[domain.RoomID]*Room
}

func NewRoomManager(obs Observer) *RoomManager {
	if obs == nil {
		obs = NopObserver{}
	}
	return &RoomManager{obs: obs, rooms: make(map[domain.RoomID]*Room)}
}

// GetOrCreate returns the live room, creating it when absent.
// created tells the caller this is a fresh room it may want to seed.
func (m *RoomManager) GetOrCreate(id domain.RoomID, name string, roomType domain.RoomType) (room *Room, created bool) {
	m.mu.RLock()
	room, ok := m.rooms[id]
	m.mu.RUnlock()
	if ok {
		return room, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok = m.rooms[id]; ok {
		return room, false
	}
	if name == "" {
		name = string(id)
	}
	if !roomType.Valid() {
		roomType = domain.RoomTypeProject
	}
	meta := domain.Room{ID: id, Name: name, Type: roomType}
	room = NewRoom(meta, m.obs)
	m.rooms[id] = room
	m.obs.RoomOpened(meta)
	log.Info().Str("module", "core.manager").Str("room", string(id)).Str("type", string(roomType)).Msg("room created")
	return room, true
}

func (m *RoomManager) Get(id domain.RoomID) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	return room, ok
}

// Reclaim drops the room if it is still empty. The room is closed
// under its own lock before it leaves the map, so a join holding a
// stale handle gets ErrRoomClosed rather than membership in a room
// the manager no longer knows about.
func (m *RoomManager) Reclaim(id domain.RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok || !room.closeIfEmpty() {
		return
	}
	delete(m.rooms, id)
	m.obs.RoomClosed(room.Meta())
	log.Info().Str("module", "core.manager").Str("room", string(id)).Msg("room reclaimed")
}

func (m *RoomManager) List() []RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r.Info())
	}
	return out
}

// Live returns the rooms themselves, for the snapshot writer.
func (m *RoomManager) Live() []*Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	return out
}
