package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thabo-nyembe/collabsync/domain"
	"github.com/thabo-nyembe/collabsync/internal/core"
)

// memberSession pairs the authenticated user with its transport.
type memberSession struct {
	user *domain.User
	conn core.SignalConnection
}

func (m *memberSession) User() *domain.User            { return m.user }
func (m *memberSession) Signal() core.SignalConnection { return m.conn }

type sessionEntry struct {
	conn   core.SignalConnection
	user   *domain.User
	rooms  map[domain.RoomID]struct{}
	cancel context.CancelFunc
}

// Registry maps live transport sessions to their identity and room
// memberships. A session exists from ws upgrade until disconnect;
// identity appears when authenticate succeeds.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[core.SessionID]*sessionEntry)}
}

func (r *Registry) Bind(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{
		conn:   conn,
		rooms:  make(map[domain.RoomID]struct{}),
		cancel: cancel,
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound session")
}

func (r *Registry) Authenticate(sid core.SessionID, user *domain.User) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	e.user = user
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("user", string(user.ID)).Msg("session authenticated")
	return true
}

// Session returns the member session handle, or false when the
// session is unknown or not yet authenticated.
func (r *Registry) Session(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok || e.user == nil {
		return nil, false
	}
	return &memberSession{user: e.user, conn: e.conn}, true
}

func (r *Registry) User(sid core.SessionID) (*domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok || e.user == nil {
		return nil, false
	}
	return e.user, true
}

func (r *Registry) JoinedRoom(sid core.SessionID, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok {
		e.rooms[roomID] = struct{}{}
	}
}

func (r *Registry) LeftRoom(sid core.SessionID, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok {
		delete(e.rooms, roomID)
	}
}

func (r *Registry) Rooms(sid core.SessionID) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil
	}
	out := make([]domain.RoomID, 0, len(e.rooms))
	for id := range e.rooms {
		out = append(out, id)
	}
	return out
}

func (r *Registry) InRoom(sid core.SessionID, roomID domain.RoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	_, in := e.rooms[roomID]
	return in
}

// Unbind drops the session and returns the rooms it still belonged
// to, so the caller can run membership cleanup.
func (r *Registry) Unbind(sid core.SessionID) []domain.RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil
	}
	delete(r.sessions, sid)
	out := make([]domain.RoomID, 0, len(e.rooms))
	for id := range e.rooms {
		out = append(out, id)
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbound session")
	return out
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.cancel != nil {
		e.cancel()
	}
	return true
}
