package core

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/thabo-nyembe/collabsync/domain"
	"github.com/thabo-nyembe/collabsync/protocol"
)

// SnapshotHistory bounds the chat history included in a join snapshot.
const SnapshotHistory = 100

type member struct {
	sess     MemberSession
	roomUser *domain.RoomUser
}

// Room is the authoritative per-room state: membership, cursors,
// typing set, state document and chat log. One mutex serializes every
// mutation, which is what makes path-level last-write-wins well
// defined. Fan-out happens under the lock with non-blocking sends so
// a membership transition and its broadcast are one atomic step.
type Room struct {
	meta domain.Room
	obs  Observer

	mu      sync.Mutex
	closed  bool
	bySID   map[SessionID]*member
	byUser  map[domain.UserID]SessionID
	cursors map[domain.UserID]domain.CursorPosition
	typing  map[domain.UserID]time.Time
	state   domain.StateDoc
	log     []domain.ChatMessage

	msgEntropy *ulid.MonotonicEntropy
	lastMsgAt  time.Time
}

func NewRoom(meta domain.Room, obs Observer) *Room {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Room{
		meta:       meta,
		obs:        obs,
		bySID:      make(map[SessionID]*member),
		byUser:     make(map[domain.UserID]SessionID),
		cursors:    make(map[domain.UserID]domain.CursorPosition),
		typing:     make(map[domain.UserID]time.Time),
		state:      domain.StateDoc{},
		msgEntropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (r *Room) Meta() domain.Room { return r.meta }

func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bySID)
}

func (r *Room) Info() RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomInfo{ID: r.meta.ID, Name: r.meta.Name, Type: r.meta.Type, MemberCount: len(r.bySID)}
}

// StateSnapshot returns a deep copy of the current document.
func (r *Room) StateSnapshot() domain.StateDoc {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// Join adds the session as a member, sends the full snapshot to the
// joiner and broadcasts user-joined to everyone else. Both sends
// happen under the room lock: no client can observe a userCount that
// disagrees with the snapshot a joiner received at that instant.
// A re-join by the same user refreshes JoinedAt and Role instead of
// duplicating the entry, even from a different session.
// Returns ErrRoomClosed when the manager already reclaimed the room;
// the caller resolves a fresh one and joins that instead.
func (r *Room) Join(sid SessionID, ms MemberSession, role domain.Role, now time.Time) error {
	user := ms.User()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomClosed
	}

	rejoin := false
	if prev, ok := r.byUser[user.ID]; ok {
		delete(r.bySID, prev)
		rejoin = true
	}
	r.bySID[sid] = &member{sess: ms, roomUser: domain.NewRoomUser(user, role, now)}
	r.byUser[user.ID] = sid

	snapshot := protocol.RoomJoined{
		Type:     protocol.EventRoomJoined,
		Room:     r.meta,
		Users:    r.usersLocked(),
		State:    r.state.Clone(),
		Messages: r.recentLocked(SnapshotHistory),
	}
	r.sendTo(sid, snapshot)

	if !rejoin {
		r.broadcastLocked(sid, protocol.EventUserJoined, protocol.UserJoined{
			Type:      protocol.EventUserJoined,
			User:      *user,
			UserCount: len(r.bySID),
		})
		r.obs.MemberJoined(r.meta)
	}
	log.Info().Str("module", "core.room").Str("room", string(r.meta.ID)).Str("user", string(user.ID)).Int("members", len(r.bySID)).Msg("member joined")
	return nil
}

// closeIfEmpty marks the room closed when no members remain, so a
// join racing the reclaim fails instead of landing in an orphaned
// room. Called by the manager under its write lock.
func (r *Room) closeIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.bySID) > 0 {
		return false
	}
	r.closed = true
	return true
}

// Leave removes the session's membership, deletes its cursor and
// typing entry in the same step, and broadcasts cursor-removed plus
// user-left to the remaining members. Returns true when the room is
// now empty and should be reclaimed by the caller.
func (r *Room) Leave(sid SessionID) (empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.bySID[sid]
	if !ok {
		return len(r.bySID) == 0
	}
	user := m.roomUser.User
	delete(r.bySID, sid)
	if r.byUser[user.ID] == sid {
		delete(r.byUser, user.ID)
	}

	if _, had := r.cursors[user.ID]; had {
		delete(r.cursors, user.ID)
		r.broadcastLocked(sid, protocol.EventCursorRemoved, protocol.CursorRemoved{
			Type:   protocol.EventCursorRemoved,
			RoomID: r.meta.ID,
			UserID: user.ID,
		})
	}
	if _, typed := r.typing[user.ID]; typed {
		delete(r.typing, user.ID)
		r.broadcastLocked(sid, protocol.EventUserStoppedTyping, protocol.UserTyping{
			Type:     protocol.EventUserStoppedTyping,
			RoomID:   r.meta.ID,
			UserID:   user.ID,
			UserName: user.Name,
		})
	}
	r.broadcastLocked(sid, protocol.EventUserLeft, protocol.UserLeft{
		Type:      protocol.EventUserLeft,
		UserID:    user.ID,
		UserName:  user.Name,
		UserCount: len(r.bySID),
	})
	r.obs.MemberLeft(r.meta)
	log.Info().Str("module", "core.room").Str("room", string(r.meta.ID)).Str("user", string(user.ID)).Int("members", len(r.bySID)).Msg("member left")
	return len(r.bySID) == 0
}

// CursorMove upserts the caller's cursor and broadcasts it to the
// other members. Best effort: drops under backpressure are fine
// because only the latest position matters.
func (r *Room) CursorMove(sid SessionID, x, y float64, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.bySID[sid]
	if !ok {
		return ErrNotMember
	}
	pos := domain.CursorPosition{
		UserID:    m.roomUser.User.ID,
		RoomID:    r.meta.ID,
		X:         x,
		Y:         y,
		Timestamp: now,
	}
	r.cursors[pos.UserID] = pos
	r.broadcastLocked(sid, protocol.EventCursorUpdate, protocol.CursorUpdate{Type: protocol.EventCursorUpdate, CursorPosition: pos})
	return nil
}

func (r *Room) CursorLeave(sid SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.bySID[sid]
	if !ok {
		return ErrNotMember
	}
	uid := m.roomUser.User.ID
	if _, had := r.cursors[uid]; !had {
		return nil
	}
	delete(r.cursors, uid)
	r.broadcastLocked(sid, protocol.EventCursorRemoved, protocol.CursorRemoved{
		Type:   protocol.EventCursorRemoved,
		RoomID: r.meta.ID,
		UserID: uid,
	})
	return nil
}

// Cursors returns the live cursor table, for tests and debugging.
func (r *Room) Cursors() map[domain.UserID]domain.CursorPosition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[domain.UserID]domain.CursorPosition, len(r.cursors))
	for k, v := range r.cursors {
		out[k] = v
	}
	return out
}

// Activity is an informational broadcast; it never touches membership
// or state.
func (r *Room) Activity(sid SessionID, t domain.ActivityType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.bySID[sid]
	if !ok {
		return ErrNotMember
	}
	r.broadcastLocked(sid, protocol.EventActivity, protocol.Activity{
		Type:     protocol.EventActivity,
		RoomID:   r.meta.ID,
		UserID:   m.roomUser.User.ID,
		Activity: t,
	})
	return nil
}

// ApplyUpdate stamps the update with the caller's identity and the
// server clock, applies it to the document and broadcasts state-sync
// to every member including the originator, whose echo is its
// confirmation. Apply order under the room lock is the authoritative
// order; same-path writes resolve to the later apply.
func (r *Room) ApplyUpdate(sid SessionID, update domain.StateUpdate, now time.Time) (domain.StateUpdate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.bySID[sid]
	if !ok {
		return domain.StateUpdate{}, ErrNotMember
	}
	update.UserID = m.roomUser.User.ID
	update.Timestamp = now
	if err := r.state.SetPath(update.Path, update.Value); err != nil {
		return domain.StateUpdate{}, err
	}
	r.broadcastAllLocked(protocol.EventStateSync, protocol.StateSync{
		Type:   protocol.EventStateSync,
		RoomID: r.meta.ID,
		Update: update,
	})
	return update, nil
}

// ReplaceState atomically installs a new document and broadcasts
// state-replaced to every member. Everything applied before this call
// is discarded; later patches layer on top of the new document.
func (r *Room) ReplaceState(sid SessionID, state domain.StateDoc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bySID[sid]; !ok {
		return ErrNotMember
	}
	r.state = state.Clone()
	r.broadcastAllLocked(protocol.EventStateReplaced, protocol.StateReplaced{
		Type:   protocol.EventStateReplaced,
		RoomID: r.meta.ID,
		State:  r.state.Clone(),
	})
	return nil
}

// InstallState is ReplaceState for non-members: operators seeding a
// room from an external snapshot.
func (r *Room) InstallState(state domain.StateDoc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state.Clone()
	r.broadcastAllLocked(protocol.EventStateReplaced, protocol.StateReplaced{
		Type:   protocol.EventStateReplaced,
		RoomID: r.meta.ID,
		State:  r.state.Clone(),
	})
}

// AppendMessage assigns the server id and timestamp and broadcasts
// the message to all members in arrival order. CreatedAt is strictly
// monotonic within the room so rapid messages stay totally ordered.
func (r *Room) AppendMessage(sid SessionID, content string, now time.Time) (domain.ChatMessage, error) {
	if err := domain.ValidateChatContent(content); err != nil {
		return domain.ChatMessage{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.bySID[sid]
	if !ok {
		return domain.ChatMessage{}, ErrNotMember
	}
	if !now.After(r.lastMsgAt) {
		now = r.lastMsgAt.Add(time.Millisecond)
	}
	r.lastMsgAt = now

	msg := domain.ChatMessage{
		ID:        ulid.MustNew(ulid.Timestamp(now), r.msgEntropy).String(),
		RoomID:    r.meta.ID,
		UserID:    m.roomUser.User.ID,
		Content:   content,
		CreatedAt: now,
	}
	r.log = append(r.log, msg)
	r.broadcastAllLocked(protocol.EventChatMessage, protocol.ChatBroadcast{Type: protocol.EventChatMessage, ChatMessage: msg})
	r.obs.MessageLogged(r.meta)
	return msg, nil
}

// TypingStart records the typing entry with its expiry and notifies
// the other members.
func (r *Room) TypingStart(sid SessionID, now time.Time, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.bySID[sid]
	if !ok {
		return ErrNotMember
	}
	u := m.roomUser.User
	r.typing[u.ID] = now.Add(ttl)
	r.broadcastLocked(sid, protocol.EventUserTyping, protocol.UserTyping{
		Type:     protocol.EventUserTyping,
		RoomID:   r.meta.ID,
		UserID:   u.ID,
		UserName: u.Name,
	})
	return nil
}

func (r *Room) TypingStop(sid SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.bySID[sid]
	if !ok {
		return ErrNotMember
	}
	u := m.roomUser.User
	if _, typed := r.typing[u.ID]; !typed {
		return nil
	}
	delete(r.typing, u.ID)
	r.broadcastLocked(sid, protocol.EventUserStoppedTyping, protocol.UserTyping{
		Type:     protocol.EventUserStoppedTyping,
		RoomID:   r.meta.ID,
		UserID:   u.ID,
		UserName: u.Name,
	})
	return nil
}

// ExpireTyping force-stops typing entries whose TTL elapsed. It
// covers clients that vanished mid-type without a clean typing-stop
// or disconnect.
func (r *Room) ExpireTyping(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for uid, deadline := range r.typing {
		if now.Before(deadline) {
			continue
		}
		delete(r.typing, uid)
		name := ""
		if sid, ok := r.byUser[uid]; ok {
			name = r.bySID[sid].roomUser.User.Name
		}
		r.broadcastAllLocked(protocol.EventUserStoppedTyping, protocol.UserTyping{
			Type:     protocol.EventUserStoppedTyping,
			RoomID:   r.meta.ID,
			UserID:   uid,
			UserName: name,
		})
	}
}

func (r *Room) UsersSnapshot() []domain.RoomUser {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usersLocked()
}

func (r *Room) usersLocked() []domain.RoomUser {
	out := make([]domain.RoomUser, 0, len(r.bySID))
	for _, m := range r.bySID {
		out = append(out, *m.roomUser)
	}
	return out
}

func (r *Room) recentLocked(n int) []domain.ChatMessage {
	if len(r.log) <= n {
		return append([]domain.ChatMessage(nil), r.log...)
	}
	return append([]domain.ChatMessage(nil), r.log[len(r.log)-n:]...)
}

// broadcastLocked fans out to every member except from. Sends are
// non-blocking; slow consumers drop frames instead of stalling the
// room.
func (r *Room) broadcastLocked(from SessionID, event protocol.EventType, v any) {
	frame, err := protocol.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Msg("broadcast marshal")
		return
	}
	sent, dropped := 0, 0
	for sid, m := range r.bySID {
		if sid == from {
			continue
		}
		if err := m.sess.Signal().TrySend(frame); err != nil {
			dropped++
			continue
		}
		sent++
	}
	r.obs.BroadcastSent(string(event), sent, dropped)
}

func (r *Room) broadcastAllLocked(event protocol.EventType, v any) {
	frame, err := protocol.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Msg("broadcast marshal")
		return
	}
	sent, dropped := 0, 0
	for _, m := range r.bySID {
		if err := m.sess.Signal().TrySend(frame); err != nil {
			dropped++
			continue
		}
		sent++
	}
	r.obs.BroadcastSent(string(event), sent, dropped)
}

func (r *Room) sendTo(sid SessionID, v any) {
	frame, err := protocol.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Msg("send marshal")
		return
	}
	if m, ok := r.bySID[sid]; ok {
		if err := m.sess.Signal().TrySend(frame); err != nil {
			log.Warn().Str("module", "core.room").Str("sid", string(sid)).Msg("snapshot dropped on full buffer")
		}
	}
}
