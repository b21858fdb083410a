package client

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/thabo-nyembe/collabsync/domain"
	"github.com/thabo-nyembe/collabsync/protocol"
)

// TypingAutoStop is how long after the last TypingStart the
// reconciler sends typing-stop on the caller's behalf.
const TypingAutoStop = 3 * time.Second

// RoomView mirrors the joined room: metadata, membership and the
// confirmed state document.
type RoomView struct {
	Room  domain.Room
	Users []domain.RoomUser
	State domain.StateDoc
}

// Event is what the reconciler surfaces to application code after its
// mirrors are updated. Payload is the decoded protocol struct, or nil
// for connection-state events.
type Event struct {
	Type    protocol.EventType
	State   ConnState
	Payload any
}

// Reconciler mirrors the server's confirmed broadcasts. It never
// applies its own intent optimistically: a state update is reflected
// only when its state-sync echo arrives. All mirror mutation happens
// on the session's read goroutine; accessors copy under the lock.
type Reconciler struct {
	sess *Session
	logg zerolog.Logger

	mu          sync.Mutex
	currentRoom *RoomView
	cursors     map[domain.UserID]domain.CursorPosition
	messages    []domain.ChatMessage
	typingUsers map[domain.UserID]string
	onEvent     func(Event)

	typingTimer *time.Timer
	typingRoom  domain.RoomID
}

// NewReconciler wires itself into the session's subscription arena.
// Constructing a new reconciler for the same session replaces the
// previous subscription wholesale.
func NewReconciler(sess *Session, logger zerolog.Logger) *Reconciler {
	r := &Reconciler{
		sess:        sess,
		logg:        logger,
		cursors:     make(map[domain.UserID]domain.CursorPosition),
		typingUsers: make(map[domain.UserID]string),
	}
	sess.Subscribe(Handlers{
		OnFrame: r.applyFrame,
		OnState: r.onConnState,
	})
	return r
}

// SetOnEvent installs the application's notification callback. Called
// after the corresponding mirror is already updated.
func (r *Reconciler) SetOnEvent(fn func(Event)) {
	r.mu.Lock()
	r.onEvent = fn
	r.mu.Unlock()
}

// Close deregisters from the session before it is torn down, so no
// listener survives into a later session generation.
func (r *Reconciler) Close() {
	r.stopTypingTimer()
	r.sess.Subscribe(Handlers{})
}

// CurrentRoom returns a copy of the mirrored room, or nil when no
// room is joined.
func (r *Reconciler) CurrentRoom() *RoomView {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.currentRoom == nil {
		return nil
	}
	view := RoomView{
		Room:  r.currentRoom.Room,
		Users: append([]domain.RoomUser(nil), r.currentRoom.Users...),
		State: r.currentRoom.State.Clone(),
	}
	return &view
}

func (r *Reconciler) RemoteCursors() map[domain.UserID]domain.CursorPosition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[domain.UserID]domain.CursorPosition, len(r.cursors))
	for k, v := range r.cursors {
		out[k] = v
	}
	return out
}

func (r *Reconciler) Messages() []domain.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ChatMessage(nil), r.messages...)
}

func (r *Reconciler) TypingUsers() map[domain.UserID]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[domain.UserID]string, len(r.typingUsers))
	for k, v := range r.typingUsers {
		out[k] = v
	}
	return out
}

// Intents. Each submits to the server and returns; the effect shows
// up in the mirrors when the confirming broadcast arrives.

func (r *Reconciler) JoinRoom(roomID domain.RoomID, name string, roomType domain.RoomType) error {
	return r.sess.Send(protocol.JoinRoom{Type: protocol.EventJoinRoom, RoomID: roomID, RoomName: name, RoomType: roomType})
}

func (r *Reconciler) LeaveRoom(roomID domain.RoomID) error {
	return r.sess.Send(protocol.LeaveRoom{Type: protocol.EventLeaveRoom, RoomID: roomID})
}

func (r *Reconciler) MoveCursor(roomID domain.RoomID, x, y float64) error {
	return r.sess.Send(protocol.CursorMove{Type: protocol.EventCursorMove, RoomID: roomID, X: x, Y: y})
}

func (r *Reconciler) CursorLeave(roomID domain.RoomID) error {
	return r.sess.Send(protocol.CursorLeave{Type: protocol.EventCursorLeave, RoomID: roomID})
}

func (r *Reconciler) Activity(roomID domain.RoomID, t domain.ActivityType) error {
	return r.sess.Send(protocol.Activity{Type: protocol.EventActivity, RoomID: roomID, Activity: t})
}

func (r *Reconciler) UpdateState(roomID domain.RoomID, path string, value any) error {
	return r.sess.Send(protocol.StateUpdate{
		Type:   protocol.EventStateUpdate,
		RoomID: roomID,
		Update: domain.StateUpdate{Path: path, Value: value},
	})
}

func (r *Reconciler) ReplaceState(roomID domain.RoomID, state domain.StateDoc) error {
	return r.sess.Send(protocol.StateReplace{Type: protocol.EventStateReplace, RoomID: roomID, State: state})
}

func (r *Reconciler) SendMessage(roomID domain.RoomID, content string) error {
	return r.sess.Send(protocol.ChatSend{Type: protocol.EventChatMessage, RoomID: roomID, Content: content})
}

// TypingStart notifies the room and arms the local auto-stop timer:
// with no follow-up the reconciler emits typing-stop after 3 seconds.
func (r *Reconciler) TypingStart(roomID domain.RoomID) error {
	if err := r.sess.Send(protocol.Typing{Type: protocol.EventTypingStart, RoomID: roomID}); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typingRoom = roomID
	if r.typingTimer != nil {
		r.typingTimer.Reset(TypingAutoStop)
		return nil
	}
	r.typingTimer = time.AfterFunc(TypingAutoStop, func() {
		r.mu.Lock()
		room := r.typingRoom
		r.mu.Unlock()
		_ = r.sess.Send(protocol.Typing{Type: protocol.EventTypingStop, RoomID: room})
	})
	return nil
}

func (r *Reconciler) TypingStop(roomID domain.RoomID) error {
	r.stopTypingTimer()
	return r.sess.Send(protocol.Typing{Type: protocol.EventTypingStop, RoomID: roomID})
}

func (r *Reconciler) stopTypingTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.typingTimer != nil {
		r.typingTimer.Stop()
	}
}

// onConnState clears the mirrors when the transport drops: the server
// already forgot this session's memberships, so the local view must
// not outlive them. After reconnect the caller re-joins to repopulate.
func (r *Reconciler) onConnState(state ConnState) {
	if state == StateDisconnected || state == StateFailed {
		r.mu.Lock()
		r.currentRoom = nil
		r.cursors = make(map[domain.UserID]domain.CursorPosition)
		r.messages = nil
		r.typingUsers = make(map[domain.UserID]string)
		r.mu.Unlock()
	}
	r.emit(Event{State: state})
}

func (r *Reconciler) applyFrame(event protocol.EventType, data []byte) {
	switch event {
	case protocol.EventRoomJoined:
		var p protocol.RoomJoined
		if !decode(r.logg, data, &p) {
			return
		}
		r.mu.Lock()
		state := p.State
		if state == nil {
			state = domain.StateDoc{}
		}
		r.currentRoom = &RoomView{Room: p.Room, Users: p.Users, State: state}
		r.messages = append([]domain.ChatMessage(nil), p.Messages...)
		r.cursors = make(map[domain.UserID]domain.CursorPosition)
		r.typingUsers = make(map[domain.UserID]string)
		r.mu.Unlock()
		r.emit(Event{Type: event, Payload: p})

	case protocol.EventUserJoined:
		var p protocol.UserJoined
		if !decode(r.logg, data, &p) {
			return
		}
		r.mu.Lock()
		if r.currentRoom != nil {
			kept := r.currentRoom.Users[:0]
			for _, u := range r.currentRoom.Users {
				if u.User.ID != p.User.ID {
					kept = append(kept, u)
				}
			}
			user := p.User
			r.currentRoom.Users = append(kept, domain.RoomUser{User: &user, Role: domain.RoleEditor, JoinedAt: time.Now()})
		}
		r.mu.Unlock()
		r.emit(Event{Type: event, Payload: p})

	case protocol.EventUserLeft:
		var p protocol.UserLeft
		if !decode(r.logg, data, &p) {
			return
		}
		r.mu.Lock()
		if r.currentRoom != nil {
			kept := r.currentRoom.Users[:0]
			for _, u := range r.currentRoom.Users {
				if u.User.ID != p.UserID {
					kept = append(kept, u)
				}
			}
			r.currentRoom.Users = kept
		}
		delete(r.cursors, p.UserID)
		delete(r.typingUsers, p.UserID)
		r.mu.Unlock()
		r.emit(Event{Type: event, Payload: p})

	case protocol.EventCursorUpdate:
		var p protocol.CursorUpdate
		if !decode(r.logg, data, &p) {
			return
		}
		r.mu.Lock()
		r.cursors[p.UserID] = p.CursorPosition
		r.mu.Unlock()
		r.emit(Event{Type: event, Payload: p})

	case protocol.EventCursorRemoved:
		var p protocol.CursorRemoved
		if !decode(r.logg, data, &p) {
			return
		}
		r.mu.Lock()
		delete(r.cursors, p.UserID)
		r.mu.Unlock()
		r.emit(Event{Type: event, Payload: p})

	case protocol.EventStateSync:
		var p protocol.StateSync
		if !decode(r.logg, data, &p) {
			return
		}
		r.mu.Lock()
		if r.currentRoom != nil && r.currentRoom.Room.ID == p.RoomID {
			if err := r.currentRoom.State.SetPath(p.Update.Path, p.Update.Value); err != nil {
				r.logg.Warn().Err(err).Str("path", p.Update.Path).Msg("state-sync apply")
			}
		}
		r.mu.Unlock()
		r.emit(Event{Type: event, Payload: p})

	case protocol.EventStateReplaced:
		var p protocol.StateReplaced
		if !decode(r.logg, data, &p) {
			return
		}
		r.mu.Lock()
		if r.currentRoom != nil && r.currentRoom.Room.ID == p.RoomID {
			state := p.State
			if state == nil {
				state = domain.StateDoc{}
			}
			r.currentRoom.State = state
		}
		r.mu.Unlock()
		r.emit(Event{Type: event, Payload: p})

	case protocol.EventChatMessage:
		var p protocol.ChatBroadcast
		if !decode(r.logg, data, &p) {
			return
		}
		r.mu.Lock()
		r.messages = append(r.messages, p.ChatMessage)
		r.mu.Unlock()
		r.emit(Event{Type: event, Payload: p})

	case protocol.EventUserTyping:
		var p protocol.UserTyping
		if !decode(r.logg, data, &p) {
			return
		}
		r.mu.Lock()
		r.typingUsers[p.UserID] = p.UserName
		r.mu.Unlock()
		r.emit(Event{Type: event, Payload: p})

	case protocol.EventUserStoppedTyping:
		var p protocol.UserTyping
		if !decode(r.logg, data, &p) {
			return
		}
		r.mu.Lock()
		delete(r.typingUsers, p.UserID)
		r.mu.Unlock()
		r.emit(Event{Type: event, Payload: p})

	case protocol.EventAuthenticated:
		var p protocol.Authenticated
		if !decode(r.logg, data, &p) {
			return
		}
		r.emit(Event{Type: event, Payload: p})

	case protocol.EventError:
		var p protocol.ErrorEvent
		if !decode(r.logg, data, &p) {
			return
		}
		r.logg.Warn().Str("message", p.Message).Msg("server error event")
		r.emit(Event{Type: event, Payload: p})
	}
}

func (r *Reconciler) emit(e Event) {
	r.mu.Lock()
	fn := r.onEvent
	r.mu.Unlock()
	if fn != nil {
		fn(e)
	}
}

func decode(logg zerolog.Logger, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		logg.Warn().Err(err).Msg("bad payload from server")
		return false
	}
	return true
}
