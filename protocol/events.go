// Package protocol defines the wire surface shared by the server
// adapters and the client. Every frame is a JSON object carrying a
// "type" discriminator; payload shapes follow the domain entities.
package protocol

import (
	"encoding/json"

	"github.com/thabo-nyembe/collabsync/domain"
)

type EventType string

// Client → server intents.
const (
	EventAuthenticate EventType = "authenticate"
	EventJoinRoom     EventType = "join-room"
	EventLeaveRoom    EventType = "leave-room"
	EventCursorMove   EventType = "cursor-move"
	EventCursorLeave  EventType = "cursor-leave"
	EventStateUpdate  EventType = "state-update"
	EventStateReplace EventType = "state-replace"
	EventChatMessage  EventType = "chat-message"
	EventTypingStart  EventType = "typing-start"
	EventTypingStop   EventType = "typing-stop"
	EventActivity     EventType = "activity"
)

// Server → client broadcasts and replies. EventChatMessage is used in
// both directions; the server-side payload carries the assigned id.
const (
	EventAuthenticated     EventType = "authenticated"
	EventRoomJoined        EventType = "room-joined"
	EventUserJoined        EventType = "user-joined"
	EventUserLeft          EventType = "user-left"
	EventCursorUpdate      EventType = "cursor-update"
	EventCursorRemoved     EventType = "cursor-removed"
	EventStateSync         EventType = "state-sync"
	EventStateReplaced     EventType = "state-replaced"
	EventUserTyping        EventType = "user-typing"
	EventUserStoppedTyping EventType = "user-stopped-typing"
	EventError             EventType = "error"
)

// PeekType reads only the discriminator so the caller can pick the
// concrete payload struct to unmarshal into.
func PeekType(data []byte) (EventType, error) {
	var env struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}

type Authenticate struct {
	Type EventType `json:"type"`
	// Token is a signed identity token minted by the auth layer.
	// When the server runs with a secret it is authoritative; the
	// inline User is accepted only in secretless dev mode.
	Token string       `json:"token,omitempty"`
	User  *domain.User `json:"user,omitempty"`
}

type Authenticated struct {
	Type    EventType `json:"type"`
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
}

type JoinRoom struct {
	Type     EventType       `json:"type"`
	RoomID   domain.RoomID   `json:"roomId"`
	RoomName string          `json:"roomName,omitempty"`
	RoomType domain.RoomType `json:"roomType,omitempty"`
}

type RoomJoined struct {
	Type  EventType         `json:"type"`
	Room  domain.Room       `json:"room"`
	Users []domain.RoomUser `json:"users"`
	State domain.StateDoc   `json:"state"`
	// Recent chat history, oldest first.
	Messages []domain.ChatMessage `json:"messages,omitempty"`
}

type UserJoined struct {
	Type      EventType   `json:"type"`
	User      domain.User `json:"user"`
	UserCount int         `json:"userCount"`
}

type UserLeft struct {
	Type      EventType     `json:"type"`
	UserID    domain.UserID `json:"userId"`
	UserName  string        `json:"userName"`
	UserCount int           `json:"userCount"`
}

type LeaveRoom struct {
	Type EventType `json:"type"`
	// Empty RoomID means leave every room the session belongs to.
	RoomID domain.RoomID `json:"roomId,omitempty"`
}

type CursorMove struct {
	Type   EventType     `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
	X      float64       `json:"x"`
	Y      float64       `json:"y"`
}

type CursorLeave struct {
	Type   EventType     `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

type CursorUpdate struct {
	Type EventType `json:"type"`
	domain.CursorPosition
}

type CursorRemoved struct {
	Type   EventType     `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
	UserID domain.UserID `json:"userId"`
}

type StateUpdate struct {
	Type   EventType          `json:"type"`
	RoomID domain.RoomID      `json:"roomId"`
	Update domain.StateUpdate `json:"update"`
}

type StateSync struct {
	Type   EventType          `json:"type"`
	RoomID domain.RoomID      `json:"roomId"`
	Update domain.StateUpdate `json:"update"`
}

type StateReplace struct {
	Type   EventType       `json:"type"`
	RoomID domain.RoomID   `json:"roomId"`
	State  domain.StateDoc `json:"state"`
}

type StateReplaced struct {
	Type   EventType       `json:"type"`
	RoomID domain.RoomID   `json:"roomId"`
	State  domain.StateDoc `json:"state"`
}

type ChatSend struct {
	Type    EventType     `json:"type"`
	RoomID  domain.RoomID `json:"roomId"`
	Content string        `json:"content"`
}

type ChatBroadcast struct {
	Type EventType `json:"type"`
	domain.ChatMessage
}

type Typing struct {
	Type   EventType     `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
}

type UserTyping struct {
	Type     EventType     `json:"type"`
	RoomID   domain.RoomID `json:"roomId"`
	UserID   domain.UserID `json:"userId"`
	UserName string        `json:"userName"`
}

type Activity struct {
	Type     EventType           `json:"type"`
	RoomID   domain.RoomID       `json:"roomId"`
	UserID   domain.UserID       `json:"userId,omitempty"`
	Activity domain.ActivityType `json:"activity"`
}

type ErrorEvent struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

// Marshal is a small helper so adapters never hand-build frames.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}
