package core

import (
	"errors"

	"github.com/thabo-nyembe/collabsync/domain"
)

// Frame is an encoded wire payload ready to hand to a transport.
type Frame []byte

type SessionID string

var (
	ErrNotAuthenticated = errors.New("session not authenticated")
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomClosed       = errors.New("room closed")
	ErrNotMember        = errors.New("session is not a member of the room")
	ErrBackpressure     = errors.New("send buffer full")
)

// SignalConnection abstracts the per-client messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MemberSession binds an authenticated user and its transport
// endpoint. This is what a room stores and fans out to.
type MemberSession interface {
	User() *domain.User
	Signal() SignalConnection
}

// Observer receives lifecycle and delivery events from rooms.
// Implementations must be cheap and non-blocking; they run under the
// room lock.
type Observer interface {
	BroadcastSent(event string, sent, dropped int)
	RoomOpened(room domain.Room)
	RoomClosed(room domain.Room)
	MemberJoined(room domain.Room)
	MemberLeft(room domain.Room)
	MessageLogged(room domain.Room)
}

// NopObserver is the default when no metrics sink is wired.
type NopObserver struct{}

func (NopObserver) BroadcastSent(string, int, int) {}
func (NopObserver) RoomOpened(domain.Room)         {}
func (NopObserver) RoomClosed(domain.Room)         {}
func (NopObserver) MemberJoined(domain.Room)       {}
func (NopObserver) MemberLeft(domain.Room)         {}
func (NopObserver) MessageLogged(domain.Room)      {}

// Observers fans one event out to several sinks.
type Observers []Observer

func (os Observers) BroadcastSent(event string, sent, dropped int) {
	for _, o := range os {
		o.BroadcastSent(event, sent, dropped)
	}
}

func (os Observers) RoomOpened(room domain.Room) {
	for _, o := range os {
		o.RoomOpened(room)
	}
}

func (os Observers) RoomClosed(room domain.Room) {
	for _, o := range os {
		o.RoomClosed(room)
	}
}

func (os Observers) MemberJoined(room domain.Room) {
	for _, o := range os {
		o.MemberJoined(room)
	}
}

func (os Observers) MemberLeft(room domain.Room) {
	for _, o := range os {
		o.MemberLeft(room)
	}
}

func (os Observers) MessageLogged(room domain.Room) {
	for _, o := range os {
		o.MessageLogged(room)
	}
}

type RoomInfo struct {
	ID          domain.RoomID   `json:"id"`
	Name        string          `json:"name"`
	Type        domain.RoomType `json:"type"`
	MemberCount int             `json:"memberCount"`
}
