// Package app translates session intents into room operations. It
// owns nothing itself: membership lives in core, identity in the
// registry. No error here ever terminates the process; a failed
// operation answers the caller and leaves every other room alone.
package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thabo-nyembe/collabsync/domain"
	"github.com/thabo-nyembe/collabsync/internal/core"
)

// StateSeeder restores the last persisted state document for a room
// created fresh, typically after a server restart.
type StateSeeder interface {
	Load(ctx context.Context, id domain.RoomID) (domain.StateDoc, error)
}

type Orchestrator struct {
	Registry  *Registry
	Rooms     *core.RoomManager
	Seeder    StateSeeder
	TypingTTL time.Duration
}

func NewOrchestrator(reg *Registry, rooms *core.RoomManager, seeder StateSeeder, typingTTL time.Duration) *Orchestrator {
	if typingTTL <= 0 {
		typingTTL = 3 * time.Second
	}
	return &Orchestrator{Registry: reg, Rooms: rooms, Seeder: seeder, TypingTTL: typingTTL}
}

// Join requires an authenticated session. The room is created lazily,
// seeded from its last snapshot when one exists; the snapshot reply
// and the user-joined broadcast happen inside room.Join as one
// membership transition. A reclaim can close the room between the
// lookup and the join, in which case the next iteration resolves a
// fresh one.
func (o *Orchestrator) Join(sid core.SessionID, roomID domain.RoomID, name string, roomType domain.RoomType) error {
	sess, ok := o.Registry.Session(sid)
	if !ok {
		return core.ErrNotAuthenticated
	}
	for {
		room, created := o.Rooms.GetOrCreate(roomID, name, roomType)
		if created {
			o.seedState(room)
		}
		if err := room.Join(sid, sess, domain.RoleEditor, time.Now()); err == nil {
			break
		}
	}
	o.Registry.JoinedRoom(sid, roomID)
	return nil
}

func (o *Orchestrator) seedState(room *core.Room) {
	if o.Seeder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state, err := o.Seeder.Load(ctx, room.Meta().ID)
	if err != nil || len(state) == 0 {
		return
	}
	room.InstallState(state)
	log.Info().Str("module", "app").Str("room", string(room.Meta().ID)).Msg("state seeded from snapshot")
}

// Leave removes the session from one room, or from every room it
// belongs to when roomID is empty. Empty rooms are reclaimed.
func (o *Orchestrator) Leave(sid core.SessionID, roomID domain.RoomID) error {
	if _, ok := o.Registry.Session(sid); !ok {
		return core.ErrNotAuthenticated
	}
	if roomID == "" {
		for _, id := range o.Registry.Rooms(sid) {
			o.leaveOne(sid, id)
		}
		return nil
	}
	if !o.Registry.InRoom(sid, roomID) {
		return core.ErrNotMember
	}
	o.leaveOne(sid, roomID)
	return nil
}

func (o *Orchestrator) leaveOne(sid core.SessionID, roomID domain.RoomID) {
	room, ok := o.Rooms.Get(roomID)
	o.Registry.LeftRoom(sid, roomID)
	if !ok {
		return
	}
	if empty := room.Leave(sid); empty {
		o.Rooms.Reclaim(roomID)
	}
}

// OnDisconnect runs the full cleanup for a dropped transport: leave
// every room (cursor removal and user-left broadcast in the same
// step) and forget the session.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	for _, id := range o.Registry.Unbind(sid) {
		room, ok := o.Rooms.Get(id)
		if !ok {
			continue
		}
		if empty := room.Leave(sid); empty {
			o.Rooms.Reclaim(id)
		}
	}
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Msg("session cleaned up")
}

func (o *Orchestrator) CursorMove(sid core.SessionID, roomID domain.RoomID, x, y float64) error {
	room, err := o.memberRoom(sid, roomID)
	if err != nil {
		return err
	}
	return room.CursorMove(sid, x, y, time.Now())
}

func (o *Orchestrator) CursorLeave(sid core.SessionID, roomID domain.RoomID) error {
	room, err := o.memberRoom(sid, roomID)
	if err != nil {
		return err
	}
	return room.CursorLeave(sid)
}

func (o *Orchestrator) Activity(sid core.SessionID, roomID domain.RoomID, t domain.ActivityType) error {
	room, err := o.memberRoom(sid, roomID)
	if err != nil {
		return err
	}
	return room.Activity(sid, t)
}

func (o *Orchestrator) StateUpdate(sid core.SessionID, roomID domain.RoomID, update domain.StateUpdate) error {
	room, err := o.memberRoom(sid, roomID)
	if err != nil {
		return err
	}
	_, err = room.ApplyUpdate(sid, update, time.Now())
	return err
}

func (o *Orchestrator) StateReplace(sid core.SessionID, roomID domain.RoomID, state domain.StateDoc) error {
	room, err := o.memberRoom(sid, roomID)
	if err != nil {
		return err
	}
	return room.ReplaceState(sid, state)
}

func (o *Orchestrator) SendMessage(sid core.SessionID, roomID domain.RoomID, content string) error {
	room, err := o.memberRoom(sid, roomID)
	if err != nil {
		return err
	}
	_, err = room.AppendMessage(sid, content, time.Now())
	return err
}

func (o *Orchestrator) TypingStart(sid core.SessionID, roomID domain.RoomID) error {
	room, err := o.memberRoom(sid, roomID)
	if err != nil {
		return err
	}
	return room.TypingStart(sid, time.Now(), o.TypingTTL)
}

func (o *Orchestrator) TypingStop(sid core.SessionID, roomID domain.RoomID) error {
	room, err := o.memberRoom(sid, roomID)
	if err != nil {
		return err
	}
	return room.TypingStop(sid)
}

func (o *Orchestrator) memberRoom(sid core.SessionID, roomID domain.RoomID) (*core.Room, error) {
	if _, ok := o.Registry.Session(sid); !ok {
		return nil, core.ErrNotAuthenticated
	}
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return nil, core.ErrRoomNotFound
	}
	return room, nil
}

// RunTypingSweeper force-expires typing entries whose TTL elapsed,
// covering clients that vanish mid-type without a clean stop. Blocks
// until ctx is done.
func (o *Orchestrator) RunTypingSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, room := range o.Rooms.Live() {
				room.ExpireTyping(now)
			}
		}
	}
}
