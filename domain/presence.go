package domain

import "time"

// CursorPosition is ephemeral presence data: one live entry per user
// per room, overwritten on every move and removed on leave.
type CursorPosition struct {
	UserID    UserID    `json:"userId"`
	RoomID    RoomID    `json:"roomId"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Timestamp time.Time `json:"timestamp"`
}

type ActivityType string

const (
	ActivityActive ActivityType = "active"
	ActivityIdle   ActivityType = "idle"
	ActivityAway   ActivityType = "away"
)

func (t ActivityType) Valid() bool {
	switch t {
	case ActivityActive, ActivityIdle, ActivityAway:
		return true
	}
	return false
}
