package domain

import "time"

type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// RoomUser is one user's membership record inside one room.
// Unique by user within a room; a re-join refreshes JoinedAt and Role
// instead of duplicating the entry.
type RoomUser struct {
	User     *User     `json:"user"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

// NewRoomUser avoids raw literals in adapters and keeps construction obvious.
func NewRoomUser(user *User, role Role, at time.Time) *RoomUser {
	if role == "" {
		role = RoleEditor
	}
	return &RoomUser{User: user, Role: role, JoinedAt: at}
}
