// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const (
	MaxUserIDLen   = 36
	MaxUserNameLen = 64
)

var (
	ErrUserIDEmpty     = errors.New("user id empty")
	ErrUserNameEmpty   = errors.New("user name empty")
	ErrUserNameTooLong = errors.New("user name too long")
)

type UserID string

// User is the identity handed to this system by the auth layer.
// Immutable for the lifetime of a session.
type User struct {
	ID        UserID `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id UserID, name, avatarURL string) (*User, error) {
	if id == "" {
		return nil, ErrUserIDEmpty
	}
	if name == "" {
		return nil, ErrUserNameEmpty
	}
	if len(name) > MaxUserNameLen {
		return nil, ErrUserNameTooLong
	}
	return &User{ID: id, Name: name, AvatarURL: avatarURL}, nil
}
