package domain

import (
	"errors"
	"time"
)

const MaxChatContentLen = 4096

var (
	ErrChatContentEmpty   = errors.New("chat content empty")
	ErrChatContentTooLong = errors.New("chat content too long")
)

// ChatMessage is append-only and immutable once broadcast.
// ID and CreatedAt are server-assigned; ordering is server-arrival
// order, not client-send order.
type ChatMessage struct {
	ID        string    `json:"id"`
	RoomID    RoomID    `json:"roomId"`
	UserID    UserID    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func ValidateChatContent(content string) error {
	if content == "" {
		return ErrChatContentEmpty
	}
	if len(content) > MaxChatContentLen {
		return ErrChatContentTooLong
	}
	return nil
}
