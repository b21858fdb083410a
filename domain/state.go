package domain

import "time"

// StateDoc is the JSON-like shared document of a room.
type StateDoc map[string]any

// StateUpdate is a patch against a room's state document at a
// dotted/array path, e.g. "title" or "blocks.2.text".
// UserID and Timestamp are assigned by the server on apply; values a
// client sends for them are ignored.
type StateUpdate struct {
	Type      string    `json:"type,omitempty"`
	Path      string    `json:"path"`
	Value     any       `json:"value"`
	UserID    UserID    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}
