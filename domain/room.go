package domain

import "errors"

type (
	RoomID   string
	RoomType string
)

const (
	RoomTypeProject  RoomType = "project"
	RoomTypeDocument RoomType = "document"
	RoomTypeCanvas   RoomType = "canvas"
	RoomTypeVideo    RoomType = "video"
)

var ErrRoomIDEmpty = errors.New("room id empty")

// Room groups membership, presence, a shared state document and chat.
// State is owned by the per-room authority in core; this struct only
// carries the identifying metadata.
type Room struct {
	ID   RoomID   `json:"id"`
	Name string   `json:"name"`
	Type RoomType `json:"type"`
}

func (t RoomType) Valid() bool {
	switch t {
	case RoomTypeProject, RoomTypeDocument, RoomTypeCanvas, RoomTypeVideo:
		return true
	}
	return false
}
