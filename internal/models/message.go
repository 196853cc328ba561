// internal/models/message.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageKind distinguishes player chat from emoji reactions and server notices.
type MessageKind string

const (
	MessageChat   MessageKind = "chat"
	MessageEmoji  MessageKind = "emoji"
	MessageSystem MessageKind = "system"
)

// RecentMessageLimit is how many messages a room_state broadcast carries.
const RecentMessageLimit = 20

// Message is a timestamped entry in a room's chat log.
type Message struct {
	ID        uuid.UUID   `json:"id"`
	RoomID    uuid.UUID   `json:"roomId"`
	PlayerID  *uuid.UUID  `json:"playerId,omitempty"`
	Nickname  string      `json:"nickname,omitempty"`
	Kind      MessageKind `json:"kind"`
	Text      string      `json:"text"`
	CreatedAt time.Time   `json:"createdAt"`
}

// SystemMessage builds a server-authored notice for roomID.
func SystemMessage(roomID uuid.UUID, text string, now time.Time) *Message {
	return &Message{
		ID:        uuid.New(),
		RoomID:    roomID,
		Kind:      MessageSystem,
		Text:      text,
		CreatedAt: now,
	}
}
