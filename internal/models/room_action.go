// internal/models/room_action.go
package models

import "github.com/google/uuid"

// RoomAction is one accepted mutation, as published to the historian queue.
type RoomAction struct {
	RoomID        uuid.UUID              `json:"room_id"`
	ActionIndex   int                    `json:"action_index"`
	ActorPlayerID uuid.UUID              `json:"actor_player_id"` // uuid.Nil for server-initiated actions
	ActionType    string                 `json:"action_type"`
	ActionPayload map[string]interface{} `json:"action_payload"`
	Timestamp     int64                  `json:"timestamp"` // epoch millis
}
