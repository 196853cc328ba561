// internal/protocol/events.go
package protocol

import "encoding/json"

// EventType is the "type" of an outbound envelope.
type EventType string

const (
	EventRoomState       EventType = "room_state"
	EventTurnFinished    EventType = "turn_finished"
	EventPenaltyApplied  EventType = "penalty_applied"
	EventElectionOpened  EventType = "election_opened"
	EventHostElected     EventType = "host_elected"
	EventGameEnded       EventType = "game_ended"
	EventRoomSpawned     EventType = "room_spawned"
	EventHeartbeatAck    EventType = "heartbeat_ack"
	EventError           EventType = "error"
	EventSessionReplaced EventType = "session_replaced"
)

// Envelope is every outbound message: a type plus its data.
type Envelope struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

// HeartbeatAck echoes the client timestamp with the server's clock.
type HeartbeatAck struct {
	Timestamp  int64 `json:"timestamp"`
	ServerTime int64 `json:"serverTime"`
}

// Encode marshals an envelope. A marshal failure here is a programming error,
// so it is reported as an error event rather than dropped silently.
func Encode(t EventType, data interface{}) []byte {
	b, err := json.Marshal(Envelope{Type: t, Data: data})
	if err != nil {
		b, _ = json.Marshal(Envelope{Type: EventError, Data: ErrorData{Code: "internal", Message: "encode failed"}})
	}
	return b
}
