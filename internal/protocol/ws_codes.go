// internal/protocol/ws_codes.go
package protocol

// Custom WebSocket close codes. These give clients a more specific reason
// for closure than the standard codes.
const (
	CloseBadSubprotocol   = 3000 // Client connected with an unsupported subprotocol.
	CloseInvalidAuthToken = 3001 // Join token was invalid, expired or named another player.
	CloseSessionReplaced  = 3004 // A newer connection from the same device took over this player.
	CloseKicked           = 3005 // The host removed this player from the room.
	CloseStale            = 3006 // No heartbeat within the liveness window.
)
