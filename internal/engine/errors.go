// internal/engine/errors.go
package engine

import "fmt"

// ActionError is a rejected action. Code is stable and sent to the client;
// Message is for humans. Two ActionErrors match under errors.Is when their
// codes are equal, so handlers can return a sentinel with a custom message.
type ActionError struct {
	Code    string
	Message string
}

func (e *ActionError) Error() string {
	return e.Code + ": " + e.Message
}

// Is matches any ActionError carrying the same code.
func (e *ActionError) Is(target error) bool {
	t, ok := target.(*ActionError)
	return ok && t.Code == e.Code
}

// withMessage returns a copy of base with a more specific message.
func withMessage(base *ActionError, format string, args ...interface{}) *ActionError {
	return &ActionError{Code: base.Code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrRoomNotFound     = &ActionError{"room_not_found", "room does not exist"}
	ErrNotInRoom        = &ActionError{"not_in_room", "player is not in this room"}
	ErrUnknownPlayer    = &ActionError{"unknown_player", "no such player in this room"}
	ErrKicked           = &ActionError{"kicked", "you were removed from this room"}
	ErrNotHost          = &ActionError{"not_host", "only the host can do that"}
	ErrWrongStatus      = &ActionError{"invalid_state", "not allowed in the current room state"}
	ErrNotYourTurn      = &ActionError{"not_your_turn", "it is not your turn"}
	ErrIllegalMove      = &ActionError{"illegal_move", "that move is not allowed"}
	ErrInvalidCard      = &ActionError{"invalid_card", "no card at that index"}
	ErrInvalidColor     = &ActionError{"invalid_color", "color must be red, yellow, green or blue"}
	ErrColorPending     = &ActionError{"color_pending", "waiting for a color to be chosen"}
	ErrResolving        = &ActionError{"resolving", "a penalty is still being dealt"}
	ErrDrawPileEmpty    = &ActionError{"draw_pile_empty", "no cards left to draw"}
	ErrNotEnoughPlayers = &ActionError{"not_enough_players", "at least two seated players are needed"}
	ErrSeatUnavailable  = &ActionError{"seat_unavailable", "that seat cannot be taken"}
	ErrElectionActive   = &ActionError{"election_active", "a host election is in progress"}
	ErrNoElection       = &ActionError{"no_election", "no host election is running"}
	ErrNotEligible      = &ActionError{"not_eligible", "you cannot vote in this election"}
	ErrAlreadyVoted     = &ActionError{"already_voted", "you have already voted"}
	ErrInvalidCandidate = &ActionError{"invalid_candidate", "not a candidate in this election"}
	ErrInvalidMessage   = &ActionError{"invalid_message", "message must be 1 to 280 characters"}
	ErrInvalidRules     = &ActionError{"invalid_rules", "invalid house rules"}
	ErrInvalidNickname  = &ActionError{"invalid_nickname", "nickname must be 1 to 24 characters"}
	ErrUnsupported      = &ActionError{"unsupported_action", "action is not handled by the room"}
)
