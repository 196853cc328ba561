// internal/protocol/actions.go
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/qrfun/qrfun-service/internal/models"
)

// ActionType is the "type" discriminator of an inbound envelope.
type ActionType string

const (
	TypeJoinRoom        ActionType = "join_room"
	TypeStartGame       ActionType = "start_game"
	TypePlayCard        ActionType = "play_card"
	TypeChooseColor     ActionType = "choose_color"
	TypeDrawCard        ActionType = "draw_card"
	TypePassTurn        ActionType = "pass_turn"
	TypeCallClaim       ActionType = "call_claim"
	TypeKickPlayer      ActionType = "kick_player"
	TypeAssignSeat      ActionType = "assign_seat"
	TypeExitGame        ActionType = "exit_game"
	TypeSubmitVote      ActionType = "submit_vote"
	TypeHeartbeat       ActionType = "heartbeat"
	TypeStreamSubscribe ActionType = "stream_subscribe"
	TypeResumeGame      ActionType = "resume_game"
	TypeHostHandoff     ActionType = "host_handoff"
	TypePlayAgain       ActionType = "play_again"
	TypeSendMessage     ActionType = "send_message"
	TypeUpdateRules     ActionType = "update_rules"
)

// Action is the closed set of inbound actions. Only types in this package
// implement it.
type Action interface {
	Type() ActionType
	sealed()
}

// JoinRoom binds the connection to a player in a room.
type JoinRoom struct {
	PlayerID uuid.UUID `json:"playerId"`
	RoomID   uuid.UUID `json:"roomId"`
	Token    string    `json:"token,omitempty"`
}

type StartGame struct{}

// PlayCard plays the card at CardIndex; Color may name the wild's color inline.
type PlayCard struct {
	CardIndex int           `json:"cardIndex"`
	Color     *models.Color `json:"color,omitempty"`
}

type ChooseColor struct {
	Color models.Color `json:"color"`
}

type DrawCard struct{}

// PassTurn declines to play a freshly drawn card.
type PassTurn struct{}

type CallClaim struct{}

type KickPlayer struct {
	TargetPlayerID uuid.UUID `json:"targetPlayerId"`
}

// AssignSeat moves PlayerID into Seat; a nil Seat makes them a spectator.
type AssignSeat struct {
	PlayerID uuid.UUID `json:"playerId"`
	Seat     *int      `json:"seat"`
}

type ExitGame struct{}

// SubmitVote names a player id or models.NoHostCandidate.
type SubmitVote struct {
	CandidateID string `json:"candidateId"`
}

type Heartbeat struct {
	Timestamp int64 `json:"timestamp"`
}

type StreamSubscribe struct {
	RoomID uuid.UUID `json:"roomId"`
}

type ResumeGame struct{}

type HostHandoff struct{}

type PlayAgain struct{}

type SendMessage struct {
	Kind models.MessageKind `json:"kind"`
	Text string             `json:"text"`
}

type UpdateRules struct {
	Rules map[string]interface{} `json:"rules"`
}

func (JoinRoom) Type() ActionType        { return TypeJoinRoom }
func (StartGame) Type() ActionType       { return TypeStartGame }
func (PlayCard) Type() ActionType        { return TypePlayCard }
func (ChooseColor) Type() ActionType     { return TypeChooseColor }
func (DrawCard) Type() ActionType        { return TypeDrawCard }
func (PassTurn) Type() ActionType        { return TypePassTurn }
func (CallClaim) Type() ActionType       { return TypeCallClaim }
func (KickPlayer) Type() ActionType      { return TypeKickPlayer }
func (AssignSeat) Type() ActionType      { return TypeAssignSeat }
func (ExitGame) Type() ActionType        { return TypeExitGame }
func (SubmitVote) Type() ActionType      { return TypeSubmitVote }
func (Heartbeat) Type() ActionType       { return TypeHeartbeat }
func (StreamSubscribe) Type() ActionType { return TypeStreamSubscribe }
func (ResumeGame) Type() ActionType      { return TypeResumeGame }
func (HostHandoff) Type() ActionType     { return TypeHostHandoff }
func (PlayAgain) Type() ActionType       { return TypePlayAgain }
func (SendMessage) Type() ActionType     { return TypeSendMessage }
func (UpdateRules) Type() ActionType     { return TypeUpdateRules }

func (JoinRoom) sealed()        {}
func (StartGame) sealed()       {}
func (PlayCard) sealed()        {}
func (ChooseColor) sealed()     {}
func (DrawCard) sealed()        {}
func (PassTurn) sealed()        {}
func (CallClaim) sealed()       {}
func (KickPlayer) sealed()      {}
func (AssignSeat) sealed()      {}
func (ExitGame) sealed()        {}
func (SubmitVote) sealed()      {}
func (Heartbeat) sealed()       {}
func (StreamSubscribe) sealed() {}
func (ResumeGame) sealed()      {}
func (HostHandoff) sealed()     {}
func (PlayAgain) sealed()       {}
func (SendMessage) sealed()     {}
func (UpdateRules) sealed()     {}

// decoders maps every ActionType to a function decoding its payload.
var decoders = map[ActionType]func([]byte) (Action, error){
	TypeJoinRoom:        decodeInto[JoinRoom],
	TypeStartGame:       decodeInto[StartGame],
	TypePlayCard:        decodeInto[PlayCard],
	TypeChooseColor:     decodeInto[ChooseColor],
	TypeDrawCard:        decodeInto[DrawCard],
	TypePassTurn:        decodeInto[PassTurn],
	TypeCallClaim:       decodeInto[CallClaim],
	TypeKickPlayer:      decodeInto[KickPlayer],
	TypeAssignSeat:      decodeInto[AssignSeat],
	TypeExitGame:        decodeInto[ExitGame],
	TypeSubmitVote:      decodeInto[SubmitVote],
	TypeHeartbeat:       decodeInto[Heartbeat],
	TypeStreamSubscribe: decodeInto[StreamSubscribe],
	TypeResumeGame:      decodeInto[ResumeGame],
	TypeHostHandoff:     decodeInto[HostHandoff],
	TypePlayAgain:       decodeInto[PlayAgain],
	TypeSendMessage:     decodeInto[SendMessage],
	TypeUpdateRules:     decodeInto[UpdateRules],
}

// AllActionTypes lists every type the decoder understands.
func AllActionTypes() []ActionType {
	out := make([]ActionType, 0, len(decoders))
	for t := range decoders {
		out = append(out, t)
	}
	return out
}

var (
	// ErrMalformed is returned for envelopes that are not a JSON object with a string type.
	ErrMalformed = errors.New("malformed action")
	// ErrUnknownAction is returned for a well-formed envelope with an unrecognised type.
	ErrUnknownAction = errors.New("unknown action type")
)

// Decode parses an inbound envelope {type, ...payload} into its Action.
// Payload fields sit beside "type" at the top level.
func Decode(data []byte) (Action, error) {
	var head struct {
		Type ActionType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	dec, ok := decoders[head.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, head.Type)
	}
	return dec(data)
}

func decodeInto[T Action](data []byte) (Action, error) {
	var a T
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return a, nil
}
