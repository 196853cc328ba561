// internal/models/player.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Player is a participant in a room, seated or spectating. Online status is
// not stored here; it is derived from live connections at broadcast time.
type Player struct {
	ID             uuid.UUID `json:"id"`
	Nickname       string    `json:"nickname"`
	RoomID         uuid.UUID `json:"roomId"`
	Seat           *int      `json:"seat"`
	Hand           []Card    `json:"hand"`
	IsSpectator    bool      `json:"isSpectator"`
	HasCalledClaim bool      `json:"hasCalledClaim"`
	HasLeft        bool      `json:"hasLeft"`
	Kicked         bool      `json:"kicked,omitempty"` // removed by the host; may not rejoin
	FinishRank     *int      `json:"finishRank"`
	JoinedAt       time.Time `json:"joinedAt"`
}

// NewPlayer returns a spectator in roomID.
func NewPlayer(roomID uuid.UUID, nickname string, now time.Time) *Player {
	return &Player{
		ID:          uuid.New(),
		Nickname:    nickname,
		RoomID:      roomID,
		IsSpectator: true,
		Hand:        []Card{},
		JoinedAt:    now,
	}
}

// Seated reports whether the player currently occupies a seat.
func (p *Player) Seated() bool {
	return p.Seat != nil && !p.HasLeft
}

// Finished reports whether the player has emptied their hand this round.
func (p *Player) Finished() bool {
	return p.FinishRank != nil
}

// SitAt places the player in seat.
func (p *Player) SitAt(seat int) {
	s := seat
	p.Seat = &s
	p.IsSpectator = false
}

// Unseat turns the player into a spectator and returns the seat they held, if any.
func (p *Player) Unseat() (int, bool) {
	if p.Seat == nil {
		p.IsSpectator = true
		return 0, false
	}
	seat := *p.Seat
	p.Seat = nil
	p.IsSpectator = true
	return seat, true
}

// Clone returns a deep copy of the player.
func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	c := *p
	if p.Seat != nil {
		s := *p.Seat
		c.Seat = &s
	}
	if p.FinishRank != nil {
		r := *p.FinishRank
		c.FinishRank = &r
	}
	c.Hand = CloneCards(p.Hand)
	if c.Hand == nil {
		c.Hand = []Card{}
	}
	return &c
}
