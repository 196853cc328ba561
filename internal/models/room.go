// internal/models/room.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxSeats is the number of player seats in every room.
const MaxSeats = 4

// RoomStatus is the lifecycle state of a room.
type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusPlaying  RoomStatus = "playing"
	StatusPaused   RoomStatus = "paused"
	StatusFinished RoomStatus = "finished"
)

// Direction is the order in which turns pass around the table.
type Direction string

const (
	DirectionForward  Direction = "forward"
	DirectionBackward Direction = "backward"
)

// Flip returns the opposite direction.
func (d Direction) Flip() Direction {
	if d == DirectionBackward {
		return DirectionForward
	}
	return DirectionBackward
}

// NoHostCandidate is the synthetic ballot option for continuing without a host.
const NoHostCandidate = "no_host"

// Election holds host-succession bookkeeping. The zero value means no election is running.
type Election struct {
	Active             bool                 `json:"active"`
	Reason             string               `json:"reason,omitempty"`
	PreviousHostID     *uuid.UUID           `json:"previousHostId,omitempty"`
	HostDisconnectedAt *time.Time           `json:"hostDisconnectedAt,omitempty"`
	StartedAt          *time.Time           `json:"startedAt,omitempty"`
	EndsAt             *time.Time           `json:"endsAt,omitempty"`
	EligibleVoters     []uuid.UUID          `json:"eligibleVoters,omitempty"`
	Votes              map[uuid.UUID]string `json:"votes,omitempty"` // voter -> candidate id or NoHostCandidate
	Generation         int                  `json:"generation"`
}

// Room is the authoritative state of one game instance.
type Room struct {
	ID           uuid.UUID  `json:"id"`
	Code         string     `json:"code"`
	HostPlayerID *uuid.UUID `json:"hostPlayerId"`
	Status       RoomStatus `json:"status"`
	Rules        HouseRules `json:"rules"`

	TurnIndex   int       `json:"turnIndex"`
	Direction   Direction `json:"direction"`
	DrawPile    []Card    `json:"drawPile"`
	DiscardPile []Card    `json:"discardPile"` // most recent first

	// ActiveColor is nil while PendingColorChooser owes a color choice.
	ActiveColor         *Color     `json:"activeColor"`
	PendingColorChooser *uuid.UUID `json:"pendingColorChooser,omitempty"`
	PendingDrawCount    int        `json:"pendingDrawCount"`

	// DrawnCardPlayer is set while a player holds a freshly drawn playable card.
	DrawnCardPlayer *uuid.UUID `json:"drawnCardPlayer,omitempty"`
	// Resolving is set while a paced penalty draw is still dealing cards.
	Resolving bool `json:"resolving"`

	PositionHands map[int][]Card `json:"positionHands"`
	ActiveSeats   []int          `json:"activeSeats"`
	FinishedSeats []int          `json:"finishedSeats"`

	WinnerID *uuid.UUID  `json:"winnerId,omitempty"`
	Ranking  []uuid.UUID `json:"ranking,omitempty"`

	Headless   bool       `json:"headless"`
	Election   Election   `json:"election"`
	NextRoomID *uuid.UUID `json:"nextRoomId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewRoom returns a waiting room with default rules.
func NewRoom(code string, now time.Time) *Room {
	return &Room{
		ID:            uuid.New(),
		Code:          code,
		Status:        StatusWaiting,
		Rules:         DefaultHouseRules(),
		Direction:     DirectionForward,
		PositionHands: make(map[int][]Card),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// IsHost reports whether playerID currently holds the host role.
func (r *Room) IsHost(playerID uuid.UUID) bool {
	return r.HostPlayerID != nil && *r.HostPlayerID == playerID
}

// TopDiscard returns the most recently played card.
func (r *Room) TopDiscard() (Card, bool) {
	if len(r.DiscardPile) == 0 {
		return Card{}, false
	}
	return r.DiscardPile[0], true
}

// SeatActive reports whether seat was occupied when the current round started.
func (r *Room) SeatActive(seat int) bool {
	return containsInt(r.ActiveSeats, seat)
}

// SeatFinished reports whether the player in seat has already emptied their hand this round.
func (r *Room) SeatFinished(seat int) bool {
	return containsInt(r.FinishedSeats, seat)
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.HostPlayerID = cloneUUID(r.HostPlayerID)
	c.DrawPile = CloneCards(r.DrawPile)
	c.DiscardPile = CloneCards(r.DiscardPile)
	if r.ActiveColor != nil {
		color := *r.ActiveColor
		c.ActiveColor = &color
	}
	c.PendingColorChooser = cloneUUID(r.PendingColorChooser)
	c.DrawnCardPlayer = cloneUUID(r.DrawnCardPlayer)
	c.PositionHands = make(map[int][]Card, len(r.PositionHands))
	for seat, hand := range r.PositionHands {
		c.PositionHands[seat] = CloneCards(hand)
	}
	c.ActiveSeats = append([]int(nil), r.ActiveSeats...)
	c.FinishedSeats = append([]int(nil), r.FinishedSeats...)
	c.WinnerID = cloneUUID(r.WinnerID)
	c.Ranking = append([]uuid.UUID(nil), r.Ranking...)
	c.NextRoomID = cloneUUID(r.NextRoomID)
	c.Election = r.Election.clone()
	return &c
}

func (e Election) clone() Election {
	c := e
	c.PreviousHostID = cloneUUID(e.PreviousHostID)
	c.HostDisconnectedAt = cloneTime(e.HostDisconnectedAt)
	c.StartedAt = cloneTime(e.StartedAt)
	c.EndsAt = cloneTime(e.EndsAt)
	c.EligibleVoters = append([]uuid.UUID(nil), e.EligibleVoters...)
	if e.Votes != nil {
		c.Votes = make(map[uuid.UUID]string, len(e.Votes))
		for k, v := range e.Votes {
			c.Votes[k] = v
		}
	}
	return c
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
