// internal/engine/sync_state.go
package engine

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/qrfun/qrfun-service/internal/models"
	"github.com/qrfun/qrfun-service/internal/protocol"
)

// PlayerView is one player as seen by a particular viewer. Hand is only
// filled in for the viewer's own record.
type PlayerView struct {
	ID             uuid.UUID     `json:"id"`
	Nickname       string        `json:"nickname"`
	Seat           *int          `json:"seat"`
	IsSpectator    bool          `json:"isSpectator"`
	IsHost         bool          `json:"isHost"`
	IsOnline       bool          `json:"isOnline"`
	HasCalledClaim bool          `json:"hasCalledClaim"`
	HasLeft        bool          `json:"hasLeft"`
	FinishRank     *int          `json:"finishRank"`
	HandCount      int           `json:"handCount"`
	Hand           []models.Card `json:"hand,omitempty"`
	JoinedAt       time.Time     `json:"joinedAt"`
}

// ElectionView hides who voted for whom; only who has voted is public.
type ElectionView struct {
	Active         bool        `json:"active"`
	Reason         string      `json:"reason,omitempty"`
	PreviousHostID *uuid.UUID  `json:"previousHostId,omitempty"`
	StartedAt      *time.Time  `json:"startedAt,omitempty"`
	EndsAt         *time.Time  `json:"endsAt,omitempty"`
	EligibleVoters []uuid.UUID `json:"eligibleVoters,omitempty"`
	Candidates     []string    `json:"candidates,omitempty"`
	Voted          []uuid.UUID `json:"voted,omitempty"`
}

// RoomView is the room with its draw pile and reserved hands reduced to counts.
type RoomView struct {
	ID                  uuid.UUID         `json:"id"`
	Code                string            `json:"code"`
	HostPlayerID        *uuid.UUID        `json:"hostPlayerId"`
	Status              models.RoomStatus `json:"status"`
	Rules               models.HouseRules `json:"rules"`
	TurnIndex           int               `json:"turnIndex"`
	Direction           models.Direction  `json:"direction"`
	DrawPileCount       int               `json:"drawPileCount"`
	DiscardPile         []models.Card     `json:"discardPile"`
	ActiveColor         *models.Color     `json:"activeColor"`
	PendingColorChooser *uuid.UUID        `json:"pendingColorChooser"`
	PendingDrawCount    int               `json:"pendingDrawCount"`
	DrawnCardPlayer     *uuid.UUID        `json:"drawnCardPlayer"`
	Resolving           bool              `json:"resolving"`
	PositionHands       map[int]int       `json:"positionHands"`
	ActiveSeats         []int             `json:"activeSeats"`
	FinishedSeats       []int             `json:"finishedSeats"`
	WinnerID            *uuid.UUID        `json:"winnerId"`
	Ranking             []uuid.UUID       `json:"ranking"`
	Headless            bool              `json:"headless"`
	Election            ElectionView      `json:"election"`
	NextRoomID          *uuid.UUID        `json:"nextRoomId"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}

// RoomState is the data of a room_state envelope.
type RoomState struct {
	Room          RoomView          `json:"room"`
	Players       []PlayerView      `json:"players"`
	Messages      []*models.Message `json:"messages"`
	Timestamp     int64             `json:"timestamp"`
	ObserverCount int               `json:"observerCount"`
}

// sortForRender orders players by seat (seated first), then join time, then id.
func sortForRender(players []*models.Player) {
	sort.SliceStable(players, func(i, j int) bool {
		a, b := players[i], players[j]
		switch {
		case a.Seat != nil && b.Seat == nil:
			return true
		case a.Seat == nil && b.Seat != nil:
			return false
		case a.Seat != nil && *a.Seat != *b.Seat:
			return *a.Seat < *b.Seat
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

// RenderRoomState builds the snapshot of room for viewer. A nil viewer is an
// observer and sees no hand. online reports derived presence for a player.
// The result depends only on its arguments, so two renders of the same state
// at the same instant are identical.
func RenderRoomState(room *models.Room, players []*models.Player, messages []*models.Message, viewer *uuid.UUID, online func(uuid.UUID) bool, observers int, now time.Time) RoomState {
	ordered := append([]*models.Player(nil), players...)
	sortForRender(ordered)

	views := make([]PlayerView, 0, len(ordered))
	for _, p := range ordered {
		v := PlayerView{
			ID:             p.ID,
			Nickname:       p.Nickname,
			Seat:           p.Seat,
			IsSpectator:    p.IsSpectator,
			IsHost:         room.IsHost(p.ID),
			IsOnline:       online != nil && online(p.ID),
			HasCalledClaim: p.HasCalledClaim,
			HasLeft:        p.HasLeft,
			FinishRank:     p.FinishRank,
			HandCount:      len(p.Hand),
			JoinedAt:       p.JoinedAt,
		}
		if viewer != nil && *viewer == p.ID {
			v.Hand = models.CloneCards(p.Hand)
			if v.Hand == nil {
				v.Hand = []models.Card{}
			}
		}
		views = append(views, v)
	}

	if messages == nil {
		messages = []*models.Message{}
	}
	return RoomState{
		Room:          renderRoom(room),
		Players:       views,
		Messages:      messages,
		Timestamp:     now.UnixMilli(),
		ObserverCount: observers,
	}
}

func renderRoom(room *models.Room) RoomView {
	hands := make(map[int]int, len(room.PositionHands))
	for seat, h := range room.PositionHands {
		hands[seat] = len(h)
	}
	discard := room.DiscardPile
	if discard == nil {
		discard = []models.Card{}
	}
	return RoomView{
		ID:                  room.ID,
		Code:                room.Code,
		HostPlayerID:        room.HostPlayerID,
		Status:              room.Status,
		Rules:               room.Rules,
		TurnIndex:           room.TurnIndex,
		Direction:           room.Direction,
		DrawPileCount:       len(room.DrawPile),
		DiscardPile:         discard,
		ActiveColor:         room.ActiveColor,
		PendingColorChooser: room.PendingColorChooser,
		PendingDrawCount:    room.PendingDrawCount,
		DrawnCardPlayer:     room.DrawnCardPlayer,
		Resolving:           room.Resolving,
		PositionHands:       hands,
		ActiveSeats:         room.ActiveSeats,
		FinishedSeats:       room.FinishedSeats,
		WinnerID:            room.WinnerID,
		Ranking:             room.Ranking,
		Headless:            room.Headless,
		Election:            renderElection(room.Election),
		NextRoomID:          room.NextRoomID,
		CreatedAt:           room.CreatedAt,
		UpdatedAt:           room.UpdatedAt,
	}
}

func renderElection(e models.Election) ElectionView {
	if !e.Active {
		return ElectionView{}
	}
	v := ElectionView{
		Active:         true,
		Reason:         e.Reason,
		PreviousHostID: e.PreviousHostID,
		StartedAt:      e.StartedAt,
		EndsAt:         e.EndsAt,
		EligibleVoters: e.EligibleVoters,
		Candidates:     candidates(e.EligibleVoters),
	}
	for _, id := range e.EligibleVoters {
		if _, ok := e.Votes[id]; ok {
			v.Voted = append(v.Voted, id)
		}
	}
	return v
}

// candidates is the ballot: every eligible voter plus the no-host option.
func candidates(voters []uuid.UUID) []string {
	out := make([]string, 0, len(voters)+1)
	for _, id := range voters {
		out = append(out, id.String())
	}
	return append(out, models.NoHostCandidate)
}

// encodeRoomState wraps a render in its envelope.
func encodeRoomState(st RoomState) ([]byte, error) {
	return json.Marshal(protocol.Envelope{Type: protocol.EventRoomState, Data: st})
}
