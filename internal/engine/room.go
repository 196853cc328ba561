// internal/engine/room.go
package engine

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/qrfun/qrfun-service/internal/models"
	"github.com/qrfun/qrfun-service/internal/protocol"
)

const maxMessageLength = 280

// RoomSpawned is the data of a room_spawned event.
type RoomSpawned struct {
	RoomID       uuid.UUID `json:"roomId"`
	Code         string    `json:"code"`
	HostPlayerID uuid.UUID `json:"hostPlayerId"`
	RequestedBy  uuid.UUID `json:"requestedBy"`
	Token        string    `json:"token,omitempty"`
}

func (s *state) playAgain(p *models.Player) error {
	r := s.room
	if r.Status != models.StatusFinished {
		return withMessage(ErrWrongStatus, "the game has not finished")
	}
	if r.Headless {
		return s.spawnNextRoom(p)
	}
	if !r.IsHost(p.ID) {
		return ErrNotHost
	}

	r.Status = models.StatusWaiting
	r.TurnIndex = 0
	r.Direction = models.DirectionForward
	r.DrawPile = nil
	r.DiscardPile = nil
	r.ActiveColor = nil
	r.PendingColorChooser = nil
	r.PendingDrawCount = 0
	r.DrawnCardPlayer = nil
	r.Resolving = false
	r.PositionHands = make(map[int][]models.Card)
	r.ActiveSeats = nil
	r.FinishedSeats = nil
	r.WinnerID = nil
	r.Ranking = nil
	for _, pl := range s.players {
		pl.Hand = []models.Card{}
		pl.HasCalledClaim = false
		pl.FinishRank = nil
		s.touch(pl)
	}
	s.system("%s reset the table", p.Nickname)
	return nil
}

// spawnNextRoom opens a fresh room for a headless table. The requester
// becomes its seated host; everyone else follows via the code.
func (s *state) spawnNextRoom(p *models.Player) error {
	if !p.Seated() {
		return withMessage(ErrIllegalMove, "only seated players can start the next room")
	}
	if s.room.NextRoomID != nil {
		return withMessage(ErrIllegalMove, "the next room already exists")
	}
	next, host, err := s.e.createRoomWithHost(s.ctx, p.Nickname)
	if err != nil {
		return err
	}
	id := next.ID
	s.room.NextRoomID = &id

	ev := RoomSpawned{RoomID: next.ID, Code: next.Code, HostPlayerID: host.ID, RequestedBy: p.ID}
	s.emit(protocol.EventRoomSpawned, ev)
	if s.e.issuer != nil {
		if tok, err := s.e.issuer(host.ID, next.ID); err == nil {
			ev.Token = tok
			s.emitTo(p.ID, protocol.EventRoomSpawned, ev)
		} else {
			s.logger().Warnf("issue token for spawned room: %v", err)
		}
	}
	s.system("%s opened the next room: %s", p.Nickname, next.Code)
	s.note("nextRoom", next.ID)
	return nil
}

func (s *state) updateRules(p *models.Player, rules map[string]interface{}) error {
	if !s.room.IsHost(p.ID) {
		return ErrNotHost
	}
	if s.room.Status != models.StatusWaiting {
		return withMessage(ErrWrongStatus, "rules can only change before the game starts")
	}
	if err := s.room.Rules.Update(rules); err != nil {
		return withMessage(ErrInvalidRules, "%v", err)
	}
	s.note("rules", s.room.Rules)
	return nil
}

func (s *state) sendMessage(p *models.Player, a protocol.SendMessage) error {
	kind := a.Kind
	if kind == "" {
		kind = models.MessageChat
	}
	if kind != models.MessageChat && kind != models.MessageEmoji {
		return withMessage(ErrInvalidMessage, "unknown message kind %q", kind)
	}
	text := strings.TrimSpace(a.Text)
	if text == "" || utf8.RuneCountInString(text) > maxMessageLength {
		return ErrInvalidMessage
	}
	id := p.ID
	s.messages = append(s.messages, &models.Message{
		ID:        uuid.New(),
		RoomID:    s.room.ID,
		PlayerID:  &id,
		Nickname:  p.Nickname,
		Kind:      kind,
		Text:      text,
		CreatedAt: s.now,
	})
	s.note("kind", string(kind))
	return nil
}
