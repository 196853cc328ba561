// internal/engine/play.go
package engine

import (
	"sort"

	"github.com/google/uuid"
	"github.com/qrfun/qrfun-service/internal/game"
	"github.com/qrfun/qrfun-service/internal/models"
	"github.com/qrfun/qrfun-service/internal/protocol"
)

// TurnFinished is the data of a turn_finished event.
type TurnFinished struct {
	PlayerID  uuid.UUID        `json:"playerId"`
	Action    string           `json:"action"`
	Card      *models.Card     `json:"card,omitempty"`
	TurnIndex int              `json:"turnIndex"`
	Direction models.Direction `json:"direction"`
}

// PenaltyApplied is the data of a penalty_applied event.
type PenaltyApplied struct {
	PlayerID uuid.UUID `json:"playerId"`
	Count    int       `json:"count"`
	Reason   string    `json:"reason"`
}

// GameEnded is the data of a game_ended event.
type GameEnded struct {
	WinnerID *uuid.UUID  `json:"winnerId"`
	Ranking  []uuid.UUID `json:"ranking"`
}

const (
	penaltyMissedClaim = "missed_claim"
	penaltyFalseClaim  = "false_claim"
	penaltyDrawStack   = "draw_stack"
)

func (s *state) startGame(p *models.Player) error {
	if s.room.Status != models.StatusWaiting {
		return withMessage(ErrWrongStatus, "game can only start from the waiting room")
	}
	if s.room.Election.Active {
		return ErrElectionActive
	}
	if !s.canDirect(p) {
		return ErrNotHost
	}
	var seats []int
	for seat := 0; seat < models.MaxSeats; seat++ {
		if s.bySeat(seat) != nil {
			seats = append(seats, seat)
		}
	}
	if len(seats) < 2 {
		return ErrNotEnoughPlayers
	}

	hands, rest, err := game.DealHands(game.BuildDeck(), models.MaxSeats, s.room.Rules.HandSize)
	if err != nil {
		return err
	}
	first, rest, ok := game.FirstDiscard(rest)
	if !ok {
		return withMessage(ErrDrawPileEmpty, "deck has no number card to open with")
	}

	r := s.room
	color := first.Color
	r.Status = models.StatusPlaying
	r.DrawPile = rest
	r.DiscardPile = []models.Card{first}
	r.ActiveColor = &color
	r.PendingColorChooser = nil
	r.PendingDrawCount = 0
	r.DrawnCardPlayer = nil
	r.Resolving = false
	r.Direction = models.DirectionForward
	r.ActiveSeats = seats
	r.FinishedSeats = nil
	r.TurnIndex = seats[0]
	r.WinnerID = nil
	r.Ranking = nil
	r.NextRoomID = nil
	r.PositionHands = make(map[int][]models.Card, models.MaxSeats)
	for seat, h := range hands {
		r.PositionHands[seat] = models.CloneCards(h)
	}

	for _, pl := range s.players {
		pl.HasCalledClaim = false
		pl.FinishRank = nil
		if pl.Seated() {
			pl.Hand = models.CloneCards(hands[*pl.Seat])
		} else {
			pl.Hand = []models.Card{}
		}
		s.touch(pl)
	}

	s.system("%s started the game", p.Nickname)
	s.note("seats", seats)
	s.note("firstDiscard", first.String())
	s.logger().WithField("seats", seats).Info("game started")
	return nil
}

// excluded marks every seat that cannot take a turn: closed for the round,
// already finished, or currently empty.
func (s *state) excluded() map[int]bool {
	out := make(map[int]bool, models.MaxSeats)
	for seat := 0; seat < models.MaxSeats; seat++ {
		if !s.room.SeatActive(seat) || s.room.SeatFinished(seat) || s.bySeat(seat) == nil {
			out[seat] = true
		}
	}
	return out
}

func (s *state) advance(skip, reverse bool) {
	s.room.TurnIndex, s.room.Direction = game.NextTurnIndex(s.room.TurnIndex, models.MaxSeats, s.room.Direction, skip, reverse, s.excluded())
}

// advanceAfter moves the turn on according to a played card's effect. A draw
// card passes one step only, so the next player may stack or draw.
func (s *state) advanceAfter(effect game.Effect) {
	if effect.DrawAmount > 0 {
		s.advance(false, false)
		return
	}
	s.advance(effect.SkipsNext, effect.Reverses)
}

func (s *state) turnFinished(p *models.Player, action string, card *models.Card) {
	s.emit(protocol.EventTurnFinished, TurnFinished{
		PlayerID:  p.ID,
		Action:    action,
		Card:      card,
		TurnIndex: s.room.TurnIndex,
		Direction: s.room.Direction,
	})
}

// requireTurn checks that the room is in play and p holds the turn.
func (s *state) requireTurn(p *models.Player) error {
	switch s.room.Status {
	case models.StatusPlaying:
	case models.StatusPaused:
		return withMessage(ErrWrongStatus, "game is paused")
	default:
		return withMessage(ErrWrongStatus, "no game in progress")
	}
	if s.room.PendingColorChooser != nil {
		return ErrColorPending
	}
	if !p.Seated() || *p.Seat != s.room.TurnIndex || p.Finished() || !s.room.SeatActive(*p.Seat) {
		return ErrNotYourTurn
	}
	return nil
}

func (s *state) playCard(p *models.Player, a protocol.PlayCard) error {
	if err := s.requireTurn(p); err != nil {
		return err
	}
	if a.CardIndex < 0 || a.CardIndex >= len(p.Hand) {
		return ErrInvalidCard
	}
	if s.room.DrawnCardPlayer != nil && *s.room.DrawnCardPlayer == p.ID && a.CardIndex != len(p.Hand)-1 {
		return withMessage(ErrIllegalMove, "only the card just drawn may be played")
	}
	if s.room.PendingDrawCount > 0 && !s.room.Rules.StackDraws {
		return withMessage(ErrIllegalMove, "draw penalties cannot be stacked in this room")
	}
	card := p.Hand[a.CardIndex]
	top, _ := s.room.TopDiscard()
	if !game.CanPlay(card, top, s.room.ActiveColor, s.room.PendingDrawCount) {
		return withMessage(ErrIllegalMove, "%s cannot be played on %s", card, top)
	}
	if a.Color != nil && card.IsWild() && !a.Color.Valid() {
		return ErrInvalidColor
	}

	before := len(p.Hand)
	p.Hand = append(p.Hand[:a.CardIndex:a.CardIndex], p.Hand[a.CardIndex+1:]...)
	s.room.DiscardPile = append([]models.Card{card}, s.room.DiscardPile...)
	s.room.DrawnCardPlayer = nil
	s.touch(p)
	s.note("card", card.String())

	effect := game.EffectOf(card)
	switch {
	case card.IsWild() && a.Color != nil:
		c := *a.Color
		s.room.ActiveColor = &c
	case card.IsWild():
		s.room.ActiveColor = nil
		id := p.ID
		s.room.PendingColorChooser = &id
	default:
		c := card.Color
		s.room.ActiveColor = &c
	}
	if effect.DrawAmount > 0 {
		s.room.PendingDrawCount += effect.DrawAmount
	}

	if before == 2 && len(p.Hand) == 1 && !p.HasCalledClaim {
		s.applyPenalty(p, s.room.Rules.ClaimPenalty, penaltyMissedClaim)
	}

	if len(p.Hand) == 0 {
		s.finishPlayer(p)
		if len(s.contenders()) < 2 {
			s.endRound()
			return nil
		}
	}

	if s.room.PendingColorChooser != nil {
		return nil
	}
	s.advanceAfter(effect)
	s.turnFinished(p, "play_card", &card)
	return nil
}

func (s *state) chooseColor(p *models.Player, color models.Color) error {
	if s.room.Status != models.StatusPlaying {
		return withMessage(ErrWrongStatus, "no game in progress")
	}
	if s.room.PendingColorChooser == nil || *s.room.PendingColorChooser != p.ID {
		return withMessage(ErrIllegalMove, "no color choice is owed by you")
	}
	if !color.Valid() {
		return ErrInvalidColor
	}
	s.resolveColor(color)
	s.note("color", string(color))
	s.turnFinished(p, "choose_color", nil)
	return nil
}

// resolveColor settles an outstanding color choice and moves the turn on by
// the effect of the wild that caused it.
func (s *state) resolveColor(color models.Color) {
	c := color
	s.room.ActiveColor = &c
	s.room.PendingColorChooser = nil
	top, _ := s.room.TopDiscard()
	s.advanceAfter(game.EffectOf(top))
}

// drawInto moves up to n cards from the draw pile into p's hand. Drawing
// always clears a standing claim.
func (s *state) drawInto(p *models.Player, n int) []models.Card {
	drawn, draw, discard, reshuffled := game.DrawCards(n, s.room.DrawPile, s.room.DiscardPile)
	s.room.DrawPile, s.room.DiscardPile = draw, discard
	if reshuffled {
		s.logger().Debug("reshuffled discard pile into draw pile")
	}
	p.Hand = append(p.Hand, drawn...)
	p.HasCalledClaim = false
	s.touch(p)
	return drawn
}

func (s *state) applyPenalty(p *models.Player, n int, reason string) {
	if n <= 0 {
		return
	}
	drawn := s.drawInto(p, n)
	s.emit(protocol.EventPenaltyApplied, PenaltyApplied{PlayerID: p.ID, Count: len(drawn), Reason: reason})
	s.note("penalty", reason)
}

func (s *state) drawCard(p *models.Player) error {
	if err := s.requireTurn(p); err != nil {
		return err
	}
	if s.room.DrawnCardPlayer != nil && *s.room.DrawnCardPlayer == p.ID {
		return withMessage(ErrIllegalMove, "play or pass the card you drew")
	}

	if n := s.room.PendingDrawCount; n > 0 {
		if pacing := s.e.cfg.PenaltyPacing; pacing > 0 && n > 1 {
			if len(s.drawInto(p, 1)) == 0 {
				return ErrDrawPileEmpty
			}
			s.room.PendingDrawCount = n - 1
			s.room.Resolving = true
			s.t.penaltyDealt = 1
			s.armPenalty = true
			s.note("penalty", n)
			return nil
		}
		drawn := s.drawInto(p, n)
		if len(drawn) == 0 {
			return ErrDrawPileEmpty
		}
		s.room.PendingDrawCount = 0
		s.emit(protocol.EventPenaltyApplied, PenaltyApplied{PlayerID: p.ID, Count: len(drawn), Reason: penaltyDrawStack})
		s.note("penalty", len(drawn))
		s.advance(false, false)
		s.turnFinished(p, "draw_card", nil)
		return nil
	}

	drawn := s.drawInto(p, 1)
	if len(drawn) == 0 {
		return ErrDrawPileEmpty
	}
	top, _ := s.room.TopDiscard()
	if game.CanPlay(drawn[0], top, s.room.ActiveColor, 0) {
		id := p.ID
		s.room.DrawnCardPlayer = &id
		return nil
	}
	s.advance(false, false)
	s.turnFinished(p, "draw_card", nil)
	return nil
}

// penaltyTick deals one card of a paced penalty to whoever holds the turn
// seat, or into the seat's reserve if it has been vacated.
func (s *state) penaltyTick() error {
	if !s.room.Resolving {
		return errNoop
	}
	seat := s.room.TurnIndex
	holder := s.bySeat(seat)
	if holder != nil {
		s.drawInto(holder, 1)
	} else {
		drawn, draw, discard, _ := game.DrawCards(1, s.room.DrawPile, s.room.DiscardPile)
		s.room.DrawPile, s.room.DiscardPile = draw, discard
		s.room.PositionHands[seat] = append(s.room.PositionHands[seat], drawn...)
	}
	s.room.PendingDrawCount--
	s.t.penaltyDealt++
	if s.room.PendingDrawCount > 0 && (len(s.room.DrawPile) > 0 || len(s.room.DiscardPile) > 1) {
		s.armPenalty = true
		return nil
	}

	s.room.PendingDrawCount = 0
	s.room.Resolving = false
	if holder != nil {
		s.emit(protocol.EventPenaltyApplied, PenaltyApplied{PlayerID: holder.ID, Count: s.t.penaltyDealt, Reason: penaltyDrawStack})
	}
	// A pause mid-sequence must not leave the turn with the penalized seat.
	if s.room.Status == models.StatusPlaying || s.room.Status == models.StatusPaused {
		s.advance(false, false)
		if holder != nil {
			s.turnFinished(holder, "draw_card", nil)
		}
	}
	return nil
}

func (s *state) passTurn(p *models.Player) error {
	if err := s.requireTurn(p); err != nil {
		return err
	}
	holding := s.room.DrawnCardPlayer != nil && *s.room.DrawnCardPlayer == p.ID
	exhausted := s.room.PendingDrawCount == 0 && len(s.room.DrawPile) == 0 && len(s.room.DiscardPile) <= 1
	if !holding && !exhausted {
		return withMessage(ErrIllegalMove, "draw before passing")
	}
	s.room.DrawnCardPlayer = nil
	s.advance(false, false)
	s.turnFinished(p, "pass_turn", nil)
	return nil
}

func (s *state) callClaim(p *models.Player) error {
	if s.room.Status != models.StatusPlaying {
		return withMessage(ErrWrongStatus, "no game in progress")
	}
	if !p.Seated() || p.Finished() || !s.room.SeatActive(*p.Seat) {
		return withMessage(ErrIllegalMove, "only players in the round can claim")
	}
	if len(p.Hand) > 2 {
		s.applyPenalty(p, s.room.Rules.ClaimPenalty, penaltyFalseClaim)
		s.system("%s made a false claim", p.Nickname)
		return nil
	}
	if p.HasCalledClaim {
		return errNoop
	}
	p.HasCalledClaim = true
	s.touch(p)
	s.system("%s called claim", p.Nickname)
	return nil
}

// contenders are the seated players in the round who still hold cards.
func (s *state) contenders() []*models.Player {
	var out []*models.Player
	for _, p := range s.players {
		if p.Seated() && s.room.SeatActive(*p.Seat) && !p.Finished() {
			out = append(out, p)
		}
	}
	return out
}

func (s *state) finishPlayer(p *models.Player) {
	rank := len(s.room.FinishedSeats) + 1
	p.FinishRank = &rank
	p.HasCalledClaim = false
	s.room.FinishedSeats = append(s.room.FinishedSeats, *p.Seat)
	if s.room.DrawnCardPlayer != nil && *s.room.DrawnCardPlayer == p.ID {
		s.room.DrawnCardPlayer = nil
	}
	s.touch(p)
	s.system("%s finished in place %d", p.Nickname, rank)
}

// endRound closes the round: remaining contenders take the last ranks and
// the room records its winner and final ranking.
func (s *state) endRound() {
	rest := s.contenders()
	sort.SliceStable(rest, func(i, j int) bool { return len(rest[i].Hand) < len(rest[j].Hand) })
	for _, p := range rest {
		rank := len(s.room.FinishedSeats) + 1
		p.FinishRank = &rank
		s.room.FinishedSeats = append(s.room.FinishedSeats, *p.Seat)
		s.touch(p)
	}

	type ranked struct {
		id   uuid.UUID
		rank int
	}
	var order []ranked
	for _, p := range s.players {
		if p.FinishRank != nil {
			order = append(order, ranked{p.ID, *p.FinishRank})
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i].rank < order[j].rank })

	r := s.room
	r.Ranking = make([]uuid.UUID, 0, len(order))
	for _, o := range order {
		r.Ranking = append(r.Ranking, o.id)
	}
	r.WinnerID = nil
	if len(order) > 0 {
		w := order[0].id
		r.WinnerID = &w
	}
	r.Status = models.StatusFinished
	r.PendingColorChooser = nil
	r.PendingDrawCount = 0
	r.DrawnCardPlayer = nil
	r.Resolving = false
	if r.ActiveColor == nil {
		if top, ok := r.TopDiscard(); ok && !top.IsWild() {
			c := top.Color
			r.ActiveColor = &c
		}
	}

	s.emit(protocol.EventGameEnded, GameEnded{WinnerID: r.WinnerID, Ranking: r.Ranking})
	if w := s.player(derefOr(r.WinnerID)); w != nil {
		s.system("%s won the game", w.Nickname)
	}
	s.note("ranking", r.Ranking)
	s.logger().WithField("winner", r.WinnerID).Info("game finished")
}

func derefOr(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
