// internal/engine/seats.go
package engine

import (
	"strings"

	"github.com/google/uuid"
	"github.com/qrfun/qrfun-service/internal/game"
	"github.com/qrfun/qrfun-service/internal/models"
)

// inRound reports whether a player in seat still takes turns this round.
func (s *state) inRound(seat int) bool {
	return (s.room.Status == models.StatusPlaying || s.room.Status == models.StatusPaused) &&
		s.room.SeatActive(seat) && !s.room.SeatFinished(seat)
}

// pauseFor pauses a running game because the player in seat went away.
func (s *state) pauseFor(seat int, nickname, why string) {
	if s.room.Status != models.StatusPlaying || !s.inRound(seat) {
		return
	}
	s.room.Status = models.StatusPaused
	s.system("game paused: %s %s", nickname, why)
	s.logger().WithField("seat", seat).Info("game paused")
}

// vacate takes p out of their seat, keeping their cards as the seat's
// reserve so a later occupant can pick them up.
func (s *state) vacate(p *models.Player) (int, bool) {
	seat, ok := p.Unseat()
	if !ok {
		return 0, false
	}
	if s.room.Status == models.StatusPlaying || s.room.Status == models.StatusPaused {
		s.room.PositionHands[seat] = models.CloneCards(p.Hand)
		s.releaseTurnHolds(p)
	}
	p.Hand = []models.Card{}
	p.HasCalledClaim = false
	s.touch(p)
	return seat, true
}

// releaseTurnHolds settles turn sub-states that belong to p personally. A
// drawn-card hold is dropped (the card stays with the seat). An owed color
// choice is made for them from the colors left in their hand.
func (s *state) releaseTurnHolds(p *models.Player) {
	if s.room.DrawnCardPlayer != nil && *s.room.DrawnCardPlayer == p.ID {
		s.room.DrawnCardPlayer = nil
	}
	if s.room.PendingColorChooser != nil && *s.room.PendingColorChooser == p.ID {
		s.resolveColor(dominantColor(p.Hand))
	}
}

// dominantColor is the most common suit color in hand, red when there is none.
func dominantColor(hand []models.Card) models.Color {
	counts := make(map[models.Color]int)
	for _, c := range hand {
		if c.Color.Valid() {
			counts[c.Color]++
		}
	}
	best := models.ColorRed
	for _, c := range models.SuitColors {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}

// occupy seats p at seat, handing them the seat's reserved cards when a
// round is under way.
func (s *state) occupy(p *models.Player, seat int) {
	p.SitAt(seat)
	p.HasLeft = false
	if s.room.Status == models.StatusPlaying || s.room.Status == models.StatusPaused {
		p.Hand = models.CloneCards(s.room.PositionHands[seat])
		if p.Hand == nil {
			p.Hand = []models.Card{}
		}
	}
	s.touch(p)
}

// abandoned reports whether nobody is left to play or watch.
func (s *state) abandoned() bool {
	for _, p := range s.players {
		if !p.HasLeft {
			return false
		}
	}
	return s.e.hub.ObserverCount(s.room.ID) == 0
}

func (s *state) join() error {
	p, err := s.actorPlayer()
	if err != nil {
		return err
	}
	r := s.room

	if p.Kicked {
		return ErrKicked
	}
	if p.HasLeft {
		p.HasLeft = false
		p.Unseat()
		p.Hand = []models.Card{}
		s.touch(p)
	}

	if r.Election.Active && r.Election.PreviousHostID != nil && *r.Election.PreviousHostID == p.ID {
		s.resolveElection(true)
	}
	if r.IsHost(p.ID) && r.Election.HostDisconnectedAt != nil {
		r.Election.HostDisconnectedAt = nil
		s.stopGrace = true
	}
	if r.HostPlayerID == nil && !r.Headless && !r.Election.Active {
		id := p.ID
		r.HostPlayerID = &id
		s.system("%s is now the host", p.Nickname)
	}

	for _, other := range append([]*models.Player(nil), s.players...) {
		if other.ID == p.ID || !strings.EqualFold(other.Nickname, p.Nickname) {
			continue
		}
		if other.Seat != nil || len(other.Hand) > 0 || other.FinishRank != nil || r.IsHost(other.ID) {
			continue
		}
		if s.e.hub.HasConnection(other.ID) {
			continue
		}
		s.removePlayer(other.ID)
		s.logger().WithField("player", other.ID).Info("reaped ghost player")
	}

	s.system("%s joined", p.Nickname)
	return nil
}

func (s *state) disconnect() error {
	p, err := s.actorPlayer()
	if err != nil {
		return errNoop
	}
	if s.e.hub.HasConnection(p.ID) {
		return errNoop
	}
	r := s.room

	if p.Seated() && (r.Status == models.StatusPlaying || r.Status == models.StatusPaused) {
		r.PositionHands[*p.Seat] = models.CloneCards(p.Hand)
		s.pauseFor(*p.Seat, p.Nickname, "disconnected")
	}
	if r.IsHost(p.ID) && !r.Headless && !r.Election.Active && r.Election.HostDisconnectedAt == nil {
		at := s.now
		r.Election.HostDisconnectedAt = &at
		id := p.ID
		s.armGrace = &id
	}
	if s.abandoned() {
		s.deleteRoom = true
	}
	return nil
}

// hostGraceExpired opens an election if hostID is still host and still gone.
func (s *state) hostGraceExpired(hostID uuid.UUID) error {
	r := s.room
	if !r.IsHost(hostID) || r.Election.Active {
		return errNoop
	}
	if s.e.hub.HasConnection(hostID) {
		r.Election.HostDisconnectedAt = nil
		return nil
	}
	s.openElection("host_disconnected")
	return nil
}

func (s *state) assignSeat(p *models.Player, targetID uuid.UUID, seat *int) error {
	r := s.room
	if r.Headless || !r.IsHost(p.ID) {
		return ErrNotHost
	}
	if r.Election.Active {
		return ErrElectionActive
	}
	target := s.player(targetID)
	if target == nil || target.HasLeft {
		return ErrUnknownPlayer
	}
	if seat != nil && (*seat < 0 || *seat >= models.MaxSeats) {
		return withMessage(ErrSeatUnavailable, "seat %d does not exist", *seat)
	}

	switch r.Status {
	case models.StatusWaiting, models.StatusFinished:
		if seat == nil {
			s.vacate(target)
			s.note("seat", nil)
			return nil
		}
		if target.Seated() && *target.Seat == *seat {
			return errNoop
		}
		if s.bySeat(*seat) != nil {
			return withMessage(ErrSeatUnavailable, "seat %d is taken", *seat)
		}
		s.vacate(target)
		s.occupy(target, *seat)

	default:
		if target.Finished() {
			return withMessage(ErrSeatUnavailable, "%s already finished this round", target.Nickname)
		}
		if seat == nil {
			old, ok := s.vacate(target)
			if ok {
				s.pauseFor(old, target.Nickname, "was moved out of their seat")
			}
			s.note("seat", nil)
			return nil
		}
		if !r.SeatActive(*seat) || r.SeatFinished(*seat) {
			return withMessage(ErrSeatUnavailable, "seat %d is closed for this round", *seat)
		}
		if target.Seated() && *target.Seat == *seat {
			return errNoop
		}
		if occupant := s.bySeat(*seat); occupant != nil {
			s.vacate(occupant)
		}
		if old, ok := s.vacate(target); ok {
			s.pauseFor(old, target.Nickname, "changed seats")
		}
		s.occupy(target, *seat)
	}

	s.system("%s moved %s to seat %d", p.Nickname, target.Nickname, *seat+1)
	s.note("target", target.ID)
	s.note("seat", *seat)
	return nil
}

func (s *state) kickPlayer(p *models.Player, targetID uuid.UUID) error {
	if !s.room.IsHost(p.ID) {
		return ErrNotHost
	}
	if targetID == p.ID {
		return withMessage(ErrIllegalMove, "the host cannot be kicked")
	}
	target := s.player(targetID)
	if target == nil || target.HasLeft {
		return ErrUnknownPlayer
	}
	if seat, ok := s.vacate(target); ok {
		s.pauseFor(seat, target.Nickname, "was removed")
	}
	target.HasLeft = true
	target.Kicked = true
	s.touch(target)
	s.kicked = append(s.kicked, target.ID)
	s.system("%s was removed by the host", target.Nickname)
	s.note("target", target.ID)
	if s.abandoned() {
		s.deleteRoom = true
	}
	return nil
}

func (s *state) exitGame(p *models.Player) error {
	if p.HasLeft {
		return errNoop
	}
	if seat, ok := s.vacate(p); ok {
		s.pauseFor(seat, p.Nickname, "left")
	}
	p.HasLeft = true
	s.touch(p)
	s.system("%s left the room", p.Nickname)

	if s.abandoned() {
		s.deleteRoom = true
		return nil
	}
	if s.room.IsHost(p.ID) {
		s.openElection("host_exited")
	}
	return nil
}

func (s *state) resumeGame(p *models.Player) error {
	r := s.room
	if r.Status != models.StatusPaused {
		return withMessage(ErrWrongStatus, "game is not paused")
	}
	if !s.canDirect(p) {
		return ErrNotHost
	}
	if len(s.contenders()) < 2 {
		return ErrNotEnoughPlayers
	}
	r.Status = models.StatusPlaying
	if ex := s.excluded(); ex[r.TurnIndex] {
		r.TurnIndex, _ = game.NextTurnIndex(r.TurnIndex, models.MaxSeats, r.Direction, false, false, ex)
		if r.DrawnCardPlayer != nil {
			r.DrawnCardPlayer = nil
		}
	}
	s.system("%s resumed the game", p.Nickname)
	return nil
}
