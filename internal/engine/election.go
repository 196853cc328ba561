// internal/engine/election.go
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/qrfun/qrfun-service/internal/models"
	"github.com/qrfun/qrfun-service/internal/protocol"
)

// Outcome is how an election ended.
type Outcome string

const (
	OutcomeRestored Outcome = "restored" // previous host came back
	OutcomeHeadless Outcome = "headless" // everyone voted no_host
	OutcomeElected  Outcome = "elected"  // a candidate won outright
	OutcomeFallback Outcome = "fallback" // seat priority picked the host
	OutcomeVacant   Outcome = "vacant"   // nobody qualified; next joiner hosts
)

// fallbackSeats is the order in which seats inherit the host role.
var fallbackSeats = []int{1, 2, 3, 0}

// TallyInput is everything Tally needs to decide an election.
type TallyInput struct {
	PreviousHostID       *uuid.UUID
	PreviousHostReturned bool
	Voters               []uuid.UUID
	Votes                map[uuid.UUID]string
	// Seated maps every seated player to their seat.
	Seated map[uuid.UUID]int
	// Present is the subset of Seated that is online.
	Present map[uuid.UUID]int
}

// TallyResult is the decision of Tally.
type TallyResult struct {
	Outcome Outcome
	HostID  *uuid.UUID
}

// Tally decides an election. It is a pure function of its input.
func Tally(in TallyInput) TallyResult {
	if in.PreviousHostReturned && in.PreviousHostID != nil {
		id := *in.PreviousHostID
		return TallyResult{Outcome: OutcomeRestored, HostID: &id}
	}

	if len(in.Voters) > 0 {
		unanimous := true
		for _, v := range in.Voters {
			if in.Votes[v] != models.NoHostCandidate {
				unanimous = false
				break
			}
		}
		if unanimous {
			return TallyResult{Outcome: OutcomeHeadless}
		}
	}

	counts := make(map[string]int)
	for _, v := range in.Voters {
		if c, ok := in.Votes[v]; ok {
			counts[c]++
		}
	}
	var leader string
	best, tied := 0, false
	for c, n := range counts {
		switch {
		case n > best:
			leader, best, tied = c, n, false
		case n == best:
			tied = true
		}
	}
	if best > 0 && !tied && leader != models.NoHostCandidate {
		if id, err := uuid.Parse(leader); err == nil {
			if _, seated := in.Seated[id]; seated {
				return TallyResult{Outcome: OutcomeElected, HostID: &id}
			}
		}
	}

	for _, seat := range fallbackSeats {
		for id, s := range in.Present {
			if s != seat || (in.PreviousHostID != nil && id == *in.PreviousHostID) {
				continue
			}
			pick := id
			return TallyResult{Outcome: OutcomeFallback, HostID: &pick}
		}
	}
	return TallyResult{Outcome: OutcomeVacant}
}

// ElectionOpened is the data of an election_opened event.
type ElectionOpened struct {
	Reason         string      `json:"reason"`
	PreviousHostID *uuid.UUID  `json:"previousHostId"`
	EligibleVoters []uuid.UUID `json:"eligibleVoters"`
	Candidates     []string    `json:"candidates"`
	EndsAt         time.Time   `json:"endsAt"`
}

// HostElected is the data of a host_elected event.
type HostElected struct {
	Outcome  Outcome    `json:"outcome"`
	HostID   *uuid.UUID `json:"hostId"`
	Headless bool       `json:"headless"`
}

// openElection strips the host role and starts the voting window. With no
// eligible voters it resolves straight away.
func (s *state) openElection(reason string) {
	r := s.room
	prev := r.HostPlayerID
	r.HostPlayerID = nil

	var voters []uuid.UUID
	for _, p := range s.players {
		if !p.Seated() || p.IsSpectator || p.HasLeft || (prev != nil && p.ID == *prev) {
			continue
		}
		if s.e.hub.IsOnline(p.ID) {
			voters = append(voters, p.ID)
		}
	}

	started := s.now
	ends := started.Add(s.e.cfg.ElectionWindow)
	r.Election = models.Election{
		Active:             true,
		Reason:             reason,
		PreviousHostID:     prev,
		HostDisconnectedAt: r.Election.HostDisconnectedAt,
		StartedAt:          &started,
		EndsAt:             &ends,
		EligibleVoters:     voters,
		Votes:              make(map[uuid.UUID]string),
		Generation:         r.Election.Generation + 1,
	}
	s.stopGrace = true
	s.emit(protocol.EventElectionOpened, ElectionOpened{
		Reason:         reason,
		PreviousHostID: prev,
		EligibleVoters: voters,
		Candidates:     candidates(voters),
		EndsAt:         ends,
	})
	s.system("host election opened")
	s.note("election", reason)
	s.logger().WithField("voters", len(voters)).Infof("election opened: %s", reason)

	if len(voters) == 0 {
		s.resolveElection(false)
		return
	}
	s.armElection = true
}

// resolveElection tallies the running election, installs the result and
// clears the election block in the same mutation.
func (s *state) resolveElection(previousHostReturned bool) {
	r := s.room
	if !r.Election.Active {
		return
	}
	seated := make(map[uuid.UUID]int)
	present := make(map[uuid.UUID]int)
	for _, p := range s.players {
		if !p.Seated() {
			continue
		}
		seated[p.ID] = *p.Seat
		if s.e.hub.IsOnline(p.ID) {
			present[p.ID] = *p.Seat
		}
	}
	res := Tally(TallyInput{
		PreviousHostID:       r.Election.PreviousHostID,
		PreviousHostReturned: previousHostReturned,
		Voters:               r.Election.EligibleVoters,
		Votes:                r.Election.Votes,
		Seated:               seated,
		Present:              present,
	})

	r.HostPlayerID = res.HostID
	if res.Outcome == OutcomeHeadless {
		r.Headless = true
	}
	r.Election = models.Election{Generation: r.Election.Generation}
	s.armElection = false
	s.stopElection = true
	s.stopGrace = true

	s.emit(protocol.EventHostElected, HostElected{Outcome: res.Outcome, HostID: res.HostID, Headless: r.Headless})
	switch {
	case res.Outcome == OutcomeHeadless:
		s.system("the room continues without a host")
	case res.HostID != nil:
		if h := s.player(*res.HostID); h != nil {
			s.system("%s is now the host", h.Nickname)
		}
	default:
		s.system("no host; the next player to join will host")
	}
	s.note("outcome", string(res.Outcome))
	s.logger().WithField("outcome", res.Outcome).Info("election resolved")
}

func (s *state) submitVote(p *models.Player, candidate string) error {
	e := &s.room.Election
	if !e.Active {
		return ErrNoElection
	}
	eligible := false
	for _, v := range e.EligibleVoters {
		if v == p.ID {
			eligible = true
			break
		}
	}
	if !eligible {
		return ErrNotEligible
	}
	if _, voted := e.Votes[p.ID]; voted {
		return ErrAlreadyVoted
	}
	valid := candidate == models.NoHostCandidate
	for _, c := range e.EligibleVoters {
		if c.String() == candidate {
			valid = true
			break
		}
	}
	if !valid {
		return ErrInvalidCandidate
	}
	if e.Votes == nil {
		e.Votes = make(map[uuid.UUID]string)
	}
	e.Votes[p.ID] = candidate
	s.note("candidate", candidate)

	if len(e.Votes) >= len(e.EligibleVoters) {
		s.resolveElection(false)
	}
	return nil
}

func (s *state) hostHandoff(p *models.Player) error {
	if !s.room.IsHost(p.ID) {
		return ErrNotHost
	}
	if s.room.Election.Active {
		return ErrElectionActive
	}
	s.openElection("host_handoff")
	return nil
}

// electionExpired resolves election generation gen if it is still running.
func (s *state) electionExpired(gen int) error {
	if !s.room.Election.Active || s.room.Election.Generation != gen {
		return errNoop
	}
	s.resolveElection(false)
	return nil
}

// --- timers ---

func (t *Table) armElectionTimer(gen int) {
	stopTimer(&t.electionTimer)
	t.electionTimer = time.AfterFunc(t.e.cfg.ElectionWindow, func() {
		t.fire("election_timeout", func(s *state) error { return s.electionExpired(gen) })
	})
}

func (t *Table) armGraceTimer(hostID uuid.UUID) {
	stopTimer(&t.graceTimer)
	t.graceTimer = time.AfterFunc(t.e.cfg.HostGrace, func() {
		t.fire("host_grace_expired", func(s *state) error { return s.hostGraceExpired(hostID) })
	})
}

func (t *Table) armPenaltyTimer() {
	stopTimer(&t.penaltyTimer)
	t.penaltyTimer = time.AfterFunc(t.e.cfg.PenaltyPacing, func() {
		t.fire("penalty_tick", func(s *state) error { return s.penaltyTick() })
	})
}

// fire runs a timer callback as a server-initiated mutation.
func (t *Table) fire(action string, fn func(s *state) error) {
	if err := t.mutate(context.Background(), nil, action, fn); err != nil {
		t.e.log.WithField("room", t.roomID).Warnf("%s: %v", action, err)
	}
}
