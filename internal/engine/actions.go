// internal/engine/actions.go
package engine

import (
	"github.com/qrfun/qrfun-service/internal/protocol"
)

// apply routes one decoded action to its handler. join_room, heartbeat and
// stream_subscribe belong to the session layer and never reach a room.
func (s *state) apply(action protocol.Action) error {
	p, err := s.actorPlayer()
	if err != nil {
		return err
	}
	if s.room.Resolving {
		switch action.(type) {
		case protocol.SendMessage, protocol.ExitGame, protocol.SubmitVote:
		default:
			return ErrResolving
		}
	}

	switch a := action.(type) {
	case protocol.StartGame:
		return s.startGame(p)
	case protocol.PlayCard:
		return s.playCard(p, a)
	case protocol.ChooseColor:
		return s.chooseColor(p, a.Color)
	case protocol.DrawCard:
		return s.drawCard(p)
	case protocol.PassTurn:
		return s.passTurn(p)
	case protocol.CallClaim:
		return s.callClaim(p)
	case protocol.KickPlayer:
		return s.kickPlayer(p, a.TargetPlayerID)
	case protocol.AssignSeat:
		return s.assignSeat(p, a.PlayerID, a.Seat)
	case protocol.ExitGame:
		return s.exitGame(p)
	case protocol.SubmitVote:
		return s.submitVote(p, a.CandidateID)
	case protocol.ResumeGame:
		return s.resumeGame(p)
	case protocol.HostHandoff:
		return s.hostHandoff(p)
	case protocol.PlayAgain:
		return s.playAgain(p)
	case protocol.SendMessage:
		return s.sendMessage(p, a)
	case protocol.UpdateRules:
		return s.updateRules(p, a.Rules)
	default:
		return withMessage(ErrUnsupported, "%s is not a room action", action.Type())
	}
}
