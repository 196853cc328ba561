// internal/handlers/rooms.go
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/qrfun/qrfun-service/internal/engine"
	"github.com/qrfun/qrfun-service/internal/models"
	"github.com/qrfun/qrfun-service/internal/store"
	"github.com/sirupsen/logrus"
)

type nicknameRequest struct {
	Nickname string `json:"nickname"`
}

// SeatSummary is one non-departed player in a public room summary.
type SeatSummary struct {
	PlayerID    uuid.UUID `json:"playerId"`
	Nickname    string    `json:"nickname"`
	Seat        *int      `json:"seat"`
	IsSpectator bool      `json:"isSpectator"`
}

// RoomSummary is what anyone holding a join code may see. No cards.
type RoomSummary struct {
	ID           uuid.UUID         `json:"id"`
	Code         string            `json:"code"`
	Status       models.RoomStatus `json:"status"`
	HostPlayerID *uuid.UUID        `json:"hostPlayerId"`
	Headless     bool              `json:"headless"`
	SeatedCount  int               `json:"seatedCount"`
	Players      []SeatSummary     `json:"players"`
}

// JoinResponse is returned by room creation and join.
type JoinResponse struct {
	Room     RoomSummary `json:"room"`
	PlayerID uuid.UUID   `json:"playerId"`
	Token    string      `json:"token,omitempty"`
}

// CreateRoomHandler creates a room whose creator is the seated host.
func (s *Server) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req nicknameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	room, host, err := s.Engine.CreateRoom(r.Context(), req.Nickname)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.respondJoined(w, r, http.StatusCreated, room, host)
}

// JoinRoomHandler adds a player to the room named by its join code.
func (s *Server) JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req nicknameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	room, player, err := s.Engine.AddPlayer(r.Context(), strings.ToUpper(r.PathValue("code")), req.Nickname)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.respondJoined(w, r, http.StatusOK, room, player)
}

// RoomSummaryHandler returns the public view of a room.
func (s *Server) RoomSummaryHandler(w http.ResponseWriter, r *http.Request) {
	room, err := s.Store.GetRoomByCode(r.Context(), strings.ToUpper(r.PathValue("code")))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.Log.Errorf("room summary lookup: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	summary, err := s.summarize(r, room)
	if err != nil {
		s.Log.Errorf("room summary players: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) respondJoined(w http.ResponseWriter, r *http.Request, status int, room *models.Room, p *models.Player) {
	resp := JoinResponse{PlayerID: p.ID}
	if s.Signer != nil {
		tok, err := s.Signer.Issue(p.ID, room.ID)
		if err != nil {
			s.Log.Errorf("issue token: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		resp.Token = tok
	}
	// AddPlayer returns the room as it was looked up; reread so the summary
	// includes the new player.
	if fresh, err := s.Store.GetRoom(r.Context(), room.ID); err == nil {
		room = fresh
	}
	summary, err := s.summarize(r, room)
	if err != nil {
		s.Log.Errorf("room summary players: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	resp.Room = summary
	s.Log.WithFields(logrus.Fields{"room": room.ID, "player": p.ID}).Info("player issued")
	writeJSON(w, status, resp)
}

func (s *Server) summarize(r *http.Request, room *models.Room) (RoomSummary, error) {
	players, err := s.Store.GetPlayersByRoom(r.Context(), room.ID)
	if err != nil {
		return RoomSummary{}, err
	}
	sum := RoomSummary{
		ID:           room.ID,
		Code:         room.Code,
		Status:       room.Status,
		HostPlayerID: room.HostPlayerID,
		Headless:     room.Headless,
		Players:      []SeatSummary{},
	}
	for _, p := range players {
		if p.HasLeft {
			continue
		}
		if p.Seated() {
			sum.SeatedCount++
		}
		sum.Players = append(sum.Players, SeatSummary{
			PlayerID:    p.ID,
			Nickname:    p.Nickname,
			Seat:        p.Seat,
			IsSpectator: p.IsSpectator,
		})
	}
	return sum, nil
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var ae *engine.ActionError
	switch {
	case errors.Is(err, engine.ErrRoomNotFound):
		http.Error(w, "room not found", http.StatusNotFound)
	case errors.As(err, &ae):
		http.Error(w, ae.Message, http.StatusBadRequest)
	default:
		s.Log.Errorf("room request: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// decodeBody reads a small JSON body. An empty body decodes to the zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 4096)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "bad request payload", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
