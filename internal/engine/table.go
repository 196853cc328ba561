// internal/engine/table.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qrfun/qrfun-service/internal/models"
	"github.com/qrfun/qrfun-service/internal/protocol"
	"github.com/qrfun/qrfun-service/internal/store"
	"github.com/sirupsen/logrus"
)

// errNoop aborts a mutation without saving or broadcasting and without
// reporting an error to the caller.
var errNoop = errors.New("nothing to do")

// Table serializes every mutation of one room and owns that room's timers.
// All fields are guarded by mu.
type Table struct {
	roomID uuid.UUID
	e      *Engine

	mu            sync.Mutex
	electionTimer *time.Timer
	graceTimer    *time.Timer
	penaltyTimer  *time.Timer
	penaltyDealt  int
	actionIndex   int
}

// state is one loaded copy of a room and its players. Handlers mutate it
// freely; nothing reaches the store unless the handler returns nil.
type state struct {
	ctx     context.Context
	e       *Engine
	t       *Table
	now     time.Time
	actor   *uuid.UUID
	room    *models.Room
	players []*models.Player

	dirty    map[uuid.UUID]bool
	created  []*models.Player
	removed  []uuid.UUID
	messages []*models.Message
	events   [][]byte
	private  map[uuid.UUID][][]byte
	payload  map[string]interface{}

	armElection  bool
	stopElection bool
	armGrace     *uuid.UUID
	stopGrace    bool
	armPenalty   bool
	kicked       []uuid.UUID
	deleteRoom   bool
	spawned      []*models.Room
}

func (t *Table) load(ctx context.Context) (*models.Room, []*models.Player, error) {
	room, err := t.e.store.GetRoom(ctx, t.roomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load room: %w", err)
	}
	players, err := t.e.store.GetPlayersByRoom(ctx, t.roomID)
	if err != nil {
		return nil, nil, fmt.Errorf("load players: %w", err)
	}
	if room.PositionHands == nil {
		room.PositionHands = make(map[int][]models.Card)
	}
	sortForRender(players)
	return room, players, nil
}

// mutate runs fn against a fresh copy of the room under the table lock, then
// saves, broadcasts and applies timer changes. fn returning an error discards
// every change it made.
func (t *Table) mutate(ctx context.Context, actor *uuid.UUID, action string, fn func(s *state) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	room, players, err := t.load(ctx)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			t.e.dropTable(t.roomID)
		}
		return err
	}
	s := &state{
		ctx:     ctx,
		e:       t.e,
		t:       t,
		now:     t.e.now(),
		actor:   actor,
		room:    room,
		players: players,
		dirty:   make(map[uuid.UUID]bool),
		private: make(map[uuid.UUID][][]byte),
	}
	if err := fn(s); err != nil {
		if errors.Is(err, errNoop) {
			return nil
		}
		return err
	}
	if err := t.commit(s); err != nil {
		return err
	}
	t.logAction(actor, action, s.payload)
	return nil
}

func (t *Table) commit(s *state) error {
	ctx := s.ctx
	log := t.e.log.WithField("room", t.roomID)

	if s.deleteRoom {
		if err := t.e.store.DeleteRoom(ctx, t.roomID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("delete room: %w", err)
		}
		t.stopTimers()
		t.e.dropTable(t.roomID)
		log.Info("room abandoned and deleted")
		return nil
	}

	s.room.UpdatedAt = s.now
	if err := t.e.store.UpdateRoom(ctx, s.room); err != nil {
		return fmt.Errorf("save room: %w", err)
	}
	for _, p := range s.created {
		if err := t.e.store.CreatePlayer(ctx, p); err != nil {
			return fmt.Errorf("create player: %w", err)
		}
		delete(s.dirty, p.ID)
	}
	for _, p := range s.players {
		if !s.dirty[p.ID] {
			continue
		}
		if err := t.e.store.UpdatePlayer(ctx, p); err != nil {
			return fmt.Errorf("save player %s: %w", p.ID, err)
		}
	}
	for _, id := range s.removed {
		if err := t.e.store.DeletePlayer(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Warnf("delete player %s: %v", id, err)
		}
	}
	for _, m := range s.messages {
		if err := t.e.store.AppendMessage(ctx, m); err != nil {
			log.Warnf("append message: %v", err)
		}
	}

	if s.stopElection {
		stopTimer(&t.electionTimer)
	}
	if s.armElection {
		t.armElectionTimer(s.room.Election.Generation)
	}
	if s.stopGrace {
		stopTimer(&t.graceTimer)
	}
	if s.armGrace != nil {
		t.armGraceTimer(*s.armGrace)
	}
	if s.armPenalty {
		t.armPenaltyTimer()
	}

	t.broadcast(ctx, s.room, s.players)
	for _, ev := range s.events {
		t.e.hub.SendRoom(t.roomID, ev)
	}
	for pid, frames := range s.private {
		for _, f := range frames {
			t.e.hub.SendToPlayer(pid, f)
		}
	}
	for _, pid := range s.kicked {
		t.e.hub.DisconnectPlayer(pid, protocol.CloseKicked, "removed by host")
	}
	return nil
}

// sync broadcasts the stored state without mutating it.
func (t *Table) sync(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	room, players, err := t.load(ctx)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			t.e.dropTable(t.roomID)
		}
		return err
	}
	t.broadcast(ctx, room, players)
	return nil
}

// broadcast renders room_state for every attached viewer. Callers hold mu.
func (t *Table) broadcast(ctx context.Context, room *models.Room, players []*models.Player) {
	msgs, err := t.e.store.RecentMessages(ctx, t.roomID, models.RecentMessageLimit)
	if err != nil {
		t.e.log.WithField("room", t.roomID).Warnf("load messages: %v", err)
		msgs = nil
	}
	observers := t.e.hub.ObserverCount(t.roomID)
	now := t.e.now()
	t.e.hub.BroadcastRoom(t.roomID, func(viewer *uuid.UUID) ([]byte, error) {
		return encodeRoomState(RenderRoomState(room, players, msgs, viewer, t.e.hub.IsOnline, observers, now))
	})
}

func stopTimer(tm **time.Timer) {
	if *tm != nil {
		(*tm).Stop()
		*tm = nil
	}
}

func (t *Table) stopTimers() {
	stopTimer(&t.electionTimer)
	stopTimer(&t.graceTimer)
	stopTimer(&t.penaltyTimer)
}

// logAction publishes an accepted action without blocking the room.
func (t *Table) logAction(actor *uuid.UUID, actionType string, payload map[string]interface{}) {
	if t.e.actions == nil {
		return
	}
	t.actionIndex++
	if payload == nil {
		payload = make(map[string]interface{})
	}
	record := models.RoomAction{
		RoomID:        t.roomID,
		ActionIndex:   t.actionIndex,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     t.e.now().UnixMilli(),
	}
	if actor != nil {
		record.ActorPlayerID = *actor
	}
	go func(rec models.RoomAction) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := t.e.actions.PublishRoomAction(ctx, rec); err != nil {
			t.e.log.WithFields(logrus.Fields{"room": rec.RoomID, "index": rec.ActionIndex}).
				Warnf("publish action: %v", err)
		}
	}(record)
}

// --- state helpers ---

func (s *state) player(id uuid.UUID) *models.Player {
	for _, p := range s.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// actorPlayer returns the acting player or ErrNotInRoom.
func (s *state) actorPlayer() (*models.Player, error) {
	if s.actor == nil {
		return nil, ErrNotInRoom
	}
	p := s.player(*s.actor)
	if p == nil {
		return nil, ErrNotInRoom
	}
	return p, nil
}

// bySeat returns the player sitting in seat, if any.
func (s *state) bySeat(seat int) *models.Player {
	for _, p := range s.players {
		if p.Seated() && *p.Seat == seat {
			return p
		}
	}
	return nil
}

func (s *state) seatedCount() int {
	n := 0
	for _, p := range s.players {
		if p.Seated() {
			n++
		}
	}
	return n
}

func (s *state) touch(p *models.Player) { s.dirty[p.ID] = true }

func (s *state) addPlayer(p *models.Player) {
	s.players = append(s.players, p)
	s.created = append(s.created, p)
	sortForRender(s.players)
}

func (s *state) removePlayer(id uuid.UUID) {
	for i, p := range s.players {
		if p.ID == id {
			s.players = append(s.players[:i], s.players[i+1:]...)
			break
		}
	}
	delete(s.dirty, id)
	s.removed = append(s.removed, id)
}

func (s *state) system(format string, args ...interface{}) {
	s.messages = append(s.messages, models.SystemMessage(s.room.ID, fmt.Sprintf(format, args...), s.now))
}

func (s *state) emit(t protocol.EventType, data interface{}) {
	s.events = append(s.events, protocol.Encode(t, data))
}

func (s *state) emitTo(playerID uuid.UUID, t protocol.EventType, data interface{}) {
	s.private[playerID] = append(s.private[playerID], protocol.Encode(t, data))
}

func (s *state) note(key string, value interface{}) {
	if s.payload == nil {
		s.payload = make(map[string]interface{})
	}
	s.payload[key] = value
}

// canDirect reports whether p may run host-level flow actions: the host, or
// any seated player while the room is headless.
func (s *state) canDirect(p *models.Player) bool {
	return s.room.IsHost(p.ID) || (s.room.Headless && p.Seated())
}

func (s *state) logger() *logrus.Entry {
	return s.e.log.WithField("room", s.room.ID)
}
