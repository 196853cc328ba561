// internal/engine/hub_test.go
package engine

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qrfun/qrfun-service/internal/config"
	"github.com/qrfun/qrfun-service/internal/models"
	"github.com/qrfun/qrfun-service/internal/protocol"
	"github.com/qrfun/qrfun-service/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// fakeHub records every frame the engine emits. Connected players are
// online and receive room_state renders.
type fakeHub struct {
	mu           sync.Mutex
	connected    map[uuid.UUID]bool
	observers    map[uuid.UUID]int
	states       map[uuid.UUID][]byte
	events       [][]byte
	private      map[uuid.UUID][][]byte
	disconnected map[uuid.UUID]int
	renders      int
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		connected:    make(map[uuid.UUID]bool),
		observers:    make(map[uuid.UUID]int),
		states:       make(map[uuid.UUID][]byte),
		private:      make(map[uuid.UUID][][]byte),
		disconnected: make(map[uuid.UUID]int),
	}
}

func (h *fakeHub) connect(ids ...uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range ids {
		h.connected[id] = true
	}
}

func (h *fakeHub) drop(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connected, id)
}

func (h *fakeHub) IsOnline(id uuid.UUID) bool { return h.HasConnection(id) }

func (h *fakeHub) HasConnection(id uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected[id]
}

func (h *fakeHub) ObserverCount(roomID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.observers[roomID]
}

func (h *fakeHub) ActiveRooms() []uuid.UUID { return nil }

func (h *fakeHub) BroadcastRoom(_ uuid.UUID, render func(viewer *uuid.UUID) ([]byte, error)) {
	h.mu.Lock()
	viewers := make([]uuid.UUID, 0, len(h.connected))
	for id := range h.connected {
		viewers = append(viewers, id)
	}
	h.mu.Unlock()
	for _, v := range viewers {
		id := v
		b, err := render(&id)
		if err != nil {
			continue
		}
		h.mu.Lock()
		h.states[id] = b
		h.renders++
		h.mu.Unlock()
	}
}

func (h *fakeHub) SendRoom(_ uuid.UUID, data []byte) {
	h.mu.Lock()
	h.events = append(h.events, data)
	h.mu.Unlock()
}

func (h *fakeHub) SendToPlayer(id uuid.UUID, data []byte) {
	h.mu.Lock()
	h.private[id] = append(h.private[id], data)
	h.mu.Unlock()
}

func (h *fakeHub) DisconnectPlayer(id uuid.UUID, code int, _ string) {
	h.mu.Lock()
	h.disconnected[id] = code
	delete(h.connected, id)
	h.mu.Unlock()
}

// eventsOf decodes every room-wide event of type t, in order.
func (h *fakeHub) eventsOf(t *testing.T, typ protocol.EventType) []json.RawMessage {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []json.RawMessage
	for _, raw := range h.events {
		var env struct {
			Type protocol.EventType `json:"type"`
			Data json.RawMessage    `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &env))
		if env.Type == typ {
			out = append(out, env.Data)
		}
	}
	return out
}

// lastState decodes the latest room_state rendered for viewer.
func (h *fakeHub) lastState(t *testing.T, viewer uuid.UUID) RoomState {
	t.Helper()
	h.mu.Lock()
	raw := h.states[viewer]
	h.mu.Unlock()
	require.NotNil(t, raw, "no state rendered for %s", viewer)
	var env struct {
		Type protocol.EventType `json:"type"`
		Data RoomState          `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Equal(t, protocol.EventRoomState, env.Type)
	return env.Data
}

type recordingLog struct {
	mu      sync.Mutex
	records []models.RoomAction
}

func (l *recordingLog) PublishRoomAction(_ context.Context, rec models.RoomAction) error {
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()
	return nil
}

func (l *recordingLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	e     *Engine
	hub   *fakeHub
	store *store.MemoryStore
	room  *models.Room
	host  *models.Player
	seats map[int]*models.Player
}

func testEngineConfig() config.Engine {
	return config.Engine{
		ElectionWindow: time.Hour,
		HostGrace:      time.Hour,
		LivenessWindow: time.Minute,
	}
}

func newHarness(t *testing.T, cfg config.Engine) *harness {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	st := store.NewMemoryStore()
	hub := newFakeHub()
	e := New(st, hub, cfg, logger)
	t.Cleanup(e.Close)
	return &harness{t: t, ctx: context.Background(), e: e, hub: hub, store: st, seats: make(map[int]*models.Player)}
}

// table creates a room whose host sits at seat 0 and seats one more
// connected player at each of extra.
func (h *harness) table(extra ...int) {
	h.t.Helper()
	room, host, err := h.e.CreateRoom(h.ctx, "host")
	require.NoError(h.t, err)
	h.room, h.host = room, host
	h.seats[0] = host
	h.hub.connect(host.ID)
	require.NoError(h.t, h.e.PlayerJoined(h.ctx, host.ID, room.ID))

	for _, seat := range extra {
		p := h.spectator("p" + string(rune('0'+seat)))
		s := seat
		h.do(host.ID, protocol.AssignSeat{PlayerID: p.ID, Seat: &s})
		h.seats[seat] = p
	}
}

// spectator adds a connected spectator.
func (h *harness) spectator(nickname string) *models.Player {
	h.t.Helper()
	_, p, err := h.e.AddPlayer(h.ctx, h.room.Code, nickname)
	require.NoError(h.t, err)
	h.hub.connect(p.ID)
	require.NoError(h.t, h.e.PlayerJoined(h.ctx, p.ID, h.room.ID))
	return p
}

func (h *harness) do(playerID uuid.UUID, a protocol.Action) {
	h.t.Helper()
	require.NoError(h.t, h.e.Dispatch(h.ctx, playerID, h.room.ID, a))
}

func (h *harness) try(playerID uuid.UUID, a protocol.Action) error {
	return h.e.Dispatch(h.ctx, playerID, h.room.ID, a)
}

func (h *harness) start() {
	h.t.Helper()
	h.do(h.host.ID, protocol.StartGame{})
}

func (h *harness) getRoom() *models.Room {
	h.t.Helper()
	r, err := h.store.GetRoom(h.ctx, h.room.ID)
	require.NoError(h.t, err)
	return r
}

func (h *harness) getPlayer(id uuid.UUID) *models.Player {
	h.t.Helper()
	p, err := h.store.GetPlayer(h.ctx, id)
	require.NoError(h.t, err)
	return p
}

// rig edits stored state directly to set up a scenario.
func (h *harness) rig(fn func(r *models.Room, bySeat map[int]*models.Player)) {
	h.t.Helper()
	r := h.getRoom()
	bySeat := make(map[int]*models.Player)
	for seat, p := range h.seats {
		bySeat[seat] = h.getPlayer(p.ID)
	}
	fn(r, bySeat)
	require.NoError(h.t, h.store.UpdateRoom(h.ctx, r))
	for _, p := range bySeat {
		require.NoError(h.t, h.store.UpdatePlayer(h.ctx, p))
	}
}

func (h *harness) expireElection() {
	h.t.Helper()
	gen := h.getRoom().Election.Generation
	require.NoError(h.t, h.e.table(h.room.ID).mutate(h.ctx, nil, "election_timeout", func(s *state) error {
		return s.electionExpired(gen)
	}))
}

func num(c models.Color, n int) models.Card { return models.NumberCard(c, n) }

func color(c models.Color) *models.Color { return &c }

// cardTotal counts every physical card: piles, held hands, and reserves of
// seats nobody occupies.
func (h *harness) cardTotal() int {
	h.t.Helper()
	r := h.getRoom()
	players, err := h.store.GetPlayersByRoom(h.ctx, r.ID)
	require.NoError(h.t, err)
	total := len(r.DrawPile) + len(r.DiscardPile)
	occupied := make(map[int]bool)
	for _, p := range players {
		total += len(p.Hand)
		if p.Seated() {
			occupied[*p.Seat] = true
		}
	}
	for seat, hand := range r.PositionHands {
		if !occupied[seat] {
			total += len(hand)
		}
	}
	return total
}
