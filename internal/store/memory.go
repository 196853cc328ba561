// internal/store/memory.go
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/qrfun/qrfun-service/internal/models"
)

// messageRetention bounds how many messages the memory store keeps per room.
const messageRetention = 200

// MemoryStore is a process-local Store. Every read returns a deep copy and
// every write stores one, so callers never alias stored state.
type MemoryStore struct {
	mu       sync.RWMutex
	rooms    map[uuid.UUID]*models.Room
	codes    map[string]uuid.UUID
	players  map[uuid.UUID]*models.Player
	messages map[uuid.UUID][]*models.Message
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[uuid.UUID]*models.Room),
		codes:    make(map[string]uuid.UUID),
		players:  make(map[uuid.UUID]*models.Player),
		messages: make(map[uuid.UUID][]*models.Message),
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *MemoryStore) CreateRoom(_ context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	code := normalizeCode(room.Code)
	if _, taken := s.codes[code]; taken {
		return ErrCodeTaken
	}
	s.rooms[room.ID] = room.Clone()
	s.codes[code] = room.ID
	return nil
}

func (s *MemoryStore) GetRoom(_ context.Context, id uuid.UUID) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryStore) GetRoomByCode(_ context.Context, code string) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codes[normalizeCode(code)]
	if !ok {
		return nil, ErrNotFound
	}
	return s.rooms[id].Clone(), nil
}

func (s *MemoryStore) UpdateRoom(_ context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; !ok {
		return ErrNotFound
	}
	s.rooms[room.ID] = room.Clone()
	return nil
}

// DeleteRoom removes the room, its code, its players and its messages.
func (s *MemoryStore) DeleteRoom(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.codes, normalizeCode(r.Code))
	delete(s.rooms, id)
	delete(s.messages, id)
	for pid, p := range s.players {
		if p.RoomID == id {
			delete(s.players, pid)
		}
	}
	return nil
}

func (s *MemoryStore) CreatePlayer(_ context.Context, player *models.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[player.RoomID]; !ok {
		return ErrNotFound
	}
	s.players[player.ID] = player.Clone()
	return nil
}

func (s *MemoryStore) GetPlayer(_ context.Context, id uuid.UUID) (*models.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// GetPlayersByRoom returns the room's players ordered by join time, then id.
func (s *MemoryStore) GetPlayersByRoom(_ context.Context, roomID uuid.UUID) ([]*models.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Player
	for _, p := range s.players {
		if p.RoomID == roomID {
			out = append(out, p.Clone())
		}
	}
	SortPlayers(out)
	return out, nil
}

func (s *MemoryStore) UpdatePlayer(_ context.Context, player *models.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[player.ID]; !ok {
		return ErrNotFound
	}
	s.players[player.ID] = player.Clone()
	return nil
}

func (s *MemoryStore) DeletePlayer(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[id]; !ok {
		return ErrNotFound
	}
	delete(s.players, id)
	return nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[msg.RoomID]; !ok {
		return ErrNotFound
	}
	c := *msg
	log := append(s.messages[msg.RoomID], &c)
	if len(log) > messageRetention {
		log = log[len(log)-messageRetention:]
	}
	s.messages[msg.RoomID] = log
	return nil
}

func (s *MemoryStore) RecentMessages(_ context.Context, roomID uuid.UUID, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.messages[roomID]
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	out := make([]*models.Message, len(log))
	for i, m := range log {
		c := *m
		out[i] = &c
	}
	return out, nil
}

// SortPlayers orders players by join time, breaking ties by id, so every
// store implementation lists a room's players identically.
func SortPlayers(players []*models.Player) {
	sort.SliceStable(players, func(i, j int) bool {
		if !players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].JoinedAt.Before(players[j].JoinedAt)
		}
		return players[i].ID.String() < players[j].ID.String()
	})
}
