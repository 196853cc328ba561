// internal/cache/store.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/qrfun/qrfun-service/internal/models"
	"github.com/qrfun/qrfun-service/internal/store"
	"github.com/redis/go-redis/v9"
)

// messageRetention bounds each room's message list.
const messageRetention = 200

// Store is a store.Store kept entirely in Redis:
//
//	<prefix>:room:<id>            JSON room
//	<prefix>:room_code:<CODE>     room id
//	<prefix>:player:<id>          JSON player
//	<prefix>:room_players:<id>    set of player ids
//	<prefix>:messages:<id>        list of JSON messages, oldest first
type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewStore returns a Store namespacing every key under prefix.
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

var _ store.Store = (*Store)(nil)

func (s *Store) roomKey(id uuid.UUID) string     { return s.prefix + ":room:" + id.String() }
func (s *Store) codeKey(code string) string      { return s.prefix + ":room_code:" + normalizeCode(code) }
func (s *Store) playerKey(id uuid.UUID) string   { return s.prefix + ":player:" + id.String() }
func (s *Store) membersKey(id uuid.UUID) string  { return s.prefix + ":room_players:" + id.String() }
func (s *Store) messagesKey(id uuid.UUID) string { return s.prefix + ":messages:" + id.String() }

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CreateRoom claims the join code with SETNX, then writes the room.
func (s *Store) CreateRoom(ctx context.Context, room *models.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, s.codeKey(room.Code), room.ID.String(), 0).Result()
	if err != nil {
		return fmt.Errorf("claim room code: %w", err)
	}
	if !ok {
		return store.ErrCodeTaken
	}
	if err := s.rdb.Set(ctx, s.roomKey(room.ID), data, 0).Err(); err != nil {
		s.rdb.Del(ctx, s.codeKey(room.Code))
		return fmt.Errorf("write room: %w", err)
	}
	return nil
}

func (s *Store) getJSON(ctx context.Context, key string, v interface{}) error {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

// GetRoom fetches a room by id.
func (s *Store) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	var r models.Room
	if err := s.getJSON(ctx, s.roomKey(id), &r); err != nil {
		return nil, err
	}
	if r.PositionHands == nil {
		r.PositionHands = make(map[int][]models.Card)
	}
	return &r, nil
}

// GetRoomByCode resolves the code index, then fetches the room.
func (s *Store) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	idStr, err := s.rdb.Get(ctx, s.codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup room code: %w", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt room code index: %w", err)
	}
	return s.GetRoom(ctx, id)
}

// UpdateRoom overwrites an existing room (SET XX).
func (s *Store) UpdateRoom(ctx context.Context, room *models.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	ok, err := s.rdb.SetXX(ctx, s.roomKey(room.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	if !ok {
		return store.ErrNotFound
	}
	return nil
}

// DeleteRoom removes the room with its code, players and messages.
func (s *Store) DeleteRoom(ctx context.Context, id uuid.UUID) error {
	room, err := s.GetRoom(ctx, id)
	if err != nil {
		return err
	}
	memberIDs, err := s.rdb.SMembers(ctx, s.membersKey(id)).Result()
	if err != nil {
		return fmt.Errorf("list room players: %w", err)
	}
	keys := []string{s.roomKey(id), s.codeKey(room.Code), s.membersKey(id), s.messagesKey(id)}
	for _, pid := range memberIDs {
		keys = append(keys, s.prefix+":player:"+pid)
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

func (s *Store) roomExists(ctx context.Context, id uuid.UUID) error {
	n, err := s.rdb.Exists(ctx, s.roomKey(id)).Result()
	if err != nil {
		return fmt.Errorf("check room: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreatePlayer writes the player and adds it to its room's member set.
func (s *Store) CreatePlayer(ctx context.Context, player *models.Player) error {
	if err := s.roomExists(ctx, player.RoomID); err != nil {
		return err
	}
	data, err := json.Marshal(player)
	if err != nil {
		return fmt.Errorf("marshal player: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.playerKey(player.ID), data, 0)
		pipe.SAdd(ctx, s.membersKey(player.RoomID), player.ID.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("create player: %w", err)
	}
	return nil
}

// GetPlayer fetches a player by id.
func (s *Store) GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	var p models.Player
	if err := s.getJSON(ctx, s.playerKey(id), &p); err != nil {
		return nil, err
	}
	if p.Hand == nil {
		p.Hand = []models.Card{}
	}
	return &p, nil
}

// GetPlayersByRoom loads every member of the room with one MGET.
func (s *Store) GetPlayersByRoom(ctx context.Context, roomID uuid.UUID) ([]*models.Player, error) {
	ids, err := s.rdb.SMembers(ctx, s.membersKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list room players: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.prefix + ":player:" + id
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load room players: %w", err)
	}
	out := make([]*models.Player, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue // member set can briefly outlive a deleted player key
		}
		var p models.Player
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("unmarshal player: %w", err)
		}
		if p.Hand == nil {
			p.Hand = []models.Card{}
		}
		out = append(out, &p)
	}
	store.SortPlayers(out)
	return out, nil
}

// UpdatePlayer overwrites an existing player (SET XX).
func (s *Store) UpdatePlayer(ctx context.Context, player *models.Player) error {
	data, err := json.Marshal(player)
	if err != nil {
		return fmt.Errorf("marshal player: %w", err)
	}
	ok, err := s.rdb.SetXX(ctx, s.playerKey(player.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("update player: %w", err)
	}
	if !ok {
		return store.ErrNotFound
	}
	return nil
}

// DeletePlayer removes the player and its membership.
func (s *Store) DeletePlayer(ctx context.Context, id uuid.UUID) error {
	p, err := s.GetPlayer(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.playerKey(id))
		pipe.SRem(ctx, s.membersKey(p.RoomID), id.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete player: %w", err)
	}
	return nil
}

// AppendMessage pushes onto the room's list and trims it to the retention window.
func (s *Store) AppendMessage(ctx context.Context, msg *models.Message) error {
	if err := s.roomExists(ctx, msg.RoomID); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	key := s.messagesKey(msg.RoomID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, -messageRetention, -1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// RecentMessages returns the newest limit messages, oldest first.
func (s *Store) RecentMessages(ctx context.Context, roomID uuid.UUID, limit int) ([]*models.Message, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raws, err := s.rdb.LRange(ctx, s.messagesKey(roomID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	out := make([]*models.Message, 0, len(raws))
	for _, raw := range raws {
		var m models.Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		out = append(out, &m)
	}
	return out, nil
}
