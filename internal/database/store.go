// internal/database/store.go
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qrfun/qrfun-service/internal/models"
	"github.com/qrfun/qrfun-service/internal/store"
)

// Store is a store.Store backed by Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an open pool. Call Migrate first on a fresh database.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ store.Store = (*Store)(nil)

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CreateRoom inserts a new room row.
func (s *Store) CreateRoom(ctx context.Context, room *models.Room) error {
	state, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	q := `
	INSERT INTO rooms (id, code, status, state, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	`
	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, room.ID, normalizeCode(room.Code), string(room.Status), state, room.CreatedAt, room.UpdatedAt)
		return err
	})
	if isPgError(err, pgUniqueViolation) {
		return store.ErrCodeTaken
	}
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

func (s *Store) scanRoom(row pgx.Row) (*models.Room, error) {
	var state []byte
	if err := row.Scan(&state); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan room: %w", err)
	}
	var r models.Room
	if err := json.Unmarshal(state, &r); err != nil {
		return nil, fmt.Errorf("unmarshal room: %w", err)
	}
	if r.PositionHands == nil {
		r.PositionHands = make(map[int][]models.Card)
	}
	return &r, nil
}

// GetRoom fetches a room by id.
func (s *Store) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	return s.scanRoom(s.pool.QueryRow(ctx, `SELECT state FROM rooms WHERE id = $1`, id))
}

// GetRoomByCode fetches a room by its join code, case-insensitively.
func (s *Store) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	return s.scanRoom(s.pool.QueryRow(ctx, `SELECT state FROM rooms WHERE code = $1`, normalizeCode(code)))
}

// UpdateRoom overwrites the stored state of an existing room.
func (s *Store) UpdateRoom(ctx context.Context, room *models.Room) error {
	state, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	q := `
	UPDATE rooms
	SET code = $2, status = $3, state = $4, updated_at = NOW()
	WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, q, room.ID, normalizeCode(room.Code), string(room.Status), state)
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteRoom removes the room; players and messages go with it by cascade.
func (s *Store) DeleteRoom(ctx context.Context, id uuid.UUID) error {
	var affected int64
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreatePlayer inserts a player into an existing room.
func (s *Store) CreatePlayer(ctx context.Context, player *models.Player) error {
	state, err := json.Marshal(player)
	if err != nil {
		return fmt.Errorf("marshal player: %w", err)
	}
	q := `
	INSERT INTO room_players (id, room_id, joined_at, state)
	VALUES ($1, $2, $3, $4)
	`
	_, err = s.pool.Exec(ctx, q, player.ID, player.RoomID, player.JoinedAt, state)
	if isPgError(err, pgForeignKeyViolation) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert player: %w", err)
	}
	return nil
}

func decodePlayer(state []byte) (*models.Player, error) {
	var p models.Player
	if err := json.Unmarshal(state, &p); err != nil {
		return nil, fmt.Errorf("unmarshal player: %w", err)
	}
	if p.Hand == nil {
		p.Hand = []models.Card{}
	}
	return &p, nil
}

// GetPlayer fetches a player by id.
func (s *Store) GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	var state []byte
	err := s.pool.QueryRow(ctx, `SELECT state FROM room_players WHERE id = $1`, id).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get player: %w", err)
	}
	return decodePlayer(state)
}

// GetPlayersByRoom lists every player record in a room.
func (s *Store) GetPlayersByRoom(ctx context.Context, roomID uuid.UUID) ([]*models.Player, error) {
	rows, err := s.pool.Query(ctx, `SELECT state FROM room_players WHERE room_id = $1`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var out []*models.Player
	for rows.Next() {
		var state []byte
		if err := rows.Scan(&state); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		p, err := decodePlayer(state)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	store.SortPlayers(out)
	return out, nil
}

// UpdatePlayer overwrites an existing player's state.
func (s *Store) UpdatePlayer(ctx context.Context, player *models.Player) error {
	state, err := json.Marshal(player)
	if err != nil {
		return fmt.Errorf("marshal player: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE room_players SET state = $2 WHERE id = $1`, player.ID, state)
	if err != nil {
		return fmt.Errorf("update player: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeletePlayer hard-deletes a player. Only ghost duplicates are ever removed this way.
func (s *Store) DeletePlayer(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM room_players WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete player: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AppendMessage adds a message to a room's log.
func (s *Store) AppendMessage(ctx context.Context, msg *models.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	q := `
	INSERT INTO room_messages (id, room_id, created_at, body)
	VALUES ($1, $2, $3, $4)
	`
	_, err = s.pool.Exec(ctx, q, msg.ID, msg.RoomID, msg.CreatedAt, body)
	if isPgError(err, pgForeignKeyViolation) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// RecentMessages returns the newest limit messages, oldest first.
func (s *Store) RecentMessages(ctx context.Context, roomID uuid.UUID, limit int) ([]*models.Message, error) {
	q := `
	SELECT body FROM room_messages
	WHERE room_id = $1
	ORDER BY created_at DESC, id DESC
	LIMIT $2
	`
	if limit <= 0 {
		limit = math.MaxInt32
	}
	rows, err := s.pool.Query(ctx, q, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		var m models.Message
		if err := json.Unmarshal(body, &m); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
