// internal/store/store.go
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/qrfun/qrfun-service/internal/models"
)

var (
	// ErrNotFound is returned when a room, player or message does not exist.
	ErrNotFound = errors.New("not found")
	// ErrCodeTaken is returned by CreateRoom when the join code is already in use.
	ErrCodeTaken = errors.New("room code already in use")
)

// RoomStore persists rooms, addressable by id and by join code.
type RoomStore interface {
	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*models.Room, error)
	UpdateRoom(ctx context.Context, room *models.Room) error
	DeleteRoom(ctx context.Context, id uuid.UUID) error
}

// PlayerStore persists players.
type PlayerStore interface {
	CreatePlayer(ctx context.Context, player *models.Player) error
	GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error)
	GetPlayersByRoom(ctx context.Context, roomID uuid.UUID) ([]*models.Player, error)
	UpdatePlayer(ctx context.Context, player *models.Player) error
	DeletePlayer(ctx context.Context, id uuid.UUID) error
}

// MessageStore keeps an append-only chat log per room.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *models.Message) error
	// RecentMessages returns up to limit messages, oldest first.
	RecentMessages(ctx context.Context, roomID uuid.UUID, limit int) ([]*models.Message, error)
}

// Store is everything the engine needs from persistence. Each call is atomic
// for the single entity it touches; nothing spans multiple rows.
type Store interface {
	RoomStore
	PlayerStore
	MessageStore
}
