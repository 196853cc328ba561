// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/qrfun/qrfun-service/internal/config"
	"github.com/qrfun/qrfun-service/internal/models"
	"github.com/qrfun/qrfun-service/internal/protocol"
	"github.com/qrfun/qrfun-service/internal/store"
	"github.com/sirupsen/logrus"
)

// Hub is the engine's view of live connections: presence for rendering and
// delivery of frames. session.Manager implements it.
type Hub interface {
	IsOnline(playerID uuid.UUID) bool
	HasConnection(playerID uuid.UUID) bool
	ObserverCount(roomID uuid.UUID) int
	ActiveRooms() []uuid.UUID
	BroadcastRoom(roomID uuid.UUID, render func(viewer *uuid.UUID) ([]byte, error))
	SendRoom(roomID uuid.UUID, data []byte)
	SendToPlayer(playerID uuid.UUID, data []byte)
	DisconnectPlayer(playerID uuid.UUID, code int, reason string)
}

// ActionLog receives a record of every accepted action.
type ActionLog interface {
	PublishRoomAction(ctx context.Context, record models.RoomAction) error
}

// TokenIssuer mints a player token; used when a headless room spawns its successor.
type TokenIssuer func(playerID, roomID uuid.UUID) (string, error)

const (
	codeLength   = 6
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeAttempts = 8
	maxNickname  = 24
)

// Engine routes actions to per-room Tables. Rooms are independent: each
// Table serializes its own mutations and rooms run in parallel.
type Engine struct {
	store   store.Store
	hub     Hub
	cfg     config.Engine
	log     *logrus.Logger
	actions ActionLog
	issuer  TokenIssuer
	now     func() time.Time

	mu     sync.Mutex
	tables map[uuid.UUID]*Table
}

// New builds an Engine over st, delivering frames through hub.
func New(st store.Store, hub Hub, cfg config.Engine, logger *logrus.Logger) *Engine {
	return &Engine{
		store:  st,
		hub:    hub,
		cfg:    cfg,
		log:    logger,
		now:    time.Now,
		tables: make(map[uuid.UUID]*Table),
	}
}

// SetActionLog enables publishing of accepted actions.
func (e *Engine) SetActionLog(l ActionLog) { e.actions = l }

// SetTokenIssuer lets spawned rooms hand their new host a token.
func (e *Engine) SetTokenIssuer(fn TokenIssuer) { e.issuer = fn }

// SetClock replaces the time source used for stored timestamps.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

func (e *Engine) table(roomID uuid.UUID) *Table {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tables[roomID]
	if !ok {
		t = &Table{roomID: roomID, e: e}
		e.tables[roomID] = t
	}
	return t
}

func (e *Engine) dropTable(roomID uuid.UUID) {
	e.mu.Lock()
	delete(e.tables, roomID)
	e.mu.Unlock()
}

// Dispatch applies a player's action to their room. Rejections come back as
// *ActionError and leave the room untouched.
func (e *Engine) Dispatch(ctx context.Context, playerID, roomID uuid.UUID, action protocol.Action) error {
	t := e.table(roomID)
	return t.mutate(ctx, &playerID, string(action.Type()), func(s *state) error {
		return s.apply(action)
	})
}

// PlayerJoined runs the room side of join_room once the connection is bound.
func (e *Engine) PlayerJoined(ctx context.Context, playerID, roomID uuid.UUID) error {
	t := e.table(roomID)
	return t.mutate(ctx, &playerID, "player_joined", func(s *state) error {
		return s.join()
	})
}

// PlayerDisconnected runs when the last connection of a player drops.
func (e *Engine) PlayerDisconnected(ctx context.Context, playerID, roomID uuid.UUID) error {
	t := e.table(roomID)
	return t.mutate(ctx, &playerID, "player_disconnected", func(s *state) error {
		return s.disconnect()
	})
}

// Sync rebroadcasts the current state of roomID without changing it.
func (e *Engine) Sync(ctx context.Context, roomID uuid.UUID) error {
	return e.table(roomID).sync(ctx)
}

// Run rebroadcasts every room with live connections each resync interval
// until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if e.cfg.ResyncInterval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(e.cfg.ResyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, roomID := range e.hub.ActiveRooms() {
				if err := e.Sync(ctx, roomID); err != nil && !errors.Is(err, ErrRoomNotFound) {
					e.log.WithField("room", roomID).Warnf("resync failed: %v", err)
				}
			}
		}
	}
}

// Close stops every pending timer.
func (e *Engine) Close() {
	e.mu.Lock()
	tables := make([]*Table, 0, len(e.tables))
	for _, t := range e.tables {
		tables = append(tables, t)
	}
	e.mu.Unlock()
	for _, t := range tables {
		t.mu.Lock()
		t.stopTimers()
		t.mu.Unlock()
	}
}

func normalizeNickname(nickname string) (string, error) {
	n := strings.TrimSpace(nickname)
	if n == "" || utf8.RuneCountInString(n) > maxNickname {
		return "", ErrInvalidNickname
	}
	return n, nil
}

func randomCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}

// createRoomWithHost stores a new waiting room whose host sits at seat 0.
func (e *Engine) createRoomWithHost(ctx context.Context, nickname string) (*models.Room, *models.Player, error) {
	now := e.now()
	for attempt := 0; attempt < codeAttempts; attempt++ {
		room := models.NewRoom(randomCode(), now)
		host := models.NewPlayer(room.ID, nickname, now)
		host.SitAt(0)
		room.HostPlayerID = &host.ID

		err := e.store.CreateRoom(ctx, room)
		if errors.Is(err, store.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("create room: %w", err)
		}
		if err := e.store.CreatePlayer(ctx, host); err != nil {
			_ = e.store.DeleteRoom(ctx, room.ID)
			return nil, nil, fmt.Errorf("create host: %w", err)
		}
		return room, host, nil
	}
	return nil, nil, fmt.Errorf("create room: %w", store.ErrCodeTaken)
}

// CreateRoom opens a new room with nickname as its seated host.
func (e *Engine) CreateRoom(ctx context.Context, nickname string) (*models.Room, *models.Player, error) {
	n, err := normalizeNickname(nickname)
	if err != nil {
		return nil, nil, err
	}
	room, host, err := e.createRoomWithHost(ctx, n)
	if err != nil {
		return nil, nil, err
	}
	e.log.WithFields(logrus.Fields{"room": room.ID, "code": room.Code, "player": host.ID}).Info("room created")
	return room, host, nil
}

// AddPlayer creates a player in the room with the given join code. The player
// is a spectator unless nobody is seated yet, in which case they take the
// lowest free seat.
func (e *Engine) AddPlayer(ctx context.Context, code, nickname string) (*models.Room, *models.Player, error) {
	n, err := normalizeNickname(nickname)
	if err != nil {
		return nil, nil, err
	}
	room, err := e.store.GetRoomByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lookup room: %w", err)
	}

	var created *models.Player
	t := e.table(room.ID)
	err = t.mutate(ctx, nil, "player_added", func(s *state) error {
		p := models.NewPlayer(s.room.ID, n, s.now)
		if s.seatedCount() == 0 && s.room.Status == models.StatusWaiting {
			p.SitAt(0)
		}
		s.addPlayer(p)
		created = p
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return room, created, nil
}
