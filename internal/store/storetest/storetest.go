// Package storetest holds a behavioural suite every store.Store implementation must pass.
package storetest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qrfun/qrfun-service/internal/models"
	"github.com/qrfun/qrfun-service/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises the persistence contract against stores built by newStore.
// Each subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("RoomLifecycle", func(t *testing.T) { testRoomLifecycle(t, newStore(t)) })
	t.Run("CodeUniqueness", func(t *testing.T) { testCodeUniqueness(t, newStore(t)) })
	t.Run("PlayerLifecycle", func(t *testing.T) { testPlayerLifecycle(t, newStore(t)) })
	t.Run("Messages", func(t *testing.T) { testMessages(t, newStore(t)) })
	t.Run("NoAliasing", func(t *testing.T) { testNoAliasing(t, newStore(t)) })
}

func newRoom() *models.Room {
	now := time.Now().UTC().Truncate(time.Millisecond)
	code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return models.NewRoom(code, now)
}

func testRoomLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	room := newRoom()
	room.DrawPile = []models.Card{models.NumberCard(models.ColorRed, 4)}
	room.PositionHands[2] = []models.Card{models.WildCard(models.KindWild)}
	require.NoError(t, s.CreateRoom(ctx, room))

	got, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.Code, got.Code)
	assert.Equal(t, models.StatusWaiting, got.Status)
	require.Len(t, got.PositionHands[2], 1)
	assert.Equal(t, models.KindWild, got.PositionHands[2][0].Kind)

	byCode, err := s.GetRoomByCode(ctx, room.Code)
	require.NoError(t, err)
	assert.Equal(t, room.ID, byCode.ID)

	got.Status = models.StatusPlaying
	got.PendingDrawCount = 4
	require.NoError(t, s.UpdateRoom(ctx, got))
	again, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPlaying, again.Status)
	assert.Equal(t, 4, again.PendingDrawCount)

	require.NoError(t, s.DeleteRoom(ctx, room.ID))
	_, err = s.GetRoom(ctx, room.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetRoomByCode(ctx, room.Code)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, s.UpdateRoom(ctx, room), store.ErrNotFound)
}

func testCodeUniqueness(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := newRoom()
	require.NoError(t, s.CreateRoom(ctx, a))
	b := models.NewRoom(a.Code, time.Now())
	assert.ErrorIs(t, s.CreateRoom(ctx, b), store.ErrCodeTaken)
}

func testPlayerLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	room := newRoom()
	require.NoError(t, s.CreateRoom(ctx, room))

	base := time.Now().UTC().Truncate(time.Millisecond)
	alice := models.NewPlayer(room.ID, "alice", base)
	bob := models.NewPlayer(room.ID, "bob", base.Add(time.Second))
	require.NoError(t, s.CreatePlayer(ctx, bob))
	require.NoError(t, s.CreatePlayer(ctx, alice))

	players, err := s.GetPlayersByRoom(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.Equal(t, "alice", players[0].Nickname, "ordered by join time")
	assert.Equal(t, "bob", players[1].Nickname)

	alice.SitAt(1)
	alice.Hand = []models.Card{models.NumberCard(models.ColorBlue, 0)}
	require.NoError(t, s.UpdatePlayer(ctx, alice))
	got, err := s.GetPlayer(ctx, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Seat)
	assert.Equal(t, 1, *got.Seat)
	assert.False(t, got.IsSpectator)
	require.Len(t, got.Hand, 1)
	assert.Equal(t, 0, got.Hand[0].Value())

	require.NoError(t, s.DeletePlayer(ctx, bob.ID))
	_, err = s.GetPlayer(ctx, bob.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	players, err = s.GetPlayersByRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, players, 1)

	other := newRoom()
	require.NoError(t, s.CreateRoom(ctx, other))
	none, err := s.GetPlayersByRoom(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testMessages(t *testing.T, s store.Store) {
	ctx := context.Background()
	room := newRoom()
	require.NoError(t, s.CreateRoom(ctx, room))

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 25; i++ {
		msg := &models.Message{
			ID:        uuid.New(),
			RoomID:    room.ID,
			Kind:      models.MessageChat,
			Text:      fmt.Sprintf("msg-%02d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}
		require.NoError(t, s.AppendMessage(ctx, msg))
	}

	recent, err := s.RecentMessages(ctx, room.ID, models.RecentMessageLimit)
	require.NoError(t, err)
	require.Len(t, recent, models.RecentMessageLimit)
	assert.Equal(t, "msg-05", recent[0].Text, "oldest of the window first")
	assert.Equal(t, "msg-24", recent[len(recent)-1].Text)
}

func testNoAliasing(t *testing.T, s store.Store) {
	ctx := context.Background()
	room := newRoom()
	require.NoError(t, s.CreateRoom(ctx, room))
	room.Status = models.StatusFinished

	got, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, got.Status, "mutating the caller's copy must not leak into the store")

	got.DrawPile = append(got.DrawPile, models.NumberCard(models.ColorRed, 1))
	again, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Empty(t, again.DrawPile)
}
