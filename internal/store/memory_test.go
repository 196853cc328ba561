// internal/store/memory_test.go
package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qrfun/qrfun-service/internal/models"
	"github.com/qrfun/qrfun-service/internal/store"
	"github.com/qrfun/qrfun-service/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return store.NewMemoryStore() })
}

func TestMemoryStoreCodeIsCaseInsensitive(t *testing.T) {
	s := store.NewMemoryStore()
	room := models.NewRoom("ABC123", time.Now())
	require.NoError(t, s.CreateRoom(context.Background(), room))

	got, err := s.GetRoomByCode(context.Background(), " abc123 ")
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)
}

func TestMemoryStoreDeleteRoomCascades(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	room := models.NewRoom("CASCAD", time.Now())
	require.NoError(t, s.CreateRoom(ctx, room))
	p := models.NewPlayer(room.ID, "ghost", time.Now())
	require.NoError(t, s.CreatePlayer(ctx, p))

	require.NoError(t, s.DeleteRoom(ctx, room.ID))
	_, err := s.GetPlayer(ctx, p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryStoreRejectsOrphans(t *testing.T) {
	s := store.NewMemoryStore()
	p := models.NewPlayer(uuid.New(), "nobody", time.Now())
	assert.ErrorIs(t, s.CreatePlayer(context.Background(), p), store.ErrNotFound)
}
