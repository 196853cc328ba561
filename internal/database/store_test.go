// internal/database/store_test.go
package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qrfun/qrfun-service/internal/models"
	"github.com/qrfun/qrfun-service/internal/store"
	"github.com/qrfun/qrfun-service/internal/store/storetest"
	"github.com/stretchr/testify/require"
)

// These tests need a disposable Postgres; point PG_TEST_URL at one to run them.
func testPool(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("PG_TEST_URL")
	if url == "" {
		t.Skip("PG_TEST_URL not set")
	}
	ctx := context.Background()
	pool, err := ConnectDB(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	return NewStore(pool)
}

func TestPostgresStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return testPool(t) })
}

func TestInsertRoomActions(t *testing.T) {
	s := testPool(t)
	w := NewActionWriter(s.pool)
	roomID := uuid.New()
	records := []models.RoomAction{
		{RoomID: roomID, ActionIndex: 1, ActionType: "start_game", Timestamp: time.Now().UnixMilli()},
		{RoomID: roomID, ActionIndex: 2, ActorPlayerID: uuid.New(), ActionType: "play_card",
			ActionPayload: map[string]interface{}{"cardIndex": 3}, Timestamp: time.Now().UnixMilli()},
	}
	require.NoError(t, w.InsertRoomActions(context.Background(), records))

	var n int
	err := s.pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM room_actions WHERE room_id = $1`, roomID).Scan(&n)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
