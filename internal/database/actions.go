// internal/database/actions.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qrfun/qrfun-service/internal/models"
)

// ActionWriter persists batches of room actions.
type ActionWriter struct {
	pool *pgxpool.Pool
}

// NewActionWriter wraps an open pool.
func NewActionWriter(pool *pgxpool.Pool) *ActionWriter {
	return &ActionWriter{pool: pool}
}

// InsertRoomActions writes every record in a single transaction.
func (w *ActionWriter) InsertRoomActions(ctx context.Context, records []models.RoomAction) error {
	q := `
	INSERT INTO room_actions (
		room_id, action_index, actor_player_id, action_type, action_payload, created_at
	) VALUES ($1, $2, $3, $4, $5, $6)
	`
	return pgx.BeginTxFunc(ctx, w.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range records {
			payload, err := json.Marshal(rec.ActionPayload)
			if err != nil {
				return fmt.Errorf("marshal payload of action %d: %w", rec.ActionIndex, err)
			}
			var actor *uuid.UUID
			if rec.ActorPlayerID != uuid.Nil {
				a := rec.ActorPlayerID
				actor = &a
			}
			ts := time.UnixMilli(rec.Timestamp).UTC()
			if _, err := tx.Exec(ctx, q, rec.RoomID, rec.ActionIndex, actor, rec.ActionType, payload, ts); err != nil {
				return fmt.Errorf("insert action %d for room %s: %w", rec.ActionIndex, rec.RoomID, err)
			}
		}
		return nil
	})
}
