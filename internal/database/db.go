// internal/database/db.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConnectDB opens a pgx pool for connStr and pings it.
func ConnectDB(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return pool, nil
}

// schema creates every table the service writes to. Room, player and message
// state lives in JSONB so the Go models stay the single source of shape.
const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id         UUID PRIMARY KEY,
	code       TEXT NOT NULL UNIQUE,
	status     TEXT NOT NULL,
	state      JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS room_players (
	id        UUID PRIMARY KEY,
	room_id   UUID NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	joined_at TIMESTAMPTZ NOT NULL,
	state     JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS room_players_room_idx ON room_players (room_id);

CREATE TABLE IF NOT EXISTS room_messages (
	id         UUID PRIMARY KEY,
	room_id    UUID NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL,
	body       JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS room_messages_room_idx ON room_messages (room_id, created_at);

CREATE TABLE IF NOT EXISTS room_actions (
	id              BIGSERIAL PRIMARY KEY,
	room_id         UUID NOT NULL,
	action_index    INT NOT NULL,
	actor_player_id UUID,
	action_type     TEXT NOT NULL,
	action_payload  JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS room_actions_room_idx ON room_actions (room_id, action_index);
`

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
