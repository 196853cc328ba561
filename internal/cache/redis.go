// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/qrfun/qrfun-service/internal/config"
	"github.com/qrfun/qrfun-service/internal/models"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis opens a client for cfg and pings it.
func ConnectRedis(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// ActionLog pushes accepted room actions onto the historian queue.
type ActionLog struct {
	rdb   redis.UniversalClient
	queue string
}

// NewActionLog returns an ActionLog writing to the named Redis list.
func NewActionLog(rdb redis.UniversalClient, queue string) *ActionLog {
	return &ActionLog{rdb: rdb, queue: queue}
}

// PublishRoomAction serializes record to JSON and RPUSHes it onto the queue.
func (l *ActionLog) PublishRoomAction(ctx context.Context, record models.RoomAction) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal RoomAction: %w", err)
	}
	if err := l.rdb.RPush(ctx, l.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", l.queue, err)
	}
	return nil
}
