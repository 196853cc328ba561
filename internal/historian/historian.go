// internal/historian/historian.go
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/qrfun/qrfun-service/internal/config"
	"github.com/qrfun/qrfun-service/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Sink persists a batch of room actions.
type Sink interface {
	InsertRoomActions(ctx context.Context, records []models.RoomAction) error
}

// Service drains the Redis action queue into a Sink in batches.
type Service struct {
	rdb        redis.UniversalClient
	sink       Sink
	queue      string
	batchSize  int
	flushDelay time.Duration
	log        *logrus.Logger

	batchMu   sync.Mutex
	batch     []models.RoomAction
	lastFlush time.Time
}

// New builds a Service from the historian config.
func New(rdb redis.UniversalClient, sink Sink, cfg config.Historian, logger *logrus.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = 500 * time.Millisecond
	}
	return &Service{
		rdb:        rdb,
		sink:       sink,
		queue:      cfg.QueueName,
		batchSize:  cfg.BatchSize,
		flushDelay: cfg.FlushDelay,
		log:        logger,
		batch:      make([]models.RoomAction, 0, cfg.BatchSize),
		lastFlush:  time.Now(),
	}
}

// Run pops records until ctx is cancelled, then flushes whatever is buffered.
func (s *Service) Run(ctx context.Context) error {
	s.log.Infof("historian reading from %q", s.queue)
	defer func() {
		// ctx is already done; give the final flush its own deadline.
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Flush(flushCtx); err != nil {
			s.log.Errorf("final flush: %v", err)
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		res, err := s.rdb.BLPop(ctx, s.flushDelay, s.queue).Result()
		switch {
		case err == nil && len(res) == 2:
			// res[0] is the queue name and res[1] the payload.
			var record models.RoomAction
			if err := json.Unmarshal([]byte(res[1]), &record); err != nil {
				s.log.Warnf("invalid action record: %v", err)
				break
			}
			s.appendToBatch(ctx, record)
		case errors.Is(err, redis.Nil):
			// timed out with nothing queued
		case ctx.Err() != nil:
			return nil
		case err != nil:
			s.log.Errorf("BLPop: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.flushDelay):
			}
		}

		if s.due() {
			if err := s.Flush(ctx); err != nil {
				s.log.Errorf("flush: %v", err)
			}
		}
	}
}

func (s *Service) appendToBatch(ctx context.Context, record models.RoomAction) {
	s.batchMu.Lock()
	s.batch = append(s.batch, record)
	full := len(s.batch) >= s.batchSize
	s.batchMu.Unlock()

	if full {
		if err := s.Flush(ctx); err != nil {
			s.log.Errorf("flush: %v", err)
		}
	}
}

func (s *Service) due() bool {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return len(s.batch) > 0 && time.Since(s.lastFlush) >= s.flushDelay
}

// Flush writes the buffered batch. On failure the records are put back at the
// front of the buffer so the next flush retries them.
func (s *Service) Flush(ctx context.Context) error {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.lastFlush = time.Now()
		s.batchMu.Unlock()
		return nil
	}
	batchCopy := make([]models.RoomAction, len(s.batch))
	copy(batchCopy, s.batch)
	s.batch = s.batch[:0]
	s.lastFlush = time.Now()
	s.batchMu.Unlock()

	if err := s.sink.InsertRoomActions(ctx, batchCopy); err != nil {
		s.batchMu.Lock()
		s.batch = append(batchCopy, s.batch...)
		s.batchMu.Unlock()
		return fmt.Errorf("insert %d actions: %w", len(batchCopy), err)
	}
	s.log.Debugf("flushed %d actions", len(batchCopy))
	return nil
}
