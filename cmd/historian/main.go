// cmd/historian/main.go is the asynchronous historian: it pops room action
// records from the Redis queue and persists them to Postgres in batches.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/qrfun/qrfun-service/internal/cache"
	"github.com/qrfun/qrfun-service/internal/config"
	"github.com/qrfun/qrfun-service/internal/database"
	"github.com/qrfun/qrfun-service/internal/historian"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.ConnectDB(ctx, cfg.Postgres.ConnString())
	if err != nil {
		logger.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatalf("migrate: %v", err)
	}

	rdb, err := cache.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	svc := historian.New(rdb, database.NewActionWriter(pool), cfg.Historian, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })

	logger.Info("qrfun-historian started")
	if err := g.Wait(); err != nil {
		logger.Errorf("historian exited: %v", err)
	}
	logger.Info("qrfun-historian shutdown complete")
}
