// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/qrfun/qrfun-service/internal/auth"
	"github.com/qrfun/qrfun-service/internal/cache"
	"github.com/qrfun/qrfun-service/internal/config"
	"github.com/qrfun/qrfun-service/internal/database"
	"github.com/qrfun/qrfun-service/internal/engine"
	"github.com/qrfun/qrfun-service/internal/handlers"
	"github.com/qrfun/qrfun-service/internal/session"
	"github.com/qrfun/qrfun-service/internal/store"
	"github.com/redis/go-redis/v9"
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

	var (
		st  store.Store
		rdb *redis.Client
	)
	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := database.ConnectDB(ctx, cfg.Postgres.ConnString())
		if err != nil {
			logger.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatalf("migrate: %v", err)
		}
		st = database.NewStore(pool)
	case config.BackendRedis:
		if rdb, err = cache.ConnectRedis(ctx, cfg.Redis); err != nil {
			logger.Fatalf("redis: %v", err)
		}
		st = cache.NewStore(rdb, cfg.Redis.KeyPrefix)
	default:
		st = store.NewMemoryStore()
	}
	logger.Infof("store backend: %s", cfg.Backend)

	mgr := session.NewManager(st, cfg.Engine.LivenessWindow, logger)
	eng := engine.New(st, mgr, cfg.Engine, logger)
	defer eng.Close()

	if cfg.Historian.Enabled {
		if rdb == nil {
			if rdb, err = cache.ConnectRedis(ctx, cfg.Redis); err != nil {
				logger.Fatalf("redis: %v", err)
			}
		}
		eng.SetActionLog(cache.NewActionLog(rdb, cfg.Historian.QueueName))
		logger.Infof("publishing room actions to %s", cfg.Historian.QueueName)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	signer, err := auth.NewSigner(cfg.Auth.TokenTTL)
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}
	eng.SetTokenIssuer(signer.Issue)

	srv := &handlers.Server{
		Engine:         eng,
		Sessions:       mgr,
		Store:          st,
		Signer:         signer,
		Log:            logger,
		AllowedOrigins: cfg.AllowedOrigins,
		AuthRequired:   cfg.Auth.Required,
	}
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Running on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return mgr.RunSweeper(gctx, cfg.Engine.LivenessWindow) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("server exited: %v", err)
	}
	logger.Info("qrfun-server shutdown complete")
}
