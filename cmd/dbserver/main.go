// Package main runs the database service: it dials the lobby, claims the
// database role, and serves persistence requests from a memory or postgres
// backed store.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/blockduel/backend/internal/config"
	"github.com/blockduel/backend/internal/dbserver"
	"github.com/blockduel/backend/internal/dbserver/memory"
	"github.com/blockduel/backend/internal/dbserver/postgres"
	"github.com/blockduel/backend/internal/observability"
	"github.com/blockduel/backend/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	store, err := newStore(cfg.Database, logger)
	if err != nil {
		logger.Fatal("initializing store", zap.Error(err))
	}

	logger.Info("starting database service",
		zap.String("lobby_addr", cfg.Database.LobbyAddr),
		zap.String("store", cfg.Database.Store),
	)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("dbserver", dbserver.NewService(cfg.Database, logger, store))

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("database service failed", zap.Error(err))
	}
	logger.Info("database service exited", zap.Duration("uptime", time.Since(start)))
}

func newStore(cfg config.DatabaseConfig, logger *zap.Logger) (dbserver.Store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		store, err := postgres.New(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		store, err := memory.New(memory.DefaultSnapshotPath(cfg.SnapshotPath), logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}
