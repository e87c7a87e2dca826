// Package main runs the game session coordinator: a single-match server that
// waits for two players handed off by the lobby and drives the match loop.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/blockduel/backend/internal/config"
	"github.com/blockduel/backend/internal/gameserver"
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

	coordinator, err := gameserver.NewCoordinator(cfg.GameServer, logger)
	if err != nil {
		logger.Fatal("initializing coordinator", zap.Error(err))
	}

	logger.Info("starting game server",
		zap.String("host", cfg.GameServer.Host),
		zap.Int("port", cfg.GameServer.Port),
		zap.Duration("tick_interval", cfg.GameServer.TickInterval),
	)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("gameserver", coordinator)

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("game server failed", zap.Error(err))
	}
	logger.Info("game server exited", zap.Duration("uptime", time.Since(start)))
}
