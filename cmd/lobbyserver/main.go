// Package main runs the lobby server: the TCP front door that multiplexes
// client, database, and game-server connections.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/blockduel/backend/internal/config"
	"github.com/blockduel/backend/internal/lobby"
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

	logger.Info("starting lobby server",
		zap.String("addr", cfg.Lobby.Addr()),
		zap.String("game_server_addr", cfg.Lobby.GameServerAddr),
	)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("lobby", lobby.NewServer(cfg.Lobby, logger))

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("lobby server failed", zap.Error(err))
	}
	logger.Info("lobby server exited", zap.Duration("uptime", time.Since(start)))
}
