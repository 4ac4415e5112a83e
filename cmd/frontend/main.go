// Package main provides the Telnet frontend. Each client is bridged to the
// gamerunner over a gRPC stream.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cory-johannsen/gamerunner/internal/config"
	"github.com/cory-johannsen/gamerunner/internal/frontend/handlers"
	"github.com/cory-johannsen/gamerunner/internal/frontend/telnet"
	"github.com/cory-johannsen/gamerunner/internal/gameserver"
	"github.com/cory-johannsen/gamerunner/internal/observability"
	"github.com/cory-johannsen/gamerunner/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, "frontend")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting telnet frontend",
		zap.String("telnet_addr", cfg.Telnet.Addr()),
		zap.String("gameserver_addr", cfg.GameServer.Addr()),
	)

	client, err := gameserver.Dial(cfg.GameServer.Addr())
	if err != nil {
		logger.Fatal("creating game server client", zap.Error(err))
	}
	defer client.Close()

	bridge := handlers.NewBridge(handlers.NewGRPCConnector(client), logger)
	acceptor := telnet.NewAcceptor(cfg.Telnet, bridge, logger)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("telnet", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn:  acceptor.Stop,
	})

	logger.Info("frontend initialized", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
