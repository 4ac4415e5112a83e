// Package main runs the session router with its WebSocket and gRPC transports.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cory-johannsen/gamerunner/internal/config"
	"github.com/cory-johannsen/gamerunner/internal/frontend/websocket"
	"github.com/cory-johannsen/gamerunner/internal/game/dice"
	"github.com/cory-johannsen/gamerunner/internal/game/firstto20"
	"github.com/cory-johannsen/gamerunner/internal/game/registry"
	"github.com/cory-johannsen/gamerunner/internal/gameserver"
	"github.com/cory-johannsen/gamerunner/internal/observability"
	"github.com/cory-johannsen/gamerunner/internal/runner"
	"github.com/cory-johannsen/gamerunner/internal/scripting"
	"github.com/cory-johannsen/gamerunner/internal/server"
	"github.com/cory-johannsen/gamerunner/internal/storage/postgres"
	"github.com/cory-johannsen/gamerunner/internal/storage/sqlite"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, "gamerunner")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	tp, shutdownTracing, err := observability.SetupTracing(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal("initializing tracing", zap.Error(err))
	}

	// Load the game catalog
	catalogStart := time.Now()
	defs, err := registry.LoadCatalog(cfg.Games.Catalog)
	if err != nil {
		logger.Fatal("loading game catalog", zap.Error(err))
	}
	src := dice.NewCryptoSource()
	games, err := registry.Build(defs, map[string]registry.Builder{
		registry.EngineBuiltin: registry.Builtins(map[string]registry.Builder{
			firstto20.Name: firstto20.Builder(src, logger),
		}),
		registry.EngineLua: scripting.Builder(cfg.Games.ScriptRoot, src, logger),
	})
	if err != nil {
		logger.Fatal("building game registry", zap.Error(err))
	}
	logger.Info("game catalog loaded",
		zap.Int("games", games.Len()),
		zap.Duration("elapsed", time.Since(catalogStart)),
	)

	lifecycle := server.NewLifecycle(logger)

	opts := []runner.Option{
		runner.WithQueueSize(cfg.Runner.QueueSize),
		runner.WithResultTimeout(cfg.Runner.ResultTimeout),
		runner.WithTracerProvider(tp),
	}
	closeStore := func() {}
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		dbStart := time.Now()
		store, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Int("port", cfg.Database.Port),
			zap.String("database", cfg.Database.Name),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		opts = append(opts, runner.WithResultStore(store))
		closeStore = store.Close
		lifecycle.Add("postgres-health", server.NewContextService(func(ctx context.Context) error {
			return store.WatchHealth(ctx, 30*time.Second, logger)
		}))
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.Database.Path)
		if err != nil {
			logger.Fatal("opening result store", zap.Error(err))
		}
		logger.Info("result store opened", zap.String("path", cfg.Database.Path))
		opts = append(opts, runner.WithResultStore(store))
		closeStore = func() {
			if err := store.Close(); err != nil {
				logger.Warn("closing result store", zap.Error(err))
			}
		}
	default:
		logger.Info("result archiving disabled")
	}

	router := runner.New(games, logger, opts...)
	wsServer := websocket.NewServer(cfg.WebSocket, websocket.NewHandler(router, cfg.WebSocket, cfg.Runner.OutboxSize, logger), logger)
	grpcServer := gameserver.NewServer(router, cfg.GameServer, cfg.Runner.OutboxSize, logger)

	// Services stop in reverse order, so the router outlives its transports.
	lifecycle.Add("router", server.NewContextService(router.Run))
	if cfg.Runner.StatsInterval > 0 {
		lifecycle.Add("stats", server.NewContextService(func(ctx context.Context) error {
			return router.ReportStats(ctx, cfg.Runner.StatsInterval)
		}))
	}
	lifecycle.Add("websocket", &server.FuncService{
		StartFn: wsServer.ListenAndServe,
		StopFn:  wsServer.Stop,
	})
	lifecycle.Add("grpc", &server.FuncService{
		StartFn: grpcServer.ListenAndServe,
		StopFn:  grpcServer.Stop,
	})

	logger.Info("gamerunner initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("websocket_addr", fmt.Sprintf("%s%s", cfg.WebSocket.Addr(), cfg.WebSocket.Path)),
		zap.String("grpc_addr", cfg.GameServer.Addr()),
		zap.String("database_driver", cfg.Database.Driver),
	)

	runErr := lifecycle.Run(ctx)

	closeStore()
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		logger.Warn("flushing traces", zap.Error(err))
	}
	if runErr != nil {
		logger.Fatal("server error", zap.Error(runErr))
	}
}
