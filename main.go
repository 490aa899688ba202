package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"auctionlane/internal/config"
	"auctionlane/internal/http/http_server"
	"auctionlane/internal/notify"
	"auctionlane/internal/notify/redisnotify"
	"auctionlane/internal/redis/redis_client"
	"auctionlane/internal/scheduler"
	"auctionlane/internal/services/engine"
	"auctionlane/internal/store"
	"auctionlane/internal/store/memstore"
	"auctionlane/internal/store/pgstore"
	"auctionlane/internal/ws"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Persistence: Postgres by default, in-memory for local runs
	var users store.UserStore
	var auctions store.AuctionStore
	switch cfg.StoreDriver {
	case "memory":
		mem := memstore.New()
		users, auctions = mem, mem
	default:
		db, err := pgstore.Open(cfg.PostgresHost, cfg.PostgresPort,
			cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
		if err != nil {
			Log.Fatal("pg-open", zap.Error(err))
		}
		defer db.Close()
		pg := pgstore.New(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			Log.Fatal("pg-schema", zap.Error(err))
		}
		users, auctions = pg, pg
	}

	// 4. Redis: event fan-out between instances
	redisClient, err := redis_client.New(cfg.RedisHost, int(cfg.RedisPort))
	if err != nil {
		Log.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()

	// 5. Engine with log + Redis notification sinks
	notifier := notify.Multi{notify.LogSink{}, redisnotify.NewPublisher(redisClient)}
	eng := engine.New(users, auctions, notifier, cfg.AdminIDs)

	// 6. Background: lifecycle scheduler (expiry + queued activation)
	sched := scheduler.New(eng, cfg.SchedulerInterval, cfg.AuctionQueueDelay)
	go sched.Run(ctx)

	// 7. WebSockets hub + Redis fan-out
	hub := ws.NewHub()
	go ws.SubscribeAuctionEvents(ctx, redisClient, hub)
	wsSrv := ws.NewServer(hub, eng)

	// 8. HTTP + WS server
	httpServer := http_server.NewHttpServer(cfg.HttpServerPort, wsSrv, eng)
	go func() {
		<-ctx.Done()
		_ = httpServer.Dispose()
	}()
	if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
}
