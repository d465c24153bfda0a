package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/tonvault/backend/internal/bridge"
	"github.com/tonvault/backend/internal/config"
	"github.com/tonvault/backend/internal/db"
	"github.com/tonvault/backend/internal/events"
	apphttp "github.com/tonvault/backend/internal/http"
	"github.com/tonvault/backend/internal/http/handlers"
	"github.com/tonvault/backend/internal/repositories"
	"github.com/tonvault/backend/internal/services"
	"github.com/tonvault/backend/internal/ton"
	"github.com/tonvault/backend/internal/tonconnect"
	"github.com/tonvault/backend/internal/walletindex"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	keyRepo := repositories.NewKeyRepo(pool)
	walletRepo := repositories.NewWalletRepo(pool)
	sessionRepo := repositories.NewSessionRepo(pool)
	lastSelectedRepo := repositories.NewLastSelectedRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Wallet index
	index := walletindex.New(keyRepo, walletRepo, ton.NewDeriver(cfg.TONNetwork), log)
	if err := index.Reload(ctx); err != nil {
		log.Fatal("failed to build wallet index", zap.Error(err))
	}

	// Services
	keyService := services.NewKeyService(keyRepo, walletRepo, index, publisher, log)
	bridgeClient := bridge.NewClient(cfg.BridgeURL, cfg.TONNetwork, log)
	establisher := tonconnect.NewEstablisher(
		index,
		tonconnect.NewManifestResolver(cfg.ManifestTimeout, log),
		sessionRepo,
		tonconnect.NewLastChoiceMemory(lastSelectedRepo, log),
		bridgeClient,
		log,
	)

	// Handlers
	authHandler := handlers.NewAuthHandler(cfg, log)
	keyHandler := handlers.NewKeyHandler(keyService, index, cfg.TONNetwork, log)
	connectHandler := handlers.NewConnectHandler(establisher, sessionRepo, publisher, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, authHandler, keyHandler, connectHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting wallet daemon", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
