package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/tonvault/backend/internal/config"
	"github.com/tonvault/backend/internal/http/handlers"
	"github.com/tonvault/backend/internal/middleware"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	authHandler *handlers.AuthHandler,
	keyHandler *handlers.KeyHandler,
	connectHandler *handlers.ConnectHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Auth (public)
	api.Post("/auth/token", authHandler.Login)

	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// Keys and wallets
	protected.Get("/keys", keyHandler.ListKeys)
	protected.Get("/keys/search", keyHandler.ListKeys)
	protected.Post("/keys/import", keyHandler.ImportKey)
	protected.Post("/keys/watch", keyHandler.SaveWatchOnly)
	protected.Get("/keys/:id", keyHandler.GetKey)
	protected.Put("/keys/:id/name", keyHandler.RenameKey)
	protected.Delete("/keys/:id", keyHandler.DeleteKey)
	protected.Get("/keys/:id/wallets", keyHandler.ListWallets)
	protected.Post("/keys/:id/wallets", keyHandler.CreateWallet)
	protected.Put("/wallets/:id/name", keyHandler.RenameWallet)
	protected.Delete("/wallets/:id", keyHandler.DeleteWallet)

	// TON Connect
	protected.Post("/connect/open", connectHandler.Open)
	protected.Get("/connect/:id", connectHandler.GetAttempt)
	protected.Post("/connect/:id/approve", connectHandler.Approve)
	protected.Post("/connect/:id/close", connectHandler.Close)

	// Sessions
	protected.Get("/sessions", connectHandler.ListSessions)
	protected.Delete("/sessions/:id", connectHandler.DeleteSession)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
