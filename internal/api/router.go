package api

import (
	"hokhau-ai/internal/api/handlers"
	"hokhau-ai/pkg/auth"
	"hokhau-ai/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

func SetupRouter(
	chatHandler *handlers.ChatHandler,
	kbHandler *handlers.KBHandler,
	authHandler *handlers.AuthHandler,
	jwtManager *auth.JWTManager,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(logger.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Auth routes (public)
	app.Post("/auth/login", authHandler.Login)

	// Chat is public: the frontend talks to it without a session
	api := app.Group("/api/v1")
	api.Post("/chat", chatHandler.Chat)

	// Protected admin routes
	kbGroup := api.Group("/kb", middleware.AuthMiddleware(jwtManager, appLogger))
	kbGroup.Get("/status", kbHandler.Status)
	kbGroup.Post("/reload", kbHandler.Reload)
	kbGroup.Post("/learn", kbHandler.Learn)

	learning := api.Group("/learning", middleware.AuthMiddleware(jwtManager, appLogger))
	learning.Get("/status", kbHandler.LearningStatus)

	return app
}
