package handlers

import (
	"hokhau-ai/internal/dto"
	"hokhau-ai/pkg/auth"
	"hokhau-ai/pkg/config"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AuthHandler issues tokens for the single administrative account.
type AuthHandler struct {
	jwtManager *auth.JWTManager
	admin      *config.AdminConfig
	logger     *zap.Logger
}

func NewAuthHandler(jwtManager *auth.JWTManager, admin *config.AdminConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		jwtManager: jwtManager,
		admin:      admin,
		logger:     logger,
	}
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if h.admin.PasswordHash == "" {
		h.logger.Warn("Login rejected: no admin password hash configured")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	if req.Username != h.admin.Username ||
		!auth.CheckPassword(req.Password, h.admin.PasswordHash) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	token, err := h.jwtManager.GenerateToken(req.Username, "admin")
	if err != nil {
		h.logger.Error("Failed to generate token", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Login failed",
		})
	}

	return c.JSON(dto.AuthResponse{
		Token:    token,
		Username: req.Username,
		Role:     "admin",
	})
}
