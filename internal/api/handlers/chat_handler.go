package handlers

import (
	"strings"
	"unicode/utf8"

	"hokhau-ai/internal/dto"
	"hokhau-ai/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const maxMessageLength = 2000

type ChatHandler struct {
	chatService *service.ChatService
	logger      *zap.Logger
}

func NewChatHandler(chatService *service.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      logger,
	}
}

// Chat resolves one user message through the response pipeline.
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message is required",
		})
	}
	if utf8.RuneCountInString(message) > maxMessageLength {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message is too long",
		})
	}

	response, source := h.chatService.ProcessMessage(c.Context(), message, req.Context)
	return c.JSON(dto.ChatResponse{
		Response: response,
		Source:   source,
	})
}
