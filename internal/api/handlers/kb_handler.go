package handlers

import (
	"hokhau-ai/internal/kb"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// KBHandler exposes the administrative knowledge-store endpoints: status,
// manual reload and manual learning runs.
type KBHandler struct {
	store      *kb.Store
	embCache   *kb.EmbeddingCache
	reconciler *kb.Reconciler
	learner    *kb.Learner
	logger     *zap.Logger
}

func NewKBHandler(
	store *kb.Store,
	embCache *kb.EmbeddingCache,
	reconciler *kb.Reconciler,
	learner *kb.Learner,
	logger *zap.Logger,
) *KBHandler {
	return &KBHandler{
		store:      store,
		embCache:   embCache,
		reconciler: reconciler,
		learner:    learner,
		logger:     logger,
	}
}

// Status reports store, embedding cache and learner diagnostics.
func (h *KBHandler) Status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"store": h.store.Status(),
		"embedding_cache": fiber.Map{
			"enabled":    h.embCache.Enabled(),
			"size":       h.embCache.Size(),
			"generation": h.embCache.Generation(),
		},
		"learning": h.learner.Status(),
	})
}

// LearningStatus reports auto-learner diagnostics only.
func (h *KBHandler) LearningStatus(c *fiber.Ctx) error {
	return c.JSON(h.learner.Status())
}

// Reload triggers a synchronous full reload of the knowledge store.
func (h *KBHandler) Reload(c *fiber.Ctx) error {
	username, _ := c.Locals("username").(string)
	h.logger.Info("Manual knowledge reload requested", zap.String("username", username))

	result := h.reconciler.Reload(c.Context())
	if !result.Success {
		return c.Status(fiber.StatusServiceUnavailable).JSON(result)
	}
	return c.JSON(result)
}

// Learn triggers a synchronous auto-learning cycle.
func (h *KBHandler) Learn(c *fiber.Ctx) error {
	username, _ := c.Locals("username").(string)
	h.logger.Info("Manual learning run requested", zap.String("username", username))

	result := h.learner.LearnFromConversations(c.Context())
	if !result.Success {
		return c.Status(fiber.StatusServiceUnavailable).JSON(result)
	}
	return c.JSON(result)
}
