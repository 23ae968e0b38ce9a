package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hokhau-ai/internal/api"
	"hokhau-ai/internal/api/handlers"
	"hokhau-ai/internal/cache"
	"hokhau-ai/internal/kb"
	"hokhau-ai/internal/repository"
	"hokhau-ai/internal/service"
	"hokhau-ai/pkg/auth"
	"hokhau-ai/pkg/config"
	"hokhau-ai/pkg/logger"
	"hokhau-ai/pkg/postgres"

	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting hokhau-ai service")

	// Initialize database
	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize conversation sources. The structured store comes first:
	// source order decides which record wins deduplication ties.
	conversationRepo := repository.NewConversationRepository(db, appLogger)
	sources := []kb.ConversationSource{conversationRepo}

	var chatLogRepo *repository.ChatLogRepository
	if cfg.OSS.Bucket != "" {
		chatLogRepo, err = repository.NewChatLogRepository(&cfg.OSS, appLogger)
		if err != nil {
			appLogger.Warn("Chat-log store unavailable, continuing without it", zap.Error(err))
		} else {
			sources = append(sources, chatLogRepo)
		}
	}

	// Response cache is optional
	var responseCache *cache.ResponseCache
	if cfg.Redis.Addr != "" {
		responseCache, err = cache.NewResponseCache(&cfg.Redis, appLogger)
		if err != nil {
			appLogger.Warn("Response cache unavailable, continuing without it", zap.Error(err))
			responseCache = nil
		} else {
			defer responseCache.Close()
		}
	}

	// Embedding model is optional; without it matching is keyword-only
	var embedder kb.Embedder
	if cfg.Embedding.BaseURL != "" {
		embedder = service.NewEmbeddingService(&cfg.Embedding, appLogger)
		appLogger.Info("Semantic matching enabled", zap.String("model", cfg.Embedding.Model))
	} else {
		appLogger.Info("Semantic matching disabled, using keyword matching only")
	}

	// Knowledge core
	store := kb.NewStore()
	embCache := kb.NewEmbeddingCache(embedder, appLogger)
	matcher := kb.NewMatcher(store, embCache, &cfg.KB, appLogger)

	var notifier kb.CacheInvalidator
	if responseCache != nil {
		notifier = responseCache
	}
	reconciler := kb.NewReconciler(store, embCache, sources, notifier, &cfg.KB, appLogger)
	learner := kb.NewLearner(store, sources, &cfg.Learning, cfg.KB.FetchTimeout, appLogger)

	// Initial load runs in the background so a slow source cannot delay
	// startup; until it finishes the matcher sees an empty store.
	go func() {
		lctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		result := reconciler.Reload(lctx)
		if !result.Success {
			appLogger.Error("Initial knowledge load failed", zap.String("error", result.Error))
		}
	}()

	scheduler := kb.NewScheduler(reconciler, learner, &cfg.Learning, appLogger)
	if err := scheduler.Start(); err != nil {
		appLogger.Fatal("Failed to start scheduler", zap.Error(err))
	}
	defer scheduler.Stop()

	// Remote model is optional; without it the pipeline ends at the
	// rule-based replies
	var llmService *service.LLMService
	if cfg.GigaChat.APIKey != "" {
		llmService, err = service.NewLLMService(&cfg.GigaChat, appLogger)
		if err != nil {
			appLogger.Warn("LLM service unavailable, continuing without it", zap.Error(err))
		} else {
			defer llmService.Close()
		}
	}

	var responder service.Responder
	if llmService != nil {
		responder = llmService
	}
	var respCache service.ResponseCache
	if responseCache != nil {
		respCache = responseCache
	}
	var chatLogSink service.EventSink
	if chatLogRepo != nil {
		chatLogSink = chatLogRepo
	}
	chatService := service.NewChatService(matcher, respCache, responder, conversationRepo, chatLogSink, appLogger)

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Expiration)

	// Initialize handlers
	chatHandler := handlers.NewChatHandler(chatService, appLogger)
	kbHandler := handlers.NewKBHandler(store, embCache, reconciler, learner, appLogger)
	authHandler := handlers.NewAuthHandler(jwtManager, &cfg.Admin, appLogger)

	// Setup router
	app := api.SetupRouter(chatHandler, kbHandler, authHandler, jwtManager, appLogger)

	// Start server
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
}
