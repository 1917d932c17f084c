package main

import (
	"log"

	api "clientmail-backend/cmd/api"
	clientdomain "clientmail-backend/internal/client/domain"
	clientRepo "clientmail-backend/internal/client/repository"
	messagedomain "clientmail-backend/internal/message/domain"
	messageRepo "clientmail-backend/internal/message/repository"
	messageUsecase "clientmail-backend/internal/message/usecase"
	"clientmail-backend/internal/task/scheduler"
	taskUsecase "clientmail-backend/internal/task/usecase"
	"clientmail-backend/pkg/ai"
	"clientmail-backend/pkg/config"
	"clientmail-backend/pkg/database"
	"clientmail-backend/pkg/gmail"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	db, err := database.NewPostgresConnection(cfg.Database.DSN())
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	if err := db.AutoMigrate(&clientdomain.Client{}, &messagedomain.Message{}); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	// Repositories
	clientRepository := clientRepo.NewClientRepository(db)
	messageRepository := messageRepo.NewMessageRepository(db)

	// AI provider chain
	aiService, err := ai.NewService(ai.Config{
		Provider:             ai.ProviderType(cfg.AI.Provider),
		OpenAIAPIKey:         cfg.AI.OpenAIAPIKey,
		OpenAIBaseURL:        cfg.AI.OpenAIBaseURL,
		OpenAIChatModel:      cfg.AI.ChatModel,
		OpenAIEmbeddingModel: cfg.AI.EmbeddingModel,
		OllamaBaseURL:        cfg.AI.OllamaURL,
		OllamaModel:          cfg.AI.OllamaModel,
		Dimensions:           cfg.AI.EmbeddingDimensions,
	}, logger)
	if err != nil {
		logger.Fatal("failed to initialize AI service", zap.Error(err))
	}

	// Mail provider (optional; retrieval degrades to store-only without it)
	var provider messagedomain.MailProvider
	if cfg.Gmail.Enabled() {
		provider = gmail.NewProvider(
			cfg.Gmail.ClientID,
			cfg.Gmail.ClientSecret,
			cfg.Gmail.AccessToken,
			cfg.Gmail.RefreshToken,
			nil,
			logger,
		)
		logger.Info("gmail provider configured")
	} else {
		logger.Warn("no mail provider configured, running store-only")
	}

	// Usecases
	pipeline := messageUsecase.NewEmbeddingPipeline(messageRepository, aiService, logger)
	queue := taskUsecase.NewQueue(messageRepository, pipeline, aiService, provider, logger)
	defer queue.Stop()
	orchestrator := messageUsecase.NewRetrievalOrchestrator(messageRepository, pipeline, provider, queue, logger)

	// Periodic enrichment catch-up
	enrichScheduler := scheduler.NewEnrichmentScheduler(queue, logger, cfg.EnrichInterval, cfg.EnrichLimit)
	enrichScheduler.Start()
	defer enrichScheduler.Stop()

	handler := api.NewHandler(clientRepository, orchestrator, pipeline, queue, cfg, logger)

	logger.Info("server starting", zap.String("port", cfg.Port))
	if err := handler.Start(":" + cfg.Port); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
