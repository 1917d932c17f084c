package api

import (
	clientrepo "clientmail-backend/internal/client/repository"
	messagedelivery "clientmail-backend/internal/message/delivery"
	messageusecase "clientmail-backend/internal/message/usecase"
	taskdelivery "clientmail-backend/internal/task/delivery"
	taskusecase "clientmail-backend/internal/task/usecase"
	"clientmail-backend/pkg/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	messageHandler *messagedelivery.MessageHandler
	taskHandler    *taskdelivery.TaskHandler
	config         *config.Config
	logger         *zap.Logger
}

// NewHandler wires the usecases into HTTP handlers.
func NewHandler(
	clients clientrepo.ClientRepository,
	orchestrator *messageusecase.RetrievalOrchestrator,
	pipeline *messageusecase.EmbeddingPipeline,
	queue *taskusecase.Queue,
	cfg *config.Config,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		messageHandler: messagedelivery.NewMessageHandler(clients, orchestrator, pipeline, queue, cfg.Gmail.UserEmail),
		taskHandler:    taskdelivery.NewTaskHandler(queue),
		config:         cfg,
		logger:         logger,
	}
}

func (h *Handler) Start(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(h.logger))

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.messageHandler, h.taskHandler)

	return r.Run(addr)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()))
	}
}
