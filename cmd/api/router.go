package api

import (
	"net/http"

	messagedelivery "clientmail-backend/internal/message/delivery"
	taskdelivery "clientmail-backend/internal/task/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, messageHandler *messagedelivery.MessageHandler, taskHandler *taskdelivery.TaskHandler) {
	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Client correspondence routes
		clients := api.Group("/clients")
		{
			clients.GET("", messageHandler.ListClients)
			clients.GET("/:id/messages", messageHandler.GetClientMessages)
			clients.GET("/:id/search", messageHandler.SearchClientMessages)
			clients.POST("/:id/process", messageHandler.ProcessClientMessages)
			clients.GET("/:id/processing-status", messageHandler.GetProcessingStatus)
		}

		// Background task routes
		tasks := api.Group("/tasks")
		{
			tasks.GET("/:id", taskHandler.GetTaskStatus)
			tasks.POST("/embeddings", taskHandler.EnqueueEmbeddings)
			tasks.POST("/summaries", taskHandler.EnqueueSummaries)
		}
	}
}
