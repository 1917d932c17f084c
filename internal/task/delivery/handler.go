package delivery

import (
	"net/http"
	"strconv"

	"clientmail-backend/internal/task/domain"
	"clientmail-backend/internal/task/usecase"

	"github.com/gin-gonic/gin"
)

// TaskHandler exposes the background queue over HTTP: task submission and
// status polling.
type TaskHandler struct {
	queue *usecase.Queue
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(queue *usecase.Queue) *TaskHandler {
	return &TaskHandler{queue: queue}
}

// GetTaskStatus returns the current status of a task.
// GET /api/tasks/:id
func (h *TaskHandler) GetTaskStatus(c *gin.Context) {
	task := h.queue.GetTaskStatus(c.Param("id"))
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	resp := gin.H{
		"id":         task.ID,
		"type":       task.Type(),
		"status":     task.Status,
		"created_at": task.CreatedAt,
		"updated_at": task.UpdatedAt,
	}
	if task.Result != "" {
		resp["result"] = task.Result
	}
	if task.Error != "" {
		resp["error"] = task.Error
	}
	if progress := h.queue.GetClientProcessingStatus(task.ID); progress != nil {
		resp["progress"] = progress
	}

	c.JSON(http.StatusOK, resp)
}

// EnqueueEmbeddings submits a generate-embeddings task.
// POST /api/tasks/embeddings?limit=50
func (h *TaskHandler) EnqueueEmbeddings(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	taskID, err := h.queue.Enqueue(domain.GenerateEmbeddingsParams{Limit: limit})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": taskID,
		"status":  domain.TaskStatusPending,
	})
}

// EnqueueSummaries submits a summarize-emails task.
// POST /api/tasks/summaries?limit=50
func (h *TaskHandler) EnqueueSummaries(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	taskID, err := h.queue.Enqueue(domain.SummarizeMessagesParams{Limit: limit})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": taskID,
		"status":  domain.TaskStatusPending,
	})
}
