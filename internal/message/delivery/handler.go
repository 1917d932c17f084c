package delivery

import (
	"net/http"
	"strconv"
	"time"

	clientrepo "clientmail-backend/internal/client/repository"
	messagedomain "clientmail-backend/internal/message/domain"
	"clientmail-backend/internal/message/usecase"
	taskdomain "clientmail-backend/internal/task/domain"
	taskusecase "clientmail-backend/internal/task/usecase"
	"clientmail-backend/pkg/mailaddr"

	"github.com/gin-gonic/gin"
)

// MessageHandler serves correspondence retrieval for stored clients.
type MessageHandler struct {
	clients      clientrepo.ClientRepository
	orchestrator *usecase.RetrievalOrchestrator
	pipeline     *usecase.EmbeddingPipeline
	queue        *taskusecase.Queue
	// userAddr is the mailbox owner's address, used to annotate message
	// direction. Empty when unknown; direction then reads "other".
	userAddr string
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(
	clients clientrepo.ClientRepository,
	orchestrator *usecase.RetrievalOrchestrator,
	pipeline *usecase.EmbeddingPipeline,
	queue *taskusecase.Queue,
	userAddr string,
) *MessageHandler {
	return &MessageHandler{
		clients:      clients,
		orchestrator: orchestrator,
		pipeline:     pipeline,
		queue:        queue,
		userAddr:     mailaddr.NormalizeEmail(userAddr),
	}
}

// ListClients returns every configured client.
// GET /api/clients
func (h *MessageHandler) ListClients(c *gin.Context) {
	clients, err := h.clients.GetAll()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"clients": clients,
		"count":   len(clients),
	})
}

// annotatedMessage pairs a message with its classified direction relative to
// the client.
type annotatedMessage struct {
	*messagedomain.Message
	Direction mailaddr.Direction `json:"direction"`
}

func (h *MessageHandler) annotate(messages []*messagedomain.Message, domains, emails []string) []annotatedMessage {
	out := make([]annotatedMessage, 0, len(messages))
	for _, msg := range messages {
		out = append(out, annotatedMessage{
			Message:   msg,
			Direction: mailaddr.ClassifyDirection(msg.FromAddress, msg.Recipients(), h.userAddr, domains, emails),
		})
	}
	return out
}

// GetClientMessages runs a full retrieval pass for a stored client.
// GET /api/clients/:id/messages?start=...&end=...&q=...&semantic=true&limit=50
func (h *MessageHandler) GetClientMessages(c *gin.Context) {
	client, err := h.clients.GetByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if client == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
		return
	}

	start, end, ok := parseDateRange(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	semantic := c.Query("semantic") == "true"

	result, err := h.orchestrator.Fetch(c.Request.Context(), usecase.FetchParams{
		Domains:  client.Domains,
		Emails:   client.Emails,
		Start:    start,
		End:      end,
		Query:    c.Query("q"),
		Semantic: semantic,
		Limit:    limit,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages":      h.annotate(result.Messages, client.Domains, client.Emails),
		"count":         len(result.Messages),
		"from_provider": result.FromProvider,
		"semantic_used": result.SemanticUsed,
	})
}

// SearchClientMessages runs a direct semantic search over stored messages.
// GET /api/clients/:id/search?q=...&start=...&end=...&limit=10
func (h *MessageHandler) SearchClientMessages(c *gin.Context) {
	client, err := h.clients.GetByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if client == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
		return
	}

	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter 'q' is required"})
		return
	}

	start, end, ok := parseDateRange(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	messages, err := h.pipeline.FindSimilar(c.Request.Context(), query, usecase.SimilarOptions{
		Domains: client.Domains,
		Emails:  client.Emails,
		Start:   start,
		End:     end,
		Limit:   limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"count":    len(messages),
	})
}

// ProcessClientMessages enqueues a full fetch-and-enrich pass for a client.
// POST /api/clients/:id/process?start=...&end=...
func (h *MessageHandler) ProcessClientMessages(c *gin.Context) {
	client, err := h.clients.GetByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if client == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
		return
	}

	start, end, ok := parseDateRange(c)
	if !ok {
		return
	}

	taskID, err := h.queue.Enqueue(taskdomain.ProcessClientMessagesParams{
		ClientID: client.ID,
		Domains:  client.Domains,
		Emails:   client.Emails,
		Start:    start,
		End:      end,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": taskID,
		"status":  taskdomain.TaskStatusPending,
	})
}

// GetProcessingStatus returns the latest processing progress for a client.
// GET /api/clients/:id/processing-status
func (h *MessageHandler) GetProcessingStatus(c *gin.Context) {
	progress := h.queue.GetLatestClientProcessingStatus(c.Param("id"))
	if progress == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No processing task found for client"})
		return
	}
	c.JSON(http.StatusOK, progress)
}

// parseDateRange reads optional start/end query params in RFC 3339 or
// YYYY-MM-DD form. Writes a 400 response and returns ok=false on a malformed
// value.
func parseDateRange(c *gin.Context) (start, end time.Time, ok bool) {
	var err error
	if s := c.Query("start"); s != "" {
		start, err = parseDate(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start date: " + s})
			return time.Time{}, time.Time{}, false
		}
	}
	if e := c.Query("end"); e != "" {
		end, err = parseDate(e)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid end date: " + e})
			return time.Time{}, time.Time{}, false
		}
	}
	return start, end, true
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
