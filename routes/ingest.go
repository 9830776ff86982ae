package routes

import (
	"net/http"

	"rag-retrieval-service/internal/config"
	"rag-retrieval-service/internal/queue"
	"rag-retrieval-service/models"
	"rag-retrieval-service/services"
	"rag-retrieval-service/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

// IngestRequest is the document ingest payload. Chunking fields are
// optional; absent fields fall back to the configured defaults, and an
// explicit chunk_size of 0 stores the document as a single chunk.
type IngestRequest struct {
	Source       string         `json:"source" binding:"required"`
	Collection   string         `json:"collection" binding:"required"`
	Text         string         `json:"text"`
	Metadata     map[string]any `json:"metadata"`
	ChunkSize    *int           `json:"chunk_size"`
	ChunkOverlap *int           `json:"chunk_overlap"`
}

func (r IngestRequest) document() models.Document {
	return models.Document{
		Source:     r.Source,
		Collection: r.Collection,
		Text:       r.Text,
		Metadata:   r.Metadata,
	}
}

func (r IngestRequest) chunking(cfg *config.Config) (int, int) {
	chunkSize := cfg.ChunkSize
	chunkOverlap := cfg.ChunkOverlap
	if r.ChunkSize != nil {
		chunkSize = *r.ChunkSize
	}
	if r.ChunkOverlap != nil {
		chunkOverlap = *r.ChunkOverlap
	}
	return chunkSize, chunkOverlap
}

func SetupIngestRoutes(router *gin.Engine, cfg *config.Config, chain *services.RetrievalChain, queueClient *asynq.Client) {
	api := router.Group("/api")

	api.POST("/ingest", func(c *gin.Context) {
		var req IngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, err.Error(), nil)
			return
		}
		chunkSize, chunkOverlap := req.chunking(cfg)

		// Large documents go through the queue so the request does not
		// sit on the embedding provider for minutes.
		if queueClient != nil && len(req.Text) > cfg.SyncIngestLimit {
			enqueueIngest(c, queueClient, req.document(), chunkSize, chunkOverlap)
			return
		}

		result, err := chain.Ingest(c.Request.Context(), req.document(), chunkSize, chunkOverlap)
		if err != nil {
			utils.RespondWithEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})

	api.POST("/ingest/async", func(c *gin.Context) {
		if queueClient == nil {
			utils.RespondWithError(c, http.StatusServiceUnavailable,
				"queue_unavailable", "Async ingestion requires Redis", nil)
			return
		}

		var req IngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, err.Error(), nil)
			return
		}
		chunkSize, chunkOverlap := req.chunking(cfg)
		enqueueIngest(c, queueClient, req.document(), chunkSize, chunkOverlap)
	})
}

func enqueueIngest(c *gin.Context, queueClient *asynq.Client, doc models.Document, chunkSize, chunkOverlap int) {
	task, err := queue.NewIngestDocumentTask(doc, chunkSize, chunkOverlap)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to build ingest task", nil)
		return
	}

	info, err := queueClient.Enqueue(task)
	if err != nil {
		utils.RespondWithError(c, http.StatusServiceUnavailable,
			"enqueue_failed", "Failed to enqueue ingest task", nil)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"task_id":    info.ID,
		"queue":      info.Queue,
		"source":     doc.Source,
		"collection": doc.Collection,
	})
}
