package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"rag-retrieval-service/internal/logger"
	"rag-retrieval-service/models"
	"rag-retrieval-service/services"
)

const TaskIngestDocument = "ingest:document"

// IngestPayload carries one document through the queue. Chunking
// parameters are resolved by the enqueuing handler, so the worker does
// not need the request-level defaults.
type IngestPayload struct {
	Document     models.Document `json:"document"`
	ChunkSize    int             `json:"chunk_size"`
	ChunkOverlap int             `json:"chunk_overlap"`
}

func NewIngestDocumentTask(doc models.Document, chunkSize, chunkOverlap int) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestPayload{
		Document:     doc,
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("default"),
	), nil
}

// TaskProcessor runs queued ingests through the same chain the
// synchronous API uses.
type TaskProcessor struct {
	chain *services.RetrievalChain
}

func NewTaskProcessor(chain *services.RetrievalChain) *TaskProcessor {
	return &TaskProcessor{chain: chain}
}

func (p *TaskProcessor) HandleIngestDocument(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	logger.Info("processing queued ingest",
		"collection", payload.Document.Collection, "source", payload.Document.Source)

	result, err := p.chain.Ingest(ctx, payload.Document, payload.ChunkSize, payload.ChunkOverlap)
	if err != nil {
		// Validation errors will not succeed on retry.
		if models.IsKind(err, models.KindConfigError) || models.IsKind(err, models.KindDimensionMismatch) {
			logger.Error("queued ingest rejected", "source", payload.Document.Source, "error", err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	logger.Info("queued ingest completed",
		"collection", result.Collection, "source", result.Source,
		"chunks", result.ChunkCount, "replaced", result.Replaced)
	return nil
}
