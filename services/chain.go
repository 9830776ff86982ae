package services

import (
	"context"
	"strings"
	"time"

	"rag-retrieval-service/internal/ai"
	"rag-retrieval-service/internal/cache"
	"rag-retrieval-service/internal/logger"
	"rag-retrieval-service/internal/splitter"
	"rag-retrieval-service/internal/store"
	"rag-retrieval-service/internal/telemetry"
	"rag-retrieval-service/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// RetrievalChain wires splitting, embedding, storage and retrieval into
// the two pipelines the API exposes: ingest and query.
type RetrievalChain struct {
	store           store.VectorStore
	embedder        ai.Embedder
	embCache        *cache.EmbeddingCache
	queryCache      *cache.QueryCache
	generator       ai.Generator
	prompt          *PromptTemplate
	retriever       *Retriever
	metrics         *telemetry.Metrics
	generateTimeout time.Duration
}

func NewRetrievalChain(
	vs store.VectorStore,
	embedder ai.Embedder,
	embCache *cache.EmbeddingCache,
	queryCache *cache.QueryCache,
	generator ai.Generator,
	prompt *PromptTemplate,
	retriever *Retriever,
	metrics *telemetry.Metrics,
) *RetrievalChain {
	if prompt == nil {
		prompt = NewPromptTemplate("")
	}
	return &RetrievalChain{
		store:      vs,
		embedder:   embedder,
		embCache:   embCache,
		queryCache: queryCache,
		generator:  generator,
		prompt:     prompt,
		retriever:  retriever,
		metrics:    metrics,
	}
}

// WithGenerateTimeout bounds each generation call with its own
// deadline. Zero leaves only the caller's context in charge.
func (c *RetrievalChain) WithGenerateTimeout(d time.Duration) *RetrievalChain {
	c.generateTimeout = d
	return c
}

// Ingest splits the document, embeds every chunk and replaces whatever
// the source previously contributed to the collection. All embeddings
// are computed before the store is touched, so an embedding failure
// leaves the collection exactly as it was.
func (c *RetrievalChain) Ingest(ctx context.Context, doc models.Document, chunkSize, chunkOverlap int) (models.IngestResult, error) {
	tracer := otel.Tracer("retrieval-chain")
	ctx, span := tracer.Start(ctx, "chain.ingest")
	defer span.End()

	if strings.TrimSpace(doc.Source) == "" {
		return models.IngestResult{}, models.NewError(models.KindConfigError, "document source must not be empty")
	}
	if doc.Collection == "" {
		return models.IngestResult{}, models.NewError(models.KindConfigError, "collection must not be empty")
	}

	span.SetAttributes(
		attribute.String("ingest.collection", doc.Collection),
		attribute.String("ingest.source", doc.Source),
	)

	split, err := splitter.New(chunkSize, chunkOverlap)
	if err != nil {
		return models.IngestResult{}, err
	}
	chunks := split.Split(doc.Source, doc.Text)
	span.SetAttributes(attribute.Int("ingest.chunks", len(chunks)))

	records := make([]models.VectorRecord, 0, len(chunks))
	for _, chunk := range chunks {
		vector, err := c.embCache.GetOrCompute(ctx, c.embedder.ModelID(), chunk.Text, func(ctx context.Context) ([]float32, error) {
			return c.embedder.Embed(ctx, chunk.Text)
		})
		if err != nil {
			return models.IngestResult{}, err
		}
		records = append(records, models.VectorRecord{
			ChunkID:    chunk.ChunkID,
			Vector:     vector,
			Text:       chunk.Text,
			Source:     doc.Source,
			Collection: doc.Collection,
			Metadata:   doc.Metadata,
		})
	}

	// Re-ingesting a source fully replaces its previous chunks, even
	// when the new split produces fewer of them.
	replaced, err := c.store.DeleteBySource(ctx, doc.Collection, doc.Source)
	if err != nil && !models.IsKind(err, models.KindCollectionNotFound) {
		return models.IngestResult{}, err
	}

	if len(records) > 0 {
		if err := c.store.Upsert(ctx, doc.Collection, records); err != nil {
			return models.IngestResult{}, err
		}
	}

	if invalidated, err := c.queryCache.InvalidateCollection(ctx, doc.Collection); err != nil {
		logger.Warn("query cache invalidation failed", "collection", doc.Collection, "error", err)
	} else if invalidated > 0 {
		logger.Debug("query cache invalidated", "collection", doc.Collection, "entries", invalidated)
	}

	if c.metrics != nil {
		c.metrics.RecordIngest(doc.Collection, int64(len(records)))
	}
	logger.Info("document ingested",
		"collection", doc.Collection, "source", doc.Source,
		"chunks", len(records), "replaced", replaced)

	return models.IngestResult{
		Source:     doc.Source,
		Collection: doc.Collection,
		ChunkCount: len(records),
		Replaced:   replaced,
	}, nil
}

// Query runs cached retrieval. Identical questions against an unchanged
// collection are served from the query cache with Cached set.
func (c *RetrievalChain) Query(ctx context.Context, collection, query string, topK int, filter store.Filter) (models.RetrievalResult, error) {
	return c.queryCache.GetOrRetrieve(ctx, collection, c.embedder.ModelID(), query, topK, filter, func(ctx context.Context) (models.RetrievalResult, error) {
		return c.retriever.Retrieve(ctx, collection, query, topK, filter)
	})
}

// Answer retrieves context and generates an answer grounded in it. The
// retrieval half goes through the query cache; generation always runs,
// so two identical questions can get differently worded answers over
// the same excerpts.
func (c *RetrievalChain) Answer(ctx context.Context, collection, query string, topK int, filter store.Filter) (models.RetrievalResult, error) {
	result, err := c.Query(ctx, collection, query, topK, filter)
	if err != nil {
		return models.RetrievalResult{}, err
	}

	if c.generator == nil {
		return result, nil
	}
	if len(result.Matches) == 0 {
		result.Answer = ""
		return result, nil
	}

	genCtx := ctx
	if c.generateTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, c.generateTimeout)
		defer cancel()
	}
	answer, err := c.generator.Generate(genCtx, c.prompt.Render(query, result.Matches))
	if err != nil {
		return models.RetrievalResult{}, err
	}
	result.Answer = answer
	return result, nil
}

// DeleteSource removes a source's records and invalidates cached
// results for the collection.
func (c *RetrievalChain) DeleteSource(ctx context.Context, collection, source string) (int, error) {
	removed, err := c.store.DeleteBySource(ctx, collection, source)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		if _, err := c.queryCache.InvalidateCollection(ctx, collection); err != nil {
			logger.Warn("query cache invalidation failed", "collection", collection, "error", err)
		}
	}
	return removed, nil
}

// DeleteCollection drops the collection and its cached results.
func (c *RetrievalChain) DeleteCollection(ctx context.Context, collection string) error {
	if err := c.store.DeleteCollection(ctx, collection); err != nil {
		return err
	}
	if _, err := c.queryCache.InvalidateCollection(ctx, collection); err != nil {
		logger.Warn("query cache invalidation failed", "collection", collection, "error", err)
	}
	return nil
}

func (c *RetrievalChain) Stats(ctx context.Context, collection string) (models.CollectionStats, error) {
	return c.store.Stats(ctx, collection)
}

func (c *RetrievalChain) ListCollections(ctx context.Context) ([]string, error) {
	return c.store.ListCollections(ctx)
}

func (c *RetrievalChain) ListSources(ctx context.Context, collection string) ([]models.SourceStats, error) {
	return c.store.ListSources(ctx, collection)
}
