package services

import (
	"context"
	"strings"
	"time"

	"rag-retrieval-service/internal/ai"
	"rag-retrieval-service/internal/cache"
	"rag-retrieval-service/internal/store"
	"rag-retrieval-service/internal/telemetry"
	"rag-retrieval-service/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Retriever embeds a query and runs similarity search against the
// vector store. Query embeddings go through the embedding cache, so
// repeated questions skip the provider entirely.
type Retriever struct {
	store       store.VectorStore
	embedder    ai.Embedder
	embCache    *cache.EmbeddingCache
	metrics     *telemetry.Metrics
	defaultTopK int
}

func NewRetriever(vs store.VectorStore, embedder ai.Embedder, embCache *cache.EmbeddingCache, metrics *telemetry.Metrics, defaultTopK int) *Retriever {
	if defaultTopK <= 0 {
		defaultTopK = 4
	}
	return &Retriever{
		store:       vs,
		embedder:    embedder,
		embCache:    embCache,
		metrics:     metrics,
		defaultTopK: defaultTopK,
	}
}

// Retrieve returns the topK most similar records. topK of zero or below
// falls back to the configured default; a blank query is rejected.
func (r *Retriever) Retrieve(ctx context.Context, collection, query string, topK int, filter store.Filter) (models.RetrievalResult, error) {
	tracer := otel.Tracer("retriever")
	ctx, span := tracer.Start(ctx, "retriever.retrieve")
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return models.RetrievalResult{}, models.NewError(models.KindConfigError, "query must not be empty")
	}
	if topK <= 0 {
		topK = r.defaultTopK
	}

	span.SetAttributes(
		attribute.String("retrieval.collection", collection),
		attribute.Int("retrieval.top_k", topK),
	)

	vector, err := r.embCache.GetOrCompute(ctx, r.embedder.ModelID(), query, func(ctx context.Context) ([]float32, error) {
		return r.embedder.Embed(ctx, query)
	})
	if err != nil {
		return models.RetrievalResult{}, err
	}

	start := time.Now()
	matches, err := r.store.Search(ctx, collection, vector, topK, filter)
	if err != nil {
		return models.RetrievalResult{}, err
	}
	if r.metrics != nil {
		r.metrics.RecordSearch(collection, time.Since(start).Seconds(), len(matches))
	}

	span.SetAttributes(attribute.Int("retrieval.matches", len(matches)))
	return models.RetrievalResult{Query: query, Matches: matches}, nil
}

// ModelID exposes the underlying embedding model so callers can build
// cache keys consistent with the retrieval path.
func (r *Retriever) ModelID() string { return r.embedder.ModelID() }
