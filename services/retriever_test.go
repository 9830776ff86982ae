package services

import (
	"context"
	"testing"
	"time"

	"rag-retrieval-service/internal/cache"
	"rag-retrieval-service/internal/store"
	"rag-retrieval-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRetriever(embedder *fakeEmbedder) (*Retriever, store.VectorStore) {
	vs := store.NewInMemoryStore()
	embCache := cache.NewEmbeddingCache(cache.NewMemoryBackend(), time.Hour)
	return NewRetriever(vs, embedder, embCache, nil, 4), vs
}

func seedRecords(t *testing.T, vs store.VectorStore, embedder *fakeEmbedder, texts ...string) {
	t.Helper()
	ctx := context.Background()
	records := make([]models.VectorRecord, 0, len(texts))
	for i, text := range texts {
		vector, err := embedder.Embed(ctx, text)
		require.NoError(t, err)
		records = append(records, models.VectorRecord{
			ChunkID: models.ChunkID("seed.txt", i),
			Vector:  vector,
			Text:    text,
			Source:  "seed.txt",
		})
	}
	require.NoError(t, vs.Upsert(ctx, "docs", records))
}

func TestRetrieveEmptyQuery(t *testing.T) {
	retriever, _ := newTestRetriever(&fakeEmbedder{})

	_, err := retriever.Retrieve(context.Background(), "docs", "   ", 3, nil)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindConfigError))
}

func TestRetrieveDefaultTopK(t *testing.T) {
	embedder := &fakeEmbedder{}
	retriever, vs := newTestRetriever(embedder)
	seedRecords(t, vs, embedder,
		"annual leave",
		"sick leave",
		"leave policy",
		"expense policy",
		"office days",
		"remote days",
	)

	result, err := retriever.Retrieve(context.Background(), "docs", "leave days", 0, nil)
	require.NoError(t, err)
	assert.Len(t, result.Matches, 4)
}

func TestRetrieveRanksBySimilarity(t *testing.T) {
	embedder := &fakeEmbedder{}
	retriever, vs := newTestRetriever(embedder)
	seedRecords(t, vs, embedder,
		"annual leave days",
		"expense policy",
		"remote office",
	)

	result, err := retriever.Retrieve(context.Background(), "docs", "annual leave days", 3, nil)
	require.NoError(t, err)
	require.Len(t, result.Matches, 3)
	assert.Equal(t, "annual leave days", result.Matches[0].Record.Text)
	assert.InDelta(t, 1.0, result.Matches[0].Score, 1e-6)
}

func TestRetrieveCachesQueryEmbedding(t *testing.T) {
	embedder := &fakeEmbedder{}
	retriever, vs := newTestRetriever(embedder)
	seedRecords(t, vs, embedder, "annual leave")
	seeded := embedder.calls.Load()

	_, err := retriever.Retrieve(context.Background(), "docs", "annual leave", 1, nil)
	require.NoError(t, err)
	_, err = retriever.Retrieve(context.Background(), "docs", "annual  leave\n", 1, nil)
	require.NoError(t, err)

	// Whitespace-variant repeats share one embedding computation.
	assert.Equal(t, seeded+1, embedder.calls.Load())
}

func TestRetrieveUnknownCollection(t *testing.T) {
	retriever, _ := newTestRetriever(&fakeEmbedder{})

	_, err := retriever.Retrieve(context.Background(), "missing", "annual leave", 3, nil)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindCollectionNotFound))
}
