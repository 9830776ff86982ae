package ai

import (
	"context"
	"fmt"

	"rag-retrieval-service/models"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

// Embedder turns text into a vector. ModelID identifies the embedding
// model so caches can key on it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelID() string
}

// GeminiEmbedder calls the Google Generative AI embedding API through
// a shared client, throttled by a token bucket.
type GeminiEmbedder struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
}

func NewGeminiEmbedder(ctx context.Context, apiKey, model string, rps float64, burst int) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, models.NewError(models.KindConfigError, "missing GEMINI_API_KEY for embeddings")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = int(rps)
	}
	return &GeminiEmbedder{
		client:  client,
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

func (e *GeminiEmbedder) ModelID() string { return e.model }

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, models.WrapError(models.KindComputeFailure, err, "embedding rate limiter")
	}

	model := e.client.EmbeddingModel(e.model)
	resp, err := model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, models.WrapError(models.KindComputeFailure, err, "embed content")
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, models.NewError(models.KindComputeFailure, "no embedding returned")
	}
	return resp.Embedding.Values, nil
}

func (e *GeminiEmbedder) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}
