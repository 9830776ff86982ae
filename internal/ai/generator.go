package ai

import (
	"context"
	"fmt"
	"time"

	"rag-retrieval-service/internal/logger"
	"rag-retrieval-service/models"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"
)

// Generator produces an answer from a fully rendered prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator wraps the Gemini generation API with a circuit
// breaker and a rate limiter. When the provider is down the failure is
// surfaced to the caller as a ComputeFailure; retrieval results still
// reach the client, only the answer is missing.
type GeminiGenerator struct {
	client  *genai.Client
	model   string
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string, rps float64, burst int) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, models.NewError(models.KindConfigError, "missing GEMINI_API_KEY for generation")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})

	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = int(rps)
	}

	return &GeminiGenerator{
		client:  client,
		model:   model,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	tracer := otel.Tracer("gemini-generator")
	ctx, span := tracer.Start(ctx, "gemini.generate_content")
	defer span.End()

	span.SetAttributes(
		attribute.String("gemini.model", g.model),
		attribute.Int("gemini.prompt_chars", len(prompt)),
	)

	if err := g.limiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", models.WrapError(models.KindComputeFailure, err, "generation rate limiter")
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		model := g.client.GenerativeModel(g.model)
		model.SetTemperature(0.7)
		model.SetMaxOutputTokens(2048)

		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return nil, err
		}

		if resp.UsageMetadata != nil {
			span.SetAttributes(attribute.Int("gemini.total_tokens", int(resp.UsageMetadata.TotalTokenCount)))
		}
		return resp, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			return "", models.WrapError(models.KindComputeFailure, err, "generation provider unavailable")
		}
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return "", models.WrapError(models.KindComputeFailure, err, "generate content")
	}

	resp := result.(*genai.GenerateContentResponse)
	text := ""
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text += string(t)
			}
		}
	}
	if text == "" {
		return "", models.NewError(models.KindComputeFailure, "empty generation response")
	}

	span.SetAttributes(attribute.Bool("gemini.success", true))
	return text, nil
}

func (g *GeminiGenerator) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
