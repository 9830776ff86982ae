package main

import (
	"context"
	"log"
	"time"

	"rag-retrieval-service/internal/ai"
	"rag-retrieval-service/internal/cache"
	"rag-retrieval-service/internal/config"
	"rag-retrieval-service/internal/logger"
	"rag-retrieval-service/internal/queue"
	"rag-retrieval-service/internal/store"
	"rag-retrieval-service/services"

	"github.com/hibiken/asynq"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	// The worker shares the store and cache wiring with the API server
	// so queued ingests land in exactly the same places.
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	storeOpts := store.Options{
		Timeout:     cfg.StoreTimeout,
		MaxRetries:  cfg.StoreMaxRetries,
		BackoffBase: cfg.StoreBackoffBase,
	}

	var vectorStore store.VectorStore
	switch cfg.StoreBackend {
	case "redis":
		vectorStore = store.NewRedisStore(rdb, storeOpts)
	case "mongo":
		mongoClient, err := config.ConnectMongoDB(cfg)
		if err != nil {
			log.Fatal("Failed to connect to MongoDB:", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			mongoClient.Disconnect(ctx)
		}()
		vectorStore = store.NewMongoStore(mongoClient.Database(cfg.DBName), storeOpts)
	default:
		// An in-memory store in a separate worker process would be
		// invisible to the API server.
		log.Fatal("Worker requires STORE_BACKEND=redis or mongo")
	}

	var backend cache.Backend
	if cfg.CacheBackend == "redis" {
		backend = cache.NewRedisBackend(rdb)
	} else {
		backend = cache.NewMemoryBackend()
	}
	embCache := cache.NewEmbeddingCache(backend, cfg.EmbeddingCacheTTL)
	queryCache := cache.NewQueryCache(backend, cfg.QueryCacheTTL)

	ctx := context.Background()
	embedder, err := ai.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel, cfg.EmbedRateLimit, cfg.EmbedBurst)
	if err != nil {
		log.Fatal("Failed to init embedder:", err)
	}
	defer embedder.Close()

	retriever := services.NewRetriever(vectorStore, embedder, embCache, nil, cfg.DefaultTopK)
	chain := services.NewRetrievalChain(
		vectorStore, embedder, embCache, queryCache,
		nil, nil, retriever, nil,
	)

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(chain)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIngestDocument, processor.HandleIngestDocument)

	logger.Info("worker starting", "redis", cfg.RedisURL, "store", cfg.StoreBackend)

	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
