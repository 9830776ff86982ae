package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rag-retrieval-service/internal/ai"
	"rag-retrieval-service/internal/cache"
	"rag-retrieval-service/internal/config"
	"rag-retrieval-service/internal/logger"
	"rag-retrieval-service/internal/store"
	"rag-retrieval-service/internal/telemetry"
	"rag-retrieval-service/middleware"
	"rag-retrieval-service/routes"
	"rag-retrieval-service/services"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("rag-retrieval-service")
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
		shutdownTracer = func() {}
	}
	defer shutdownTracer()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to init metrics:", err)
	}

	// Redis backs the durable store, the caches, rate limiting and the
	// async queue. Connect only when some component needs it.
	var rdb *redis.Client
	if cfg.StoreBackend == "redis" || cfg.CacheBackend == "redis" {
		rdb, err = config.NewRedisClient(cfg)
		if err != nil {
			log.Fatal("Failed to connect to Redis:", err)
		}
		defer rdb.Close()
	}

	storeOpts := store.Options{
		Timeout:     cfg.StoreTimeout,
		MaxRetries:  cfg.StoreMaxRetries,
		BackoffBase: cfg.StoreBackoffBase,
		Metrics:     metrics,
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

		mongoStore := store.NewMongoStore(mongoClient.Database(cfg.DBName), storeOpts)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			cancel()
			log.Fatal("Failed to create indexes:", err)
		}
		cancel()
		vectorStore = mongoStore
	default:
		vectorStore = store.NewInMemoryStore()
	}
	logger.Info("vector store initialized", "backend", cfg.StoreBackend)

	var embBackend, queryBackend cache.Backend
	var sweepable []*cache.MemoryBackend
	if cfg.CacheBackend == "redis" {
		backend := cache.NewRedisBackend(rdb)
		embBackend, queryBackend = backend, backend
	} else {
		eb := cache.NewMemoryBackend()
		qb := cache.NewMemoryBackend()
		embBackend, queryBackend = eb, qb
		sweepable = append(sweepable, eb, qb)
	}
	embCache := cache.NewEmbeddingCache(embBackend, cfg.EmbeddingCacheTTL).WithMetrics(metrics)
	queryCache := cache.NewQueryCache(queryBackend, cfg.QueryCacheTTL).WithMetrics(metrics)

	sweeper := services.NewCacheSweeper(cfg.CacheSweepEvery, sweepable...)
	if err := sweeper.Start(); err != nil {
		logger.Warn("cache sweeper not started", "error", err)
	}
	defer sweeper.Stop()

	ctx := context.Background()
	embedder, err := ai.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel, cfg.EmbedRateLimit, cfg.EmbedBurst)
	if err != nil {
		log.Fatal("Failed to init embedder:", err)
	}
	defer embedder.Close()

	var generator ai.Generator
	if cfg.AnswerGeneration {
		g, err := ai.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GenerationModel, cfg.EmbedRateLimit, cfg.EmbedBurst)
		if err != nil {
			log.Fatal("Failed to init generator:", err)
		}
		defer g.Close()
		generator = g
	}

	retriever := services.NewRetriever(vectorStore, embedder, embCache, metrics, cfg.DefaultTopK)
	chain := services.NewRetrievalChain(
		vectorStore, embedder, embCache, queryCache,
		generator, services.NewPromptTemplate(""), retriever, metrics,
	).WithGenerateTimeout(cfg.GenerateTimeout)

	var queueClient *asynq.Client
	if rdb != nil {
		queueClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer queueClient.Close()
	}

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.RequestSizeLimit(32 << 20))
	if rdb != nil {
		router.Use(middleware.RateLimitMiddleware(rdb, cfg))
	}

	routes.SetupIngestRoutes(router, cfg, chain, queueClient)
	routes.SetupQueryRoutes(router, cfg, chain)
	routes.SetupCollectionRoutes(router, chain)
	routes.SetupAdminRoutes(router, cfg, embCache, queryCache)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("server exited")
}
