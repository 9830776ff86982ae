package routes

import (
	"net/http"

	"rag-retrieval-service/internal/cache"
	"rag-retrieval-service/internal/config"
	"rag-retrieval-service/services"
	"rag-retrieval-service/utils"

	"github.com/gin-gonic/gin"
)

func SetupCollectionRoutes(router *gin.Engine, chain *services.RetrievalChain) {
	api := router.Group("/api")

	api.GET("/collections", func(c *gin.Context) {
		names, err := chain.ListCollections(c.Request.Context())
		if err != nil {
			utils.RespondWithEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"collections": names})
	})

	api.GET("/collections/:name/stats", func(c *gin.Context) {
		stats, err := chain.Stats(c.Request.Context(), c.Param("name"))
		if err != nil {
			utils.RespondWithEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	api.GET("/collections/:name/sources", func(c *gin.Context) {
		sources, err := chain.ListSources(c.Request.Context(), c.Param("name"))
		if err != nil {
			utils.RespondWithEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sources": sources})
	})

	api.DELETE("/collections/:name", func(c *gin.Context) {
		if err := chain.DeleteCollection(c.Request.Context(), c.Param("name")); err != nil {
			utils.RespondWithEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": c.Param("name")})
	})

	api.DELETE("/collections/:name/sources/:source", func(c *gin.Context) {
		removed, err := chain.DeleteSource(c.Request.Context(), c.Param("name"), c.Param("source"))
		if err != nil {
			utils.RespondWithEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"source": c.Param("source"), "removed": removed})
	})
}

func SetupAdminRoutes(router *gin.Engine, cfg *config.Config, embCache *cache.EmbeddingCache, queryCache *cache.QueryCache) {
	admin := router.Group("/api/admin")

	admin.GET("/cache/stats", func(c *gin.Context) {
		ctx := c.Request.Context()
		c.JSON(http.StatusOK, gin.H{
			"embedding": embCache.Stats(ctx),
			"query":     queryCache.Stats(ctx),
		})
	})

	admin.POST("/cache/clear", func(c *gin.Context) {
		ctx := c.Request.Context()
		embCleared, err := embCache.Clear(ctx)
		if err != nil {
			utils.RespondWithInternalError(c, err.Error(), nil)
			return
		}
		queryCleared, err := queryCache.Clear(ctx)
		if err != nil {
			utils.RespondWithInternalError(c, err.Error(), nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"embedding_cleared": embCleared,
			"query_cleared":     queryCleared,
		})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"backend": cfg.StoreBackend,
		})
	})
}
