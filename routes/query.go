package routes

import (
	"net/http"

	"rag-retrieval-service/internal/config"
	"rag-retrieval-service/internal/store"
	"rag-retrieval-service/services"
	"rag-retrieval-service/utils"

	"github.com/gin-gonic/gin"
)

// QueryRequest asks a question against one collection. top_k of zero
// uses the configured default; generate toggles answer synthesis on top
// of retrieval and defaults to the server setting.
type QueryRequest struct {
	Collection string         `json:"collection" binding:"required"`
	Query      string         `json:"query" binding:"required"`
	TopK       int            `json:"top_k"`
	Filter     map[string]any `json:"filter"`
	Generate   *bool          `json:"generate"`
}

func SetupQueryRoutes(router *gin.Engine, cfg *config.Config, chain *services.RetrievalChain) {
	api := router.Group("/api")

	api.POST("/query", func(c *gin.Context) {
		var req QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, err.Error(), nil)
			return
		}

		generate := cfg.AnswerGeneration
		if req.Generate != nil {
			generate = *req.Generate
		}

		var filter store.Filter
		if len(req.Filter) > 0 {
			filter = store.Filter(req.Filter)
		}

		ctx := c.Request.Context()
		if generate {
			result, err := chain.Answer(ctx, req.Collection, req.Query, req.TopK, filter)
			if err != nil {
				utils.RespondWithEngineError(c, err)
				return
			}
			c.JSON(http.StatusOK, result)
			return
		}

		result, err := chain.Query(ctx, req.Collection, req.Query, req.TopK, filter)
		if err != nil {
			utils.RespondWithEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})
}
