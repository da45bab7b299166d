package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/prompter/internal/middleware"
)

type RouterDeps struct {
	EmbeddingCache *EmbeddingCacheHandler
	DocumentIndex  *DocumentIndexHandler
	RunRateLimit   time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	chains := api.Group("/chains/:chain_id")
	chains.GET("/embedding-cache", deps.EmbeddingCache.Export)
	chains.POST("/embedding-cache", deps.EmbeddingCache.Save)
	chains.POST("/document-index/run", middleware.RateLimit(deps.RunRateLimit), deps.DocumentIndex.Run)
}
