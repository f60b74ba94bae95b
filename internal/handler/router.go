package handler

import (
	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Documents *DocumentHandler
	Search    *SearchHandler
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/documents", deps.Documents.Upsert)
	api.POST("/documents/batch", deps.Documents.UpsertBatch)
	api.POST("/documents/batch_delete", deps.Documents.DeleteBatch)
	api.GET("/documents/count", deps.Documents.Count)
	api.GET("/documents/:id", deps.Documents.Get)
	api.DELETE("/documents/:id", deps.Documents.Delete)

	api.POST("/search", deps.Search.Search)
}
