package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/factstore/internal/pkg/errcode"
	"github.com/xxxsen/factstore/internal/pkg/response"
	"github.com/xxxsen/factstore/internal/service"
)

type DocumentHandler struct {
	documents *service.DocumentService
}

func NewDocumentHandler(documents *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

func (h *DocumentHandler) Upsert(c *gin.Context) {
	var req service.DocumentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	doc, err := h.documents.Upsert(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

type batchUpsertRequest struct {
	Documents []service.DocumentInput `json:"documents"`
}

func (h *DocumentHandler) UpsertBatch(c *gin.Context) {
	var req batchUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	written, err := h.documents.UpsertBatch(c.Request.Context(), req.Documents)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"documents": written, "written": len(written)})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	deleted, err := h.documents.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": deleted})
}

type batchDeleteRequest struct {
	DocIDs []string `json:"doc_ids"`
}

func (h *DocumentHandler) DeleteBatch(c *gin.Context) {
	var req batchDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	removed, err := h.documents.DeleteBatch(c.Request.Context(), req.DocIDs)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"removed": removed})
}

func (h *DocumentHandler) Count(c *gin.Context) {
	count, err := h.documents.Count(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"count": count})
}
