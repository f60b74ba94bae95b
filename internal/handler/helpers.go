package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/factstore/internal/pkg/errcode"
	appErr "github.com/xxxsen/factstore/internal/pkg/errors"
	"github.com/xxxsen/factstore/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	switch {
	case appErr.IsInvalid(err):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case appErr.IsNotFound(err):
		response.Error(c, errcode.ErrNotFound, "not found")
	case appErr.IsEmbeddingUnavailable(err):
		response.Error(c, errcode.ErrEmbeddingUnavailable, "embedding service unavailable")
	case appErr.IsDimension(err):
		response.Error(c, errcode.ErrDimension, "embedding dimension mismatch")
	default:
		response.Error(c, errcode.ErrPersistence, "internal error")
	}
}
