package handler

import (
	"fmt"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/factstore/internal/pkg/errcode"
	appErr "github.com/xxxsen/factstore/internal/pkg/errors"
)

func errorResponseBody(t *testing.T, err error) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/api/v1/documents", nil)
	handleError(c, err)
	return w.Body.String()
}

func TestHandleErrorCodeMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "invalid", err: fmt.Errorf("%w: bad input", appErr.ErrInvalid), code: errcode.ErrInvalid},
		{name: "not found", err: appErr.ErrNotFound, code: errcode.ErrNotFound},
		{name: "embedding unavailable", err: fmt.Errorf("%w: down", appErr.ErrEmbeddingUnavailable), code: errcode.ErrEmbeddingUnavailable},
		{name: "dimension mismatch", err: fmt.Errorf("%w: got 8, want 1536", appErr.ErrDimension), code: errcode.ErrDimension},
		{name: "persistence", err: fmt.Errorf("%w: write failed", appErr.ErrPersistence), code: errcode.ErrPersistence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := errorResponseBody(t, tt.err)
			require.Contains(t, body, strconv.Itoa(tt.code))
		})
	}
}
