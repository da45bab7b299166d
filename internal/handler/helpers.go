package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/prompter/internal/ai"
	"github.com/xxxsen/prompter/internal/embedcache"
	"github.com/xxxsen/prompter/internal/pkg/errcode"
	appErr "github.com/xxxsen/prompter/internal/pkg/errors"
	"github.com/xxxsen/prompter/internal/pkg/response"
	"github.com/xxxsen/prompter/internal/vectorindex"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("chain_id", c.Param("chain_id")),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, appErr.ErrInvalid), errors.Is(err, ai.ErrUnsupportedProvider):
		response.Error(c, errcode.ErrInvalid, err.Error())
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, embedcache.ErrCacheDecode):
		response.Error(c, errcode.ErrCacheCorrupt, err.Error())
	case errors.Is(err, ai.ErrUnavailable):
		response.Error(c, errcode.ErrProviderUnavailable, "embedding provider not configured")
	case errors.Is(err, ai.ErrProviderRequest), errors.Is(err, ai.ErrEmbeddingCountMismatch),
		errors.Is(err, vectorindex.ErrDimensionMismatch):
		response.Error(c, errcode.ErrProviderFailed, err.Error())
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
