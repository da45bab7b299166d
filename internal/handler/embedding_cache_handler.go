package handler

import (
	"encoding/base64"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/prompter/internal/model"
	"github.com/xxxsen/prompter/internal/pkg/errcode"
	"github.com/xxxsen/prompter/internal/pkg/response"
	"github.com/xxxsen/prompter/internal/service"
)

type EmbeddingCacheHandler struct {
	sessions *service.SessionService
}

func NewEmbeddingCacheHandler(sessions *service.SessionService) *EmbeddingCacheHandler {
	return &EmbeddingCacheHandler{sessions: sessions}
}

type saveEmbeddingCacheRequest struct {
	Chain *model.Chain `json:"chain"`
	// nil keeps the server side session cache
	EmbeddingCacheBase64 *string `json:"embedding_cache_base64"`
}

func (h *EmbeddingCacheHandler) Export(c *gin.Context) {
	data, err := h.sessions.Export(c.Request.Context(), c.Param("chain_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"data": base64.StdEncoding.EncodeToString(data)})
}

func (h *EmbeddingCacheHandler) Save(c *gin.Context) {
	var req saveEmbeddingCacheRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Chain == nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	var cacheBytes []byte
	if req.EmbeddingCacheBase64 != nil {
		decoded, err := base64.StdEncoding.DecodeString(*req.EmbeddingCacheBase64)
		if err != nil {
			response.Error(c, errcode.ErrInvalid, "embedding_cache_base64 is not valid base64")
			return
		}
		cacheBytes = decoded
		if cacheBytes == nil {
			cacheBytes = []byte{}
		}
	}
	data, err := h.sessions.Save(c.Request.Context(), c.Param("chain_id"), req.Chain, cacheBytes)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"data": base64.StdEncoding.EncodeToString(data)})
}
