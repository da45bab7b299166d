package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/prompter/internal/model"
	"github.com/xxxsen/prompter/internal/pkg/errcode"
	"github.com/xxxsen/prompter/internal/pkg/response"
	"github.com/xxxsen/prompter/internal/service"
)

type DocumentIndexHandler struct {
	runs *service.DocumentIndexService
}

func NewDocumentIndexHandler(runs *service.DocumentIndexService) *DocumentIndexHandler {
	return &DocumentIndexHandler{runs: runs}
}

type runDocumentIndexRequest struct {
	Chain     *model.Chain `json:"chain"`
	StepIndex int          `json:"step_index"`
	// Credentials are used for this run only.
	Credentials map[string]interface{} `json:"credentials"`
}

func (h *DocumentIndexHandler) Run(c *gin.Context) {
	var req runDocumentIndexRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Chain == nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	var credentials interface{}
	if req.Credentials != nil {
		credentials = req.Credentials
	}
	out, err := h.runs.Run(c.Request.Context(), c.Param("chain_id"), req.Chain, req.StepIndex, credentials)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, out)
}
