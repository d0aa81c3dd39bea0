package httphandlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetChainTasks reads every task of the contract and returns the reconciled chain board
func (h *HTTPHandler) GetChainTasks(ctx *gin.Context) {
	tasks, err := h.bounty.SyncChainTasks(ctx)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, tasks)
}

func (h *HTTPHandler) GetChainTask(ctx *gin.Context) {
	var params TaskIDParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		h.abortBadRequest(ctx, err)
		return
	}
	task, err := h.bounty.ChainTask(ctx, params.ID)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, task)
}

func (h *HTTPHandler) CreateChainTask(ctx *gin.Context) {
	var req CreateTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		h.abortBadRequest(ctx, err)
		return
	}
	result, err := h.bounty.CreateTaskOnChain(ctx, req.Title, req.Description, req.Reward)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, result)
}

func (h *HTTPHandler) CompleteChainTask(ctx *gin.Context) {
	var params TaskIDParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		h.abortBadRequest(ctx, err)
		return
	}
	txHash, err := h.bounty.CompleteTaskOnChain(ctx, params.ID)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, CompleteTaskResponse{TaskID: params.ID, TxHash: txHash})
}
