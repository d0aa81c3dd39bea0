package httphandlers

import (
	"context"
	"net/http"

	"github.com/edubounty/edubounty/internal/taskboard"
	"github.com/gin-gonic/gin"
)

func (h *HTTPHandler) GetTasks(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, h.bounty.Tasks())
}

func (h *HTTPHandler) GetTask(ctx *gin.Context) {
	var params TaskIDParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		h.abortBadRequest(ctx, err)
		return
	}
	task, err := h.bounty.Task(params.ID)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, task)
}

func (h *HTTPHandler) CreateTask(ctx *gin.Context) {
	var req CreateTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		h.abortBadRequest(ctx, err)
		return
	}
	task, err := h.bounty.CreateTask(ctx, req.Title, req.Description, req.Reward)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, task)
}

func (h *HTTPHandler) StartTask(ctx *gin.Context) {
	h.taskAction(ctx, h.bounty.StartTask)
}

func (h *HTTPHandler) SubmitTask(ctx *gin.Context) {
	var params TaskIDParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		h.abortBadRequest(ctx, err)
		return
	}
	var req SubmitTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		h.abortBadRequest(ctx, err)
		return
	}
	task, err := h.bounty.SubmitTask(ctx, params.ID, req.Submission)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, task)
}

func (h *HTTPHandler) MarkComplete(ctx *gin.Context) {
	h.taskAction(ctx, h.bounty.MarkComplete)
}

func (h *HTTPHandler) PayTask(ctx *gin.Context) {
	h.taskAction(ctx, h.bounty.PayTask)
}

func (h *HTTPHandler) GetRewards(ctx *gin.Context) {
	rewards, err := h.bounty.Rewards()
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	if rewards == nil {
		rewards = []taskboard.Reward{}
	}
	ctx.JSON(http.StatusOK, rewards)
}

func (h *HTTPHandler) WithdrawReward(ctx *gin.Context) {
	var params TaskIDParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		h.abortBadRequest(ctx, err)
		return
	}
	reward, err := h.bounty.WithdrawReward(ctx, params.ID)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, reward)
}

type taskActionFunc func(ctx context.Context, taskID uint64) (taskboard.Task, error)

func (h *HTTPHandler) taskAction(ctx *gin.Context, action taskActionFunc) {
	var params TaskIDParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		h.abortBadRequest(ctx, err)
		return
	}
	task, err := action(ctx, params.ID)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, task)
}
