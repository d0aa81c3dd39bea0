package httphandlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *HTTPHandler) GetSession(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, h.session.State())
}

func (h *HTTPHandler) Connect(ctx *gin.Context) {
	state, err := h.session.Connect(ctx)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, state)
}

func (h *HTTPHandler) Disconnect(ctx *gin.Context) {
	h.session.Disconnect(ctx)
	ctx.JSON(http.StatusOK, h.session.State())
}

func (h *HTTPHandler) SwitchNetwork(ctx *gin.Context) {
	err := h.session.SwitchNetwork(ctx)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, h.session.State())
}

func (h *HTTPHandler) GetBalance(ctx *gin.Context) {
	balance, err := h.bounty.Balance(ctx)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	state := h.session.State()
	res := BalanceResponse{Balance: balance}
	if state.Account != nil {
		res.Account = *state.Account
	}
	ctx.JSON(http.StatusOK, res)
}
