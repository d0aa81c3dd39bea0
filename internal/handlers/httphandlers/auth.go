package httphandlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Login redirects to the OCID login page, ?redirect=false returns the URL instead
func (h *HTTPHandler) Login(ctx *gin.Context) {
	loginURL, err := h.auth.Login(ctx)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	if ctx.Query("redirect") == "false" {
		ctx.JSON(http.StatusOK, LoginResponse{LoginURL: loginURL})
		return
	}
	ctx.Redirect(http.StatusFound, loginURL)
}

func (h *HTTPHandler) AuthCallback(ctx *gin.Context) {
	var params CallbackParams
	if err := ctx.ShouldBindQuery(&params); err != nil {
		h.abortBadRequest(ctx, err)
		return
	}
	state, err := h.auth.Callback(ctx, params.Code, params.State)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, state)
}

func (h *HTTPHandler) Logout(ctx *gin.Context) {
	if err := h.auth.Logout(ctx); err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) GetAuthState(ctx *gin.Context) {
	state, err := h.auth.State(ctx)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, state)
}
