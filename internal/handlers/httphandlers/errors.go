package httphandlers

import (
	"errors"
	"net/http"

	"github.com/edubounty/edubounty/internal/auth"
	"github.com/edubounty/edubounty/internal/lib"
	"github.com/edubounty/edubounty/internal/repositories/contracts"
	"github.com/edubounty/edubounty/internal/taskboard"
	"github.com/edubounty/edubounty/internal/wallet"
	"github.com/gin-gonic/gin"
)

type errorMapping struct {
	err    error
	status int
	kind   string
	title  string
}

// checked in order, the first match wins
var errorMappings = []errorMapping{
	{taskboard.ErrTaskNotFound, http.StatusNotFound, "TaskNotFound", "Task not found"},
	{taskboard.ErrRewardNotFound, http.StatusNotFound, "RewardNotFound", "Reward not found"},
	{contracts.ErrTaskNotFound, http.StatusNotFound, "TaskNotFound", "Task not found"},
	{taskboard.ErrTransitionRejected, http.StatusConflict, "TransitionRejected", "Action not allowed"},
	{taskboard.ErrInvalidTask, http.StatusBadRequest, "InvalidTask", "Invalid task"},
	{contracts.ErrInvalidTask, http.StatusBadRequest, "InvalidTask", "Invalid task"},
	{lib.ErrInvalidAmount, http.StatusBadRequest, "InvalidTask", "Invalid reward"},
	{wallet.ErrConnectInProgress, http.StatusConflict, "ActionInProgress", "Please wait"},

	{lib.ErrNotInitialized, http.StatusUnauthorized, "NotInitialized", "Wallet not connected"},
	{lib.ErrProviderUnavailable, http.StatusServiceUnavailable, "ProviderUnavailable", "Wallet not available"},
	{lib.ErrUserRejected, http.StatusForbidden, "UserRejected", "Request rejected"},
	{lib.ErrInsufficientBalance, http.StatusUnprocessableEntity, "InsufficientBalance", "Insufficient balance"},
	{lib.ErrWrongNetwork, http.StatusConflict, "WrongNetwork", "Wrong network"},
	{lib.ErrContractCallFailed, http.StatusBadGateway, "ContractCallFailed", "Transaction failed"},
	{lib.ErrRpcTransient, http.StatusServiceUnavailable, "RpcTransient", "Network error"},

	{auth.ErrInvalidState, http.StatusBadRequest, "AuthFailed", "Authentication failed"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "AuthFailed", "Authentication failed"},
	{auth.ErrTokenExchange, http.StatusBadGateway, "AuthFailed", "Authentication failed"},
	{auth.ErrVerificationKeyRequired, http.StatusInternalServerError, "AuthFailed", "Authentication is misconfigured"},
}

func (h *HTTPHandler) abortWithError(ctx *gin.Context, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			h.log.Debugf("%s %s: %s", ctx.Request.Method, ctx.Request.URL.Path, err)
			ctx.AbortWithStatusJSON(m.status, ErrorResponse{Kind: m.kind, Title: m.title, Error: err.Error()})
			return
		}
	}

	h.log.Errorf("%s %s: %s", ctx.Request.Method, ctx.Request.URL.Path, err)
	ctx.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
		Kind:  "Unexpected",
		Title: "Something went wrong",
		Error: err.Error(),
	})
}

func (h *HTTPHandler) abortBadRequest(ctx *gin.Context, err error) {
	ctx.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Kind:  "InvalidRequest",
		Title: "Invalid request",
		Error: err.Error(),
	})
}
