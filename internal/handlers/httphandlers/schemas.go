package httphandlers

import (
	"github.com/ethereum/go-ethereum/common"
)

type ConfigResponse struct {
	Version string
	Config  interface{}
}

// ErrorResponse is the dismissable notification every failed action turns into
type ErrorResponse struct {
	Kind  string `json:"kind"`
	Title string `json:"title"`
	Error string `json:"error"`
}

type TaskIDParams struct {
	ID uint64 `uri:"id" binding:"required"`
}

type CreateTaskRequest struct {
	Title       string `json:"title"       binding:"required"`
	Description string `json:"description"`
	Reward      string `json:"reward"      binding:"required"`
}

type SubmitTaskRequest struct {
	Submission string `json:"submission" binding:"required"`
}

type CallbackParams struct {
	Code  string `form:"code"  binding:"required"`
	State string `form:"state" binding:"required"`
}

type BalanceResponse struct {
	Account common.Address `json:"account"`
	Balance string         `json:"balance"`
}

type CompleteTaskResponse struct {
	TaskID uint64      `json:"taskId"`
	TxHash common.Hash `json:"txHash"`
}

type LoginResponse struct {
	LoginURL string `json:"loginUrl"`
}
