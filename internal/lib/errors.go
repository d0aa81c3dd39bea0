package lib

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Error kinds every wallet or contract failure is reduced to before it reaches the user
var (
	ErrProviderUnavailable = errors.New("wallet provider is not available, install or configure a wallet")
	ErrUserRejected        = errors.New("request was rejected by the user")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWrongNetwork        = errors.New("wallet is connected to the wrong network")
	ErrContractCallFailed  = errors.New("contract call failed")
	ErrRpcTransient        = errors.New("rpc node error")
	ErrNotInitialized      = errors.New("wallet session is not initialized, connect a wallet first")
)

var errorKinds = []struct {
	err  error
	name string
}{
	{ErrProviderUnavailable, "ProviderUnavailable"},
	{ErrUserRejected, "UserRejected"},
	{ErrInsufficientBalance, "InsufficientBalance"},
	{ErrWrongNetwork, "WrongNetwork"},
	{ErrNotInitialized, "NotInitialized"},
	{ErrRpcTransient, "RpcTransient"},
	{ErrContractCallFailed, "ContractCallFailed"},
}

// EIP-1193 and JSON-RPC error codes
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnrecognizedChain = 4902
	CodeInternalError     = -32603
	CodeLimitExceeded     = -32005
	CodeServerError       = -32000
)

// WrapError wraps err with the parent error kind, both remain matchable with errors.Is
func WrapError(parent error, err error) error {
	if err == nil {
		return parent
	}
	return fmt.Errorf("%w: %w", parent, err)
}

// ErrorKind returns the name of the error kind err belongs to, or empty string
func ErrorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}

// ClassifyError converts a wallet, rpc or contract error into one of the error kinds.
// Matching is best-effort: rpc error codes first, then revert data, then the message text.
// Errors that already carry a kind are returned unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if ErrorKind(err) != "" {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return WrapError(ErrRpcTransient, err)
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case CodeUserRejected:
			return WrapError(ErrUserRejected, err)
		case CodeUnauthorized:
			return WrapError(ErrNotInitialized, err)
		case CodeInternalError, CodeLimitExceeded:
			if !isRevertMessage(err.Error()) {
				return WrapError(ErrRpcTransient, err)
			}
		}
	}

	if reason, ok := RevertReason(err); ok {
		if containsAny(reason, insufficientMarkers) {
			return WrapError(ErrInsufficientBalance, fmt.Errorf("reverted: %s", reason))
		}
		return WrapError(ErrContractCallFailed, fmt.Errorf("reverted: %s", reason))
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, rejectedMarkers):
		return WrapError(ErrUserRejected, err)
	case containsAny(msg, insufficientMarkers):
		return WrapError(ErrInsufficientBalance, err)
	case errors.Is(err, bind.ErrNoCode), isRevertMessage(msg):
		return WrapError(ErrContractCallFailed, err)
	case containsAny(msg, transientMarkers):
		return WrapError(ErrRpcTransient, err)
	}

	return WrapError(ErrContractCallFailed, err)
}

// RevertReason extracts a decoded Error(string) revert reason from rpc error data
func RevertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return "", false
	}
	hexData, ok := dataErr.ErrorData().(string)
	if !ok {
		return "", false
	}
	data, decodeErr := hexutil.Decode(hexData)
	if decodeErr != nil {
		return "", false
	}
	reason, unpackErr := abi.UnpackRevert(data)
	if unpackErr != nil {
		return "", false
	}
	return reason, true
}

var (
	rejectedMarkers     = []string{"user rejected", "user denied", "rejected by user", "user cancelled"}
	insufficientMarkers = []string{"insufficient", "exceeds balance", "exceeds allowance"}
	transientMarkers    = []string{"connection refused", "connection reset", "timeout", "eof", "too many requests", "429", "503", "no such host"}
)

func isRevertMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "revert") || strings.Contains(msg, "call exception")
}

func containsAny(s string, markers []string) bool {
	s = strings.ToLower(s)
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
