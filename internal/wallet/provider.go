package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/edubounty/edubounty/internal/lib"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// Provider is the capability set of an EIP-1193 style wallet: account authorization,
// chain switching, change notifications, plus the chain connection and transaction
// signer of the authorized account.
type Provider interface {
	// RequestAccounts asks the user to authorize accounts (eth_requestAccounts)
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// Accounts returns already authorized accounts without prompting (eth_accounts)
	Accounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (uint64, error)
	// SwitchChain fails with a 4902 coded error if the chain is unknown to the wallet
	SwitchChain(ctx context.Context, chainID uint64) error
	AddChain(ctx context.Context, params ChainParams) error
	// Subscribe registers handler for accountsChanged and chainChanged events
	Subscribe(handler func(Event)) (unsubscribe func())

	Backend(ctx context.Context) (Backend, error)
	Signer(ctx context.Context, account common.Address) (*bind.TransactOpts, error)
}

// Backend is the chain connection used for contract reads, transaction submission and receipts
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

type EventKind string

const (
	EventAccountsChanged EventKind = "accountsChanged"
	EventChainChanged    EventKind = "chainChanged"
)

type Event struct {
	Kind     EventKind
	Accounts []common.Address // accountsChanged
	ChainID  uint64           // chainChanged
}

type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// ChainParams is the chain metadata carried by wallet_addEthereumChain
type ChainParams struct {
	ChainID           uint64
	ChainName         string
	RPCURLs           []string
	BlockExplorerURLs []string
	NativeCurrency    NativeCurrency
}

func (p ChainParams) Validate() error {
	if p.ChainID == 0 {
		return &ProviderError{Code: CodeInvalidParams, Message: "chain id is required"}
	}
	if len(p.RPCURLs) == 0 || p.RPCURLs[0] == "" {
		return &ProviderError{Code: CodeInvalidParams, Message: "at least one rpc url is required"}
	}
	return nil
}

const CodeInvalidParams = -32602

// ProviderError is an EIP-1193 ProviderRpcError
type ProviderError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

func (e *ProviderError) ErrorCode() int {
	return e.Code
}

func (e *ProviderError) ErrorData() interface{} {
	return e.Data
}

func errUnrecognizedChain(chainID uint64) error {
	return &ProviderError{Code: lib.CodeUnrecognizedChain, Message: fmt.Sprintf("unrecognized chain id %d", chainID)}
}

func errUnauthorized(account common.Address) error {
	return &ProviderError{Code: lib.CodeUnauthorized, Message: fmt.Sprintf("account %s is not authorized", account.Hex())}
}

// IsChainNotAdded reports whether err means the wallet does not know the requested chain
func IsChainNotAdded(err error) bool {
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr) && rpcErr.ErrorCode() == lib.CodeUnrecognizedChain
}
