package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/edubounty/edubounty/internal/interfaces"
	"github.com/edubounty/edubounty/internal/lib"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/samber/lo"
	"golang.org/x/exp/slices"
)

const dialTimeout = 30 * time.Second

// RPCProvider talks to a remote EIP-1193 wallet over JSON-RPC. The wallet holds the keys,
// transactions are signed with eth_signTransaction and broadcast through the same endpoint.
// The endpoint has no push channel, accountsChanged and chainChanged are derived by polling.
type RPCProvider struct {
	// config
	pollInterval time.Duration

	// state
	handlersMu   sync.Mutex
	handlers     map[int]func(Event)
	handlerID    int
	primed       bool
	lastAccounts []common.Address
	lastChainID  uint64

	// deps
	client *rpc.Client
	log    interfaces.ILogger
}

func DialRPCProvider(ctx context.Context, url string, pollInterval time.Duration, log interfaces.ILogger) (*RPCProvider, error) {
	var client *rpc.Client

	err := lib.Poll(ctx, dialTimeout, func() error {
		c, err := rpc.DialContext(ctx, url)
		if err != nil {
			log.Warnf("wallet endpoint is not reachable: %s", err)
			return err
		}
		var chainID hexutil.Uint64
		if err := c.CallContext(ctx, &chainID, "eth_chainId"); err != nil {
			c.Close()
			log.Warnf("wallet endpoint is not responding: %s", err)
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, lib.WrapError(lib.ErrProviderUnavailable, err)
	}

	return NewRPCProvider(client, pollInterval, log), nil
}

func NewRPCProvider(client *rpc.Client, pollInterval time.Duration, log interfaces.ILogger) *RPCProvider {
	return &RPCProvider{
		pollInterval: pollInterval,
		handlers:     make(map[int]func(Event)),
		client:       client,
		log:          log,
	}
}

func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	err := p.client.CallContext(ctx, &accounts, "eth_requestAccounts")
	return accounts, err
}

func (p *RPCProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	err := p.client.CallContext(ctx, &accounts, "eth_accounts")
	return accounts, err
}

func (p *RPCProvider) ChainID(ctx context.Context) (uint64, error) {
	var chainID hexutil.Uint64
	err := p.client.CallContext(ctx, &chainID, "eth_chainId")
	return uint64(chainID), err
}

type switchChainParams struct {
	ChainID hexutil.Uint64 `json:"chainId"`
}

func (p *RPCProvider) SwitchChain(ctx context.Context, chainID uint64) error {
	return p.client.CallContext(ctx, nil, "wallet_switchEthereumChain", switchChainParams{ChainID: hexutil.Uint64(chainID)})
}

type addChainParams struct {
	ChainID           hexutil.Uint64 `json:"chainId"`
	ChainName         string         `json:"chainName"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
}

func (p *RPCProvider) AddChain(ctx context.Context, params ChainParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	return p.client.CallContext(ctx, nil, "wallet_addEthereumChain", addChainParams{
		ChainID:           hexutil.Uint64(params.ChainID),
		ChainName:         params.ChainName,
		RPCURLs:           params.RPCURLs,
		BlockExplorerURLs: params.BlockExplorerURLs,
		NativeCurrency:    params.NativeCurrency,
	})
}

func (p *RPCProvider) Subscribe(handler func(Event)) func() {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()

	id := p.handlerID
	p.handlerID++
	p.handlers[id] = handler

	return func() {
		p.handlersMu.Lock()
		defer p.handlersMu.Unlock()
		delete(p.handlers, id)
	}
}

// Run polls the wallet and emits an event for every observed account or chain change.
// The first successful poll only records the snapshot, failed polls are logged and retried.
func (p *RPCProvider) Run(ctx context.Context) error {
	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.pollInterval):
		}

		p.poll(ctx)
	}
}

func (p *RPCProvider) poll(ctx context.Context) {
	accounts, err := p.Accounts(ctx)
	if err != nil {
		p.log.Warnf("failed to poll wallet accounts: %s", err)
		return
	}
	chainID, err := p.ChainID(ctx)
	if err != nil {
		p.log.Warnf("failed to poll wallet chain id: %s", err)
		return
	}

	if !p.primed {
		p.lastAccounts, p.lastChainID, p.primed = accounts, chainID, true
		return
	}

	if !slices.Equal(accounts, p.lastAccounts) {
		p.lastAccounts = accounts
		p.emit(Event{Kind: EventAccountsChanged, Accounts: accounts})
	}
	if chainID != p.lastChainID {
		p.lastChainID = chainID
		p.emit(Event{Kind: EventChainChanged, ChainID: chainID})
	}
}

func (p *RPCProvider) emit(ev Event) {
	p.handlersMu.Lock()
	handlers := make([]func(Event), 0, len(p.handlers))
	for _, h := range p.handlers {
		handlers = append(handlers, h)
	}
	p.handlersMu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (p *RPCProvider) Backend(ctx context.Context) (Backend, error) {
	return ethclient.NewClient(p.client), nil
}

type txArgs struct {
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to,omitempty"`
	Gas                  hexutil.Uint64  `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexutil.Big    `json:"value"`
	Nonce                hexutil.Uint64  `json:"nonce"`
	Data                 hexutil.Bytes   `json:"data"`
	ChainID              *hexutil.Big    `json:"chainId,omitempty"`
}

func newTxArgs(from common.Address, tx *types.Transaction) txArgs {
	args := txArgs{
		From:  from,
		To:    tx.To(),
		Gas:   hexutil.Uint64(tx.Gas()),
		Value: (*hexutil.Big)(tx.Value()),
		Nonce: hexutil.Uint64(tx.Nonce()),
		Data:  tx.Data(),
	}
	if tx.Type() == types.DynamicFeeTxType {
		args.MaxFeePerGas = (*hexutil.Big)(tx.GasFeeCap())
		args.MaxPriorityFeePerGas = (*hexutil.Big)(tx.GasTipCap())
	} else {
		args.GasPrice = (*hexutil.Big)(tx.GasPrice())
	}
	if tx.ChainId() != nil && tx.ChainId().Sign() > 0 {
		args.ChainID = (*hexutil.Big)(tx.ChainId())
	}
	return args
}

// signTxResult accepts both the bare raw transaction and the {raw, tx} object geth returns
type signTxResult struct {
	Raw hexutil.Bytes `json:"raw"`
}

func (r *signTxResult) UnmarshalJSON(data []byte) error {
	var raw hexutil.Bytes
	if err := json.Unmarshal(data, &raw); err == nil {
		r.Raw = raw
		return nil
	}
	type plain signTxResult
	return json.Unmarshal(data, (*plain)(r))
}

func (p *RPCProvider) Signer(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	accounts, err := p.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	if !lo.Contains(accounts, account) {
		return nil, errUnauthorized(account)
	}

	return &bind.TransactOpts{
		From:    account,
		Value:   big.NewInt(0),
		Context: ctx,
		Signer: func(from common.Address, tx *types.Transaction) (*types.Transaction, error) {
			if from != account {
				return nil, bind.ErrNotAuthorized
			}
			var res signTxResult
			if err := p.client.CallContext(ctx, &res, "eth_signTransaction", newTxArgs(from, tx)); err != nil {
				return nil, err
			}
			signed := new(types.Transaction)
			if err := signed.UnmarshalBinary(res.Raw); err != nil {
				return nil, fmt.Errorf("wallet returned malformed transaction: %w", err)
			}
			if signed.Nonce() != tx.Nonce() || !bytes.Equal(signed.Data(), tx.Data()) {
				return nil, fmt.Errorf("wallet signed a different transaction")
			}
			return signed, nil
		},
	}, nil
}

func (p *RPCProvider) Close() {
	p.client.Close()
}

var _ Provider = (*RPCProvider)(nil)
