package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/edubounty/edubounty/internal/interfaces"
	"github.com/edubounty/edubounty/internal/lib"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
	"go.uber.org/atomic"
)

type Dialer func(ctx context.Context, url string) (Backend, error)

func DialEthClient(ctx context.Context, url string) (Backend, error) {
	return ethclient.DialContext(ctx, url)
}

// KeyedProvider is a wallet backed by a local private key. The key holder is treated
// as the user: every authorization request is approved until RevokeAccounts is called.
type KeyedProvider struct {
	// config
	legacyTx   bool
	privateKey *ecdsa.PrivateKey
	address    common.Address

	// state
	authorized *atomic.Bool
	mu         sync.Mutex
	chains     map[uint64]ChainParams
	chainID    uint64
	backends   map[uint64]Backend
	handlersMu sync.Mutex
	handlers   map[int]func(Event)
	handlerID  int

	// deps
	dial Dialer
	log  interfaces.ILogger
}

func NewKeyedProvider(privateKey *ecdsa.PrivateKey, home ChainParams, dial Dialer, log interfaces.ILogger) (*KeyedProvider, error) {
	if err := home.Validate(); err != nil {
		return nil, err
	}
	address, err := lib.PrivKeyToAddr(privateKey)
	if err != nil {
		return nil, err
	}
	if dial == nil {
		dial = DialEthClient
	}

	return &KeyedProvider{
		privateKey: privateKey,
		address:    address,
		authorized: atomic.NewBool(true),
		chains:     map[uint64]ChainParams{home.ChainID: home},
		chainID:    home.ChainID,
		backends:   make(map[uint64]Backend),
		handlers:   make(map[int]func(Event)),
		dial:       dial,
		log:        log,
	}, nil
}

// PrivateKeyFromMnemonic derives the key of the account at m/44'/60'/0'/0/index
func PrivateKeyFromMnemonic(mnemonic string, accountIndex int) (*ecdsa.PrivateKey, error) {
	wallet, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}

	path := hdwallet.MustParseDerivationPath(fmt.Sprintf("m/44'/60'/0'/0/%d", accountIndex))

	account, err := wallet.Derive(path, false)
	if err != nil {
		return nil, err
	}

	return wallet.PrivateKey(account)
}

func (p *KeyedProvider) SetLegacyTx(legacyTx bool) {
	p.legacyTx = legacyTx
}

func (p *KeyedProvider) Address() common.Address {
	return p.address
}

func (p *KeyedProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if p.authorized.CAS(false, true) {
		p.emit(Event{Kind: EventAccountsChanged, Accounts: []common.Address{p.address}})
	}
	return []common.Address{p.address}, nil
}

func (p *KeyedProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	if !p.authorized.Load() {
		return []common.Address{}, nil
	}
	return []common.Address{p.address}, nil
}

// RevokeAccounts withdraws the authorization, the same way a user disconnects a site in the wallet
func (p *KeyedProvider) RevokeAccounts() {
	if p.authorized.CAS(true, false) {
		p.emit(Event{Kind: EventAccountsChanged, Accounts: []common.Address{}})
	}
}

func (p *KeyedProvider) ChainID(ctx context.Context) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID, nil
}

func (p *KeyedProvider) SwitchChain(ctx context.Context, chainID uint64) error {
	p.mu.Lock()
	if _, ok := p.chains[chainID]; !ok {
		p.mu.Unlock()
		return errUnrecognizedChain(chainID)
	}
	changed := p.chainID != chainID
	p.chainID = chainID
	p.mu.Unlock()

	if changed {
		p.log.Infof("switched to chain %d", chainID)
		p.emit(Event{Kind: EventChainChanged, ChainID: chainID})
	}
	return nil
}

func (p *KeyedProvider) AddChain(ctx context.Context, params ChainParams) error {
	if err := params.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	p.chains[params.ChainID] = params
	delete(p.backends, params.ChainID)
	p.mu.Unlock()

	p.log.Infof("added chain %d %s", params.ChainID, params.ChainName)
	return p.SwitchChain(ctx, params.ChainID)
}

func (p *KeyedProvider) Subscribe(handler func(Event)) func() {
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

func (p *KeyedProvider) emit(ev Event) {
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

// Backend returns the connection to the current chain, dialing it on first use
func (p *KeyedProvider) Backend(ctx context.Context) (Backend, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if backend, ok := p.backends[p.chainID]; ok {
		return backend, nil
	}

	params := p.chains[p.chainID]
	backend, err := p.dial(ctx, params.RPCURLs[0])
	if err != nil {
		return nil, lib.WrapError(lib.ErrRpcTransient, err)
	}
	p.backends[p.chainID] = backend
	return backend, nil
}

func (p *KeyedProvider) Signer(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	if !p.authorized.Load() || account != p.address {
		return nil, errUnauthorized(account)
	}

	chainID, err := p.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	transactOpts, err := bind.NewKeyedTransactorWithChainID(p.privateKey, new(big.Int).SetUint64(chainID))
	if err != nil {
		return nil, err
	}

	if p.legacyTx {
		backend, err := p.Backend(ctx)
		if err != nil {
			return nil, err
		}
		gasPrice, err := backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, err
		}
		transactOpts.GasPrice = gasPrice
	}

	transactOpts.Value = big.NewInt(0)
	transactOpts.Context = ctx

	return transactOpts, nil
}

var _ Provider = (*KeyedProvider)(nil)
