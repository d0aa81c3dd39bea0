package wallet

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/atomic"
)

// ProviderMock is an in-memory wallet. Without overrides it authorizes Accounts on
// RequestAccounts, knows the chains listed in KnownChains and switches between them.
type ProviderMock struct {
	Accs        []common.Address
	Chain       uint64
	KnownChains map[uint64]bool

	RequestAccountsFunc func(ctx context.Context) ([]common.Address, error)
	SwitchChainFunc     func(ctx context.Context, chainID uint64) error
	AddChainFunc        func(ctx context.Context, params ChainParams) error
	BackendFunc         func(ctx context.Context) (Backend, error)
	SignerFunc          func(ctx context.Context, account common.Address) (*bind.TransactOpts, error)

	RequestAccountsCalledTimes atomic.Int32
	AccountsCalledTimes        atomic.Int32
	SwitchChainCalledTimes     atomic.Int32
	AddChainCalledTimes        atomic.Int32

	mu         sync.Mutex
	authorized bool
	handlers   []func(Event)
}

func NewProviderMock(chainID uint64, accounts ...common.Address) *ProviderMock {
	return &ProviderMock{
		Accs:        accounts,
		Chain:       chainID,
		KnownChains: map[uint64]bool{chainID: true},
	}
}

// Authorize marks accounts as already authorized, as after a previous session
func (m *ProviderMock) Authorize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authorized = true
}

func (m *ProviderMock) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	m.RequestAccountsCalledTimes.Inc()
	if m.RequestAccountsFunc != nil {
		return m.RequestAccountsFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authorized = true
	return append([]common.Address{}, m.Accs...), nil
}

func (m *ProviderMock) Accounts(ctx context.Context) ([]common.Address, error) {
	m.AccountsCalledTimes.Inc()
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authorized {
		return []common.Address{}, nil
	}
	return append([]common.Address{}, m.Accs...), nil
}

func (m *ProviderMock) ChainID(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Chain, nil
}

func (m *ProviderMock) SwitchChain(ctx context.Context, chainID uint64) error {
	m.SwitchChainCalledTimes.Inc()
	if m.SwitchChainFunc != nil {
		return m.SwitchChainFunc(ctx, chainID)
	}
	m.mu.Lock()
	if !m.KnownChains[chainID] {
		m.mu.Unlock()
		return errUnrecognizedChain(chainID)
	}
	m.Chain = chainID
	m.mu.Unlock()
	return nil
}

func (m *ProviderMock) AddChain(ctx context.Context, params ChainParams) error {
	m.AddChainCalledTimes.Inc()
	if m.AddChainFunc != nil {
		return m.AddChainFunc(ctx, params)
	}
	if err := params.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.KnownChains[params.ChainID] = true
	m.Chain = params.ChainID
	m.mu.Unlock()
	return nil
}

func (m *ProviderMock) Subscribe(handler func(Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
	idx := len(m.handlers) - 1
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.handlers[idx] = nil
	}
}

// Emit delivers ev to subscribers as the wallet would
func (m *ProviderMock) Emit(ev Event) {
	m.mu.Lock()
	switch ev.Kind {
	case EventChainChanged:
		m.Chain = ev.ChainID
	case EventAccountsChanged:
		m.Accs = ev.Accounts
	}
	handlers := append([]func(Event){}, m.handlers...)
	m.mu.Unlock()

	for _, h := range handlers {
		if h != nil {
			h(ev)
		}
	}
}

func (m *ProviderMock) Backend(ctx context.Context) (Backend, error) {
	if m.BackendFunc != nil {
		return m.BackendFunc(ctx)
	}
	return nil, errors.New("no backend")
}

func (m *ProviderMock) Signer(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	if m.SignerFunc != nil {
		return m.SignerFunc(ctx, account)
	}
	return nil, errUnauthorized(account)
}

var _ Provider = (*ProviderMock)(nil)
