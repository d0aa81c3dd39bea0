package wallet

import (
	"context"
	"errors"
	"sync"

	"github.com/edubounty/edubounty/internal/interfaces"
	"github.com/edubounty/edubounty/internal/lib"
	"github.com/edubounty/edubounty/internal/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gammazero/deque"
	"go.uber.org/atomic"
)

const KeyConnectedAccount = "connectedAccount"

var ErrConnectInProgress = errors.New("wallet connection is already in progress")

type ChangeKind string

const (
	ChangeConnected      ChangeKind = "connected"
	ChangeAccountChanged ChangeKind = "accountChanged"
	ChangeDisconnected   ChangeKind = "disconnected"
	ChangeChainChanged   ChangeKind = "chainChanged"
	// ChangeReload follows every chain change, dependents rebuild everything derived from the chain
	ChangeReload ChangeKind = "reload"
)

type Change struct {
	Kind  ChangeKind
	State State
}

type State struct {
	Account          *common.Address `json:"account"`
	ChainID          *uint64         `json:"chainId"`
	TargetChainID    uint64          `json:"targetChainId"`
	IsCorrectNetwork bool            `json:"isCorrectNetwork"`
	IsConnecting     bool            `json:"isConnecting"`
}

// Session is the single source of truth for the connected account and chain.
// State changes are committed before listeners run, and listeners run one change at a time.
// Listeners must not call Connect, Disconnect or SwitchNetwork.
type Session struct {
	// config
	target ChainParams

	// state
	mu           sync.RWMutex
	account      *common.Address
	chainID      *uint64
	isConnecting *atomic.Bool
	notifyMu     sync.Mutex
	listeners    []func(Change)
	eventsMu     sync.Mutex
	events       *deque.Deque[Event]
	eventSignal  chan struct{}
	unsubscribe  func()

	// deps
	provider Provider
	store    storage.Store
	log      interfaces.ILogger
}

// NewSession creates a session for the provider, nil provider is allowed and makes
// every wallet operation fail with lib.ErrProviderUnavailable
func NewSession(provider Provider, store storage.Store, target ChainParams, log interfaces.ILogger) *Session {
	s := &Session{
		target:       target,
		isConnecting: atomic.NewBool(false),
		events:       deque.New[Event](),
		eventSignal:  make(chan struct{}, 1),
		provider:     provider,
		store:        store,
		log:          log,
	}
	if provider != nil {
		s.unsubscribe = provider.Subscribe(s.enqueueEvent)
	}
	return s
}

func (s *Session) OnChange(listener func(Change)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// Init restores the account persisted by a previous run without prompting the user,
// as long as the wallet still reports it as authorized
func (s *Session) Init(ctx context.Context) error {
	if s.provider == nil {
		return lib.ErrProviderUnavailable
	}

	chainID, err := s.provider.ChainID(ctx)
	if err != nil {
		return lib.ClassifyError(err)
	}

	persisted, ok, err := s.store.Get(ctx, KeyConnectedAccount)
	if err != nil {
		return err
	}

	var restored *common.Address
	if ok {
		accounts, err := s.provider.Accounts(ctx)
		if err != nil {
			return lib.ClassifyError(err)
		}
		for _, acc := range accounts {
			if lib.SameAddress(acc.Hex(), persisted) {
				a := acc
				restored = &a
				break
			}
		}
		if restored == nil {
			s.log.Infof("persisted account %s is no longer authorized", persisted)
			if err := s.store.Delete(ctx, KeyConnectedAccount); err != nil {
				s.log.Warnf("failed to clear persisted account: %s", err)
			}
		}
	}

	s.commit(func() []ChangeKind {
		s.chainID = &chainID
		if restored == nil {
			return nil
		}
		s.account = restored
		return []ChangeKind{ChangeConnected}
	})

	if restored != nil {
		s.log.Infof("restored account %s on chain %d", restored.Hex(), chainID)
	}
	return nil
}

// Connect asks the wallet to authorize an account and makes the first one active
func (s *Session) Connect(ctx context.Context) (State, error) {
	if s.provider == nil {
		return s.State(), lib.ErrProviderUnavailable
	}
	if !s.isConnecting.CAS(false, true) {
		return s.State(), ErrConnectInProgress
	}
	defer s.isConnecting.Store(false)

	accounts, err := s.provider.RequestAccounts(ctx)
	if err != nil {
		return s.State(), lib.ClassifyError(err)
	}
	if len(accounts) == 0 {
		return s.State(), lib.WrapError(lib.ErrUserRejected, errors.New("no account was authorized"))
	}

	chainID, err := s.provider.ChainID(ctx)
	if err != nil {
		return s.State(), lib.ClassifyError(err)
	}

	account := accounts[0]
	if err := s.store.Set(ctx, KeyConnectedAccount, account.Hex()); err != nil {
		s.log.Warnf("failed to persist connected account: %s", err)
	}

	s.commit(func() []ChangeKind {
		s.chainID = &chainID
		s.account = &account
		return []ChangeKind{ChangeConnected}
	})

	s.log.Infof("connected account %s on chain %d", account.Hex(), chainID)
	s.isConnecting.Store(false)
	return s.State(), nil
}

func (s *Session) Disconnect(ctx context.Context) {
	if err := s.store.Delete(ctx, KeyConnectedAccount); err != nil {
		s.log.Warnf("failed to clear persisted account: %s", err)
	}

	s.commit(func() []ChangeKind {
		if s.account == nil {
			return nil
		}
		s.account = nil
		return []ChangeKind{ChangeDisconnected}
	})
}

// SwitchNetwork moves the wallet to the target chain, adding the chain first if the
// wallet does not know it. It is a no-op when the wallet is already on the target chain.
func (s *Session) SwitchNetwork(ctx context.Context) error {
	if s.provider == nil {
		return lib.ErrProviderUnavailable
	}
	if s.State().IsCorrectNetwork {
		return nil
	}

	err := s.provider.SwitchChain(ctx, s.target.ChainID)
	if IsChainNotAdded(err) {
		s.log.Infof("chain %d is unknown to the wallet, adding it", s.target.ChainID)
		err = s.provider.AddChain(ctx, s.target)
		if err != nil {
			s.log.Warnf("failed to add chain %d: %s", s.target.ChainID, err)
			return lib.ClassifyError(err)
		}
	} else if err != nil {
		return lib.ClassifyError(err)
	}

	chainID, err := s.provider.ChainID(ctx)
	if err != nil {
		return lib.ClassifyError(err)
	}
	s.applyChain(chainID)
	return nil
}

// Run dispatches provider events in arrival order until ctx is done
func (s *Session) Run(ctx context.Context) error {
	if s.unsubscribe != nil {
		defer s.unsubscribe()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.eventSignal:
		}

		for {
			ev, ok := s.popEvent()
			if !ok {
				break
			}
			s.handleEvent(ctx, ev)
		}
	}
}

func (s *Session) handleEvent(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventAccountsChanged:
		if len(ev.Accounts) == 0 {
			s.log.Infof("wallet reports no authorized accounts, disconnecting")
			s.Disconnect(ctx)
			return
		}
		account := ev.Accounts[0]
		if err := s.store.Set(ctx, KeyConnectedAccount, account.Hex()); err != nil {
			s.log.Warnf("failed to persist connected account: %s", err)
		}
		s.commit(func() []ChangeKind {
			if s.account != nil && *s.account == account {
				return nil
			}
			s.account = &account
			return []ChangeKind{ChangeAccountChanged}
		})
	case EventChainChanged:
		s.applyChain(ev.ChainID)
	default:
		s.log.Warnf("unknown provider event %s", ev.Kind)
	}
}

func (s *Session) applyChain(chainID uint64) {
	s.commit(func() []ChangeKind {
		if s.chainID != nil && *s.chainID == chainID {
			return nil
		}
		s.chainID = &chainID
		return []ChangeKind{ChangeChainChanged, ChangeReload}
	})
}

// commit applies mutate under the state lock, then notifies listeners of the returned changes
func (s *Session) commit(mutate func() []ChangeKind) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	kinds := mutate()
	s.mu.Unlock()

	state := s.State()
	for _, kind := range kinds {
		for _, l := range s.listeners {
			l(Change{Kind: kind, State: state})
		}
	}
}

func (s *Session) enqueueEvent(ev Event) {
	s.eventsMu.Lock()
	s.events.PushBack(ev)
	s.eventsMu.Unlock()

	select {
	case s.eventSignal <- struct{}{}:
	default:
	}
}

func (s *Session) popEvent() (Event, bool) {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	if s.events.Len() == 0 {
		return Event{}, false
	}
	return s.events.PopFront(), true
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := State{
		TargetChainID: s.target.ChainID,
		IsConnecting:  s.isConnecting.Load(),
	}
	if s.account != nil {
		a := *s.account
		state.Account = &a
	}
	if s.chainID != nil {
		c := *s.chainID
		state.ChainID = &c
		state.IsCorrectNetwork = c == s.target.ChainID
	}
	return state
}

func (s *Session) Account() (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.account == nil {
		return common.Address{}, false
	}
	return *s.account, true
}

func (s *Session) ChainID() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.chainID == nil {
		return 0, false
	}
	return *s.chainID, true
}

func (s *Session) TargetChainID() uint64 {
	return s.target.ChainID
}

func (s *Session) Provider() Provider {
	return s.provider
}
