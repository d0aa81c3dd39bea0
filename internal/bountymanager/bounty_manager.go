package bountymanager

import (
	"context"
	"math/big"
	"sync"

	"github.com/edubounty/edubounty/internal/interfaces"
	"github.com/edubounty/edubounty/internal/lib"
	"github.com/edubounty/edubounty/internal/metrics"
	"github.com/edubounty/edubounty/internal/repositories/contracts"
	"github.com/edubounty/edubounty/internal/taskboard"
	"github.com/edubounty/edubounty/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
)

const (
	BoardLocal = "local"
	BoardChain = "chain"
)

type Session interface {
	State() wallet.State
	Account() (common.Address, bool)
	OnChange(listener func(wallet.Change))
}

type Gateway interface {
	ResetProvider(ctx context.Context) error
	CreateTask(ctx context.Context, title string, description string, reward string) (*contracts.CreateTaskResult, error)
	CompleteTask(ctx context.Context, taskID uint64) (common.Hash, error)
	GetAllTasks(ctx context.Context) ([]contracts.ChainTask, error)
	GetTask(ctx context.Context, taskID uint64) (*contracts.ChainTask, error)
	GetBalance(ctx context.Context, addr common.Address) (string, error)
	WatchEvents(ctx context.Context, fromBlock *big.Int) (*lib.Subscription, error)
}

type refreshRequest struct {
	resync  bool
	balance bool
	stop    bool
}

func (r refreshRequest) merge(o refreshRequest) refreshRequest {
	return refreshRequest{
		resync:  r.resync || o.resync,
		balance: r.balance || o.balance,
		stop:    r.stop || o.stop,
	}
}

// BountyManager drives the data flow between the wallet session, the contract gateway
// and the two task boards: the local one holding demo tasks and the chain one
// mirroring the TaskManager contract.
type BountyManager struct {
	// state
	balanceMu     sync.RWMutex
	balance       *string
	refreshMu     sync.Mutex
	pending       refreshRequest
	refreshSignal chan struct{}

	// deps
	session Session
	gateway Gateway
	local   *taskboard.Board
	chain   *taskboard.Board
	metrics *metrics.Metrics
	log     interfaces.ILogger
}

func NewBountyManager(session Session, gateway Gateway, local *taskboard.Board, chain *taskboard.Board, m *metrics.Metrics, log interfaces.ILogger) *BountyManager {
	bm := &BountyManager{
		refreshSignal: make(chan struct{}, 1),
		session:       session,
		gateway:       gateway,
		local:         local,
		chain:         chain,
		metrics:       m,
		log:           log,
	}
	session.OnChange(bm.onSessionChange)
	return bm
}

// onSessionChange runs under the session notification lock, so it only records
// what needs to be refreshed and leaves the network calls to Run
func (bm *BountyManager) onSessionChange(c wallet.Change) {
	bm.metrics.ObserveSessionChange(string(c.Kind))

	switch c.Kind {
	case wallet.ChangeConnected, wallet.ChangeReload:
		bm.requestRefresh(refreshRequest{resync: true, balance: true})
	case wallet.ChangeAccountChanged:
		bm.requestRefresh(refreshRequest{balance: true})
	case wallet.ChangeDisconnected:
		bm.setBalance(nil)
		bm.requestRefresh(refreshRequest{stop: true})
	}
}

func (bm *BountyManager) requestRefresh(req refreshRequest) {
	bm.refreshMu.Lock()
	bm.pending = bm.pending.merge(req)
	bm.refreshMu.Unlock()

	select {
	case bm.refreshSignal <- struct{}{}:
	default:
	}
}

func (bm *BountyManager) takeRefresh() refreshRequest {
	bm.refreshMu.Lock()
	defer bm.refreshMu.Unlock()
	req := bm.pending
	bm.pending = refreshRequest{}
	return req
}

// Run applies session changes and follows contract events until ctx is done
func (bm *BountyManager) Run(ctx context.Context) error {
	var sub *lib.Subscription
	stopWatching := func() {
		if sub != nil {
			sub.Unsubscribe()
			sub = nil
		}
	}
	defer stopWatching()

	if _, ok := bm.session.Account(); ok {
		bm.requestRefresh(refreshRequest{resync: true, balance: true})
	}

	for {
		var (
			events <-chan interface{}
			errs   <-chan error
		)
		if sub != nil {
			events, errs = sub.Events(), sub.Err()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-bm.refreshSignal:
			req := bm.takeRefresh()
			if req.stop || req.resync {
				stopWatching()
			}
			if req.resync {
				sub = bm.resync(ctx)
			}
			if req.balance {
				bm.refreshBalance(ctx)
			}
		case event, ok := <-events:
			if !ok {
				if err := <-errs; err != nil {
					bm.log.Warnf("contract event stream ended: %s", err)
				}
				stopWatching()
				continue
			}
			bm.handleContractEvent(ctx, event)
		case err := <-errs:
			bm.log.Warnf("contract event stream ended: %s", err)
			stopWatching()
		}
	}
}

// resync rebuilds the chain board from scratch and starts following contract events
func (bm *BountyManager) resync(ctx context.Context) *lib.Subscription {
	bm.chain.Reset()
	bm.updateTaskGauge(BoardChain, nil)

	state := bm.session.State()
	if state.Account == nil {
		return nil
	}
	if !state.IsCorrectNetwork {
		bm.log.Warnf("wallet is on chain %v, expected %d, chain tasks are not synced", lo.FromPtr(state.ChainID), state.TargetChainID)
		return nil
	}

	if err := bm.gateway.ResetProvider(ctx); err != nil {
		bm.log.Warnf("failed to reset provider: %s", err)
		return nil
	}
	if _, err := bm.SyncChainTasks(ctx); err != nil {
		bm.log.Warnf("failed to sync chain tasks: %s", err)
	}

	sub, err := bm.gateway.WatchEvents(ctx, nil)
	if err != nil {
		bm.log.Warnf("failed to subscribe to task manager events: %s", err)
		return nil
	}
	bm.log.Infof("subscribed to task manager events")
	return sub
}

func (bm *BountyManager) handleContractEvent(ctx context.Context, event interface{}) {
	var (
		taskID   uint64
		involved common.Address
	)
	switch e := event.(type) {
	case *contracts.TaskCreatedEvent:
		taskID, involved = e.TaskId.Uint64(), e.Creator
		bm.log.Debugf("task %d created on chain by %s", taskID, e.Creator.Hex())
	case *contracts.TaskCompletedEvent:
		taskID, involved = e.TaskId.Uint64(), e.Completer
		bm.log.Debugf("task %d completed on chain by %s", taskID, e.Completer.Hex())
	default:
		return
	}

	if err := bm.syncChainTask(ctx, taskID); err != nil {
		bm.log.Warnf("failed to sync chain task %d: %s", taskID, err)
	}
	if account, ok := bm.session.Account(); ok && account == involved {
		bm.refreshBalance(ctx)
	}
}

func (bm *BountyManager) requireAccount() (common.Address, error) {
	account, ok := bm.session.Account()
	if !ok {
		return common.Address{}, lib.ErrNotInitialized
	}
	return account, nil
}

func (bm *BountyManager) setBalance(balance *string) {
	bm.balanceMu.Lock()
	defer bm.balanceMu.Unlock()
	bm.balance = balance
}

// CachedBalance returns the last fetched token balance of the connected account
func (bm *BountyManager) CachedBalance() (string, bool) {
	bm.balanceMu.RLock()
	defer bm.balanceMu.RUnlock()
	if bm.balance == nil {
		return "", false
	}
	return *bm.balance, true
}

// Balance fetches the token balance of the connected account
func (bm *BountyManager) Balance(ctx context.Context) (string, error) {
	account, err := bm.requireAccount()
	if err != nil {
		return "", err
	}
	balance, err := bm.gateway.GetBalance(ctx, account)
	if err != nil {
		return "", err
	}
	bm.setBalance(&balance)
	return balance, nil
}

func (bm *BountyManager) refreshBalance(ctx context.Context) {
	state := bm.session.State()
	if state.Account == nil || !state.IsCorrectNetwork {
		bm.setBalance(nil)
		return
	}
	balance, err := bm.Balance(ctx)
	if err != nil {
		bm.log.Warnf("failed to refresh balance: %s", err)
		bm.setBalance(nil)
		return
	}
	bm.log.Debugf("balance of %s is %s", state.Account.Hex(), balance)
}

func (bm *BountyManager) updateTaskGauge(board string, tasks []taskboard.Task) {
	counts := lo.CountValuesBy(tasks, func(t taskboard.Task) string { return string(t.Status) })
	bm.metrics.SetTaskCounts(board, counts)
}
