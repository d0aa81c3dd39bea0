package bountymanager

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/edubounty/edubounty/internal/lib"
	"github.com/edubounty/edubounty/internal/repositories/contracts"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/atomic"
)

// GatewayMock keeps chain tasks and balances in memory. Func fields override the defaults.
type GatewayMock struct {
	CreateTaskFunc   func(ctx context.Context, title string, description string, reward string) (*contracts.CreateTaskResult, error)
	CompleteTaskFunc func(ctx context.Context, taskID uint64) (common.Hash, error)
	GetAllTasksFunc  func(ctx context.Context) ([]contracts.ChainTask, error)
	WatchEventsFunc  func(ctx context.Context, fromBlock *big.Int) (*lib.Subscription, error)

	ResetProviderCalledTimes atomic.Int32
	GetAllTasksCalledTimes   atomic.Int32
	GetBalanceCalledTimes    atomic.Int32
	WatchEventsCalledTimes   atomic.Int32

	mu       sync.Mutex
	tasks    map[uint64]contracts.ChainTask
	balances map[common.Address]string
}

func NewGatewayMock() *GatewayMock {
	return &GatewayMock{
		tasks:    make(map[uint64]contracts.ChainTask),
		balances: make(map[common.Address]string),
	}
}

func (m *GatewayMock) SetTask(task contracts.ChainTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task
}

func (m *GatewayMock) SetBalance(addr common.Address, balance string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[addr] = balance
}

func (m *GatewayMock) ResetProvider(ctx context.Context) error {
	m.ResetProviderCalledTimes.Inc()
	return nil
}

func (m *GatewayMock) CreateTask(ctx context.Context, title string, description string, reward string) (*contracts.CreateTaskResult, error) {
	if m.CreateTaskFunc != nil {
		return m.CreateTaskFunc(ctx, title, description, reward)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uint64(len(m.tasks) + 1)
	m.tasks[id] = contracts.ChainTask{ID: id, Title: title, Description: description, Reward: reward}
	return &contracts.CreateTaskResult{TaskID: id, CreateTxHash: common.BigToHash(new(big.Int).SetUint64(id))}, nil
}

func (m *GatewayMock) CompleteTask(ctx context.Context, taskID uint64) (common.Hash, error) {
	if m.CompleteTaskFunc != nil {
		return m.CompleteTaskFunc(ctx, taskID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return common.Hash{}, lib.WrapError(lib.ErrContractCallFailed, errors.New("execution reverted"))
	}
	task.IsCompleted = true
	m.tasks[taskID] = task
	return common.BigToHash(new(big.Int).SetUint64(taskID)), nil
}

func (m *GatewayMock) GetAllTasks(ctx context.Context) ([]contracts.ChainTask, error) {
	m.GetAllTasksCalledTimes.Inc()
	if m.GetAllTasksFunc != nil {
		return m.GetAllTasksFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tasks := make([]contracts.ChainTask, 0, len(m.tasks))
	for i := uint64(1); i <= uint64(len(m.tasks)); i++ {
		if t, ok := m.tasks[i]; ok {
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

func (m *GatewayMock) GetTask(ctx context.Context, taskID uint64) (*contracts.ChainTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return nil, contracts.ErrTaskNotFound
	}
	return &task, nil
}

func (m *GatewayMock) GetBalance(ctx context.Context, addr common.Address) (string, error) {
	m.GetBalanceCalledTimes.Inc()
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.balances[addr]; ok {
		return b, nil
	}
	return "0", nil
}

// WatchEvents returns a subscription that stays silent until unsubscribed
func (m *GatewayMock) WatchEvents(ctx context.Context, fromBlock *big.Int) (*lib.Subscription, error) {
	m.WatchEventsCalledTimes.Inc()
	if m.WatchEventsFunc != nil {
		return m.WatchEventsFunc(ctx, fromBlock)
	}
	sink := make(chan interface{})
	return lib.NewSubscription(func(quit <-chan struct{}) error {
		defer close(sink)
		<-quit
		return nil
	}, sink), nil
}

var _ Gateway = (*GatewayMock)(nil)
