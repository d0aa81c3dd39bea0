package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/edubounty/edubounty/internal/interfaces"
	"github.com/edubounty/edubounty/internal/lib"
	"github.com/edubounty/edubounty/internal/wallet"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/singleflight"
)

var (
	ErrInvalidTask  = errors.New("invalid task")
	ErrTaskNotFound = errors.New("task not found on chain")
)

const (
	DefaultCreateGasLimit       = 300000
	DefaultCompleteGasLimit     = 500000
	DefaultBalanceBufferPercent = 110
)

// SessionReader is the part of the wallet session the gateway depends on
type SessionReader interface {
	Account() (common.Address, bool)
	ChainID() (uint64, bool)
	TargetChainID() uint64
	Provider() wallet.Provider
}

// ChainTask is a task as stored by the TaskManager contract
type ChainTask struct {
	ID          uint64         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	RewardWei   *big.Int       `json:"-"`
	Reward      string         `json:"reward"`
	Creator     common.Address `json:"creator"`
	Completer   common.Address `json:"completer"`
	IsCompleted bool           `json:"isCompleted"`
}

type CreateTaskResult struct {
	TaskID        uint64       `json:"taskId"`
	ApproveTxHash *common.Hash `json:"approveTxHash,omitempty"`
	CreateTxHash  common.Hash  `json:"createTxHash"`
}

// bindings are the contract handles of one (account, chain) pair
type bindings struct {
	account     common.Address
	chainID     uint64
	backend     wallet.Backend
	taskManager *bind.BoundContract
	token       *bind.BoundContract
}

type TaskManagerEthereum struct {
	// config
	taskManagerAddr      common.Address
	tokenAddr            common.Address
	createGasLimit       uint64
	completeGasLimit     uint64
	balanceBufferPercent int64
	pollInterval         time.Duration
	maxReconnects        int

	// state
	mu          sync.Mutex
	bindings    *bindings
	rebindGroup singleflight.Group
	txMutex     lib.Mutex
	taskABI     *abi.ABI
	tokenABI    *abi.ABI

	// deps
	session SessionReader
	log     interfaces.ILogger
}

func NewTaskManagerEthereum(taskManagerAddr common.Address, tokenAddr common.Address, session SessionReader, log interfaces.ILogger) *TaskManagerEthereum {
	return &TaskManagerEthereum{
		taskManagerAddr:      taskManagerAddr,
		tokenAddr:            tokenAddr,
		createGasLimit:       DefaultCreateGasLimit,
		completeGasLimit:     DefaultCompleteGasLimit,
		balanceBufferPercent: DefaultBalanceBufferPercent,
		pollInterval:         10 * time.Second,
		maxReconnects:        30,
		txMutex:              lib.NewMutex(),
		taskABI:              mustParseABI(TaskManagerMetaData),
		tokenABI:             mustParseABI(ERC20MetaData),
		session:              session,
		log:                  log,
	}
}

func (g *TaskManagerEthereum) SetGasLimits(create, complete uint64) {
	if create > 0 {
		g.createGasLimit = create
	}
	if complete > 0 {
		g.completeGasLimit = complete
	}
}

func (g *TaskManagerEthereum) SetBalanceBufferPercent(percent int64) {
	if percent >= 100 {
		g.balanceBufferPercent = percent
	}
}

func (g *TaskManagerEthereum) SetWatcherParams(pollInterval time.Duration, maxReconnects int) {
	g.pollInterval = pollInterval
	g.maxReconnects = maxReconnects
}

func (g *TaskManagerEthereum) TaskManagerAddress() common.Address {
	return g.taskManagerAddr
}

// ResetProvider drops the cached bindings and rebuilds them from the current session
func (g *TaskManagerEthereum) ResetProvider(ctx context.Context) error {
	g.mu.Lock()
	g.bindings = nil
	g.mu.Unlock()

	_, err := g.rebind(ctx)
	return err
}

func (g *TaskManagerEthereum) getBindings(ctx context.Context) (*bindings, error) {
	account, ok := g.session.Account()
	if !ok {
		return nil, lib.ErrNotInitialized
	}
	chainID, _ := g.session.ChainID()

	g.mu.Lock()
	b := g.bindings
	g.mu.Unlock()

	if b != nil && b.account == account && b.chainID == chainID {
		return b, nil
	}
	return g.rebind(ctx)
}

// rebind builds bindings for the current session, concurrent callers share one rebuild
func (g *TaskManagerEthereum) rebind(ctx context.Context) (*bindings, error) {
	v, err, shared := g.rebindGroup.Do("rebind", func() (interface{}, error) {
		provider := g.session.Provider()
		if provider == nil {
			return nil, lib.ErrProviderUnavailable
		}
		account, ok := g.session.Account()
		if !ok {
			return nil, lib.ErrNotInitialized
		}
		chainID, _ := g.session.ChainID()

		backend, err := provider.Backend(ctx)
		if err != nil {
			return nil, lib.ClassifyError(err)
		}

		b := &bindings{
			account:     account,
			chainID:     chainID,
			backend:     backend,
			taskManager: bind.NewBoundContract(g.taskManagerAddr, *g.taskABI, backend, backend, backend),
			token:       bind.NewBoundContract(g.tokenAddr, *g.tokenABI, backend, backend, backend),
		}

		g.mu.Lock()
		g.bindings = b
		g.mu.Unlock()

		g.log.Debugf("contract bindings rebuilt for account %s on chain %d", account.Hex(), chainID)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		g.log.Debugf("joined in-flight rebind")
	}
	return v.(*bindings), nil
}

func (g *TaskManagerEthereum) checkNetwork(b *bindings) error {
	target := g.session.TargetChainID()
	if b.chainID != target {
		return lib.WrapError(lib.ErrWrongNetwork, fmt.Errorf("connected to chain %d, expected %d", b.chainID, target))
	}
	return nil
}

// CreateTask creates a task funded with reward tokens. The contract pulls the reward with
// transferFrom, so an approval is sent and confirmed first when the allowance is short.
// A failed approval aborts before creation. A failed creation leaves the approval in place
// and returns the result carrying the approval hash along with the error.
func (g *TaskManagerEthereum) CreateTask(ctx context.Context, title string, description string, reward string) (*CreateTaskResult, error) {
	title, description = strings.TrimSpace(title), strings.TrimSpace(description)
	if title == "" || description == "" {
		return nil, lib.WrapError(ErrInvalidTask, fmt.Errorf("title and description are required"))
	}
	rewardAmount, err := lib.ParsePositiveAmount(reward)
	if err != nil {
		return nil, err
	}
	rewardWei := lib.ToWei(rewardAmount)

	if err := g.ResetProvider(ctx); err != nil {
		return nil, err
	}
	b, err := g.getBindings(ctx)
	if err != nil {
		return nil, err
	}
	if err := g.checkNetwork(b); err != nil {
		return nil, err
	}

	balance, err := g.balanceOf(ctx, b, b.account)
	if err != nil {
		return nil, err
	}
	required := lib.WithBuffer(rewardWei, g.balanceBufferPercent)
	if balance.Cmp(required) < 0 {
		return nil, lib.WrapError(lib.ErrInsufficientBalance, fmt.Errorf(
			"balance %s is below %s required for reward %s", lib.FormatWei(balance), lib.FormatWei(required), rewardAmount.String(),
		))
	}

	err = g.txMutex.LockCtx(ctx)
	if err != nil {
		return nil, lib.ClassifyError(err)
	}
	defer g.txMutex.Unlock()

	result := &CreateTaskResult{}

	allowance, err := g.allowance(ctx, b, b.account)
	if err != nil {
		return nil, err
	}
	if allowance.Cmp(rewardWei) < 0 {
		g.log.Infof("approving %s tokens for task manager", rewardAmount.String())
		receipt, err := g.transact(ctx, b, b.token, g.createGasLimit, "approve", g.taskManagerAddr, rewardWei)
		if err != nil {
			g.log.Warnf("approve failed, task not created: %s", err)
			return nil, err
		}
		result.ApproveTxHash = &receipt.TxHash
	}

	receipt, err := g.transact(ctx, b, b.taskManager, g.createGasLimit, "createTask", title, description, rewardWei)
	if err != nil {
		if result.ApproveTxHash != nil {
			return result, err
		}
		return nil, err
	}
	result.CreateTxHash = receipt.TxHash

	for _, log := range receipt.Logs {
		if log.Address != g.taskManagerAddr || len(log.Topics) == 0 || log.Topics[0] != g.taskABI.Events["TaskCreated"].ID {
			continue
		}
		var ev TaskCreatedEvent
		if err := unpackLog(g.taskABI, &ev, "TaskCreated", *log); err != nil {
			g.log.Warnf("cannot decode TaskCreated log: %s", err)
			continue
		}
		result.TaskID = ev.TaskId.Uint64()
	}

	g.log.Infof("task %d created, tx %s", result.TaskID, result.CreateTxHash.Hex())
	return result, nil
}

// CompleteTask sends a single completeTask transaction, reverts are not retried
func (g *TaskManagerEthereum) CompleteTask(ctx context.Context, taskID uint64) (common.Hash, error) {
	b, err := g.getBindings(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	if err := g.checkNetwork(b); err != nil {
		return common.Hash{}, err
	}

	err = g.txMutex.LockCtx(ctx)
	if err != nil {
		return common.Hash{}, lib.ClassifyError(err)
	}
	defer g.txMutex.Unlock()

	receipt, err := g.transact(ctx, b, b.taskManager, g.completeGasLimit, "completeTask", new(big.Int).SetUint64(taskID))
	if err != nil {
		return common.Hash{}, err
	}

	g.log.Infof("task %d completed, tx %s", taskID, receipt.TxHash.Hex())
	return receipt.TxHash, nil
}

// GetAllTasks reads tasks 1..taskCounter one by one. Unreadable tasks are skipped and
// the rest is returned.
func (g *TaskManagerEthereum) GetAllTasks(ctx context.Context) ([]ChainTask, error) {
	b, err := g.getBindings(ctx)
	if err != nil {
		return nil, err
	}

	count, err := g.taskCounter(ctx, b)
	if err != nil {
		return nil, err
	}

	tasks := make([]ChainTask, 0, count)
	for i := uint64(1); i <= count; i++ {
		task, err := g.readTask(ctx, b, i)
		if err != nil {
			g.log.Warnf("skipping task %d: %s", i, err)
			continue
		}
		tasks = append(tasks, *task)
	}

	return tasks, nil
}

func (g *TaskManagerEthereum) GetTask(ctx context.Context, taskID uint64) (*ChainTask, error) {
	b, err := g.getBindings(ctx)
	if err != nil {
		return nil, err
	}
	return g.readTask(ctx, b, taskID)
}

func (g *TaskManagerEthereum) GetTaskCount(ctx context.Context) (uint64, error) {
	b, err := g.getBindings(ctx)
	if err != nil {
		return 0, err
	}
	return g.taskCounter(ctx, b)
}

// GetBalance returns the token balance of addr as a decimal string
func (g *TaskManagerEthereum) GetBalance(ctx context.Context, addr common.Address) (string, error) {
	b, err := g.getBindings(ctx)
	if err != nil {
		return "", err
	}
	balance, err := g.balanceOf(ctx, b, addr)
	if err != nil {
		return "", err
	}
	return lib.FormatWei(balance), nil
}

// GetAllowance returns how many tokens of owner the task manager may pull
func (g *TaskManagerEthereum) GetAllowance(ctx context.Context, owner common.Address) (string, error) {
	b, err := g.getBindings(ctx)
	if err != nil {
		return "", err
	}
	allowance, err := g.allowance(ctx, b, owner)
	if err != nil {
		return "", err
	}
	return lib.FormatWei(allowance), nil
}

// WatchEvents streams TaskCreatedEvent and TaskCompletedEvent of the task manager
func (g *TaskManagerEthereum) WatchEvents(ctx context.Context, fromBlock *big.Int) (*lib.Subscription, error) {
	b, err := g.getBindings(ctx)
	if err != nil {
		return nil, err
	}
	watcher := NewLogWatcherPolling(b.backend, g.pollInterval, g.maxReconnects, g.log)
	return watcher.Watch(ctx, g.taskManagerAddr, CreateEventMapper(taskManagerEventFactory, g.taskABI), fromBlock)
}

func (g *TaskManagerEthereum) taskCounter(ctx context.Context, b *bindings) (uint64, error) {
	var out []interface{}
	err := b.taskManager.Call(&bind.CallOpts{Context: ctx}, &out, "taskCounter")
	if err != nil {
		return 0, lib.ClassifyError(err)
	}
	count := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return count.Uint64(), nil
}

func (g *TaskManagerEthereum) readTask(ctx context.Context, b *bindings, taskID uint64) (*ChainTask, error) {
	var out []interface{}
	err := b.taskManager.Call(&bind.CallOpts{Context: ctx}, &out, "tasks", new(big.Int).SetUint64(taskID))
	if err != nil {
		return nil, lib.ClassifyError(err)
	}
	if len(out) != 7 {
		return nil, lib.WrapError(lib.ErrContractCallFailed, fmt.Errorf("unexpected tasks() output length %d", len(out)))
	}

	id := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	if id.Sign() == 0 {
		return nil, lib.WrapError(ErrTaskNotFound, fmt.Errorf("task %d", taskID))
	}
	reward := *abi.ConvertType(out[3], new(*big.Int)).(**big.Int)

	return &ChainTask{
		ID:          id.Uint64(),
		Title:       *abi.ConvertType(out[1], new(string)).(*string),
		Description: *abi.ConvertType(out[2], new(string)).(*string),
		RewardWei:   reward,
		Reward:      lib.FormatWei(reward),
		Creator:     *abi.ConvertType(out[4], new(common.Address)).(*common.Address),
		Completer:   *abi.ConvertType(out[5], new(common.Address)).(*common.Address),
		IsCompleted: *abi.ConvertType(out[6], new(bool)).(*bool),
	}, nil
}

func (g *TaskManagerEthereum) balanceOf(ctx context.Context, b *bindings, addr common.Address) (*big.Int, error) {
	var out []interface{}
	err := b.token.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", addr)
	if err != nil {
		return nil, lib.ClassifyError(err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (g *TaskManagerEthereum) allowance(ctx context.Context, b *bindings, owner common.Address) (*big.Int, error) {
	var out []interface{}
	err := b.token.Call(&bind.CallOpts{Context: ctx}, &out, "allowance", owner, g.taskManagerAddr)
	if err != nil {
		return nil, lib.ClassifyError(err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// transact signs and sends one transaction with a fixed gas limit, then waits for its receipt
func (g *TaskManagerEthereum) transact(ctx context.Context, b *bindings, contract *bind.BoundContract, gasLimit uint64, method string, params ...interface{}) (*types.Receipt, error) {
	transactOpts, err := g.session.Provider().Signer(ctx, b.account)
	if err != nil {
		return nil, lib.ClassifyError(err)
	}
	transactOpts.GasLimit = gasLimit
	transactOpts.Context = ctx

	tx, err := contract.Transact(transactOpts, method, params...)
	if err != nil {
		g.log.Warnf("%s transaction failed: %s", method, err)
		return nil, lib.ClassifyError(err)
	}

	g.log.Debugf("%s transaction sent %s, nonce %d", method, tx.Hash().Hex(), tx.Nonce())

	receipt, err := bind.WaitMined(ctx, b.backend, tx)
	if err != nil {
		return nil, lib.ClassifyError(err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		err := fmt.Errorf("%s transaction %s reverted", method, tx.Hash().Hex())
		if reason, ok := g.revertReason(ctx, b, tx, receipt); ok {
			err = fmt.Errorf("%s transaction %s reverted: %s", method, tx.Hash().Hex(), reason)
		}
		g.log.Warnf("%s", err)
		return nil, lib.WrapError(lib.ErrContractCallFailed, err)
	}

	return receipt, nil
}

// revertReason replays a reverted transaction as a call at its block to recover the revert message
func (g *TaskManagerEthereum) revertReason(ctx context.Context, b *bindings, tx *types.Transaction, receipt *types.Receipt) (string, bool) {
	msg := ethereum.CallMsg{
		From:  b.account,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}
	_, err := b.backend.CallContract(ctx, msg, receipt.BlockNumber)
	if err == nil {
		return "", false
	}
	return lib.RevertReason(err)
}
