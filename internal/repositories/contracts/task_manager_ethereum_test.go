package contracts

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/edubounty/edubounty/internal/lib"
	"github.com/edubounty/edubounty/internal/storage"
	"github.com/edubounty/edubounty/internal/wallet"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

const testChainID = 656476

func tokens(amount int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(amount), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

type gatewayFixture struct {
	chain    *simChain
	provider *wallet.ProviderMock
	session  *wallet.Session
	gateway  *TaskManagerEthereum
	key      *ecdsa.PrivateKey
	account  common.Address
}

func newGatewayFixture(t *testing.T, walletChainID uint64) *gatewayFixture {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	account := crypto.PubkeyToAddress(key.PublicKey)

	chain := newSimChain(testChainID)
	provider := wallet.NewProviderMock(walletChainID, account)
	provider.BackendFunc = func(ctx context.Context) (wallet.Backend, error) {
		return chain, nil
	}
	provider.SignerFunc = keyedSigner(key, testChainID)

	target := wallet.ChainParams{ChainID: testChainID, ChainName: "Open Campus Codex", RPCURLs: []string{"http://localhost:8545"}}
	session := wallet.NewSession(provider, storage.NewMemoryStore(), target, lib.NewTestLogger())
	_, err = session.Connect(context.Background())
	require.NoError(t, err)

	gateway := NewTaskManagerEthereum(chain.taskManager, chain.token, session, lib.NewTestLogger())
	gateway.SetWatcherParams(10*time.Millisecond, 3)

	return &gatewayFixture{
		chain:    chain,
		provider: provider,
		session:  session,
		gateway:  gateway,
		key:      key,
		account:  account,
	}
}

func TestCreateTaskApprovesThenCreates(t *testing.T) {
	f := newGatewayFixture(t, testChainID)
	f.chain.setBalance(f.account, tokens(100))

	res, err := f.gateway.CreateTask(context.Background(), "X", "learn go", "10")
	require.NoError(t, err)
	require.Equal(t, uint64(1), res.TaskID)
	require.NotNil(t, res.ApproveTxHash)
	require.Equal(t, []string{"approve", "createTask"}, f.chain.sentMethods())

	task, err := f.gateway.GetTask(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "X", task.Title)
	require.Equal(t, "10", task.Reward)
	require.Equal(t, f.account, task.Creator)
	require.Equal(t, common.Address{}, task.Completer)
	require.False(t, task.IsCompleted)

	balance, err := f.gateway.GetBalance(context.Background(), f.account)
	require.NoError(t, err)
	require.Equal(t, "90", balance)
}

func TestCreateTaskSkipsApproveWhenAllowanceCovers(t *testing.T) {
	f := newGatewayFixture(t, testChainID)
	f.chain.setBalance(f.account, tokens(100))
	f.chain.setAllowance(f.account, tokens(50))

	res, err := f.gateway.CreateTask(context.Background(), "X", "learn go", "10")
	require.NoError(t, err)
	require.Nil(t, res.ApproveTxHash)
	require.Equal(t, []string{"createTask"}, f.chain.sentMethods())

	allowance, err := f.gateway.GetAllowance(context.Background(), f.account)
	require.NoError(t, err)
	require.Equal(t, "40", allowance)
}

func TestCreateTaskInsufficientBalanceBeforeAnyTransaction(t *testing.T) {
	f := newGatewayFixture(t, testChainID)
	f.chain.setBalance(f.account, tokens(5))

	_, err := f.gateway.CreateTask(context.Background(), "T", "D", "5")
	require.ErrorIs(t, err, lib.ErrInsufficientBalance)
	require.Empty(t, f.chain.sentMethods())
}

func TestCreateTaskBufferBoundary(t *testing.T) {
	f := newGatewayFixture(t, testChainID)
	f.chain.setBalance(f.account, new(big.Int).Div(tokens(55), big.NewInt(10)))

	_, err := f.gateway.CreateTask(context.Background(), "T", "D", "5")
	require.NoError(t, err)
}

func TestCreateTaskApproveFailureAbortsCreation(t *testing.T) {
	f := newGatewayFixture(t, testChainID)
	f.chain.setBalance(f.account, tokens(100))
	f.chain.revertOn["approve"] = true

	_, err := f.gateway.CreateTask(context.Background(), "X", "D", "10")
	require.ErrorIs(t, err, lib.ErrContractCallFailed)
	require.Equal(t, []string{"approve"}, f.chain.sentMethods())
}

func TestCreateTaskCreationFailureKeepsApproval(t *testing.T) {
	f := newGatewayFixture(t, testChainID)
	f.chain.setBalance(f.account, tokens(100))
	f.chain.revertOn["createTask"] = true

	result, err := f.gateway.CreateTask(context.Background(), "X", "D", "10")
	require.ErrorIs(t, err, lib.ErrContractCallFailed)
	require.NotNil(t, result.ApproveTxHash)
	require.Equal(t, []string{"approve", "createTask"}, f.chain.sentMethods())
	require.Zero(t, tokens(10).Cmp(f.chain.allowanceOf(f.account)))
}

func TestCreateTaskUserRejected(t *testing.T) {
	f := newGatewayFixture(t, testChainID)
	f.chain.setBalance(f.account, tokens(100))
	f.provider.SignerFunc = func(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
		return &bind.TransactOpts{
			From:    account,
			Context: ctx,
			Signer: func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
				return nil, &wallet.ProviderError{Code: lib.CodeUserRejected, Message: "User denied transaction signature."}
			},
		}, nil
	}

	_, err := f.gateway.CreateTask(context.Background(), "X", "D", "10")
	require.ErrorIs(t, err, lib.ErrUserRejected)
	require.Empty(t, f.chain.sentMethods())
}

func TestCreateTaskWrongNetwork(t *testing.T) {
	f := newGatewayFixture(t, 1)
	f.chain.setBalance(f.account, tokens(100))

	_, err := f.gateway.CreateTask(context.Background(), "X", "D", "10")
	require.ErrorIs(t, err, lib.ErrWrongNetwork)
	require.Empty(t, f.chain.sentMethods())
}

func TestCreateTaskValidation(t *testing.T) {
	f := newGatewayFixture(t, testChainID)
	f.chain.setBalance(f.account, tokens(100))

	for _, reward := range []string{"0", "-1", "abc", ""} {
		_, err := f.gateway.CreateTask(context.Background(), "X", "D", reward)
		require.ErrorIs(t, err, lib.ErrInvalidAmount, reward)
	}

	_, err := f.gateway.CreateTask(context.Background(), "  ", "D", "1")
	require.ErrorIs(t, err, ErrInvalidTask)

	require.Empty(t, f.chain.sentMethods())
}

func TestCompleteTask(t *testing.T) {
	f := newGatewayFixture(t, testChainID)
	f.chain.setBalance(f.account, tokens(100))

	_, err := f.gateway.CreateTask(context.Background(), "X", "D", "10")
	require.NoError(t, err)

	_, err = f.gateway.CompleteTask(context.Background(), 1)
	require.NoError(t, err)

	task, err := f.gateway.GetTask(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, task.IsCompleted)
	require.Equal(t, f.account, task.Completer)

	_, err = f.gateway.CompleteTask(context.Background(), 1)
	require.ErrorIs(t, err, lib.ErrContractCallFailed)
}

func TestMinedRevertCarriesReason(t *testing.T) {
	f := newGatewayFixture(t, testChainID)
	f.chain.setBalance(f.account, tokens(100))

	_, err := f.gateway.CreateTask(context.Background(), "X", "D", "10")
	require.NoError(t, err)

	f.chain.revertOn["completeTask"] = true
	f.chain.revertReasons["completeTask"] = "TaskManager: task already completed"

	_, err = f.gateway.CompleteTask(context.Background(), 1)
	require.ErrorIs(t, err, lib.ErrContractCallFailed)
	require.ErrorContains(t, err, "TaskManager: task already completed")
}

func TestMinedRevertWithoutReason(t *testing.T) {
	f := newGatewayFixture(t, testChainID)
	f.chain.setBalance(f.account, tokens(100))
	f.chain.revertOn["approve"] = true

	_, err := f.gateway.CreateTask(context.Background(), "X", "D", "10")
	require.ErrorIs(t, err, lib.ErrContractCallFailed)
	require.ErrorContains(t, err, "reverted")
}

func TestGetAllTasksSkipsUnreadable(t *testing.T) {
	f := newGatewayFixture(t, testChainID)
	f.chain.setBalance(f.account, tokens(100))

	for i := 0; i < 3; i++ {
		_, err := f.gateway.CreateTask(context.Background(), "X", "D", "1")
		require.NoError(t, err)
	}
	f.chain.brokenTasks[2] = true

	tasks, err := f.gateway.GetAllTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, uint64(1), tasks[0].ID)
	require.Equal(t, uint64(3), tasks[1].ID)

	count, err := f.gateway.GetTaskCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(3), count)
}

func TestReadsRequireSession(t *testing.T) {
	f := newGatewayFixture(t, testChainID)
	f.session.Disconnect(context.Background())

	_, err := f.gateway.GetTask(context.Background(), 1)
	require.ErrorIs(t, err, lib.ErrNotInitialized)
	_, err = f.gateway.GetBalance(context.Background(), f.account)
	require.ErrorIs(t, err, lib.ErrNotInitialized)
	_, err = f.gateway.GetAllTasks(context.Background())
	require.ErrorIs(t, err, lib.ErrNotInitialized)
}

func TestGatewayWithoutProvider(t *testing.T) {
	session := wallet.NewSession(nil, storage.NewMemoryStore(), wallet.ChainParams{ChainID: testChainID}, lib.NewTestLogger())
	gateway := NewTaskManagerEthereum(common.Address{}, common.Address{}, session, lib.NewTestLogger())

	_, err := gateway.CreateTask(context.Background(), "X", "D", "1")
	require.ErrorIs(t, err, lib.ErrProviderUnavailable)

	_, err = gateway.GetAllTasks(context.Background())
	require.ErrorIs(t, err, lib.ErrNotInitialized)
}

func TestBindingsRebuiltOnChainChange(t *testing.T) {
	f := newGatewayFixture(t, testChainID)
	backendCalls := atomic.NewInt32(0)
	f.provider.BackendFunc = func(ctx context.Context) (wallet.Backend, error) {
		backendCalls.Inc()
		return f.chain, nil
	}

	_, err := f.gateway.GetTaskCount(context.Background())
	require.NoError(t, err)
	_, err = f.gateway.GetTaskCount(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, backendCalls.Load())

	f.provider.KnownChains[1] = true
	require.NoError(t, f.provider.SwitchChain(context.Background(), 1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.session.Run(ctx) }()
	f.provider.Emit(wallet.Event{Kind: wallet.EventChainChanged, ChainID: 1})
	require.Eventually(t, func() bool {
		id, _ := f.session.ChainID()
		return id == 1
	}, time.Second, 10*time.Millisecond)

	_, err = f.gateway.GetTaskCount(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, backendCalls.Load())
}

func TestConcurrentRebindsShareOneBuild(t *testing.T) {
	f := newGatewayFixture(t, testChainID)
	release := make(chan struct{})
	backendCalls := atomic.NewInt32(0)
	f.provider.BackendFunc = func(ctx context.Context) (wallet.Backend, error) {
		backendCalls.Inc()
		<-release
		return f.chain, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, f.gateway.ResetProvider(context.Background()))
		}()
	}

	require.Eventually(t, func() bool { return backendCalls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, backendCalls.Load())
}

func TestWatchEvents(t *testing.T) {
	f := newGatewayFixture(t, testChainID)
	f.chain.setBalance(f.account, tokens(100))

	_, err := f.gateway.CreateTask(context.Background(), "X", "D", "10")
	require.NoError(t, err)
	_, err = f.gateway.CompleteTask(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := f.gateway.WatchEvents(ctx, big.NewInt(0))
	require.NoError(t, err)
	defer sub.Unsubscribe()

	var events []interface{}
	for len(events) < 2 {
		select {
		case ev := <-sub.Events():
			events = append(events, ev)
		case <-time.After(time.Second):
			t.Fatal("events were not delivered")
		}
	}

	created, ok := events[0].(*TaskCreatedEvent)
	require.True(t, ok)
	require.Equal(t, uint64(1), created.TaskId.Uint64())
	require.Equal(t, f.account, created.Creator)
	require.Zero(t, tokens(10).Cmp(created.Reward))

	completed, ok := events[1].(*TaskCompletedEvent)
	require.True(t, ok)
	require.Equal(t, f.account, completed.Completer)
}
