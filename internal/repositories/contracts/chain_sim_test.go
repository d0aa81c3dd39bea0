package contracts

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

type simRPCError struct {
	code int
	msg  string
	data interface{}
}

func (e *simRPCError) Error() string          { return e.msg }
func (e *simRPCError) ErrorCode() int         { return e.code }
func (e *simRPCError) ErrorData() interface{} { return e.data }

// simChain is an in-memory chain running the TaskManager and ERC-20 contracts.
// Calls and transactions are decoded with the real ABIs, senders are recovered from signatures.
type simChain struct {
	mu          sync.Mutex
	chainID     *big.Int
	signer      types.Signer
	taskABI     *abi.ABI
	tokenABI    *abi.ABI
	taskManager common.Address
	token       common.Address

	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
	tasks       []ChainTask
	nonces      map[common.Address]uint64
	receipts    map[common.Hash]*types.Receipt
	logs        []types.Log
	block       uint64
	sent        []string
	revertOn    map[string]bool
	brokenTasks map[uint64]bool
	// revert messages returned when a transaction method is replayed as a call
	revertReasons map[string]string
}

func newSimChain(chainID uint64) *simChain {
	return &simChain{
		chainID:     new(big.Int).SetUint64(chainID),
		signer:      types.LatestSignerForChainID(new(big.Int).SetUint64(chainID)),
		taskABI:     mustParseABI(TaskManagerMetaData),
		tokenABI:    mustParseABI(ERC20MetaData),
		taskManager: common.HexToAddress("0x5d2ea682734b771cda1315f6e49a3f7c3452cb3c"),
		token:       common.HexToAddress("0x00000000000000000000000000000000000e0001"),
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
		nonces:      make(map[common.Address]uint64),
		receipts:    make(map[common.Hash]*types.Receipt),
		revertOn:    make(map[string]bool),
		brokenTasks: make(map[uint64]bool),
		block:       1,

		revertReasons: make(map[string]string),
	}
}

func (s *simChain) setBalance(addr common.Address, wei *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[addr] = new(big.Int).Set(wei)
}

func (s *simChain) balanceOf(addr common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance(addr)
}

func (s *simChain) setAllowance(owner common.Address, wei *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowance(owner)[s.taskManager] = new(big.Int).Set(wei)
}

func (s *simChain) allowanceOf(owner common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allowanceValue(owner, s.taskManager)
}

func (s *simChain) sentMethods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.sent...)
}

func (s *simChain) balance(addr common.Address) *big.Int {
	if b, ok := s.balances[addr]; ok {
		return b
	}
	return big.NewInt(0)
}

func (s *simChain) allowance(owner common.Address) map[common.Address]*big.Int {
	if _, ok := s.allowances[owner]; !ok {
		s.allowances[owner] = make(map[common.Address]*big.Int)
	}
	return s.allowances[owner]
}

func (s *simChain) allowanceValue(owner, spender common.Address) *big.Int {
	if v, ok := s.allowance(owner)[spender]; ok {
		return v
	}
	return big.NewInt(0)
}

func (s *simChain) abiFor(addr common.Address) (*abi.ABI, error) {
	switch addr {
	case s.taskManager:
		return s.taskABI, nil
	case s.token:
		return s.tokenABI, nil
	}
	return nil, fmt.Errorf("no contract at %s", addr.Hex())
}

func (s *simChain) decode(to *common.Address, data []byte) (*abi.Method, []interface{}, error) {
	if to == nil || len(data) < 4 {
		return nil, nil, errors.New("invalid call")
	}
	contractABI, err := s.abiFor(*to)
	if err != nil {
		return nil, nil, err
	}
	method, err := contractABI.MethodById(data[:4])
	if err != nil {
		return nil, nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, err
	}
	return method, args, nil
}

func (s *simChain) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	if _, err := s.abiFor(account); err != nil {
		return nil, nil
	}
	return []byte{0x60, 0x80}, nil
}

func (s *simChain) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return s.CodeAt(ctx, account, nil)
}

func (s *simChain) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	method, args, err := s.decode(call.To, call.Data)
	if err != nil {
		return nil, err
	}

	if reason, ok := s.revertReasons[method.Name]; ok {
		return nil, &simRPCError{code: 3, msg: "execution reverted: " + reason, data: hexutil.Encode(revertData(reason))}
	}

	switch method.Name {
	case "taskCounter":
		return method.Outputs.Pack(big.NewInt(int64(len(s.tasks))))
	case "tasks":
		id := args[0].(*big.Int).Uint64()
		if s.brokenTasks[id] {
			return nil, &simRPCError{code: -32000, msg: "execution reverted"}
		}
		if id == 0 || id > uint64(len(s.tasks)) {
			return method.Outputs.Pack(big.NewInt(0), "", "", big.NewInt(0), common.Address{}, common.Address{}, false)
		}
		t := s.tasks[id-1]
		return method.Outputs.Pack(new(big.Int).SetUint64(t.ID), t.Title, t.Description, t.RewardWei, t.Creator, t.Completer, t.IsCompleted)
	case "balanceOf":
		return method.Outputs.Pack(s.balance(args[0].(common.Address)))
	case "allowance":
		return method.Outputs.Pack(s.allowanceValue(args[0].(common.Address), args[1].(common.Address)))
	case "decimals":
		return method.Outputs.Pack(uint8(18))
	}
	return nil, fmt.Errorf("method %s is not callable", method.Name)
}

func (s *simChain) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &types.Header{Number: new(big.Int).SetUint64(s.block)}, nil
}

func (s *simChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonces[account], nil
}

func (s *simChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (s *simChain) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (s *simChain) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 100000, nil
}

func (s *simChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, err := types.Sender(s.signer, tx)
	if err != nil {
		return err
	}
	if tx.Nonce() != s.nonces[from] {
		return &simRPCError{code: -32000, msg: fmt.Sprintf("nonce too low: have %d want %d", tx.Nonce(), s.nonces[from])}
	}
	method, args, err := s.decode(tx.To(), tx.Data())
	if err != nil {
		return err
	}

	s.nonces[from]++
	s.block++
	s.sent = append(s.sent, method.Name)

	var logs []types.Log
	ok := false
	if !s.revertOn[method.Name] {
		logs, ok = s.execute(from, method.Name, args)
	}

	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(s.block),
		GasUsed:     21000,
	}
	if !ok {
		receipt.Status = types.ReceiptStatusFailed
	}
	for _, l := range logs {
		l := l
		l.TxHash = tx.Hash()
		l.BlockNumber = s.block
		s.logs = append(s.logs, l)
		receipt.Logs = append(receipt.Logs, &l)
	}
	s.receipts[tx.Hash()] = receipt
	return nil
}

func (s *simChain) execute(from common.Address, method string, args []interface{}) ([]types.Log, bool) {
	switch method {
	case "approve":
		s.allowance(from)[args[0].(common.Address)] = new(big.Int).Set(args[1].(*big.Int))
		return nil, true
	case "transfer":
		to, amount := args[0].(common.Address), args[1].(*big.Int)
		if s.balance(from).Cmp(amount) < 0 {
			return nil, false
		}
		s.balances[from] = new(big.Int).Sub(s.balance(from), amount)
		s.balances[to] = new(big.Int).Add(s.balance(to), amount)
		return nil, true
	case "createTask":
		reward := args[2].(*big.Int)
		if s.allowanceValue(from, s.taskManager).Cmp(reward) < 0 || s.balance(from).Cmp(reward) < 0 {
			return nil, false
		}
		s.allowance(from)[s.taskManager] = new(big.Int).Sub(s.allowanceValue(from, s.taskManager), reward)
		s.balances[from] = new(big.Int).Sub(s.balance(from), reward)
		s.balances[s.taskManager] = new(big.Int).Add(s.balance(s.taskManager), reward)

		id := uint64(len(s.tasks) + 1)
		s.tasks = append(s.tasks, ChainTask{
			ID:          id,
			Title:       args[0].(string),
			Description: args[1].(string),
			RewardWei:   new(big.Int).Set(reward),
			Creator:     from,
		})
		return []types.Log{s.taskLog("TaskCreated", id, from, reward)}, true
	case "completeTask":
		id := args[0].(*big.Int).Uint64()
		if id == 0 || id > uint64(len(s.tasks)) || s.tasks[id-1].IsCompleted {
			return nil, false
		}
		t := &s.tasks[id-1]
		t.Completer = from
		t.IsCompleted = true
		s.balances[s.taskManager] = new(big.Int).Sub(s.balance(s.taskManager), t.RewardWei)
		s.balances[from] = new(big.Int).Add(s.balance(from), t.RewardWei)
		return []types.Log{s.taskLog("TaskCompleted", id, from, t.RewardWei)}, true
	}
	return nil, false
}

func (s *simChain) taskLog(event string, id uint64, who common.Address, reward *big.Int) types.Log {
	ev := s.taskABI.Events[event]
	data, err := ev.Inputs.NonIndexed().Pack(reward)
	if err != nil {
		panic(err)
	}
	return types.Log{
		Address: s.taskManager,
		Topics: []common.Hash{
			ev.ID,
			common.BigToHash(new(big.Int).SetUint64(id)),
			common.BytesToHash(who.Bytes()),
		},
		Data: data,
	}
}

func (s *simChain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []types.Log
	for _, l := range s.logs {
		if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && l.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if len(q.Addresses) > 0 && l.Address != q.Addresses[0] {
			continue
		}
		res = append(res, l)
	}
	return res, nil
}

func (s *simChain) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("subscriptions are not supported")
}

func (s *simChain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.receipts[txHash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (s *simChain) ChainID(ctx context.Context) (*big.Int, error) {
	return s.chainID, nil
}

func keyedSigner(key *ecdsa.PrivateKey, chainID uint64) func(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	return func(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
		if account != crypto.PubkeyToAddress(key.PublicKey) {
			return nil, errors.New("unknown account")
		}
		opts, err := bind.NewKeyedTransactorWithChainID(key, new(big.Int).SetUint64(chainID))
		if err != nil {
			return nil, err
		}
		opts.Context = ctx
		return opts, nil
	}
}

// revertData encodes reason the way Solidity encodes Error(string)
func revertData(reason string) []byte {
	stringType, _ := abi.NewType("string", "", nil)
	packed, _ := abi.Arguments{{Type: stringType}}.Pack(reason)
	return append(crypto.Keccak256([]byte("Error(string)"))[:4], packed...)
}
