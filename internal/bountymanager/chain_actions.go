package bountymanager

import (
	"context"

	"github.com/edubounty/edubounty/internal/repositories/contracts"
	"github.com/edubounty/edubounty/internal/taskboard"
	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
)

// CreateTaskOnChain funds and creates a task through the TaskManager contract, then
// mirrors it on the chain board and refreshes the balance
func (bm *BountyManager) CreateTaskOnChain(ctx context.Context, title string, description string, reward string) (*contracts.CreateTaskResult, error) {
	if _, err := bm.requireAccount(); err != nil {
		return nil, err
	}

	result, err := bm.gateway.CreateTask(ctx, title, description, reward)
	bm.metrics.ObserveContractAction("createTask", err)
	if err != nil {
		if result != nil && result.ApproveTxHash != nil {
			bm.log.Warnf("task creation failed after approval %s: %s", result.ApproveTxHash.Hex(), err)
		}
		return result, err
	}

	if err := bm.syncChainTask(ctx, result.TaskID); err != nil {
		bm.log.Warnf("failed to read created task %d: %s", result.TaskID, err)
	}
	bm.refreshBalance(ctx)
	return result, nil
}

func (bm *BountyManager) CompleteTaskOnChain(ctx context.Context, taskID uint64) (common.Hash, error) {
	if _, err := bm.requireAccount(); err != nil {
		return common.Hash{}, err
	}

	txHash, err := bm.gateway.CompleteTask(ctx, taskID)
	bm.metrics.ObserveContractAction("completeTask", err)
	if err != nil {
		return common.Hash{}, err
	}

	if err := bm.syncChainTask(ctx, taskID); err != nil {
		bm.log.Warnf("failed to read completed task %d: %s", taskID, err)
	}
	bm.refreshBalance(ctx)
	return txHash, nil
}

// SyncChainTasks reads every task of the contract and merges them into the chain board
func (bm *BountyManager) SyncChainTasks(ctx context.Context) ([]taskboard.Task, error) {
	if _, err := bm.requireAccount(); err != nil {
		return nil, err
	}

	chainTasks, err := bm.gateway.GetAllTasks(ctx)
	if err == nil {
		err = bm.chain.Reconcile(ctx, lo.Map(chainTasks, toBoardTask))
	}
	bm.metrics.ObserveChainSync(err)
	if err != nil {
		return nil, err
	}

	tasks := bm.chain.Tasks()
	bm.updateTaskGauge(BoardChain, tasks)
	bm.log.Infof("synced %d chain tasks", len(tasks))
	return tasks, nil
}

// ChainTasks returns the chain board as of the last sync
func (bm *BountyManager) ChainTasks() []taskboard.Task {
	return bm.chain.Tasks()
}

// ChainTask reads one task straight from the contract
func (bm *BountyManager) ChainTask(ctx context.Context, taskID uint64) (*contracts.ChainTask, error) {
	if _, err := bm.requireAccount(); err != nil {
		return nil, err
	}
	return bm.gateway.GetTask(ctx, taskID)
}

func (bm *BountyManager) syncChainTask(ctx context.Context, taskID uint64) error {
	task, err := bm.gateway.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := bm.chain.Reconcile(ctx, []taskboard.ChainTask{toBoardTask(*task, 0)}); err != nil {
		return err
	}
	bm.updateTaskGauge(BoardChain, bm.chain.Tasks())
	return nil
}

func toBoardTask(t contracts.ChainTask, _ int) taskboard.ChainTask {
	return taskboard.ChainTask{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Reward:      t.Reward,
		Creator:     t.Creator,
		Completer:   t.Completer,
		IsCompleted: t.IsCompleted,
	}
}
