package bountymanager

import (
	"context"

	"github.com/edubounty/edubounty/internal/taskboard"
)

// Local board actions act on behalf of the connected account

func (bm *BountyManager) CreateTask(ctx context.Context, title string, description string, reward string) (taskboard.Task, error) {
	account, err := bm.requireAccount()
	if err != nil {
		return taskboard.Task{}, err
	}
	task, err := bm.local.Create(ctx, account, title, description, reward)
	return bm.observeLocal("create", task, err)
}

func (bm *BountyManager) StartTask(ctx context.Context, taskID uint64) (taskboard.Task, error) {
	account, err := bm.requireAccount()
	if err != nil {
		return taskboard.Task{}, err
	}
	task, err := bm.local.Start(ctx, account, taskID)
	return bm.observeLocal("start", task, err)
}

func (bm *BountyManager) SubmitTask(ctx context.Context, taskID uint64, submission string) (taskboard.Task, error) {
	account, err := bm.requireAccount()
	if err != nil {
		return taskboard.Task{}, err
	}
	task, err := bm.local.Submit(ctx, account, taskID, submission)
	return bm.observeLocal("submit", task, err)
}

func (bm *BountyManager) MarkComplete(ctx context.Context, taskID uint64) (taskboard.Task, error) {
	account, err := bm.requireAccount()
	if err != nil {
		return taskboard.Task{}, err
	}
	task, err := bm.local.MarkComplete(ctx, account, taskID)
	return bm.observeLocal("complete", task, err)
}

func (bm *BountyManager) PayTask(ctx context.Context, taskID uint64) (taskboard.Task, error) {
	account, err := bm.requireAccount()
	if err != nil {
		return taskboard.Task{}, err
	}
	task, err := bm.local.Pay(ctx, account, taskID)
	return bm.observeLocal("pay", task, err)
}

func (bm *BountyManager) WithdrawReward(ctx context.Context, taskID uint64) (taskboard.Reward, error) {
	account, err := bm.requireAccount()
	if err != nil {
		return taskboard.Reward{}, err
	}
	reward, err := bm.local.Withdraw(ctx, account, taskID)
	bm.metrics.ObserveTransition("withdraw", err)
	return reward, err
}

// Rewards lists the local rewards waiting for the connected account
func (bm *BountyManager) Rewards() ([]taskboard.Reward, error) {
	account, err := bm.requireAccount()
	if err != nil {
		return nil, err
	}
	return bm.local.Rewards(account), nil
}

func (bm *BountyManager) Tasks() []taskboard.Task {
	return bm.local.Tasks()
}

func (bm *BountyManager) Task(taskID uint64) (taskboard.Task, error) {
	return bm.local.Task(taskID)
}

func (bm *BountyManager) observeLocal(action string, task taskboard.Task, err error) (taskboard.Task, error) {
	bm.metrics.ObserveTransition(action, err)
	if err != nil {
		bm.log.Debugf("%s rejected: %s", action, err)
		return task, err
	}
	bm.updateTaskGauge(BoardLocal, bm.local.Tasks())
	return task, nil
}
