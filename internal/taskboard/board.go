package taskboard

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/edubounty/edubounty/internal/interfaces"
	"github.com/edubounty/edubounty/internal/lib"
	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
	"golang.org/x/exp/slices"
)

// Board keeps the task lifecycle available -> in_progress -> completed -> paid.
// A rejected transition returns an error wrapping ErrTransitionRejected and leaves
// both the in-memory lists and the repository untouched.
type Board struct {
	mu      sync.Mutex
	tasks   []Task
	rewards []Reward

	repo Repository
	log  interfaces.ILogger
}

func NewBoard(repo Repository, log interfaces.ILogger) *Board {
	return &Board{
		repo: repo,
		log:  log,
	}
}

// Load replaces the in-memory state with the repository contents
func (b *Board) Load(ctx context.Context) error {
	tasks, err := b.repo.LoadTasks(ctx)
	if err != nil {
		return err
	}
	rewards, err := b.repo.LoadRewards(ctx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.tasks, b.rewards = tasks, rewards
	b.log.Debugf("loaded %d tasks and %d rewards", len(tasks), len(rewards))
	return nil
}

// Reset drops the in-memory state without touching the repository
func (b *Board) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tasks, b.rewards = nil, nil
}

func (b *Board) Create(ctx context.Context, actor common.Address, title string, description string, reward string) (Task, error) {
	title, description = strings.TrimSpace(title), strings.TrimSpace(description)
	if title == "" {
		return Task{}, lib.WrapError(ErrInvalidTask, fmt.Errorf("title is required"))
	}
	amount, err := lib.ParsePositiveAmount(strings.TrimSpace(reward))
	if err != nil {
		return Task{}, lib.WrapError(ErrInvalidTask, err)
	}

	var created Task
	err = b.mutate(ctx, func(tasks []Task, rewards []Reward) ([]Task, []Reward, error) {
		created = Task{
			ID:          nextID(tasks),
			Title:       title,
			Description: description,
			Reward:      amount.String(),
			Creator:     actor,
			Status:      StatusAvailable,
		}
		return append(tasks, created), rewards, nil
	})
	if err != nil {
		return Task{}, err
	}

	b.log.Infof("task %d created by %s", created.ID, actor.Hex())
	return created, nil
}

// Start assigns the task to actor, the creator is never accepted as completer
func (b *Board) Start(ctx context.Context, actor common.Address, taskID uint64) (Task, error) {
	return b.transition(ctx, taskID, func(t *Task) error {
		if t.Status != StatusAvailable {
			return reject(ErrInvalidStatus, "task %d is %s, expected %s", t.ID, t.Status, StatusAvailable)
		}
		if t.Creator == actor {
			return reject(ErrSelfDealing, "task %d", t.ID)
		}
		completer := actor
		t.Completer = &completer
		t.Status = StatusInProgress
		return nil
	})
}

// Submit sets or replaces the work submission, the status stays in_progress
func (b *Board) Submit(ctx context.Context, actor common.Address, taskID uint64, submission string) (Task, error) {
	submission = strings.TrimSpace(submission)
	return b.transition(ctx, taskID, func(t *Task) error {
		if t.Status != StatusInProgress {
			return reject(ErrInvalidStatus, "task %d is %s, expected %s", t.ID, t.Status, StatusInProgress)
		}
		if t.Completer == nil || *t.Completer != actor {
			return reject(ErrNotCompleter, "task %d", t.ID)
		}
		if submission == "" {
			return reject(ErrSubmissionRequired, "task %d", t.ID)
		}
		t.Submission = &submission
		return nil
	})
}

func (b *Board) MarkComplete(ctx context.Context, actor common.Address, taskID uint64) (Task, error) {
	return b.transition(ctx, taskID, func(t *Task) error {
		if t.Status != StatusInProgress {
			return reject(ErrInvalidStatus, "task %d is %s, expected %s", t.ID, t.Status, StatusInProgress)
		}
		if t.Creator != actor {
			return reject(ErrNotCreator, "task %d", t.ID)
		}
		if t.Submission == nil {
			return reject(ErrSubmissionRequired, "task %d has no submission", t.ID)
		}
		t.Status = StatusCompleted
		return nil
	})
}

// Pay moves the task to its terminal state and records a reward for the completer
func (b *Board) Pay(ctx context.Context, actor common.Address, taskID uint64) (Task, error) {
	var paid Task
	err := b.mutate(ctx, func(tasks []Task, rewards []Reward) ([]Task, []Reward, error) {
		idx := indexOf(tasks, taskID)
		if idx < 0 {
			return nil, nil, reject(ErrTaskNotFound, "task %d", taskID)
		}
		t := tasks[idx]
		if t.Status != StatusCompleted {
			return nil, nil, reject(ErrInvalidStatus, "task %d is %s, expected %s", t.ID, t.Status, StatusCompleted)
		}
		if t.Creator != actor {
			return nil, nil, reject(ErrNotCreator, "task %d", t.ID)
		}
		t.Status = StatusPaid
		tasks[idx] = t
		paid = t

		rewards = append(rewards, Reward{
			TaskID:    t.ID,
			Title:     t.Title,
			Amount:    t.Reward,
			Recipient: *t.Completer,
		})
		return tasks, rewards, nil
	})
	if err != nil {
		return Task{}, err
	}

	b.log.Infof("task %d paid, reward %s for %s", paid.ID, paid.Reward, paid.Completer.Hex())
	return paid, nil
}

// Withdraw removes the reward of taskID owned by actor, a reward can be withdrawn once
func (b *Board) Withdraw(ctx context.Context, actor common.Address, taskID uint64) (Reward, error) {
	var withdrawn Reward
	err := b.mutate(ctx, func(tasks []Task, rewards []Reward) ([]Task, []Reward, error) {
		idx := slices.IndexFunc(rewards, func(r Reward) bool {
			return r.TaskID == taskID && r.Recipient == actor
		})
		if idx < 0 {
			return nil, nil, reject(ErrRewardNotFound, "task %d", taskID)
		}
		withdrawn = rewards[idx]
		return tasks, slices.Delete(rewards, idx, idx+1), nil
	})
	if err != nil {
		return Reward{}, err
	}

	b.log.Infof("reward of task %d withdrawn by %s", taskID, actor.Hex())
	return withdrawn, nil
}

// Reconcile merges the on-chain view of tasks. Unknown tasks are added, known tasks
// only move forward. Submissions are kept since the chain does not store them.
func (b *Board) Reconcile(ctx context.Context, chainTasks []ChainTask) error {
	return b.mutate(ctx, func(tasks []Task, rewards []Reward) ([]Task, []Reward, error) {
		for _, ct := range chainTasks {
			status, completer, ok := chainStatus(ct)
			if !ok {
				b.log.Warnf("skipping inconsistent chain task %d", ct.ID)
				continue
			}

			idx := indexOf(tasks, ct.ID)
			if idx < 0 {
				tasks = append(tasks, Task{
					ID:          ct.ID,
					Title:       ct.Title,
					Description: ct.Description,
					Reward:      ct.Reward,
					Creator:     ct.Creator,
					Completer:   completer,
					Status:      status,
				})
				continue
			}

			t := tasks[idx]
			if status.rank() <= t.Status.rank() {
				continue
			}
			t.Status = status
			if completer != nil {
				t.Completer = completer
			}
			tasks[idx] = t
		}

		slices.SortStableFunc(tasks, func(a, b Task) bool { return a.ID < b.ID })
		return tasks, rewards, nil
	})
}

func chainStatus(ct ChainTask) (Status, *common.Address, bool) {
	if ct.Completer == (common.Address{}) {
		if ct.IsCompleted {
			return "", nil, false
		}
		return StatusAvailable, nil, true
	}
	completer := ct.Completer
	if ct.IsCompleted {
		return StatusPaid, &completer, true
	}
	return StatusInProgress, &completer, true
}

func (b *Board) Tasks() []Task {
	b.mu.Lock()
	defer b.mu.Unlock()

	tasks := slices.Clone(b.tasks)
	slices.SortStableFunc(tasks, func(a, b Task) bool { return a.ID < b.ID })
	return tasks
}

func (b *Board) Task(taskID uint64) (Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := indexOf(b.tasks, taskID)
	if idx < 0 {
		return Task{}, lib.WrapError(ErrTaskNotFound, fmt.Errorf("task %d", taskID))
	}
	return b.tasks[idx], nil
}

// Rewards lists the rewards account can withdraw
func (b *Board) Rewards(account common.Address) []Reward {
	b.mu.Lock()
	defer b.mu.Unlock()

	return lo.Filter(b.rewards, func(r Reward, _ int) bool {
		return r.Recipient == account
	})
}

func (b *Board) transition(ctx context.Context, taskID uint64, apply func(t *Task) error) (Task, error) {
	var updated Task
	err := b.mutate(ctx, func(tasks []Task, rewards []Reward) ([]Task, []Reward, error) {
		idx := indexOf(tasks, taskID)
		if idx < 0 {
			return nil, nil, reject(ErrTaskNotFound, "task %d", taskID)
		}
		t := tasks[idx]
		if err := apply(&t); err != nil {
			return nil, nil, err
		}
		tasks[idx] = t
		updated = t
		return tasks, rewards, nil
	})
	return updated, err
}

// mutate runs fn on copies of the lists, persists the result and only then commits it.
// If persisting rewards fails after tasks were saved, the previous tasks are written back.
func (b *Board) mutate(ctx context.Context, fn func(tasks []Task, rewards []Reward) ([]Task, []Reward, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tasks, rewards, err := fn(slices.Clone(b.tasks), slices.Clone(b.rewards))
	if err != nil {
		return err
	}

	if err := b.repo.SaveTasks(ctx, tasks); err != nil {
		return err
	}
	if err := b.repo.SaveRewards(ctx, rewards); err != nil {
		if rollbackErr := b.repo.SaveTasks(ctx, b.tasks); rollbackErr != nil {
			b.log.Errorf("failed to restore tasks after rewards save error: %s", rollbackErr)
		}
		return err
	}

	b.tasks, b.rewards = tasks, rewards
	return nil
}

func reject(reason error, format string, args ...interface{}) error {
	return lib.WrapError(ErrTransitionRejected, lib.WrapError(reason, fmt.Errorf(format, args...)))
}

func indexOf(tasks []Task, taskID uint64) int {
	return slices.IndexFunc(tasks, func(t Task) bool { return t.ID == taskID })
}

func nextID(tasks []Task) uint64 {
	return lo.MaxBy(tasks, func(a, b Task) bool { return a.ID > b.ID }).ID + 1
}
