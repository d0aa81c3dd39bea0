package taskboard

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

type Status string

const (
	StatusAvailable  Status = "available"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusPaid       Status = "paid"
)

func (s Status) rank() int {
	switch s {
	case StatusAvailable:
		return 0
	case StatusInProgress:
		return 1
	case StatusCompleted:
		return 2
	case StatusPaid:
		return 3
	default:
		return -1
	}
}

func (s Status) Valid() bool {
	return s.rank() >= 0
}

// Task is one bounty. Completer is nil exactly while the task is available,
// Submission is absent until the completer submits work.
type Task struct {
	ID          uint64          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Reward      string          `json:"reward"`
	Creator     common.Address  `json:"creator"`
	Completer   *common.Address `json:"completer"`
	Status      Status          `json:"status"`
	Submission  *string         `json:"submission,omitempty"`
}

// Reward is a payout waiting to be withdrawn by Recipient
type Reward struct {
	TaskID    uint64         `json:"taskId"`
	Title     string         `json:"title"`
	Amount    string         `json:"amount"`
	Recipient common.Address `json:"recipient"`
}

// ChainTask is the on-chain view of a task used by Reconcile
type ChainTask struct {
	ID          uint64
	Title       string
	Description string
	Reward      string
	Creator     common.Address
	Completer   common.Address
	IsCompleted bool
}

// Repository persists the task and reward lists as a whole
type Repository interface {
	LoadTasks(ctx context.Context) ([]Task, error)
	SaveTasks(ctx context.Context, tasks []Task) error
	LoadRewards(ctx context.Context) ([]Reward, error)
	SaveRewards(ctx context.Context, rewards []Reward) error
}

var (
	ErrTransitionRejected = errors.New("transition rejected")

	ErrInvalidTask        = errors.New("invalid task")
	ErrTaskNotFound       = errors.New("task not found")
	ErrSelfDealing        = errors.New("task creator cannot work on their own task")
	ErrNotCreator         = errors.New("only the task creator can do this")
	ErrNotCompleter       = errors.New("only the task completer can do this")
	ErrInvalidStatus      = errors.New("task is not in the required status")
	ErrSubmissionRequired = errors.New("submission is required")
	ErrRewardNotFound     = errors.New("reward not found")
)
