package taskstore

import (
	"context"

	"github.com/edubounty/edubounty/internal/storage"
	"github.com/edubounty/edubounty/internal/taskboard"
)

const (
	KeyTasks   = "tasks"
	KeyRewards = "rewards"
)

// KVRepository keeps each list as one JSON array under its own key
type KVRepository struct {
	store storage.Store
}

func NewKVRepository(store storage.Store) *KVRepository {
	return &KVRepository{store: store}
}

func (r *KVRepository) LoadTasks(ctx context.Context) ([]taskboard.Task, error) {
	var tasks []taskboard.Task
	if _, err := storage.GetJSON(ctx, r.store, KeyTasks, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *KVRepository) SaveTasks(ctx context.Context, tasks []taskboard.Task) error {
	if tasks == nil {
		tasks = []taskboard.Task{}
	}
	return storage.SetJSON(ctx, r.store, KeyTasks, tasks)
}

func (r *KVRepository) LoadRewards(ctx context.Context) ([]taskboard.Reward, error) {
	var rewards []taskboard.Reward
	if _, err := storage.GetJSON(ctx, r.store, KeyRewards, &rewards); err != nil {
		return nil, err
	}
	return rewards, nil
}

func (r *KVRepository) SaveRewards(ctx context.Context, rewards []taskboard.Reward) error {
	if rewards == nil {
		rewards = []taskboard.Reward{}
	}
	return storage.SetJSON(ctx, r.store, KeyRewards, rewards)
}

var _ taskboard.Repository = (*KVRepository)(nil)
