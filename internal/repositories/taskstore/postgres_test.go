package taskstore

import (
	"context"
	"os"
	"testing"

	"github.com/edubounty/edubounty/internal/taskboard"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestPGRepository(t *testing.T) *PGRepository {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN is not set")
	}
	repo, err := NewPGRepository(context.Background(), dsn, "test-"+uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	return repo
}

func TestPGRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestPGRepository(t)

	submission := "https://example.com/work"
	completer := worker
	tasks := []taskboard.Task{
		{ID: 1, Title: "open", Description: "d", Reward: "1.5", Creator: creator, Status: taskboard.StatusAvailable},
		{ID: 2, Title: "started", Description: "d", Reward: "10", Creator: creator, Completer: &completer, Status: taskboard.StatusInProgress, Submission: &submission},
	}
	require.NoError(t, repo.SaveTasks(ctx, tasks))

	loaded, err := repo.LoadTasks(ctx)
	require.NoError(t, err)
	require.Equal(t, tasks, loaded)

	require.NoError(t, repo.SaveTasks(ctx, tasks[:1]))
	loaded, err = repo.LoadTasks(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
}

func TestPGRepositoryRewardsKeepOrder(t *testing.T) {
	ctx := context.Background()
	repo := newTestPGRepository(t)

	rewards := []taskboard.Reward{
		{TaskID: 7, Title: "b", Amount: "2", Recipient: worker},
		{TaskID: 3, Title: "a", Amount: "1", Recipient: creator},
	}
	require.NoError(t, repo.SaveRewards(ctx, rewards))

	loaded, err := repo.LoadRewards(ctx)
	require.NoError(t, err)
	require.Equal(t, rewards, loaded)

	require.NoError(t, repo.SaveRewards(ctx, nil))
	loaded, err = repo.LoadRewards(ctx)
	require.NoError(t, err)
	require.Empty(t, loaded)
}
