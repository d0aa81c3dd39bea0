package taskstore

import (
	"context"
	"fmt"

	"github.com/edubounty/edubounty/internal/taskboard"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository persists the board in Postgres. Several boards can share the
// tables, rows are partitioned by scope.
type PGRepository struct {
	pool  *pgxpool.Pool
	scope string
}

// NewPGRepository connects and initializes the schema
func NewPGRepository(ctx context.Context, dsn string, scope string) (*PGRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	r := &PGRepository{pool: pool, scope: scope}
	if err := r.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return r, nil
}

func (r *PGRepository) initSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS board_tasks (
  scope TEXT NOT NULL,
  task_id BIGINT NOT NULL,
  title TEXT NOT NULL,
  description TEXT NOT NULL,
  reward TEXT NOT NULL,
  creator TEXT NOT NULL,
  completer TEXT,
  status TEXT NOT NULL,
  submission TEXT,
  PRIMARY KEY (scope, task_id)
);
CREATE TABLE IF NOT EXISTS board_rewards (
  scope TEXT NOT NULL,
  position INT NOT NULL,
  task_id BIGINT NOT NULL,
  title TEXT NOT NULL,
  amount TEXT NOT NULL,
  recipient TEXT NOT NULL,
  PRIMARY KEY (scope, position)
);
CREATE INDEX IF NOT EXISTS idx_board_rewards_recipient ON board_rewards(scope, recipient);
`
	_, err := r.pool.Exec(ctx, schema)
	return err
}

func (r *PGRepository) Close() {
	r.pool.Close()
}

func (r *PGRepository) LoadTasks(ctx context.Context) ([]taskboard.Task, error) {
	rows, err := r.pool.Query(ctx, `
SELECT task_id, title, description, reward, creator, completer, status, submission
FROM board_tasks WHERE scope=$1 ORDER BY task_id
`, r.scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []taskboard.Task
	for rows.Next() {
		var (
			t         taskboard.Task
			creator   string
			completer *string
			status    string
		)
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.Reward, &creator, &completer, &status, &t.Submission); err != nil {
			return nil, err
		}
		t.Creator = common.HexToAddress(creator)
		if completer != nil {
			addr := common.HexToAddress(*completer)
			t.Completer = &addr
		}
		t.Status = taskboard.Status(status)
		if !t.Status.Valid() {
			return nil, fmt.Errorf("task %d has unknown status %q", t.ID, status)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SaveTasks replaces the stored list in one transaction
func (r *PGRepository) SaveTasks(ctx context.Context, tasks []taskboard.Task) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM board_tasks WHERE scope=$1`, r.scope); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, t := range tasks {
			var completer *string
			if t.Completer != nil {
				hex := t.Completer.Hex()
				completer = &hex
			}
			batch.Queue(`
INSERT INTO board_tasks (scope, task_id, title, description, reward, creator, completer, status, submission)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, r.scope, t.ID, t.Title, t.Description, t.Reward, t.Creator.Hex(), completer, string(t.Status), t.Submission)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (r *PGRepository) LoadRewards(ctx context.Context) ([]taskboard.Reward, error) {
	rows, err := r.pool.Query(ctx, `
SELECT task_id, title, amount, recipient
FROM board_rewards WHERE scope=$1 ORDER BY position
`, r.scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []taskboard.Reward
	for rows.Next() {
		var (
			rw        taskboard.Reward
			recipient string
		)
		if err := rows.Scan(&rw.TaskID, &rw.Title, &rw.Amount, &recipient); err != nil {
			return nil, err
		}
		rw.Recipient = common.HexToAddress(recipient)
		out = append(out, rw)
	}
	return out, rows.Err()
}

func (r *PGRepository) SaveRewards(ctx context.Context, rewards []taskboard.Reward) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM board_rewards WHERE scope=$1`, r.scope); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for i, rw := range rewards {
			batch.Queue(`
INSERT INTO board_rewards (scope, position, task_id, title, amount, recipient)
VALUES ($1,$2,$3,$4,$5,$6)
`, r.scope, i, rw.TaskID, rw.Title, rw.Amount, rw.Recipient.Hex())
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

var _ taskboard.Repository = (*PGRepository)(nil)
