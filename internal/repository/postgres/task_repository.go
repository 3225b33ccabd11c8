package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskdesk/internal/domain"
	"taskdesk/internal/repository"
)

const createTasksTable = `
CREATE TABLE IF NOT EXISTS tasks (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT ''
);
`

type TaskRepository struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) repository.TaskRepository {
	return &TaskRepository{pool: pool}
}

func (r *TaskRepository) Init(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, createTasksTable); err != nil {
		return fmt.Errorf("create tasks table: %w", err)
	}
	return nil
}

func (r *TaskRepository) Create(ctx context.Context, task *domain.Task) (int64, error) {
	err := r.pool.QueryRow(ctx, `
INSERT INTO tasks (title, description)
VALUES ($1, $2)
RETURNING id`,
		task.Title,
		task.Description,
	).Scan(&task.ID)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return task.ID, nil
}

func (r *TaskRepository) Get(ctx context.Context, id int64) (*domain.Task, error) {
	var task domain.Task
	err := r.pool.QueryRow(ctx, `
SELECT id, title, description
FROM tasks
WHERE id = $1`, id).Scan(&task.ID, &task.Title, &task.Description)
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &task, nil
}

func (r *TaskRepository) List(ctx context.Context) ([]domain.Task, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, title, description
FROM tasks
ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}

	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Task, error) {
		var task domain.Task
		err := row.Scan(&task.ID, &task.Title, &task.Description)
		return task, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan tasks: %w", err)
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, nil
}

func (r *TaskRepository) Update(ctx context.Context, task *domain.Task) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE tasks
SET title = $1, description = $2
WHERE id = $3`,
		task.Title,
		task.Description,
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
