package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"taskdesk/internal/domain"
	"taskdesk/internal/repository"
)

// Integration-style test: runs only if TASKDESK_TEST_DATABASE_URL is set.
func TestPostgresRepositoriesIntegration(t *testing.T) {
	url := os.Getenv("TASKDESK_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TASKDESK_TEST_DATABASE_URL not set; skipping integration test")
	}

	ctx := context.Background()
	pool, err := Open(ctx, url)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer pool.Close()

	tasks := NewTaskRepository(pool)
	users := NewUserRepository(pool)
	if err := tasks.Init(ctx); err != nil {
		t.Fatalf("init tasks: %v", err)
	}
	if err := users.Init(ctx); err != nil {
		t.Fatalf("init users: %v", err)
	}

	task := &domain.Task{Title: "integration", Description: "pg"}
	id, err := tasks.Create(ctx, task)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	t.Cleanup(func() { _ = tasks.Delete(context.Background(), id) })

	task.Title = "integration updated"
	if err := tasks.Update(ctx, task); err != nil {
		t.Fatalf("update task: %v", err)
	}
	got, err := tasks.Get(ctx, id)
	if err != nil || got.Title != "integration updated" {
		t.Fatalf("get task = %#v, %v", got, err)
	}
	if err := tasks.Delete(ctx, id); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if err := tasks.Delete(ctx, id); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("second delete: want ErrNotFound, got %v", err)
	}

	email := fmt.Sprintf("it-%d@example.com", time.Now().UnixNano())
	user := &domain.User{Email: email, PasswordHash: "$2a$04$x"}
	if _, err := users.Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, user.ID)
	})
	if _, err := users.Create(ctx, &domain.User{Email: email, PasswordHash: "y"}); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("duplicate user: want ErrDuplicate, got %v", err)
	}
	if _, err := users.GetByEmail(ctx, email); err != nil {
		t.Fatalf("get by email: %v", err)
	}
}
