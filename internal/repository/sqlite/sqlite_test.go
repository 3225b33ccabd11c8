package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"taskdesk/internal/domain"
	"taskdesk/internal/repository"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTaskRepo(t *testing.T) repository.TaskRepository {
	t.Helper()
	repo := NewTaskRepository(openTestDB(t))
	if err := repo.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return repo
}

func TestTaskRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	repo := newTaskRepo(t)

	tasks, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if tasks == nil || len(tasks) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", tasks)
	}

	first := &domain.Task{Title: "Buy milk", Description: "2%"}
	id, err := repo.Create(ctx, first)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == 0 || first.ID != id {
		t.Fatalf("expected assigned id, got %d / %d", id, first.ID)
	}
	if _, err := repo.Create(ctx, &domain.Task{Title: "Walk dog"}); err != nil {
		t.Fatalf("create second: %v", err)
	}

	tasks, err = repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 2 || tasks[0].Title != "Buy milk" || tasks[1].Title != "Walk dog" {
		t.Fatalf("unexpected list %#v", tasks)
	}

	first.Title = "Buy oat milk"
	first.Description = ""
	if err := repo.Update(ctx, first); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Buy oat milk" || got.Description != "" {
		t.Fatalf("unexpected task after update %#v", got)
	}

	if err := repo.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, id); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("get deleted: want ErrNotFound, got %v", err)
	}
	tasks, _ = repo.List(ctx)
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task after delete, got %d", len(tasks))
	}
}

func TestTaskRepositoryMissingRows(t *testing.T) {
	ctx := context.Background()
	repo := newTaskRepo(t)

	if err := repo.Update(ctx, &domain.Task{ID: 42, Title: "x"}); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("update missing: want ErrNotFound, got %v", err)
	}
	if err := repo.Delete(ctx, 42); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("delete missing: want ErrNotFound, got %v", err)
	}
	if _, err := repo.Get(ctx, 42); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("get missing: want ErrNotFound, got %v", err)
	}
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t))
	if err := repo.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	user := &domain.User{
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Email:        "ada@example.com",
		PasswordHash: "$2a$04$hash",
	}
	id, err := repo.Create(ctx, user)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if user.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}

	dup := &domain.User{Email: "ada@example.com", PasswordHash: "other"}
	if _, err := repo.Create(ctx, dup); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("duplicate email: want ErrDuplicate, got %v", err)
	}

	byEmail, err := repo.GetByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if byEmail.ID != id || byEmail.FirstName != "Ada" || byEmail.LastName != "Lovelace" {
		t.Fatalf("unexpected user %#v", byEmail)
	}

	if err := repo.UpdatePasswordHash(ctx, id, "$2a$10$newhash"); err != nil {
		t.Fatalf("update hash: %v", err)
	}
	byID, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if byID.PasswordHash != "$2a$10$newhash" {
		t.Fatalf("hash not updated: %q", byID.PasswordHash)
	}

	if _, err := repo.GetByEmail(ctx, "nobody@example.com"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("missing email: want ErrNotFound, got %v", err)
	}
	if err := repo.UpdatePasswordHash(ctx, 999, "x"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("missing id: want ErrNotFound, got %v", err)
	}
}
