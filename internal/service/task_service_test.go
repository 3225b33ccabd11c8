package service

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCreateTaskValidation(t *testing.T) {
	tests := []struct {
		name      string
		input     TaskInput
		wantField string
	}{
		{name: "valid title", input: TaskInput{Title: "Buy milk", Description: "2%"}},
		{name: "valid without description", input: TaskInput{Title: "Walk dog"}},
		{name: "missing title", input: TaskInput{Description: "x"}, wantField: "title"},
		{name: "blank title", input: TaskInput{Title: "   \t", Description: "x"}, wantField: "title"},
		{name: "long title and description", input: TaskInput{Title: strings.Repeat("a", 300), Description: strings.Repeat("d", 300)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			repo := newMemTaskRepo()
			svc := NewTaskService(repo)

			task, err := svc.CreateTask(ctx, tt.input)
			tasks, _ := svc.ListTasks(ctx)

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("CreateTask() error = %v", err)
				}
				if len(tasks) != 1 || tasks[0].ID != task.ID || tasks[0].Title != tt.input.Title || tasks[0].Description != tt.input.Description {
					t.Fatalf("created task not listed: %#v", tasks)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("CreateTask() error = %v, want *ValidationError", err)
			}
			if verr.Fields[0].Field != tt.wantField {
				t.Errorf("field = %q, want %q", verr.Fields[0].Field, tt.wantField)
			}
			if len(tasks) != 0 {
				t.Errorf("expected nothing persisted, got %d tasks", len(tasks))
			}
		})
	}
}

func TestUpdateTask(t *testing.T) {
	ctx := context.Background()
	repo := newMemTaskRepo()
	svc := NewTaskService(repo)

	created, err := svc.CreateTask(ctx, TaskInput{Title: "Draft", Description: "v1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.UpdateTask(ctx, created.ID, TaskInput{Title: "Final", Description: "v2"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != created.ID || updated.Title != "Final" || updated.Description != "v2" {
		t.Fatalf("unexpected updated task %#v", updated)
	}

	if _, err := svc.UpdateTask(ctx, 999, TaskInput{Title: "Ghost"}); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("update missing: want ErrTaskNotFound, got %v", err)
	}

	var verr *ValidationError
	if _, err := svc.UpdateTask(ctx, created.ID, TaskInput{Title: ""}); !errors.As(err, &verr) {
		t.Errorf("update blank: want *ValidationError, got %v", err)
	}
	stored, _ := repo.Get(ctx, created.ID)
	if stored.Title != "Final" {
		t.Errorf("rejected update changed the row: %#v", stored)
	}
}

func TestDeleteTask(t *testing.T) {
	ctx := context.Background()
	svc := NewTaskService(newMemTaskRepo())

	a, _ := svc.CreateTask(ctx, TaskInput{Title: "a"})
	b, _ := svc.CreateTask(ctx, TaskInput{Title: "b"})

	if err := svc.DeleteTask(ctx, 12345); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("delete missing: want ErrTaskNotFound, got %v", err)
	}
	tasks, _ := svc.ListTasks(ctx)
	if len(tasks) != 2 {
		t.Fatalf("missing delete changed the list: %d", len(tasks))
	}

	if err := svc.DeleteTask(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	tasks, _ = svc.ListTasks(ctx)
	if len(tasks) != 1 || tasks[0].ID != b.ID {
		t.Fatalf("expected only task b left, got %#v", tasks)
	}
}

func TestTaskServiceStorageFailure(t *testing.T) {
	ctx := context.Background()
	repo := newMemTaskRepo()
	repo.fail = errBoom
	svc := NewTaskService(repo)

	checks := map[string]error{}
	_, checks["list"] = svc.ListTasks(ctx)
	_, checks["create"] = svc.CreateTask(ctx, TaskInput{Title: "x"})
	_, checks["update"] = svc.UpdateTask(ctx, 1, TaskInput{Title: "x"})
	checks["delete"] = svc.DeleteTask(ctx, 1)

	for op, err := range checks {
		if !errors.Is(err, ErrStorageUnavailable) {
			t.Errorf("%s: want ErrStorageUnavailable, got %v", op, err)
		}
		if errors.Is(err, ErrTaskNotFound) {
			t.Errorf("%s: storage failure reported as not found", op)
		}
	}
}
