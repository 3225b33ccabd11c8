package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"

	"taskdesk/internal/domain"
	"taskdesk/internal/repository"
)

// TaskInput is the client supplied part of a task.
type TaskInput struct {
	Title       string `json:"title" validate:"notblank"`
	Description string `json:"description"`
}

// TaskService coordinates task level operations backed by repositories.
type TaskService interface {
	ListTasks(ctx context.Context) ([]domain.Task, error)
	CreateTask(ctx context.Context, input TaskInput) (*domain.Task, error)
	UpdateTask(ctx context.Context, id int64, input TaskInput) (*domain.Task, error)
	DeleteTask(ctx context.Context, id int64) error
}

type taskService struct {
	tasks    repository.TaskRepository
	validate *validator.Validate
}

func NewTaskService(tasks repository.TaskRepository) TaskService {
	return &taskService{
		tasks:    tasks,
		validate: newValidator(),
	}
}

func (s *taskService) ListTasks(ctx context.Context) ([]domain.Task, error) {
	tasks, err := s.tasks.List(ctx)
	if err != nil {
		return nil, storageError("list tasks", err)
	}
	return tasks, nil
}

func (s *taskService) CreateTask(ctx context.Context, input TaskInput) (*domain.Task, error) {
	if err := validateStruct(s.validate, input); err != nil {
		return nil, err
	}

	task := &domain.Task{
		Title:       input.Title,
		Description: input.Description,
	}
	if _, err := s.tasks.Create(ctx, task); err != nil {
		return nil, storageError("create task", err)
	}
	return task, nil
}

func (s *taskService) UpdateTask(ctx context.Context, id int64, input TaskInput) (*domain.Task, error) {
	if err := validateStruct(s.validate, input); err != nil {
		return nil, err
	}

	task, err := s.tasks.Get(ctx, id)
	if err != nil {
		return nil, taskLookupError("get task", err)
	}

	task.Title = input.Title
	task.Description = input.Description
	if err := s.tasks.Update(ctx, task); err != nil {
		// the row may vanish between lookup and write
		return nil, taskLookupError("update task", err)
	}
	return task, nil
}

func (s *taskService) DeleteTask(ctx context.Context, id int64) error {
	if err := s.tasks.Delete(ctx, id); err != nil {
		return taskLookupError("delete task", err)
	}
	return nil
}

func taskLookupError(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrTaskNotFound
	}
	return storageError(op, err)
}
