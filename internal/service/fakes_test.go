package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"taskdesk/internal/domain"
	"taskdesk/internal/repository"
)

var errBoom = errors.New("disk on fire")

type memTaskRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]domain.Task
	fail   error
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{rows: map[int64]domain.Task{}}
}

func (r *memTaskRepo) Init(ctx context.Context) error { return nil }

func (r *memTaskRepo) Create(ctx context.Context, task *domain.Task) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return 0, r.fail
	}
	r.nextID++
	task.ID = r.nextID
	r.rows[task.ID] = *task
	return task.ID, nil
}

func (r *memTaskRepo) Get(ctx context.Context, id int64) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	task, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &task, nil
}

func (r *memTaskRepo) List(ctx context.Context) ([]domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	tasks := make([]domain.Task, 0, len(r.rows))
	for _, t := range r.rows {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

func (r *memTaskRepo) Update(ctx context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	if _, ok := r.rows[task.ID]; !ok {
		return repository.ErrNotFound
	}
	r.rows[task.ID] = *task
	return nil
}

func (r *memTaskRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	if _, ok := r.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

type memUserRepo struct {
	mu      sync.Mutex
	nextID  int64
	rows    map[int64]domain.User
	fail    error
	updates int
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{rows: map[int64]domain.User{}}
}

func (r *memUserRepo) Init(ctx context.Context) error { return nil }

func (r *memUserRepo) Create(ctx context.Context, user *domain.User) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return 0, r.fail
	}
	for _, u := range r.rows {
		if u.Email == user.Email {
			return 0, repository.ErrDuplicate
		}
	}
	r.nextID++
	user.ID = r.nextID
	r.rows[user.ID] = *user
	return user.ID, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.rows {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	u, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *memUserRepo) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = hash
	r.rows[id] = u
	r.updates++
	return nil
}

func (r *memUserRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type stubCSRF struct {
	valid string
}

func (s stubCSRF) Validate(intent, token, binding string) error {
	if intent != CSRFIntent || token != s.valid || binding != "bound" {
		return errors.New("csrf mismatch")
	}
	return nil
}
