package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bigkaa/bizpanel/access-module/internal/domain/model"
)

// UserRepository — справочник пользователей (id, имя, роль, организация).
// Источник истины о пользователях — внешний identity-сервис;
// модуль держит локальную копию, заполняемую из seed-файла.
type UserRepository interface {
	// Get возвращает пользователя по ID или ErrNotFound.
	Get(ctx context.Context, id string) (model.User, error)
	// List возвращает всех пользователей, отсортированных по ID.
	List(ctx context.Context) ([]model.User, error)
	// Upsert создаёт или обновляет пользователя.
	Upsert(ctx context.Context, u model.User) error
}

// userRepo — справочник в памяти.
type userRepo struct {
	mu    sync.RWMutex
	users map[string]model.User
}

// NewUserRepository создаёт пустой справочник пользователей.
func NewUserRepository() UserRepository {
	return &userRepo{users: make(map[string]model.User)}
}

func (r *userRepo) Get(_ context.Context, id string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (r *userRepo) List(_ context.Context) ([]model.User, error) {
	r.mu.RLock()
	out := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *userRepo) Upsert(_ context.Context, u model.User) error {
	if u.ID == "" {
		return fmt.Errorf("пустой ID пользователя: %w", ErrConflict)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
	return nil
}
