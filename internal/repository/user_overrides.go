package repository

import (
	"context"

	"github.com/bigkaa/bizpanel/access-module/internal/domain/model"
)

// UserOverrideRepository — разреженная таблица исключений пользователя
// из defaults его роли.
type UserOverrideRepository interface {
	// Get возвращает копию overrides пользователя (пустой набор, если нет).
	Get(userID string) model.PermissionSet
	// Merge объединяет entries с существующими overrides:
	// запись с тем же permission_id заменяется, остальные сохраняются.
	Merge(ctx context.Context, userID string, entries []model.PermissionEntry) error
	// Clear удаляет один override. Возвращает false, если его не было.
	Clear(ctx context.Context, userID, permissionID string) (bool, error)
	// UserOverride возвращает решение по одному праву (для резолвера).
	UserOverride(userID, permissionID string) (allowed bool, ok bool)
	// Load загружает таблицу из хранилища.
	Load(ctx context.Context) error
}

type userOverrides map[string]model.PermissionSet

// userOverrideRepo — реализация UserOverrideRepository.
type userOverrideRepo struct {
	c *collection[userOverrides]
}

// NewUserOverrideRepository создаёт таблицу overrides поверх store.
func NewUserOverrideRepository(store Store) UserOverrideRepository {
	return &userOverrideRepo{c: newCollection(KeyUserOverrides, store, userOverrides{})}
}

func (r *userOverrideRepo) Get(userID string) model.PermissionSet {
	set, ok := r.c.snapshot()[userID]
	if !ok {
		return model.PermissionSet{}
	}
	return set.Clone()
}

func (r *userOverrideRepo) Merge(ctx context.Context, userID string, entries []model.PermissionEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.c.update(ctx, func(cur userOverrides) (userOverrides, error) {
		merged := cur[userID].Clone()
		for _, e := range entries {
			merged[e.PermissionID] = e.Allowed
		}
		return withUser(cur, userID, merged), nil
	})
}

func (r *userOverrideRepo) Clear(ctx context.Context, userID, permissionID string) (bool, error) {
	if _, ok := r.c.snapshot()[userID][permissionID]; !ok {
		return false, nil
	}

	removed := false
	err := r.c.update(ctx, func(cur userOverrides) (userOverrides, error) {
		set, ok := cur[userID]
		if !ok {
			return cur, nil
		}
		if _, ok := set[permissionID]; !ok {
			return cur, nil
		}
		removed = true
		next := set.Clone()
		delete(next, permissionID)
		return withUser(cur, userID, next), nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

func (r *userOverrideRepo) UserOverride(userID, permissionID string) (bool, bool) {
	allowed, ok := r.c.snapshot()[userID][permissionID]
	return allowed, ok
}

func (r *userOverrideRepo) Load(ctx context.Context) error {
	return r.c.load(ctx)
}

// withUser возвращает копию таблицы с заменённым набором пользователя.
// Пустой набор удаляет пользователя из таблицы.
func withUser(cur userOverrides, userID string, set model.PermissionSet) userOverrides {
	next := make(userOverrides, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	if len(set) == 0 {
		delete(next, userID)
	} else {
		next[userID] = set
	}
	return next
}
