package repository

import (
	"context"

	"github.com/bigkaa/bizpanel/access-module/internal/domain/model"
)

// RoleDefaultRepository — таблица defaults: роль → набор решений по правам.
type RoleDefaultRepository interface {
	// Get возвращает копию сохранённого набора роли (false — набора нет).
	Get(role string) (model.PermissionSet, bool)
	// Replace атомарно заменяет весь набор роли.
	Replace(ctx context.Context, role string, set model.PermissionSet) error
	// RoleDefault возвращает решение по одному праву (для резолвера).
	RoleDefault(role, permissionID string) (allowed bool, ok bool)
	// Roles возвращает роли, у которых есть сохранённый набор.
	Roles() []string
	// Load загружает таблицу из хранилища.
	Load(ctx context.Context) error
}

type roleDefaults map[string]model.PermissionSet

// roleDefaultRepo — реализация RoleDefaultRepository.
type roleDefaultRepo struct {
	c *collection[roleDefaults]
}

// NewRoleDefaultRepository создаёт таблицу defaults поверх store.
// store == nil — только память.
func NewRoleDefaultRepository(store Store) RoleDefaultRepository {
	return &roleDefaultRepo{c: newCollection(KeyRoleDefaults, store, roleDefaults{})}
}

func (r *roleDefaultRepo) Get(role string) (model.PermissionSet, bool) {
	set, ok := r.c.snapshot()[role]
	if !ok {
		return nil, false
	}
	return set.Clone(), true
}

func (r *roleDefaultRepo) Replace(ctx context.Context, role string, set model.PermissionSet) error {
	stored := set.Clone()
	return r.c.update(ctx, func(cur roleDefaults) (roleDefaults, error) {
		next := make(roleDefaults, len(cur)+1)
		for k, v := range cur {
			next[k] = v
		}
		next[role] = stored
		return next, nil
	})
}

func (r *roleDefaultRepo) RoleDefault(role, permissionID string) (bool, bool) {
	allowed, ok := r.c.snapshot()[role][permissionID]
	return allowed, ok
}

func (r *roleDefaultRepo) Roles() []string {
	snap := r.c.snapshot()
	out := make([]string, 0, len(snap))
	for role := range snap {
		out = append(out, role)
	}
	return out
}

func (r *roleDefaultRepo) Load(ctx context.Context) error {
	return r.c.load(ctx)
}
