package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/bigkaa/bizpanel/access-module/internal/domain/model"
	"github.com/bigkaa/bizpanel/access-module/internal/domain/rbac"
)

const seedYAML = `
users:
  - id: u-ivanov
    name: Иван Иванов
    role: sales
    tenant_id: t-1
  - id: u-petrova
    name: Анна Петрова
    role: manager
role_defaults:
  sales:
    - permission: orders.create
      allowed: true
    - permission: orders.view
      allowed: true
  manager:
    - permission: approvals.manage
      allowed: true
`

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(seedYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	seed, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed() ошибка: %v", err)
	}
	if len(seed.Users) != 2 || seed.Users[0].TenantID != "t-1" {
		t.Errorf("users = %+v", seed.Users)
	}
	if len(seed.RoleDefaults[rbac.RoleSales]) != 2 {
		t.Errorf("role_defaults[sales] = %+v", seed.RoleDefaults[rbac.RoleSales])
	}

	if _, err := LoadSeed(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadSeed() несуществующего файла должен вернуть ошибку")
	}
}

func TestParseSeed_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"битый YAML", "users: [\n"},
		{"пустой id", "users:\n  - name: X\n    role: sales\n"},
		{"повторный id", "users:\n  - id: a\n    role: sales\n  - id: a\n    role: viewer\n"},
		{"неизвестная роль пользователя", "users:\n  - id: a\n    role: pilot\n"},
		{"defaults для admin", "role_defaults:\n  admin:\n    - permission: orders.view\n      allowed: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSeed([]byte(tt.yaml)); err == nil {
				t.Error("ParseSeed() должен вернуть ошибку")
			}
		})
	}
}

func TestApplySeed_KeepsStoredDefaults(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	// Defaults sales уже изменены через API.
	_, _ = e.permissions.SetDefaults(ctx, rbac.RoleSales, []model.PermissionEntry{{PermissionID: "sales.view", Allowed: true}})

	seed, err := ParseSeed([]byte(seedYAML))
	if err != nil {
		t.Fatal(err)
	}
	if err := ApplySeed(ctx, seed, e.users, e.defaults, e.permissions, testLogger()); err != nil {
		t.Fatalf("ApplySeed() ошибка: %v", err)
	}

	if u, err := e.users.Get(ctx, "u-ivanov"); err != nil || u.Role != rbac.RoleSales {
		t.Errorf("пользователь не загружен: %+v, %v", u, err)
	}
	if !e.permissions.Resolve(ctx, "u-petrova", "approvals.manage") {
		t.Error("defaults manager из seed не применены")
	}
	if e.permissions.Resolve(ctx, "u-ivanov", "orders.create") {
		t.Error("seed затёр сохранённые defaults sales")
	}
	if !e.permissions.Resolve(ctx, "u-ivanov", "sales.view") {
		t.Error("сохранённые defaults sales потеряны")
	}

	roles := e.defaults.Roles()
	slices.Sort(roles)
	if want := []string{rbac.RoleManager, rbac.RoleSales}; !slices.Equal(roles, want) {
		t.Errorf("Roles() = %v, хотели %v", roles, want)
	}
}

func TestApplySeed_UnknownPermission(t *testing.T) {
	e := newEnv(t, nil, nil)
	seed, err := ParseSeed([]byte("role_defaults:\n  viewer:\n    - permission: rockets.launch\n      allowed: true\n"))
	if err != nil {
		t.Fatal(err)
	}
	err = ApplySeed(context.Background(), seed, e.users, e.defaults, e.permissions, testLogger())
	if !errors.Is(err, ErrValidation) {
		t.Errorf("ApplySeed() = %v, хотели ErrValidation", err)
	}
}
