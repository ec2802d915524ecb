// seed.go — начальные данные из YAML: справочник пользователей
// и defaults ролей.
//
// Формат файла:
//
//	users:
//	  - id: u-ivanov
//	    name: Иван Иванов
//	    role: sales
//	role_defaults:
//	  sales:
//	    - permission: orders.create
//	      allowed: true
package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bigkaa/bizpanel/access-module/internal/domain/model"
	"github.com/bigkaa/bizpanel/access-module/internal/domain/rbac"
	"github.com/bigkaa/bizpanel/access-module/internal/repository"
)

// Seed — содержимое seed-файла.
type Seed struct {
	Users        []model.User                       `yaml:"users"`
	RoleDefaults map[string][]model.PermissionEntry `yaml:"role_defaults"`
}

// LoadSeed читает и проверяет seed-файл.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения seed-файла %s: %w", path, err)
	}
	return ParseSeed(data)
}

// ParseSeed разбирает seed из YAML.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("ошибка разбора seed: %w", err)
	}

	seen := make(map[string]bool, len(seed.Users))
	for i, u := range seed.Users {
		if u.ID == "" {
			return nil, fmt.Errorf("%w: users[%d]: пустой id", ErrValidation, i)
		}
		if seen[u.ID] {
			return nil, fmt.Errorf("%w: users[%d]: повторный id %q", ErrValidation, i, u.ID)
		}
		seen[u.ID] = true
		if !rbac.IsValidRole(u.Role) {
			return nil, fmt.Errorf("%w: users[%d]: недопустимая роль %q", ErrValidation, i, u.Role)
		}
	}
	for role := range seed.RoleDefaults {
		if !rbac.IsValidRole(role) || rbac.IsAdmin(role) {
			return nil, fmt.Errorf("%w: role_defaults: недопустимая роль %q", ErrValidation, role)
		}
	}
	return &seed, nil
}

// ApplySeed загружает пользователей в справочник и записывает defaults
// ролей, для которых ещё нет сохранённого набора: изменения, сделанные
// через API, при рестарте не затираются.
func ApplySeed(
	ctx context.Context,
	seed *Seed,
	users repository.UserRepository,
	defaults repository.RoleDefaultRepository,
	permissions *PermissionService,
	logger *slog.Logger,
) error {
	for _, u := range seed.Users {
		if err := users.Upsert(ctx, u); err != nil {
			return fmt.Errorf("ошибка загрузки пользователя %s: %w", u.ID, err)
		}
	}

	// Роли, настроенные через API, seed не перезаписывает.
	stored := make(map[string]bool)
	for _, role := range defaults.Roles() {
		stored[role] = true
	}

	applied := 0
	for _, role := range rbac.Roles() {
		entries, ok := seed.RoleDefaults[role]
		if !ok {
			continue
		}
		if stored[role] {
			logger.Debug("Defaults роли уже сохранены, seed пропущен",
				slog.String("role", role),
			)
			continue
		}
		if _, err := permissions.SetDefaults(ctx, role, entries); err != nil {
			return fmt.Errorf("ошибка загрузки defaults роли %s: %w", role, err)
		}
		applied++
	}

	logger.Info("Seed применён",
		slog.Int("users", len(seed.Users)),
		slog.Int("role_defaults", applied),
	)
	return nil
}
