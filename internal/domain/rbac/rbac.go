// Пакет rbac — разрешение прав пользователя.
// Каскад: роль admin → override пользователя → default роли → запрет.
// Разрешение не имеет побочных эффектов и не возвращает ошибок:
// неизвестные пользователь, роль или право дают запрет (fail-closed).
package rbac

import (
	"github.com/bigkaa/bizpanel/access-module/internal/domain/catalog"
	"github.com/bigkaa/bizpanel/access-module/internal/domain/model"
)

// Роли приложения.
const (
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleSales      = "sales"
	RoleWarehouse  = "warehouse"
	RoleAccountant = "accountant"
	RoleViewer     = "viewer"
)

// roles — допустимые роли в порядке отображения.
var roles = []string{RoleAdmin, RoleManager, RoleSales, RoleWarehouse, RoleAccountant, RoleViewer}

// Roles возвращает список допустимых ролей.
func Roles() []string {
	out := make([]string, len(roles))
	copy(out, roles)
	return out
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin — привилегированная роль, минующая таблицы прав.
func IsAdmin(role string) bool {
	return role == RoleAdmin
}

// Tables — снимок таблиц прав, по которому идёт разрешение.
// Реализации не должны выполнять блокирующий I/O.
type Tables interface {
	// UserOverride возвращает override пользователя (allowed, найден ли).
	UserOverride(userID, permissionID string) (allowed bool, ok bool)
	// RoleDefault возвращает default роли (allowed, найден ли).
	RoleDefault(role, permissionID string) (allowed bool, ok bool)
}

// Decision — результат разрешения с указанием источника.
type Decision struct {
	Allowed bool
	// Source — admin, override, role_default, unknown_permission или default_deny
	Source string
}

// Источники решения.
const (
	SourceAdmin             = "admin"
	SourceOverride          = "override"
	SourceRoleDefault       = "role_default"
	SourceUnknownPermission = "unknown_permission"
	SourceDefaultDeny       = "default_deny"
)

// Resolver разрешает права по каталогу и таблицам.
// Безопасен для конкурентного использования.
type Resolver struct {
	catalog *catalog.Catalog
}

// NewResolver создаёт Resolver над каталогом прав.
func NewResolver(c *catalog.Catalog) *Resolver {
	return &Resolver{catalog: c}
}

// Resolve отвечает на вопрос «может ли user выполнить permissionID».
func (r *Resolver) Resolve(user model.User, permissionID string, tables Tables) bool {
	return r.Explain(user, permissionID, tables).Allowed
}

// Explain — Resolve с указанием, какое правило дало решение.
func (r *Resolver) Explain(user model.User, permissionID string, tables Tables) Decision {
	if IsAdmin(user.Role) {
		return Decision{Allowed: true, Source: SourceAdmin}
	}

	// Overrides на неизвестные права допускаются при записи,
	// но в разрешении не участвуют.
	if !r.catalog.Known(permissionID) {
		return Decision{Allowed: false, Source: SourceUnknownPermission}
	}

	if allowed, ok := tables.UserOverride(user.ID, permissionID); ok {
		return Decision{Allowed: allowed, Source: SourceOverride}
	}

	if allowed, ok := tables.RoleDefault(user.Role, permissionID); ok {
		return Decision{Allowed: allowed, Source: SourceRoleDefault}
	}

	return Decision{Allowed: false, Source: SourceDefaultDeny}
}

// Effective возвращает решение по каждому праву каталога.
func (r *Resolver) Effective(user model.User, tables Tables) model.PermissionSet {
	ids := r.catalog.IDs()
	out := make(model.PermissionSet, len(ids))
	for _, id := range ids {
		out[id] = r.Resolve(user, id, tables)
	}
	return out
}
