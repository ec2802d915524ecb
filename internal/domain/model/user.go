// Пакет model — доменные модели Access Module.
package model

// User — пользователь из справочника пользователей (identity collaborator).
// Access Module хранит только поля, нужные для разрешения прав.
type User struct {
	// ID — идентификатор пользователя (sub из JWT)
	ID string `json:"id" yaml:"id"`
	// Name — отображаемое имя
	Name string `json:"name" yaml:"name"`
	// Role — роль пользователя (admin, manager, sales, ...)
	Role string `json:"role" yaml:"role"`
	// TenantID — организация (арендатор), к которой относится пользователь
	TenantID string `json:"tenant_id,omitempty" yaml:"tenant_id"`
}
