package model

// Permission — право из каталога. Неизменяемо, задаётся при старте процесса.
type Permission struct {
	// ID — идентификатор права, например "orders.create"
	ID string `json:"id"`
	// Label — человекочитаемое название
	Label string `json:"label"`
	// Group — функциональная группа (sales, inventory, ...)
	Group string `json:"group"`
}

// PermissionEntry — решение allow/deny для одного права.
// Используется в наборах role defaults и user overrides.
type PermissionEntry struct {
	PermissionID string `json:"permission" yaml:"permission"`
	Allowed      bool   `json:"allowed" yaml:"allowed"`
}

// PermissionSet — набор решений по правам: permission_id → allowed.
type PermissionSet map[string]bool

// Clone возвращает независимую копию набора.
func (s PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Entries возвращает набор в виде списка записей.
func (s PermissionSet) Entries() []PermissionEntry {
	out := make([]PermissionEntry, 0, len(s))
	for id, allowed := range s {
		out = append(out, PermissionEntry{PermissionID: id, Allowed: allowed})
	}
	return out
}
