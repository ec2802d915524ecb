// permissions.go — обработчики каталога прав, defaults ролей и overrides пользователей.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/bizpanel/access-module/internal/api/errors"
	"github.com/bigkaa/bizpanel/access-module/internal/api/middleware"
	"github.com/bigkaa/bizpanel/access-module/internal/domain/catalog"
	"github.com/bigkaa/bizpanel/access-module/internal/domain/model"
)

type permissionGroup struct {
	Group       string             `json:"group"`
	Permissions []model.Permission `json:"permissions"`
}

type catalogResponse struct {
	Groups []permissionGroup `json:"groups"`
}

// ListPermissions — GET /api/v1/permissions.
// Каталог прав, сгруппированный по разделам. Доступ: любой пользователь.
func (h *APIHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	cat := h.permissions.Catalog()
	groups := cat.Groups()

	resp := catalogResponse{Groups: make([]permissionGroup, 0, len(groups))}
	for _, name := range cat.GroupNames() {
		resp.Groups = append(resp.Groups, permissionGroup{Group: name, Permissions: groups[name]})
	}
	writeJSON(w, http.StatusOK, resp)
}

type checkRequest struct {
	// UserID — чьё право проверить; пусто — вызывающего.
	UserID     string `json:"user_id,omitempty"`
	Permission string `json:"permission"`
}

type checkResponse struct {
	UserID     string `json:"user_id"`
	Permission string `json:"permission"`
	Allowed    bool   `json:"allowed"`
	Source     string `json:"source"`
}

// CheckPermission — POST /api/v1/permissions/check.
// Проверка своего права — любой пользователь, чужого — users.manage_permissions.
func (h *APIHandler) CheckPermission(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Permission == "" {
		apierrors.ValidationError(w, "Поле permission обязательно")
		return
	}

	caller := middleware.SubjectFromContext(r.Context())
	if req.UserID == "" {
		req.UserID = caller
	}
	if req.UserID != caller && !middleware.Can(r.Context(), h.permissions, catalog.PermUsersManagePermissions) {
		apierrors.Forbidden(w, "Недостаточно прав: проверка прав другого пользователя требует "+catalog.PermUsersManagePermissions)
		return
	}

	d := h.permissions.Explain(r.Context(), req.UserID, req.Permission)
	writeJSON(w, http.StatusOK, checkResponse{
		UserID:     req.UserID,
		Permission: req.Permission,
		Allowed:    d.Allowed,
		Source:     d.Source,
	})
}

// MyPermissions — GET /api/v1/me/permissions.
// Эффективные права вызывающего (для UI).
func (h *APIHandler) MyPermissions(w http.ResponseWriter, r *http.Request) {
	h.writeEffective(w, r, middleware.SubjectFromContext(r.Context()))
}

// GetUserPermissions — GET /api/v1/users/{id}/permissions.
// Доступ: users.manage_permissions.
func (h *APIHandler) GetUserPermissions(w http.ResponseWriter, r *http.Request) {
	h.writeEffective(w, r, chi.URLParam(r, "id"))
}

func (h *APIHandler) writeEffective(w http.ResponseWriter, r *http.Request, userID string) {
	set, err := h.permissions.EffectivePermissions(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "получение эффективных прав")
		return
	}
	writeJSON(w, http.StatusOK, permissionSetResponse{UserID: userID, Permissions: sortedEntries(set)})
}

// GetRoleDefaults — GET /api/v1/roles/{role}/defaults.
// Доступ: users.manage_permissions.
func (h *APIHandler) GetRoleDefaults(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	set, err := h.permissions.GetDefaults(role)
	if err != nil {
		h.writeServiceError(w, err, "получение defaults роли")
		return
	}
	writeJSON(w, http.StatusOK, permissionSetResponse{Role: role, Permissions: sortedEntries(set)})
}

// SetRoleDefaults — PUT /api/v1/roles/{role}/defaults.
// Заменяет набор целиком. Доступ: users.manage_permissions.
func (h *APIHandler) SetRoleDefaults(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	var req permissionsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	set, err := h.permissions.SetDefaults(r.Context(), role, req.Permissions)
	if err != nil {
		h.writeServiceError(w, err, "обновление defaults роли")
		return
	}
	writeJSON(w, http.StatusOK, permissionSetResponse{Role: role, Permissions: sortedEntries(set)})
}

// GetUserOverrides — GET /api/v1/users/{id}/overrides.
// Доступ: users.manage_permissions.
func (h *APIHandler) GetUserOverrides(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	set, err := h.permissions.GetOverrides(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "получение overrides")
		return
	}
	writeJSON(w, http.StatusOK, permissionSetResponse{UserID: userID, Permissions: sortedEntries(set)})
}

// PatchUserOverrides — PATCH /api/v1/users/{id}/overrides.
// Сливает записи с существующими (новое побеждает). Доступ: users.manage_permissions.
func (h *APIHandler) PatchUserOverrides(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	var req permissionsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Permissions) == 0 {
		apierrors.ValidationError(w, "Список permissions пуст")
		return
	}

	set, err := h.permissions.SetOverrides(r.Context(), userID, req.Permissions)
	if err != nil {
		h.writeServiceError(w, err, "обновление overrides")
		return
	}
	writeJSON(w, http.StatusOK, permissionSetResponse{UserID: userID, Permissions: sortedEntries(set)})
}

// DeleteUserOverride — DELETE /api/v1/users/{id}/overrides/{permission}.
// Доступ: users.manage_permissions.
func (h *APIHandler) DeleteUserOverride(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	permissionID := chi.URLParam(r, "permission")

	removed, err := h.permissions.ClearOverride(r.Context(), userID, permissionID)
	if err != nil {
		h.writeServiceError(w, err, "удаление override")
		return
	}
	if !removed {
		apierrors.NotFound(w, "Override "+permissionID+" не найден")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type roleTemplateRequest struct {
	Role string `json:"role"`
}

// ApplyRoleTemplate — POST /api/v1/users/{id}/role-template.
// Записывает defaults роли как overrides пользователя. Доступ: users.manage_permissions.
func (h *APIHandler) ApplyRoleTemplate(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	var req roleTemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Role == "" {
		apierrors.ValidationError(w, "Поле role обязательно")
		return
	}

	set, err := h.permissions.ApplyRoleTemplate(r.Context(), userID, req.Role)
	if err != nil {
		h.writeServiceError(w, err, "применение шаблона роли")
		return
	}
	writeJSON(w, http.StatusOK, permissionSetResponse{UserID: userID, Permissions: sortedEntries(set)})
}
