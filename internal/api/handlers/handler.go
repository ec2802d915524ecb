// handler.go — основной обработчик API Access Module.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"

	apierrors "github.com/bigkaa/bizpanel/access-module/internal/api/errors"
	"github.com/bigkaa/bizpanel/access-module/internal/domain/model"
	"github.com/bigkaa/bizpanel/access-module/internal/service"
)

// maxBodyBytes — ограничение размера тела запроса.
const maxBodyBytes = 1 << 20

// APIHandler — основной обработчик API Access Module.
type APIHandler struct {
	health      *HealthHandler
	permissions *service.PermissionService
	access      *service.AccessRequestService
	logger      *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	permissions *service.PermissionService,
	access *service.AccessRequestService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:      health,
		permissions: permissions,
		access:      access,
		logger:      logger.With(slog.String("component", "api_handler")),
	}
}

// Health возвращает обработчик health endpoints.
func (h *APIHandler) Health() *HealthHandler {
	return h.health
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает тело запроса в dst. При ошибке пишет 400 и возвращает false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return false
	}
	return true
}

// writeServiceError переводит ошибку сервисного слоя в HTTP-ответ.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrInvalidState):
		apierrors.InvalidState(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	default:
		h.logger.Error("Ошибка операции",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка: "+op)
	}
}

// permissionSetResponse — набор прав в ответах API.
type permissionSetResponse struct {
	UserID      string                  `json:"user_id,omitempty"`
	Role        string                  `json:"role,omitempty"`
	Permissions []model.PermissionEntry `json:"permissions"`
}

// sortedEntries возвращает записи набора в порядке идентификаторов.
func sortedEntries(set model.PermissionSet) []model.PermissionEntry {
	entries := set.Entries()
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].PermissionID < entries[j].PermissionID
	})
	return entries
}

// permissionsRequest — тело PUT defaults и PATCH overrides.
type permissionsRequest struct {
	Permissions []model.PermissionEntry `json:"permissions"`
}
