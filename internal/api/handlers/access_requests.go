// access_requests.go — обработчики /api/v1/access-requests endpoints.
// Подача запроса, список, получение, решение согласующего, досрочный отзыв.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/bizpanel/access-module/internal/api/errors"
	"github.com/bigkaa/bizpanel/access-module/internal/api/middleware"
	"github.com/bigkaa/bizpanel/access-module/internal/domain/catalog"
	"github.com/bigkaa/bizpanel/access-module/internal/domain/model"
	"github.com/bigkaa/bizpanel/access-module/internal/domain/request"
	"github.com/bigkaa/bizpanel/access-module/internal/service"
)

type submitRequest struct {
	Permission   string             `json:"permission"`
	AccessType   model.AccessType   `json:"access_type"`
	Duration     int                `json:"duration,omitempty"`
	DurationUnit model.DurationUnit `json:"duration_unit,omitempty"`
	Reason       string             `json:"reason,omitempty"`
}

type accessRequestListResponse struct {
	Items []model.AccessRequest `json:"items"`
	Total int                   `json:"total"`
}

type decisionRequest struct {
	Decision string `json:"decision"`
}

// SubmitAccessRequest — POST /api/v1/access-requests.
// Запрос подаётся от имени вызывающего. Доступ: любой пользователь.
func (h *APIHandler) SubmitAccessRequest(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Permission == "" {
		apierrors.ValidationError(w, "Поле permission обязательно")
		return
	}

	created, err := h.access.Submit(r.Context(), service.SubmitParams{
		UserID:       middleware.SubjectFromContext(r.Context()),
		PermissionID: req.Permission,
		AccessType:   req.AccessType,
		Duration:     req.Duration,
		DurationUnit: req.DurationUnit,
		Reason:       req.Reason,
	})
	if err != nil {
		h.writeServiceError(w, err, "создание запроса доступа")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListAccessRequests — GET /api/v1/access-requests?status=&user_id=.
// С правом approvals.view — любые запросы, без него — только свои.
func (h *APIHandler) ListAccessRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := service.ListFilter{UserID: q.Get("user_id")}

	if s := q.Get("status"); s != "" {
		status, err := request.ParseStatus(s)
		if err != nil {
			apierrors.ValidationError(w, err.Error())
			return
		}
		filter.Status = status
	}

	caller := middleware.SubjectFromContext(r.Context())
	if !h.canViewAll(r) {
		if filter.UserID != "" && filter.UserID != caller {
			apierrors.Forbidden(w, "Недостаточно прав: просмотр чужих запросов требует "+catalog.PermApprovalsView)
			return
		}
		filter.UserID = caller
	}

	items := h.access.List(r.Context(), filter)
	if items == nil {
		items = []model.AccessRequest{}
	}
	writeJSON(w, http.StatusOK, accessRequestListResponse{Items: items, Total: len(items)})
}

// GetAccessRequest — GET /api/v1/access-requests/{id}.
// Доступ: владелец запроса или approvals.view.
func (h *APIHandler) GetAccessRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.access.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "получение запроса доступа")
		return
	}
	if req.UserID != middleware.SubjectFromContext(r.Context()) && !h.canViewAll(r) {
		// Не раскрываем существование чужого запроса.
		apierrors.NotFound(w, "Запрос доступа не найден")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// DecideAccessRequest — POST /api/v1/access-requests/{id}/decision.
// Доступ: approvals.manage.
func (h *APIHandler) DecideAccessRequest(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	decision, err := request.ParseDecision(req.Decision)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	updated, err := h.access.Decide(r.Context(), chi.URLParam(r, "id"), decision, middleware.SubjectFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, err, "решение по запросу доступа")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// RevokeAccessRequest — POST /api/v1/access-requests/{id}/revoke.
// Досрочный отзыв одобренного доступа. Доступ: approvals.manage.
func (h *APIHandler) RevokeAccessRequest(w http.ResponseWriter, r *http.Request) {
	updated, err := h.access.Revoke(r.Context(), chi.URLParam(r, "id"), middleware.SubjectFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, err, "отзыв доступа")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *APIHandler) canViewAll(r *http.Request) bool {
	return middleware.Can(r.Context(), h.permissions, catalog.PermApprovalsView) ||
		middleware.Can(r.Context(), h.permissions, catalog.PermApprovalsManage)
}
