// access_requests.go — жизненный цикл запросов доступа.
//
// pending → approved | rejected (терминальные). Одобрение записывает
// override allow; для временного доступа дополнительно планируется отзыв
// на valid_until. Одобренный запрос можно досрочно отозвать (Revoke).
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bigkaa/bizpanel/access-module/internal/clock"
	"github.com/bigkaa/bizpanel/access-module/internal/domain/model"
	"github.com/bigkaa/bizpanel/access-module/internal/domain/request"
	"github.com/bigkaa/bizpanel/access-module/internal/notify"
	"github.com/bigkaa/bizpanel/access-module/internal/repository"
)

// SubmitParams — параметры нового запроса доступа.
type SubmitParams struct {
	UserID       string
	PermissionID string
	AccessType   model.AccessType
	Duration     int
	DurationUnit model.DurationUnit
	Reason       string
}

// AccessRequestService — сервис запросов доступа.
type AccessRequestService struct {
	requests    repository.AccessRequestRepository
	users       repository.UserRepository
	permissions *PermissionService
	expiry      *ExpiryService
	clock       clock.Clock
	events      emitter
	logger      *slog.Logger
}

// NewAccessRequestService создаёт сервис запросов доступа.
func NewAccessRequestService(
	requests repository.AccessRequestRepository,
	users repository.UserRepository,
	permissions *PermissionService,
	expiry *ExpiryService,
	clk clock.Clock,
	notifier notify.Notifier,
	logger *slog.Logger,
) *AccessRequestService {
	l := logger.With(slog.String("component", "access_request_service"))
	return &AccessRequestService{
		requests:    requests,
		users:       users,
		permissions: permissions,
		expiry:      expiry,
		clock:       clk,
		events:      emitter{notifier: notifier, logger: l},
		logger:      l,
	}
}

// Submit создаёт запрос в статусе pending и уведомляет согласующих.
func (s *AccessRequestService) Submit(ctx context.Context, p SubmitParams) (model.AccessRequest, error) {
	if err := request.ValidateSubmit(request.SubmitInput{
		AccessType:   p.AccessType,
		Duration:     p.Duration,
		DurationUnit: p.DurationUnit,
	}); err != nil {
		return model.AccessRequest{}, mapDomainError(err)
	}

	user, err := s.users.Get(ctx, p.UserID)
	if err != nil {
		return model.AccessRequest{}, mapDomainError(err)
	}
	perm, ok := s.permissions.Catalog().Lookup(p.PermissionID)
	if !ok {
		return model.AccessRequest{}, fmt.Errorf("%w: неизвестное право %q", ErrValidation, p.PermissionID)
	}

	req := model.AccessRequest{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		UserName:       user.Name,
		PermissionID:   perm.ID,
		PermissionName: perm.Label,
		AccessType:     p.AccessType,
		Reason:         p.Reason,
		Status:         model.StatusPending,
		RequestedAt:    s.clock.Now(),
	}
	if req.IsTemporary() {
		req.Duration = p.Duration
		req.DurationUnit = p.DurationUnit
	}

	if err := s.requests.Create(ctx, req); err != nil {
		return model.AccessRequest{}, mapDomainError(err)
	}

	accessRequestsTotal.WithLabelValues("submitted").Inc()
	s.logger.Info("Запрос доступа создан",
		slog.String("request_id", req.ID),
		slog.String("user_id", req.UserID),
		slog.String("permission_id", req.PermissionID),
		slog.String("access_type", string(req.AccessType)),
	)

	s.events.emit(ctx, model.Notification{
		Type:      model.NotifyRequestSubmitted,
		Title:     "Новый запрос доступа",
		Message:   fmt.Sprintf("%s запрашивает право «%s»", displayName(req), req.PermissionName),
		Timestamp: req.RequestedAt,
		Audience:  model.AudienceApprovers,
		Payload:   requestPayload(req),
	})
	return req, nil
}

// Decide принимает решение по запросу в статусе pending.
// Повторное решение возвращает ErrInvalidState и ничего не меняет.
func (s *AccessRequestService) Decide(ctx context.Context, id string, decision model.RequestStatus, responder string) (model.AccessRequest, error) {
	if decision != model.StatusApproved && decision != model.StatusRejected {
		return model.AccessRequest{}, fmt.Errorf("%w: решение %q, допустимые: approved, rejected", ErrValidation, decision)
	}

	now := s.clock.Now()
	var (
		expiry *model.PendingExpiry
		undo   *overrideUndo
	)

	// Override и запись об отзыве пишутся до сохранения запроса.
	// Если запрос сохранить не удалось, обе записи откатываются:
	// запрос остаётся pending, доступ не выдан.
	updated, err := s.requests.Transition(ctx, id, func(r *model.AccessRequest) error {
		if err := request.Decide(r, decision, responder, now); err != nil {
			return err
		}
		if decision != model.StatusApproved {
			return nil
		}

		grant := model.PermissionEntry{PermissionID: r.PermissionID, Allowed: true}
		var err error
		if undo, err = s.permissions.writeOverrides(ctx, r.UserID, []model.PermissionEntry{grant}); err != nil {
			return err
		}
		if r.ValidUntil != nil {
			e := model.PendingExpiry{
				RequestID:    r.ID,
				UserID:       r.UserID,
				PermissionID: r.PermissionID,
				ValidUntil:   *r.ValidUntil,
			}
			if err := s.expiry.persist(ctx, e); err != nil {
				return err
			}
			expiry = &e
		}
		return nil
	})
	if err != nil {
		s.rollback(ctx, id, undo, expiry, err)
		return model.AccessRequest{}, mapDomainError(err)
	}

	if expiry != nil {
		s.expiry.arm(*expiry)
	}

	accessRequestsTotal.WithLabelValues(string(updated.Status)).Inc()
	s.logger.Info("Решение по запросу доступа принято",
		slog.String("request_id", updated.ID),
		slog.String("status", string(updated.Status)),
		slog.String("responded_by", responder),
	)

	n := model.Notification{
		Timestamp:       now,
		RecipientUserID: updated.UserID,
		Payload:         requestPayload(updated),
	}
	if updated.Status == model.StatusApproved {
		n.Type = model.NotifyRequestApproved
		n.Title = "Запрос доступа одобрен"
		n.Message = fmt.Sprintf("Право «%s» выдано", updated.PermissionName)
		if updated.ValidUntil != nil {
			n.Message += fmt.Sprintf(" до %s", updated.ValidUntil.UTC().Format("2006-01-02 15:04 MST"))
		}
	} else {
		n.Type = model.NotifyRequestRejected
		n.Title = "Запрос доступа отклонён"
		n.Message = fmt.Sprintf("Запрос на право «%s» отклонён", updated.PermissionName)
	}
	s.events.emit(ctx, n)

	return updated, nil
}

// Revoke досрочно отзывает одобренный доступ: override становится deny,
// запланированный отзыв отменяется.
func (s *AccessRequestService) Revoke(ctx context.Context, id, responder string) (model.AccessRequest, error) {
	now := s.clock.Now()
	var undo *overrideUndo

	updated, err := s.requests.Transition(ctx, id, func(r *model.AccessRequest) error {
		if r.Status != model.StatusApproved {
			return fmt.Errorf("%w: отозвать можно только одобренный запрос, статус %s", ErrInvalidState, r.Status)
		}
		if r.RevokedAt != nil {
			return fmt.Errorf("%w: доступ по запросу уже отозван", ErrInvalidState)
		}

		deny := model.PermissionEntry{PermissionID: r.PermissionID, Allowed: false}
		var err error
		if undo, err = s.permissions.writeOverrides(ctx, r.UserID, []model.PermissionEntry{deny}); err != nil {
			return err
		}
		revokedAt := now
		r.RevokedAt = &revokedAt
		return nil
	})
	if err != nil {
		s.rollback(ctx, id, undo, nil, err)
		return model.AccessRequest{}, mapDomainError(err)
	}

	accessRequestsTotal.WithLabelValues("revoked").Inc()
	s.logger.Info("Доступ по запросу отозван",
		slog.String("request_id", updated.ID),
		slog.String("revoked_by", responder),
	)

	s.events.emit(ctx, model.Notification{
		Type:            model.NotifyRequestRevoked,
		Title:           "Доступ отозван",
		Message:         fmt.Sprintf("Доступ к праву «%s» отозван", updated.PermissionName),
		Timestamp:       now,
		RecipientUserID: updated.UserID,
		Payload:         requestPayload(updated),
	})
	return updated, nil
}

// rollback откатывает побочные записи Decide/Revoke, когда сам запрос
// сохранить не удалось: новая запись об отзыве снимается, overrides
// и прежние запланированные отзывы возвращаются.
func (s *AccessRequestService) rollback(ctx context.Context, id string, undo *overrideUndo, persisted *model.PendingExpiry, cause error) {
	if undo == nil && persisted == nil {
		return
	}
	if persisted != nil {
		if _, err := s.expiry.Cancel(ctx, persisted.RequestID); err != nil {
			s.logger.Error("Не удалось снять запись об отзыве при откате",
				slog.String("request_id", persisted.RequestID),
				slog.String("error", err.Error()),
			)
		}
	}
	undo.rollback(ctx)

	s.logger.Warn("Изменения по запросу откачены",
		slog.String("request_id", id),
		slog.String("error", cause.Error()),
	)
}

// Get возвращает запрос по ID.
func (s *AccessRequestService) Get(_ context.Context, id string) (model.AccessRequest, error) {
	req, err := s.requests.Get(id)
	if err != nil {
		return model.AccessRequest{}, mapDomainError(err)
	}
	return req, nil
}

// ListByStatus возвращает запросы в статусе status, новые первыми.
func (s *AccessRequestService) ListByStatus(_ context.Context, status model.RequestStatus) []model.AccessRequest {
	return s.requests.List(func(r model.AccessRequest) bool { return r.Status == status })
}

// ListByUser возвращает запросы пользователя, новые первыми.
func (s *AccessRequestService) ListByUser(_ context.Context, userID string) []model.AccessRequest {
	return s.requests.List(func(r model.AccessRequest) bool { return r.UserID == userID })
}

// ListFilter — фильтр списка запросов. Пустые поля не ограничивают выборку.
type ListFilter struct {
	Status model.RequestStatus
	UserID string
}

// List возвращает запросы по фильтру, новые первыми.
func (s *AccessRequestService) List(_ context.Context, f ListFilter) []model.AccessRequest {
	return s.requests.List(func(r model.AccessRequest) bool {
		if f.Status != "" && r.Status != f.Status {
			return false
		}
		return f.UserID == "" || r.UserID == f.UserID
	})
}

func displayName(r model.AccessRequest) string {
	if r.UserName != "" {
		return r.UserName
	}
	return r.UserID
}
