// expiry.go — отзыв временного доступа по истечении valid_until.
//
// Каждый одобренный временный запрос порождает персистентную запись
// PendingExpiry и задачу в планировщике с ключом ID запроса. При
// срабатывании запись забирается (Take) — это право на выполнение отзыва,
// поэтому отзыв выполняется не более одного раза, кто бы ни сработал
// первым: таймер или периодическая проверка (sweep).
//
// При старте Recover перепланирует все сохранённые записи; записи
// с прошедшим valid_until срабатывают сразу.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/bizpanel/access-module/internal/clock"
	"github.com/bigkaa/bizpanel/access-module/internal/domain/model"
	"github.com/bigkaa/bizpanel/access-module/internal/notify"
	"github.com/bigkaa/bizpanel/access-module/internal/repository"
	"github.com/bigkaa/bizpanel/access-module/internal/scheduler"
)

// expireTimeout — ограничение на выполнение одного отзыва.
const expireTimeout = 10 * time.Second

// ExpiryService — планирование и выполнение отзывов временного доступа.
type ExpiryService struct {
	repo        repository.ExpiryRepository
	permissions *PermissionService
	sched       *scheduler.Scheduler
	clock       clock.Clock
	interval    time.Duration
	events      emitter
	logger      *slog.Logger

	// mu упорядочивает выполнение отзыва и отмену отзывов того же права:
	// после возврата Supersede устаревший отзыв уже не запишет deny.
	mu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// NewExpiryService создаёт сервис отзывов и подключает его к сервису прав.
// interval — период проверки просроченных записей (sweep).
func NewExpiryService(
	repo repository.ExpiryRepository,
	permissions *PermissionService,
	sched *scheduler.Scheduler,
	clk clock.Clock,
	notifier notify.Notifier,
	interval time.Duration,
	logger *slog.Logger,
) *ExpiryService {
	l := logger.With(slog.String("component", "expiry_service"))
	s := &ExpiryService{
		repo:        repo,
		permissions: permissions,
		sched:       sched,
		clock:       clk,
		interval:    interval,
		events:      emitter{notifier: notifier, logger: l},
		logger:      l,
	}
	permissions.SetExpiryService(s)
	return s
}

// persist сохраняет запись об отзыве без постановки таймера.
func (s *ExpiryService) persist(ctx context.Context, e model.PendingExpiry) error {
	if err := s.repo.Put(ctx, e); err != nil {
		return fmt.Errorf("ошибка сохранения отзыва %s: %w", e.RequestID, err)
	}
	s.updateGauge()
	return nil
}

// arm ставит таймер для сохранённой записи.
func (s *ExpiryService) arm(e model.PendingExpiry) {
	requestID := e.RequestID
	s.sched.Schedule(requestID, e.ValidUntil, func() {
		s.expire(requestID)
	})
	s.logger.Debug("Отзыв запланирован",
		slog.String("request_id", requestID),
		slog.Time("valid_until", e.ValidUntil),
	)
}

// Schedule сохраняет запись и планирует отзыв на e.ValidUntil.
// Если момент уже прошёл, отзыв выполняется сразу.
func (s *ExpiryService) Schedule(ctx context.Context, e model.PendingExpiry) error {
	if err := s.persist(ctx, e); err != nil {
		return err
	}
	s.arm(e)
	return nil
}

// Cancel отменяет отзыв по запросу. false — отзыва не было.
func (s *ExpiryService) Cancel(ctx context.Context, requestID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(ctx, requestID)
}

func (s *ExpiryService) cancelLocked(ctx context.Context, requestID string) (bool, error) {
	s.sched.Cancel(requestID)
	_, ok, err := s.repo.Take(ctx, requestID)
	if err != nil {
		return false, fmt.Errorf("ошибка отмены отзыва %s: %w", requestID, err)
	}
	if ok {
		revocationsTotal.WithLabelValues("cancelled").Inc()
		s.updateGauge()
	}
	return ok, nil
}

// Supersede отменяет все отзывы пользователя по перечисленным правам
// и возвращает снятые записи. Вызывается перед любой прямой записью
// override, чтобы старый таймер не запретил заново выданное право.
// Если запись override не состоялась, снятые записи возвращают через Restore.
func (s *ExpiryService) Supersede(ctx context.Context, userID string, permissionIDs ...string) ([]model.PendingExpiry, error) {
	taken, failed, err := s.supersede(ctx, userID, permissionIDs)
	if err != nil {
		// Запись, которую не удалось снять, осталась в хранилище:
		// достаточно вернуть её таймер.
		if failed != nil {
			s.arm(*failed)
		}
		s.Restore(ctx, taken)
		return nil, err
	}
	return taken, nil
}

func (s *ExpiryService) supersede(ctx context.Context, userID string, permissionIDs []string) ([]model.PendingExpiry, *model.PendingExpiry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var taken []model.PendingExpiry
	for _, permissionID := range permissionIDs {
		for _, e := range s.repo.ForPermission(userID, permissionID) {
			ok, err := s.cancelLocked(ctx, e.RequestID)
			if err != nil {
				return taken, &e, err
			}
			if ok {
				taken = append(taken, e)
				s.logger.Info("Запланированный отзыв отменён новой записью override",
					slog.String("request_id", e.RequestID),
					slog.String("user_id", userID),
					slog.String("permission_id", permissionID),
				)
			}
		}
	}
	return taken, nil, nil
}

// Restore сохраняет и заново планирует записи, снятые Supersede.
// Момент, прошедший за это время, срабатывает сразу.
func (s *ExpiryService) Restore(ctx context.Context, records []model.PendingExpiry) {
	for _, e := range records {
		if err := s.persist(ctx, e); err != nil {
			revocationsTotal.WithLabelValues("failed").Inc()
			s.logger.Error("Не удалось восстановить запланированный отзыв",
				slog.String("request_id", e.RequestID),
				slog.String("user_id", e.UserID),
				slog.String("permission_id", e.PermissionID),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.arm(e)
		s.logger.Info("Запланированный отзыв восстановлен",
			slog.String("request_id", e.RequestID),
		)
	}
}

// Recover перепланирует все сохранённые отзывы. Вызывается при старте
// после загрузки таблиц.
func (s *ExpiryService) Recover(_ context.Context) int {
	pending := s.repo.List()
	now := s.clock.Now()
	overdue := 0
	for _, e := range pending {
		if !e.ValidUntil.After(now) {
			overdue++
		}
		s.arm(e)
	}
	s.updateGauge()

	s.logger.Info("Запланированные отзывы восстановлены",
		slog.Int("count", len(pending)),
		slog.Int("overdue", overdue),
	)
	return len(pending)
}

// SweepDue выполняет все отзывы с наступившим valid_until, таймер которых
// потерян или не сработал. Возвращает число выполненных отзывов.
func (s *ExpiryService) SweepDue(_ context.Context) int {
	expired := 0
	for _, e := range s.repo.Due(s.clock.Now()) {
		s.sched.Cancel(e.RequestID)
		if s.expire(e.RequestID) {
			expired++
		}
	}
	return expired
}

// Pending возвращает сохранённые отзывы в порядке valid_until.
func (s *ExpiryService) Pending() []model.PendingExpiry {
	return s.repo.List()
}

// expire выполняет отзыв: override становится deny, если он ещё allow.
// Возвращает true, если право было отозвано.
func (s *ExpiryService) expire(requestID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), expireTimeout)
	defer cancel()

	e, revoked, err := s.revoke(ctx, requestID)
	if err != nil {
		revocationsTotal.WithLabelValues("failed").Inc()
		s.logger.Error("Ошибка отзыва временного доступа",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return false
	}
	s.updateGauge()
	if !revoked {
		return false
	}

	revocationsTotal.WithLabelValues("expired").Inc()
	s.logger.Info("Временный доступ истёк",
		slog.String("request_id", requestID),
		slog.String("user_id", e.UserID),
		slog.String("permission_id", e.PermissionID),
	)

	s.events.emit(ctx, model.Notification{
		Type:            model.NotifyAccessExpired,
		Title:           "Временный доступ истёк",
		Message:         fmt.Sprintf("Срок доступа к праву %s истёк", e.PermissionID),
		Timestamp:       s.clock.Now(),
		RecipientUserID: e.UserID,
		Payload: map[string]any{
			"request_id":    e.RequestID,
			"permission_id": e.PermissionID,
			"valid_until":   e.ValidUntil.UTC().Format(time.RFC3339),
		},
	})
	return true
}

func (s *ExpiryService) revoke(ctx context.Context, requestID string) (model.PendingExpiry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok, err := s.repo.Take(ctx, requestID)
	if err != nil {
		return e, false, err
	}
	if !ok {
		// Отзыв уже выполнен или отменён.
		return e, false, nil
	}

	// Override удалён или уже запрещает — желаемое состояние достигнуто.
	if allowed, exists := s.permissions.overrideOf(e.UserID, e.PermissionID); !exists || !allowed {
		revocationsTotal.WithLabelValues("noop").Inc()
		s.logger.Debug("Отзыв не требуется: override отсутствует или уже запрещает",
			slog.String("request_id", requestID),
		)
		return e, false, nil
	}

	deny := model.PermissionEntry{PermissionID: e.PermissionID, Allowed: false}
	if err := s.permissions.WriteOverride(ctx, e.UserID, deny); err != nil {
		// Возвращаем запись: повторит периодическая проверка.
		if putErr := s.repo.Put(ctx, e); putErr != nil {
			s.logger.Error("Не удалось вернуть запись об отзыве",
				slog.String("request_id", requestID),
				slog.String("error", putErr.Error()),
			)
		}
		return e, false, err
	}
	return e, true, nil
}

func (s *ExpiryService) updateGauge() {
	pendingExpirations.Set(float64(len(s.repo.List())))
}

// Start запускает периодическую проверку просроченных отзывов.
// Вызывается один раз при старте приложения, после Recover.
func (s *ExpiryService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	ticker := s.clock.NewTicker(s.interval)

	go func() {
		defer close(s.done)

		s.logger.Info("Периодическая проверка отзывов запущена",
			slog.String("interval", s.interval.String()),
		)

		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Периодическая проверка отзывов остановлена")
				return
			case <-ticker.C:
				if n := s.SweepDue(ctx); n > 0 {
					s.logger.Info("Просроченные отзывы выполнены", slog.Int("count", n))
				}
			}
		}
	}()
}

// Stop останавливает проверку и таймеры. Сохранённые записи остаются
// и будут перепланированы при следующем старте.
func (s *ExpiryService) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.sched.Stop()
}
