package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/bizpanel/access-module/internal/domain/model"
	"github.com/bigkaa/bizpanel/access-module/internal/notify"
)

// notifyTimeout — ограничение на доставку одного уведомления.
const notifyTimeout = 5 * time.Second

// emitter отправляет уведомления в Notifier. Ошибки доставки только
// логируются и не влияют на операцию, породившую событие.
type emitter struct {
	notifier notify.Notifier
	logger   *slog.Logger
}

func (e emitter) emit(ctx context.Context, n model.Notification) {
	if e.notifier == nil {
		return
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := e.notifier.Notify(ctx, n); err != nil {
		e.logger.Warn("Не удалось доставить уведомление",
			slog.String("notification_id", n.ID),
			slog.String("type", string(n.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// requestPayload — общие поля payload уведомлений о запросе.
func requestPayload(r model.AccessRequest) map[string]any {
	p := map[string]any{
		"request_id":    r.ID,
		"user_id":       r.UserID,
		"permission_id": r.PermissionID,
		"access_type":   string(r.AccessType),
		"status":        string(r.Status),
	}
	if r.IsTemporary() {
		p["duration"] = r.Duration
		p["duration_unit"] = string(r.DurationUnit)
	}
	if r.ValidUntil != nil {
		p["valid_until"] = r.ValidUntil.UTC().Format(time.RFC3339)
	}
	return p
}
