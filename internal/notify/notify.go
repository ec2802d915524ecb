// Пакет notify — доставка уведомлений о запросах доступа во внешний
// сервис уведомлений. Notifier — приёмник событий (sink); ошибки доставки
// возвращаются вызывающему, но сервисный слой только логирует их:
// сбой уведомления не отменяет операцию, которая его породила.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/bigkaa/bizpanel/access-module/internal/domain/model"
)

// Notifier — приёмник уведомлений.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// LogNotifier пишет уведомления в лог.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier создаёт приёмник, пишущий уведомления в лог.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With(slog.String("component", "notify_log"))}
}

func (l *LogNotifier) Notify(_ context.Context, n model.Notification) error {
	l.logger.Info("Уведомление",
		slog.String("id", n.ID),
		slog.String("type", string(n.Type)),
		slog.String("recipient", target(n)),
		slog.String("title", n.Title),
	)
	return nil
}

// Multi рассылает уведомление во все приёмники. Сбой одного приёмника
// не мешает остальным; ошибки объединяются.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n model.Notification) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder запоминает уведомления в памяти (тесты, отладка).
type Recorder struct {
	mu     sync.Mutex
	events []model.Notification
	err    error
}

// NewRecorder создаёт пустой Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Notify(_ context.Context, n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, n)
	return nil
}

// FailWith заставляет Recorder отклонять уведомления с ошибкой err
// (nil — снова принимать).
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Events возвращает копию принятых уведомлений.
func (r *Recorder) Events() []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Notification, len(r.events))
	copy(out, r.events)
	return out
}

// OfType возвращает уведомления заданного типа.
func (r *Recorder) OfType(t model.NotificationType) []model.Notification {
	var out []model.Notification
	for _, n := range r.Events() {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// Reset очищает принятые уведомления.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// target — адресат уведомления для логов и маршрутизации.
func target(n model.Notification) string {
	if n.RecipientUserID != "" {
		return "user." + n.RecipientUserID
	}
	if n.Audience != "" {
		return n.Audience
	}
	return "broadcast"
}
