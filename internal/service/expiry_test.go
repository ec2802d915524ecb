package service

import (
	"context"
	"testing"
	"time"

	"github.com/bigkaa/bizpanel/access-module/internal/clock"
	"github.com/bigkaa/bizpanel/access-module/internal/domain/model"
	"github.com/bigkaa/bizpanel/access-module/internal/repository"
)

// approveTemporary создаёт и одобряет временный запрос.
func (e *env) approveTemporary(t *testing.T, userID, perm string, n int, unit model.DurationUnit) model.AccessRequest {
	t.Helper()
	req := e.submitTemporary(t, userID, perm, n, unit)
	approved, err := e.access.Decide(context.Background(), req.ID, model.StatusApproved, "u-mgr")
	if err != nil {
		t.Fatalf("Decide() ошибка: %v", err)
	}
	return approved
}

func TestExpiry_RecoverAfterRestart(t *testing.T) {
	tests := []struct {
		name        string
		restartAt   time.Duration
		wantAllowed bool
	}{
		{name: "valid_until ещё не наступил", restartAt: time.Hour, wantAllowed: true},
		{name: "valid_until прошёл во время простоя", restartAt: 3 * time.Hour, wantAllowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := repository.NewMemoryStore()
			first := newEnv(t, store, nil)
			first.approveTemporary(t, "u-sales", "reports.export", 2, model.UnitHours)
			first.expiry.Stop()

			// Процесс «перезапущен»: новые сервисы, те же данные.
			second := newEnv(t, store, clock.Fake(t0.Add(tt.restartAt)))
			if n := second.expiry.Recover(context.Background()); n != 1 {
				t.Fatalf("Recover() = %d, хотели 1", n)
			}

			ctx := context.Background()
			if got := second.permissions.Resolve(ctx, "u-sales", "reports.export"); got != tt.wantAllowed {
				t.Errorf("после Recover Resolve() = %v, хотели %v", got, tt.wantAllowed)
			}

			second.clock.Advance(2 * time.Hour)
			if second.permissions.Resolve(ctx, "u-sales", "reports.export") {
				t.Error("после valid_until доступ не отозван")
			}
			if got := second.recorder.OfType(model.NotifyAccessExpired); len(got) != 1 {
				t.Errorf("уведомлений об истечении: %d, хотели 1", len(got))
			}
		})
	}
}

func TestExpiry_DirectWriteSupersedesTimer(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	e.approveTemporary(t, "u-sales", "reports.export", 2, model.UnitHours)

	// Администратор выдаёт право постоянно до истечения временного.
	e.clock.Advance(time.Hour)
	if _, err := e.permissions.SetOverrides(ctx, "u-sales", []model.PermissionEntry{{PermissionID: "reports.export", Allowed: true}}); err != nil {
		t.Fatal(err)
	}
	if e.sched.Pending() != 0 {
		t.Error("таймер старого временного доступа не отменён")
	}

	e.clock.Advance(2 * time.Hour)
	if !e.permissions.Resolve(ctx, "u-sales", "reports.export") {
		t.Error("устаревший таймер запретил заново выданное право")
	}
}

func TestExpiry_ReapprovalSupersedes(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	first := e.approveTemporary(t, "u-sales", "reports.export", 1, model.UnitHours)
	e.clock.Advance(30 * time.Minute)
	second := e.approveTemporary(t, "u-sales", "reports.export", 1, model.UnitDays)

	if _, ok := e.expirations.Get(first.ID); ok {
		t.Error("запись об отзыве первого запроса не удалена")
	}
	if at, ok := e.sched.When(second.ID); !ok || !at.Equal(t0.Add(30*time.Minute+24*time.Hour)) {
		t.Errorf("отзыв второго запроса запланирован на %v", at)
	}

	e.clock.Advance(2 * time.Hour)
	if !e.permissions.Resolve(ctx, "u-sales", "reports.export") {
		t.Error("таймер первого запроса отозвал доступ второго")
	}
	e.clock.Advance(24 * time.Hour)
	if e.permissions.Resolve(ctx, "u-sales", "reports.export") {
		t.Error("доступ второго запроса не отозван")
	}
}

func TestExpiry_NoopWhenOverrideGone(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	e.approveTemporary(t, "u-sales", "reports.export", 2, model.UnitHours)

	// Override удалён в обход сервиса: таймер остаётся, но отзыв — no-op.
	if _, err := e.overrides.Clear(ctx, "u-sales", "reports.export"); err != nil {
		t.Fatal(err)
	}
	e.clock.Advance(2 * time.Hour)

	if _, ok := e.overrides.UserOverride("u-sales", "reports.export"); ok {
		t.Error("отзыв создал override вместо no-op")
	}
	if got := e.recorder.OfType(model.NotifyAccessExpired); len(got) != 0 {
		t.Errorf("no-op отзыв отправил %d уведомлений", len(got))
	}
	if len(e.expirations.List()) != 0 {
		t.Error("запись об отзыве не удалена")
	}
}

func TestExpiry_SchedulePastFiresImmediately(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	_ = e.permissions.WriteOverride(ctx, "u-sales", model.PermissionEntry{PermissionID: "orders.edit", Allowed: true})
	err := e.expiry.Schedule(ctx, model.PendingExpiry{
		RequestID: "r-past", UserID: "u-sales", PermissionID: "orders.edit",
		ValidUntil: t0.Add(-time.Minute),
	})
	if err != nil {
		t.Fatal(err)
	}
	if e.permissions.Resolve(ctx, "u-sales", "orders.edit") {
		t.Error("отзыв с прошедшим valid_until не выполнен сразу")
	}
}

func TestExpiry_SweepRecoversLostTimer(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	req := e.approveTemporary(t, "u-sales", "reports.export", 2, model.UnitHours)
	e.sched.Cancel(req.ID) // таймер потерян

	e.clock.Advance(3 * time.Hour)
	if !e.permissions.Resolve(ctx, "u-sales", "reports.export") {
		t.Fatal("без таймера доступ отозван")
	}

	if n := e.expiry.SweepDue(ctx); n != 1 {
		t.Errorf("SweepDue() = %d, хотели 1", n)
	}
	if e.permissions.Resolve(ctx, "u-sales", "reports.export") {
		t.Error("sweep не отозвал доступ")
	}
	if n := e.expiry.SweepDue(ctx); n != 0 {
		t.Errorf("повторный SweepDue() = %d, хотели 0", n)
	}
}

func TestExpiry_StartSweepsOnTick(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	req := e.approveTemporary(t, "u-sales", "reports.export", 1, model.UnitHours)
	e.sched.Cancel(req.ID)

	e.expiry.Start(ctx)
	defer e.expiry.Stop()

	e.clock.Advance(time.Hour) // тикер (1m) уже отправил тик в канал

	deadline := time.Now().Add(2 * time.Second)
	for e.permissions.Resolve(ctx, "u-sales", "reports.export") {
		if time.Now().After(deadline) {
			t.Fatal("фоновая проверка не отозвала доступ")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestExpiry_CancelIsIdempotent(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()

	req := e.approveTemporary(t, "u-sales", "reports.export", 1, model.UnitHours)
	if ok, err := e.expiry.Cancel(ctx, req.ID); err != nil || !ok {
		t.Fatalf("Cancel() = %v, %v", ok, err)
	}
	if ok, err := e.expiry.Cancel(ctx, req.ID); err != nil || ok {
		t.Errorf("повторный Cancel() = %v, %v", ok, err)
	}
	if len(e.expiry.Pending()) != 0 {
		t.Error("Pending() не пуст после Cancel")
	}
}
