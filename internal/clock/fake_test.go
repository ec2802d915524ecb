package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func TestFakeAfterFunc_FiresOnAdvance(t *testing.T) {
	c := Fake(epoch)
	fired := 0
	c.AfterFunc(time.Hour, func() { fired++ })

	c.Advance(59 * time.Minute)
	if fired != 0 {
		t.Fatalf("колбэк вызван раньше дедлайна")
	}

	c.Advance(time.Minute)
	if fired != 1 {
		t.Fatalf("fired = %d, ожидается 1", fired)
	}

	c.Advance(time.Hour)
	if fired != 1 {
		t.Errorf("колбэк вызван повторно: fired = %d", fired)
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, ожидается 0", c.PendingCount())
	}
}

func TestFakeAfterFunc_NonPositiveDelayFiresImmediately(t *testing.T) {
	c := Fake(epoch)
	fired := false
	timer := c.AfterFunc(-time.Minute, func() { fired = true })

	if !fired {
		t.Fatal("колбэк с прошедшим дедлайном должен вызываться сразу")
	}
	if timer.Stop() {
		t.Error("Stop() после срабатывания должен вернуть false")
	}
}

func TestFakeAfterFunc_Stop(t *testing.T) {
	c := Fake(epoch)
	fired := false
	timer := c.AfterFunc(time.Minute, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("Stop() активного таймера должен вернуть true")
	}
	c.Advance(time.Hour)
	if fired {
		t.Error("остановленный таймер сработал")
	}
	if timer.Stop() {
		t.Error("повторный Stop() должен вернуть false")
	}
}

func TestFakeAfterFunc_DeadlineOrder(t *testing.T) {
	c := Fake(epoch)
	var order []string
	c.AfterFunc(2*time.Hour, func() { order = append(order, "second") })
	c.AfterFunc(time.Hour, func() { order = append(order, "first") })

	c.Advance(3 * time.Hour)

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("порядок срабатывания = %v", order)
	}
}

func TestFakeTicker(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(time.Minute)
	defer ticker.Stop()

	c.Advance(time.Minute)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ожидался тик после Advance(1m)")
	}

	select {
	case <-ticker.C:
		t.Fatal("лишний тик без Advance")
	default:
	}

	ticker.Stop()
	c.Advance(time.Hour)
	select {
	case <-ticker.C:
		t.Error("остановленный тикер отправил тик")
	default:
	}
}

func TestFakeSet(t *testing.T) {
	c := Fake(epoch)
	fired := false
	c.AfterFunc(48*time.Hour, func() { fired = true })

	c.Set(epoch.Add(48 * time.Hour))

	if !fired {
		t.Error("Set() до дедлайна должен запустить таймер")
	}
	if !c.Now().Equal(epoch.Add(48 * time.Hour)) {
		t.Errorf("Now() = %v", c.Now())
	}
}
