package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock — детерминированные часы для тестов.
// Время стоит на месте до вызова Advance. Колбэки AfterFunc вызываются
// синхронно внутри Advance в порядке дедлайнов.
// Нельзя вызывать Advance из колбэка AfterFunc — будет deadlock.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*fakeWaiter
}

// fakeWaiter — ожидающий таймер или тикер.
type fakeWaiter struct {
	deadline time.Time
	// callback — для AfterFunc, channel — для тикера.
	callback func()
	channel  chan time.Time
	// interval > 0 только у тикера.
	interval time.Duration
	stopped  bool
	fired    bool
}

// Fake создаёт FakeClock с начальным временем initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// Now возвращает текущее фиктивное время.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc регистрирует вызов f через d.
// При d <= 0 f вызывается синхронно до возврата из AfterFunc.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stopFunc: func() bool { return false }}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	w := &fakeWaiter{deadline: c.current.Add(d), callback: f}
	c.waiters = append(c.waiters, w)

	return &Timer{stopFunc: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if w.stopped || w.fired {
			return false
		}
		w.stopped = true
		return true
	}}
}

// NewTicker создаёт тикер с периодом d.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: неположительный интервал NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	w := &fakeWaiter{deadline: c.current.Add(d), channel: ch, interval: d}
	c.waiters = append(c.waiters, w)

	return &Ticker{C: ch, stopFunc: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		w.stopped = true
	}}
}

// Set переводит часы на время t (только вперёд) и срабатывает
// таймеры, чей дедлайн наступил.
func (c *FakeClock) Set(t time.Time) {
	c.Advance(t.Sub(c.Now()))
}

// Advance сдвигает время на d и срабатывает все таймеры с наступившим
// дедлайном. Тикер за один Advance может отправить не больше одного
// тика в канал (буфер 1), остальные отбрасываются.
func (c *FakeClock) Advance(d time.Duration) {
	if d < 0 {
		d = 0
	}

	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current
	c.mu.Unlock()

	for {
		due := c.collectDue(target)
		if len(due) == 0 {
			return
		}

		sort.SliceStable(due, func(i, j int) bool {
			return due[i].deadline.Before(due[j].deadline)
		})

		for _, w := range due {
			if w.callback != nil {
				w.callback()
				continue
			}
			select {
			case w.channel <- target:
			default:
			}
		}
	}
}

// collectDue убирает из очереди сработавшие ожидания и перепланирует тикеры.
func (c *FakeClock) collectDue(target time.Time) []*fakeWaiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, remaining []*fakeWaiter
	for _, w := range c.waiters {
		if w.stopped {
			continue
		}
		if w.deadline.After(target) {
			remaining = append(remaining, w)
			continue
		}
		due = append(due, w)
		if w.interval > 0 {
			w.deadline = w.deadline.Add(w.interval)
			remaining = append(remaining, w)
		} else {
			w.fired = true
		}
	}

	c.waiters = remaining
	return due
}

// PendingCount возвращает количество активных таймеров и тикеров.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, w := range c.waiters {
		if !w.stopped {
			n++
		}
	}
	return n
}
