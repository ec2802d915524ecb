// Пакет clock — абстракция времени для планировщика отзыва доступа.
// В production используется Real(), в тестах — Fake() с ручным
// продвижением времени (Advance).
package clock

import "time"

// Clock — источник времени и таймеров.
type Clock interface {
	// Now возвращает текущее время.
	Now() time.Time
	// AfterFunc вызывает f через d. При d <= 0 f вызывается сразу
	// (Real — в отдельной горутине, Fake — синхронно).
	AfterFunc(d time.Duration, f func()) *Timer
	// NewTicker создаёт тикер с периодом d. Паникует при d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Timer — отложенный вызов, созданный AfterFunc.
type Timer struct {
	stopFunc func() bool
}

// Stop отменяет вызов. Возвращает false, если вызов уже выполнен или отменён.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Ticker — периодический таймер. Тики читаются из C (буфер 1,
// лишние тики отбрасываются, как у time.Ticker).
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop останавливает тикер. Канал C не закрывается.
func (t *Ticker) Stop() { t.stopFunc() }
