// Пакет scheduler — отложенные задачи «выполнить в момент T» поверх clock.Clock.
// Задача адресуется ключом: повторное планирование по тому же ключу
// заменяет прежнюю задачу, Cancel отменяет её. Каждая задача
// выполняется не более одного раза.
package scheduler

import (
	"sync"
	"time"

	"github.com/bigkaa/bizpanel/access-module/internal/clock"
)

// task — запланированная задача.
type task struct {
	at    time.Time
	timer *clock.Timer
}

// Scheduler — планировщик задач по ключам.
// Безопасен для конкурентного использования. fn вызывается без удержания
// внутренних блокировок, поэтому из fn можно вызывать Schedule и Cancel.
type Scheduler struct {
	clock clock.Clock

	mu      sync.Mutex
	tasks   map[string]*task
	stopped bool
}

// New создаёт планировщик на часах c.
func New(c clock.Clock) *Scheduler {
	return &Scheduler{
		clock: c,
		tasks: make(map[string]*task),
	}
}

// Schedule планирует fn на момент at. Если at уже в прошлом,
// fn выполняется немедленно. Прежняя задача с тем же ключом отменяется.
// После Stop вызов игнорируется.
func (s *Scheduler) Schedule(key string, at time.Time, fn func()) {
	t := &task{at: at}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	old := s.tasks[key]
	s.tasks[key] = t
	s.mu.Unlock()

	if old != nil && old.timer != nil {
		old.timer.Stop()
	}

	// AfterFunc может вызвать колбэк синхронно (d <= 0 у FakeClock),
	// поэтому блокировка здесь не удерживается.
	timer := s.clock.AfterFunc(at.Sub(s.clock.Now()), func() {
		if s.take(key, t) {
			fn()
		}
	})

	s.mu.Lock()
	t.timer = timer
	s.mu.Unlock()
}

// take снимает задачу t с учёта. Возвращает false, если задача
// уже отменена, заменена или выполнена.
func (s *Scheduler) take(key string, t *task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks[key] != t {
		return false
	}
	delete(s.tasks, key)
	return true
}

// Cancel отменяет задачу по ключу. Возвращает true, если задача была.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	t, ok := s.tasks[key]
	if ok {
		delete(s.tasks, key)
	}
	s.mu.Unlock()

	if ok && t.timer != nil {
		t.timer.Stop()
	}
	return ok
}

// Has сообщает, запланирована ли задача с ключом key.
func (s *Scheduler) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[key]
	return ok
}

// When возвращает момент выполнения задачи.
func (s *Scheduler) When(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[key]
	if !ok {
		return time.Time{}, false
	}
	return t.at, true
}

// Pending возвращает количество запланированных задач.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stop отменяет все задачи и запрещает планирование новых.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = make(map[string]*task)
	s.stopped = true
	s.mu.Unlock()

	for _, t := range tasks {
		if t.timer != nil {
			t.timer.Stop()
		}
	}
}
