// Пакет repository — таблицы прав и запросов доступа.
//
// Каждая таблица целиком хранится в памяти и читается без блокировок
// (atomic-снимок). Запись строит новый снимок (copy-on-write), сохраняет
// его во внешнее key-value хранилище (Store) и только после успешного
// сохранения публикует читателям. Читатель видит либо старый набор,
// либо новый, но никогда не частично применённый.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конфликт уникальности (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — запись уже существует")
)

// Ключи коллекций во внешнем хранилище.
const (
	KeyRoleDefaults       = "role_defaults"
	KeyUserOverrides      = "user_overrides"
	KeyAccessRequests     = "access_requests"
	KeyPendingExpirations = "pending_expirations"
)

// Store — внешнее key-value хранилище коллекций с семантикой
// «прочитать/записать коллекцию целиком».
type Store interface {
	// Load возвращает сохранённую коллекцию или ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)
	// Save записывает коллекцию целиком (last write wins).
	Save(ctx context.Context, key string, value []byte) error
}

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// MemoryStore — Store в памяти процесса (backend "memory" и тесты).
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore создаёт пустое хранилище в памяти.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Load возвращает копию сохранённого значения.
func (s *MemoryStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Save сохраняет копию значения.
func (s *MemoryStore) Save(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

// collection — таблица в памяти с атомарной публикацией снимков.
// Снимок, отданный читателю, не изменяется никогда: запись всегда
// строит новое значение.
type collection[T any] struct {
	key   string
	store Store

	// wmu упорядочивает писателей; читатели его не берут.
	wmu  sync.Mutex
	data atomic.Pointer[T]
}

func newCollection[T any](key string, store Store, empty T) *collection[T] {
	c := &collection[T]{key: key, store: store}
	c.data.Store(&empty)
	return c
}

// snapshot возвращает текущий снимок. Изменять его нельзя.
func (c *collection[T]) snapshot() T {
	return *c.data.Load()
}

// update вычисляет новый снимок через fn, сохраняет его и публикует.
// При ошибке fn или сохранения снимок не меняется.
func (c *collection[T]) update(ctx context.Context, fn func(cur T) (T, error)) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	next, err := fn(*c.data.Load())
	if err != nil {
		return err
	}

	if c.store != nil {
		raw, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("ошибка сериализации коллекции %s: %w", c.key, err)
		}
		if err := c.store.Save(ctx, c.key, raw); err != nil {
			return fmt.Errorf("ошибка сохранения коллекции %s: %w", c.key, err)
		}
	}

	c.data.Store(&next)
	return nil
}

// load читает коллекцию из хранилища. Отсутствие ключа — не ошибка:
// остаётся пустая коллекция.
func (c *collection[T]) load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	raw, err := c.store.Load(ctx, c.key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ошибка загрузки коллекции %s: %w", c.key, err)
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("ошибка разбора коллекции %s: %w", c.key, err)
	}

	c.wmu.Lock()
	c.data.Store(&v)
	c.wmu.Unlock()
	return nil
}
