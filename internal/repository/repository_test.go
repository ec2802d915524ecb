package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/bizpanel/access-module/internal/config"
	"github.com/bigkaa/bizpanel/access-module/internal/database"
	"github.com/bigkaa/bizpanel/access-module/internal/domain/model"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("access_test"),
		postgres.WithUsername("access"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Настраиваем env для config.Load()
	t.Setenv("AC_STORAGE_BACKEND", "postgres")
	t.Setenv("AC_DB_HOST", host)
	t.Setenv("AC_DB_PORT", port.Port())
	t.Setenv("AC_DB_NAME", "access_test")
	t.Setenv("AC_DB_USER", "access")
	t.Setenv("AC_DB_PASSWORD", "test-password")
	t.Setenv("AC_DB_SSL_MODE", "disable")
	t.Setenv("AC_JWT_JWKS_URL", "http://localhost:8080/certs")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// setupTestRedis запускает Redis контейнер.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "docker.io/redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Не удалось запустить Redis контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// exerciseStore проверяет round-trip таблиц через внешнее хранилище:
// запись одним набором репозиториев, чтение — новым (как после рестарта).
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load(missing) = %v, хотели ErrNotFound", err)
	}

	defaults := NewRoleDefaultRepository(store)
	overrides := NewUserOverrideRepository(store)
	requests := NewAccessRequestRepository(store)
	expirations := NewExpiryRepository(store)

	if err := defaults.Replace(ctx, "sales", model.PermissionSet{"orders.create": true, "orders.cancel": false}); err != nil {
		t.Fatalf("Replace() ошибка: %v", err)
	}
	if err := overrides.Merge(ctx, "u1", []model.PermissionEntry{{PermissionID: "reports.export", Allowed: true}}); err != nil {
		t.Fatalf("Merge() ошибка: %v", err)
	}
	requestedAt := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	req := model.AccessRequest{
		ID: "r1", UserID: "u1", PermissionID: "reports.export",
		AccessType: model.AccessTemporary, Duration: 2, DurationUnit: model.UnitHours,
		Status: model.StatusPending, RequestedAt: requestedAt,
	}
	if err := requests.Create(ctx, req); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	validUntil := requestedAt.Add(2 * time.Hour)
	if err := expirations.Put(ctx, model.PendingExpiry{
		RequestID: "r1", UserID: "u1", PermissionID: "reports.export", ValidUntil: validUntil,
	}); err != nil {
		t.Fatalf("Put() ошибка: %v", err)
	}

	// «Рестарт»: новые репозитории поверх того же хранилища.
	defaults2 := NewRoleDefaultRepository(store)
	overrides2 := NewUserOverrideRepository(store)
	requests2 := NewAccessRequestRepository(store)
	expirations2 := NewExpiryRepository(store)
	for _, l := range []interface{ Load(context.Context) error }{defaults2, overrides2, requests2, expirations2} {
		if err := l.Load(ctx); err != nil {
			t.Fatalf("Load() ошибка: %v", err)
		}
	}

	if allowed, ok := defaults2.RoleDefault("sales", "orders.create"); !ok || !allowed {
		t.Error("default sales/orders.create не восстановлен")
	}
	if allowed, ok := overrides2.UserOverride("u1", "reports.export"); !ok || !allowed {
		t.Error("override u1/reports.export не восстановлен")
	}
	got, err := requests2.Get("r1")
	if err != nil {
		t.Fatalf("Get(r1) ошибка: %v", err)
	}
	if got.Status != model.StatusPending || !got.RequestedAt.Equal(requestedAt) {
		t.Errorf("запрос восстановлен неверно: %+v", got)
	}
	e, ok := expirations2.Get("r1")
	if !ok || !e.ValidUntil.Equal(validUntil) {
		t.Errorf("отзыв восстановлен неверно: %+v", e)
	}
}

func TestPostgresStore(t *testing.T) {
	pool := setupTestDB(t)
	exerciseStore(t, NewPostgresStore(pool))
}

func TestRedisStore(t *testing.T) {
	client := setupTestRedis(t)
	exerciseStore(t, NewRedisStore(client, "access-test:"))

	status, _ := NewRedisReadinessChecker(client).CheckReady()
	if status != "ok" {
		t.Errorf("CheckReady() = %q, хотели ok", status)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}
