// Точка входа access-module — разрешение прав пользователей и жизненный
// цикл запросов доступа с автоматическим отзывом временных прав.
// Загружает конфигурацию, поднимает выбранное хранилище (memory, PostgreSQL
// или Redis), восстанавливает таблицы и отложенные отзывы, применяет seed,
// запускает фоновую проверку истечений, topologymetrics и HTTP-сервер
// с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/bigkaa/bizpanel/access-module/internal/api/handlers"
	"github.com/bigkaa/bizpanel/access-module/internal/api/middleware"
	"github.com/bigkaa/bizpanel/access-module/internal/clock"
	"github.com/bigkaa/bizpanel/access-module/internal/config"
	"github.com/bigkaa/bizpanel/access-module/internal/database"
	"github.com/bigkaa/bizpanel/access-module/internal/domain/catalog"
	"github.com/bigkaa/bizpanel/access-module/internal/notify"
	"github.com/bigkaa/bizpanel/access-module/internal/repository"
	"github.com/bigkaa/bizpanel/access-module/internal/scheduler"
	"github.com/bigkaa/bizpanel/access-module/internal/server"
	"github.com/bigkaa/bizpanel/access-module/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("access-module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("storage_backend", cfg.StorageBackend),
	)

	ctx := context.Background()

	// 3. Redis-клиент: нужен backend redis и/или каналу уведомлений
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
	}

	// 4. Хранилище таблиц
	var (
		store          repository.Store
		storageChecker handlers.ReadinessChecker
		pgDB           *sql.DB
	)
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
			os.Exit(1)
		}
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()

		// Адаптер pgxpool → *sql.DB для topologymetrics: проверка идёт
		// через тот же пул и замечает его исчерпание.
		pgDB = stdlib.OpenDBFromPool(pool)
		defer pgDB.Close()

		store = repository.NewPostgresStore(pool)
		storageChecker = database.NewReadinessChecker(pool)
	case config.BackendRedis:
		store = repository.NewRedisStore(redisClient, cfg.RedisKeyPrefix)
		storageChecker = repository.NewRedisReadinessChecker(redisClient)
		logger.Info("Хранилище Redis", slog.String("addr", cfg.RedisAddr))
	default:
		store = repository.NewMemoryStore()
		logger.Warn("Хранилище в памяти: таблицы и отложенные отзывы не переживут рестарт")
	}

	// 5. Repositories: загрузка таблиц из хранилища
	users := repository.NewUserRepository()
	defaults := repository.NewRoleDefaultRepository(store)
	overrides := repository.NewUserOverrideRepository(store)
	requests := repository.NewAccessRequestRepository(store)
	expirations := repository.NewExpiryRepository(store)

	for name, l := range map[string]interface{ Load(context.Context) error }{
		repository.KeyRoleDefaults:       defaults,
		repository.KeyUserOverrides:      overrides,
		repository.KeyAccessRequests:     requests,
		repository.KeyPendingExpirations: expirations,
	} {
		if err := l.Load(ctx); err != nil {
			logger.Error("Ошибка загрузки таблицы", slog.String("table", name), slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// 6. Уведомления: журнал + RabbitMQ + Redis Pub/Sub
	notifiers := notify.Multi{notify.NewLogNotifier(logger)}
	rabbit, err := notify.NewRabbitMQPublisher(cfg.NotifyRabbitMQURI, cfg.NotifyRabbitMQExchange, logger)
	if err != nil {
		logger.Error("Ошибка подключения к RabbitMQ", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rabbit.Close()
	if rabbit.Enabled() {
		notifiers = append(notifiers, rabbit)
	}
	if cfg.NotifyRedisChannel != "" {
		notifiers = append(notifiers, notify.NewRedisPublisher(redisClient, cfg.NotifyRedisChannel))
		logger.Info("Публикация уведомлений в Redis включена", slog.String("channel", cfg.NotifyRedisChannel))
	}

	// 7. Services
	clk := clock.Real()
	permissionsSvc := service.NewPermissionService(
		catalog.Default(), users, defaults, overrides,
		service.NewPermissionCache(cfg.CacheSize, cfg.CacheTTL),
		logger,
	)
	expirySvc := service.NewExpiryService(
		expirations, permissionsSvc, scheduler.New(clk), clk, notifiers,
		cfg.ExpirySweepInterval,
		logger,
	)
	accessSvc := service.NewAccessRequestService(
		requests, users, permissionsSvc, expirySvc, clk, notifiers,
		logger,
	)

	// 8. Seed: справочник пользователей и начальные defaults ролей
	if cfg.SeedFile != "" {
		seed, err := service.LoadSeed(cfg.SeedFile)
		if err != nil {
			logger.Error("Ошибка загрузки seed", slog.String("path", cfg.SeedFile), slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := service.ApplySeed(ctx, seed, users, defaults, permissionsSvc, logger); err != nil {
			logger.Error("Ошибка применения seed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	} else {
		logger.Warn("AC_SEED_FILE не задан, справочник пользователей пуст")
	}

	// 9. Восстановление отложенных отзывов и фоновая проверка истечений.
	// Просроченные за время простоя отзываются сразу.
	expirySvc.Recover(ctx)
	expirySvc.Start(ctx)

	// 10. topologymetrics — мониторинг зависимостей (PostgreSQL + JWKS)
	var dephealthSvc *service.DephealthService
	pgConnURL := ""
	if pgDB != nil {
		pgConnURL = cfg.DatabaseURL("postgres")
	}
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"access-module",
		cfg.DephealthGroup,
		pgDB,
		pgConnURL,
		cfg.JWTJWKSURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.Any("dependencies", dephealthSvc.Dependencies()),
		)
	}

	// 11. Readiness checkers и API handler
	jwksChecker, err := middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, cfg.CACertPath, cfg.JWKSClientTimeout)
	if err != nil {
		logger.Error("Ошибка создания JWKS readiness checker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	var brokerChecker handlers.ReadinessChecker
	if rabbit.Enabled() {
		brokerChecker = rabbit
	}
	apiHandler := handlers.NewAPIHandler(
		handlers.NewHealthHandler(storageChecker, jwksChecker, brokerChecker),
		permissionsSvc,
		accessSvc,
		logger,
	)

	// 12. JWT middleware: sub токена ищется в справочнике пользователей
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.CACertPath,
		cfg.JWTIssuer,
		users,
		cfg.JWKSClientTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 13. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, jwtAuth, permissionsSvc)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 14. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	expirySvc.Stop()

	logger.Info("access-module остановлен")
}
