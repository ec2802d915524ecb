// Пакет config — загрузка и валидация конфигурации Access Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Backend хранения таблиц прав и запросов.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config содержит все параметры конфигурации Access Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- Хранилище ---

	// Backend хранения таблиц: memory, postgres, redis
	StorageBackend string

	// --- PostgreSQL (только для backend postgres) ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Redis (backend redis и/или уведомления через pub/sub) ---

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// Префикс ключей коллекций в Redis
	RedisKeyPrefix string

	// --- Уведомления ---

	// AMQP URI RabbitMQ; пусто — публикация в RabbitMQ отключена
	NotifyRabbitMQURI string
	// Topic exchange для уведомлений
	NotifyRabbitMQExchange string
	// Префикс канала Redis pub/sub; пусто — публикация в Redis отключена
	NotifyRedisChannel string

	// --- JWT ---

	// URL JWKS endpoint identity-провайдера
	JWTJWKSURL string
	// Ожидаемый issuer JWT (пусто — не проверяется)
	JWTIssuer string
	// Допустимое отклонение часов при проверке exp/nbf
	JWTLeeway time.Duration
	// Интервал фонового обновления JWKS
	JWKSRefreshInterval time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Путь к CA-сертификату для TLS к JWKS (опционально)
	CACertPath string

	// --- Данные и кэш ---

	// YAML-файл с пользователями и defaults ролей (опционально)
	SeedFile string
	// Размер LRU-кэша эффективных прав
	CacheSize int
	// TTL записи кэша эффективных прав
	CacheTTL time.Duration
	// Интервал страхующей проверки просроченных временных доступов
	ExpirySweepInterval time.Duration

	// --- Мониторинг зависимостей ---

	// Группа в метриках topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// AC_PORT — порт HTTP-сервера (по умолчанию 8010)
	cfg.Port, err = getEnvInt("AC_PORT", 8010)
	if err != nil {
		return nil, fmt.Errorf("AC_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("AC_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// AC_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("AC_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("AC_LOG_LEVEL: %w", err)
	}

	// AC_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("AC_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("AC_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- Хранилище ---

	// AC_STORAGE_BACKEND — memory, postgres, redis (по умолчанию memory)
	cfg.StorageBackend = getEnvDefault("AC_STORAGE_BACKEND", BackendMemory)
	switch cfg.StorageBackend {
	case BackendMemory, BackendPostgres, BackendRedis:
	default:
		return nil, fmt.Errorf("AC_STORAGE_BACKEND: недопустимое значение %q, допустимые: memory, postgres, redis", cfg.StorageBackend)
	}

	if cfg.StorageBackend == BackendPostgres {
		if err := loadPostgres(cfg); err != nil {
			return nil, err
		}
	}

	// --- Redis ---

	cfg.RedisAddr = getEnvDefault("AC_REDIS_ADDR", "")
	cfg.RedisPassword = getEnvDefault("AC_REDIS_PASSWORD", "")
	cfg.RedisDB, err = getEnvInt("AC_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("AC_REDIS_DB: %w", err)
	}
	if cfg.RedisDB < 0 {
		return nil, fmt.Errorf("AC_REDIS_DB: отрицательный номер базы %d", cfg.RedisDB)
	}
	cfg.RedisKeyPrefix = getEnvDefault("AC_REDIS_KEY_PREFIX", "access-module:")

	// --- Уведомления ---

	cfg.NotifyRabbitMQURI = getEnvDefault("AC_NOTIFY_RABBITMQ_URI", "")
	cfg.NotifyRabbitMQExchange = getEnvDefault("AC_NOTIFY_RABBITMQ_EXCHANGE", "access.notifications")
	cfg.NotifyRedisChannel = getEnvDefault("AC_NOTIFY_REDIS_CHANNEL", "")

	if cfg.RedisAddr == "" && (cfg.StorageBackend == BackendRedis || cfg.NotifyRedisChannel != "") {
		return nil, fmt.Errorf("AC_REDIS_ADDR: обязателен для backend redis и AC_NOTIFY_REDIS_CHANNEL")
	}

	// --- JWT ---

	// AC_JWT_JWKS_URL — обязательный
	cfg.JWTJWKSURL, err = getEnvRequired("AC_JWT_JWKS_URL")
	if err != nil {
		return nil, err
	}
	if u, parseErr := url.Parse(cfg.JWTJWKSURL); parseErr != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("AC_JWT_JWKS_URL: некорректный URL %q", cfg.JWTJWKSURL)
	}

	cfg.JWTIssuer = getEnvDefault("AC_JWT_ISSUER", "")

	// AC_JWT_LEEWAY — отклонение часов (по умолчанию 5s)
	cfg.JWTLeeway, err = getEnvDuration("AC_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AC_JWT_LEEWAY: %w", err)
	}

	// AC_JWKS_REFRESH_INTERVAL — обновление JWKS (по умолчанию 15m)
	cfg.JWKSRefreshInterval, err = getEnvDuration("AC_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("AC_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// AC_JWKS_CLIENT_TIMEOUT — таймаут HTTP-клиента JWKS (по умолчанию 10s)
	cfg.JWKSClientTimeout, err = getEnvDuration("AC_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AC_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	cfg.CACertPath = getEnvDefault("AC_CA_CERT_PATH", "")

	// --- Данные и кэш ---

	cfg.SeedFile = getEnvDefault("AC_SEED_FILE", "")

	// AC_CACHE_SIZE — размер кэша эффективных прав (по умолчанию 1000)
	cfg.CacheSize, err = getEnvInt("AC_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("AC_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize < 1 || cfg.CacheSize > 1_000_000 {
		return nil, fmt.Errorf("AC_CACHE_SIZE: значение %d вне допустимого диапазона 1-1000000", cfg.CacheSize)
	}

	// AC_CACHE_TTL — TTL кэша (по умолчанию 1m)
	cfg.CacheTTL, err = getEnvDuration("AC_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("AC_CACHE_TTL: %w", err)
	}

	// AC_EXPIRY_SWEEP_INTERVAL — страхующая проверка отзывов (по умолчанию 1m)
	cfg.ExpirySweepInterval, err = getEnvDuration("AC_EXPIRY_SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("AC_EXPIRY_SWEEP_INTERVAL: %w", err)
	}
	if cfg.ExpirySweepInterval <= 0 {
		return nil, fmt.Errorf("AC_EXPIRY_SWEEP_INTERVAL: интервал должен быть больше 0")
	}

	// --- Мониторинг зависимостей ---

	cfg.DephealthGroup = getEnvDefault("AC_DEPHEALTH_GROUP", "bizpanel")

	// AC_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("AC_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AC_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// AC_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("AC_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AC_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// loadPostgres читает параметры PostgreSQL (обязательны для backend postgres).
func loadPostgres(cfg *Config) error {
	var err error

	cfg.DBHost, err = getEnvRequired("AC_DB_HOST")
	if err != nil {
		return err
	}

	// AC_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("AC_DB_PORT", 5432)
	if err != nil {
		return fmt.Errorf("AC_DB_PORT: %w", err)
	}

	cfg.DBName, err = getEnvRequired("AC_DB_NAME")
	if err != nil {
		return err
	}

	cfg.DBUser, err = getEnvRequired("AC_DB_USER")
	if err != nil {
		return err
	}

	cfg.DBPassword, err = getEnvRequired("AC_DB_PASSWORD")
	if err != nil {
		return err
	}

	// AC_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("AC_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return fmt.Errorf("AC_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL (для миграций и меток dephealth).
func (c *Config) DatabaseURL(scheme string) string {
	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
