package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore — Store поверх Redis: одна коллекция — один строковый ключ.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore создаёт Store поверх Redis. prefix добавляется к каждому ключу.
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения коллекции %s из Redis: %w", key, err)
	}
	return value, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("ошибка записи коллекции %s в Redis: %w", key, err)
	}
	return nil
}

// RedisReadinessChecker — проверка готовности Redis для health endpoint.
type RedisReadinessChecker struct {
	client redis.Cmdable
}

// NewRedisReadinessChecker создаёт проверку готовности Redis.
func NewRedisReadinessChecker(client redis.Cmdable) *RedisReadinessChecker {
	return &RedisReadinessChecker{client: client}
}

// CheckReady выполняет PING. Возвращает статус ("ok", "fail") и сообщение.
func (c *RedisReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return "fail", fmt.Sprintf("Redis недоступен: %v", err)
	}
	return "ok", "подключение активно"
}
