package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/bigkaa/bizpanel/access-module/internal/domain/model"
)

// RedisPublisher публикует уведомления в Redis pub/sub.
// Канал: <prefix>:user.<id> для личных уведомлений,
// <prefix>:approvers для согласующих.
type RedisPublisher struct {
	client redis.Cmdable
	prefix string
}

// NewRedisPublisher создаёт публикатор поверх клиента Redis.
func NewRedisPublisher(client redis.Cmdable, prefix string) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix}
}

// Channel возвращает канал, в который будет опубликовано уведомление.
func (p *RedisPublisher) Channel(n model.Notification) string {
	return p.prefix + ":" + target(n)
}

func (p *RedisPublisher) Notify(ctx context.Context, n model.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("сериализация уведомления: %w", err)
	}
	if err := p.client.Publish(ctx, p.Channel(n), body).Err(); err != nil {
		return fmt.Errorf("публикация уведомления %s в Redis: %w", n.ID, err)
	}
	return nil
}
