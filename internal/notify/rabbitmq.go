package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rabbitmq/amqp091-go"

	"github.com/bigkaa/bizpanel/access-module/internal/domain/model"
)

// RabbitMQPublisher публикует уведомления в topic exchange.
// Routing key — тип уведомления (access_request.approved, access.expired, ...).
// При пустом URI публикация отключена, Notify ничего не делает.
type RabbitMQPublisher struct {
	conn     *amqp091.Connection
	exchange string
	enabled  bool
	logger   *slog.Logger

	// amqp091.Channel нельзя использовать для публикации из нескольких горутин.
	mu      sync.Mutex
	channel *amqp091.Channel
}

// NewRabbitMQPublisher подключается к RabbitMQ и объявляет durable topic exchange.
func NewRabbitMQPublisher(uri, exchange string, logger *slog.Logger) (*RabbitMQPublisher, error) {
	logger = logger.With(slog.String("component", "notify_rabbitmq"))

	if uri == "" {
		logger.Info("AC_NOTIFY_RABBITMQ_URI не задан, публикация в RabbitMQ отключена")
		return &RabbitMQPublisher{exchange: exchange, logger: logger}, nil
	}

	conn, err := amqp091.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("подключение к RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("открытие канала RabbitMQ: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("объявление exchange %s: %w", exchange, err)
	}

	logger.Info("Публикация уведомлений в RabbitMQ включена", slog.String("exchange", exchange))

	return &RabbitMQPublisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		enabled:  true,
		logger:   logger,
	}, nil
}

// Enabled сообщает, включена ли публикация.
func (p *RabbitMQPublisher) Enabled() bool {
	return p.enabled
}

func (p *RabbitMQPublisher) Notify(ctx context.Context, n model.Notification) error {
	if !p.enabled {
		return nil
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("сериализация уведомления: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx,
		p.exchange,     // exchange
		string(n.Type), // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    n.ID,
			Timestamp:    n.Timestamp,
			Body:         body,
			Headers: amqp091.Table{
				"notification_type": string(n.Type),
				"recipient":         target(n),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("публикация уведомления %s в RabbitMQ: %w", n.ID, err)
	}

	p.logger.Debug("Уведомление опубликовано",
		slog.String("id", n.ID),
		slog.String("routing_key", string(n.Type)),
	)
	return nil
}

// Close закрывает канал и соединение.
func (p *RabbitMQPublisher) Close() error {
	if !p.enabled {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn("Ошибка закрытия канала RabbitMQ", slog.String("error", err.Error()))
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("закрытие соединения RabbitMQ: %w", err)
		}
	}
	return nil
}

// CheckReady — проверка готовности для health endpoint.
func (p *RabbitMQPublisher) CheckReady() (status string, message string) {
	if !p.enabled {
		return "ok", "публикация отключена"
	}
	if p.conn.IsClosed() {
		return "degraded", "соединение с RabbitMQ закрыто, уведомления не доставляются"
	}
	return "ok", "подключение активно"
}
