package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Conveyor/internal/domain"
)

// ErrMalformedEvent — тело сообщения не разбирается как событие Conveyor.
var ErrMalformedEvent = errors.New("malformed event")

// Event — событие, прочитанное из очереди.
//
// Для routing key task.* Task содержит результат task, разобранный прямо
// из payload. Остальные события (run.finished и будущие типы)
// разбираются через Decode.
type Event struct {
	ID          string          `json:"id"`
	Type        MessageType     `json:"type"`
	RoutingKey  string          `json:"routing_key"`
	Timestamp   time.Time       `json:"timestamp"`
	Redelivered bool            `json:"redelivered,omitempty"`
	Payload     json.RawMessage `json:"payload"`

	Task *domain.ExecutionResult `json:"-"`
}

// Decode разбирает payload события в v.
func (e *Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrMalformedEvent)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}

// DecodeEvent разбирает тело AMQP сообщения.
//
// Событие task определяется по routing key task.*, а при пустом ключе
// (сообщение получено не через exchange) по типу task.finished.
// Payload без id task считается битым.
func DecodeEvent(routingKey string, body []byte) (*Event, error) {
	var env struct {
		ID        string          `json:"id"`
		Type      MessageType     `json:"type"`
		Payload   json.RawMessage `json:"payload"`
		Timestamp time.Time       `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	ev := &Event{
		ID:         env.ID,
		Type:       env.Type,
		RoutingKey: routingKey,
		Timestamp:  env.Timestamp,
		Payload:    env.Payload,
	}

	if isTaskEvent(routingKey, env.Type) {
		var result domain.ExecutionResult
		if err := ev.Decode(&result); err != nil {
			return nil, fmt.Errorf("task event %s: %w", env.ID, err)
		}
		if result.ID == "" {
			return nil, fmt.Errorf("%w: task event %s without task id", ErrMalformedEvent, env.ID)
		}
		ev.Task = &result
	}

	return ev, nil
}

func isTaskEvent(routingKey string, msgType MessageType) bool {
	if routingKey == "" {
		return msgType == MessageTypeTaskFinished
	}
	return strings.HasPrefix(routingKey, RoutingKeyTaskPrefix)
}

// Handler обрабатывает событие. Ошибка означает nack: первая доставка
// возвращается в очередь, повторная отбрасывается.
type Handler func(ctx context.Context, ev *Event) error

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue string

	// Handler — обработчик событий.
	Handler Handler

	// Prefetch — сколько неподтверждённых сообщений держит брокер (по умолчанию 1).
	Prefetch int
}

// Consumer читает события Conveyor из очереди RabbitMQ.
//
// Используется командой watch. Битые сообщения отбрасываются без
// вызова Handler. При разрыве соединения ждёт переподключения Connection.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    string
	handler  Handler
	prefetch int

	cancelFunc context.CancelFunc
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		logger:   logger.With("queue", cfg.Queue),
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: cfg.Prefetch,
	}
}

// Start читает очередь до отмены ctx или Stop.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	for {
		deliveries, err := c.subscribe()
		if err != nil {
			c.logger.Error("failed to subscribe", "error", err)
		} else {
			c.logger.Info("consumer started")
			c.drain(ctx, deliveries)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Warn("waiting for reconnect")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
		}
	}
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	// auto-ack выключен: ack/nack после Handler
	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

// drain обрабатывает доставки, пока канал открыт и ctx жив.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-deliveries:
			if !ok {
				return
			}
			c.handle(ctx, raw)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, raw amqp.Delivery) {
	ev, err := DecodeEvent(raw.RoutingKey, raw.Body)
	if err != nil {
		c.logger.Error("dropping malformed event",
			"routing_key", raw.RoutingKey,
			"error", err,
		)
		c.settle(raw, false, false)
		return
	}
	ev.Redelivered = raw.Redelivered

	log := c.logger.With("message_id", ev.ID, "routing_key", ev.RoutingKey)
	if ev.Task != nil {
		log = log.With("task_id", ev.Task.ID, "status", ev.Task.Status)
	}
	log.Debug("received event")

	if err := c.handler(ctx, ev); err != nil {
		log.Error("handler failed", "error", err, "redelivered", raw.Redelivered)
		c.settle(raw, false, !raw.Redelivered)
		return
	}
	c.settle(raw, true, false)
}

func (c *Consumer) settle(raw amqp.Delivery, ack, requeue bool) {
	var err error
	if ack {
		err = raw.Ack(false)
	} else {
		err = raw.Nack(false, requeue)
	}
	if err != nil {
		c.logger.Warn("settle failed", "ack", ack, "error", err)
	}
}
