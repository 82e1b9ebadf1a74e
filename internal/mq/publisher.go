package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeTaskFinished MessageType = "task.finished"
	MessageTypeRunFinished  MessageType = "run.finished"
)

// Sender отправляет подготовленное AMQP сообщение. Реализуется Connection.
type Sender interface {
	Send(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error
}

// Message — конверт события.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Publisher публикует сообщения в один exchange.
type Publisher struct {
	sender   Sender
	exchange string
	logger   *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(sender Sender, exchange string, logger *slog.Logger) *Publisher {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Publisher{
		sender:   sender,
		exchange: exchange,
		logger:   logger,
	}
}

// Exchange возвращает имя обменника.
func (p *Publisher) Exchange() string {
	return p.exchange
}

// Publish публикует сообщение с routing key.
func (p *Publisher) Publish(ctx context.Context, routingKey string, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = p.sender.Send(ctx, p.exchange, routingKey, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
		MessageId:    msg.ID,
		Type:         string(msg.Type),
		Timestamp:    msg.Timestamp,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", p.exchange, routingKey, err)
	}

	p.logger.Debug("published message",
		"exchange", p.exchange,
		"routing_key", routingKey,
		"message_id", msg.ID,
		"type", msg.Type,
	)

	return nil
}
