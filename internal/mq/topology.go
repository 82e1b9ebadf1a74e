package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange — обменник событий по умолчанию.
const DefaultExchange = "conveyor.events"

// Queues — имена постоянных очередей.
const (
	// QueueTaskResults получает результаты всех task.
	QueueTaskResults = "conveyor.task.results"

	// QueueTaskFailures получает только FAILED, для алертинга.
	QueueTaskFailures = "conveyor.task.failures"

	// QueueRuns получает итоги запусков.
	QueueRuns = "conveyor.runs"
)

// Routing keys. События task публикуются с ключом task.<status>,
// например task.completed или task.skipped.
const (
	RoutingKeyTaskPrefix  = "task."
	RoutingKeyTaskFailed  = "task.failed"
	RoutingKeyRunFinished = "run.finished"

	bindAllTasks = "task.*"
	bindAllRuns  = "run.*"
)

// SetupTopology объявляет topic exchange, очереди и привязки.
func SetupTopology(ctx context.Context, conn *Connection, exchange string) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := ch.ExchangeDeclare(
			exchange, // name
			amqp.ExchangeTopic,
			true,  // durable
			false, // auto-deleted
			false, // internal
			false, // no-wait
			nil,   // arguments
		); err != nil {
			return fmt.Errorf("declare exchange %s: %w", exchange, err)
		}

		bindings := []struct {
			queue string
			key   string
		}{
			{QueueTaskResults, bindAllTasks},
			{QueueTaskFailures, RoutingKeyTaskFailed},
			{QueueRuns, bindAllRuns},
		}

		for _, b := range bindings {
			if _, err := ch.QueueDeclare(
				b.queue,
				true,  // durable
				false, // delete when unused
				false, // exclusive
				false, // no-wait
				nil,
			); err != nil {
				return fmt.Errorf("declare queue %s: %w", b.queue, err)
			}

			if err := ch.QueueBind(b.queue, b.key, exchange, false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, exchange, err)
			}
		}

		return nil
	})
}

// DeclareWatchQueue объявляет временную эксклюзивную очередь, получающую
// все события exchange. Используется командой watch, чтобы не забирать
// сообщения у постоянных потребителей.
func DeclareWatchQueue(ctx context.Context, conn *Connection, exchange string) (string, error) {
	var name string

	err := conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		q, err := ch.QueueDeclare(
			"",    // имя выдаёт сервер
			false, // durable
			true,  // delete when unused
			true,  // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("declare watch queue: %w", err)
		}

		for _, key := range []string{bindAllTasks, bindAllRuns} {
			if err := ch.QueueBind(q.Name, key, exchange, false, nil); err != nil {
				return fmt.Errorf("bind watch queue to %s: %w", exchange, err)
			}
		}

		name = q.Name
		return nil
	})

	return name, err
}

// TaskRoutingKey возвращает routing key события task для статуса.
func TaskRoutingKey(status string) string {
	return RoutingKeyTaskPrefix + strings.ToLower(status)
}
