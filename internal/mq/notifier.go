package mq

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// RunFinishedPayload — итог одного запуска плана.
type RunFinishedPayload struct {
	RunID      uuid.UUID `json:"run_id"`
	Plan       string    `json:"plan,omitempty"`
	Stats      any       `json:"stats"`
	FinishedAt time.Time `json:"finished_at"`
}

// Notifier публикует события жизненного цикла task.
//
// Реализует executor.Observer: каждый task в финальном статусе
// публикуется с routing key task.<status> и ExecutionResult в payload.
type Notifier struct {
	publisher *Publisher
}

// NewNotifier создаёт Notifier поверх Publisher.
func NewNotifier(publisher *Publisher) *Notifier {
	return &Notifier{publisher: publisher}
}

// TaskFinished публикует результат task.
func (n *Notifier) TaskFinished(ctx context.Context, result domain.ExecutionResult) error {
	msg := NewMessage(MessageTypeTaskFinished, result)
	return n.publisher.Publish(ctx, TaskRoutingKey(result.Status.String()), msg)
}

// RunFinished публикует итог запуска.
func (n *Notifier) RunFinished(ctx context.Context, payload RunFinishedPayload) error {
	if payload.FinishedAt.IsZero() {
		payload.FinishedAt = time.Now().UTC()
	}
	return n.publisher.Publish(ctx, RoutingKeyRunFinished, NewMessage(MessageTypeRunFinished, payload))
}
