package executor

import (
	"context"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Metrics — приёмник метрик executor'а. Только наблюдение:
// реализация не влияет на планирование.
type Metrics interface {
	// TaskSubmitted вызывается при успешной регистрации.
	TaskSubmitted(category string)

	// TaskFinished вызывается при переходе в финальный статус.
	TaskFinished(status domain.TaskStatus, category string, d time.Duration)

	// TaskRetried вызывается, когда неуспешная попытка будет повторена.
	TaskRetried(category string)

	// SetRunning сообщает текущее количество выполняющихся task.
	SetRunning(n int)
}

// Observer получает ExecutionResult каждого task, перешедшего в финальный статус.
// Ошибка observer'а логируется и не меняет планирование.
type Observer interface {
	TaskFinished(ctx context.Context, result domain.ExecutionResult) error
}

// ObserverFunc позволяет использовать функцию как Observer.
type ObserverFunc func(ctx context.Context, result domain.ExecutionResult) error

// TaskFinished вызывает f.
func (f ObserverFunc) TaskFinished(ctx context.Context, result domain.ExecutionResult) error {
	return f(ctx, result)
}

type nopMetrics struct{}

func (nopMetrics) TaskSubmitted(string)                                 {}
func (nopMetrics) TaskFinished(domain.TaskStatus, string, time.Duration) {}
func (nopMetrics) TaskRetried(string)                                   {}
func (nopMetrics) SetRunning(int)                                       {}
