package domain

import (
	"fmt"
	"strings"
)

// TaskStatus — статус выполнения task.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → COMPLETED
//	                  ↘ FAILED (или retry → обратно в PENDING после backoff)
//	PENDING/RUNNING → CANCELLED (внешняя отмена)
//	PENDING → SKIPPED (зависимость завершилась неуспешно)
type TaskStatus string

const (
	// TaskStatusPending — task зарегистрирован и ждёт зависимостей, слота или backoff.
	TaskStatusPending TaskStatus = "PENDING"

	// TaskStatusRunning — тело task выполняется в пуле.
	TaskStatusRunning TaskStatus = "RUNNING"

	// TaskStatusCompleted — task успешно завершён.
	TaskStatusCompleted TaskStatus = "COMPLETED"

	// TaskStatusFailed — task завершился с ошибкой (после всех retry).
	TaskStatusFailed TaskStatus = "FAILED"

	// TaskStatusCancelled — task отменён вызывающей стороной.
	TaskStatusCancelled TaskStatus = "CANCELLED"

	// TaskStatusSkipped — task не запускался, потому что зависимость не завершилась успешно.
	TaskStatusSkipped TaskStatus = "SKIPPED"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// PoisonsDependents возвращает true, если зависимые от task должны быть пропущены.
func (s TaskStatus) PoisonsDependents() bool {
	switch s {
	case TaskStatusFailed, TaskStatusCancelled, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление TaskStatus.
func (s TaskStatus) String() string {
	return string(s)
}

// Priority — приоритет task. Больше — важнее.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// String возвращает имя приоритета.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority парсит строку в Priority.
// Пустая строка означает PriorityNormal.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "", "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return PriorityNormal, fmt.Errorf("%w: %q", ErrUnknownPriority, s)
	}
}
