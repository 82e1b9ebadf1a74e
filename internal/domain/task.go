package domain

import (
	"math"
	"time"
)

// TaskID — идентификатор task, выбранный вызывающей стороной при регистрации.
type TaskID string

// String возвращает строковое представление TaskID.
func (id TaskID) String() string {
	return string(id)
}

// Default retry values.
const (
	DefaultBackoffMultiplier = 2.0

	maxBackoff = float64(1 << 62)
)

// RetryPolicy — политика повторных попыток.
type RetryPolicy struct {
	// MaxAttempts — максимальное количество попыток (включая первую).
	// Значение <= 0 трактуется как 1 (без retry).
	MaxAttempts int `json:"max_attempts,omitempty"`

	// BaseDelay — задержка перед второй попыткой.
	BaseDelay time.Duration `json:"base_delay,omitempty"`

	// BackoffMultiplier — множитель задержки для каждой следующей попытки.
	// Значение <= 0 трактуется как 2.
	BackoffMultiplier float64 `json:"backoff_multiplier,omitempty"`

	// MaxDelay — верхняя граница задержки. 0 — без ограничения.
	MaxDelay time.Duration `json:"max_delay,omitempty"`
}

// Attempts возвращает нормализованное MaxAttempts.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Backoff вычисляет задержку после неудачной попытки attempt (начиная с 1):
// BaseDelay * BackoffMultiplier^(attempt-1), ограниченную MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}

	mult := p.BackoffMultiplier
	if mult <= 0 {
		mult = DefaultBackoffMultiplier
	}

	delay := float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if delay > maxBackoff {
		delay = maxBackoff
	}

	d := time.Duration(delay)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// TaskSpec — неизменяемое описание task.
type TaskSpec struct {
	// ID — уникальный идентификатор task.
	ID TaskID `json:"id"`

	// Name — человекочитаемое имя.
	Name string `json:"name,omitempty"`

	// Priority — приоритет при допуске в очередь.
	Priority Priority `json:"priority"`

	// Category — произвольная категория (используется как label в метриках).
	Category string `json:"category,omitempty"`

	// DependsOn — task, которые должны завершиться успешно до запуска этого.
	DependsOn []TaskID `json:"depends_on,omitempty"`

	// Retry — политика повторных попыток.
	Retry RetryPolicy `json:"retry"`

	// Timeout — таймаут одного вызова тела. 0 — без таймаута.
	Timeout time.Duration `json:"timeout,omitempty"`

	// Tags — набор тегов.
	Tags []string `json:"tags,omitempty"`

	// Metadata — произвольные метаданные.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// DisplayName возвращает Name или ID, если имя не задано.
func (s *TaskSpec) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return string(s.ID)
}

// Clone возвращает глубокую копию спецификации.
func (s TaskSpec) Clone() TaskSpec {
	out := s
	if s.DependsOn != nil {
		out.DependsOn = append([]TaskID(nil), s.DependsOn...)
	}
	if s.Tags != nil {
		out.Tags = append([]string(nil), s.Tags...)
	}
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// TaskState — изменяемое состояние task.
//
// Принадлежит реестру: изменяется только резолвером и callback'ом завершения воркера.
type TaskState struct {
	// Status — текущий статус.
	Status TaskStatus `json:"status"`

	// Attempt — номер текущей (или последней) попытки, начиная с 1.
	Attempt int `json:"attempt"`

	// CreatedAt — время регистрации.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt — время начала последней попытки.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt — время перехода в финальный статус.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Duration — длительность последней попытки.
	Duration time.Duration `json:"duration"`

	// LastOutcome — результат последней попытки.
	LastOutcome *Outcome `json:"-"`

	// NotReadyUntil — backoff: task не допускается раньше этого момента.
	NotReadyUntil time.Time `json:"not_ready_until,omitempty"`

	// Queued — task находится в очереди допуска.
	Queued bool `json:"queued"`

	// SkipCause — зависимость, из-за которой task пропущен.
	SkipCause TaskID `json:"skip_cause,omitempty"`
}

// NewTaskState создаёт состояние PENDING.
func NewTaskState(now time.Time) TaskState {
	return TaskState{
		Status:    TaskStatusPending,
		CreatedAt: now,
	}
}

// IsFinished возвращает true, если task завершён.
func (t *TaskState) IsFinished() bool {
	return t.Status.IsTerminal()
}

// MarkRunning переводит task в статус RUNNING.
func (t *TaskState) MarkRunning(now time.Time) {
	t.Status = TaskStatusRunning
	t.StartedAt = &now
	t.Queued = false
	t.Attempt++
}

// MarkCompleted переводит task в статус COMPLETED.
func (t *TaskState) MarkCompleted(outcome Outcome, d time.Duration, now time.Time) {
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.Duration = d
	t.LastOutcome = &outcome
}

// MarkFailed переводит task в статус FAILED.
func (t *TaskState) MarkFailed(outcome Outcome, d time.Duration, now time.Time) {
	t.Status = TaskStatusFailed
	t.CompletedAt = &now
	t.Duration = d
	t.LastOutcome = &outcome
}

// MarkCancelled переводит task в статус CANCELLED.
func (t *TaskState) MarkCancelled(now time.Time) {
	t.Status = TaskStatusCancelled
	t.CompletedAt = &now
	t.Queued = false
}

// MarkSkipped переводит task в статус SKIPPED из-за зависимости cause.
func (t *TaskState) MarkSkipped(cause TaskID, now time.Time) {
	t.Status = TaskStatusSkipped
	t.CompletedAt = &now
	t.Queued = false
	t.SkipCause = cause
}

// ResetForRetry возвращает task в PENDING до момента notReadyUntil.
// Attempt увеличится при следующем MarkRunning().
func (t *TaskState) ResetForRetry(outcome Outcome, d time.Duration, notReadyUntil time.Time) {
	t.Status = TaskStatusPending
	t.Duration = d
	t.LastOutcome = &outcome
	t.NotReadyUntil = notReadyUntil
}
