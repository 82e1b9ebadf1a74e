package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/registry"
)

// TaskResponse — ответ с task.
type TaskResponse struct {
	ID            domain.TaskID     `json:"id"`
	Name          string            `json:"name,omitempty"`
	Category      string            `json:"category,omitempty"`
	Priority      string            `json:"priority"`
	DependsOn     []domain.TaskID   `json:"depends_on,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	MaxAttempts   int               `json:"max_attempts"`
	TimeoutMs     int64             `json:"timeout_ms,omitempty"`
	Status        domain.TaskStatus `json:"status"`
	Attempt       int               `json:"attempt"`
	Queued        bool              `json:"queued"`
	CreatedAt     time.Time         `json:"created_at"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	NotReadyUntil *time.Time        `json:"not_ready_until,omitempty"`
	SkipCause     domain.TaskID     `json:"skip_cause,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// TaskFromSnapshot конвертирует registry.Snapshot в TaskResponse.
func TaskFromSnapshot(s registry.Snapshot) TaskResponse {
	resp := TaskResponse{
		ID:          s.Spec.ID,
		Name:        s.Spec.Name,
		Category:    s.Spec.Category,
		Priority:    s.Spec.Priority.String(),
		DependsOn:   s.Spec.DependsOn,
		Tags:        s.Spec.Tags,
		Metadata:    s.Spec.Metadata,
		MaxAttempts: s.Spec.Retry.Attempts(),
		TimeoutMs:   s.Spec.Timeout.Milliseconds(),
		Status:      s.State.Status,
		Attempt:     s.State.Attempt,
		Queued:      s.State.Queued,
		CreatedAt:   s.State.CreatedAt,
		StartedAt:   s.State.StartedAt,
		CompletedAt: s.State.CompletedAt,
		SkipCause:   s.State.SkipCause,
	}
	if !s.State.NotReadyUntil.IsZero() && s.State.Status == domain.TaskStatusPending {
		t := s.State.NotReadyUntil
		resp.NotReadyUntil = &t
	}
	if s.State.LastOutcome != nil {
		resp.Error = s.State.LastOutcome.ErrorMessage()
	}
	return resp
}

// ResultResponse — ответ с результатом task.
type ResultResponse struct {
	ID         domain.TaskID     `json:"id"`
	RunID      uuid.UUID         `json:"run_id"`
	Name       string            `json:"name,omitempty"`
	Category   string            `json:"category,omitempty"`
	Status     domain.TaskStatus `json:"status"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	FinishedAt time.Time         `json:"finished_at"`
	DurationMs int64             `json:"duration_ms"`
	Output     any               `json:"output,omitempty"`
	Error      string            `json:"error,omitempty"`
	Severity   domain.Severity   `json:"severity,omitempty"`
	Attempts   int               `json:"attempts"`
}

// ResultFromDomain конвертирует domain.ExecutionResult в ResultResponse.
func ResultFromDomain(r domain.ExecutionResult) ResultResponse {
	return ResultResponse{
		ID:         r.ID,
		RunID:      r.RunID,
		Name:       r.Name,
		Category:   r.Category,
		Status:     r.Status,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMs: r.Duration.Milliseconds(),
		Output:     r.Output,
		Error:      r.Error,
		Severity:   r.Severity,
		Attempts:   r.Attempts,
	}
}

// StatsResponse — статистика текущего запуска.
type StatsResponse struct {
	RunID             uuid.UUID `json:"run_id"`
	Submitted         int       `json:"submitted"`
	Completed         int       `json:"completed"`
	Failed            int       `json:"failed"`
	Cancelled         int       `json:"cancelled"`
	Skipped           int       `json:"skipped"`
	Blocked           int       `json:"blocked"`
	Retries           int       `json:"retries"`
	Running           int       `json:"running"`
	WorkerCount       int       `json:"worker_count"`
	CurrentLoad       float64   `json:"current_load"`
	TotalDurationMs   int64     `json:"total_duration_ms"`
	AverageDurationMs int64     `json:"average_duration_ms"`
}
