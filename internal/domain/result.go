package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionResult — итог выполнения task, доступный после финального статуса.
type ExecutionResult struct {
	// ID — идентификатор task.
	ID TaskID `json:"id"`

	// RunID — идентификатор запуска executor'а, в котором выполнялся task.
	RunID uuid.UUID `json:"run_id"`

	// Name — имя task (копия TaskSpec.Name).
	Name string `json:"name,omitempty"`

	// Category — категория task (копия TaskSpec.Category).
	Category string `json:"category,omitempty"`

	// Status — финальный статус.
	Status TaskStatus `json:"status"`

	// StartedAt — начало последней попытки (nil, если task не запускался).
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время перехода в финальный статус.
	FinishedAt time.Time `json:"finished_at"`

	// Duration — длительность последней попытки.
	Duration time.Duration `json:"duration"`

	// Output — результат при успехе.
	Output any `json:"output,omitempty"`

	// Error — текст ошибки при неудаче, отмене или пропуске.
	Error string `json:"error,omitempty"`

	// Severity — severity ошибки (для FAILED).
	Severity Severity `json:"severity,omitempty"`

	// Attempts — количество выполненных попыток.
	Attempts int `json:"attempts"`
}

// BuildResult собирает ExecutionResult из спецификации и финального состояния.
func BuildResult(runID uuid.UUID, spec *TaskSpec, state *TaskState) ExecutionResult {
	res := ExecutionResult{
		ID:        spec.ID,
		RunID:     runID,
		Name:      spec.Name,
		Category:  spec.Category,
		Status:    state.Status,
		StartedAt: state.StartedAt,
		Duration:  state.Duration,
		Attempts:  state.Attempt,
	}
	if state.CompletedAt != nil {
		res.FinishedAt = *state.CompletedAt
	}

	switch state.Status {
	case TaskStatusCompleted:
		if state.LastOutcome != nil {
			res.Output = state.LastOutcome.Output
		}
	case TaskStatusFailed:
		if state.LastOutcome != nil {
			res.Error = state.LastOutcome.ErrorMessage()
			res.Severity = SeverityOf(state.LastOutcome.Err)
		}
	case TaskStatusCancelled:
		res.Error = "cancelled"
	case TaskStatusSkipped:
		res.Error = "skipped: dependency " + string(state.SkipCause) + " did not complete"
	}

	return res
}
