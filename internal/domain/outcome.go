package domain

import (
	"context"
	"errors"
	"fmt"
)

// Ошибки выполнения task.
var (
	// ErrTaskExecution — тело task вернуло ошибку или упало с паникой.
	ErrTaskExecution = errors.New("task execution failed")

	// ErrTimeout — тело task не уложилось в таймаут.
	ErrTimeout = errors.New("task timed out")

	// ErrUnknownPriority — неизвестное имя приоритета.
	ErrUnknownPriority = errors.New("unknown priority")
)

// Severity — важность ошибки для логирования и отчётов.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// TaskError — ошибка, которую тело task может вернуть вместе с severity.
type TaskError struct {
	Message  string
	Severity Severity
	Err      error
}

// Error реализует интерфейс error.
func (e *TaskError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
// Если базовой ошибки нет, TaskError считается ErrTaskExecution.
func (e *TaskError) Unwrap() error {
	if e.Err == nil {
		return ErrTaskExecution
	}
	return e.Err
}

// NewTaskError создаёт TaskError с severity.
func NewTaskError(severity Severity, message string, err error) *TaskError {
	return &TaskError{Message: message, Severity: severity, Err: err}
}

// SeverityOf возвращает severity ошибки; по умолчанию SeverityError.
func SeverityOf(err error) Severity {
	var tErr *TaskError
	if errors.As(err, &tErr) && tErr.Severity != "" {
		return tErr.Severity
	}
	return SeverityError
}

// Outcome — результат одного вызова тела task: Success(output) или Failure(err).
type Outcome struct {
	// Output — значение при успехе.
	Output any

	// Err — ошибка при неудаче. nil означает успех.
	Err error
}

// Success создаёт успешный Outcome.
func Success(output any) Outcome {
	return Outcome{Output: output}
}

// Failure создаёт неуспешный Outcome.
// Ошибка оборачивается в ErrTaskExecution, если ещё не обёрнута.
func Failure(err error) Outcome {
	if err == nil {
		err = ErrTaskExecution
	}
	if !errors.Is(err, ErrTaskExecution) && !errors.Is(err, ErrTimeout) {
		err = fmt.Errorf("%w: %w", ErrTaskExecution, err)
	}
	return Outcome{Err: err}
}

// OK возвращает true для Success.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// ErrorMessage возвращает текст ошибки или пустую строку.
func (o Outcome) ErrorMessage() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Executable — тело task.
//
// ctx отменяется при CancelTask и при истечении таймаута.
// Тело должно проверять ctx.Done(), иначе оно продолжит работать в фоне,
// а его результат будет отброшен.
type Executable interface {
	Execute(ctx context.Context) Outcome
}

// ExecutableFunc позволяет использовать функцию как Executable.
type ExecutableFunc func(ctx context.Context) Outcome

// Execute вызывает f(ctx).
func (f ExecutableFunc) Execute(ctx context.Context) Outcome {
	return f(ctx)
}

// FromFunc адаптирует функцию вида (any, error) к Executable.
func FromFunc(fn func(ctx context.Context) (any, error)) Executable {
	return ExecutableFunc(func(ctx context.Context) Outcome {
		out, err := fn(ctx)
		if err != nil {
			return Failure(err)
		}
		return Success(out)
	})
}
