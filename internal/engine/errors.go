package engine

import "errors"

// Ошибки валидации плана.
var (
	// ErrEmptyTasks — план не содержит task.
	ErrEmptyTasks = errors.New("plan has no tasks")

	// ErrEmptyTaskID — task не имеет ID.
	ErrEmptyTaskID = errors.New("task has empty ID")

	// ErrDuplicateTaskID — несколько task с одинаковым ID.
	ErrDuplicateTaskID = errors.New("duplicate task ID")

	// ErrUnknownTaskType — неизвестный тип task.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrMissingDependency — task зависит от несуществующего task.
	ErrMissingDependency = errors.New("task depends on unknown task")

	// ErrCyclicDependency — обнаружен цикл в зависимостях.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrSelfDependency — task зависит от самого себя.
	ErrSelfDependency = errors.New("task depends on itself")

	// ErrInvalidPriority — неизвестный приоритет.
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrInvalidRetry — некорректная политика retry.
	ErrInvalidRetry = errors.New("invalid retry policy")

	// ErrParsePlan — план не удалось разобрать.
	ErrParsePlan = errors.New("parse plan failed")
)

// Ошибки рендеринга шаблонов.
var (
	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse error")

	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render error")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	TaskID  string // ID task, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.TaskID != "" {
		return "task " + e.TaskID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(taskID, field, message string, err error) *ValidationError {
	return &ValidationError{
		TaskID:  taskID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
