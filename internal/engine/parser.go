package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Допустимые типы task.
var validTaskTypes = map[string]bool{
	"http":      true,
	"delay":     true,
	"transform": true,
	"fail":      true,
}

// ParsePlan разбирает план из JSON. Неизвестные поля — ошибка.
func ParsePlan(data []byte) (*domain.Plan, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var plan domain.Plan
	if err := dec.Decode(&plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsePlan, err)
	}
	return &plan, nil
}

// LoadPlan читает и разбирает план из файла, затем валидирует его.
func LoadPlan(path string) (*domain.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan %s: %w", path, err)
	}

	plan, err := ParsePlan(data)
	if err != nil {
		return nil, err
	}

	if err := Validate(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// Validate выполняет полную валидацию плана.
//
// Проверяет:
// - Наличие task
// - Уникальность ID
// - Корректность типов и приоритетов
// - Валидность зависимостей (depends_on)
// - Отсутствие циклов
func Validate(plan *domain.Plan) error {
	if plan == nil || len(plan.Tasks) == 0 {
		return ErrEmptyTasks
	}

	if plan.Defaults != nil {
		if _, err := domain.ParsePriority(plan.Defaults.Priority); err != nil {
			return NewValidationError("", "defaults.priority", err.Error(), ErrInvalidPriority)
		}
		if err := validateRetry("", plan.Defaults.Retry); err != nil {
			return err
		}
	}

	taskIDs := make(map[string]bool, len(plan.Tasks))
	for i := range plan.Tasks {
		if err := ValidateTask(&plan.Tasks[i], taskIDs); err != nil {
			return err
		}
	}

	graph := make(Graph, len(plan.Tasks))
	for i := range plan.Tasks {
		task := &plan.Tasks[i]

		deps := make([]domain.TaskID, 0, len(task.DependsOn))
		for _, dep := range task.DependsOn {
			if !taskIDs[dep] {
				return NewValidationError(task.ID, "depends_on",
					fmt.Sprintf("depends on unknown task: %s", dep), ErrMissingDependency)
			}
			deps = append(deps, domain.TaskID(dep))
		}
		graph[domain.TaskID(task.ID)] = deps
	}

	if _, err := graph.TopologicalOrder(); err != nil {
		return NewValidationError("", "depends_on", err.Error(), ErrCyclicDependency)
	}

	return nil
}

// ValidateTask валидирует один task.
// taskIDs — уже встреченные ID (для проверки уникальности).
func ValidateTask(task *domain.PlanTask, taskIDs map[string]bool) error {
	if task.ID == "" {
		return NewValidationError("", "id", "task has empty ID", ErrEmptyTaskID)
	}

	if taskIDs[task.ID] {
		return NewValidationError(task.ID, "id",
			fmt.Sprintf("duplicate task ID: %s", task.ID), ErrDuplicateTaskID)
	}
	taskIDs[task.ID] = true

	if task.Type == "" {
		return NewValidationError(task.ID, "type", "task has empty type", ErrUnknownTaskType)
	}
	if !validTaskTypes[task.Type] {
		return NewValidationError(task.ID, "type",
			fmt.Sprintf("unknown task type: %s", task.Type), ErrUnknownTaskType)
	}

	if _, err := domain.ParsePriority(task.Priority); err != nil {
		return NewValidationError(task.ID, "priority", err.Error(), ErrInvalidPriority)
	}

	for _, dep := range task.DependsOn {
		if dep == task.ID {
			return NewValidationError(task.ID, "depends_on",
				"task depends on itself", ErrSelfDependency)
		}
	}

	if task.TimeoutMs < 0 {
		return NewValidationError(task.ID, "timeout_ms", "timeout must not be negative", ErrInvalidRetry)
	}

	return validateRetry(task.ID, task.Retry)
}

// validateRetry проверяет политику retry.
func validateRetry(taskID string, r *domain.PlanRetry) error {
	if r == nil {
		return nil
	}
	if r.MaxAttempts < 0 || r.BaseDelayMs < 0 || r.MaxDelayMs < 0 || r.BackoffMultiplier < 0 {
		return NewValidationError(taskID, "retry", "retry values must not be negative", ErrInvalidRetry)
	}
	return nil
}

// TaskSpecs строит TaskSpec для каждого task плана с учётом defaults.
// План должен быть предварительно провалидирован.
func TaskSpecs(plan *domain.Plan) []domain.TaskSpec {
	specs := make([]domain.TaskSpec, 0, len(plan.Tasks))

	var defaults domain.PlanDefaults
	if plan.Defaults != nil {
		defaults = *plan.Defaults
	}

	for i := range plan.Tasks {
		task := &plan.Tasks[i]

		priorityName := task.Priority
		if priorityName == "" {
			priorityName = defaults.Priority
		}
		priority, _ := domain.ParsePriority(priorityName)

		retry := task.Retry
		if retry == nil {
			retry = defaults.Retry
		}

		timeoutMs := task.TimeoutMs
		if timeoutMs == 0 {
			timeoutMs = defaults.TimeoutMs
		}

		deps := make([]domain.TaskID, len(task.DependsOn))
		for j, dep := range task.DependsOn {
			deps[j] = domain.TaskID(dep)
		}

		specs = append(specs, domain.TaskSpec{
			ID:        domain.TaskID(task.ID),
			Name:      task.Name,
			Priority:  priority,
			Category:  task.Category,
			DependsOn: deps,
			Retry:     retryPolicy(retry),
			Timeout:   time.Duration(timeoutMs) * time.Millisecond,
			Tags:      task.Tags,
			Metadata:  task.Metadata,
		})
	}

	return specs
}

// retryPolicy переводит PlanRetry в domain.RetryPolicy.
func retryPolicy(r *domain.PlanRetry) domain.RetryPolicy {
	if r == nil {
		return domain.RetryPolicy{MaxAttempts: 1}
	}
	return domain.RetryPolicy{
		MaxAttempts:       r.MaxAttempts,
		BaseDelay:         time.Duration(r.BaseDelayMs) * time.Millisecond,
		BackoffMultiplier: r.BackoffMultiplier,
		MaxDelay:          time.Duration(r.MaxDelayMs) * time.Millisecond,
	}
}

// IsValidTaskType проверяет, является ли тип task допустимым.
func IsValidTaskType(taskType string) bool {
	return validTaskTypes[taskType]
}

// GetValidTaskTypes возвращает отсортированный список допустимых типов task.
func GetValidTaskTypes() []string {
	types := make([]string, 0, len(validTaskTypes))
	for t := range validTaskTypes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
