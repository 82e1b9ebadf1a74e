package steps

import (
	"fmt"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
)

// PlannedTask — описание task плана вместе с готовым телом.
type PlannedTask struct {
	Spec domain.TaskSpec
	Body domain.Executable
}

// TaskRegistrar принимает task на исполнение (реализуется executor.Executor).
type TaskRegistrar interface {
	RegisterTask(spec domain.TaskSpec, body domain.Executable) error
}

// BuildPlan строит тела всех task плана.
//
// Конфигурация каждого task рендерится шаблонами ({{ .Vars.x }}, {{ .Env.X }})
// в момент вызова, поэтому повторный вызов видит новые значения окружения.
// План должен быть провалидирован.
func (r *Registry) BuildPlan(plan *domain.Plan) ([]PlannedTask, error) {
	specs := engine.TaskSpecs(plan)
	planned := make([]PlannedTask, 0, len(specs))

	for i := range plan.Tasks {
		task := &plan.Tasks[i]

		config, err := engine.RenderConfig(plan, task)
		if err != nil {
			return nil, err
		}

		body, err := r.Build(specs[i].ID, task.Type, config, specs[i].Timeout)
		if err != nil {
			return nil, fmt.Errorf("build task %s: %w", task.ID, err)
		}

		planned = append(planned, PlannedTask{Spec: specs[i], Body: body})
	}

	return planned, nil
}

// RegisterPlan строит план и регистрирует все его task.
// Возвращает количество зарегистрированных task.
func (r *Registry) RegisterPlan(plan *domain.Plan, target TaskRegistrar) (int, error) {
	planned, err := r.BuildPlan(plan)
	if err != nil {
		return 0, err
	}

	for i, t := range planned {
		if err := target.RegisterTask(t.Spec, t.Body); err != nil {
			return i, fmt.Errorf("register task %s: %w", t.Spec.ID, err)
		}
	}
	return len(planned), nil
}
