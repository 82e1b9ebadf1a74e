package steps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Ошибки шагов.
var (
	// ErrStepNotFound — тип шага не найден в реестре.
	ErrStepNotFound = errors.New("step type not found")

	// ErrInvalidConfig — невалидная конфигурация шага.
	ErrInvalidConfig = errors.New("invalid step config")

	// ErrStepCancelled — выполнение шага отменено.
	ErrStepCancelled = errors.New("step execution cancelled")
)

// Step — интерфейс для типов шагов.
//
// Каждый тип шага (http, delay, transform, fail) реализует этот интерфейс.
type Step interface {
	// Type возвращает тип шага.
	Type() string

	// Execute выполняет шаг и возвращает результат.
	// Шаг должен проверять ctx.Done() для graceful shutdown.
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// Request — входные данные для выполнения шага.
type Request struct {
	// TaskID — идентификатор task, для которого выполняется шаг.
	TaskID domain.TaskID

	// Config — конфигурация шага (уже отрендеренная через engine.RenderConfig).
	Config map[string]any

	// Timeout — таймаут task. Если 0, шаг использует свой таймаут по умолчанию.
	Timeout time.Duration
}

// Response — результат выполнения шага.
type Response struct {
	// Outputs — выходные данные шага; становятся Output результата task.
	Outputs map[string]any
}

// NewRequest создаёт новый Request.
func NewRequest(taskID domain.TaskID, config map[string]any, timeout time.Duration) *Request {
	if config == nil {
		config = make(map[string]any)
	}
	return &Request{
		TaskID:  taskID,
		Config:  config,
		Timeout: timeout,
	}
}

// NewResponse создаёт новый Response с outputs.
func NewResponse(outputs map[string]any) *Response {
	if outputs == nil {
		outputs = make(map[string]any)
	}
	return &Response{
		Outputs: outputs,
	}
}

// Executable связывает шаг с запросом и возвращает тело task.
// Ошибка шага становится Failure, outputs — Output результата.
func Executable(step Step, req *Request) domain.Executable {
	return domain.FromFunc(func(ctx context.Context) (any, error) {
		resp, err := step.Execute(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return map[string]any{}, nil
		}
		return resp.Outputs, nil
	})
}

// interrupted возвращает ошибку шага, остановленного через ctx.
//
// Дедлайн означает таймаут task: ошибка оборачивает domain.ErrTimeout
// с SeverityWarning. Отмена (CancelTask, Reset) оборачивает
// ErrStepCancelled с SeverityInfo.
func interrupted(ctx context.Context, stepType string) error {
	cause := ctx.Err()
	if errors.Is(cause, context.DeadlineExceeded) {
		return domain.NewTaskError(domain.SeverityWarning, stepType+" step deadline exceeded",
			fmt.Errorf("%w: %w", domain.ErrTimeout, cause))
	}
	return domain.NewTaskError(domain.SeverityInfo, stepType+" step cancelled",
		fmt.Errorf("%w: %w", ErrStepCancelled, cause))
}

// sleep ждёт d или остановки ctx.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// traced дополняет outputs идентификатором task и номером попытки.
func traced(ctx context.Context, req *Request, outputs map[string]any) *Response {
	resp := NewResponse(outputs)
	resp.Outputs["task_id"] = string(req.TaskID)
	resp.Outputs["attempt"] = domain.AttemptFromContext(ctx)
	return resp
}

// GetConfigString извлекает строковое значение из конфига.
func GetConfigString(config map[string]any, key string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetConfigInt извлекает числовое значение из конфига.
func GetConfigInt(config map[string]any, key string) int {
	if v, ok := config[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

// GetConfigBool извлекает булево значение из конфига.
func GetConfigBool(config map[string]any, key string, defaultVal bool) bool {
	if v, ok := config[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// GetConfigMap извлекает map из конфига.
func GetConfigMap(config map[string]any, key string) map[string]any {
	if v, ok := config[key]; ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return nil
}

// GetConfigMapString извлекает map[string]string из конфига.
func GetConfigMapString(config map[string]any, key string) map[string]string {
	if v, ok := config[key]; ok {
		switch m := v.(type) {
		case map[string]string:
			return m
		case map[string]any:
			result := make(map[string]string)
			for k, val := range m {
				if s, ok := val.(string); ok {
					result[k] = s
				}
			}
			return result
		}
	}
	return nil
}
