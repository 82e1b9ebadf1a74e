package steps

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	// StepTypeTransform — тип шага трансформации.
	StepTypeTransform = "transform"

	// Ключ конфигурации.
	configMappings = "mappings"
)

// TransformStep — шаг трансформации данных.
//
// Шаблоны в конфигурации уже отрендерены (engine.RenderConfig), шаг
// приводит значения mappings к типам JSON: числа, bool, объекты и массивы.
// Без mappings возвращает конфигурацию как есть.
//
// Конфигурация:
//
//	{
//	    "mappings": {
//	        "total": "{{ .Vars.total }}",
//	        "items": "{{ json .Vars.items }}",
//	        "owner": "{{ .Env.USER | upper }}"
//	    }
//	}
//
// Outputs: значения mappings
//
//	{
//	    "total": 10,
//	    "items": [...],
//	    "owner": "ROOT"
//	}
type TransformStep struct{}

// NewTransformStep создаёт новый TransformStep.
func NewTransformStep() *TransformStep {
	return &TransformStep{}
}

// Type возвращает тип шага.
func (s *TransformStep) Type() string {
	return StepTypeTransform
}

// Execute выполняет трансформацию данных.
func (s *TransformStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	// Проверяем context
	if ctx.Err() != nil {
		return nil, interrupted(ctx, StepTypeTransform)
	}

	if _, ok := req.Config[configMappings]; !ok {
		outputs := make(map[string]any, len(req.Config))
		for key, val := range req.Config {
			outputs[key] = val
		}
		return NewResponse(outputs), nil
	}

	mappings := s.parseMappings(req.Config)
	if mappings == nil {
		return nil, fmt.Errorf("%w: %s: mappings must be an object of strings",
			ErrInvalidConfig, StepTypeTransform)
	}

	outputs := make(map[string]any, len(mappings))
	for key, val := range mappings {
		// Пробуем распарсить результат как JSON
		outputs[key] = s.parseValue(val)
	}

	return &Response{Outputs: outputs}, nil
}

// parseMappings извлекает mappings из конфигурации.
func (s *TransformStep) parseMappings(config map[string]any) map[string]string {
	raw := config[configMappings]
	if raw == nil {
		return nil
	}

	switch m := raw.(type) {
	case map[string]string:
		return m

	case map[string]any:
		result := make(map[string]string, len(m))
		for key, val := range m {
			if str, ok := val.(string); ok {
				result[key] = str
			}
		}
		return result

	default:
		return nil
	}
}

// parseValue пытается распарсить строку как JSON.
// Если не получается — возвращает строку как есть.
func (s *TransformStep) parseValue(value string) any {
	// Пробуем как JSON object
	var obj map[string]any
	if err := json.Unmarshal([]byte(value), &obj); err == nil {
		return obj
	}

	// Пробуем как JSON array
	var arr []any
	if err := json.Unmarshal([]byte(value), &arr); err == nil {
		return arr
	}

	// Пробуем как JSON number
	var num json.Number
	if err := json.Unmarshal([]byte(value), &num); err == nil {
		// Пробуем как int
		if i, err := num.Int64(); err == nil {
			return i
		}
		// Иначе как float
		if f, err := num.Float64(); err == nil {
			return f
		}
	}

	// Пробуем как JSON bool
	if value == "true" {
		return true
	}
	if value == "false" {
		return false
	}

	// Возвращаем как строку
	return value
}
