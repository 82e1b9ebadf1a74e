package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/shaiso/Conveyor/internal/domain"
)

// RenderContext — контекст для рендеринга конфигурации task.
//
// Доступ в шаблонах:
//   - {{ .Vars.name }}
//   - {{ .Env.VAR_NAME }}
//   - {{ .Task.ID }}, {{ .Task.Category }}
type RenderContext struct {
	// Vars — переменные плана.
	Vars map[string]any

	// Env — переменные окружения.
	Env map[string]string

	// Task — task, чья конфигурация рендерится.
	Task TaskRef
}

// TaskRef — сведения о task, доступные шаблону.
type TaskRef struct {
	ID       string
	Name     string
	Category string
}

// NewRenderContext создаёт контекст для task плана.
// Env заполняется из окружения процесса.
func NewRenderContext(plan *domain.Plan, task *domain.PlanTask) *RenderContext {
	vars := plan.Vars
	if vars == nil {
		vars = make(map[string]any)
	}

	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok {
			env[key] = value
		}
	}

	return &RenderContext{
		Vars: vars,
		Env:  env,
		Task: TaskRef{ID: task.ID, Name: task.Name, Category: task.Category},
	}
}

// templateFuncs — дополнительные функции для шаблонов.
var templateFuncs = template.FuncMap{
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return string(b)
	},

	// default — возвращает значение по умолчанию, если второй аргумент пустой
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},

	"lower":   strings.ToLower,
	"upper":   strings.ToUpper,
	"trim":    strings.TrimSpace,
	"replace": strings.ReplaceAll,
}

// Render рендерит строковый шаблон с контекстом.
// Строки без "{{" возвращаются как есть.
func Render(tmpl string, ctx *RenderContext) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("").Funcs(templateFuncs).Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	return buf.String(), nil
}

// RenderValue рендерит произвольное значение.
// Рекурсивно обрабатывает map и slice.
func RenderValue(value any, ctx *RenderContext) (any, error) {
	switch v := value.(type) {
	case string:
		return Render(v, ctx)

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			rendered, err := RenderValue(val, ctx)
			if err != nil {
				return nil, err
			}
			result[key] = rendered
		}
		return result, nil

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			rendered, err := RenderValue(val, ctx)
			if err != nil {
				return nil, err
			}
			result[i] = rendered
		}
		return result, nil

	default:
		return value, nil
	}
}

// RenderConfig рендерит конфигурацию task плана.
func RenderConfig(plan *domain.Plan, task *domain.PlanTask) (map[string]any, error) {
	if task.Config == nil {
		return make(map[string]any), nil
	}

	rendered, err := RenderValue(task.Config, NewRenderContext(plan, task))
	if err != nil {
		return nil, NewValidationError(task.ID, "config", err.Error(), err)
	}

	return rendered.(map[string]any), nil
}
