package domain

// Plan — набор task для executor'а, описанный в JSON-файле.
//
// Это "программа" для Conveyor: CLI читает план, строит тела task
// по их типу и регистрирует всё в executor.
type Plan struct {
	// Name — имя плана (для логов и отчётов).
	Name string `json:"name,omitempty"`

	// Description — описание назначения плана.
	Description string `json:"description,omitempty"`

	// Vars — переменные, доступные в config task как {{ .Vars.name }}.
	Vars map[string]any `json:"vars,omitempty"`

	// Defaults — настройки по умолчанию для всех task.
	Defaults *PlanDefaults `json:"defaults,omitempty"`

	// Tasks — список task.
	Tasks []PlanTask `json:"tasks"`
}

// PlanDefaults — настройки по умолчанию для task плана.
type PlanDefaults struct {
	// Retry — политика повторных попыток.
	Retry *PlanRetry `json:"retry,omitempty"`

	// TimeoutMs — таймаут выполнения в миллисекундах.
	TimeoutMs int `json:"timeout_ms,omitempty"`

	// Priority — приоритет по умолчанию.
	Priority string `json:"priority,omitempty"`
}

// PlanTask — определение task в плане.
type PlanTask struct {
	// ID — уникальный идентификатор task в рамках плана.
	ID string `json:"id"`

	// Name — человекочитаемое имя.
	Name string `json:"name,omitempty"`

	// Type — тип тела: "http", "delay", "transform", "fail".
	Type string `json:"type"`

	// Priority — "low", "normal", "high", "critical".
	Priority string `json:"priority,omitempty"`

	// Category — категория task.
	Category string `json:"category,omitempty"`

	// DependsOn — список ID task, от которых зависит этот task.
	DependsOn []string `json:"depends_on,omitempty"`

	// Retry — политика повторных попыток. Переопределяет defaults.retry.
	Retry *PlanRetry `json:"retry,omitempty"`

	// TimeoutMs — таймаут в миллисекундах. Переопределяет defaults.timeout_ms.
	TimeoutMs int `json:"timeout_ms,omitempty"`

	// Tags — набор тегов.
	Tags []string `json:"tags,omitempty"`

	// Metadata — произвольные метаданные.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Config — конфигурация тела (зависит от типа).
	// Для http: method, url, headers, body, timeout_sec
	// Для delay: duration_ms или duration_sec
	Config map[string]any `json:"config,omitempty"`
}

// PlanRetry — политика повторных попыток в JSON-форме.
type PlanRetry struct {
	// MaxAttempts — максимальное количество попыток (включая первую).
	MaxAttempts int `json:"max_attempts,omitempty"`

	// BaseDelayMs — начальная задержка в миллисекундах.
	BaseDelayMs int `json:"base_delay_ms,omitempty"`

	// BackoffMultiplier — множитель задержки.
	BackoffMultiplier float64 `json:"backoff_multiplier,omitempty"`

	// MaxDelayMs — максимальная задержка в миллисекундах.
	MaxDelayMs int `json:"max_delay_ms,omitempty"`
}
