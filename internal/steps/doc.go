// Package steps содержит встроенные тела task для plan-файлов.
//
// # Обзор
//
// Шаг — исполнитель конкретного типа task. Каждый шаг:
//   - Получает конфигурацию (уже отрендеренную через engine.RenderConfig)
//   - Выполняет действие (HTTP запрос, задержка, трансформация, ошибка)
//   - Возвращает outputs, которые становятся Output результата task
//
// # Registry
//
// Registry — фабрика тел task по типу:
//
//	registry := steps.DefaultRegistry()  // http, delay, transform, fail
//	body, err := registry.Build(task.ID, task.Type, config, timeout)
//	if err != nil {
//	    // неизвестный тип
//	}
//	exec.RegisterTask(spec, body)
//
// Ошибка шага превращается в domain.Failure, поэтому retry и каскадный
// пропуск работают одинаково для всех типов.
//
// # Типы шагов
//
// http — HTTP запрос (method, url, headers, body, follow_redirects,
// validate_ssl, timeout_sec). Запрос ограничен таймаутом task. Статус
// >= 400 — *domain.TaskError поверх *HTTPError.
//
// delay — пауза (duration, duration_sec или duration_ms), прерывается ctx.
//
// transform — приводит значения mappings к типам JSON; без mappings
// возвращает конфигурацию.
//
// fail — всегда возвращает *domain.TaskError (message, severity, after_ms).
//
// # Обработка ошибок
//
//	var (
//	    ErrStepNotFound    // неизвестный тип
//	    ErrInvalidConfig   // неверная конфигурация
//	    ErrStepCancelled   // ctx отменён (SeverityInfo)
//	    ErrHTTPStatus      // HTTP статус >= 400
//	)
//
// Истёкший дедлайн ctx шаги возвращают как domain.ErrTimeout с
// SeverityWarning. Outputs delay и http
// содержат task_id и attempt.
//
// Retry логика находится в executor, шаги просто возвращают ошибки.
package steps
