// Package worker выполняет тела task в пуле с фиксированным числом слотов.
//
// # Обзор
//
// Pool не знает о зависимостях и приоритетах: executor решает, какой task
// запускать, и передаёт его в TryDispatch. Пул отвечает за:
//
//   - Ограничение параллелизма (не больше Size() тел одновременно)
//   - Таймаут попытки через context.WithTimeout
//   - Перехват паник тела (panic становится Failure)
//   - Доставку Completion обратно в executor до освобождения слота
//
// # Ключевые компоненты
//
// ## Pool
//
//	pool := worker.NewPool(4, exec.handleCompletion, logger)
//	ok, err := pool.TryDispatch(func() (*registry.Run, error) {
//	    return reg.Begin(id)
//	})
//
// begin вызывается только при наличии свободного слота, поэтому task
// переходит в RUNNING тогда и только тогда, когда для него есть место.
//
// ## Retry
//
// Decide — чистая функция retry-контроллера: по политике, номеру попытки
// и Outcome решает, повторять ли task и с какой задержкой (экспоненциальный
// backoff с верхней границей MaxDelay).
package worker
