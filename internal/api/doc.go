// Package api содержит HTTP API управления executor'ом (режим serve).
//
// Структура:
//   - handler.go      — Handler с зависимостями (TaskService, ResultStore, logger)
//   - routes.go       — chi router и регистрация маршрутов
//   - middleware.go   — logging и recovery
//   - response.go     — унифицированные JSON-ответы и маппинг ошибок
//   - dto.go          — Data Transfer Objects
//   - task_handler.go — обработчики /tasks, /stats, /runs
//
// Ошибки executor'а: ErrNotFound → 404, ErrAlreadyTerminal → 409,
// ErrNotTerminal → 422.
package api
