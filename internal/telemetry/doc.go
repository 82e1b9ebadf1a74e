// Package telemetry обеспечивает наблюдаемость executor'а.
//
// Включает:
//   - logging.go — structured logging через slog (уровень и формат из config)
//   - metrics.go — Prometheus метрики, реализующие executor.Metrics
//
// Метрики экспортируются на /metrics endpoint в режиме serve.
package telemetry
