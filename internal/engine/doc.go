// Package engine содержит чистую логику планирования.
//
// Включает:
//   - resolver.go — вычисление готовых task и каскадного SKIPPED за один тик
//   - graph.go    — топологическая сортировка и поиск циклов
//   - parser.go   — разбор и валидация JSON-плана
//   - template.go — рендеринг config task ({{ .Vars.x }}, {{ .Env.X }})
//
// Пакет не хранит состояние и не запускает goroutine: registry передаёт
// снимок task, engine возвращает решение.
package engine
