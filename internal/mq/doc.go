// Package mq публикует события Conveyor в RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — topic exchange, постоянные очереди, очередь watch
//   - publisher.go  — конверт Message и публикация в exchange
//   - notifier.go   — Notifier, observer executor'а
//   - consumer.go   — DecodeEvent и Consumer (команда watch); task.* разбираются в domain.ExecutionResult
//
// Routing keys:
//   - task.completed, task.failed, task.cancelled, task.skipped — результат task
//   - run.finished — итог запуска плана
//
// Очереди:
//   - conveyor.task.results  — task.*
//   - conveyor.task.failures — task.failed
//   - conveyor.runs          — run.*
package mq
