// Package cli реализует инструмент командной строки Conveyor.
//
// # Обзор
//
// Команды делятся на две группы.
//
// Локальные команды загружают план и выполняют его в этом процессе:
//   - run PLAN       — выполнить план до завершения, вывести результаты и статистику
//   - validate PLAN  — проверить план без выполнения
//   - serve PLAN     — HTTP API, /metrics и запуски плана по расписанию (--cron, --every)
//   - watch          — печать событий task.* и run.* из RabbitMQ
//
// Клиентские команды обращаются к API запущенного serve (--api-url):
//   - task list|show|result|cancel
//   - stats
//   - results RUN_ID — журнал прошлого запуска (нужен database.url на сервере)
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для API. Инкапсулирует запросы, разбор ответов
// (data, list, error) и превращает ответы 4xx/5xx в *APIError.
// Не импортирует internal/api: типы ответов продублированы.
//
//	client := cli.NewClient("http://localhost:8080")
//	tasks, err := client.ListTasks(ctx, cli.ListTasksOpts{Status: "failed"})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.Encoder с отступами) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) и логи — в stderr.
// Это позволяет использовать pipe: conveyor run plan.json --json | jq .stats
//
// ## Commands
//
// Каждая команда создаётся фабричной функцией (NewRunCmd, NewServeCmd и т.д.),
// принимающей замыкания cfgFn, clientFn и outputFn: конфигурация, клиент
// и Output создаются лениво, после разбора PersistentFlags.
package cli
