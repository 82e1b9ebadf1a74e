// Package scheduler перезапускает план по расписанию.
//
// Расписание задаётся cron-выражением или фиксированным интервалом.
// Каждый запуск сбрасывает executor, регистрирует task плана заново и
// выполняет их до завершения; новый запуск получает новый run_id.
//
// Структура:
//   - scheduler.go — Runner (Tick, Run)
//   - cron.go      — Schedule и вычисление следующего времени
//
// Использование:
//
//	runner, err := scheduler.New(scheduler.Config{
//	    Target:         exec,
//	    Plan:           plan,
//	    Steps:          steps.DefaultRegistry(),
//	    Schedule:       scheduler.Schedule{CronExpr: "*/5 * * * *"},
//	    RunImmediately: true,
//	    Logger:         logger,
//	})
//	if err != nil {
//	    return err
//	}
//
//	// Блокируется до отмены ctx
//	return runner.Run(ctx)
//
// Запуски не перекрываются: следующее время считается от момента
// завершения предыдущего запуска, пропущенные срабатывания не догоняются.
package scheduler
