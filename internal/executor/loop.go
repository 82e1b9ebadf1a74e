package executor

import (
	"context"
	"errors"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/queue"
	"github.com/shaiso/Conveyor/internal/registry"
)

// TickReport — итог одного тика.
type TickReport struct {
	// Ready — количество готовых task на этом тике.
	Ready int

	// Admitted — принято в очередь допуска.
	Admitted int

	// Overflow — не поместилось в очередь; будут предложены снова.
	Overflow int

	// Dispatched — запущено в пуле.
	Dispatched int

	// Skipped — task, пропущенные каскадом на этом тике.
	Skipped []domain.TaskID

	// Waiting — task, ждущие окончания backoff.
	Waiting int

	// NextWake — ближайшее окончание backoff.
	NextWake time.Time

	// Blocked — task с незарегистрированной зависимостью.
	Blocked int

	// Pending — PENDING task, которые ещё могут запуститься.
	Pending int

	// Running — занятые слоты пула после тика.
	Running int

	// Quiescent — нет ни выполняющихся task, ни PENDING task, способных запуститься.
	Quiescent bool
}

// Tick выполняет один цикл resolve → admit → dispatch.
// Не ждёт завершения task.
func (e *Executor) Tick(ctx context.Context) TickReport {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	// Слот освобождается после обновления реестра, поэтому при нуле
	// занятых слотов резолвер видит все завершения.
	runningBefore := e.pool.Running()

	res := e.reg.Resolve(time.Now(), e.resolverOptions())
	e.stats.setBlocked(len(res.Blocked))

	report := TickReport{
		Ready:    len(res.Ready),
		Waiting:  res.Waiting,
		NextWake: res.NextWake,
		Blocked:  len(res.Blocked),
		Pending:  res.Pending,
	}

	for _, s := range res.Skipped {
		report.Skipped = append(report.Skipped, s.ID)
		e.log().Info("task skipped", "task_id", s.ID, "cause", s.Cause)
		e.finish(s.ID)
	}

	report.Admitted, report.Overflow = e.admit(res.Ready)
	if report.Overflow > 0 {
		e.log().Debug("admission queue full", "overflow", report.Overflow, "capacity", e.queue.Capacity())
	}

	report.Dispatched = e.dispatch(ctx)
	report.Running = e.pool.Running()
	report.Quiescent = runningBefore == 0 && res.Pending == 0

	return report
}

// admit ставит готовые task в очередь допуска в порядке резолвера.
func (e *Executor) admit(ready []domain.TaskID) (accepted, overflow int) {
	if len(ready) == 0 {
		return 0, 0
	}

	items := make([]queue.Item, 0, len(ready))
	for _, id := range ready {
		snap, err := e.reg.Get(id)
		if err != nil {
			continue
		}
		items = append(items, queue.Item{ID: id, Priority: snap.Spec.Priority, Seq: snap.Seq})
	}

	accepted, overflow = e.queue.Offer(items)

	queued := make([]domain.TaskID, accepted)
	for i := range queued {
		queued[i] = items[i].ID
	}
	e.reg.MarkQueued(queued)

	return accepted, overflow
}

// dispatch забирает task из очереди, пока в пуле есть слоты.
func (e *Executor) dispatch(ctx context.Context) int {
	dispatched := 0

	for e.pool.Available() > 0 {
		if ctx.Err() != nil {
			break
		}

		item, ok := e.queue.Pop()
		if !ok {
			break
		}

		started, err := e.pool.TryDispatch(func() (*registry.Run, error) {
			run, err := e.reg.BeginRun(e.baseCtx, item.ID)
			if err == nil {
				// До запуска goroutine, чтобы завершение не обогнало счётчик
				e.metrics.SetRunning(e.stats.started())
			}
			return run, err
		})
		if err != nil {
			switch {
			case errors.Is(err, registry.ErrInvalidTransition):
				e.log().Debug("dropping queued task", "task_id", item.ID, "error", err)
			default:
				e.log().Error("queued task missing from registry", "task_id", item.ID, "error", err)
			}
			continue
		}
		if !started {
			e.queue.Offer([]queue.Item{item})
			break
		}

		dispatched++
		e.log().Info("task started", "task_id", item.ID, "priority", item.Priority.String())
	}

	return dispatched
}

// RunToCompletion тикает до покоя и возвращает статистику.
//
// Между тиками ждёт сигнала об изменении состояния, окончания backoff
// или TickInterval, смотря что наступит раньше.
func (e *Executor) RunToCompletion(ctx context.Context) (Statistics, error) {
	e.log().Info("running to completion", "tasks", e.reg.Len(), "workers", e.cfg.WorkerCount)

	for {
		report := e.Tick(ctx)
		if report.Quiescent {
			stats := e.GetStatistics()
			e.log().Info("run complete",
				"submitted", stats.Submitted,
				"completed", stats.Completed,
				"failed", stats.Failed,
				"cancelled", stats.Cancelled,
				"skipped", stats.Skipped,
				"blocked", stats.Blocked,
			)
			return stats, nil
		}

		if err := e.wait(ctx, report); err != nil {
			return e.GetStatistics(), err
		}
	}
}

// wait ждёт следующего тика.
func (e *Executor) wait(ctx context.Context, report TickReport) error {
	delay := e.cfg.TickInterval
	if !report.NextWake.IsZero() {
		if until := time.Until(report.NextWake); until < delay {
			delay = max(until, 0)
		}
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.notify:
		return nil
	case <-timer.C:
		return nil
	}
}

// Start запускает фоновый цикл тиков.
// Цикл работает до Stop или отмены ctx.
func (e *Executor) Start(ctx context.Context) error {
	e.startedMu.Lock()
	defer e.startedMu.Unlock()

	if e.started {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancelFunc = cancel
	e.started = true

	e.log().Info("starting executor",
		"workers", e.pool.Size(),
		"queue_capacity", e.cfg.QueueCapacity,
		"tick_interval", e.cfg.TickInterval,
	)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.loop(ctx)
	}()

	return nil
}

// Stop останавливает фоновый цикл. Выполняющиеся task не прерываются.
func (e *Executor) Stop() {
	e.startedMu.Lock()
	if !e.started {
		e.startedMu.Unlock()
		return
	}
	e.started = false
	cancel := e.cancelFunc
	e.startedMu.Unlock()

	e.log().Info("stopping executor...")

	cancel()
	e.wg.Wait()

	e.log().Info("executor stopped", "running", e.pool.Running())
}

// IsStarted проверяет, работает ли фоновый цикл.
func (e *Executor) IsStarted() bool {
	e.startedMu.Lock()
	defer e.startedMu.Unlock()
	return e.started
}

// Wait ждёт завершения всех выполняющихся попыток.
func (e *Executor) Wait() {
	e.pool.Wait()
}

// loop — фоновый цикл тиков.
func (e *Executor) loop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		e.Tick(ctx)

		select {
		case <-ctx.Done():
			return
		case <-e.notify:
		case <-ticker.C:
		}
	}
}
