package executor

import (
	"errors"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/registry"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/worker"
)

// handleCompletion обрабатывает итог попытки. Вызывается из goroutine
// воркера; единственное место, где попытка меняет реестр и статистику.
func (e *Executor) handleCompletion(c worker.Completion) {
	defer e.signal()

	running := e.stats.attemptDone()
	e.metrics.SetRunning(running)

	id := c.Spec.ID
	logger := telemetry.WithTaskID(e.log(), id.String())

	if c.Outcome.OK() {
		result, err := e.reg.Complete(id, c.Outcome, c.Duration)
		if err != nil {
			e.discard(c, err)
			return
		}
		logger.Info("task completed", "attempt", c.Attempt, "duration", c.Duration)
		e.record(result)
		return
	}

	decision := worker.Decide(c.Spec.Retry, c.Attempt, c.Outcome, !e.cfg.DisableRetries, time.Now())
	if decision.Retry {
		if err := e.reg.Retry(id, c.Outcome, c.Duration, decision.NotReadyUntil); err != nil {
			e.discard(c, err)
			return
		}
		e.stats.retried()
		e.metrics.TaskRetried(c.Spec.Category)

		logger.Warn("task attempt failed, retrying",
			"attempt", c.Attempt,
			"max_attempts", c.Spec.Retry.Attempts(),
			"delay", decision.Delay,
			"timed_out", c.TimedOut,
			"error", c.Outcome.Err,
		)
		return
	}

	result, err := e.reg.Fail(id, c.Outcome, c.Duration)
	if err != nil {
		e.discard(c, err)
		return
	}

	logger.Error("task failed",
		"attempt", c.Attempt,
		"timed_out", c.TimedOut,
		"panicked", c.Panicked,
		"severity", domain.SeverityOf(c.Outcome.Err),
		"error", c.Outcome.Err,
	)
	e.record(result)
}

// discard логирует отброшенный результат: task отменён во время
// выполнения или executor сброшен.
func (e *Executor) discard(c worker.Completion, err error) {
	if errors.Is(err, registry.ErrInvalidTransition) || errors.Is(err, registry.ErrNotFound) {
		e.log().Debug("discarding late result",
			"task_id", c.Spec.ID,
			"attempt", c.Attempt,
			"reason", err,
		)
		return
	}
	e.log().Error("failed to record task result", "task_id", c.Spec.ID, "error", err)
}
