package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/steps"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// ErrNoPlan — Runner создан без плана или реестра шагов.
var ErrNoPlan = errors.New("scheduler: plan and step registry are required")

// Target — executor, в котором запускается план.
type Target interface {
	steps.TaskRegistrar
	Reset()
	RunToCompletion(ctx context.Context) (executor.Statistics, error)
	RunID() uuid.UUID
}

// Report — итог одного запуска плана.
type Report struct {
	RunID      uuid.UUID           `json:"run_id"`
	Plan       string              `json:"plan"`
	Stats      executor.Statistics `json:"stats"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
}

// Runner — периодически перезапускает план по расписанию.
type Runner struct {
	target   Target
	plan     *domain.Plan
	steps    *steps.Registry
	schedule Schedule
	onFinish func(ctx context.Context, report Report) error
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	nextDue time.Time
	runs    int

	// done — запуск без расписания уже выполнен.
	done bool
}

// Config — конфигурация Runner.
type Config struct {
	Target   Target
	Plan     *domain.Plan
	Steps    *steps.Registry
	Schedule Schedule

	// RunImmediately — первый запуск на первом тике, не дожидаясь расписания.
	// С пустым Schedule план выполняется ровно один раз.
	RunImmediately bool

	// OnRunFinished вызывается после каждого запуска (опционально).
	// Ошибка логируется и не прерывает расписание.
	OnRunFinished func(ctx context.Context, report Report) error

	Logger *slog.Logger

	// Now — источник времени (default: time.Now).
	Now func() time.Time
}

// New создаёт Runner и вычисляет время первого запуска.
func New(cfg Config) (*Runner, error) {
	if cfg.Plan == nil || cfg.Steps == nil || cfg.Target == nil {
		return nil, ErrNoPlan
	}
	once := cfg.Schedule.IsZero() && cfg.RunImmediately
	if !once {
		if err := cfg.Schedule.Validate(); err != nil {
			return nil, err
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	r := &Runner{
		target:   cfg.Target,
		plan:     cfg.Plan,
		steps:    cfg.Steps,
		schedule: cfg.Schedule,
		onFinish: cfg.OnRunFinished,
		logger:   telemetry.WithPlan(logger, cfg.Plan.Name),
		now:      now,
	}

	if cfg.RunImmediately {
		r.nextDue = now()
	} else {
		next, err := cfg.Schedule.NextDue(now())
		if err != nil {
			return nil, err
		}
		r.nextDue = next
	}

	return r, nil
}

// NextDue возвращает время следующего запуска.
func (r *Runner) NextDue() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextDue
}

// Runs возвращает количество выполненных запусков.
func (r *Runner) Runs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

// Tick выполняет запуск, если наступило время.
//
// 1. Сбрасывает executor (новый run_id)
// 2. Регистрирует task плана заново
// 3. Выполняет план до завершения
// 4. Вызывает OnRunFinished
// 5. Вычисляет следующее время от момента завершения
//
// Возвращает nil, nil, если время ещё не наступило.
// Ошибка запуска не останавливает расписание.
func (r *Runner) Tick(ctx context.Context) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done || r.now().Before(r.nextDue) {
		return nil, nil
	}

	report, runErr := r.runOnce(ctx)
	r.runs++

	if r.schedule.IsZero() {
		r.done = true
		return report, runErr
	}

	next, err := r.schedule.NextDue(r.now())
	if err != nil {
		return report, errors.Join(runErr, fmt.Errorf("calculate next due: %w", err))
	}
	r.nextDue = next

	r.logger.Debug("next run scheduled",
		"schedule", r.schedule.String(),
		"next_due_at", next,
	)

	return report, runErr
}

// runOnce выполняет один запуск плана.
func (r *Runner) runOnce(ctx context.Context) (*Report, error) {
	started := r.now()

	r.target.Reset()
	runID := r.target.RunID()

	n, err := r.steps.RegisterPlan(r.plan, r.target)
	if err != nil {
		r.logger.Error("failed to register plan",
			"run_id", runID,
			"registered", n,
			"error", err,
		)
		return nil, fmt.Errorf("register plan: %w", err)
	}

	r.logger.Info("scheduled run started",
		"run_id", runID,
		"tasks", n,
	)

	stats, err := r.target.RunToCompletion(ctx)
	report := &Report{
		RunID:      runID,
		Plan:       r.plan.Name,
		Stats:      stats,
		StartedAt:  started,
		FinishedAt: r.now(),
	}
	if err != nil {
		r.logger.Warn("scheduled run interrupted",
			"run_id", runID,
			"error", err,
		)
		return report, err
	}

	r.logger.Info("scheduled run finished",
		"run_id", runID,
		"completed", stats.Completed,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"cancelled", stats.Cancelled,
		"blocked", stats.Blocked,
		"duration", report.FinishedAt.Sub(started),
	)

	if r.onFinish != nil {
		if err := r.onFinish(ctx, *report); err != nil {
			// Не фатально: запуск уже выполнен
			r.logger.Warn("run finished hook failed",
				"run_id", runID,
				"error", err,
			)
		}
	}

	return report, nil
}

// Done возвращает true, если однократный запуск выполнен.
func (r *Runner) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Run вызывает Tick по расписанию до отмены ctx.
// Возвращает nil при отмене ctx или после однократного запуска.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("scheduler started",
		"schedule", r.schedule.String(),
		"next_due_at", r.NextDue(),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("scheduler stopped", "runs", r.Runs())
			return nil
		case <-timer.C:
		}

		if _, err := r.Tick(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("scheduler tick failed", "error", err)
		}
		if r.Done() {
			r.logger.Info("scheduler finished", "runs", r.Runs())
			return nil
		}

		timer.Reset(max(time.Until(r.NextDue()), 0))
	}
}
