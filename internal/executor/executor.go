package executor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/queue"
	"github.com/shaiso/Conveyor/internal/registry"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/worker"
)

// Default configuration values.
const (
	DefaultWorkerCount   = worker.DefaultSize
	DefaultQueueCapacity = queue.DefaultCapacity
	DefaultTickInterval  = 10 * time.Millisecond
)

// Config — конфигурация Executor.
type Config struct {
	// WorkerCount — количество слотов пула (default: 4).
	WorkerCount int

	// QueueCapacity — ёмкость очереди допуска (default: 1000).
	QueueCapacity int

	// TickInterval — максимальная пауза между тиками (default: 10ms).
	TickInterval time.Duration

	// DisableRetries — неуспешная попытка сразу даёт FAILED.
	DisableRetries bool

	// DisableDependencies — зависимости игнорируются.
	DisableDependencies bool

	// DisablePriorities — готовые task допускаются в порядке регистрации.
	DisablePriorities bool

	// Logger (опционально; nil — логи отбрасываются)
	Logger *slog.Logger

	// Metrics (опционально)
	Metrics Metrics

	// Observers получают результаты финальных task.
	Observers []Observer
}

// Executor — параллельный исполнитель task с зависимостями.
//
// Каждый тик: резолвер вычисляет готовые и пропущенные task, готовые
// попадают в очередь допуска по приоритету, пул забирает их, пока есть
// свободные слоты. Завершение попытки обновляет реестр, консультирует
// retry-контроллер и статистику; следующий тик видит новое состояние.
type Executor struct {
	cfg Config

	reg   *registry.Registry
	queue *queue.Queue
	pool  *worker.Pool
	stats *statsAggregator

	metrics   Metrics
	observers []Observer
	logger    *slog.Logger

	// baseCtx — родитель ctx всех попыток; Stop его не отменяет.
	baseCtx context.Context

	// tickMu сериализует тики и Reset.
	tickMu sync.Mutex

	// notify получает сигнал при каждом изменении состояния.
	notify chan struct{}

	// Lifecycle
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	started    bool
	startedMu  sync.Mutex
}

// New создаёт Executor с собственным реестром.
func New(cfg Config) *Executor {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}

	e := &Executor{
		cfg:       cfg,
		reg:       registry.New(uuid.New()),
		queue:     queue.New(cfg.QueueCapacity, !cfg.DisablePriorities),
		stats:     newStatsAggregator(cfg.WorkerCount),
		metrics:   metrics,
		observers: cfg.Observers,
		logger:    logger,
		baseCtx:   context.Background(),
		notify:    make(chan struct{}, 1),
	}
	e.pool = worker.NewPool(cfg.WorkerCount, e.handleCompletion, logger)

	return e
}

// RegisterTask регистрирует task в статусе PENDING.
// Дубликат ID возвращает ErrDuplicateTask; состояние не меняется.
func (e *Executor) RegisterTask(spec domain.TaskSpec, body domain.Executable) error {
	if err := e.reg.Register(spec, body); err != nil {
		e.log().Warn("task registration rejected", "task_id", spec.ID, "error", err)
		return err
	}

	e.stats.submitted()
	e.metrics.TaskSubmitted(spec.Category)

	e.log().Debug("task registered",
		"task_id", spec.ID,
		"name", spec.DisplayName(),
		"priority", spec.Priority.String(),
		"depends_on", spec.DependsOn,
	)

	e.signal()
	return nil
}

// CancelTask отменяет task и каскадно пропускает зависимые.
//
// PENDING task отменяется сразу. Для RUNNING отменяется ctx тела;
// поздний результат будет отброшен.
func (e *Executor) CancelTask(id domain.TaskID) error {
	skipped, err := e.reg.Cancel(id)
	if err != nil {
		return err
	}
	e.queue.Remove(id)

	e.log().Info("task cancelled", "task_id", id, "skipped", len(skipped))

	e.finish(id)
	for _, s := range skipped {
		e.queue.Remove(s)
		e.log().Info("task skipped", "task_id", s, "cause", id)
		e.finish(s)
	}

	e.signal()
	return nil
}

// GetStatus возвращает статус task.
func (e *Executor) GetStatus(id domain.TaskID) (domain.TaskStatus, error) {
	return e.reg.Status(id)
}

// GetResult возвращает результат task.
// До финального статуса возвращает ErrNotTerminal.
func (e *Executor) GetResult(id domain.TaskID) (domain.ExecutionResult, error) {
	return e.reg.Result(id)
}

// GetTask возвращает спецификацию и состояние task.
func (e *Executor) GetTask(id domain.TaskID) (registry.Snapshot, error) {
	return e.reg.Get(id)
}

// Tasks возвращает все task в порядке регистрации.
func (e *Executor) Tasks() []registry.Snapshot {
	return e.reg.Snapshot()
}

// GetStatistics возвращает текущую статистику.
func (e *Executor) GetStatistics() Statistics {
	return e.stats.snapshot()
}

// RunID возвращает идентификатор текущего запуска.
func (e *Executor) RunID() uuid.UUID {
	return e.reg.RunID()
}

// Reset удаляет все task и статистику и начинает новый запуск.
// Выполняющиеся тела получают отмену ctx; их результаты отбрасываются.
func (e *Executor) Reset() {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	e.reg.Reset(uuid.New())
	e.queue.Clear()
	e.pool.Wait()
	e.stats.reset()
	e.metrics.SetRunning(0)

	e.log().Info("executor reset")
}

// finish сообщает observer'ам и метрикам о финальном task.
func (e *Executor) finish(id domain.TaskID) {
	result, err := e.reg.Result(id)
	if err != nil {
		e.log().Error("terminal task has no result", "task_id", id, "error", err)
		return
	}
	e.record(result)
}

// record обновляет статистику, метрики и observer'ов. Вызывается без блокировок.
func (e *Executor) record(result domain.ExecutionResult) {
	e.stats.finished(result.Status, result.Duration)
	e.metrics.TaskFinished(result.Status, result.Category, result.Duration)

	for _, o := range e.observers {
		if err := o.TaskFinished(e.baseCtx, result); err != nil {
			e.log().Warn("observer failed",
				"task_id", result.ID,
				"status", result.Status,
				"error", err,
			)
		}
	}
}

// signal будит RunToCompletion и фоновый цикл.
func (e *Executor) signal() {
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

func (e *Executor) log() *slog.Logger {
	return telemetry.WithRunID(e.logger, e.reg.RunID().String())
}

func (e *Executor) resolverOptions() engine.Options {
	return engine.Options{
		IgnoreDependencies: e.cfg.DisableDependencies,
		IgnorePriority:     e.cfg.DisablePriorities,
	}
}
