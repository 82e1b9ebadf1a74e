package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/scheduler"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// ErrTasksFailed — запуск завершился, но часть task в FAILED.
var ErrTasksFailed = errors.New("some tasks failed")

// ConfigFunc загружает конфигурацию после разбора флагов.
type ConfigFunc func() (*config.Config, error)

// app — собранные зависимости команд run и serve.
// Каждый приёмник опционален и включается конфигурацией.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	metricsReg *prometheus.Registry
	metrics    *telemetry.Metrics

	results  *repo.ResultRepo
	notifier *mq.Notifier

	closers []func()
}

// newApp создаёт логгер, метрики и подключает журнал и RabbitMQ, если заданы.
func newApp(ctx context.Context, cfg *config.Config, logW io.Writer) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: telemetry.NewLogger(logW, cfg.Log.Level, cfg.Log.Format),
	}

	if cfg.Metrics.Enabled {
		a.metricsReg = prometheus.NewRegistry()
		a.metricsReg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		m, err := telemetry.NewMetrics(a.metricsReg)
		if err != nil {
			return nil, fmt.Errorf("setup metrics: %w", err)
		}
		a.metrics = m
	}

	if cfg.Database.URL != "" {
		pool, err := repo.NewPool(ctx, cfg.Database.URL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		results := repo.NewResultRepo(pool)
		if err := results.EnsureSchema(ctx); err != nil {
			a.close()
			return nil, err
		}
		a.results = results
		a.logger.Info("result journal enabled")
	}

	if cfg.AMQP.URL != "" {
		conn, err := mq.NewConnection(cfg.AMQP.URL, a.logger)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect to rabbitmq: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := conn.Close(); err != nil {
				a.logger.Warn("close rabbitmq connection", "error", err)
			}
		})

		if err := mq.SetupTopology(ctx, conn, cfg.AMQP.Exchange); err != nil {
			a.close()
			return nil, err
		}
		publisher := mq.NewPublisher(conn, cfg.AMQP.Exchange, a.logger)
		a.notifier = mq.NewNotifier(publisher)
		a.logger.Info("event publishing enabled", "exchange", publisher.Exchange())
	}

	return a, nil
}

// newExecutor создаёт Executor с подключёнными приёмниками.
func (a *app) newExecutor(extra ...executor.Observer) *executor.Executor {
	observers := append([]executor.Observer(nil), extra...)
	if a.results != nil {
		observers = append(observers, a.results)
	}
	if a.notifier != nil {
		observers = append(observers, a.notifier)
	}

	cfg := executor.Config{
		WorkerCount:         a.cfg.Executor.Workers,
		QueueCapacity:       a.cfg.Executor.QueueCapacity,
		TickInterval:        a.cfg.Executor.TickInterval,
		DisableRetries:      a.cfg.Executor.DisableRetries,
		DisableDependencies: a.cfg.Executor.DisableDependencies,
		DisablePriorities:   a.cfg.Executor.DisablePriorities,
		Logger:              a.logger,
		Observers:           observers,
	}
	if a.metrics != nil {
		cfg.Metrics = a.metrics
	}

	return executor.New(cfg)
}

// metricsHandler возвращает обработчик /metrics или nil, если метрики выключены.
func (a *app) metricsHandler() http.Handler {
	if a.metricsReg == nil {
		return nil
	}
	return promhttp.HandlerFor(a.metricsReg, promhttp.HandlerOpts{Registry: a.metricsReg})
}

// runFinished публикует итог запуска, если публикация включена.
func (a *app) runFinished(ctx context.Context, report scheduler.Report) error {
	if a.notifier == nil {
		return nil
	}
	return a.notifier.RunFinished(ctx, mq.RunFinishedPayload{
		RunID:      report.RunID,
		Plan:       report.Plan,
		Stats:      report.Stats,
		FinishedAt: report.FinishedAt,
	})
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// loadPlan читает и валидирует файл плана.
func loadPlan(path string) (*domain.Plan, error) {
	return engine.LoadPlan(path)
}

// collectResults возвращает результаты финальных task в порядке регистрации.
func collectResults(exec *executor.Executor) []domain.ExecutionResult {
	tasks := exec.Tasks()
	results := make([]domain.ExecutionResult, 0, len(tasks))
	for _, t := range tasks {
		res, err := exec.GetResult(t.Spec.ID)
		if err != nil {
			continue
		}
		results = append(results, res)
	}
	return results
}
