package telemetry

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/Conveyor/internal/domain"
)

const metricsNamespace = "conveyor"

// Metrics — Prometheus метрики executor'а.
//
// Реализует executor.Metrics. Категория task используется как label;
// пустая категория пишется как "default".
type Metrics struct {
	submitted *prometheus.CounterVec
	finished  *prometheus.CounterVec
	retried   *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	running   prometheus.Gauge
}

// NewMetrics создаёт метрики и регистрирует их в reg.
// Повторная регистрация переиспользует уже зарегистрированные коллекторы.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		submitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "tasks_submitted_total",
				Help:      "Total number of registered tasks.",
			},
			[]string{"category"},
		),
		finished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "tasks_finished_total",
				Help:      "Total number of tasks by terminal status.",
			},
			[]string{"category", "status"},
		),
		retried: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "task_retries_total",
				Help:      "Total number of failed attempts that were retried.",
			},
			[]string{"category"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "task_duration_seconds",
				Help:      "Duration of the final attempt of completed and failed tasks.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"category", "status"},
		),
		running: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "tasks_running",
				Help:      "Number of tasks currently executing.",
			},
		),
	}

	var err error
	if m.submitted, err = register(reg, m.submitted); err != nil {
		return nil, err
	}
	if m.finished, err = register(reg, m.finished); err != nil {
		return nil, err
	}
	if m.retried, err = register(reg, m.retried); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.running, err = register(reg, m.running); err != nil {
		return nil, err
	}

	return m, nil
}

// register регистрирует коллектор; при AlreadyRegisteredError возвращает существующий.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// TaskSubmitted увеличивает счётчик зарегистрированных task.
func (m *Metrics) TaskSubmitted(category string) {
	m.submitted.WithLabelValues(label(category)).Inc()
}

// TaskFinished учитывает финальный статус.
// Длительность пишется только для task, которые выполнялись.
func (m *Metrics) TaskFinished(status domain.TaskStatus, category string, d time.Duration) {
	m.finished.WithLabelValues(label(category), status.String()).Inc()
	if status == domain.TaskStatusCompleted || status == domain.TaskStatusFailed {
		m.duration.WithLabelValues(label(category), status.String()).Observe(d.Seconds())
	}
}

// TaskRetried увеличивает счётчик повторов.
func (m *Metrics) TaskRetried(category string) {
	m.retried.WithLabelValues(label(category)).Inc()
}

// SetRunning устанавливает количество выполняющихся task.
func (m *Metrics) SetRunning(n int) {
	m.running.Set(float64(n))
}

func label(category string) string {
	if category == "" {
		return "default"
	}
	return category
}
