// Package config загружает конфигурацию Conveyor.
//
// Источники в порядке приоритета: переменные окружения CONVEYOR_*,
// файл конфигурации (yaml, json или toml), значения по умолчанию.
// Ключ executor.workers читается из CONVEYOR_EXECUTOR_WORKERS и т.д.
package config

import "time"

// Config — вся конфигурация приложения.
type Config struct {
	Executor ExecutorConfig `mapstructure:"executor"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	API      APIConfig      `mapstructure:"api"`
	AMQP     AMQPConfig     `mapstructure:"amqp"`
	Database DatabaseConfig `mapstructure:"database"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

// ExecutorConfig — настройки пула и планирования.
type ExecutorConfig struct {
	Workers             int           `mapstructure:"workers" validate:"gte=1,lte=1024"`
	QueueCapacity       int           `mapstructure:"queue_capacity" validate:"gte=1"`
	TickInterval        time.Duration `mapstructure:"tick_interval" validate:"gt=0"`
	DisableRetries      bool          `mapstructure:"disable_retries"`
	DisableDependencies bool          `mapstructure:"disable_dependencies"`
	DisablePriorities   bool          `mapstructure:"disable_priorities"`
}

// LogConfig — уровень и формат логов.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// MetricsConfig — Prometheus метрики.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// APIConfig — HTTP API режима serve.
type APIConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required,hostname_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// AMQPConfig — публикация событий в RabbitMQ. Пустой URL отключает публикацию.
type AMQPConfig struct {
	URL      string `mapstructure:"url" validate:"omitempty,url"`
	Exchange string `mapstructure:"exchange" validate:"required_with=URL"`
}

// DatabaseConfig — журнал результатов в PostgreSQL. Пустой URL отключает журнал.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// ScheduleConfig — периодический запуск плана в режиме serve.
// Cron и Every взаимоисключающие; без обоих план выполняется один раз.
type ScheduleConfig struct {
	Cron     string        `mapstructure:"cron" validate:"excluded_with=Every"`
	Every    time.Duration `mapstructure:"every" validate:"gte=0"`
	Timezone string        `mapstructure:"timezone"`
}

// Enabled возвращает true, если задано расписание.
func (s ScheduleConfig) Enabled() bool {
	return s.Cron != "" || s.Every > 0
}
