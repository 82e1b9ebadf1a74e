package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix — префикс переменных окружения.
const EnvPrefix = "CONVEYOR"

// ErrInvalidConfig — конфигурация не прошла валидацию.
var ErrInvalidConfig = errors.New("invalid configuration")

// Default возвращает конфигурацию по умолчанию.
func Default() Config {
	return Config{
		Executor: ExecutorConfig{
			Workers:       4,
			QueueCapacity: 1000,
			TickInterval:  10 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		API: APIConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		AMQP: AMQPConfig{
			Exchange: "conveyor.events",
		},
		Schedule: ScheduleConfig{
			Timezone: "UTC",
		},
	}
}

// Load читает конфигурацию из файла path (если задан) и окружения,
// затем проверяет её.
func Load(path string) (*Config, error) {
	return load(viper.New(), path)
}

// LoadWith использует переданный экземпляр viper, например с привязанными флагами cobra.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	return load(v, path)
}

func load(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate проверяет конфигурацию по тегам validate.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// setDefaults регистрирует каждый ключ, иначе AutomaticEnv не увидит его при Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("executor.workers", d.Executor.Workers)
	v.SetDefault("executor.queue_capacity", d.Executor.QueueCapacity)
	v.SetDefault("executor.tick_interval", d.Executor.TickInterval)
	v.SetDefault("executor.disable_retries", d.Executor.DisableRetries)
	v.SetDefault("executor.disable_dependencies", d.Executor.DisableDependencies)
	v.SetDefault("executor.disable_priorities", d.Executor.DisablePriorities)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)

	v.SetDefault("api.addr", d.API.Addr)
	v.SetDefault("api.read_timeout", d.API.ReadTimeout)
	v.SetDefault("api.write_timeout", d.API.WriteTimeout)
	v.SetDefault("api.shutdown_timeout", d.API.ShutdownTimeout)

	v.SetDefault("amqp.url", d.AMQP.URL)
	v.SetDefault("amqp.exchange", d.AMQP.Exchange)

	v.SetDefault("database.url", d.Database.URL)

	v.SetDefault("schedule.cron", d.Schedule.Cron)
	v.SetDefault("schedule.every", d.Schedule.Every)
	v.SetDefault("schedule.timezone", d.Schedule.Timezone)
}
