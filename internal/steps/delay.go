package steps

import (
	"context"
	"fmt"
	"time"
)

const (
	// StepTypeDelay — тип шага задержки.
	StepTypeDelay = "delay"

	configDuration    = "duration"
	configDurationSec = "duration_sec"
	configDurationMs  = "duration_ms"
)

// DelayStep держит слот пула заданное время.
//
// Заменяет в плане долгую работу и помогает проверить таймауты: если
// duration больше таймаута task, попытка завершается domain.ErrTimeout.
//
//	{"duration": "1.5s"} | {"duration_sec": 10} | {"duration_ms": 5000}
//
// Outputs: duration_ms (запрошенная пауза), slept_ms, task_id, attempt.
type DelayStep struct{}

// NewDelayStep создаёт новый DelayStep.
func NewDelayStep() *DelayStep {
	return &DelayStep{}
}

// Type возвращает тип шага.
func (s *DelayStep) Type() string {
	return StepTypeDelay
}

// Execute ждёт duration или остановки ctx.
func (s *DelayStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	d, err := delayDuration(req.Config)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	if err := sleep(ctx, d); err != nil {
		return nil, interrupted(ctx, StepTypeDelay)
	}

	return traced(ctx, req, map[string]any{
		"duration_ms": d.Milliseconds(),
		"slept_ms":    time.Since(started).Milliseconds(),
	}), nil
}

// delayDuration читает паузу: duration, затем duration_sec, затем duration_ms.
func delayDuration(config map[string]any) (time.Duration, error) {
	if raw := GetConfigString(config, configDuration); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return 0, fmt.Errorf("%w: %s: bad duration %q", ErrInvalidConfig, StepTypeDelay, raw)
		}
		return d, nil
	}
	if sec := GetConfigInt(config, configDurationSec); sec > 0 {
		return time.Duration(sec) * time.Second, nil
	}
	if ms := GetConfigInt(config, configDurationMs); ms > 0 {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return 0, fmt.Errorf("%w: %s: one of duration, duration_sec, duration_ms is required",
		ErrInvalidConfig, StepTypeDelay)
}
