package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

const (
	// StepTypeFail — тип шага, который всегда завершается ошибкой.
	StepTypeFail = "fail"

	configMessage  = "message"
	configSeverity = "severity"
	configAfterMs  = "after_ms"

	defaultFailMessage = "fail step"
)

// FailStep — шаг для учений: всегда возвращает ошибку.
//
// Нужен, чтобы проверить retry и каскадный пропуск на реальном плане.
//
// Конфигурация:
//
//	{
//	    "message": "upstream unavailable",
//	    "severity": "warning",   // info | warning | error | critical
//	    "after_ms": 200          // задержка перед ошибкой
//	}
type FailStep struct{}

// NewFailStep создаёт новый FailStep.
func NewFailStep() *FailStep {
	return &FailStep{}
}

// Type возвращает тип шага.
func (s *FailStep) Type() string {
	return StepTypeFail
}

// Execute ждёт after_ms и возвращает *domain.TaskError.
func (s *FailStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	message := GetConfigString(req.Config, configMessage)
	if message == "" {
		message = defaultFailMessage
	}

	severity, err := s.parseSeverity(req.Config)
	if err != nil {
		return nil, err
	}

	if ms := GetConfigInt(req.Config, configAfterMs); ms > 0 {
		if err := sleep(ctx, time.Duration(ms)*time.Millisecond); err != nil {
			return nil, interrupted(ctx, StepTypeFail)
		}
	}

	return nil, domain.NewTaskError(severity, message, nil)
}

func (s *FailStep) parseSeverity(config map[string]any) (domain.Severity, error) {
	sev := domain.Severity(GetConfigString(config, configSeverity))
	switch sev {
	case "":
		return domain.SeverityError, nil
	case domain.SeverityInfo, domain.SeverityWarning, domain.SeverityError, domain.SeverityCritical:
		return sev, nil
	default:
		return "", fmt.Errorf("%w: %s: unknown severity %q", ErrInvalidConfig, StepTypeFail, sev)
	}
}
