package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Ошибки расписания.
var (
	// ErrNoSchedule — не задан ни cron, ни интервал.
	ErrNoSchedule = errors.New("schedule has neither cron expression nor interval")

	// ErrAmbiguousSchedule — заданы и cron, и интервал.
	ErrAmbiguousSchedule = errors.New("schedule has both cron expression and interval")

	// ErrInvalidInterval — интервал не положителен.
	ErrInvalidInterval = errors.New("schedule interval must be positive")
)

// cronParser — парсер cron-выражений (5 полей и дескрипторы вида @hourly).
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Schedule — расписание повторных запусков плана.
// Задаётся ровно одно из CronExpr и Every.
type Schedule struct {
	// CronExpr — cron-выражение, например "*/5 * * * *".
	CronExpr string

	// Every — фиксированный интервал между запусками.
	Every time.Duration

	// Timezone — IANA-имя зоны для cron (default: UTC).
	Timezone string
}

// IsZero возвращает true, если расписание не задано.
func (s Schedule) IsZero() bool {
	return !s.IsCron() && !s.IsInterval()
}

// IsCron возвращает true, если расписание задано cron-выражением.
func (s Schedule) IsCron() bool {
	return s.CronExpr != ""
}

// IsInterval возвращает true, если расписание задано интервалом.
func (s Schedule) IsInterval() bool {
	return s.Every != 0
}

// Validate проверяет расписание.
func (s Schedule) Validate() error {
	switch {
	case s.IsCron() && s.IsInterval():
		return ErrAmbiguousSchedule
	case s.IsCron():
		return ValidateCronExpr(s.CronExpr)
	case s.IsInterval():
		if s.Every < 0 {
			return fmt.Errorf("%w: %s", ErrInvalidInterval, s.Every)
		}
		return nil
	default:
		return ErrNoSchedule
	}
}

// NextDue вычисляет следующее время запуска после from.
// Невалидная timezone заменяется на UTC.
func (s Schedule) NextDue(from time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		loc = time.UTC
	}
	fromInTz := from.In(loc)

	if s.IsCron() {
		return calculateNextCron(s.CronExpr, fromInTz)
	}

	if s.IsInterval() {
		if s.Every < 0 {
			return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidInterval, s.Every)
		}
		return calculateNextInterval(s.Every, fromInTz), nil
	}

	return time.Time{}, ErrNoSchedule
}

// String возвращает человекочитаемое описание расписания.
func (s Schedule) String() string {
	switch {
	case s.IsCron():
		return "cron " + s.CronExpr
	case s.IsInterval():
		return "every " + s.Every.String()
	default:
		return "none"
	}
}

// calculateNextCron вычисляет следующее время по cron-выражению.
func calculateNextCron(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}

	return schedule.Next(from).UTC(), nil
}

// calculateNextInterval вычисляет следующее время по интервалу.
func calculateNextInterval(every time.Duration, from time.Time) time.Time {
	return from.Add(every).UTC()
}

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(cronExpr string) error {
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}
