package worker

import (
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Decision — решение по неуспешной попытке.
type Decision struct {
	// Retry — вернуть task в PENDING; иначе он окончательно FAILED.
	Retry bool

	// Delay — backoff перед следующей попыткой.
	Delay time.Duration

	// NotReadyUntil — now + Delay.
	NotReadyUntil time.Time
}

// Decide решает, повторять ли task после попытки attempt (начиная с 1).
//
// Повтор возможен, если попытка неуспешна, retry включены и attempt < MaxAttempts.
// Задержка: BaseDelay * BackoffMultiplier^(attempt-1). Таймаут считается
// обычной неудачей.
func Decide(policy domain.RetryPolicy, attempt int, outcome domain.Outcome, retriesEnabled bool, now time.Time) Decision {
	if outcome.OK() || !retriesEnabled || attempt >= policy.Attempts() {
		return Decision{}
	}

	delay := policy.Backoff(attempt)
	return Decision{
		Retry:         true,
		Delay:         delay,
		NotReadyUntil: now.Add(delay),
	}
}
