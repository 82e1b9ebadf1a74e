package worker

import (
	"errors"
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

func TestDecide(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	failure := domain.Failure(errors.New("boom"))
	policy := domain.RetryPolicy{
		MaxAttempts:       3,
		BaseDelay:         100 * time.Millisecond,
		BackoffMultiplier: 2,
	}

	tests := []struct {
		name      string
		policy    domain.RetryPolicy
		attempt   int
		outcome   domain.Outcome
		enabled   bool
		wantRetry bool
		wantDelay time.Duration
	}{
		{"success", policy, 1, domain.Success(nil), true, false, 0},
		{"first failure", policy, 1, failure, true, true, 100 * time.Millisecond},
		{"second failure", policy, 2, failure, true, true, 200 * time.Millisecond},
		{"attempts exhausted", policy, 3, failure, true, false, 0},
		{"retries disabled", policy, 1, failure, false, false, 0},
		{"no retry policy", domain.RetryPolicy{}, 1, failure, true, false, 0},
		{"timeout counts as failure", policy, 1, domain.Failure(domain.ErrTimeout), true, true, 100 * time.Millisecond},
		{
			"capped by max delay",
			domain.RetryPolicy{MaxAttempts: 10, BaseDelay: time.Second, BackoffMultiplier: 10, MaxDelay: 5 * time.Second},
			4, failure, true, true, 5 * time.Second,
		},
		{
			"default multiplier",
			domain.RetryPolicy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond},
			3, failure, true, true, 40 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.policy, tt.attempt, tt.outcome, tt.enabled, now)

			if d.Retry != tt.wantRetry {
				t.Fatalf("expected retry=%v, got %v", tt.wantRetry, d.Retry)
			}
			if d.Delay != tt.wantDelay {
				t.Errorf("expected delay %v, got %v", tt.wantDelay, d.Delay)
			}
			if d.Retry && !d.NotReadyUntil.Equal(now.Add(tt.wantDelay)) {
				t.Errorf("expected gate %v, got %v", now.Add(tt.wantDelay), d.NotReadyUntil)
			}
		})
	}
}
