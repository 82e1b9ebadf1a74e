package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/steps"
)

// fakeClock — управляемое время для тестов.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testPlan() *domain.Plan {
	return &domain.Plan{
		Name: "nightly",
		Tasks: []domain.PlanTask{
			{ID: "extract", Type: "transform", Config: map[string]any{"source": "orders"}},
			{ID: "load", Type: "delay", DependsOn: []string{"extract"}, Config: map[string]any{"duration_ms": 1}},
			{ID: "notify", Type: "fail", DependsOn: []string{"load"}, Config: map[string]any{"message": "smtp down"}},
			{ID: "archive", Type: "delay", DependsOn: []string{"notify"}},
		},
	}
}

func newRunner(t *testing.T, clock *fakeClock, cfg Config) (*Runner, *executor.Executor) {
	t.Helper()

	exec := executor.New(executor.Config{WorkerCount: 2})
	cfg.Target = exec
	cfg.Steps = steps.DefaultRegistry()
	cfg.Now = clock.Now
	if cfg.Plan == nil {
		cfg.Plan = testPlan()
	}

	r, err := New(cfg)
	require.NoError(t, err)
	return r, exec
}

func TestSchedule_NextDue(t *testing.T) {
	from := time.Date(2026, 3, 10, 10, 7, 30, 0, time.UTC)

	tests := []struct {
		name     string
		schedule Schedule
		want     time.Time
	}{
		{
			name:     "every five minutes",
			schedule: Schedule{CronExpr: "*/5 * * * *"},
			want:     time.Date(2026, 3, 10, 10, 10, 0, 0, time.UTC),
		},
		{
			name:     "hourly descriptor",
			schedule: Schedule{CronExpr: "@hourly"},
			want:     time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC),
		},
		{
			name:     "interval",
			schedule: Schedule{Every: 90 * time.Second},
			want:     from.Add(90 * time.Second),
		},
		{
			name:     "cron in timezone",
			schedule: Schedule{CronExpr: "0 12 * * *", Timezone: "Europe/Moscow"},
			want:     time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "unknown timezone falls back to utc",
			schedule: Schedule{CronExpr: "0 12 * * *", Timezone: "Mars/Olympus"},
			want:     time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.schedule.NextDue(from)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSchedule_Validate(t *testing.T) {
	assert.NoError(t, Schedule{CronExpr: "0 * * * *"}.Validate())
	assert.NoError(t, Schedule{Every: time.Minute}.Validate())

	assert.ErrorIs(t, Schedule{}.Validate(), ErrNoSchedule)
	assert.ErrorIs(t, Schedule{CronExpr: "@daily", Every: time.Hour}.Validate(), ErrAmbiguousSchedule)
	assert.ErrorIs(t, Schedule{Every: -time.Second}.Validate(), ErrInvalidInterval)
	assert.Error(t, Schedule{CronExpr: "61 * * * *"}.Validate())

	_, err := Schedule{}.NextDue(time.Now())
	assert.ErrorIs(t, err, ErrNoSchedule)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Config{Schedule: Schedule{Every: time.Minute}})
	assert.ErrorIs(t, err, ErrNoPlan)

	_, err = New(Config{
		Target: executor.New(executor.Config{}),
		Plan:   testPlan(),
		Steps:  steps.DefaultRegistry(),
	})
	assert.ErrorIs(t, err, ErrNoSchedule)
}

func TestRunner_Tick(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)}

	var reports []Report
	r, exec := newRunner(t, clock, Config{
		Schedule:       Schedule{Every: time.Minute},
		RunImmediately: true,
		OnRunFinished: func(_ context.Context, report Report) error {
			reports = append(reports, report)
			return errors.New("broker unavailable")
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	report, err := r.Tick(ctx)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, "nightly", report.Plan)
	assert.Equal(t, exec.RunID(), report.RunID)
	assert.Equal(t, 2, report.Stats.Completed)
	assert.Equal(t, 1, report.Stats.Failed)
	assert.Equal(t, 1, report.Stats.Skipped)
	assert.Equal(t, clock.Now().Add(time.Minute), r.NextDue())
	assert.Len(t, reports, 1)

	// Время не наступило
	report, err = r.Tick(ctx)
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.Equal(t, 1, r.Runs())

	firstRun := exec.RunID()
	clock.Advance(time.Minute)

	report, err = r.Tick(ctx)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.NotEqual(t, firstRun, report.RunID)
	assert.Equal(t, 4, report.Stats.Submitted)
	assert.Equal(t, 2, r.Runs())
	assert.Len(t, reports, 2)
}

func TestRunner_WaitsForSchedule(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 10, 7, 0, 0, time.UTC)}
	r, _ := newRunner(t, clock, Config{Schedule: Schedule{CronExpr: "*/5 * * * *"}})

	assert.Equal(t, time.Date(2026, 3, 10, 10, 10, 0, 0, time.UTC), r.NextDue())

	report, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.Zero(t, r.Runs())
}

func TestRunner_RegisterError(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)}

	plan := testPlan()
	plan.Tasks[0].Type = "ssh"

	r, _ := newRunner(t, clock, Config{
		Plan:           plan,
		Schedule:       Schedule{Every: time.Hour},
		RunImmediately: true,
	})

	report, err := r.Tick(context.Background())
	assert.ErrorIs(t, err, steps.ErrStepNotFound)
	assert.Nil(t, report)

	// Расписание продолжается
	assert.Equal(t, clock.Now().Add(time.Hour), r.NextDue())
}

func TestRunner_Once(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)}
	r, _ := newRunner(t, clock, Config{RunImmediately: true})

	report, err := r.Tick(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.True(t, r.Done())

	clock.Advance(24 * time.Hour)
	report, err = r.Tick(context.Background())
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.Equal(t, 1, r.Runs())

	// Run сразу возвращается после однократного запуска
	assert.NoError(t, r.Run(context.Background()))
}

func TestRunner_Run(t *testing.T) {
	clock := &fakeClock{now: time.Now()}

	done := make(chan Report, 1)
	r, _ := newRunner(t, clock, Config{
		Schedule:       Schedule{Every: time.Hour},
		RunImmediately: true,
		OnRunFinished: func(_ context.Context, report Report) error {
			done <- report
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	select {
	case report := <-done:
		assert.Equal(t, 2, report.Stats.Completed)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled run did not finish")
	}

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}
