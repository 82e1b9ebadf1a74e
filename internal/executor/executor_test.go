package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Conveyor/internal/domain"
)

func ok(v any) domain.Executable {
	return domain.FromFunc(func(context.Context) (any, error) { return v, nil })
}

func failing(msg string) domain.Executable {
	return domain.FromFunc(func(context.Context) (any, error) { return nil, errors.New(msg) })
}

func deps(ids ...string) []domain.TaskID {
	out := make([]domain.TaskID, len(ids))
	for i, id := range ids {
		out[i] = domain.TaskID(id)
	}
	return out
}

func run(t *testing.T, e *Executor) Statistics {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := e.RunToCompletion(ctx)
	require.NoError(t, err)
	return stats
}

func requireStatus(t *testing.T, e *Executor, id string, want domain.TaskStatus) {
	t.Helper()
	got, err := e.GetStatus(domain.TaskID(id))
	require.NoError(t, err)
	require.Equal(t, want, got, "task %s", id)
}

// resultLog — observer, запоминающий результаты.
type resultLog struct {
	mu      sync.Mutex
	results []domain.ExecutionResult
}

func (l *resultLog) TaskFinished(_ context.Context, r domain.ExecutionResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, r)
	return nil
}

func (l *resultLog) count(id domain.TaskID, status domain.TaskStatus) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.results {
		if r.ID == id && r.Status == status {
			n++
		}
	}
	return n
}

func TestRunToCompletion_Independent(t *testing.T) {
	e := New(Config{WorkerCount: 4})

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: domain.TaskID(id)}, ok(id)))
	}

	stats := run(t, e)

	assert.Equal(t, 5, stats.Submitted)
	assert.Equal(t, 5, stats.Completed)
	assert.Equal(t, stats.Submitted, stats.Terminal())
	assert.Zero(t, stats.Running)

	res, err := e.GetResult("c")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, res.Status)
	assert.Equal(t, "c", res.Output)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, e.RunID(), res.RunID)
}

func TestRunToCompletion_CascadeSkip(t *testing.T) {
	// A → (none), B → [A], C → [A]; A падает
	e := New(Config{WorkerCount: 2})

	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "A"}, failing("boom")))
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "B", DependsOn: deps("A")}, ok("b")))
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "C", DependsOn: deps("A")}, ok("c")))

	stats := run(t, e)

	assert.Equal(t, 3, stats.Submitted)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 2, stats.Skipped)
	assert.Zero(t, stats.Completed)

	requireStatus(t, e, "A", domain.TaskStatusFailed)
	requireStatus(t, e, "B", domain.TaskStatusSkipped)
	requireStatus(t, e, "C", domain.TaskStatusSkipped)

	res, err := e.GetResult("A")
	require.NoError(t, err)
	assert.Contains(t, res.Error, "boom")
}

func TestRunToCompletion_MultiHopCascade(t *testing.T) {
	e := New(Config{WorkerCount: 1})

	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "d", DependsOn: deps("c")}, ok(nil)))
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "c", DependsOn: deps("b")}, ok(nil)))
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "b", DependsOn: deps("a")}, ok(nil)))
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "a"}, failing("boom")))

	stats := run(t, e)

	assert.Equal(t, 3, stats.Skipped)
	requireStatus(t, e, "d", domain.TaskStatusSkipped)
}

func TestRunToCompletion_DependenciesCompleteFirst(t *testing.T) {
	e := New(Config{WorkerCount: 4})

	var violations atomic.Int32
	checkDeps := func(ids ...string) domain.Executable {
		return domain.FromFunc(func(context.Context) (any, error) {
			for _, id := range ids {
				if s, _ := e.GetStatus(domain.TaskID(id)); s != domain.TaskStatusCompleted {
					violations.Add(1)
				}
			}
			time.Sleep(5 * time.Millisecond)
			return nil, nil
		})
	}

	// A → B, A → C, (B, C) → D
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "A"}, checkDeps()))
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "B", DependsOn: deps("A")}, checkDeps("A")))
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "C", DependsOn: deps("A")}, checkDeps("A")))
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "D", DependsOn: deps("B", "C")}, checkDeps("B", "C")))

	stats := run(t, e)

	assert.Equal(t, 4, stats.Completed)
	assert.Zero(t, violations.Load())
}

func TestRunToCompletion_RespectsWorkerCount(t *testing.T) {
	const workers = 3
	e := New(Config{WorkerCount: workers})

	var current, peak atomic.Int32
	body := domain.FromFunc(func(context.Context) (any, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		current.Add(-1)
		return nil, nil
	})

	for i := 0; i < 12; i++ {
		require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: domain.TaskID(fmt.Sprintf("t%d", i))}, body))
	}

	// Параллельно наблюдаем статистику
	done := make(chan struct{})
	var observedMax atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			s := e.GetStatistics()
			if int32(s.Running) > observedMax.Load() {
				observedMax.Store(int32(s.Running))
			}
			assert.LessOrEqual(t, s.CurrentLoad, 1.0)
			time.Sleep(time.Millisecond)
		}
	}()

	stats := run(t, e)
	close(done)
	wg.Wait()

	assert.Equal(t, 12, stats.Completed)
	assert.LessOrEqual(t, peak.Load(), int32(workers))
	assert.LessOrEqual(t, observedMax.Load(), int32(workers))
}

func TestRunToCompletion_PriorityWithCapacityOne(t *testing.T) {
	e := New(Config{WorkerCount: 1, QueueCapacity: 1})

	var mu sync.Mutex
	var order []string
	record := func(id string) domain.Executable {
		return domain.FromFunc(func(context.Context) (any, error) {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil, nil
		})
	}

	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "low", Priority: domain.PriorityLow}, record("low")))
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "high", Priority: domain.PriorityHigh}, record("high")))

	stats := run(t, e)

	assert.Equal(t, 2, stats.Completed)
	assert.Equal(t, []string{"high", "low"}, order)
}

func TestRunToCompletion_DisablePriorities(t *testing.T) {
	e := New(Config{WorkerCount: 1, QueueCapacity: 1, DisablePriorities: true})

	var mu sync.Mutex
	var order []string
	record := func(id string) domain.Executable {
		return domain.FromFunc(func(context.Context) (any, error) {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil, nil
		})
	}

	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "low", Priority: domain.PriorityLow}, record("low")))
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "high", Priority: domain.PriorityHigh}, record("high")))

	run(t, e)

	assert.Equal(t, []string{"low", "high"}, order)
}

func TestRunToCompletion_RetryExhausted(t *testing.T) {
	log := &resultLog{}
	e := New(Config{WorkerCount: 2, Observers: []Observer{log}})

	var attempts atomic.Int32
	body := domain.FromFunc(func(context.Context) (any, error) {
		attempts.Add(1)
		return nil, errors.New("always fails")
	})

	spec := domain.TaskSpec{
		ID:    "flaky",
		Retry: domain.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, BackoffMultiplier: 2},
	}
	require.NoError(t, e.RegisterTask(spec, body))
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "dependent", DependsOn: deps("flaky")}, ok(nil)))

	stats := run(t, e)

	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, 2, stats.Retries)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Skipped)

	res, err := e.GetResult("flaky")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, res.Status)
	assert.Equal(t, 3, res.Attempts)

	assert.Equal(t, 1, log.count("dependent", domain.TaskStatusSkipped))
	assert.Equal(t, 1, log.count("flaky", domain.TaskStatusFailed))
}

func TestRunToCompletion_RetrySucceeds(t *testing.T) {
	e := New(Config{WorkerCount: 1})

	var attempts atomic.Int32
	body := domain.FromFunc(func(context.Context) (any, error) {
		if attempts.Add(1) < 2 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	})

	spec := domain.TaskSpec{ID: "t", Retry: domain.RetryPolicy{MaxAttempts: 3, BaseDelay: 5 * time.Millisecond}}
	require.NoError(t, e.RegisterTask(spec, body))

	stats := run(t, e)

	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Retries)
	res, err := e.GetResult("t")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
}

func TestRunToCompletion_RetryKeepsRegistrationOrder(t *testing.T) {
	e := New(Config{WorkerCount: 1})

	var mu sync.Mutex
	var order []string
	record := func(id string, failFirst bool) domain.Executable {
		var calls atomic.Int32
		return domain.FromFunc(func(context.Context) (any, error) {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			if failFirst && calls.Add(1) == 1 {
				return nil, errors.New("transient")
			}
			time.Sleep(20 * time.Millisecond)
			return nil, nil
		})
	}

	retry := domain.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "a", Retry: retry}, record("a", true)))
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "b"}, record("b", false)))
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "c"}, record("c", false)))

	stats := run(t, e)

	assert.Equal(t, 3, stats.Completed)
	// Повтор a возвращается в очередь раньше c, зарегистрированного позже.
	assert.Equal(t, []string{"a", "b", "a", "c"}, order)
}

func TestRunToCompletion_DisableRetries(t *testing.T) {
	e := New(Config{WorkerCount: 1, DisableRetries: true})

	spec := domain.TaskSpec{ID: "t", Retry: domain.RetryPolicy{MaxAttempts: 5}}
	require.NoError(t, e.RegisterTask(spec, failing("boom")))

	stats := run(t, e)

	assert.Equal(t, 1, stats.Failed)
	assert.Zero(t, stats.Retries)
}

func TestRunToCompletion_DisableDependencies(t *testing.T) {
	e := New(Config{WorkerCount: 2, DisableDependencies: true})

	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "a"}, failing("boom")))
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "b", DependsOn: deps("a")}, ok(nil)))

	stats := run(t, e)

	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Completed)
	assert.Zero(t, stats.Skipped)
}

func TestRunToCompletion_Timeout(t *testing.T) {
	e := New(Config{WorkerCount: 1})

	body := domain.ExecutableFunc(func(context.Context) domain.Outcome {
		time.Sleep(500 * time.Millisecond)
		return domain.Success("too late")
	})
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "slow", Timeout: 50 * time.Millisecond}, body))

	start := time.Now()
	run(t, e)
	assert.Less(t, time.Since(start), 400*time.Millisecond)

	res, err := e.GetResult("slow")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, res.Status)
	assert.Contains(t, res.Error, domain.ErrTimeout.Error())
	assert.Equal(t, 50*time.Millisecond, res.Duration)
}

func TestRunToCompletion_Panic(t *testing.T) {
	e := New(Config{WorkerCount: 1})

	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "p"}, domain.ExecutableFunc(func(context.Context) domain.Outcome {
		panic("kaboom")
	})))
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "sibling"}, ok(nil)))

	stats := run(t, e)

	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Completed)

	res, err := e.GetResult("p")
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityCritical, res.Severity)
}

func TestRunToCompletion_UnregisteredDependencyBlocks(t *testing.T) {
	e := New(Config{WorkerCount: 1})

	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "orphan", DependsOn: deps("ghost")}, ok(nil)))
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "free"}, ok(nil)))

	stats := run(t, e)

	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Blocked)
	assert.Equal(t, stats.Submitted, stats.Terminal()+stats.Blocked)
	requireStatus(t, e, "orphan", domain.TaskStatusPending)

	_, err := e.GetResult("orphan")
	assert.ErrorIs(t, err, ErrNotTerminal)
}

func TestRunToCompletion_ContextCancelled(t *testing.T) {
	e := New(Config{WorkerCount: 1})

	release := make(chan struct{})
	defer close(release)
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "stuck"}, domain.ExecutableFunc(func(context.Context) domain.Outcome {
		<-release
		return domain.Success(nil)
	})))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := e.RunToCompletion(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegisterTask_Duplicate(t *testing.T) {
	e := New(Config{})

	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "a"}, ok(1)))
	err := e.RegisterTask(domain.TaskSpec{ID: "a"}, ok(2))
	require.ErrorIs(t, err, ErrDuplicateTask)

	assert.Equal(t, 1, e.GetStatistics().Submitted)
	assert.Len(t, e.Tasks(), 1)
}

func TestCancelTask_Pending(t *testing.T) {
	log := &resultLog{}
	e := New(Config{WorkerCount: 1, Observers: []Observer{log}})

	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "a"}, ok(nil)))
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "b", DependsOn: deps("a")}, ok(nil)))
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "c", DependsOn: deps("b")}, ok(nil)))

	require.NoError(t, e.CancelTask("a"))

	requireStatus(t, e, "a", domain.TaskStatusCancelled)
	requireStatus(t, e, "b", domain.TaskStatusSkipped)
	requireStatus(t, e, "c", domain.TaskStatusSkipped)

	stats := run(t, e)
	assert.Equal(t, 1, stats.Cancelled)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, stats.Submitted, stats.Terminal())

	assert.Equal(t, 1, log.count("b", domain.TaskStatusSkipped))
}

func TestCancelTask_Terminal(t *testing.T) {
	e := New(Config{WorkerCount: 1})
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "a"}, ok("done")))
	run(t, e)

	err := e.CancelTask("a")
	require.ErrorIs(t, err, ErrAlreadyTerminal)
	requireStatus(t, e, "a", domain.TaskStatusCompleted)

	assert.ErrorIs(t, e.CancelTask("ghost"), ErrNotFound)
}

func TestCancelTask_Running(t *testing.T) {
	e := New(Config{WorkerCount: 1})

	started := make(chan struct{})
	body := domain.FromFunc(func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "long"}, body))

	e.Tick(context.Background())
	<-started
	requireStatus(t, e, "long", domain.TaskStatusRunning)

	require.NoError(t, e.CancelTask("long"))
	stats := run(t, e)

	requireStatus(t, e, "long", domain.TaskStatusCancelled)
	assert.Equal(t, 1, stats.Cancelled)
	assert.Zero(t, stats.Failed)
	assert.Zero(t, stats.Running)
}

func TestStartStop(t *testing.T) {
	e := New(Config{WorkerCount: 2, TickInterval: 5 * time.Millisecond})

	require.NoError(t, e.Start(context.Background()))
	assert.True(t, e.IsStarted())
	assert.ErrorIs(t, e.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "a"}, ok(nil)))
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "b", DependsOn: deps("a")}, ok(nil)))

	require.Eventually(t, func() bool {
		s, _ := e.GetStatus("b")
		return s == domain.TaskStatusCompleted
	}, 5*time.Second, 5*time.Millisecond)

	e.Stop()
	assert.False(t, e.IsStarted())

	// После Stop тики не идут
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "c"}, ok(nil)))
	time.Sleep(30 * time.Millisecond)
	requireStatus(t, e, "c", domain.TaskStatusPending)

	e.Stop()
}

func TestReset(t *testing.T) {
	e := New(Config{WorkerCount: 1})
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "a"}, ok(nil)))
	run(t, e)

	before := e.RunID()
	e.Reset()

	assert.NotEqual(t, before, e.RunID())
	assert.Empty(t, e.Tasks())
	assert.Zero(t, e.GetStatistics().Submitted)

	_, err := e.GetStatus("a")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "a"}, ok(nil)))
	stats := run(t, e)
	assert.Equal(t, 1, stats.Completed)
}

func TestObserverErrorDoesNotAffectScheduling(t *testing.T) {
	broken := ObserverFunc(func(context.Context, domain.ExecutionResult) error {
		return errors.New("sink down")
	})
	e := New(Config{WorkerCount: 1, Observers: []Observer{broken}})

	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "a"}, ok(nil)))
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "b", DependsOn: deps("a")}, ok(nil)))

	stats := run(t, e)
	assert.Equal(t, 2, stats.Completed)
}

// countingMetrics — Metrics для проверки вызовов.
type countingMetrics struct {
	mu        sync.Mutex
	submitted int
	finished  map[domain.TaskStatus]int
	retried   int
	maxRun    int
}

func (m *countingMetrics) TaskSubmitted(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted++
}

func (m *countingMetrics) TaskFinished(status domain.TaskStatus, _ string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished == nil {
		m.finished = make(map[domain.TaskStatus]int)
	}
	m.finished[status]++
}

func (m *countingMetrics) TaskRetried(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retried++
}

func (m *countingMetrics) SetRunning(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > m.maxRun {
		m.maxRun = n
	}
}

func TestMetrics(t *testing.T) {
	m := &countingMetrics{}
	e := New(Config{WorkerCount: 2, Metrics: m})

	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "a"}, ok(nil)))
	require.NoError(t, e.RegisterTask(domain.TaskSpec{
		ID:    "b",
		Retry: domain.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond},
	}, failing("boom")))
	require.NoError(t, e.RegisterTask(domain.TaskSpec{ID: "c", DependsOn: deps("b")}, ok(nil)))

	run(t, e)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 3, m.submitted)
	assert.Equal(t, 1, m.retried)
	assert.Equal(t, 1, m.finished[domain.TaskStatusCompleted])
	assert.Equal(t, 1, m.finished[domain.TaskStatusFailed])
	assert.Equal(t, 1, m.finished[domain.TaskStatusSkipped])
	assert.LessOrEqual(t, m.maxRun, 2)
}
