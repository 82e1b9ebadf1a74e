package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/registry"
)

// DefaultSize — количество слотов по умолчанию.
const DefaultSize = 4

// Completion — итог одной попытки выполнения task.
type Completion struct {
	Spec       domain.TaskSpec
	Attempt    int
	Outcome    domain.Outcome
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration

	// TimedOut — тело не уложилось в Spec.Timeout.
	TimedOut bool

	// Panicked — тело упало с паникой.
	Panicked bool
}

// CompletionFunc вызывается из goroutine воркера после каждой попытки,
// до освобождения слота.
type CompletionFunc func(Completion)

// Pool — пул с фиксированным числом слотов.
//
// Каждое тело выполняется в своей goroutine. TryDispatch не блокируется:
// если свободных слотов нет, он возвращает false.
type Pool struct {
	size   int
	onDone CompletionFunc
	logger *slog.Logger

	mu      sync.Mutex
	running int

	wg conc.WaitGroup
}

// NewPool создаёт пул. size <= 0 означает DefaultSize.
func NewPool(size int, onDone CompletionFunc, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if onDone == nil {
		onDone = func(Completion) {}
	}
	return &Pool{
		size:   size,
		onDone: onDone,
		logger: logger,
	}
}

// TryDispatch занимает слот, вызывает begin и запускает полученную попытку.
//
// Если слотов нет, begin не вызывается и возвращается false.
// Если begin вернул ошибку, слот освобождается, ошибка возвращается.
func (p *Pool) TryDispatch(begin func() (*registry.Run, error)) (bool, error) {
	p.mu.Lock()
	if p.running >= p.size {
		p.mu.Unlock()
		return false, nil
	}
	p.running++
	p.mu.Unlock()

	run, err := begin()
	if err != nil {
		p.release()
		return false, err
	}

	p.wg.Go(func() {
		defer p.release()
		p.onDone(p.execute(run))
	})

	return true, nil
}

// Running возвращает количество занятых слотов.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.running
}

// Available возвращает количество свободных слотов.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.size - p.running
}

// Size возвращает количество слотов.
func (p *Pool) Size() int {
	return p.size
}

// Wait ждёт завершения всех запущенных попыток.
// Тела, брошенные по таймауту, не ожидаются.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) release() {
	p.mu.Lock()
	p.running--
	p.mu.Unlock()
}

// execute выполняет тело с таймаутом и перехватом паники.
func (p *Pool) execute(run *registry.Run) Completion {
	timeout := run.Spec.Timeout

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(run.Ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(run.Ctx)
	}
	defer cancel()
	ctx = domain.WithAttempt(ctx, run.Attempt)

	type result struct {
		outcome  domain.Outcome
		panicked bool
	}
	done := make(chan result, 1)

	go func() {
		var (
			pc      panics.Catcher
			outcome domain.Outcome
		)
		pc.Try(func() { outcome = run.Body.Execute(ctx) })

		if r := pc.Recovered(); r != nil {
			p.logger.Error("task body panicked",
				"task_id", run.Spec.ID,
				"attempt", run.Attempt,
				"panic", r.Value,
			)
			done <- result{
				outcome:  domain.Failure(domain.NewTaskError(domain.SeverityCritical, "panic", r.AsError())),
				panicked: true,
			}
			return
		}
		done <- result{outcome: outcome}
	}()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	c := Completion{
		Spec:      run.Spec,
		Attempt:   run.Attempt,
		StartedAt: run.StartedAt,
	}

	select {
	case res := <-done:
		c.Outcome = res.outcome
		c.Panicked = res.panicked
		c.FinishedAt = time.Now()
		c.Duration = c.FinishedAt.Sub(run.StartedAt)

		// Тело вернулось, заметив дедлайн: это тот же таймаут
		if timeout > 0 && !c.Outcome.OK() && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.markTimedOut(timeout)
		}

	case <-timer:
		c.markTimedOut(timeout)

	case <-run.Ctx.Done():
		// Task отменён: результат всё равно будет отвергнут реестром
		c.Outcome = domain.Failure(run.Ctx.Err())
		c.FinishedAt = time.Now()
		c.Duration = c.FinishedAt.Sub(run.StartedAt)
	}

	return c
}

func (c *Completion) markTimedOut(timeout time.Duration) {
	c.TimedOut = true
	c.Outcome = domain.Failure(fmt.Errorf("%w after %s", domain.ErrTimeout, timeout))
	c.Duration = timeout
	c.FinishedAt = c.StartedAt.Add(timeout)
}
