package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
)

// entry — task в реестре.
type entry struct {
	spec  domain.TaskSpec
	body  domain.Executable
	state domain.TaskState
	seq   uint64

	// cancel отменяет ctx текущей попытки (nil, если task не RUNNING).
	cancel context.CancelFunc
}

// Registry — хранилище спецификаций и состояния task.
//
// Все изменения сериализуются через один мьютекс; чтения берут RLock
// и возвращают копии.
type Registry struct {
	mu    sync.RWMutex
	tasks map[domain.TaskID]*entry
	order []domain.TaskID
	seq   uint64
	runID uuid.UUID

	now func() time.Time
}

// New создаёт пустой реестр для запуска runID.
func New(runID uuid.UUID) *Registry {
	return &Registry{
		tasks: make(map[domain.TaskID]*entry),
		runID: runID,
		now:   time.Now,
	}
}

// Run — данные, нужные воркеру для одной попытки.
type Run struct {
	Spec      domain.TaskSpec
	Body      domain.Executable
	Attempt   int
	StartedAt time.Time

	// Ctx отменяется при CancelTask и Reset.
	Ctx context.Context
}

// Snapshot — копия спецификации и состояния task.
type Snapshot struct {
	Spec  domain.TaskSpec
	State domain.TaskState

	// Seq — порядковый номер регистрации, не меняется при retry.
	Seq uint64
}

// Register добавляет task в статусе PENDING.
// При ошибке реестр не меняется.
func (r *Registry) Register(spec domain.TaskSpec, body domain.Executable) error {
	if spec.ID == "" {
		return ErrEmptyTaskID
	}
	if body == nil {
		return fmt.Errorf("%w: %s", ErrNilBody, spec.ID)
	}
	for _, dep := range spec.DependsOn {
		if dep == spec.ID {
			return fmt.Errorf("%w: %s", ErrSelfDependency, spec.ID)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[spec.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, spec.ID)
	}

	if len(spec.DependsOn) > 0 {
		graph := make(engine.Graph, len(r.tasks)+1)
		for id, e := range r.tasks {
			graph[id] = e.spec.DependsOn
		}
		graph[spec.ID] = spec.DependsOn
		if _, err := graph.TopologicalOrder(); err != nil {
			return err
		}
	}

	r.seq++
	r.tasks[spec.ID] = &entry{
		spec:  spec.Clone(),
		body:  body,
		state: domain.NewTaskState(r.now()),
		seq:   r.seq,
	}
	r.order = append(r.order, spec.ID)

	return nil
}

// Cancel переводит task в CANCELLED и сразу каскадно пропускает зависимые.
// Для RUNNING task отменяется ctx тела; его поздний результат будет отвергнут.
// Возвращает ID пропущенных task.
func (r *Registry) Cancel(id domain.TaskID) ([]domain.TaskID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if e.state.IsFinished() {
		return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, id, e.state.Status)
	}

	now := r.now()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.state.MarkCancelled(now)

	skipped := r.applySkips(engine.PropagateSkips(r.nodes()), now)
	ids := make([]domain.TaskID, len(skipped))
	for i, s := range skipped {
		ids[i] = s.ID
	}
	return ids, nil
}

// Status возвращает текущий статус task.
func (r *Registry) Status(id domain.TaskID) (domain.TaskStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tasks[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.state.Status, nil
}

// Get возвращает копию спецификации и состояния task.
func (r *Registry) Get(id domain.TaskID) (Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tasks[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return Snapshot{Spec: e.spec.Clone(), State: e.state, Seq: e.seq}, nil
}

// Result возвращает ExecutionResult финального task.
func (r *Registry) Result(id domain.TaskID) (domain.ExecutionResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tasks[id]
	if !ok {
		return domain.ExecutionResult{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !e.state.IsFinished() {
		return domain.ExecutionResult{}, fmt.Errorf("%w: %s is %s", ErrNotTerminal, id, e.state.Status)
	}
	return domain.BuildResult(r.runID, &e.spec, &e.state), nil
}

// Resolve вычисляет готовые task и применяет каскадный SKIPPED
// в одной критической секции.
func (r *Registry) Resolve(now time.Time, opts engine.Options) engine.Resolution {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := engine.Resolve(r.nodes(), now, opts)
	res.Skipped = r.applySkips(res.Skipped, now)
	return res
}

// MarkQueued помечает task как стоящие в очереди допуска.
// Task, успевшие выйти из PENDING, пропускаются.
func (r *Registry) MarkQueued(ids []domain.TaskID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		if e, ok := r.tasks[id]; ok && e.state.Status == domain.TaskStatusPending {
			e.state.Queued = true
		}
	}
}

// BeginRun переводит стоящий в очереди task в RUNNING.
// Ctx попытки наследуется от parent и отменяется при Cancel.
func (r *Registry) BeginRun(parent context.Context, id domain.TaskID) (*Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if e.state.Status != domain.TaskStatusPending || !e.state.Queued {
		return nil, fmt.Errorf("%w: %s cannot start from %s", ErrInvalidTransition, id, e.state.Status)
	}

	now := r.now()
	ctx, cancel := context.WithCancel(parent)
	e.cancel = cancel
	e.state.MarkRunning(now)

	return &Run{
		Spec:      e.spec.Clone(),
		Body:      e.body,
		Attempt:   e.state.Attempt,
		StartedAt: now,
		Ctx:       ctx,
	}, nil
}

// Complete фиксирует успешное завершение RUNNING task.
func (r *Registry) Complete(id domain.TaskID, outcome domain.Outcome, d time.Duration) (domain.ExecutionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.running(id)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	r.release(e)
	e.state.MarkCompleted(outcome, d, r.now())

	return domain.BuildResult(r.runID, &e.spec, &e.state), nil
}

// Retry возвращает RUNNING task в PENDING с backoff до notReadyUntil.
func (r *Registry) Retry(id domain.TaskID, outcome domain.Outcome, d time.Duration, notReadyUntil time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.running(id)
	if err != nil {
		return err
	}
	r.release(e)
	e.state.ResetForRetry(outcome, d, notReadyUntil)

	return nil
}

// Fail фиксирует окончательное падение RUNNING task.
// Зависимые будут пропущены на следующем Resolve.
func (r *Registry) Fail(id domain.TaskID, outcome domain.Outcome, d time.Duration) (domain.ExecutionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.running(id)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	r.release(e)
	e.state.MarkFailed(outcome, d, r.now())

	return domain.BuildResult(r.runID, &e.spec, &e.state), nil
}

// Snapshot возвращает копии всех task в порядке регистрации.
func (r *Registry) Snapshot() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Snapshot, 0, len(r.order))
	for _, id := range r.order {
		e := r.tasks[id]
		out = append(out, Snapshot{Spec: e.spec.Clone(), State: e.state, Seq: e.seq})
	}
	return out
}

// Len возвращает количество зарегистрированных task.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tasks)
}

// RunID возвращает идентификатор текущего запуска.
func (r *Registry) RunID() uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.runID
}

// Reset удаляет все task и начинает новый запуск runID.
// Ctx выполняющихся тел отменяется.
func (r *Registry) Reset(runID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.tasks {
		if e.cancel != nil {
			e.cancel()
		}
	}
	r.tasks = make(map[domain.TaskID]*entry)
	r.order = nil
	r.seq = 0
	r.runID = runID
}

// running возвращает entry в статусе RUNNING. Вызывается под r.mu.
func (r *Registry) running(id domain.TaskID) (*entry, error) {
	e, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if e.state.Status != domain.TaskStatusRunning {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, e.state.Status)
	}
	return e, nil
}

// release освобождает ctx попытки. Вызывается под r.mu.
func (r *Registry) release(e *entry) {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// nodes строит снимок для резолвера. Вызывается под r.mu.
func (r *Registry) nodes() []engine.Node {
	nodes := make([]engine.Node, 0, len(r.tasks))
	for _, id := range r.order {
		e := r.tasks[id]
		nodes = append(nodes, engine.Node{
			ID:            id,
			Seq:           e.seq,
			Priority:      e.spec.Priority,
			Status:        e.state.Status,
			Queued:        e.state.Queued,
			DependsOn:     e.spec.DependsOn,
			NotReadyUntil: e.state.NotReadyUntil,
		})
	}
	return nodes
}

// applySkips переводит task в SKIPPED. Вызывается под r.mu.
// Возвращает только реально применённые пропуски.
func (r *Registry) applySkips(skips []engine.Skip, now time.Time) []engine.Skip {
	applied := skips[:0:0]
	for _, s := range skips {
		e, ok := r.tasks[s.ID]
		if !ok || e.state.Status != domain.TaskStatusPending {
			continue
		}
		e.state.MarkSkipped(s.Cause, now)
		applied = append(applied, s)
	}
	return applied
}
