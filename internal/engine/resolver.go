package engine

import (
	"sort"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Node — снимок task, достаточный для одного тика резолвера.
type Node struct {
	// ID — идентификатор task.
	ID domain.TaskID

	// Seq — порядковый номер регистрации (tie-break при равном приоритете).
	Seq uint64

	// Priority — приоритет task.
	Priority domain.Priority

	// Status — текущий статус.
	Status domain.TaskStatus

	// Queued — task уже в очереди допуска.
	Queued bool

	// DependsOn — зависимости task.
	DependsOn []domain.TaskID

	// NotReadyUntil — backoff gate.
	NotReadyUntil time.Time
}

// Options — переключатели резолвера.
type Options struct {
	// IgnoreDependencies — считать зависимости всегда удовлетворёнными.
	IgnoreDependencies bool

	// IgnorePriority — упорядочивать готовые task только по порядку регистрации.
	IgnorePriority bool
}

// Skip — task, пропущенный из-за неуспешной зависимости.
type Skip struct {
	ID    domain.TaskID
	Cause domain.TaskID
}

// Resolution — результат одного тика резолвера.
type Resolution struct {
	// Ready — готовые к допуску task, по убыванию приоритета, затем по Seq.
	Ready []domain.TaskID

	// Skipped — task, которые нужно перевести в SKIPPED (в порядке распространения).
	Skipped []Skip

	// Waiting — количество task с удовлетворёнными зависимостями, ждущих backoff.
	Waiting int

	// NextWake — ближайший момент окончания backoff среди Waiting (zero, если Waiting == 0).
	NextWake time.Time

	// Blocked — task, навсегда заблокированные незарегистрированной зависимостью.
	Blocked []domain.TaskID

	// Pending — количество PENDING task, которые ещё могут запуститься
	// (включая уже стоящие в очереди), без учёта Blocked и Skipped.
	Pending int
}

// Resolve вычисляет готовые и пропущенные task для одного тика.
//
// Пропуск распространяется до неподвижной точки: цепочка A → B → C,
// где A упал, даёт SKIPPED и для B, и для C за один вызов.
//
// Функция чистая: nodes не модифицируются.
func Resolve(nodes []Node, now time.Time, opts Options) Resolution {
	var res Resolution

	status := make(map[domain.TaskID]domain.TaskStatus, len(nodes))
	for i := range nodes {
		status[nodes[i].ID] = nodes[i].Status
	}

	ordered := make([]*Node, len(nodes))
	for i := range nodes {
		ordered[i] = &nodes[i]
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	if !opts.IgnoreDependencies {
		res.Skipped = propagateSkips(ordered, status)
	}

	blocked := make(map[domain.TaskID]bool)
	if !opts.IgnoreDependencies {
		blocked = findBlocked(ordered, status)
	}

	ready := make([]*Node, 0)
	for _, node := range ordered {
		if status[node.ID] != domain.TaskStatusPending {
			continue
		}
		if blocked[node.ID] {
			res.Blocked = append(res.Blocked, node.ID)
			continue
		}
		res.Pending++

		if node.Queued {
			continue
		}
		if !opts.IgnoreDependencies && !depsCompleted(node, status) {
			continue
		}

		if node.NotReadyUntil.After(now) {
			res.Waiting++
			if res.NextWake.IsZero() || node.NotReadyUntil.Before(res.NextWake) {
				res.NextWake = node.NotReadyUntil
			}
			continue
		}

		ready = append(ready, node)
	}

	if !opts.IgnorePriority {
		sort.SliceStable(ready, func(i, j int) bool {
			return ready[i].Priority > ready[j].Priority
		})
	}

	res.Ready = make([]domain.TaskID, len(ready))
	for i, node := range ready {
		res.Ready[i] = node.ID
	}

	return res
}

// PropagateSkips распространяет SKIPPED от неуспешно завершённых task
// до неподвижной точки. Используется и тиком, и немедленно при отмене.
func PropagateSkips(nodes []Node) []Skip {
	status := make(map[domain.TaskID]domain.TaskStatus, len(nodes))
	ordered := make([]*Node, len(nodes))
	for i := range nodes {
		status[nodes[i].ID] = nodes[i].Status
		ordered[i] = &nodes[i]
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	return propagateSkips(ordered, status)
}

// propagateSkips помечает в status пропущенные task и возвращает их.
func propagateSkips(ordered []*Node, status map[domain.TaskID]domain.TaskStatus) []Skip {
	var skipped []Skip

	for changed := true; changed; {
		changed = false
		for _, node := range ordered {
			if status[node.ID] != domain.TaskStatusPending {
				continue
			}
			for _, dep := range node.DependsOn {
				depStatus, ok := status[dep]
				if !ok || !depStatus.PoisonsDependents() {
					continue
				}
				status[node.ID] = domain.TaskStatusSkipped
				skipped = append(skipped, Skip{ID: node.ID, Cause: dep})
				changed = true
				break
			}
		}
	}

	return skipped
}

// findBlocked находит PENDING task, у которых есть незарегистрированная
// зависимость (прямо или транзитивно).
func findBlocked(ordered []*Node, status map[domain.TaskID]domain.TaskStatus) map[domain.TaskID]bool {
	blocked := make(map[domain.TaskID]bool)

	for changed := true; changed; {
		changed = false
		for _, node := range ordered {
			if blocked[node.ID] || status[node.ID] != domain.TaskStatusPending {
				continue
			}
			for _, dep := range node.DependsOn {
				if _, ok := status[dep]; !ok || blocked[dep] {
					blocked[node.ID] = true
					changed = true
					break
				}
			}
		}
	}

	return blocked
}

// depsCompleted проверяет, что все зависимости зарегистрированы и COMPLETED.
func depsCompleted(node *Node, status map[domain.TaskID]domain.TaskStatus) bool {
	for _, dep := range node.DependsOn {
		if status[dep] != domain.TaskStatusCompleted {
			return false
		}
	}
	return true
}
