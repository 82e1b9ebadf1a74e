package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Graph — граф зависимостей: task → его зависимости.
//
// Рёбра на незарегистрированные task игнорируются: такие зависимости
// блокируют task, но не образуют цикл.
type Graph map[domain.TaskID][]domain.TaskID

// TopologicalOrder выполняет топологическую сортировку (алгоритм Кана).
// Возвращает ErrCyclicDependency, если обнаружен цикл; в ошибке
// перечислены task, лежащие на циклах. Task, лишь зависящие от цикла,
// в ошибку не попадают.
func (g Graph) TopologicalOrder() ([]domain.TaskID, error) {
	inDegree := make(map[domain.TaskID]int, len(g))
	dependents := make(map[domain.TaskID][]domain.TaskID, len(g))

	for id := range g {
		inDegree[id] = 0
	}
	for id, deps := range g {
		seen := make(map[domain.TaskID]bool, len(deps))
		for _, dep := range deps {
			if _, ok := g[dep]; !ok || seen[dep] {
				continue
			}
			seen[dep] = true
			inDegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	// Очередь узлов с inDegree = 0, отсортированная для детерминизма
	queue := make([]domain.TaskID, 0)
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sortIDs(queue)

	order := make([]domain.TaskID, 0, len(g))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		next := dependents[id]
		sortIDs(next)
		for _, dependent := range next {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	// Если не все узлы обработаны — есть цикл
	if len(order) != len(g) {
		rest := make(map[domain.TaskID]bool, len(g)-len(order))
		for id, deg := range inDegree {
			if deg > 0 {
				rest[id] = true
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrCyclicDependency, joinIDs(onCycle(rest, dependents)))
	}

	return order, nil
}

// onCycle возвращает узлы rest, лежащие на цикле: компоненты сильной
// связности (Тарьян) размером больше одного узла и петли.
func onCycle(rest map[domain.TaskID]bool, dependents map[domain.TaskID][]domain.TaskID) []domain.TaskID {
	index := make(map[domain.TaskID]int, len(rest))
	low := make(map[domain.TaskID]int, len(rest))
	onStack := make(map[domain.TaskID]bool, len(rest))
	var stack, cyclic []domain.TaskID

	var visit func(v domain.TaskID)
	visit = func(v domain.TaskID) {
		index[v] = len(index)
		low[v] = index[v]
		stack = append(stack, v)
		onStack[v] = true

		selfLoop := false
		for _, w := range dependents[v] {
			switch {
			case !rest[w]:
			case w == v:
				selfLoop = true
			case onStack[w]:
				low[v] = min(low[v], index[w])
			default:
				if _, seen := index[w]; !seen {
					visit(w)
					low[v] = min(low[v], low[w])
				}
			}
		}

		if low[v] != index[v] {
			return
		}
		i := len(stack) - 1
		for stack[i] != v {
			i--
		}
		component := stack[i:]
		for _, w := range component {
			onStack[w] = false
		}
		if len(component) > 1 || selfLoop {
			cyclic = append(cyclic, component...)
		}
		stack = stack[:i]
	}

	ids := make([]domain.TaskID, 0, len(rest))
	for id := range rest {
		ids = append(ids, id)
	}
	sortIDs(ids)
	for _, id := range ids {
		if _, seen := index[id]; !seen {
			visit(id)
		}
	}

	sortIDs(cyclic)
	return cyclic
}

func sortIDs(ids []domain.TaskID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

func joinIDs(ids []domain.TaskID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}
