// Package queue реализует очередь допуска: ограниченную по ёмкости
// приоритетную очередь ID task, ожидающих свободного слота в пуле.
package queue

import (
	"container/heap"
	"sync"

	"github.com/shaiso/Conveyor/internal/domain"
)

// DefaultCapacity — ёмкость очереди по умолчанию.
const DefaultCapacity = 1000

// Item — элемент очереди.
type Item struct {
	ID       domain.TaskID
	Priority domain.Priority

	// Seq — порядок регистрации (tie-break при равном приоритете).
	Seq uint64
}

// Queue — ограниченная приоритетная очередь.
//
// Pop возвращает элемент с наибольшим приоритетом, при равенстве —
// с наименьшим Seq. Если byPriority == false, учитывается только Seq.
type Queue struct {
	mu         sync.Mutex
	items      itemHeap
	index      map[domain.TaskID]*heapItem
	capacity   int
	byPriority bool
}

// New создаёт очередь. capacity <= 0 означает DefaultCapacity.
func New(capacity int, byPriority bool) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		items:      itemHeap{byPriority: byPriority},
		index:      make(map[domain.TaskID]*heapItem),
		capacity:   capacity,
		byPriority: byPriority,
	}
}

// Offer добавляет элементы по порядку, пока есть место.
// Уже стоящие в очереди ID пропускаются.
// Возвращает количество принятых и не поместившихся элементов;
// принятые — это префикс items без дубликатов.
func (q *Queue) Offer(items []Item) (accepted, overflow int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, it := range items {
		if _, exists := q.index[it.ID]; exists {
			continue
		}
		if q.items.Len() >= q.capacity {
			return accepted, len(items) - i
		}
		hi := &heapItem{Item: it}
		heap.Push(&q.items, hi)
		q.index[it.ID] = hi
		accepted++
	}
	return accepted, 0
}

// Pop извлекает элемент с наивысшим приоритетом.
func (q *Queue) Pop() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		return Item{}, false
	}
	hi := heap.Pop(&q.items).(*heapItem)
	delete(q.index, hi.ID)
	return hi.Item, true
}

// Peek возвращает элемент с наивысшим приоритетом без извлечения.
func (q *Queue) Peek() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		return Item{}, false
	}
	return q.items.entries[0].Item, true
}

// Remove удаляет элемент по ID. Возвращает false, если его нет.
func (q *Queue) Remove(id domain.TaskID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	hi, ok := q.index[id]
	if !ok {
		return false
	}
	heap.Remove(&q.items, hi.index)
	delete(q.index, id)
	return true
}

// Len возвращает количество элементов.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.items.Len()
}

// Capacity возвращает ёмкость очереди.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Clear удаляет все элементы.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items.entries = nil
	q.index = make(map[domain.TaskID]*heapItem)
}

type heapItem struct {
	Item
	index int
}

// itemHeap реализует heap.Interface.
type itemHeap struct {
	entries    []*heapItem
	byPriority bool
}

func (h itemHeap) Len() int { return len(h.entries) }

func (h itemHeap) Less(i, j int) bool {
	a, b := h.entries[i], h.entries[j]
	if h.byPriority && a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.Seq < b.Seq
}

func (h itemHeap) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
	h.entries[i].index = i
	h.entries[j].index = j
}

func (h *itemHeap) Push(x any) {
	hi := x.(*heapItem)
	hi.index = len(h.entries)
	h.entries = append(h.entries, hi)
}

func (h *itemHeap) Pop() any {
	old := h.entries
	n := len(old)
	hi := old[n-1]
	old[n-1] = nil
	hi.index = -1
	h.entries = old[:n-1]
	return hi
}
