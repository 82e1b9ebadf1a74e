package executor

import (
	"sync"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Statistics — агрегированная статистика executor'а.
type Statistics struct {
	Submitted int `json:"submitted"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Skipped   int `json:"skipped"`

	// Retries — количество повторных попыток.
	Retries int `json:"retries"`

	// Blocked — PENDING task, навсегда заблокированные незарегистрированной
	// зависимостью (по последнему тику).
	Blocked int `json:"blocked"`

	// TotalDuration — суммарная длительность COMPLETED и FAILED task.
	TotalDuration time.Duration `json:"total_duration"`

	// AverageDuration — TotalDuration / (Completed + Failed).
	AverageDuration time.Duration `json:"average_duration"`

	Running     int     `json:"running"`
	WorkerCount int     `json:"worker_count"`
	CurrentLoad float64 `json:"current_load"`
}

// Terminal возвращает количество task в финальных статусах.
func (s Statistics) Terminal() int {
	return s.Completed + s.Failed + s.Cancelled + s.Skipped
}

// statsAggregator — счётчики под отдельным мьютексом,
// чтобы не конкурировать с реестром.
type statsAggregator struct {
	mu          sync.Mutex
	s           Statistics
	workerCount int
}

func newStatsAggregator(workerCount int) *statsAggregator {
	return &statsAggregator{workerCount: workerCount}
}

func (a *statsAggregator) submitted() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.s.Submitted++
}

func (a *statsAggregator) started() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.s.Running++
	return a.s.Running
}

// attemptDone отмечает конец попытки (в т.ч. отброшенной).
func (a *statsAggregator) attemptDone() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.s.Running > 0 {
		a.s.Running--
	}
	return a.s.Running
}

func (a *statsAggregator) retried() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.s.Retries++
}

func (a *statsAggregator) finished(status domain.TaskStatus, d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch status {
	case domain.TaskStatusCompleted:
		a.s.Completed++
		a.s.TotalDuration += d
	case domain.TaskStatusFailed:
		a.s.Failed++
		a.s.TotalDuration += d
	case domain.TaskStatusCancelled:
		a.s.Cancelled++
	case domain.TaskStatusSkipped:
		a.s.Skipped++
	}
}

func (a *statsAggregator) setBlocked(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.s.Blocked = n
}

func (a *statsAggregator) snapshot() Statistics {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.s
	s.WorkerCount = a.workerCount
	if ran := s.Completed + s.Failed; ran > 0 {
		s.AverageDuration = s.TotalDuration / time.Duration(ran)
	}
	if a.workerCount > 0 {
		s.CurrentLoad = float64(s.Running) / float64(a.workerCount)
	}
	return s
}

func (a *statsAggregator) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.s = Statistics{}
}
