package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/registry"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Health отвечает 200, пока процесс жив.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	Success(w, map[string]any{
		"status": "ok",
		"run_id": h.tasks.RunID(),
	})
}

// ListTasks возвращает все task текущего запуска в порядке регистрации.
// GET /api/v1/tasks?status=FAILED&category=etl
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	status := domain.TaskStatus(strings.ToUpper(r.URL.Query().Get("status")))
	category := r.URL.Query().Get("category")

	result := make([]TaskResponse, 0)
	for _, snap := range h.tasks.Tasks() {
		if !matches(snap, status, category) {
			continue
		}
		result = append(result, TaskFromSnapshot(snap))
	}

	List(w, result, len(result))
}

// GetTask возвращает task по ID.
// GET /api/v1/tasks/{id}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	snap, err := h.tasks.GetTask(taskID(r))
	if HandleExecutorError(w, h.logger, err) {
		return
	}
	Success(w, TaskFromSnapshot(snap))
}

// GetTaskResult возвращает результат task.
// До финального статуса отвечает 422.
// GET /api/v1/tasks/{id}/result
func (h *Handler) GetTaskResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.tasks.GetResult(taskID(r))
	if HandleExecutorError(w, h.logger, err) {
		return
	}
	Success(w, ResultFromDomain(res))
}

// CancelTask отменяет task и каскадно пропускает зависимые.
// POST /api/v1/tasks/{id}/cancel
func (h *Handler) CancelTask(w http.ResponseWriter, r *http.Request) {
	id := taskID(r)
	if HandleExecutorError(w, h.logger, h.tasks.CancelTask(id)) {
		return
	}

	telemetry.FromContext(r.Context()).Info("task cancelled via api", "task_id", id)

	snap, err := h.tasks.GetTask(id)
	if HandleExecutorError(w, h.logger, err) {
		return
	}
	Success(w, TaskFromSnapshot(snap))
}

// GetStats возвращает статистику текущего запуска.
// GET /api/v1/stats
func (h *Handler) GetStats(w http.ResponseWriter, _ *http.Request) {
	s := h.tasks.GetStatistics()
	Success(w, StatsResponse{
		RunID:             h.tasks.RunID(),
		Submitted:         s.Submitted,
		Completed:         s.Completed,
		Failed:            s.Failed,
		Cancelled:         s.Cancelled,
		Skipped:           s.Skipped,
		Blocked:           s.Blocked,
		Retries:           s.Retries,
		Running:           s.Running,
		WorkerCount:       s.WorkerCount,
		CurrentLoad:       s.CurrentLoad,
		TotalDurationMs:   s.TotalDuration.Milliseconds(),
		AverageDurationMs: s.AverageDuration.Milliseconds(),
	})
}

// ListRunResults возвращает результаты запуска из журнала.
// GET /api/v1/runs/{run_id}/results
func (h *Handler) ListRunResults(w http.ResponseWriter, r *http.Request) {
	if h.results == nil {
		NotFound(w, "result journal is not configured")
		return
	}

	runID, err := uuid.Parse(chi.URLParam(r, "run_id"))
	if err != nil {
		BadRequest(w, "invalid run_id")
		return
	}

	results, err := h.results.ListByRun(r.Context(), runID)
	if HandleExecutorError(w, h.logger, err) {
		return
	}

	resp := make([]ResultResponse, len(results))
	for i, res := range results {
		resp[i] = ResultFromDomain(res)
	}
	List(w, resp, len(resp))
}

func taskID(r *http.Request) domain.TaskID {
	return domain.TaskID(chi.URLParam(r, "id"))
}

func matches(s registry.Snapshot, status domain.TaskStatus, category string) bool {
	if status != "" && s.State.Status != status {
		return false
	}
	if category != "" && s.Spec.Category != category {
		return false
	}
	return true
}
