package api

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/registry"
)

// TaskService — операции executor'а, доступные через API.
// Реализуется *executor.Executor.
type TaskService interface {
	Tasks() []registry.Snapshot
	GetTask(id domain.TaskID) (registry.Snapshot, error)
	GetResult(id domain.TaskID) (domain.ExecutionResult, error)
	CancelTask(id domain.TaskID) error
	GetStatistics() executor.Statistics
	RunID() uuid.UUID
}

// ResultStore — журнал результатов прошлых запусков. Реализуется *repo.ResultRepo.
type ResultStore interface {
	ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.ExecutionResult, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	tasks   TaskService
	results ResultStore
	logger  *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Tasks TaskService

	// Results (опционально) — без журнала /runs/{id}/results отвечает 404.
	Results ResultStore

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		tasks:   cfg.Tasks,
		results: cfg.Results,
		logger:  logger,
	}
}
