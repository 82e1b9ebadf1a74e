package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shaiso/Conveyor/internal/domain"
)

// resultsSchema — таблица журнала результатов.
const resultsSchema = `
	CREATE TABLE IF NOT EXISTS task_results (
		id           UUID PRIMARY KEY,
		run_id       UUID NOT NULL,
		task_id      TEXT NOT NULL,
		name         TEXT,
		category     TEXT,
		status       TEXT NOT NULL,
		attempts     INT NOT NULL DEFAULT 0,
		started_at   TIMESTAMPTZ,
		finished_at  TIMESTAMPTZ NOT NULL,
		duration_ms  BIGINT NOT NULL DEFAULT 0,
		output       JSONB,
		error        TEXT,
		severity     TEXT,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (run_id, task_id)
	);
	CREATE INDEX IF NOT EXISTS task_results_run_id_idx ON task_results (run_id, finished_at);
`

// ResultRepo — журнал ExecutionResult в PostgreSQL.
//
// Только запись для отчётности: executor не читает журнал и не
// восстанавливает из него состояние. Реализует executor.Observer.
type ResultRepo struct {
	db DB
}

// NewResultRepo создаёт новый ResultRepo.
func NewResultRepo(db DB) *ResultRepo {
	return &ResultRepo{db: db}
}

// EnsureSchema создаёт таблицу, если её нет.
func (r *ResultRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, resultsSchema); err != nil {
		return fmt.Errorf("ensure task_results schema: %w", err)
	}
	return nil
}

// Insert записывает результат task.
// Повторная запись того же task в том же запуске возвращает ErrAlreadyExists.
func (r *ResultRepo) Insert(ctx context.Context, result domain.ExecutionResult) error {
	row, err := newResultRow(result)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO task_results (id, run_id, task_id, name, category, status, attempts,
		                          started_at, finished_at, duration_ms, output, error, severity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (run_id, task_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query,
		row.ID,
		row.RunID,
		row.TaskID,
		row.Name,
		row.Category,
		row.Status,
		row.Attempts,
		row.StartedAt,
		row.FinishedAt,
		row.DurationMs,
		row.Output,
		row.Error,
		row.Severity,
	)
	if err != nil {
		return fmt.Errorf("insert task result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: task %s in run %s", ErrAlreadyExists, result.ID, result.RunID)
	}
	return nil
}

// TaskFinished записывает результат. Реализует executor.Observer.
func (r *ResultRepo) TaskFinished(ctx context.Context, result domain.ExecutionResult) error {
	return r.Insert(ctx, result)
}

// Get возвращает результат task в запуске.
func (r *ResultRepo) Get(ctx context.Context, runID uuid.UUID, taskID domain.TaskID) (*domain.ExecutionResult, error) {
	query := `
		SELECT run_id, task_id, name, category, status, attempts,
		       started_at, finished_at, duration_ms, output, error, severity
		FROM task_results
		WHERE run_id = $1 AND task_id = $2
	`
	return scanResult(r.db.QueryRow(ctx, query, runID, string(taskID)))
}

// ListByRun возвращает результаты запуска в порядке завершения.
func (r *ResultRepo) ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.ExecutionResult, error) {
	query := `
		SELECT run_id, task_id, name, category, status, attempts,
		       started_at, finished_at, duration_ms, output, error, severity
		FROM task_results
		WHERE run_id = $1
		ORDER BY finished_at ASC, task_id ASC
	`
	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list task results: %w", err)
	}
	defer rows.Close()

	var results []domain.ExecutionResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *res)
	}
	return results, rows.Err()
}

// CountByRunAndStatus возвращает количество результатов запуска со статусом.
func (r *ResultRepo) CountByRunAndStatus(ctx context.Context, runID uuid.UUID, status domain.TaskStatus) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM task_results WHERE run_id = $1 AND status = $2
	`, runID, string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count task results: %w", err)
	}
	return count, nil
}

// --- Helpers ---

// resultRow — ExecutionResult в форме колонок task_results.
type resultRow struct {
	ID         uuid.UUID
	RunID      uuid.UUID
	TaskID     string
	Name       *string
	Category   *string
	Status     string
	Attempts   int
	StartedAt  *time.Time
	FinishedAt time.Time
	DurationMs int64
	Output     []byte
	Error      *string
	Severity   *string
}

func newResultRow(result domain.ExecutionResult) (resultRow, error) {
	row := resultRow{
		ID:         uuid.New(),
		RunID:      result.RunID,
		TaskID:     string(result.ID),
		Name:       nullString(result.Name),
		Category:   nullString(result.Category),
		Status:     string(result.Status),
		Attempts:   result.Attempts,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		DurationMs: result.Duration.Milliseconds(),
		Error:      nullString(result.Error),
		Severity:   nullString(string(result.Severity)),
	}

	if result.Output != nil {
		out, err := json.Marshal(result.Output)
		if err != nil {
			return resultRow{}, fmt.Errorf("marshal output of %s: %w", result.ID, err)
		}
		row.Output = out
	}

	return row, nil
}

func scanResult(row pgx.Row) (*domain.ExecutionResult, error) {
	var res domain.ExecutionResult
	var taskID, status string
	var name, category, taskError, severity *string
	var durationMs int64
	var output []byte

	err := row.Scan(
		&res.RunID,
		&taskID,
		&name,
		&category,
		&status,
		&res.Attempts,
		&res.StartedAt,
		&res.FinishedAt,
		&durationMs,
		&output,
		&taskError,
		&severity,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task result: %w", err)
	}

	res.ID = domain.TaskID(taskID)
	res.Status = domain.TaskStatus(status)
	res.Duration = time.Duration(durationMs) * time.Millisecond
	res.Name = deref(name)
	res.Category = deref(category)
	res.Error = deref(taskError)
	res.Severity = domain.Severity(deref(severity))

	if len(output) > 0 {
		if err := json.Unmarshal(output, &res.Output); err != nil {
			return nil, fmt.Errorf("unmarshal output of %s: %w", taskID, err)
		}
	}

	return &res, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
