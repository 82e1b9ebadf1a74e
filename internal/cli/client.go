package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, клиент не импортирует internal/api) ---

// TaskResponse — task из API.
type TaskResponse struct {
	ID            string            `json:"id"`
	Name          string            `json:"name,omitempty"`
	Category      string            `json:"category,omitempty"`
	Priority      string            `json:"priority"`
	DependsOn     []string          `json:"depends_on,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	MaxAttempts   int               `json:"max_attempts"`
	TimeoutMs     int64             `json:"timeout_ms,omitempty"`
	Status        string            `json:"status"`
	Attempt       int               `json:"attempt"`
	Queued        bool              `json:"queued"`
	CreatedAt     string            `json:"created_at"`
	StartedAt     string            `json:"started_at,omitempty"`
	CompletedAt   string            `json:"completed_at,omitempty"`
	NotReadyUntil string            `json:"not_ready_until,omitempty"`
	SkipCause     string            `json:"skip_cause,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// ResultResponse — результат task из API.
type ResultResponse struct {
	ID         string `json:"id"`
	RunID      string `json:"run_id"`
	Name       string `json:"name,omitempty"`
	Category   string `json:"category,omitempty"`
	Status     string `json:"status"`
	StartedAt  string `json:"started_at,omitempty"`
	FinishedAt string `json:"finished_at"`
	DurationMs int64  `json:"duration_ms"`
	Output     any    `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	Severity   string `json:"severity,omitempty"`
	Attempts   int    `json:"attempts"`
}

// StatsResponse — статистика из API.
type StatsResponse struct {
	RunID             string  `json:"run_id"`
	Submitted         int     `json:"submitted"`
	Completed         int     `json:"completed"`
	Failed            int     `json:"failed"`
	Cancelled         int     `json:"cancelled"`
	Skipped           int     `json:"skipped"`
	Blocked           int     `json:"blocked"`
	Retries           int     `json:"retries"`
	Running           int     `json:"running"`
	WorkerCount       int     `json:"worker_count"`
	CurrentLoad       float64 `json:"current_load"`
	TotalDurationMs   int64   `json:"total_duration_ms"`
	AverageDurationMs int64   `json:"average_duration_ms"`
}

// ListTasksOpts — параметры фильтрации task.
type ListTasksOpts struct {
	Status   string
	Category string
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError — ошибка, возвращённая API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error реализует интерфейс error.
func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент для API запущенного conveyor serve.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Tasks ---

// ListTasks возвращает task текущего запуска.
func (c *Client) ListTasks(ctx context.Context, opts ListTasksOpts) ([]TaskResponse, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Category != "" {
		params.Set("category", opts.Category)
	}

	var tasks []TaskResponse
	err := c.list(ctx, "/api/v1/tasks", params, &tasks)
	return tasks, err
}

// GetTask возвращает task по ID.
func (c *Client) GetTask(ctx context.Context, id string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.get(ctx, "/api/v1/tasks/"+url.PathEscape(id), &task)
	return &task, err
}

// GetResult возвращает результат финального task.
func (c *Client) GetResult(ctx context.Context, id string) (*ResultResponse, error) {
	var res ResultResponse
	err := c.get(ctx, "/api/v1/tasks/"+url.PathEscape(id)+"/result", &res)
	return &res, err
}

// CancelTask отменяет task.
func (c *Client) CancelTask(ctx context.Context, id string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.post(ctx, "/api/v1/tasks/"+url.PathEscape(id)+"/cancel", nil, &task)
	return &task, err
}

// --- Runs ---

// GetStats возвращает статистику текущего запуска.
func (c *Client) GetStats(ctx context.Context) (*StatsResponse, error) {
	var stats StatsResponse
	err := c.get(ctx, "/api/v1/stats", &stats)
	return &stats, err
}

// ListRunResults возвращает результаты прошлого запуска из журнала.
func (c *Client) ListRunResults(ctx context.Context, runID string) ([]ResultResponse, error) {
	var results []ResultResponse
	err := c.list(ctx, "/api/v1/runs/"+url.PathEscape(runID)+"/results", nil, &results)
	return results, err
}

// --- HTTP helpers ---

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.doData(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	return c.doData(ctx, http.MethodPost, path, body, result)
}

func (c *Client) list(ctx context.Context, path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(ctx context.Context, method, path string, body any, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
	}

	return apiErr
}
