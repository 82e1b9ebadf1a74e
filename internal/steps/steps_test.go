package steps

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

func request(config map[string]any) *Request {
	return NewRequest("test", config, 0)
}

// Registry

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	if r.Count() != 0 {
		t.Errorf("expected empty registry")
	}

	r.Register(NewDelayStep())
	if r.Count() != 1 {
		t.Errorf("expected 1 step, got %d", r.Count())
	}

	step, err := r.Get("delay")
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if step.Type() != "delay" {
		t.Errorf("expected delay, got %s", step.Type())
	}

	_, err = r.Get("unknown")
	if !errors.Is(err, ErrStepNotFound) {
		t.Errorf("expected ErrStepNotFound, got %v", err)
	}

	r.Unregister("delay")
	if r.Has("delay") {
		t.Error("should not have delay after unregister")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	expected := []string{"delay", "fail", "http", "transform"}
	types := r.Types()
	if len(types) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, types)
	}
	for i, typ := range expected {
		if types[i] != typ {
			t.Errorf("types[%d] = %s, want %s", i, types[i], typ)
		}
	}
}

func TestRegistry_Build(t *testing.T) {
	r := DefaultRegistry()

	body, err := r.Build("t1", "transform", map[string]any{"answer": 42}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcome := body.Execute(context.Background())
	if !outcome.OK() {
		t.Fatalf("expected success, got %v", outcome.Err)
	}
	out, ok := outcome.Output.(map[string]any)
	if !ok || out["answer"] != 42 {
		t.Errorf("unexpected output %v", outcome.Output)
	}

	if _, err := r.Build("t2", "parallel", nil, 0); !errors.Is(err, ErrStepNotFound) {
		t.Errorf("expected ErrStepNotFound, got %v", err)
	}
}

func TestExecutable_Failure(t *testing.T) {
	body := Executable(NewDelayStep(), request(nil))

	outcome := body.Execute(context.Background())
	if outcome.OK() {
		t.Fatal("expected failure")
	}
	if !errors.Is(outcome.Err, domain.ErrTaskExecution) {
		t.Errorf("expected ErrTaskExecution, got %v", outcome.Err)
	}
	if !errors.Is(outcome.Err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", outcome.Err)
	}
}

// Delay

func TestDelayStep_Execute(t *testing.T) {
	step := NewDelayStep()

	start := time.Now()
	resp, err := step.Execute(context.Background(), request(map[string]any{"duration_ms": 50}))
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("delay was too short: %v", elapsed)
	}
	if resp.Outputs["duration_ms"] != int64(50) {
		t.Errorf("expected duration_ms 50, got %v", resp.Outputs["duration_ms"])
	}
}

func TestDelayStep_Timeout(t *testing.T) {
	step := NewDelayStep()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := step.Execute(ctx, request(map[string]any{"duration_sec": 1}))
	elapsed := time.Since(start)

	if !errors.Is(err, domain.ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
	if errors.Is(err, ErrStepCancelled) {
		t.Error("deadline should not be reported as cancellation")
	}
	if domain.SeverityOf(err) != domain.SeverityWarning {
		t.Errorf("expected warning severity, got %s", domain.SeverityOf(err))
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("timeout took too long: %v", elapsed)
	}
}

func TestDelayStep_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := NewDelayStep().Execute(ctx, request(map[string]any{"duration_sec": 1}))

	if !errors.Is(err, ErrStepCancelled) {
		t.Errorf("expected ErrStepCancelled, got %v", err)
	}
	if errors.Is(err, domain.ErrTimeout) {
		t.Error("cancellation should not be reported as timeout")
	}
	if domain.SeverityOf(err) != domain.SeverityInfo {
		t.Errorf("expected info severity, got %s", domain.SeverityOf(err))
	}
}

func TestDelayStep_DurationString(t *testing.T) {
	ctx := domain.WithAttempt(context.Background(), 3)

	resp, err := NewDelayStep().Execute(ctx, NewRequest("sleeper", map[string]any{"duration": "20ms"}, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Outputs["duration_ms"] != int64(20) {
		t.Errorf("expected duration_ms 20, got %v", resp.Outputs["duration_ms"])
	}
	if resp.Outputs["task_id"] != "sleeper" {
		t.Errorf("expected task_id sleeper, got %v", resp.Outputs["task_id"])
	}
	if resp.Outputs["attempt"] != 3 {
		t.Errorf("expected attempt 3, got %v", resp.Outputs["attempt"])
	}
}

func TestDelayStep_InvalidConfig(t *testing.T) {
	for _, config := range []map[string]any{{}, {"duration": "soon"}, {"duration": "-1s"}} {
		_, err := NewDelayStep().Execute(context.Background(), request(config))
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%v: expected ErrInvalidConfig, got %v", config, err)
		}
	}
}

// HTTP

func TestHTTPStep_GET(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	}))
	defer server.Close()

	resp, err := NewHTTPStep().Execute(context.Background(), request(map[string]any{
		"url": server.URL,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Outputs["status_code"] != 200 {
		t.Errorf("expected status_code 200, got %v", resp.Outputs["status_code"])
	}
	body, ok := resp.Outputs["body"].(map[string]any)
	if !ok {
		t.Fatalf("expected body to be map, got %T", resp.Outputs["body"])
	}
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", body["status"])
	}
	if resp.Outputs["task_id"] != "test" {
		t.Errorf("expected task_id test, got %v", resp.Outputs["task_id"])
	}
	if _, ok := resp.Outputs["duration_ms"].(int64); !ok {
		t.Errorf("expected duration_ms, got %v", resp.Outputs["duration_ms"])
	}
}

func TestHTTPStep_POST_JSON(t *testing.T) {
	var receivedBody map[string]any
	var receivedAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected Content-Type application/json")
		}
		receivedAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&receivedBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	resp, err := NewHTTPStep().Execute(context.Background(), request(map[string]any{
		"method":  "post",
		"url":     server.URL,
		"headers": map[string]any{"Authorization": "Bearer secret123"},
		"body":    map[string]any{"name": "test"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Outputs["status_code"] != 201 {
		t.Errorf("expected status_code 201, got %v", resp.Outputs["status_code"])
	}
	if receivedBody["name"] != "test" {
		t.Errorf("expected name 'test', got %v", receivedBody["name"])
	}
	if receivedAuth != "Bearer secret123" {
		t.Errorf("expected auth header, got %s", receivedAuth)
	}
}

func TestHTTPStep_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewHTTPStep().Execute(context.Background(), request(map[string]any{"url": server.URL}))
	if !errors.Is(err, ErrHTTPStatus) {
		t.Fatalf("expected ErrHTTPStatus, got %v", err)
	}

	var hErr *HTTPError
	if !errors.As(err, &hErr) {
		t.Fatalf("expected *HTTPError, got %T", err)
	}
	if hErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", hErr.StatusCode)
	}
	if !IsHTTPError(err) {
		t.Error("IsHTTPError should be true")
	}
	if domain.SeverityOf(err) != domain.SeverityError {
		t.Errorf("expected error severity for 5xx, got %s", domain.SeverityOf(err))
	}
}

func TestHTTPStep_ClientErrorSeverity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewHTTPStep().Execute(context.Background(), request(map[string]any{"url": server.URL}))
	if !errors.Is(err, ErrHTTPStatus) {
		t.Fatalf("expected ErrHTTPStatus, got %v", err)
	}
	if domain.SeverityOf(err) != domain.SeverityWarning {
		t.Errorf("expected warning severity for 4xx, got %s", domain.SeverityOf(err))
	}
}

func TestHTTPStep_InvalidConfig(t *testing.T) {
	_, err := NewHTTPStep().Execute(context.Background(), request(map[string]any{}))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func hangingServer(t *testing.T) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})
	return server
}

func TestHTTPStep_Cancellation(t *testing.T) {
	server := hangingServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := NewHTTPStep().Execute(ctx, request(map[string]any{"url": server.URL}))
	if !errors.Is(err, ErrStepCancelled) {
		t.Errorf("expected ErrStepCancelled, got %v", err)
	}
	if domain.SeverityOf(err) != domain.SeverityInfo {
		t.Errorf("expected info severity, got %s", domain.SeverityOf(err))
	}
}

func TestHTTPStep_TaskTimeout(t *testing.T) {
	server := hangingServer(t)

	start := time.Now()
	_, err := NewHTTPStep().Execute(context.Background(),
		NewRequest("slow", map[string]any{"url": server.URL}, 50*time.Millisecond))
	elapsed := time.Since(start)

	if !errors.Is(err, domain.ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
	if domain.SeverityOf(err) != domain.SeverityWarning {
		t.Errorf("expected warning severity, got %s", domain.SeverityOf(err))
	}
	if elapsed > 2*time.Second {
		t.Errorf("task timeout was not applied: %v", elapsed)
	}
}

func TestRequestTimeout(t *testing.T) {
	tests := []struct {
		name       string
		task       time.Duration
		timeoutSec int
		want       time.Duration
	}{
		{"default", 0, 0, defaultHTTPTimeout},
		{"task only", 2 * time.Second, 0, 2 * time.Second},
		{"config only", 0, 5, 5 * time.Second},
		{"task shorter", time.Second, 5, time.Second},
		{"config shorter", time.Minute, 5, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := requestTimeout(tt.task, tt.timeoutSec); got != tt.want {
				t.Errorf("requestTimeout(%v, %d) = %v, want %v", tt.task, tt.timeoutSec, got, tt.want)
			}
		})
	}
}

// Transform

func TestTransformStep_Mappings(t *testing.T) {
	resp, err := NewTransformStep().Execute(context.Background(), request(map[string]any{
		"mappings": map[string]any{
			"total": "2",
			"ok":    "true",
			"items": `[1,2]`,
			"name":  "report",
		},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Outputs["total"] != int64(2) {
		t.Errorf("expected total 2, got %v (type %T)", resp.Outputs["total"], resp.Outputs["total"])
	}
	if resp.Outputs["ok"] != true {
		t.Errorf("expected ok true, got %v", resp.Outputs["ok"])
	}
	if items, ok := resp.Outputs["items"].([]any); !ok || len(items) != 2 {
		t.Errorf("expected 2 items, got %v", resp.Outputs["items"])
	}
	if resp.Outputs["name"] != "report" {
		t.Errorf("expected name report, got %v", resp.Outputs["name"])
	}
}

func TestTransformStep_InvalidMappings(t *testing.T) {
	_, err := NewTransformStep().Execute(context.Background(), request(map[string]any{
		"mappings": "nope",
	}))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestTransformStep_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewTransformStep().Execute(ctx, request(nil))
	if !errors.Is(err, ErrStepCancelled) {
		t.Errorf("expected ErrStepCancelled, got %v", err)
	}
}

// Fail

func TestFailStep_Execute(t *testing.T) {
	_, err := NewFailStep().Execute(context.Background(), request(map[string]any{
		"message":  "upstream unavailable",
		"severity": "warning",
	}))
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "upstream unavailable" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if domain.SeverityOf(err) != domain.SeverityWarning {
		t.Errorf("expected warning severity, got %s", domain.SeverityOf(err))
	}
	if !errors.Is(err, domain.ErrTaskExecution) {
		t.Errorf("expected ErrTaskExecution, got %v", err)
	}
}

func TestFailStep_Defaults(t *testing.T) {
	_, err := NewFailStep().Execute(context.Background(), request(nil))
	if err == nil || err.Error() != defaultFailMessage {
		t.Errorf("expected default message, got %v", err)
	}
	if domain.SeverityOf(err) != domain.SeverityError {
		t.Errorf("expected error severity, got %s", domain.SeverityOf(err))
	}
}

func TestFailStep_InvalidSeverity(t *testing.T) {
	_, err := NewFailStep().Execute(context.Background(), request(map[string]any{"severity": "fatal"}))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestFailStep_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewFailStep().Execute(ctx, request(map[string]any{"after_ms": 1000}))
	if !errors.Is(err, domain.ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

// Helpers

func TestGetConfigHelpers(t *testing.T) {
	config := map[string]any{
		"string_val":     "test",
		"int_val":        42,
		"float_val":      3.14,
		"bool_val":       true,
		"map_val":        map[string]any{"key": "value"},
		"string_map_val": map[string]string{"key": "value"},
	}

	if GetConfigString(config, "string_val") != "test" {
		t.Error("GetConfigString failed")
	}
	if GetConfigInt(config, "int_val") != 42 {
		t.Error("GetConfigInt failed for int")
	}
	if GetConfigInt(config, "float_val") != 3 {
		t.Error("GetConfigInt failed for float")
	}
	if !GetConfigBool(config, "missing", true) {
		t.Error("GetConfigBool should return default for missing")
	}
	if m := GetConfigMap(config, "map_val"); m == nil || m["key"] != "value" {
		t.Error("GetConfigMap failed")
	}
	if ms := GetConfigMapString(config, "map_val"); ms == nil || ms["key"] != "value" {
		t.Error("GetConfigMapString failed for any map")
	}
	if ms := GetConfigMapString(config, "string_map_val"); ms == nil || ms["key"] != "value" {
		t.Error("GetConfigMapString failed for string map")
	}
}
