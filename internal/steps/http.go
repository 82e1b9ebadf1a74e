package steps

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

const (
	// StepTypeHTTP — тип HTTP шага.
	StepTypeHTTP = "http"

	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 << 20
	maxErrorBody       = 512
)

// ErrHTTPStatus — сервер ответил статусом >= 400.
var ErrHTTPStatus = errors.New("unexpected http status")

const (
	configMethod          = "method"
	configURL             = "url"
	configHeaders         = "headers"
	configBody            = "body"
	configFollowRedirects = "follow_redirects"
	configValidateSSL     = "validate_ssl"
	configTimeoutSec      = "timeout_sec"
)

// HTTPStep вызывает внешний HTTP endpoint.
//
//	{
//	    "method": "POST",
//	    "url": "https://api.example.com/reports",
//	    "headers": {"Authorization": "Bearer {{ .Env.API_TOKEN }}"},
//	    "body": {"report": "{{ .Vars.report }}"},
//	    "follow_redirects": true,
//	    "validate_ssl": true,
//	    "timeout_sec": 10
//	}
//
// Время запроса ограничено таймаутом task; timeout_sec может только
// сократить его. Без обоих действует defaultHTTPTimeout.
//
// Outputs: status_code, headers, body (JSON или строка), duration_ms,
// task_id, attempt. Статус >= 400 даёт *domain.TaskError поверх
// *HTTPError: 5xx с SeverityError, 4xx с SeverityWarning.
type HTTPStep struct {
	secure   *http.Transport
	insecure *http.Transport
}

// NewHTTPStep создаёт HTTPStep с общими транспортами для всех task.
func NewHTTPStep() *HTTPStep {
	secure := http.DefaultTransport.(*http.Transport).Clone()

	insecure := secure.Clone()
	insecure.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // validate_ssl: false

	return &HTTPStep{secure: secure, insecure: insecure}
}

// Type возвращает тип шага.
func (s *HTTPStep) Type() string {
	return StepTypeHTTP
}

// Execute выполняет запрос в пределах таймаута task.
func (s *HTTPStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	cfg, err := parseHTTPConfig(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	httpReq, err := cfg.newRequest(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, StepTypeHTTP, err)
	}

	started := time.Now()
	resp, err := s.client(cfg).Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, interrupted(ctx, StepTypeHTTP)
		}
		return nil, domain.NewTaskError(domain.SeverityError, cfg.method+" "+cfg.url, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		if ctx.Err() != nil {
			return nil, interrupted(ctx, StepTypeHTTP)
		}
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, statusError(resp.StatusCode, payload)
	}

	return traced(ctx, req, map[string]any{
		"status_code": resp.StatusCode,
		"headers":     flattenHeaders(resp.Header),
		"body":        decodeBody(resp.Header.Get("Content-Type"), payload),
		"duration_ms": time.Since(started).Milliseconds(),
	}), nil
}

func (s *HTTPStep) client(cfg *httpConfig) *http.Client {
	c := &http.Client{Transport: s.secure}
	if !cfg.validateSSL {
		c.Transport = s.insecure
	}
	if !cfg.followRedirects {
		c.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return c
}

type httpConfig struct {
	method          string
	url             string
	headers         map[string]string
	body            any
	followRedirects bool
	validateSSL     bool
	timeout         time.Duration
}

func parseHTTPConfig(req *Request) (*httpConfig, error) {
	cfg := &httpConfig{
		method:          strings.ToUpper(GetConfigString(req.Config, configMethod)),
		url:             GetConfigString(req.Config, configURL),
		headers:         GetConfigMapString(req.Config, configHeaders),
		body:            req.Config[configBody],
		followRedirects: GetConfigBool(req.Config, configFollowRedirects, true),
		validateSSL:     GetConfigBool(req.Config, configValidateSSL, true),
		timeout:         requestTimeout(req.Timeout, GetConfigInt(req.Config, configTimeoutSec)),
	}

	if cfg.url == "" {
		return nil, fmt.Errorf("%w: %s: url is required", ErrInvalidConfig, StepTypeHTTP)
	}
	if cfg.method == "" {
		cfg.method = http.MethodGet
	}
	if cfg.headers == nil {
		cfg.headers = make(map[string]string)
	}

	return cfg, nil
}

// requestTimeout выбирает меньший из таймаута task и timeout_sec.
func requestTimeout(taskTimeout time.Duration, timeoutSec int) time.Duration {
	switch {
	case timeoutSec > 0:
		t := time.Duration(timeoutSec) * time.Second
		if taskTimeout > 0 && taskTimeout < t {
			return taskTimeout
		}
		return t
	case taskTimeout > 0:
		return taskTimeout
	default:
		return defaultHTTPTimeout
	}
}

func (c *httpConfig) newRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if c.body != nil {
		raw, err := encodeBody(c.body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, c.url, body)
	if err != nil {
		return nil, err
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// decodeBody разбирает JSON-ответ; остальное возвращается строкой.
func decodeBody(contentType string, payload []byte) any {
	if strings.Contains(contentType, "json") {
		var v any
		if err := json.Unmarshal(payload, &v); err == nil {
			return v
		}
	}
	return string(payload)
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key := range h {
		out[key] = h.Get(key)
	}
	return out
}

func statusError(code int, payload []byte) error {
	if len(payload) > maxErrorBody {
		payload = payload[:maxErrorBody]
	}
	severity := domain.SeverityWarning
	if code >= http.StatusInternalServerError {
		severity = domain.SeverityError
	}
	return domain.NewTaskError(severity, "", &HTTPError{
		StatusCode: code,
		Status:     http.StatusText(code),
		Body:       string(payload),
	})
}

// HTTPError — ответ со статусом >= 400.
type HTTPError struct {
	StatusCode int
	Status     string

	// Body — начало тела ответа.
	Body string
}

// Error реализует интерфейс error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

// Unwrap позволяет проверять ошибку через errors.Is(err, ErrHTTPStatus).
func (e *HTTPError) Unwrap() error {
	return ErrHTTPStatus
}

// IsHTTPError проверяет, является ли ошибка HTTP ошибкой.
func IsHTTPError(err error) bool {
	var hErr *HTTPError
	return errors.As(err, &hErr)
}
