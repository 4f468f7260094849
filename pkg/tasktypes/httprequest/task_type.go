// Package httprequest provides the http_request task type.
package httprequest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/protocol"
	"github.com/dukex/taskflow/pkg/validation"
	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/sethvargo/go-retry"
)

const (
	Name = "http_request"

	defaultTimeoutSeconds = 30
	maxTimeoutSeconds     = 300
	defaultRetryDelay     = time.Second
	maxErrorBodyLength    = 512
)

var methods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
	http.MethodDelete, http.MethodHead, http.MethodOptions,
}

// ErrHTTPStatus is returned for responses outside the 2xx range.
var ErrHTTPStatus = errors.New("unexpected HTTP status")

// StatusError carries the failing response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrHTTPStatus
}

// TaskType performs an HTTP request with optional headers, body and retries.
type TaskType struct {
	client *resty.Client
}

type Option func(*TaskType)

// WithClient replaces the resty client, e.g. to set a transport in tests.
func WithClient(client *resty.Client) Option {
	return func(t *TaskType) {
		t.client = client
	}
}

func New(opts ...Option) *TaskType {
	t := &TaskType{client: resty.New()}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

func (t *TaskType) Name() string {
	return Name
}

func (t *TaskType) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Absolute http or https URL to call",
				"minLength":   1,
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use",
				"default":     http.MethodGet,
			},
			"headers": map[string]any{
				"type":                 "object",
				"description":          "HTTP headers to include in the request",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{
				"description": "Request body. Objects and arrays are sent as JSON",
			},
			"timeout": map[string]any{
				"type":        "number",
				"description": "Request timeout in seconds, retries included",
				"default":     defaultTimeoutSeconds,
				"minimum":     0,
			},
			"retries": map[string]any{
				"type":        "object",
				"description": "Retry configuration for transport errors and 5xx responses",
				"properties": map[string]any{
					"attempts": map[string]any{"type": "integer", "minimum": 0, "maximum": 10},
					"delay":    map[string]any{"type": "integer", "minimum": 1, "description": "Delay between attempts in milliseconds"},
				},
			},
		},
		"required": []string{"url"},
	}
}

func (t *TaskType) Validate(config map[string]any) protocol.ValidationResult {
	errs := validation.Schema(t.Schema(), config)

	var warnings []string

	if raw := protocol.ConfigString(config, "url"); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("url must be an absolute http or https URL, got %q", raw))
		}
	}

	if method := protocol.ConfigString(config, "method"); method != "" && !slices.Contains(methods, strings.ToUpper(method)) {
		errs = append(errs, fmt.Sprintf("method must be one of %v, got %s", methods, method))
	}

	if timeout, ok := protocol.ConfigNumber(config, "timeout"); ok && timeout > maxTimeoutSeconds {
		warnings = append(warnings, fmt.Sprintf("timeout of %vs is unusually long", timeout))
	}

	return protocol.NewValidationResult(errs, warnings)
}

func (t *TaskType) EstimateResources(map[string]any) []models.ResourceRequirement {
	return []models.ResourceRequirement{
		{Type: models.ResourceTypeNetwork, Amount: 1, Unit: "connection"},
	}
}

func (t *TaskType) Execute(ctx context.Context, config map[string]any, execCtx protocol.ExecutionContext) protocol.Result {
	logger := execCtx.Log().With("module", "http_request")

	request, err := newRequest(config)
	if err != nil {
		return protocol.Failed(err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, request.timeout)
	defer cancel()

	backoff := retry.WithMaxRetries(uint64(request.attempts), retry.NewConstant(request.delay))

	var resp *resty.Response

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		logger.DebugContext(ctx, "Sending HTTP request", "method", request.method, "url", request.url)

		r, err := t.client.R().
			SetContext(ctx).
			SetHeaders(request.headers).
			SetBody(request.body).
			Execute(request.method, request.url)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("http request failed: %w", err))
		}

		resp = r

		if r.StatusCode() >= http.StatusInternalServerError {
			return retry.RetryableError(statusError(r))
		}

		return nil
	})
	if err != nil {
		logger.WarnContext(ctx, "HTTP request failed", "url", request.url, "error", err)

		return protocol.Failed(err.Error())
	}

	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return protocol.Failed(statusError(resp).Error())
	}

	return protocol.Succeeded(output(resp))
}

type request struct {
	url      string
	method   string
	headers  map[string]string
	body     any
	timeout  time.Duration
	attempts int
	delay    time.Duration
}

func newRequest(config map[string]any) (*request, error) {
	target := protocol.ConfigString(config, "url")
	if target == "" {
		return nil, errors.New("url is required")
	}

	method := strings.ToUpper(protocol.ConfigString(config, "method"))
	if method == "" {
		method = http.MethodGet
	}

	headers := make(map[string]string)

	for key, value := range protocol.ConfigMap(config, "headers") {
		headers[key] = fmt.Sprint(value)
	}

	var body any

	switch b := config["body"].(type) {
	case nil:
	case string:
		body = b
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}

		body = encoded

		if _, ok := headers["Content-Type"]; !ok {
			headers["Content-Type"] = "application/json"
		}
	}

	timeout := time.Duration(defaultTimeoutSeconds) * time.Second
	if seconds, ok := protocol.ConfigNumber(config, "timeout"); ok && seconds > 0 {
		timeout = time.Duration(seconds * float64(time.Second))
	}

	retries := protocol.ConfigMap(config, "retries")
	attempts := max(protocol.ConfigInt(retries, "attempts", 0), 0)

	delay := defaultRetryDelay
	if ms := protocol.ConfigInt(retries, "delay", 0); ms > 0 {
		delay = time.Duration(ms) * time.Millisecond
	}

	return &request{
		url:      target,
		method:   method,
		headers:  headers,
		body:     body,
		timeout:  timeout,
		attempts: attempts,
		delay:    delay,
	}, nil
}

func statusError(resp *resty.Response) *StatusError {
	body := truncate(resp.String(), maxErrorBodyLength)

	if body == "" {
		body = http.StatusText(resp.StatusCode())
	}

	return &StatusError{StatusCode: resp.StatusCode(), Body: body}
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}

	return s[:limit]
}

func output(resp *resty.Response) map[string]any {
	headers := make(map[string]any, len(resp.Header()))
	for key := range resp.Header() {
		headers[key] = resp.Header().Get(key)
	}

	out := map[string]any{
		"status":  resp.StatusCode(),
		"headers": headers,
		"body":    resp.String(),
	}

	var decoded any
	if err := json.Unmarshal(resp.Body(), &decoded); err == nil {
		out["json"] = decoded
	}

	return out
}
