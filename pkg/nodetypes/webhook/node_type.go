// Package webhook provides the webhook node type, which posts the execution variables
// to an external endpoint.
package webhook

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dukex/taskflow/pkg/protocol"
	"github.com/dukex/taskflow/pkg/validation"
	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
)

const (
	Name = "webhook"

	defaultTimeout = 10 * time.Second
)

type NodeType struct {
	client *resty.Client
}

func New(client *resty.Client) *NodeType {
	if client == nil {
		client = resty.New()
	}

	return &NodeType{client: client}
}

func (n *NodeType) Name() string {
	return Name
}

func (n *NodeType) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":      "string",
				"minLength": 1,
			},
			"method": map[string]any{
				"type":    "string",
				"enum":    []string{http.MethodPost, http.MethodPut, http.MethodPatch},
				"default": http.MethodPost,
			},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
		},
		"required": []string{"url"},
	}
}

func (n *NodeType) Validate(config map[string]any) protocol.ValidationResult {
	errs := validation.Schema(n.Schema(), config)

	if raw := protocol.ConfigString(config, "url"); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("url must be an absolute http or https URL, got %q", raw))
		}
	}

	return protocol.NewValidationResult(errs, nil)
}

func (n *NodeType) Execute(ctx context.Context, config map[string]any, execCtx protocol.ExecutionContext) protocol.Result {
	method := protocol.ConfigString(config, "method")
	if method == "" {
		method = http.MethodPost
	}

	payload := execCtx.Variables
	if payload == nil {
		payload = map[string]any{}
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload)

	for key, value := range protocol.ConfigMap(config, "headers") {
		req.SetHeader(key, fmt.Sprint(value))
	}

	resp, err := req.Execute(method, protocol.ConfigString(config, "url"))
	if err != nil {
		return protocol.Failed(fmt.Sprintf("webhook request failed: %v", err))
	}

	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return protocol.Failed(fmt.Sprintf("HTTP %d: %s", resp.StatusCode(), resp.String()))
	}

	var response any = resp.String()

	var decoded any
	if err := json.Unmarshal(resp.Body(), &decoded); err == nil {
		response = decoded
	}

	return protocol.Succeeded(map[string]any{
		"status":   resp.StatusCode(),
		"response": response,
	})
}
