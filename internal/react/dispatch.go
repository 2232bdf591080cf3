package react

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/forgehq/sidecar/pkg/models"
)

// toolResultBody is the JSON shape threaded back to the model on a non-2xx
// or unparseable tool response, per §4.6.3.b.
type toolResultBody struct {
	Status int    `json:"status"`
	Body   string `json:"body,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Dispatcher executes a ToolCall against its ToolSpec's HTTP routing.
type Dispatcher struct {
	baseURL string
	client  *http.Client
}

// NewDispatcher builds a Dispatcher. client defaults to a 30s-timeout
// http.Client when nil.
func NewDispatcher(baseURL string, client *http.Client) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Dispatcher{baseURL: baseURL, client: client}
}

// Dispatch calls spec's mcpRouting endpoint with call.Input as the body for
// non-GET methods. A non-2xx status becomes a ToolResult carrying
// {status, body, error: "HTTP <code>"}, and a non-empty 2xx body that is
// not valid JSON one carrying {status, body, error: "unparseable response
// body"}, rather than an error return — only transport-level failures
// (can't even reach the endpoint) return err.
func (d *Dispatcher) Dispatch(ctx context.Context, spec models.ToolSpec, call ToolCall) (ToolResult, error) {
	method := spec.Method()
	endpoint := ""
	if spec.MCPRouting != nil {
		endpoint = spec.MCPRouting.Endpoint
	}
	url := d.baseURL + endpoint

	var body io.Reader
	if method != http.MethodGet && len(call.Input) > 0 {
		body = bytes.NewReader(call.Input)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return ToolResult{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return ToolResult{}, err
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxToolResponseBytes))
	if readErr != nil {
		return toolResult(call, 0, "", fmt.Sprintf("failed to read response: %v", readErr)), nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return toolResult(call, resp.StatusCode, string(raw), fmt.Sprintf("HTTP %d", resp.StatusCode)), nil
	}
	if len(raw) > 0 && !json.Valid(raw) {
		return toolResult(call, resp.StatusCode, string(raw), "unparseable response body"), nil
	}

	return ToolResult{ToolCallID: call.ID, Content: string(raw)}, nil
}

const maxToolResponseBytes = 4 << 20 // 4 MiB

func toolResult(call ToolCall, status int, body, errMsg string) ToolResult {
	payload, _ := json.Marshal(toolResultBody{Status: status, Body: body, Error: errMsg})
	return ToolResult{ToolCallID: call.ID, Content: string(payload), IsError: true}
}
